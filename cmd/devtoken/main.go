// Command devtoken prints a signed bearer token for local testing against
// the API. It reads JWT_SECRET the same way the API does.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/auth"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	user := flag.Int64("user", 1, "user id")
	role := flag.String("role", auth.RoleBuyer, "buyer, seller or admin")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}
	tok, err := auth.NewVerifier(secret).Issue(auth.Identity{UserID: *user, Role: *role}, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
