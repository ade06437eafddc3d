package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"go.uber.org/zap"
)

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Middleware rejects requests without a valid Bearer token with 401 and
// stores the Identity in the request context.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(h, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				deny(w, http.StatusUnauthorized, "access token required", "UNAUTHENTICATED")
				return
			}
			id, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				logging.FromContext(r.Context()).Debug("token rejected", zap.Error(err))
				deny(w, http.StatusUnauthorized, ErrInvalidToken.Error(), "UNAUTHENTICATED")
				return
			}
			ctx := WithIdentity(r.Context(), id)
			ctx = logging.WithContext(ctx, logging.FromContext(ctx).With(
				zap.Int64("user_id", id.UserID), zap.String("role", id.Role)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets through identities holding one of roles, 403 otherwise.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok {
				deny(w, http.StatusUnauthorized, "access token required", "UNAUTHENTICATED")
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			deny(w, http.StatusForbidden, "insufficient permissions", "FORBIDDEN")
		})
	}
}

func deny(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
