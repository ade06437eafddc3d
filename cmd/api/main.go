package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/auth"
	"github.com/ariefcatur/go-marketplace-orders/internal/config"
	"github.com/ariefcatur/go-marketplace-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/memstore"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/outbox"
	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// store is what the API needs from a backend: the order store and the
// outbox source the relay drains.
type store interface {
	orders.Store
	outbox.Source
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithContext(ctx, logger)

	m := metrics.New(prometheus.DefaultRegisterer)

	var st store
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		st = memstore.New()
	default:
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN, int32(cfg.PostgresMaxConns))
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
		st = postgres.NewStore(pool)
	}

	svc := &orders.Service{Store: st, Metrics: m, Producer: cfg.ServiceName}
	api := &httpx.API{Service: svc, Verifier: auth.NewVerifier(cfg.JWTSecret), Metrics: m}

	if cfg.RedisAddr != "" {
		rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		svc.Cache = redisx.NewStatusCache(rdb, cfg.StatusCacheTTL)
		api.Limiter = redisx.NewRateLimiter(rdb, cfg.RateLimit, cfg.RateWindow)
	} else {
		logger.Warn("REDIS_ADDR empty: status cache and rate limiting disabled")
	}

	var wg sync.WaitGroup
	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	if len(cfg.KafkaBrokers) > 0 {
		prod := kafkax.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() { _ = prod.Close() }()
		relay := &outbox.Relay{
			Source:    st,
			Publisher: prod,
			Interval:  cfg.OutboxInterval,
			Batch:     cfg.OutboxBatch,
			Metrics:   m,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = relay.Run(relayCtx)
		}()
	} else {
		logger.Warn("KAFKA_BROKERS empty: order events stay in the outbox")
	}

	router := httpx.NewRouter(httpx.RouterConfig{Logger: logger, Metrics: m})
	api.Register(router)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errc:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	stopRelay()
	wg.Wait()
	return nil
}
