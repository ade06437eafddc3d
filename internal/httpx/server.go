package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/auth"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer // nil serves the default registry
	Timeout  time.Duration
}

func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(Observe(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Timeout))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// API mounts the authenticated cart, order and admin routes.
type API struct {
	Service  *orders.Service
	Verifier *auth.Verifier
	Limiter  Limiter // optional
	Metrics  *metrics.Metrics
}

func (a *API) Register(r chi.Router) {
	cart := &CartHandler{Service: a.Service}
	ord := &OrdersHandler{Service: a.Service}
	admin := &AdminHandler{Service: a.Service}
	limit := RateLimit(a.Limiter, a.Metrics)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(a.Verifier))

		r.Get("/cart", cart.get)
		r.Post("/cart", cart.add)
		r.Put("/cart/{productId}", cart.update)
		r.Delete("/cart/{productId}", cart.remove)

		r.With(limit).Post("/orders", ord.create)
		r.Get("/orders", ord.list)
		r.With(auth.RequireRole(auth.RoleSeller)).Get("/orders/seller", ord.listSeller)
		r.Get("/orders/{id}", ord.get)
		r.Get("/orders/{id}/status", ord.status)
		r.With(limit).Put("/orders/{id}/pay", ord.pay)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))
			r.Get("/orders", admin.list)
			r.Put("/orders/{id}/status", admin.updateStatus)
		})
	})
}
