package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marketplace"

// Metrics holds every collector the service exports. Build it once per
// process and pass it down; never create collectors inside handlers.
type Metrics struct {
	HTTPRequests       *prometheus.CounterVec   // http_requests_total{method,route,status}
	HTTPDuration       *prometheus.HistogramVec // http_request_duration_seconds{method,route}
	UseCaseRequests    *prometheus.CounterVec   // usecase_requests_total{use_case,outcome}
	UseCaseDuration    *prometheus.HistogramVec // usecase_duration_seconds{use_case}
	StockConflicts     prometheus.Counter
	RateLimited        *prometheus.CounterVec // rate_limited_total{route}
	OutboxPublished    prometheus.Counter
	OutboxFailures     prometheus.Counter
	ProjectorProcessed *prometheus.CounterVec // projector_events_total{event_type,outcome}
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		UseCaseRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "usecase_requests_total", Help: "Use case executions by outcome.",
		}, []string{"use_case", "outcome"}),
		UseCaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "usecase_duration_seconds", Help: "Use case latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"use_case"}),
		StockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "checkout_stock_conflicts_total",
			Help: "Checkouts rejected because stock ran out.",
		}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rate_limited_total", Help: "Requests rejected by the rate limiter.",
		}, []string{"route"}),
		OutboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "outbox_published_total", Help: "Order events published to Kafka.",
		}),
		OutboxFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "outbox_failures_total", Help: "Failed outbox publish attempts.",
		}),
		ProjectorProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "projector_events_total", Help: "Events handled by the status projector.",
		}, []string{"event_type", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.HTTPRequests, m.HTTPDuration,
			m.UseCaseRequests, m.UseCaseDuration,
			m.StockConflicts, m.RateLimited,
			m.OutboxPublished, m.OutboxFailures,
			m.ProjectorProcessed,
		)
	}
	return m
}

// NewUnregistered is for tests and tools that never expose /metrics.
func NewUnregistered() *Metrics { return New(nil) }
