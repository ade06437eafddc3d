package orders

import (
	"context"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	ucGetCart           = "cart.get"
	ucAddToCart         = "cart.add"
	ucUpdateCartItem    = "cart.update"
	ucRemoveFromCart    = "cart.remove"
	ucCreateOrder       = "order.create"
	ucPayOrder          = "order.pay"
	ucUpdateOrderStatus = "order.update_status"
	ucGetOrder          = "order.get"
	ucOrderStatus       = "order.status"
	ucListOrders        = "order.list"
	ucListSellerOrders  = "order.list_seller"
	ucListAllOrders     = "order.list_all"

	spanPrefix = "UC."
)

// Service implements the cart aggregator, the order engine and the order
// views on top of a Store. Cache, Metrics and Tracer are optional.
type Service struct {
	Store    Store
	Cache    StatusCache
	Metrics  *metrics.Metrics
	Tracer   trace.Tracer
	Producer string
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) tracer() trace.Tracer {
	if s.Tracer != nil {
		return s.Tracer
	}
	return otel.Tracer("marketplace/orders")
}

// begin opens a span for a use case. The returned func must be deferred with
// a pointer to the named error; it records the span status, the RED metrics
// and one use_case_done log line.
func (s *Service) begin(ctx context.Context, useCase string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	attrs = append(attrs, attribute.String("use_case", useCase))
	ctx, span := s.tracer().Start(ctx, spanPrefix+useCase, trace.WithAttributes(attrs...))
	start := time.Now()

	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		lat := time.Since(start).Seconds()
		outcome, status := "success", Code(err)
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()

		if s.Metrics != nil {
			s.Metrics.UseCaseRequests.WithLabelValues(useCase, outcome).Inc()
			s.Metrics.UseCaseDuration.WithLabelValues(useCase).Observe(lat)
		}

		fields := []zap.Field{
			zap.String("use_case", useCase),
			zap.String("outcome", outcome),
			zap.String("status", status),
			zap.Float64("latency_seconds", lat),
		}
		if sc := span.SpanContext(); sc.IsValid() {
			fields = append(fields,
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()),
			)
		}
		log := logging.FromContext(ctx)
		switch {
		case err == nil:
			log.Info("use_case_done", fields...)
		case Kind(err) == KindInternal:
			log.Error("use_case_done", append(fields, zap.Error(err))...)
		default:
			log.Info("use_case_done", append(fields, zap.String("error", err.Error()))...)
		}
	}
}

func (s *Service) traceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// refreshCache writes the new status through to the cache. Failures only log;
// the store stays the source of truth.
func (s *Service) refreshCache(ctx context.Context, o Order) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.PutStatus(ctx, o.StatusView()); err != nil {
		logging.FromContext(ctx).Warn("status cache write failed",
			zap.Int64("order_id", o.ID), zap.Error(err))
	}
}
