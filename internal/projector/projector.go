package projector

import (
	"context"
	"fmt"

	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Projector keeps order_status:{id} in Redis in line with the order events.
type Projector struct {
	Cache   *redisx.StatusCache
	Dedup   *redisx.Dedup
	Metrics *metrics.Metrics
}

// Handle is a kafka.Handler. Returning an error leaves the offset
// uncommitted; the consumer retries and then stops, and the group
// redelivers the message on restart.
func (p *Projector) Handle(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		// undecodable messages can never succeed
		logging.FromContext(ctx).Warn("skipping malformed event", zap.Int64("offset", m.Offset), zap.Error(err))
		p.count("unknown", "malformed")
		return nil
	}
	if !orders.KnownEvent(env.EventType) {
		p.count(env.EventType, "ignored")
		return nil
	}
	log := logging.FromContext(ctx).With(
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.EventType),
		zap.Int64("order_id", env.OrderID),
	)

	seen, err := p.Dedup.Seen(ctx, env.EventID)
	if err != nil {
		p.count(env.EventType, "error")
		return fmt.Errorf("dedup lookup: %w", err)
	}
	if seen {
		p.count(env.EventType, "duplicate")
		return nil
	}

	ref, err := kafkax.UnwrapPayload[orders.OrderRef](env.Payload)
	if err != nil {
		log.Warn("skipping event with bad payload", zap.Error(err))
		p.count(env.EventType, "malformed")
		return nil
	}

	wrote, err := p.Cache.PutIfNewer(ctx, orders.StatusView{
		OrderID:   ref.OrderID,
		UserID:    ref.UserID,
		Status:    ref.Status,
		UpdatedAt: ref.UpdatedAt,
	})
	if err != nil {
		p.count(env.EventType, "error")
		return fmt.Errorf("write status: %w", err)
	}
	if err := p.Dedup.Mark(ctx, env.EventID); err != nil {
		log.Warn("dedup mark failed", zap.Error(err))
	}

	outcome := "projected"
	if !wrote {
		outcome = "stale"
	}
	p.count(env.EventType, outcome)
	log.Debug("event projected", zap.String("status", string(ref.Status)), zap.String("outcome", outcome))
	return nil
}

func (p *Projector) count(eventType, outcome string) {
	if p.Metrics != nil {
		p.Metrics.ProjectorProcessed.WithLabelValues(eventType, outcome).Inc()
	}
}
