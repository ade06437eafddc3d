package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Record is one stored order event awaiting publication.
type Record struct {
	ID        int64
	OrderID   int64
	EventType string
	Body      []byte // encoded orders.Envelope
}

type Source interface {
	// Pending returns unpublished records in insertion order.
	Pending(ctx context.Context, limit int) ([]Record, error)
	MarkPublished(ctx context.Context, ids []int64) error
}

type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

// Relay moves committed events from the store to the broker. A record is
// marked published only after the broker acknowledged it, so delivery is at
// least once.
type Relay struct {
	Source    Source
	Publisher Publisher
	Interval  time.Duration
	Batch     int
	Metrics   *metrics.Metrics
}

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	log := logging.FromContext(ctx).With(zap.String("component", "outbox_relay"))
	log.Info("outbox relay started", zap.Duration("interval", interval), zap.Int("batch", r.batch()))

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		n, err := r.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			log.Warn("outbox relay pass failed", zap.Int("published", n), zap.Error(err))
		}
		// keep draining while full batches come back
		if err == nil && n == r.batch() && ctx.Err() == nil {
			continue
		}
		select {
		case <-ctx.Done():
			log.Info("outbox relay stopped")
			return nil
		case <-t.C:
		}
	}
}

// RunOnce publishes one batch and returns how many records were published.
// It stops at the first publish failure; the rest stays pending.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	recs, err := r.Source.Pending(ctx, r.batch())
	if err != nil {
		return 0, fmt.Errorf("load pending events: %w", err)
	}

	done := make([]int64, 0, len(recs))
	var pubErr error
	for _, rec := range recs {
		err := r.Publisher.Publish(ctx, orders.PartitionKey(rec.OrderID), rec.Body,
			kafkago.Header{Key: "x-event-type", Value: []byte(rec.EventType)},
			kafkago.Header{Key: "x-event-version", Value: []byte(fmt.Sprint(orders.EventVersion))},
		)
		if err != nil {
			if r.Metrics != nil {
				r.Metrics.OutboxFailures.Inc()
			}
			pubErr = fmt.Errorf("publish event %d: %w", rec.ID, err)
			break
		}
		done = append(done, rec.ID)
	}

	if len(done) > 0 {
		if err := r.Source.MarkPublished(ctx, done); err != nil {
			return 0, fmt.Errorf("mark published: %w", err)
		}
		if r.Metrics != nil {
			r.Metrics.OutboxPublished.Add(float64(len(done)))
		}
	}
	return len(done), pubErr
}

func (r *Relay) batch() int {
	if r.Batch <= 0 {
		return 100
	}
	return r.Batch
}
