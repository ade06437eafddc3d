package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler must return nil only when the message was processed and its
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r        messageReader
	workers  int
	attempts int
	backoff  time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers)
}

func newConsumer(r messageReader, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, attempts: 3, backoff: 200 * time.Millisecond}
}

// Start fetches until ctx is done and fans messages out to the workers.
// Each partition is owned by one worker, so offsets are handled and
// committed in order and per-order ordering holds (orders are keyed to
// partitions). A message is committed only after h succeeded. When h keeps
// failing after the retries Start stops without committing it and returns
// the error; the message is redelivered on the next start.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()
	log := logging.FromContext(ctx)

	parent := ctx
	ctx, fail := context.WithCancelCause(ctx)
	defer fail(nil)

	queues := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan kafka.Message, 128)
		wg.Add(1)
		go func(id int, jobs <-chan kafka.Message) {
			defer wg.Done()
			for m := range jobs {
				// after a failure nothing behind it may be committed
				if ctx.Err() != nil {
					continue
				}
				if err := c.handle(ctx, h, m); err != nil {
					if ctx.Err() == nil {
						log.Error("handler failed, stopping consumer",
							zap.Int("worker", id), zap.Int("partition", m.Partition),
							zap.Int64("offset", m.Offset), zap.Error(err))
						fail(fmt.Errorf("partition %d offset %d: %w", m.Partition, m.Offset, err))
					}
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
					log.Warn("commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
				}
			}
		}(i, queues[i])
	}
	stop := func() error {
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
		if parent.Err() != nil {
			return nil
		}
		return context.Cause(ctx)
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return stop()
			}
			_ = stop()
			return err
		}
		select {
		case queues[workerFor(m.Partition, c.workers)] <- m:
		case <-ctx.Done():
			return stop()
		}
	}
}

func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) error {
	var err error
	for i := 0; i < c.attempts; i++ {
		if err = h(ctx, m); err == nil {
			return nil
		}
		logging.FromContext(ctx).Warn("handle message failed",
			zap.Int("attempt", i+1), zap.Int64("offset", m.Offset), zap.Error(err))
		sleep(ctx, c.backoff)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

func workerFor(partition, n int) int {
	if partition < 0 {
		partition = -partition
	}
	return partition % n
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
