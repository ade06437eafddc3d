package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSource struct {
	mu        sync.Mutex
	recs      []Record
	published map[int64]bool
}

func newSource(n int) *memSource {
	s := &memSource{published: map[int64]bool{}}
	for i := 1; i <= n; i++ {
		s.recs = append(s.recs, Record{ID: int64(i), OrderID: int64(100 + i), EventType: "OrderCreated", Body: []byte(`{}`)})
	}
	return s
}

func (s *memSource) Pending(_ context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.recs {
		if !s.published[r.ID] && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memSource) MarkPublished(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.published[id] = true
	}
	return nil
}

func (s *memSource) left() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs) - len(s.published)
}

type fakePublisher struct {
	mu     sync.Mutex
	keys   []string
	failAt int // 1-based call index that fails, 0 = never
	calls  int
}

func (p *fakePublisher) Publish(_ context.Context, key, _ []byte, headers ...kafkago.Header) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failAt == p.calls {
		return errors.New("broker unavailable")
	}
	if len(headers) != 2 || headers[0].Key != "x-event-type" {
		return errors.New("missing headers")
	}
	p.keys = append(p.keys, string(key))
	return nil
}

func TestRunOncePublishesInOrder(t *testing.T) {
	src := newSource(3)
	pub := &fakePublisher{}
	m := metrics.NewUnregistered()
	r := &Relay{Source: src, Publisher: pub, Batch: 10, Metrics: m}

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"101", "102", "103"}, pub.keys)
	assert.Zero(t, src.left())
	assert.Equal(t, 3.0, testutil.ToFloat64(m.OutboxPublished))
}

func TestRunOnceStopsAtFirstFailure(t *testing.T) {
	src := newSource(3)
	pub := &fakePublisher{failAt: 2}
	m := metrics.NewUnregistered()
	r := &Relay{Source: src, Publisher: pub, Metrics: m}

	n, err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, src.left(), "failed and later events stay pending")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxFailures))

	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"101", "102", "103"}, pub.keys)
}

func TestRunDrainsUntilCancelled(t *testing.T) {
	src := newSource(5)
	pub := &fakePublisher{}
	r := &Relay{Source: src, Publisher: pub, Batch: 2, Interval: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return src.left() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
