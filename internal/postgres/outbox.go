package postgres

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-marketplace-orders/internal/outbox"
)

func (s *Store) Pending(ctx context.Context, limit int) ([]outbox.Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, event_type, body FROM order_events
		WHERE published_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}
	defer rows.Close()

	var out []outbox.Record
	for rows.Next() {
		var r outbox.Record
		if err := rows.Scan(&r.ID, &r.OrderID, &r.EventType, &r.Body); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, `UPDATE order_events SET published_at = now() WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	return nil
}
