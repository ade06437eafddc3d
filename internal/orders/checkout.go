package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CreateOrder converts the user's cart into a pending order. Everything
// between re-reading the cart and clearing it runs in one transaction: on any
// failure no order, no item and no stock change survives.
func (s *Service) CreateOrder(ctx context.Context, userID int64) (_ Order, err error) {
	ctx, done := s.begin(ctx, ucCreateOrder, attribute.Int64("user.id", userID))
	defer func() { done(&err) }()

	lines, err := s.Store.CartLines(ctx, userID)
	if err != nil {
		return Order{}, err
	}
	if len(lines) == 0 {
		return Order{}, ErrEmptyCart
	}

	var order Order
	err = s.Store.InTx(ctx, func(tx Tx) error {
		o, err := s.checkout(ctx, tx, userID)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) && s.Metrics != nil {
			s.Metrics.StockConflicts.Inc()
		}
		return Order{}, err
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int64("order.id", order.ID),
		attribute.String("order.total", order.TotalAmount.StringFixed(2)),
	)
	s.refreshCache(ctx, order)
	return order, nil
}

func (s *Service) checkout(ctx context.Context, tx Tx, userID int64) (Order, error) {
	// stock and price must come from inside the transaction, never from the
	// pre-read above
	lines, err := tx.LockCartLines(ctx, userID)
	if err != nil {
		return Order{}, err
	}
	if len(lines) == 0 {
		return Order{}, ErrEmptyCart
	}

	total := decimal.Zero
	items := make([]OrderItem, 0, len(lines))
	for _, l := range lines {
		if l.Status != ProductActive {
			return Order{}, fmt.Errorf("%s (product %d): %w", l.Name, l.ProductID, ErrProductUnavailable)
		}
		if l.StockQuantity < l.Quantity {
			return Order{}, &InsufficientStockError{
				ProductID: l.ProductID, Name: l.Name, Requested: l.Quantity, Available: l.StockQuantity,
			}
		}
		total = total.Add(l.Subtotal())
		items = append(items, OrderItem{
			ProductID:   l.ProductID,
			ProductName: l.Name,
			Quantity:    l.Quantity,
			Price:       l.Price,
		})
	}

	order := Order{UserID: userID, TotalAmount: total, Status: StatusPending}
	if err := tx.InsertOrder(ctx, &order); err != nil {
		return Order{}, err
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	if err := tx.InsertOrderItems(ctx, order.ID, items); err != nil {
		return Order{}, err
	}

	for i, it := range items {
		ok, err := tx.DecrementStock(ctx, it.ProductID, it.Quantity)
		if err != nil {
			return Order{}, err
		}
		if !ok {
			return Order{}, &InsufficientStockError{
				ProductID: it.ProductID, Name: it.ProductName, Requested: it.Quantity, Available: lines[i].StockQuantity,
			}
		}
	}

	if err := tx.ClearCart(ctx, userID); err != nil {
		return Order{}, err
	}

	evItems := make([]EventItem, 0, len(items))
	for _, it := range items {
		evItems = append(evItems, EventItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	env, err := NewEnvelope(EventOrderCreated, s.Producer, s.traceID(ctx), order.ID, s.now(), OrderCreatedPayload{
		OrderRef:    OrderRef{OrderID: order.ID, UserID: userID, Status: order.Status, UpdatedAt: order.UpdatedAt},
		TotalAmount: total,
		Items:       evItems,
	})
	if err != nil {
		return Order{}, err
	}
	if err := tx.AppendEvent(ctx, env); err != nil {
		return Order{}, err
	}

	order.Items = items
	return order, nil
}
