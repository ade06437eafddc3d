package orders

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PayOrder moves a pending order owned by userID to paid. The three failures
// stay distinct: ErrOrderNotFound, ErrForbidden and *InvalidStateError
// carrying the current status.
func (s *Service) PayOrder(ctx context.Context, userID, orderID int64) (_ Order, err error) {
	ctx, done := s.begin(ctx, ucPayOrder,
		attribute.Int64("user.id", userID), attribute.Int64("order.id", orderID))
	defer func() { done(&err) }()

	var order Order
	err = s.Store.InTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return ErrForbidden
		}
		if o.Status != StatusPending {
			return &InvalidStateError{OrderID: o.ID, Current: o.Status}
		}

		updated, err := tx.SetOrderStatus(ctx, o.ID, StatusPaid)
		if err != nil {
			return err
		}
		o.Status, o.UpdatedAt = StatusPaid, updated

		env, err := NewEnvelope(EventOrderPaid, s.Producer, s.traceID(ctx), o.ID, s.now(), OrderPaidPayload{
			OrderRef:    OrderRef{OrderID: o.ID, UserID: o.UserID, Status: o.Status, UpdatedAt: o.UpdatedAt},
			TotalAmount: o.TotalAmount,
		})
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, env); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.refreshCache(ctx, order)
	return order, nil
}

// UpdateOrderStatus is the admin override: any known status may be set from
// any status. Authorization is the caller's job.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, status string) (_ Order, err error) {
	ctx, done := s.begin(ctx, ucUpdateOrderStatus,
		attribute.Int64("order.id", orderID), attribute.String("order.status", status))
	defer func() { done(&err) }()

	to, err := ParseStatus(status)
	if err != nil {
		return Order{}, err
	}

	var order Order
	err = s.Store.InTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		from := o.Status
		updated, err := tx.SetOrderStatus(ctx, o.ID, to)
		if err != nil {
			return err
		}
		o.Status, o.UpdatedAt = to, updated

		override := from != to && !CanTransition(from, to)
		if override {
			trace.SpanFromContext(ctx).AddEvent("order.status_override", trace.WithAttributes(
				attribute.String("order.from", string(from)),
				attribute.String("order.to", string(to)),
			))
		}
		env, err := NewEnvelope(EventOrderStatusChanged, s.Producer, s.traceID(ctx), o.ID, s.now(), OrderStatusChangedPayload{
			OrderRef: OrderRef{OrderID: o.ID, UserID: o.UserID, Status: to, UpdatedAt: updated},
			From:     from,
			Override: override,
		})
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, env); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.refreshCache(ctx, order)
	return order, nil
}
