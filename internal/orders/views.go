package orders

import (
	"context"

	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// GetOrder returns the buyer's order with items. Orders of other buyers are
// reported as not found.
func (s *Service) GetOrder(ctx context.Context, userID, orderID int64) (_ Order, err error) {
	ctx, done := s.begin(ctx, ucGetOrder,
		attribute.Int64("user.id", userID), attribute.Int64("order.id", orderID))
	defer func() { done(&err) }()

	o, err := s.Store.Order(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.UserID != userID {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

// OrderStatus serves the status projection, cache first.
func (s *Service) OrderStatus(ctx context.Context, userID, orderID int64) (_ StatusView, err error) {
	ctx, done := s.begin(ctx, ucOrderStatus,
		attribute.Int64("user.id", userID), attribute.Int64("order.id", orderID))
	defer func() { done(&err) }()

	if s.Cache != nil {
		v, ok, err := s.Cache.GetStatus(ctx, orderID)
		switch {
		case err != nil:
			logging.FromContext(ctx).Warn("status cache read failed", zap.Int64("order_id", orderID), zap.Error(err))
		case ok && v.UserID == userID:
			return v, nil
		case ok:
			return StatusView{}, ErrOrderNotFound
		}
	}

	o, err := s.Store.Order(ctx, orderID)
	if err != nil {
		return StatusView{}, err
	}
	if o.UserID != userID {
		return StatusView{}, ErrOrderNotFound
	}
	s.refreshCache(ctx, o)
	return o.StatusView(), nil
}

func (s *Service) ListOrders(ctx context.Context, userID int64, page Page) (_ OrderList, err error) {
	ctx, done := s.begin(ctx, ucListOrders, attribute.Int64("user.id", userID))
	defer func() { done(&err) }()

	page = page.Normalize()
	list, total, err := s.Store.ListBuyerOrders(ctx, userID, page)
	return newOrderList(list, total, page), err
}

func (s *Service) ListSellerOrders(ctx context.Context, sellerID int64, page Page) (_ OrderList, err error) {
	ctx, done := s.begin(ctx, ucListSellerOrders, attribute.Int64("seller.id", sellerID))
	defer func() { done(&err) }()

	page = page.Normalize()
	list, total, err := s.Store.ListSellerOrders(ctx, sellerID, page)
	return newOrderList(list, total, page), err
}

func (s *Service) ListAllOrders(ctx context.Context, page Page) (_ OrderList, err error) {
	ctx, done := s.begin(ctx, ucListAllOrders)
	defer func() { done(&err) }()

	page = page.Normalize()
	list, total, err := s.Store.ListAllOrders(ctx, page)
	return newOrderList(list, total, page), err
}

func newOrderList(list []Order, total int, page Page) OrderList {
	if list == nil {
		list = []Order{}
	}
	return OrderList{Orders: list, Total: total, Page: page}
}
