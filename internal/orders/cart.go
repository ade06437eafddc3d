package orders

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

func (s *Service) GetCart(ctx context.Context, userID int64) (_ Cart, err error) {
	ctx, done := s.begin(ctx, ucGetCart, attribute.Int64("user.id", userID))
	defer func() { done(&err) }()

	lines, err := s.Store.CartLines(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	if lines == nil {
		lines = []CartLine{}
	}
	return Cart{Items: lines, TotalAmount: total, ItemCount: len(lines)}, nil
}

// AddToCart adds qty to the user's entry for the product, creating it when
// absent. The cumulative quantity is checked against current stock.
func (s *Service) AddToCart(ctx context.Context, userID, productID int64, qty int) (_ CartItem, err error) {
	ctx, done := s.begin(ctx, ucAddToCart,
		attribute.Int64("user.id", userID), attribute.Int64("product.id", productID))
	defer func() { done(&err) }()

	if qty <= 0 {
		return CartItem{}, ErrInvalidQuantity
	}
	p, err := s.purchasableProduct(ctx, productID)
	if err != nil {
		return CartItem{}, err
	}

	item, ok, err := s.Store.AddCartItem(ctx, userID, productID, qty, p.StockQuantity)
	if err != nil {
		return CartItem{}, err
	}
	if !ok {
		return CartItem{}, &InsufficientStockError{
			ProductID: p.ID, Name: p.Name, Requested: item.Quantity + qty, Available: p.StockQuantity,
		}
	}
	return item, nil
}

// UpdateCartItem replaces the quantity of an existing entry.
func (s *Service) UpdateCartItem(ctx context.Context, userID, productID int64, qty int) (_ CartItem, err error) {
	ctx, done := s.begin(ctx, ucUpdateCartItem,
		attribute.Int64("user.id", userID), attribute.Int64("product.id", productID))
	defer func() { done(&err) }()

	if qty <= 0 {
		return CartItem{}, ErrInvalidQuantity
	}
	p, err := s.purchasableProduct(ctx, productID)
	if err != nil {
		return CartItem{}, err
	}
	if qty > p.StockQuantity {
		return CartItem{}, &InsufficientStockError{
			ProductID: p.ID, Name: p.Name, Requested: qty, Available: p.StockQuantity,
		}
	}
	return s.Store.UpdateCartItem(ctx, userID, productID, qty)
}

func (s *Service) RemoveFromCart(ctx context.Context, userID, productID int64) (err error) {
	ctx, done := s.begin(ctx, ucRemoveFromCart,
		attribute.Int64("user.id", userID), attribute.Int64("product.id", productID))
	defer func() { done(&err) }()

	ok, err := s.Store.DeleteCartItem(ctx, userID, productID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCartItemNotFound
	}
	return nil
}

func (s *Service) purchasableProduct(ctx context.Context, id int64) (Product, error) {
	p, err := s.Store.Product(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if !p.Purchasable() {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}
