package orders

import (
	"context"
	"time"
)

// Store is the persistence port of the order engine. Implementations live in
// internal/postgres and internal/memstore.
type Store interface {
	// Product returns ErrProductNotFound when the id is unknown.
	Product(ctx context.Context, id int64) (Product, error)

	// CartLines lists the user's cart joined with live product data, newest first.
	CartLines(ctx context.Context, userID int64) ([]CartLine, error)
	// CartItem returns ErrCartItemNotFound when the pair is absent.
	CartItem(ctx context.Context, userID, productID int64) (CartItem, error)
	// AddCartItem adds qty to the entry, creating it when absent, in one
	// atomic step. When the resulting quantity would exceed limit nothing
	// changes, ok is false and item holds the stored entry (zero if absent).
	AddCartItem(ctx context.Context, userID, productID int64, qty, limit int) (item CartItem, ok bool, err error)
	// UpdateCartItem returns ErrCartItemNotFound when there is no entry to update.
	UpdateCartItem(ctx context.Context, userID, productID int64, qty int) (CartItem, error)
	DeleteCartItem(ctx context.Context, userID, productID int64) (bool, error)

	// Order returns the header with its items or ErrOrderNotFound.
	Order(ctx context.Context, id int64) (Order, error)
	ListBuyerOrders(ctx context.Context, userID int64, page Page) ([]Order, int, error)
	// ListSellerOrders returns one row per order containing the seller's
	// products; Items holds only the seller's lines.
	ListSellerOrders(ctx context.Context, sellerID int64, page Page) ([]Order, int, error)
	ListAllOrders(ctx context.Context, page Page) ([]Order, int, error)

	// InTx runs fn in one transaction. A non-nil error from fn rolls
	// everything back and is returned unchanged.
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of operations available inside InTx.
type Tx interface {
	// LockCartLines re-reads the cart and locks the product rows, ordered by
	// product id so concurrent checkouts lock in the same order.
	LockCartLines(ctx context.Context, userID int64) ([]CartLine, error)
	// DecrementStock reports false when stock_quantity < qty at write time.
	DecrementStock(ctx context.Context, productID int64, qty int) (bool, error)
	// InsertOrder fills ID, CreatedAt and UpdatedAt.
	InsertOrder(ctx context.Context, o *Order) error
	InsertOrderItems(ctx context.Context, orderID int64, items []OrderItem) error
	ClearCart(ctx context.Context, userID int64) error

	// LockOrder returns the header locked for update or ErrOrderNotFound.
	LockOrder(ctx context.Context, id int64) (Order, error)
	SetOrderStatus(ctx context.Context, id int64, status Status) (time.Time, error)

	// AppendEvent writes to the outbox in the same transaction.
	AppendEvent(ctx context.Context, env Envelope) error
}

// StatusCache is the optional read-through cache behind the status endpoint.
type StatusCache interface {
	GetStatus(ctx context.Context, orderID int64) (StatusView, bool, error)
	PutStatus(ctx context.Context, v StatusView) error
}
