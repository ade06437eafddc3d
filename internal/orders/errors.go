package orders

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidQuantity    = errors.New("quantity must be a positive integer")
	ErrProductNotFound    = errors.New("product not found or inactive")
	ErrProductUnavailable = errors.New("product is no longer available")
	ErrCartItemNotFound   = errors.New("item not found in cart")
	ErrOrderNotFound      = errors.New("order not found")
	ErrForbidden          = errors.New("access denied")
	ErrInvalidState       = errors.New("order state does not allow payment")
	ErrInvalidStatus      = errors.New("invalid status")
)

// InsufficientStockError names the product that ran out.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (product %d): requested %d, available %d",
		e.Name, e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type InvalidStateError struct {
	OrderID int64
	Current Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("order %d is %s: %s", e.OrderID, e.Current, ErrInvalidState)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindForbidden  ErrorKind = "forbidden"
	KindConflict   ErrorKind = "conflict"
	KindInternal   ErrorKind = "internal"
)

var classes = []struct {
	err  error
	kind ErrorKind
	code string
}{
	{ErrInvalidQuantity, KindValidation, "INVALID_QUANTITY"},
	{ErrInvalidStatus, KindValidation, "INVALID_STATUS"},
	{ErrProductNotFound, KindNotFound, "PRODUCT_NOT_FOUND"},
	{ErrCartItemNotFound, KindNotFound, "CART_ITEM_NOT_FOUND"},
	{ErrOrderNotFound, KindNotFound, "ORDER_NOT_FOUND"},
	{ErrForbidden, KindForbidden, "FORBIDDEN"},
	{ErrEmptyCart, KindConflict, "EMPTY_CART"},
	{ErrInsufficientStock, KindConflict, "INSUFFICIENT_STOCK"},
	{ErrProductUnavailable, KindConflict, "PRODUCT_UNAVAILABLE"},
	{ErrInvalidState, KindConflict, "INVALID_STATE"},
}

// Kind classifies err for transport mapping. Unknown errors are internal.
func Kind(err error) ErrorKind {
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.kind
		}
	}
	return KindInternal
}

// Code returns the stable machine-readable code for err.
func Code(err error) string {
	if err == nil {
		return "OK"
	}
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}
