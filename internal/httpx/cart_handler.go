package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-marketplace-orders/internal/auth"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

type CartHandler struct {
	Service *orders.Service
}

type addCartItemReq struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  *int  `json:"quantity"`
}

type updateCartItemReq struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type cartItemResp struct {
	Message  string          `json:"message"`
	CartItem orders.CartItem `json:"cart_item"`
}

func caller(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	cart, err := h.Service.GetCart(r.Context(), caller(r).UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": cart})
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var req addCartItemReq
	if !decode(w, r, &req) {
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	item, err := h.Service.AddToCart(r.Context(), caller(r).UserID, req.ProductID, qty)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cartItemResp{Message: "Item added to cart", CartItem: item})
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r, "productId")
	if !ok {
		return
	}
	var req updateCartItemReq
	if !decode(w, r, &req) {
		return
	}
	item, err := h.Service.UpdateCartItem(r.Context(), caller(r).UserID, productID, *req.Quantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartItemResp{Message: "Cart item updated", CartItem: item})
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r, "productId")
	if !ok {
		return
	}
	if err := h.Service.RemoveFromCart(r.Context(), caller(r).UserID, productID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Item removed from cart"})
}
