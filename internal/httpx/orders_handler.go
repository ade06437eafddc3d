package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

type OrdersHandler struct {
	Service *orders.Service
}

type orderResp struct {
	Message string       `json:"message,omitempty"`
	Order   orders.Order `json:"order"`
}

type statusResp struct {
	OrderID   int64         `json:"order_id"`
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	o, err := h.Service.CreateOrder(r.Context(), caller(r).UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderResp{Message: "Order created successfully", Order: o})
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParams(w, r)
	if !ok {
		return
	}
	l, err := h.Service.ListOrders(r.Context(), caller(r).UserID, page)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderListResponse(l))
}

func (h *OrdersHandler) listSeller(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParams(w, r)
	if !ok {
		return
	}
	l, err := h.Service.ListSellerOrders(r.Context(), caller(r).UserID, page)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderListResponse(l))
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.Service.GetOrder(r.Context(), caller(r).UserID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResp{Order: o})
}

func (h *OrdersHandler) status(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	v, err := h.Service.OrderStatus(r.Context(), caller(r).UserID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResp{
		OrderID:   v.OrderID,
		Status:    v.Status,
		UpdatedAt: v.UpdatedAt,
	})
}

func (h *OrdersHandler) pay(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.Service.PayOrder(r.Context(), caller(r).UserID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResp{Message: "Payment processed successfully", Order: o})
}
