package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

type AdminHandler struct {
	Service *orders.Service
}

type updateStatusReq struct {
	Status string `json:"status" validate:"required"`
}

func (h *AdminHandler) list(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParams(w, r)
	if !ok {
		return
	}
	l, err := h.Service.ListAllOrders(r.Context(), page)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderListResponse(l))
}

// updateStatus is the admin override: any status may be set, including
// moves outside the normal lifecycle.
func (h *AdminHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateStatusReq
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Service.UpdateOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResp{Message: "Order status updated", Order: o})
}
