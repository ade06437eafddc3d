package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type pagination struct {
	CurrentPage  int `json:"current_page"`
	TotalPages   int `json:"total_pages"`
	TotalItems   int `json:"total_items"`
	ItemsPerPage int `json:"items_per_page"`
}

type orderListResponse struct {
	Orders     []orders.Order `json:"orders"`
	Pagination pagination     `json:"pagination"`
}

func newOrderListResponse(l orders.OrderList) orderListResponse {
	return orderListResponse{
		Orders: l.Orders,
		Pagination: pagination{
			CurrentPage:  l.Page.Number,
			TotalPages:   l.TotalPages(),
			TotalItems:   l.Total,
			ItemsPerPage: l.Page.Size,
		},
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// writeDomainError maps a service error to its status. Internal errors are
// logged and replaced by a generic message.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch orders.Kind(err) {
	case orders.KindValidation, orders.KindConflict:
		status = http.StatusBadRequest
	case orders.KindNotFound:
		status = http.StatusNotFound
	case orders.KindForbidden:
		status = http.StatusForbidden
	default:
		logging.FromContext(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error", orders.Code(err))
		return
	}
	writeError(w, status, err.Error(), orders.Code(err))
}

// decode reads a JSON body into dst and runs struct validation.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err), "VALIDATION_ERROR")
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Field()+" failed "+fe.Tag())
	}
	return strings.Join(msgs, "; ")
}

// pathID parses a positive int64 URL parameter; it writes the 400 itself.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name, "INVALID_ID")
		return 0, false
	}
	return id, true
}

// pageParams reads ?page and ?limit. Missing values take the defaults and
// limit is capped; malformed or non-positive values are rejected.
func pageParams(w http.ResponseWriter, r *http.Request) (orders.Page, bool) {
	p := orders.Page{Number: 1, Size: orders.DefaultPageSize}
	q := r.URL.Query()
	for _, f := range []struct {
		name string
		dst  *int
	}{{"page", &p.Number}, {"limit", &p.Size}} {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, f.name+" must be a positive integer", "INVALID_PAGINATION")
			return orders.Page{}, false
		}
		*f.dst = n
	}
	return p.Normalize(), true
}
