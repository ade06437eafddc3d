package httpx_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-marketplace-orders/internal/auth"
	"github.com/ariefcatur/go-marketplace-orders/internal/httpx"
	"github.com/ariefcatur/go-marketplace-orders/internal/memstore"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	buyerA int64 = 1
	buyerB int64 = 2
	seller int64 = 50
	admin  int64 = 99
)

type env struct {
	h      http.Handler
	store  *memstore.Store
	m      *metrics.Metrics
	tokens map[int64]string
}

func newEnv(t *testing.T, limiter httpx.Limiter) *env {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	st := memstore.New()
	v := auth.NewVerifier("test-secret")

	r := httpx.NewRouter(httpx.RouterConfig{Metrics: m, Gatherer: reg})
	api := &httpx.API{
		Service:  &orders.Service{Store: st, Metrics: m, Producer: "test"},
		Verifier: v,
		Limiter:  limiter,
		Metrics:  m,
	}
	api.Register(r)

	e := &env{h: r, store: st, m: m, tokens: map[int64]string{}}
	for id, role := range map[int64]string{
		buyerA: auth.RoleBuyer, buyerB: auth.RoleBuyer, seller: auth.RoleSeller, admin: auth.RoleAdmin,
	} {
		tok, err := v.Issue(auth.Identity{UserID: id, Role: role}, time.Hour)
		require.NoError(t, err)
		e.tokens[id] = tok
	}
	return e
}

func (e *env) product(name, price string, stock int) int64 {
	return e.store.AddProduct(orders.Product{
		Name: name, Price: decimal.RequireFromString(price), StockQuantity: stock, OwnerID: seller,
	}).ID
}

func (e *env) do(t *testing.T, user int64, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if tok, ok := e.tokens[user]; ok {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errResp struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type orderResp struct {
	Message string       `json:"message"`
	Order   orders.Order `json:"order"`
}

type listResp struct {
	Orders     []orders.Order `json:"orders"`
	Pagination struct {
		CurrentPage  int `json:"current_page"`
		TotalPages   int `json:"total_pages"`
		TotalItems   int `json:"total_items"`
		ItemsPerPage int `json:"items_per_page"`
	} `json:"pagination"`
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rec.Code, rec.Body.String())
	assert.Equal(t, code, decodeAs[errResp](t, rec).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, 0, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = e.do(t, 0, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "marketplace_http_requests_total")
}

func TestAuthAndRoles(t *testing.T) {
	e := newEnv(t, nil)

	assertError(t, e.do(t, 0, http.MethodGet, "/cart", nil), http.StatusUnauthorized, "UNAUTHENTICATED")
	assertError(t, e.do(t, buyerA, http.MethodGet, "/orders/seller", nil), http.StatusForbidden, "FORBIDDEN")
	assertError(t, e.do(t, seller, http.MethodGet, "/admin/orders", nil), http.StatusForbidden, "FORBIDDEN")
	assert.Equal(t, http.StatusOK, e.do(t, admin, http.MethodGet, "/admin/orders", nil).Code)
}

func TestCartEndpoints(t *testing.T) {
	e := newEnv(t, nil)
	pen := e.product("Pen", "10.50", 5)

	rec := e.do(t, buyerA, http.MethodPost, "/cart", map[string]any{"productId": pen, "quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decodeAs[struct {
		Message  string          `json:"message"`
		CartItem orders.CartItem `json:"cart_item"`
	}](t, rec)
	assert.Equal(t, 2, added.CartItem.Quantity)
	assert.NotEmpty(t, added.Message)

	// quantity defaults to one and accumulates
	rec = e.do(t, buyerA, http.MethodPost, "/cart", map[string]any{"productId": pen})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, buyerA, http.MethodGet, "/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cart := decodeAs[struct {
		Cart orders.Cart `json:"cart"`
	}](t, rec).Cart
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, 1, cart.ItemCount)
	assert.True(t, decimal.RequireFromString("31.5").Equal(cart.TotalAmount), cart.TotalAmount.String())

	assertError(t, e.do(t, buyerA, http.MethodPost, "/cart", map[string]any{"productId": pen, "quantity": 3}),
		http.StatusBadRequest, "INSUFFICIENT_STOCK")
	assertError(t, e.do(t, buyerA, http.MethodPost, "/cart", map[string]any{"productId": pen, "quantity": 0}),
		http.StatusBadRequest, "INVALID_QUANTITY")
	assertError(t, e.do(t, buyerA, http.MethodPost, "/cart", map[string]any{"quantity": 1}),
		http.StatusBadRequest, "VALIDATION_ERROR")
	assertError(t, e.do(t, buyerA, http.MethodPost, "/cart", map[string]any{"productId": 404}),
		http.StatusNotFound, "PRODUCT_NOT_FOUND")

	path := fmt.Sprintf("/cart/%d", pen)
	rec = e.do(t, buyerA, http.MethodPut, path, map[string]any{"quantity": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assertError(t, e.do(t, buyerA, http.MethodPut, path, map[string]any{}), http.StatusBadRequest, "VALIDATION_ERROR")
	assertError(t, e.do(t, buyerB, http.MethodPut, path, map[string]any{"quantity": 1}),
		http.StatusNotFound, "CART_ITEM_NOT_FOUND")
	assertError(t, e.do(t, buyerA, http.MethodPut, "/cart/abc", map[string]any{"quantity": 1}),
		http.StatusBadRequest, "INVALID_ID")

	assert.Equal(t, http.StatusOK, e.do(t, buyerA, http.MethodDelete, path, nil).Code)
	assertError(t, e.do(t, buyerA, http.MethodDelete, path, nil), http.StatusNotFound, "CART_ITEM_NOT_FOUND")
}

func TestCheckoutAndPayFlow(t *testing.T) {
	e := newEnv(t, nil)
	pen := e.product("Pen", "10.00", 5)
	cup := e.product("Cup", "4.25", 2)

	assertError(t, e.do(t, buyerA, http.MethodPost, "/orders", nil), http.StatusBadRequest, "EMPTY_CART")

	e.do(t, buyerA, http.MethodPost, "/cart", map[string]any{"productId": pen, "quantity": 2})
	e.do(t, buyerA, http.MethodPost, "/cart", map[string]any{"productId": cup, "quantity": 1})

	rec := e.do(t, buyerA, http.MethodPost, "/orders", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeAs[orderResp](t, rec).Order
	assert.Equal(t, orders.StatusPending, created.Status)
	assert.Len(t, created.Items, 2)
	assert.True(t, decimal.RequireFromString("24.25").Equal(created.TotalAmount))

	cartRec := e.do(t, buyerA, http.MethodGet, "/cart", nil)
	assert.Empty(t, decodeAs[struct {
		Cart orders.Cart `json:"cart"`
	}](t, cartRec).Cart.Items)

	id := created.ID
	assertError(t, e.do(t, buyerB, http.MethodGet, fmt.Sprintf("/orders/%d", id), nil), http.StatusNotFound, "ORDER_NOT_FOUND")
	assertError(t, e.do(t, buyerB, http.MethodGet, fmt.Sprintf("/orders/%d/status", id), nil), http.StatusNotFound, "ORDER_NOT_FOUND")
	assertError(t, e.do(t, buyerB, http.MethodPut, fmt.Sprintf("/orders/%d/pay", id), nil), http.StatusForbidden, "FORBIDDEN")
	assertError(t, e.do(t, buyerA, http.MethodPut, "/orders/777/pay", nil), http.StatusNotFound, "ORDER_NOT_FOUND")

	rec = e.do(t, buyerA, http.MethodPut, fmt.Sprintf("/orders/%d/pay", id), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, orders.StatusPaid, decodeAs[orderResp](t, rec).Order.Status)
	assertError(t, e.do(t, buyerA, http.MethodPut, fmt.Sprintf("/orders/%d/pay", id), nil), http.StatusBadRequest, "INVALID_STATE")

	rec = e.do(t, buyerA, http.MethodGet, fmt.Sprintf("/orders/%d/status", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeAs[map[string]any](t, rec)
	assert.Equal(t, "paid", st["status"])
	assert.EqualValues(t, id, st["order_id"])
	assert.NotContains(t, st, "user_id")

	rec = e.do(t, buyerA, http.MethodGet, fmt.Sprintf("/orders/%d", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAs[orderResp](t, rec).Order.Items, 2)

	assert.Equal(t, float64(1), testutil.ToFloat64(e.m.HTTPRequests.WithLabelValues(http.MethodGet, "/orders/{id}", "404")))
}

func TestCheckoutInsufficientStock(t *testing.T) {
	e := newEnv(t, nil)
	pen := e.product("Pen", "1.00", 3)

	e.do(t, buyerA, http.MethodPost, "/cart", map[string]any{"productId": pen, "quantity": 3})
	require.NoError(t, e.store.SetStock(pen, 1))

	rec := e.do(t, buyerA, http.MethodPost, "/orders", nil)
	assertError(t, rec, http.StatusBadRequest, "INSUFFICIENT_STOCK")
	assert.Contains(t, decodeAs[errResp](t, rec).Error, "Pen")
}

func TestOrderListsAndPagination(t *testing.T) {
	e := newEnv(t, nil)
	pen := e.product("Pen", "2.00", 100)
	other := e.store.AddProduct(orders.Product{
		Name: "Mug", Price: decimal.RequireFromString("3.00"), StockQuantity: 10, OwnerID: 77,
	}).ID

	for i := 0; i < 3; i++ {
		e.do(t, buyerA, http.MethodPost, "/cart", map[string]any{"productId": pen})
		e.do(t, buyerA, http.MethodPost, "/cart", map[string]any{"productId": other})
		require.Equal(t, http.StatusCreated, e.do(t, buyerA, http.MethodPost, "/orders", nil).Code)
	}

	rec := e.do(t, buyerA, http.MethodGet, "/orders?page=2&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	l := decodeAs[listResp](t, rec)
	assert.Len(t, l.Orders, 1)
	assert.Equal(t, 2, l.Pagination.CurrentPage)
	assert.Equal(t, 2, l.Pagination.TotalPages)
	assert.Equal(t, 3, l.Pagination.TotalItems)
	assert.Equal(t, 2, l.Pagination.ItemsPerPage)

	rec = e.do(t, buyerA, http.MethodGet, "/orders?limit=500", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orders.MaxPageSize, decodeAs[listResp](t, rec).Pagination.ItemsPerPage)

	rec = e.do(t, buyerA, http.MethodGet, "/orders?page=922337203685477582&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	far := decodeAs[listResp](t, rec)
	assert.Empty(t, far.Orders)
	assert.Equal(t, orders.MaxPageNumber, far.Pagination.CurrentPage)
	assert.Equal(t, 3, far.Pagination.TotalItems)

	for _, q := range []string{"page=0", "page=x", "limit=-1", "page=99999999999999999999"} {
		assertError(t, e.do(t, buyerA, http.MethodGet, "/orders?"+q, nil), http.StatusBadRequest, "INVALID_PAGINATION")
	}

	rec = e.do(t, buyerB, http.MethodGet, "/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, decodeAs[listResp](t, rec).Orders)
	assert.True(t, strings.Contains(rec.Body.String(), `"orders":[]`))

	rec = e.do(t, seller, http.MethodGet, "/orders/seller", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sl := decodeAs[listResp](t, rec)
	require.Len(t, sl.Orders, 3)
	for _, o := range sl.Orders {
		require.Len(t, o.Items, 1)
		assert.Equal(t, pen, o.Items[0].ProductID)
	}

	rec = e.do(t, admin, http.MethodGet, "/admin/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decodeAs[listResp](t, rec).Pagination.TotalItems)
}

func TestAdminStatusOverride(t *testing.T) {
	e := newEnv(t, nil)
	pen := e.product("Pen", "2.00", 5)
	e.do(t, buyerA, http.MethodPost, "/cart", map[string]any{"productId": pen})
	id := decodeAs[orderResp](t, e.do(t, buyerA, http.MethodPost, "/orders", nil)).Order.ID
	path := fmt.Sprintf("/admin/orders/%d/status", id)

	assertError(t, e.do(t, admin, http.MethodPut, path, map[string]any{"status": "lost"}), http.StatusBadRequest, "INVALID_STATUS")
	assertError(t, e.do(t, admin, http.MethodPut, path, map[string]any{}), http.StatusBadRequest, "VALIDATION_ERROR")
	assertError(t, e.do(t, admin, http.MethodPut, "/admin/orders/999/status", map[string]any{"status": "paid"}),
		http.StatusNotFound, "ORDER_NOT_FOUND")

	rec := e.do(t, admin, http.MethodPut, path, map[string]any{"status": "delivered"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, orders.StatusDelivered, decodeAs[orderResp](t, rec).Order.Status)
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := newEnv(t, redisx.NewRateLimiter(rdb, 1, time.Minute))

	assertError(t, e.do(t, buyerA, http.MethodPost, "/orders", nil), http.StatusBadRequest, "EMPTY_CART")
	rec := e.do(t, buyerA, http.MethodPost, "/orders", nil)
	assertError(t, rec, http.StatusTooManyRequests, "RATE_LIMITED")
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// limits are per caller and per route
	assertError(t, e.do(t, buyerB, http.MethodPost, "/orders", nil), http.StatusBadRequest, "EMPTY_CART")
	assertError(t, e.do(t, buyerA, http.MethodPut, "/orders/1/pay", nil), http.StatusNotFound, "ORDER_NOT_FOUND")
	assert.Equal(t, float64(1), testutil.ToFloat64(e.m.RateLimited.WithLabelValues("POST /orders")))

	mr.Close()
	assertError(t, e.do(t, buyerA, http.MethodPost, "/orders", nil), http.StatusBadRequest, "EMPTY_CART")
}
