package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/verve-checkout/internal/domain/cart"
	"github.com/xenking/verve-checkout/internal/domain/order"
	"github.com/xenking/verve-checkout/internal/domain/product"
)

// --- Stubs ---

type stubOrderService struct {
	order   *order.Order
	err     error
	lastReq order.PlaceOrderRequest
	lastTo  order.Status
}

func (s *stubOrderService) PlaceOrder(_ context.Context, req order.PlaceOrderRequest) (*order.Order, error) {
	s.lastReq = req
	return s.order, s.err
}

func (s *stubOrderService) RollbackStock(_ context.Context, _ string) (*order.Order, error) {
	return s.order, s.err
}

func (s *stubOrderService) UpdateStatus(_ context.Context, _ string, next order.Status) (*order.Order, error) {
	s.lastTo = next
	return s.order, s.err
}

type stubOrderReader struct {
	order *order.Order
	err   error
}

func (s *stubOrderReader) FindByID(_ context.Context, _ string) (*order.Order, error) {
	return s.order, s.err
}

type stubProducts struct {
	byID map[string]*product.Product
}

func (s *stubProducts) List(_ context.Context) ([]product.Product, error) { return nil, nil }

func (s *stubProducts) FindByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (s *stubProducts) Create(_ context.Context, _ *product.Product) error { return nil }

type stubCarts struct {
	cart     *cart.Cart
	lastItem cart.Item
}

func (s *stubCarts) FindByUser(_ context.Context, _ string) (*cart.Cart, error) {
	return s.cart, nil
}

func (s *stubCarts) AddItem(_ context.Context, _ string, item cart.Item) (*cart.Cart, error) {
	s.lastItem = item
	return s.cart, nil
}

func newTestMux(svc *stubOrderService, reads *stubOrderReader, products *stubProducts, carts *stubCarts) *http.ServeMux {
	if reads == nil {
		reads = &stubOrderReader{}
	}
	if products == nil {
		products = &stubProducts{}
	}
	if carts == nil {
		carts = &stubCarts{}
	}
	mux := http.NewServeMux()
	New(svc, reads, products, carts).Routes(mux)
	return mux
}

func testOrder() *order.Order {
	return &order.Order{
		ID:            "o1",
		UserID:        "u1",
		Status:        order.StatusPending,
		StockDeducted: true,
		Total:         decimal.RequireFromString("73.50"),
		Items: []order.Item{
			{ProductID: "p1", Name: "Kettle", Price: decimal.RequireFromString("24.50"), Quantity: 3},
		},
	}
}

func do(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

// --- Tests ---

func TestPlaceOrder_DecodesRequest(t *testing.T) {
	svc := &stubOrderService{order: testOrder()}
	mux := newTestMux(svc, nil, nil, nil)

	rec := do(t, mux, http.MethodPost, "/api/orders", `{
		"userId": "u1",
		"items": [{"productId": "p1", "variationId": "v1", "quantity": 3}],
		"shippingAddress": {"line1": "1 Main St", "city": "Berlin", "postalCode": "10115", "country": "DE"},
		"paymentMethod": "cod"
	}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "u1", svc.lastReq.UserID)
	assert.False(t, svc.lastReq.FromCart)
	require.Len(t, svc.lastReq.Items, 1)
	assert.Equal(t, order.ItemRequest{ProductID: "p1", VariationID: "v1", Quantity: 3}, svc.lastReq.Items[0])
	assert.Equal(t, "Berlin", svc.lastReq.ShippingAddress.City)
	assert.Equal(t, "cod", svc.lastReq.PaymentMethod)

	var resp struct {
		ID            string  `json:"id"`
		Status        string  `json:"status"`
		Total         float64 `json:"total"`
		StockDeducted bool    `json:"stockDeducted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "o1", resp.ID)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, 73.5, resp.Total)
	assert.True(t, resp.StockDeducted)
}

func TestPlaceOrder_RequiresUser(t *testing.T) {
	mux := newTestMux(&stubOrderService{}, nil, nil, nil)

	rec := do(t, mux, http.MethodPost, "/api/orders", `{"fromCart": true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"empty cart", order.ErrEmptyCart, http.StatusBadRequest},
		{"empty items", order.ErrEmptyItems, http.StatusBadRequest},
		{"insufficient stock", &product.InsufficientStockError{ProductName: "Kettle"}, http.StatusConflict},
		{"missing variation", &order.MissingVariationError{ProductName: "Hoodie"}, http.StatusUnprocessableEntity},
		{"invalid quantity", &order.InvalidQuantityError{ProductID: "p1"}, http.StatusUnprocessableEntity},
		{"product not found", product.ErrNotFound, http.StatusUnprocessableEntity},
		{"tx aborted", order.ErrTxAborted, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(&stubOrderService{err: tt.err}, nil, nil, nil)
			rec := do(t, mux, http.MethodPost, "/api/orders",
				`{"userId": "u1", "items": [{"productId": "p1"}]}`)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	o := testOrder()
	o.Status = order.StatusShipped
	svc := &stubOrderService{order: o}
	mux := newTestMux(svc, nil, nil, nil)

	rec := do(t, mux, http.MethodPost, "/api/orders/o1/status", `{"status": "shipped"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, order.StatusShipped, svc.lastTo)
}

func TestUpdateOrderStatus_UnknownStatus(t *testing.T) {
	mux := newTestMux(&stubOrderService{}, nil, nil, nil)

	rec := do(t, mux, http.MethodPost, "/api/orders/o1/status", `{"status": "returned"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateOrderStatus_Illegal(t *testing.T) {
	svc := &stubOrderService{err: &order.IllegalTransitionError{From: order.StatusCancelled, To: order.StatusShipped}}
	mux := newTestMux(svc, nil, nil, nil)

	rec := do(t, mux, http.MethodPost, "/api/orders/o1/status", `{"status": "shipped"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "cancelled -> shipped")
}

func TestGetOrder_NotFound(t *testing.T) {
	mux := newTestMux(&stubOrderService{}, &stubOrderReader{err: order.ErrNotFound}, nil, nil)

	rec := do(t, mux, http.MethodGet, "/api/orders/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRollbackOrderStock(t *testing.T) {
	o := testOrder()
	o.Status = order.StatusFailed
	o.StockDeducted = false
	mux := newTestMux(&stubOrderService{order: o}, nil, nil, nil)

	rec := do(t, mux, http.MethodPost, "/api/orders/o1/rollback", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status        string `json:"status"`
		StockDeducted bool   `json:"stockDeducted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp.Status)
	assert.False(t, resp.StockDeducted)
}

func TestAddCartItem_SnapshotsVariationPrice(t *testing.T) {
	carts := &stubCarts{cart: &cart.Cart{ID: "c1", UserID: "u1"}}
	products := &stubProducts{byID: map[string]*product.Product{
		"p1": {
			ID:   "p1",
			Name: "Hoodie",
			Kind: product.KindVariable,
			Variations: []product.Variation{{
				ID:         "v1",
				Attributes: []product.Attribute{{Name: "size", Value: "XL"}},
				Price:      decimal.RequireFromString("35.00"),
				Stock:      4,
			}},
		},
	}}
	mux := newTestMux(&stubOrderService{}, nil, products, carts)

	rec := do(t, mux, http.MethodPost, "/api/carts/u1/items",
		`{"productId": "p1", "variationId": "v1", "quantity": 2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "Hoodie - XL", carts.lastItem.Name)
	assert.True(t, decimal.RequireFromString("35.00").Equal(carts.lastItem.Price))
	assert.Equal(t, 2, carts.lastItem.Quantity)
}

func TestAddCartItem_VariationRequired(t *testing.T) {
	products := &stubProducts{byID: map[string]*product.Product{
		"p1": {ID: "p1", Name: "Hoodie", Kind: product.KindVariable},
	}}
	mux := newTestMux(&stubOrderService{}, nil, products, &stubCarts{})

	rec := do(t, mux, http.MethodPost, "/api/carts/u1/items", `{"productId": "p1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
