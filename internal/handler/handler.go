// Package handler exposes the checkout core over HTTP. Requests and
// responses are encoded with jx; business rules stay in the domain packages.
package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/verve-checkout/internal/domain/cart"
	"github.com/xenking/verve-checkout/internal/domain/order"
	"github.com/xenking/verve-checkout/internal/domain/product"
)

// OrderService is the coordinator surface the HTTP layer depends on.
type OrderService interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
	RollbackStock(ctx context.Context, orderID string) (*order.Order, error)
	UpdateStatus(ctx context.Context, orderID string, next order.Status) (*order.Order, error)
}

// OrderReader provides plain (non-locking) order reads.
type OrderReader interface {
	FindByID(ctx context.Context, id string) (*order.Order, error)
}

// Handler routes API requests to the order service and the catalog/cart
// repositories.
type Handler struct {
	orders     OrderService
	orderReads OrderReader
	products   product.Repository
	carts      cart.Repository
}

// New constructs a Handler with the required dependencies.
func New(orders OrderService, orderReads OrderReader, products product.Repository, carts cart.Repository) *Handler {
	return &Handler{
		orders:     orders,
		orderReads: orderReads,
		products:   products,
		carts:      carts,
	}
}

// Routes registers the API endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	mux.HandleFunc("GET /api/carts/{userID}", h.GetCart)
	mux.HandleFunc("POST /api/carts/{userID}/items", h.AddCartItem)
	mux.HandleFunc("POST /api/orders", h.PlaceOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /api/orders/{id}/status", h.UpdateOrderStatus)
	mux.HandleFunc("POST /api/orders/{id}/rollback", h.RollbackOrderStock)
}

// writeJSON encodes a response body with jx and writes it with the given
// status code.
func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := &jx.Encoder{}
	encode(e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

// writeDomainError maps domain errors to HTTP responses. Validation problems
// are 4xx with the domain message; anything unexpected is logged and hidden
// behind a generic 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		stockErr *product.InsufficientStockError
		varErr   *order.MissingVariationError
		qtyErr   *order.InvalidQuantityError
		transErr *order.IllegalTransitionError
	)
	switch {
	case errors.Is(err, order.ErrEmptyCart), errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.As(err, &stockErr):
		writeError(w, http.StatusConflict, stockErr.Error())
	case errors.As(err, &varErr):
		writeError(w, http.StatusUnprocessableEntity, varErr.Error())
	case errors.As(err, &qtyErr):
		writeError(w, http.StatusUnprocessableEntity, qtyErr.Error())
	case errors.As(err, &transErr):
		writeError(w, http.StatusConflict, transErr.Error())
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrTxAborted):
		writeError(w, http.StatusServiceUnavailable, "could not complete the operation, please retry")
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
