package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	cartpkg "github.com/xenking/verve-checkout/internal/domain/cart"
	"github.com/xenking/verve-checkout/internal/domain/product"
)

// GetCart returns the user's cart. A user without a cart gets an empty one.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	c, err := h.carts.FindByUser(r.Context(), userID)
	if err != nil {
		zctx.From(r.Context()).Error("get cart", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if c == nil {
		c = &cartpkg.Cart{UserID: userID}
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

// AddCartItem adds a product (or a specific variation) to the user's cart,
// creating the cart lazily and snapshotting the current name and price.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	var (
		productID   string
		variationID string
		quantity    int
	)
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			v, err := d.Str()
			productID = v
			return err
		case "variationId":
			v, err := d.Str()
			variationID = v
			return err
		case "quantity":
			v, err := d.Int()
			quantity = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if quantity < 1 {
		quantity = 1
	}

	p, err := h.products.FindByID(r.Context(), productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusUnprocessableEntity, "product not found")
			return
		}
		zctx.From(r.Context()).Error("resolve product", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Snapshot name and price at add time; checkout re-reads live values.
	var (
		name  string
		price decimal.Decimal
	)
	if p.Kind == product.KindVariable {
		if variationID == "" {
			writeError(w, http.StatusUnprocessableEntity, "variation required for "+p.Name)
			return
		}
		v, ok := p.VariationByID(variationID)
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "variation not found")
			return
		}
		name = p.VariationName(v)
		price = v.Price
	} else {
		name = p.Name
		price = p.Price
	}

	c, err := h.carts.AddItem(r.Context(), userID, cartpkg.Item{
		ProductID:   productID,
		VariationID: variationID,
		Name:        name,
		Price:       price,
		Quantity:    quantity,
	})
	if err != nil {
		zctx.From(r.Context()).Error("add cart item", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

func encodeCart(e *jx.Encoder, c *cartpkg.Cart) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(c.ID) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(c.UserID) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range c.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
						if it.VariationID != "" {
							e.Field("variationId", func(e *jx.Encoder) { e.Str(it.VariationID) })
						}
						e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
						e.Field("price", func(e *jx.Encoder) { e.Float64(it.Price.InexactFloat64()) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
					})
				}
			})
		})
	})
}
