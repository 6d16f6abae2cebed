package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/verve-checkout/internal/domain/product"
)

// ListProducts returns the whole catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("list products", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range products {
				encodeProduct(e, &products[i])
			}
		})
	})
}

// GetProduct returns a single product with its variations.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.FindByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		zctx.From(r.Context()).Error("get product", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("kind", func(e *jx.Encoder) { e.Str(string(p.Kind)) })
		if p.Kind == product.KindSimple {
			e.Field("price", func(e *jx.Encoder) { e.Float64(p.Price.InexactFloat64()) })
			e.Field("stock", func(e *jx.Encoder) { e.Int(p.Stock) })
			return
		}
		e.Field("variations", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range p.Variations {
					v := &p.Variations[i]
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Str(v.ID) })
						e.Field("price", func(e *jx.Encoder) { e.Float64(v.Price.InexactFloat64()) })
						e.Field("stock", func(e *jx.Encoder) { e.Int(v.Stock) })
						e.Field("attributes", func(e *jx.Encoder) {
							e.Arr(func(e *jx.Encoder) {
								for _, a := range v.Attributes {
									e.Obj(func(e *jx.Encoder) {
										e.Field("name", func(e *jx.Encoder) { e.Str(a.Name) })
										e.Field("value", func(e *jx.Encoder) { e.Str(a.Value) })
									})
								}
							})
						})
					})
				}
			})
		})
	})
}
