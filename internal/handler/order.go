package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/verve-checkout/internal/domain/order"
)

// PlaceOrder converts items from a cart or from the request body into a
// confirmed order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	req, err := decodePlaceOrder(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// GetOrder returns a single order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orderReads.FindByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// UpdateOrderStatus applies a status transition.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	var status string
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		v, err := d.Str()
		status = v
		return err
	}); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	next := order.Status(status)
	if !order.KnownStatus(next) {
		writeError(w, http.StatusBadRequest, "unknown status: "+status)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), r.PathValue("id"), next)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// RollbackOrderStock restores the order's stock deductions and marks it
// failed. Safe to call repeatedly.
func (h *Handler) RollbackOrderStock(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.RollbackStock(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func decodePlaceOrder(data []byte) (order.PlaceOrderRequest, error) {
	var req order.PlaceOrderRequest
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "userId":
			v, err := d.Str()
			req.UserID = v
			return err
		case "fromCart":
			v, err := d.Bool()
			req.FromCart = v
			return err
		case "paymentMethod":
			v, err := d.Str()
			req.PaymentMethod = v
			return err
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var it order.ItemRequest
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "productId":
						v, err := d.Str()
						it.ProductID = v
						return err
					case "variationId":
						v, err := d.Str()
						it.VariationID = v
						return err
					case "quantity":
						v, err := d.Int()
						it.Quantity = v
						return err
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				req.Items = append(req.Items, it)
				return nil
			})
		case "shippingAddress":
			return d.Obj(func(d *jx.Decoder, key string) error {
				var dst *string
				switch key {
				case "line1":
					dst = &req.ShippingAddress.Line1
				case "line2":
					dst = &req.ShippingAddress.Line2
				case "city":
					dst = &req.ShippingAddress.City
				case "region":
					dst = &req.ShippingAddress.Region
				case "postalCode":
					dst = &req.ShippingAddress.PostalCode
				case "country":
					dst = &req.ShippingAddress.Country
				default:
					return d.Skip()
				}
				v, err := d.Str()
				*dst = v
				return err
			})
		default:
			return d.Skip()
		}
	})
	return req, err
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("stockDeducted", func(e *jx.Encoder) { e.Bool(o.StockDeducted) })
		e.Field("total", func(e *jx.Encoder) { e.Float64(o.Total.InexactFloat64()) })
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(o.PaymentMethod) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
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
		e.Field("shippingAddress", func(e *jx.Encoder) {
			a := o.ShippingAddress
			e.Obj(func(e *jx.Encoder) {
				e.Field("line1", func(e *jx.Encoder) { e.Str(a.Line1) })
				if a.Line2 != "" {
					e.Field("line2", func(e *jx.Encoder) { e.Str(a.Line2) })
				}
				e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
				if a.Region != "" {
					e.Field("region", func(e *jx.Encoder) { e.Str(a.Region) })
				}
				e.Field("postalCode", func(e *jx.Encoder) { e.Str(a.PostalCode) })
				e.Field("country", func(e *jx.Encoder) { e.Str(a.Country) })
			})
		})
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.Format("2006-01-02T15:04:05Z07:00")) })
	})
}
