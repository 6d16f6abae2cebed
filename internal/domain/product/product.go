package product

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product or variation does not exist.
var ErrNotFound = errors.New("product not found")

// InsufficientStockError indicates a deduction would drive stock below zero.
type InsufficientStockError struct {
	ProductName string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", e.ProductName)
}

// Kind discriminates products that carry their own price and stock from
// products sold through concrete variations.
type Kind string

const (
	KindSimple   Kind = "simple"
	KindVariable Kind = "variable"
)

// Attribute is a single named characteristic of a variation (e.g. size: XL).
// Attributes are kept as an ordered slice: display names derived from them
// must join values in insertion order.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Variation is a concrete purchasable configuration of a variable product,
// with its own price and quantity-on-hand.
type Variation struct {
	ID         string
	Attributes []Attribute
	Price      decimal.Decimal
	Stock      int
}

// Product is the catalog aggregate. Price and Stock are meaningful only for
// KindSimple; Variations only for KindVariable. Stock fields are never
// written directly by callers — all mutation goes through the Ledger.
type Product struct {
	ID         string
	Name       string
	Kind       Kind
	Price      decimal.Decimal
	Stock      int
	Variations []Variation
}

// VariationByID looks up a variation by its stable identifier. Variations
// live in an owned slice on the aggregate; callers must never hold positions
// across mutations, only IDs.
func (p *Product) VariationByID(id string) (*Variation, bool) {
	for i := range p.Variations {
		if p.Variations[i].ID == id {
			return &p.Variations[i], true
		}
	}
	return nil, false
}

// VariationName builds the display name for a variation line: the product
// name followed by the variation's attribute values in insertion order.
func (p *Product) VariationName(v *Variation) string {
	if len(v.Attributes) == 0 {
		return p.Name
	}
	vals := make([]string, len(v.Attributes))
	for i, a := range v.Attributes {
		vals[i] = a.Value
	}
	return p.Name + " - " + strings.Join(vals, " / ")
}

// Repository defines catalog reads and writes outside any transaction.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	FindByID(ctx context.Context, id string) (*Product, error)
	Create(ctx context.Context, p *Product) error
}

// Ledger reads products and mutates quantity-on-hand inside an enclosing
// unit of work. variationID is empty for simple products.
//
// Deduct fails with *InsufficientStockError when current stock < qty; the
// implementation must use a conditional decrement ("decrement iff current
// >= qty") so concurrent deductions cannot both consume the last units.
// Restore adds qty back; if the product or variation has been deleted it is
// a no-op, since stock cannot be restored to a nonexistent entity.
type Ledger interface {
	FindByID(ctx context.Context, id string) (*Product, error)
	Deduct(ctx context.Context, productID, variationID string, qty int) error
	Restore(ctx context.Context, productID, variationID string, qty int) error
}
