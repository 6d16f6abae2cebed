package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/verve-checkout/internal/domain/cart"
	"github.com/xenking/verve-checkout/internal/domain/product"
)

// Sentinel errors surfaced by order placement and lifecycle operations.
var (
	ErrNotFound   = errors.New("order not found")
	ErrEmptyCart  = errors.New("cart is empty")
	ErrEmptyItems = errors.New("items required")

	// ErrTxAborted is returned when the backing store could not commit the
	// unit of work (conflict, timeout, connectivity). No effects were
	// applied, so PlaceOrder is safe to retry.
	ErrTxAborted = errors.New("transaction aborted")
)

// MissingVariationError indicates a variable product was requested without a
// variation identifier.
type MissingVariationError struct {
	ProductName string
}

func (e *MissingVariationError) Error() string {
	return fmt.Sprintf("variation required for %s", e.ProductName)
}

// InvalidQuantityError indicates a line item carries a negative quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must not be negative for product %s", e.ProductID)
}

// Item is one immutable line of a placed order. Name and Price are locked in
// at placement time so the order survives later product edits or deletion;
// ProductID and VariationID are weak references kept for stock restoration.
type Item struct {
	ProductID   string          `json:"productId"`
	VariationID string          `json:"variationId,omitempty"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

// Address is the shipping destination snapshot stored on the order.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Order is created once at placement and afterwards mutated only through
// status transitions. Items and Total never change. StockDeducted records
// whether ledger deductions for this order are currently applied; it is the
// single source of truth for whether a rollback or cancel must restore stock.
type Order struct {
	ID              string
	UserID          string
	Items           []Item
	Total           decimal.Decimal
	Status          Status
	StockDeducted   bool
	ShippingAddress Address
	PaymentMethod   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Store defines order persistence bound to a unit of work. FindByID must
// lock the row for the duration of the transaction so that per-order flows
// serialize.
type Store interface {
	Create(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, o *Order) error
}

// UnitOfWork exposes the stores bound to one atomic transaction. Every read
// and write performed through it commits or aborts together.
type UnitOfWork interface {
	Products() product.Ledger
	Carts() cart.Store
	Orders() Store
}

// TxRunner executes fn inside a single unit of work. When fn returns an
// error the transaction aborts and no effects survive; store-level commit
// failures surface as ErrTxAborted.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}
