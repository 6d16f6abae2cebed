package cart

import (
	"context"

	"github.com/shopspring/decimal"
)

// Item is one line of a cart. Name and Price are snapshots taken at add
// time; checkout re-reads the live product before trusting either stock or
// price.
type Item struct {
	ProductID   string
	VariationID string // empty for simple products
	Name        string
	Price       decimal.Decimal
	Quantity    int
}

// Cart holds a user's pending items. There is at most one cart per user,
// created lazily on first add and emptied (not deleted) on checkout.
type Cart struct {
	ID     string
	UserID string
	Items  []Item
}

// Repository defines pool-scoped cart persistence for the HTTP layer.
// AddItem creates the cart if the user does not have one yet.
type Repository interface {
	FindByUser(ctx context.Context, userID string) (*Cart, error)
	AddItem(ctx context.Context, userID string, item Item) (*Cart, error)
}

// Store is the transaction-scoped view used during checkout. FindByUser
// returns (nil, nil) when the user has no cart. Clear removes all items but
// keeps the cart row.
type Store interface {
	FindByUser(ctx context.Context, userID string) (*Cart, error)
	Clear(ctx context.Context, cartID string) error
}
