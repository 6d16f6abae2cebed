package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/verve-checkout/internal/domain/cart"
)

const (
	findCartSQL = `SELECT id, user_id FROM carts WHERE user_id = $1`

	cartItemsSQL = `SELECT product_id, variation_id, name, price, quantity
		FROM cart_items WHERE cart_id = $1 ORDER BY id`

	upsertCartSQL = `INSERT INTO carts (id, user_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = now()
		RETURNING id`

	bumpCartItemSQL = `UPDATE cart_items SET quantity = quantity + $4
		WHERE cart_id = $1 AND product_id = $2 AND variation_id IS NOT DISTINCT FROM $3`

	insertCartItemSQL = `INSERT INTO cart_items (id, cart_id, product_id, variation_id, name, price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	clearCartSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	touchCartSQL = `UPDATE carts SET updated_at = now() WHERE id = $1`
)

var (
	_ cart.Repository = (*CartRepository)(nil)
	_ cart.Store      = (*CartRepository)(nil)
)

// CartRepository implements cart persistence. Bound to the pool it serves
// the HTTP layer (cart.Repository); bound to a transaction by the unit of
// work it serves checkout (cart.Store).
type CartRepository struct {
	db Querier
}

// NewCartRepository returns a pool-scoped CartRepository.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{db: pool}
}

// FindByUser loads the user's cart with its items. It returns (nil, nil)
// when the user has no cart yet — callers treat that the same as an empty
// cart.
func (r *CartRepository) FindByUser(ctx context.Context, userID string) (*cart.Cart, error) {
	var c cart.Cart
	err := r.db.QueryRow(ctx, findCartSQL, userID).Scan(&c.ID, &c.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find cart of user %q", userID)
	}

	rows, err := r.db.Query(ctx, cartItemsSQL, c.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "load items of cart %q", c.ID)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it          cart.Item
			variationID *string
		)
		if err := rows.Scan(&it.ProductID, &variationID, &it.Name, &it.Price, &it.Quantity); err != nil {
			return nil, errors.Wrap(err, "scan cart item")
		}
		if variationID != nil {
			it.VariationID = *variationID
		}
		c.Items = append(c.Items, it)
	}
	return &c, rows.Err()
}

// AddItem creates the user's cart when absent, then either bumps the
// quantity of the matching line or inserts a new one with the add-time
// name/price snapshot.
func (r *CartRepository) AddItem(ctx context.Context, userID string, item cart.Item) (*cart.Cart, error) {
	var cartID string
	err := r.db.QueryRow(ctx, upsertCartSQL, uuid.New().String(), userID).Scan(&cartID)
	if err != nil {
		return nil, errors.Wrapf(err, "upsert cart of user %q", userID)
	}

	tag, err := r.db.Exec(ctx, bumpCartItemSQL, cartID, item.ProductID, nullable(item.VariationID), item.Quantity)
	if err != nil {
		return nil, errors.Wrap(err, "bump cart item")
	}
	if tag.RowsAffected() == 0 {
		_, err = r.db.Exec(ctx, insertCartItemSQL,
			uuid.New().String(), cartID,
			item.ProductID, nullable(item.VariationID),
			item.Name, item.Price, item.Quantity,
		)
		if err != nil {
			return nil, errors.Wrap(err, "insert cart item")
		}
	}

	return r.FindByUser(ctx, userID)
}

// Clear empties the cart but keeps the cart row.
func (r *CartRepository) Clear(ctx context.Context, cartID string) error {
	if _, err := r.db.Exec(ctx, clearCartSQL, cartID); err != nil {
		return errors.Wrapf(err, "clear cart %q", cartID)
	}
	if _, err := r.db.Exec(ctx, touchCartSQL, cartID); err != nil {
		return errors.Wrapf(err, "touch cart %q", cartID)
	}
	return nil
}

// nullable maps the domain's empty-string variation ID to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
