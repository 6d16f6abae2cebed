package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/verve-checkout/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, user_id, items, total, status, stock_deducted, shipping_address, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	findOrderSQL = `SELECT id, user_id, items, total, status, stock_deducted,
			shipping_address, payment_method, created_at, updated_at
		FROM orders WHERE id = $1`

	// Inside a transaction the order row is locked for its duration, so all
	// coordinator flows for one order serialize.
	findOrderForUpdateSQL = findOrderSQL + ` FOR UPDATE`

	// Items and total are immutable after placement; only the two state
	// machine fields and the timestamp ever change.
	updateOrderSQL = `UPDATE orders
		SET status = $2, stock_deducted = $3, updated_at = $4
		WHERE id = $1`
)

var _ order.Store = (*OrderRepository)(nil)

// OrderRepository implements order persistence. The unit of work constructs
// it with lock set so reads take a row lock for the transaction's duration.
type OrderRepository struct {
	db   Querier
	lock bool
}

// NewOrderRepository returns a pool-scoped OrderRepository for plain reads.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: pool}
}

// Create persists a new order. Items and the shipping address are stored as
// JSONB snapshots.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "encode order items")
	}
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return errors.Wrap(err, "encode shipping address")
	}

	_, err = r.db.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, items, o.Total,
		o.Status, o.StockDeducted,
		addr, o.PaymentMethod,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "insert order %q", o.ID)
	}
	return nil
}

// FindByID loads an order, locking the row when transaction-scoped.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	query := findOrderSQL
	if r.lock {
		query = findOrderForUpdateSQL
	}

	var (
		o     order.Order
		items []byte
		addr  []byte
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.UserID, &items, &o.Total,
		&o.Status, &o.StockDeducted,
		&addr, &o.PaymentMethod,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find order %q", id)
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, errors.Wrapf(err, "decode items of order %q", id)
	}
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return nil, errors.Wrapf(err, "decode address of order %q", id)
	}
	return &o, nil
}

// Update writes the mutable state machine fields.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := r.db.Exec(ctx, updateOrderSQL, o.ID, o.Status, o.StockDeducted, o.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "update order %q", o.ID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}
