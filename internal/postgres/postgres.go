// Package postgres implements the domain stores and the transactional unit
// of work on top of pgx.
package postgres

import (
	"context"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/verve-checkout/db"
	"github.com/xenking/verve-checkout/internal/domain/cart"
	"github.com/xenking/verve-checkout/internal/domain/order"
	"github.com/xenking/verve-checkout/internal/domain/product"
)

// Querier is the subset of pgx operations shared by *pgxpool.Pool and
// pgx.Tx. Repositories are written against it so the same code serves both
// pool-scoped reads and transaction-scoped work.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}

// txAttempts bounds the retry loop for serialization conflicts.
const txAttempts = 3

var _ order.TxRunner = (*Runner)(nil)

// Runner implements order.TxRunner on a connection pool. Each InTx call is
// one database transaction: every read and write performed through the unit
// of work commits or rolls back together.
type Runner struct {
	pool *pgxpool.Pool
}

// NewRunner returns a Runner over the given pool.
func NewRunner(pool *pgxpool.Pool) *Runner {
	return &Runner{pool: pool}
}

// InTx runs fn inside a transaction, retrying a bounded number of times on
// serialization failures and deadlocks. When retries are exhausted or the
// store cannot commit, the error carries order.ErrTxAborted; in every
// failure case zero partial effects remain.
func (r *Runner) InTx(ctx context.Context, fn func(ctx context.Context, uow order.UnitOfWork) error) error {
	var last error
	for range txAttempts {
		err := r.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		last = err
	}
	return errors.Wrapf(order.ErrTxAborted, "retries exhausted: %v", last)
}

func (r *Runner) attempt(ctx context.Context, fn func(ctx context.Context, uow order.UnitOfWork) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrapf(order.ErrTxAborted, "begin: %v", err)
	}
	// Rollback after a successful commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &unitOfWork{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if retryable(err) {
			return err
		}
		return errors.Wrapf(order.ErrTxAborted, "commit: %v", err)
	}
	return nil
}

// retryable reports whether err is a serialization failure (40001) or
// deadlock (40P01) that a fresh transaction may succeed past.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// unitOfWork binds the domain stores to one pgx transaction.
type unitOfWork struct {
	tx pgx.Tx
}

func (u *unitOfWork) Products() product.Ledger {
	return &ProductRepository{db: u.tx}
}

func (u *unitOfWork) Carts() cart.Store {
	return &CartRepository{db: u.tx}
}

func (u *unitOfWork) Orders() order.Store {
	return &OrderRepository{db: u.tx, lock: true}
}
