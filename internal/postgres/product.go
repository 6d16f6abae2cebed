package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/verve-checkout/internal/domain/product"
)

const (
	findProductSQL = `SELECT id, name, kind, price, stock FROM products WHERE id = $1`

	listProductsSQL = `SELECT id, name, kind, price, stock FROM products ORDER BY created_at, id`

	productVariationsSQL = `SELECT id, attributes, price, stock
		FROM variations WHERE product_id = $1 ORDER BY position`

	allVariationsSQL = `SELECT product_id, id, attributes, price, stock
		FROM variations ORDER BY product_id, position`

	insertProductSQL = `INSERT INTO products (id, name, kind, price, stock)
		VALUES ($1, $2, $3, $4, $5)`

	insertVariationSQL = `INSERT INTO variations (id, product_id, position, attributes, price, stock)
		VALUES ($1, $2, $3, $4, $5, $6)`

	upsertProductSQL = `INSERT INTO products (id, name, kind, price, stock)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, kind = EXCLUDED.kind,
			price = EXCLUDED.price, stock = EXCLUDED.stock`

	upsertVariationSQL = `INSERT INTO variations (id, product_id, position, attributes, price, stock)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			position = EXCLUDED.position, attributes = EXCLUDED.attributes,
			price = EXCLUDED.price, stock = EXCLUDED.stock`

	// Conditional decrements: the WHERE clause re-checks stock under the row
	// lock, so two transactions can never both consume the last units.
	deductProductSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND kind = 'simple' AND stock >= $2`

	deductVariationSQL = `UPDATE variations SET stock = stock - $3
		WHERE id = $2 AND product_id = $1 AND stock >= $3`

	restoreProductSQL = `UPDATE products SET stock = stock + $2
		WHERE id = $1 AND kind = 'simple'`

	restoreVariationSQL = `UPDATE variations SET stock = stock + $3
		WHERE id = $2 AND product_id = $1`

	productNameSQL = `SELECT name FROM products WHERE id = $1`

	variationOwnerNameSQL = `SELECT p.name FROM products p
		JOIN variations v ON v.product_id = p.id
		WHERE p.id = $1 AND v.id = $2`
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ product.Ledger     = (*ProductRepository)(nil)
)

// ProductRepository implements both the catalog reads (product.Repository)
// and the stock ledger (product.Ledger). Constructed over the pool it serves
// the HTTP layer; bound to a transaction by the unit of work it serves
// checkout and restoration.
type ProductRepository struct {
	db Querier
}

// NewProductRepository returns a pool-scoped ProductRepository.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{db: pool}
}

// FindByID loads a product together with its variations in position order.
func (r *ProductRepository) FindByID(ctx context.Context, id string) (*product.Product, error) {
	var p product.Product
	err := r.db.QueryRow(ctx, findProductSQL, id).Scan(&p.ID, &p.Name, &p.Kind, &p.Price, &p.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, product.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find product %q", id)
	}

	if p.Kind == product.KindVariable {
		p.Variations, err = r.variationsOf(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (r *ProductRepository) variationsOf(ctx context.Context, productID string) ([]product.Variation, error) {
	rows, err := r.db.Query(ctx, productVariationsSQL, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "load variations of %q", productID)
	}
	defer rows.Close()

	var out []product.Variation
	for rows.Next() {
		var (
			v     product.Variation
			attrs []byte
		)
		if err := rows.Scan(&v.ID, &attrs, &v.Price, &v.Stock); err != nil {
			return nil, errors.Wrap(err, "scan variation")
		}
		if err := json.Unmarshal(attrs, &v.Attributes); err != nil {
			return nil, errors.Wrapf(err, "decode attributes of variation %q", v.ID)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// List returns the whole catalog with variations attached.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	defer rows.Close()

	var (
		out   []product.Product
		index = make(map[string]int)
	)
	for rows.Next() {
		var p product.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Kind, &p.Price, &p.Stock); err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		index[p.ID] = len(out)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	vrows, err := r.db.Query(ctx, allVariationsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list variations")
	}
	defer vrows.Close()

	for vrows.Next() {
		var (
			productID string
			v         product.Variation
			attrs     []byte
		)
		if err := vrows.Scan(&productID, &v.ID, &attrs, &v.Price, &v.Stock); err != nil {
			return nil, errors.Wrap(err, "scan variation")
		}
		if err := json.Unmarshal(attrs, &v.Attributes); err != nil {
			return nil, errors.Wrapf(err, "decode attributes of variation %q", v.ID)
		}
		if i, ok := index[productID]; ok {
			out[i].Variations = append(out[i].Variations, v)
		}
	}
	return out, vrows.Err()
}

// Create persists a product and its variations. Variation positions follow
// slice order so insertion order survives round-trips.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	if _, err := r.db.Exec(ctx, insertProductSQL, p.ID, p.Name, p.Kind, p.Price, p.Stock); err != nil {
		return errors.Wrapf(err, "insert product %q", p.ID)
	}
	for i, v := range p.Variations {
		attrs, err := json.Marshal(v.Attributes)
		if err != nil {
			return errors.Wrapf(err, "encode attributes of variation %q", v.ID)
		}
		if _, err := r.db.Exec(ctx, insertVariationSQL, v.ID, p.ID, i, attrs, v.Price, v.Stock); err != nil {
			return errors.Wrapf(err, "insert variation %q", v.ID)
		}
	}
	return nil
}

// Upsert inserts or replaces a product and its variations. Used by seeders
// where re-running must converge on the file contents.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	if _, err := r.db.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Kind, p.Price, p.Stock); err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	for i, v := range p.Variations {
		attrs, err := json.Marshal(v.Attributes)
		if err != nil {
			return errors.Wrapf(err, "encode attributes of variation %q", v.ID)
		}
		if _, err := r.db.Exec(ctx, upsertVariationSQL, v.ID, p.ID, i, attrs, v.Price, v.Stock); err != nil {
			return errors.Wrapf(err, "upsert variation %q", v.ID)
		}
	}
	return nil
}

// Deduct decrements quantity-on-hand iff the current stock covers qty. A
// zero-row update is disambiguated with a follow-up name lookup: missing
// product/variation maps to product.ErrNotFound, anything else means the
// stock check failed.
func (r *ProductRepository) Deduct(ctx context.Context, productID, variationID string, qty int) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if variationID == "" {
		tag, err = r.db.Exec(ctx, deductProductSQL, productID, qty)
	} else {
		tag, err = r.db.Exec(ctx, deductVariationSQL, productID, variationID, qty)
	}
	if err != nil {
		return errors.Wrapf(err, "deduct stock of %q", productID)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	name, err := r.ownerName(ctx, productID, variationID)
	if err != nil {
		return err
	}
	return &product.InsufficientStockError{ProductName: name}
}

// Restore adds qty back. When the product or variation no longer exists the
// update affects zero rows and Restore returns nil: stock cannot be restored
// to a nonexistent entity.
func (r *ProductRepository) Restore(ctx context.Context, productID, variationID string, qty int) error {
	var err error
	if variationID == "" {
		_, err = r.db.Exec(ctx, restoreProductSQL, productID, qty)
	} else {
		_, err = r.db.Exec(ctx, restoreVariationSQL, productID, variationID, qty)
	}
	if err != nil {
		return errors.Wrapf(err, "restore stock of %q", productID)
	}
	return nil
}

func (r *ProductRepository) ownerName(ctx context.Context, productID, variationID string) (string, error) {
	var (
		name string
		err  error
	)
	if variationID == "" {
		err = r.db.QueryRow(ctx, productNameSQL, productID).Scan(&name)
	} else {
		err = r.db.QueryRow(ctx, variationOwnerNameSQL, productID, variationID).Scan(&name)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return "", errors.Wrapf(product.ErrNotFound, "product %q", productID)
	}
	if err != nil {
		return "", errors.Wrapf(err, "look up product %q", productID)
	}
	return name, nil
}
