package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/verve-checkout/internal/domain/auth"
)

const (
	findAPIKeySQL = `SELECT id, key_hash, name FROM api_keys WHERE key_hash = $1`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash, name = EXCLUDED.name`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository implements auth.Repository backed by PostgreSQL.
type APIKeyRepository struct {
	db Querier
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{db: pool}
}

// FindByHash looks up an API key by its HMAC-SHA256 hex hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKey, error) {
	var k auth.APIKey
	err := r.db.QueryRow(ctx, findAPIKeySQL, hash).Scan(&k.ID, &k.KeyHash, &k.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find api key")
	}
	return &k, nil
}

// Upsert inserts or replaces a key record. Used by the seeder.
func (r *APIKeyRepository) Upsert(ctx context.Context, k *auth.APIKey) error {
	if _, err := r.db.Exec(ctx, upsertAPIKeySQL, k.ID, k.KeyHash, k.Name); err != nil {
		return errors.Wrapf(err, "upsert api key %q", k.ID)
	}
	return nil
}
