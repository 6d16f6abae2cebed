package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrKeyNotFound is returned when no API key matches the given hash.
var ErrKeyNotFound = errors.New("api key not found")

// APIKey identifies an authenticated API client. KeyHash is the hex-encoded
// HMAC-SHA256 of the raw key; raw keys are never stored.
type APIKey struct {
	ID      string
	KeyHash string
	Name    string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKey, error)
}
