package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xenking/verve-checkout/internal/domain/auth"
)

type stubKeys struct {
	byHash map[string]*auth.APIKey
}

func (s *stubKeys) FindByHash(_ context.Context, hash string) (*auth.APIKey, error) {
	k, ok := s.byHash[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return k, nil
}

func hashKey(key string, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestSecurityMiddleware(t *testing.T) {
	pepper := []byte("pepper")
	valid := hashKey("good-key", pepper)
	keys := &stubKeys{byHash: map[string]*auth.APIKey{
		valid: {ID: "k1", KeyHash: valid, Name: "test"},
	}}

	var reached bool
	wrapped := NewSecurity(keys, pepper).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"valid key", "good-key", http.StatusNoContent},
		{"wrong key", "bad-key", http.StatusUnauthorized},
		{"missing key", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached = false
			req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
			if tt.key != "" {
				req.Header.Set("api_key", tt.key)
			}
			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.want == http.StatusNoContent, reached)
		})
	}
}
