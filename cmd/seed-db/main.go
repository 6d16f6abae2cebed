// Command seed-db loads the catalog JSON into PostgreSQL and registers the
// default API key. Re-running converges on the file contents.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/verve-checkout/internal/domain/auth"
	"github.com/xenking/verve-checkout/internal/domain/product"
	"github.com/xenking/verve-checkout/internal/postgres"
)

type variationJSON struct {
	ID         string              `json:"id"`
	Attributes []product.Attribute `json:"attributes"`
	Price      decimal.Decimal     `json:"price"`
	Stock      int                 `json:"stock"`
}

type productJSON struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Kind       string          `json:"kind"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	Variations []variationJSON `json:"variations"`
}

func main() {
	var (
		databaseURL  string
		catalogFile  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or VERVE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or VERVE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("VERVE_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or VERVE_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("VERVE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCatalog(ctx, postgres.NewProductRepository(pool), catalogFile); err != nil {
		return errors.Wrap(err, "seed catalog")
	}

	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedCatalog(ctx context.Context, repo *postgres.ProductRepository, catalogFile string) error {
	slog.Info("reading catalog file", slog.String("path", catalogFile))

	data, err := os.ReadFile(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}

	var entries []productJSON
	if err := json.Unmarshal(data, &entries); err != nil {
		return errors.Wrap(err, "parse catalog JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(entries)))

	for _, e := range entries {
		p := product.Product{
			ID:    e.ID,
			Name:  e.Name,
			Kind:  product.Kind(e.Kind),
			Price: e.Price,
			Stock: e.Stock,
		}
		for _, v := range e.Variations {
			p.Variations = append(p.Variations, product.Variation{
				ID:         v.ID,
				Attributes: v.Attributes,
				Price:      v.Price,
				Stock:      v.Stock,
			})
		}
		if err := repo.Upsert(ctx, &p); err != nil {
			return errors.Wrapf(err, "upsert product %s", e.ID)
		}

		slog.Info("upserted product",
			slog.String("id", e.ID),
			slog.String("name", e.Name),
			slog.Int("variations", len(e.Variations)),
		)
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if err := repo.Upsert(ctx, &auth.APIKey{
		ID:      "default",
		KeyHash: keyHash,
		Name:    "Default test key",
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"))

	return nil
}
