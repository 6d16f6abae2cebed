// Command inventory-import applies warehouse restock feeds to the catalog.
//
// Each feed is a gzipped CSV of "product_id,variation_id,quantity" lines
// (variation_id empty for simple products). Warehouses export with
// at-least-once semantics, so feeds contain duplicate lines; a bloom filter
// per file drops repeats, keeping the first occurrence. Files are scanned
// concurrently, merged, and applied as stock increments.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/verve-checkout/internal/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.0001
	progressEvery = 1_000_000
)

// restockKey identifies one stock bucket across feeds.
type restockKey struct {
	productID   string
	variationID string
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.csv.gz restock feeds")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("inventory import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("inventory import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
	if err != nil {
		return errors.Wrap(err, "glob feeds")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.csv.gz feeds in %s", dataDir)
	}

	slog.Info("scanning feeds", slog.Int("files", len(files)))

	restocks, err := scanFeeds(ctx, files)
	if err != nil {
		return errors.Wrap(err, "scan feeds")
	}

	slog.Info("restocks merged", slog.Int("buckets", len(restocks)))

	if len(restocks) == 0 {
		slog.Info("nothing to apply")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return applyRestocks(ctx, postgres.NewProductRepository(pool), restocks)
}

// scanFeeds reads all feed files concurrently and merges per-bucket sums.
func scanFeeds(ctx context.Context, files []string) (map[restockKey]int, error) {
	var (
		mu     sync.Mutex
		merged = make(map[restockKey]int)
	)

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(scanFeedFile(ctx, i, f, &mu, merged))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return merged, nil
}

func scanFeedFile(ctx context.Context, idx int, path string, mu *sync.Mutex, merged map[restockKey]int) func() error {
	return func() error {
		seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		local := make(map[restockKey]int)

		var count, skipped uint64
		if err := streamGzFile(ctx, path, func(line string) {
			count++
			if count%progressEvery == 0 {
				slog.Info("scan progress", slog.Int("file", idx+1), slog.Uint64("lines", count))
			}

			if seen.TestAndAddString(line) {
				skipped++
				return
			}

			key, qty, ok := parseLine(line)
			if !ok {
				slog.Warn("malformed feed line", slog.Int("file", idx+1), slog.String("line", line))
				return
			}
			local[key] += qty
		}); err != nil {
			return errors.Wrapf(err, "scan file %d", idx+1)
		}

		slog.Info("scan complete",
			slog.Int("file", idx+1),
			slog.Uint64("lines", count),
			slog.Uint64("duplicates", skipped),
			slog.Int("buckets", len(local)),
		)

		mu.Lock()
		for key, qty := range local {
			merged[key] += qty
		}
		mu.Unlock()
		return nil
	}
}

// parseLine splits "product_id,variation_id,quantity". Zero and negative
// quantities are rejected: feeds only ever report deliveries.
func parseLine(line string) (restockKey, int, bool) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return restockKey{}, 0, false
	}
	qty, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil || qty <= 0 {
		return restockKey{}, 0, false
	}
	key := restockKey{
		productID:   strings.TrimSpace(parts[0]),
		variationID: strings.TrimSpace(parts[1]),
	}
	if key.productID == "" {
		return restockKey{}, 0, false
	}
	return key, qty, true
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// applyRestocks increments stock bucket by bucket. Restore tolerates rows
// deleted since the feed was exported, so a stale feed cannot fail the run.
func applyRestocks(ctx context.Context, repo *postgres.ProductRepository, restocks map[restockKey]int) error {
	slog.Info("applying restocks", slog.Int("buckets", len(restocks)))

	applied := 0
	for key, qty := range restocks {
		if err := repo.Restore(ctx, key.productID, key.variationID, qty); err != nil {
			return errors.Wrapf(err, "restock product %s", key.productID)
		}

		applied++
		if applied%100 == 0 || applied == len(restocks) {
			slog.Info("apply progress", slog.Int("applied", applied), slog.Int("total", len(restocks)))
		}
	}

	return nil
}
