// Command coupon-import bulk-loads coupon definitions from gzip-compressed
// JSON Lines files.
//
// Each line holds one coupon:
//
//	{"code":"SPRING10","discount_type":"percentage","discount_value":"10","max_discount":"50","valid_until":"2026-06-01T00:00:00Z"}
//
// Codes are matched exactly. When a code appears more than once across the
// inputs only its first occurrence (in argument and line order) is imported.
// Existing coupons keep their used_count.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		batchSize   int
		dryRun      bool
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch", 500, "coupons per upsert batch")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and validate without writing")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	files := flag.Args()
	switch {
	case len(files) == 0:
		lg.Fatal("Usage: coupon-import [flags] coupons1.jsonl.gz [coupons2.jsonl.gz ...]")
	case databaseURL == "" && !dryRun:
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	case batchSize <= 0:
		lg.Fatal("Batch size must be positive", zap.Int("batch", batchSize))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, files, batchSize, dryRun); err != nil {
		lg.Fatal("Coupon import failed", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string, files []string, batchSize int, dryRun bool) error {
	res, err := load(ctx, lg, files)
	if err != nil {
		return err
	}
	lg.Info("Parsed coupons",
		zap.Int("files", len(files)),
		zap.Int("unique", len(res.Coupons)),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("invalid", res.Invalid),
	)
	if dryRun || len(res.Coupons) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewStore(pool).Coupons()
	var written int
	for _, chunk := range lo.Chunk(res.Coupons, batchSize) {
		n, err := repo.UpsertBatch(ctx, chunk)
		if err != nil {
			return errors.Wrapf(err, "upsert batch at %d", written)
		}
		written += n
		lg.Info("Write progress", zap.Int("written", written), zap.Int("total", len(res.Coupons)))
	}
	return nil
}
