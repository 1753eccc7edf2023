// Command seed-db fills a development database with a generated catalog and
// demo coupons.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/go-faster/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/money"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		products    int
		seed        uint64
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&products, "products", 50, "number of catalog products to generate")
	flag.Uint64Var(&seed, "seed", 42, "random seed for generated data")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, products, seed); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string, products int, seed uint64) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	store := postgres.NewStore(pool)

	catalog := generateProducts(gofakeit.New(seed), products)
	if err := store.Products().Upsert(ctx, catalog); err != nil {
		return errors.Wrap(err, "upsert products")
	}
	lg.Info("Upserted products", zap.Int("count", len(catalog)))

	for _, c := range demoCoupons(time.Now()) {
		if _, err := store.Coupons().Upsert(ctx, &c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		lg.Info("Upserted coupon", zap.String("code", c.Code), zap.String("description", c.Description))
	}
	return nil
}

// generateProducts returns n active products with stable ids for a seed.
func generateProducts(f *gofakeit.Faker, n int) []product.Product {
	out := make([]product.Product, 0, n)
	for i := range n {
		out = append(out, product.Product{
			ID:       fmt.Sprintf("prod-%04d", i+1),
			Name:     f.ProductName(),
			Price:    money.Round(decimal.NewFromFloat(f.Price(5, 500))),
			Category: f.ProductCategory(),
			Active:   true,
		})
	}
	return out
}

func demoCoupons(now time.Time) []coupon.Coupon {
	return []coupon.Coupon{
		{
			Code:        "WELCOME10",
			Kind:        coupon.KindPercentage,
			Value:       decimal.NewFromInt(10),
			MaxDiscount: lo.ToPtr(decimal.NewFromInt(50)),
			Active:      true,
			Description: "10% off, capped at 50",
		},
		{
			Code:        "FLAT25",
			Kind:        coupon.KindFixed,
			Value:       decimal.NewFromInt(25),
			MinPurchase: lo.ToPtr(decimal.NewFromInt(100)),
			Active:      true,
			Description: "25 off orders of 100 or more",
		},
		{
			Code:        "LAUNCH50",
			Kind:        coupon.KindPercentage,
			Value:       decimal.NewFromInt(50),
			UsageLimit:  lo.ToPtr(100),
			ValidUntil:  lo.ToPtr(now.AddDate(0, 1, 0)),
			Active:      true,
			Description: "50% off for the first 100 orders this month",
		},
	}
}
