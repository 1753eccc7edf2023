package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	getProductsByIDsSQL = `SELECT id, name, price, category, is_active
	FROM products WHERE id = ANY($1) AND is_active`

	upsertProductSQL = `INSERT INTO products (id, name, price, category, is_active)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		price = EXCLUDED.price,
		category = EXCLUDED.category,
		is_active = EXCLUDED.is_active`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository reads the catalog.
type ProductRepository struct {
	db DBTX
}

// NewProductRepository returns a ProductRepository on db.
func NewProductRepository(db DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByIDs returns the active products among ids.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "query products")
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Product, error) {
		var p product.Product
		err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Category, &p.Active)
		return p, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan products")
	}
	return products, nil
}

// Upsert stores products, replacing existing rows with the same id.
func (r *ProductRepository) Upsert(ctx context.Context, products []product.Product) error {
	b := &pgx.Batch{}
	for _, p := range products {
		b.Queue(upsertProductSQL, p.ID, p.Name, p.Price, p.Category, p.Active)
	}
	if err := r.db.SendBatch(ctx, b).Close(); err != nil {
		return errors.Wrap(err, "upsert products")
	}
	return nil
}
