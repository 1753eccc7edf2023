// Package product is the read-only catalog used to price cart checkouts.
package product

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

// Product is a catalog item available for purchase.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Category string
	Active   bool
}

// Repository defines read operations for the catalog.
type Repository interface {
	// GetByIDs returns the active products among ids. Unknown or inactive
	// ids are omitted.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// Pricing maps products to the prices a cart checkout is composed with.
func Pricing(products []Product) map[string]order.Price {
	out := make(map[string]order.Price, len(products))
	for _, p := range products {
		out[p.ID] = order.Price{Name: p.Name, Price: p.Price}
	}
	return out
}
