// Package cart keeps a user's pending purchase lines. Adding a product with
// options already present in the cart merges the quantity into that line.
package cart

import (
	"context"
	"math"
	"time"

	"github.com/go-faster/errors"
)

// MaxQuantity is the largest quantity a line may hold.
const MaxQuantity = math.MaxInt32

// ErrDuplicateLine is returned by Repository writes that would create a
// second line for the same (user, product, options).
var ErrDuplicateLine = errors.New("duplicate cart line")

// Line is one pending-purchase intent.
type Line struct {
	ID        string
	UserID    string
	ProductID string
	Quantity  int
	Options   Options
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Owner implements access.Owned.
func (l Line) Owner() string { return l.UserID }

// Patch holds the mutable fields of UpdateLine. Nil fields are left unchanged.
type Patch struct {
	Quantity *int
	Options  *Options
}

// Repository persists cart lines. Get returns access.ErrNotFound for an
// unknown id.
type Repository interface {
	Get(ctx context.Context, id string) (*Line, error)
	// List returns the user's lines, restricted to ids when ids is non-empty.
	List(ctx context.Context, userID string, ids []string) ([]Line, error)
	ListByProduct(ctx context.Context, userID, productID string) ([]Line, error)
	Insert(ctx context.Context, line *Line) error
	AddQuantity(ctx context.Context, id string, delta int, now time.Time) (*Line, error)
	Update(ctx context.Context, line *Line) error
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context, userID string) (int64, error)
}

// Consumer removes lines consumed by a checkout.
type Consumer interface {
	// DeleteLines deletes the given lines of userID that still hold the
	// quantity of the snapshot and returns how many were deleted.
	DeleteLines(ctx context.Context, userID string, lines []Line) (int64, error)
}
