package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"

	"github.com/xenking/storefront/internal/domain/access"
	"github.com/xenking/storefront/internal/domain/cart"
)

const mergeKeyConstraint = "cart_lines_merge_key"

const cartColumns = `id, user_id, product_id, quantity, options, created_at, updated_at`

const (
	getCartLineSQL = `SELECT ` + cartColumns + ` FROM cart_lines WHERE id = $1`

	listCartLinesSQL = `SELECT ` + cartColumns + ` FROM cart_lines
	WHERE user_id = $1 AND (cardinality($2::text[]) = 0 OR id = ANY($2))
	ORDER BY created_at, id`

	listCartLinesByProductSQL = `SELECT ` + cartColumns + ` FROM cart_lines
	WHERE user_id = $1 AND product_id = $2
	ORDER BY created_at, id`

	insertCartLineSQL = `INSERT INTO cart_lines
	(id, user_id, product_id, quantity, options, options_key, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	addCartQuantitySQL = `UPDATE cart_lines
	SET quantity = quantity + $2, updated_at = $3
	WHERE id = $1
	RETURNING ` + cartColumns

	updateCartLineSQL = `UPDATE cart_lines
	SET quantity = $2, options = $3, options_key = $4, updated_at = $5
	WHERE id = $1`

	deleteCartLineSQL = `DELETE FROM cart_lines WHERE id = $1`

	clearCartSQL = `DELETE FROM cart_lines WHERE user_id = $1`

	deleteCartLinesSQL = `DELETE FROM cart_lines c
USING unnest($2::text[], $3::int[]) AS s(id, quantity)
WHERE c.user_id = $1 AND c.id = s.id AND c.quantity = s.quantity`
)

var (
	_ cart.Repository = (*CartRepository)(nil)
	_ cart.Consumer   = (*CartRepository)(nil)
)

// CartRepository stores cart lines. Uniqueness of (user, product, options)
// is enforced by the cart_lines_merge_key index.
type CartRepository struct {
	db DBTX
}

// NewCartRepository returns a CartRepository on db.
func NewCartRepository(db DBTX) *CartRepository {
	return &CartRepository{db: db}
}

// Get returns the line with id or access.ErrNotFound.
func (r *CartRepository) Get(ctx context.Context, id string) (*cart.Line, error) {
	l, err := scanCartLine(r.db.QueryRow(ctx, getCartLineSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, access.ErrNotFound
		}
		return nil, errors.Wrap(err, "get cart line")
	}
	return l, nil
}

// List returns the user's lines in insertion order, restricted to ids when
// ids is non-empty.
func (r *CartRepository) List(ctx context.Context, userID string, ids []string) ([]cart.Line, error) {
	if ids == nil {
		ids = []string{}
	}
	return r.query(ctx, listCartLinesSQL, userID, ids)
}

// ListByProduct returns the user's lines for productID.
func (r *CartRepository) ListByProduct(ctx context.Context, userID, productID string) ([]cart.Line, error) {
	return r.query(ctx, listCartLinesByProductSQL, userID, productID)
}

// Insert stores a new line. A line with the same merge key yields
// cart.ErrDuplicateLine.
func (r *CartRepository) Insert(ctx context.Context, l *cart.Line) error {
	if _, err := r.db.Exec(ctx, insertCartLineSQL,
		l.ID, l.UserID, l.ProductID, l.Quantity, jsonArg(l.Options), l.Options.Key(), l.CreatedAt, l.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err, mergeKeyConstraint) {
			return cart.ErrDuplicateLine
		}
		return errors.Wrap(err, "insert cart line")
	}
	return nil
}

// AddQuantity increments the quantity of a line atomically.
func (r *CartRepository) AddQuantity(ctx context.Context, id string, delta int, now time.Time) (*cart.Line, error) {
	l, err := scanCartLine(r.db.QueryRow(ctx, addCartQuantitySQL, id, delta, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, access.ErrNotFound
		}
		return nil, errors.Wrap(err, "add cart quantity")
	}
	return l, nil
}

// Update overwrites quantity and options of a line.
func (r *CartRepository) Update(ctx context.Context, l *cart.Line) error {
	tag, err := r.db.Exec(ctx, updateCartLineSQL,
		l.ID, l.Quantity, jsonArg(l.Options), l.Options.Key(), l.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, mergeKeyConstraint) {
			return cart.ErrDuplicateLine
		}
		return errors.Wrap(err, "update cart line")
	}
	if tag.RowsAffected() == 0 {
		return access.ErrNotFound
	}
	return nil
}

// Delete removes a line.
func (r *CartRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, deleteCartLineSQL, id); err != nil {
		return errors.Wrap(err, "delete cart line")
	}
	return nil
}

// Clear removes every line of userID.
func (r *CartRepository) Clear(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx, clearCartSQL, userID)
	if err != nil {
		return 0, errors.Wrap(err, "clear cart")
	}
	return tag.RowsAffected(), nil
}

// DeleteLines removes the given lines of userID whose quantity still matches
// the snapshot. Lines added or merged into since then are kept.
func (r *CartRepository) DeleteLines(ctx context.Context, userID string, lines []cart.Line) (int64, error) {
	ids := lo.Map(lines, func(l cart.Line, _ int) string { return l.ID })
	quantities := lo.Map(lines, func(l cart.Line, _ int) int32 { return int32(l.Quantity) })
	tag, err := r.db.Exec(ctx, deleteCartLinesSQL, userID, ids, quantities)
	if err != nil {
		return 0, errors.Wrap(err, "delete cart lines")
	}
	return tag.RowsAffected(), nil
}

func (r *CartRepository) query(ctx context.Context, sql string, args ...any) ([]cart.Line, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query cart lines")
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		l, err := scanCartLine(row)
		if err != nil {
			return cart.Line{}, err
		}
		return *l, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan cart lines")
	}
	return lines, nil
}

func scanCartLine(row pgx.Row) (*cart.Line, error) {
	var (
		l       cart.Line
		options []byte
	)
	if err := row.Scan(&l.ID, &l.UserID, &l.ProductID, &l.Quantity, &options, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.Options = cart.Options(options)
	return &l, nil
}
