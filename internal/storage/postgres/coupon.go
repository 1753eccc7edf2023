package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/validation"
)

const usageLimitConstraint = "coupons_usage_within_limit"

const couponColumns = `id, code, discount_type, discount_value, max_discount, min_purchase,
	valid_from, valid_until, usage_limit, used_count, is_active, description,
	created_at, updated_at`

const findCouponByCodeSQL = `SELECT ` + couponColumns + `
	FROM coupons WHERE code = $1`

// The WHERE clause repeats every constraint the evaluator checks so a coupon
// exhausted, expired or deactivated since evaluation matches no row.
const redeemCouponSQL = `UPDATE coupons
	SET used_count = used_count + 1, updated_at = now()
	WHERE id = $1
		AND is_active
		AND (valid_from IS NULL OR valid_from <= $2)
		AND (valid_until IS NULL OR valid_until >= $2)
		AND (usage_limit IS NULL OR used_count < usage_limit)
	RETURNING used_count`

const upsertCouponSQL = `INSERT INTO coupons (
		id, code, discount_type, discount_value, max_discount, min_purchase,
		valid_from, valid_until, usage_limit, is_active, description
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (code) DO UPDATE SET
		discount_type  = EXCLUDED.discount_type,
		discount_value = EXCLUDED.discount_value,
		max_discount   = EXCLUDED.max_discount,
		min_purchase   = EXCLUDED.min_purchase,
		valid_from     = EXCLUDED.valid_from,
		valid_until    = EXCLUDED.valid_until,
		usage_limit    = EXCLUDED.usage_limit,
		is_active      = EXCLUDED.is_active,
		description    = EXCLUDED.description,
		updated_at     = now()
	RETURNING ` + couponColumns

var (
	_ coupon.Repository = (*CouponRepository)(nil)
	_ coupon.Redeemer   = (*CouponRepository)(nil)
)

// CouponRepository implements coupon lookup and redemption.
type CouponRepository struct {
	db DBTX
}

// NewCouponRepository returns a CouponRepository on db.
func NewCouponRepository(db DBTX) *CouponRepository {
	return &CouponRepository{db: db}
}

// FindByCode looks up a coupon by its exact, case-sensitive code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	c, err := scanCoupon(r.db.QueryRow(ctx, findCouponByCodeSQL, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	return c, nil
}

// Redeem increments the usage counter when the coupon is still redeemable at
// now. It returns coupon.ErrRedeemNotFound when no row qualifies.
func (r *CouponRepository) Redeem(ctx context.Context, couponID string, now time.Time) error {
	var used int
	if err := r.db.QueryRow(ctx, redeemCouponSQL, couponID, now).Scan(&used); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return coupon.ErrRedeemNotFound
		}
		return errors.Wrapf(err, "redeem coupon %s", couponID)
	}
	return nil
}

// Upsert creates the coupon or updates the definition of the coupon with the
// same code. The usage counter of an existing coupon is kept.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) (*coupon.Coupon, error) {
	stored, err := scanCoupon(r.db.QueryRow(ctx, upsertCouponSQL, upsertArgs(c)...))
	if err != nil {
		if isCheckViolation(err, usageLimitConstraint) {
			return nil, validation.Errorf("usage_limit", "coupon %q: usage limit below its used count", c.Code)
		}
		return nil, errors.Wrapf(err, "upsert coupon %q", c.Code)
	}
	return stored, nil
}

// UpsertBatch upserts coupons in a single round trip. The batch runs as one
// implicit transaction: on error nothing is written and 0 is returned.
func (r *CouponRepository) UpsertBatch(ctx context.Context, coupons []coupon.Coupon) (int, error) {
	if len(coupons) == 0 {
		return 0, nil
	}
	b := &pgx.Batch{}
	for i := range coupons {
		b.Queue(upsertCouponSQL, upsertArgs(&coupons[i])...)
	}

	br := r.db.SendBatch(ctx, b)
	defer func() { _ = br.Close() }()

	for i := range coupons {
		if _, err := br.Exec(); err != nil {
			if isCheckViolation(err, usageLimitConstraint) {
				return 0, validation.Errorf("usage_limit", "coupon %q: usage limit below its used count", coupons[i].Code)
			}
			return 0, errors.Wrapf(err, "upsert coupon %q", coupons[i].Code)
		}
	}
	return len(coupons), nil
}

func upsertArgs(c *coupon.Coupon) []any {
	id := c.ID
	if id == "" {
		id = uuid.NewString()
	}
	return []any{
		id, c.Code, string(c.Kind), c.Value, c.MaxDiscount, c.MinPurchase,
		c.ValidFrom, c.ValidUntil, c.UsageLimit, c.Active, c.Description,
	}
}

func scanCoupon(row pgx.Row) (*coupon.Coupon, error) {
	var (
		c    coupon.Coupon
		kind string
	)
	if err := row.Scan(
		&c.ID, &c.Code, &kind, &c.Value, &c.MaxDiscount, &c.MinPurchase,
		&c.ValidFrom, &c.ValidUntil, &c.UsageLimit, &c.UsedCount, &c.Active, &c.Description,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.Kind = coupon.Kind(kind)
	return &c, nil
}
