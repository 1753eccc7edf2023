package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/money"
	"github.com/xenking/storefront/internal/domain/validation"
)

// Kind enumerates the supported discount strategies.
type Kind string

const (
	// KindPercentage takes Value percent of the subtotal.
	KindPercentage Kind = "percentage"
	// KindFixed takes a fixed amount off the subtotal.
	KindFixed Kind = "fixed"
)

// Valid reports whether k is a known discount kind.
func (k Kind) Valid() bool {
	return k == KindPercentage || k == KindFixed
}

// Reason is the stable, machine-readable cause of a rejected coupon.
type Reason string

const (
	ReasonNotFound          Reason = "not_found"
	ReasonInactive          Reason = "inactive"
	ReasonNotStarted        Reason = "not_started"
	ReasonExpired           Reason = "expired"
	ReasonUsageLimitReached Reason = "usage_limit_reached"
	ReasonMinPurchaseNotMet Reason = "min_purchase_not_met"
)

var (
	// ErrNotFound is returned by Repository.FindByCode for an unknown code.
	ErrNotFound = errors.New("coupon not found")
	// ErrRedeemNotFound is returned by Redeemer.Redeem when the coupon no
	// longer satisfies its constraints at write time. It aborts the
	// surrounding transaction.
	ErrRedeemNotFound = errors.New("coupon redeem: no redeemable coupon")
)

// InvalidError reports why a coupon code cannot be applied.
type InvalidError struct {
	Code   string
	Reason Reason
	// MinPurchase is set for ReasonMinPurchaseNotMet.
	MinPurchase *decimal.Decimal
}

func (e *InvalidError) Error() string {
	if e.MinPurchase != nil {
		return fmt.Sprintf("coupon %q: %s (min purchase %s)", e.Code, e.Reason, money.Format(*e.MinPurchase))
	}
	return fmt.Sprintf("coupon %q: %s", e.Code, e.Reason)
}

// Coupon is a named discount rule. Nil optional fields are unbounded.
type Coupon struct {
	ID          string
	Code        string
	Kind        Kind
	Value       decimal.Decimal
	MaxDiscount *decimal.Decimal
	MinPurchase *decimal.Decimal
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	UsageLimit  *int
	UsedCount   int
	Active      bool
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Evaluation is the outcome of a successful Evaluate call.
type Evaluation struct {
	Coupon   Coupon
	Discount decimal.Decimal
}

// Repository provides coupon lookup.
type Repository interface {
	// FindByCode returns the coupon with exactly this code or ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}

// Redeemer consumes one use of a coupon inside the caller's transaction.
type Redeemer interface {
	Redeem(ctx context.Context, couponID string, now time.Time) error
}

// Validate checks a coupon definition before it is stored.
func (c *Coupon) Validate() error {
	switch {
	case strings.TrimSpace(c.Code) == "":
		return validation.Errorf("code", "required")
	case !c.Kind.Valid():
		return validation.Errorf("discount_type", "unknown discount type %q", c.Kind)
	case c.Value.IsNegative():
		return validation.Errorf("discount_value", "must not be negative")
	case c.Kind == KindPercentage && c.Value.GreaterThan(decimal.NewFromInt(100)):
		return validation.Errorf("discount_value", "percentage must not exceed 100")
	case c.UsageLimit != nil && *c.UsageLimit < 0:
		return validation.Errorf("usage_limit", "must not be negative")
	case c.ValidFrom != nil && c.ValidUntil != nil && c.ValidUntil.Before(*c.ValidFrom):
		return validation.Errorf("valid_until", "must not be before valid_from")
	}
	return nil
}
