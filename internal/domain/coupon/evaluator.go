package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/money"
)

// Evaluator validates coupon codes and computes their discount without
// touching the usage counter, so it serves both price previews and the final
// calculation before commit.
type Evaluator struct {
	repo Repository
	now  func() time.Time
}

// NewEvaluator creates an Evaluator backed by the given Repository.
func NewEvaluator(repo Repository) *Evaluator {
	return &Evaluator{repo: repo, now: time.Now}
}

// WithClock replaces the time source used for validity windows.
func (v *Evaluator) WithClock(now func() time.Time) *Evaluator {
	v.now = now
	return v
}

// Evaluate checks code against subtotal and returns the bounded discount.
// A rejected coupon is reported as *InvalidError.
func (v *Evaluator) Evaluate(ctx context.Context, code string, subtotal decimal.Decimal) (*Evaluation, error) {
	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &InvalidError{Code: code, Reason: ReasonNotFound}
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if reason := c.check(v.now()); reason != "" {
		return nil, &InvalidError{Code: code, Reason: reason}
	}
	if c.MinPurchase != nil && subtotal.LessThan(*c.MinPurchase) {
		threshold := money.Round(*c.MinPurchase)
		return nil, &InvalidError{Code: code, Reason: ReasonMinPurchaseNotMet, MinPurchase: &threshold}
	}

	return &Evaluation{
		Coupon:   *c,
		Discount: c.Discount(subtotal),
	}, nil
}

// check returns the first failing temporal, activity or usage constraint.
func (c *Coupon) check(now time.Time) Reason {
	switch {
	case !c.Active:
		return ReasonInactive
	case c.ValidFrom != nil && now.Before(*c.ValidFrom):
		return ReasonNotStarted
	case c.ValidUntil != nil && now.After(*c.ValidUntil):
		return ReasonExpired
	case c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit:
		return ReasonUsageLimitReached
	default:
		return ""
	}
}

// Discount computes the discount for subtotal, bounded by the coupon's cap,
// by zero and by the subtotal itself.
func (c *Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.Kind {
	case KindPercentage:
		amount = subtotal.Mul(c.Value).Div(decimal.NewFromInt(100))
	case KindFixed:
		amount = c.Value
	}

	if c.MaxDiscount != nil && amount.GreaterThan(*c.MaxDiscount) {
		amount = *c.MaxDiscount
	}
	upper := subtotal
	if upper.IsNegative() {
		upper = money.Zero
	}
	return money.Round(money.Clamp(amount, money.Zero, upper))
}
