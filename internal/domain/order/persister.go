package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Persister writes a NormalizedOrder in one transaction.
type Persister struct {
	tx  Transactor
	now func() time.Time
}

// NewPersister creates a Persister over tx.
func NewPersister(tx Transactor) *Persister {
	return &Persister{tx: tx, now: time.Now}
}

// WithClock sets the time used to re-validate the coupon at redemption.
func (p *Persister) WithClock(now func() time.Time) *Persister {
	p.now = now
	return p
}

// Persist inserts the order header and items, deletes the consumed cart lines
// and redeems the coupon, in that order and all-or-nothing. The returned
// order is re-read from storage after commit.
func (p *Persister) Persist(ctx context.Context, n *NormalizedOrder) (*Order, error) {
	o := n.Order
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	items := make([]Item, len(o.Items))
	for i, it := range o.Items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.OrderID = o.ID
		it.UserID = o.UserID
		items[i] = it
	}
	o.Items = items

	if err := p.tx.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		if err := uow.Orders().Create(ctx, &o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		if len(items) > 0 {
			if err := uow.Orders().CreateItems(ctx, items); err != nil {
				return errors.Wrap(err, "insert items")
			}
		}
		if len(n.ConsumedCartLines) > 0 {
			deleted, err := uow.Cart().DeleteLines(ctx, o.UserID, n.ConsumedCartLines)
			if err != nil {
				return errors.Wrap(err, "delete cart lines")
			}
			if deleted != int64(len(n.ConsumedCartLines)) {
				return ErrCartChanged
			}
		}
		if n.CouponID != "" {
			if err := uow.Coupons().Redeem(ctx, n.CouponID, p.now()); err != nil {
				return errors.Wrap(err, "redeem coupon")
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	stored, err := p.tx.Default().Orders().Get(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "read order")
	}
	return stored, nil
}
