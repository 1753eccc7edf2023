package order

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/access"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// store is the committed state behind memTx.
type store struct {
	orders  map[string]Order
	items   map[string]Item
	lines   map[string]cart.Line
	coupons map[string]coupon.Coupon
}

func (s store) clone() store {
	return store{
		orders:  maps.Clone(s.orders),
		items:   maps.Clone(s.items),
		lines:   maps.Clone(s.lines),
		coupons: maps.Clone(s.coupons),
	}
}

// memTx is a Transactor that stages writes on a copy of the store and swaps
// it in on commit.
type memTx struct {
	mu    sync.Mutex
	state store
	ops   []string

	createErr error
	itemsErr  error
	deleteErr error
}

func newMemTx() *memTx {
	return &memTx{state: store{
		orders:  map[string]Order{},
		items:   map[string]Item{},
		lines:   map[string]cart.Line{},
		coupons: map[string]coupon.Coupon{},
	}}
}

func (m *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := m.state.clone()
	if err := fn(ctx, &memUoW{tx: m, s: &staged}); err != nil {
		m.ops = append(m.ops, "rollback")
		return err
	}
	m.state = staged
	m.ops = append(m.ops, "commit")
	return nil
}

func (m *memTx) Default() UnitOfWork {
	return &memUoW{tx: m, s: &m.state, def: true}
}

type memUoW struct {
	tx  *memTx
	s   *store
	def bool
}

// read guards reads made through the default scope against concurrent
// commits.
func (u *memUoW) read() func() {
	if !u.def {
		return func() {}
	}
	u.tx.mu.Lock()
	return u.tx.mu.Unlock
}

func (u *memUoW) Orders() Repository { return u }
func (u *memUoW) Coupons() coupon.Redeemer { return redeemer{u} }
func (u *memUoW) Cart() cart.Consumer { return u }

func (u *memUoW) Create(_ context.Context, o *Order) error {
	u.tx.ops = append(u.tx.ops, "create")
	if u.tx.createErr != nil {
		return u.tx.createErr
	}
	stored := *o
	stored.Items = nil
	stored.CreatedAt = fixedNow
	stored.UpdatedAt = fixedNow
	u.s.orders[o.ID] = stored
	return nil
}

func (u *memUoW) CreateItems(_ context.Context, items []Item) error {
	u.tx.ops = append(u.tx.ops, "items")
	if u.tx.itemsErr != nil {
		return u.tx.itemsErr
	}
	for _, it := range items {
		if _, ok := u.s.orders[it.OrderID]; !ok {
			return errors.New("foreign key violation")
		}
		u.s.items[it.ID] = it
	}
	return nil
}

func (u *memUoW) Get(_ context.Context, id string) (*Order, error) {
	defer u.read()()
	o, ok := u.s.orders[id]
	if !ok {
		return nil, access.ErrNotFound
	}
	for _, it := range u.s.items {
		if it.OrderID == id {
			it.UserID = o.UserID
			o.Items = append(o.Items, it)
		}
	}
	slices.SortFunc(o.Items, func(a, b Item) int { return strings.Compare(a.ProductID, b.ProductID) })
	return &o, nil
}

func (u *memUoW) GetItem(_ context.Context, id string) (*Item, error) {
	defer u.read()()
	it, ok := u.s.items[id]
	if !ok {
		return nil, access.ErrNotFound
	}
	it.UserID = u.s.orders[it.OrderID].UserID
	return &it, nil
}

func (u *memUoW) ListByUser(_ context.Context, userID string) ([]Order, error) {
	defer u.read()()
	var out []Order
	for _, o := range u.s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (u *memUoW) DeleteLines(_ context.Context, userID string, lines []cart.Line) (int64, error) {
	u.tx.ops = append(u.tx.ops, "delete_lines")
	if u.tx.deleteErr != nil {
		return 0, u.tx.deleteErr
	}
	var n int64
	for _, snap := range lines {
		if l, ok := u.s.lines[snap.ID]; ok && l.UserID == userID && l.Quantity == snap.Quantity {
			delete(u.s.lines, snap.ID)
			n++
		}
	}
	return n, nil
}

// List implements CartReader over committed lines.
func (m *memTx) List(_ context.Context, userID string, ids []string) ([]cart.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []cart.Line
	for _, l := range m.state.lines {
		if l.UserID != userID {
			continue
		}
		if len(ids) > 0 && !slices.Contains(ids, l.ID) {
			continue
		}
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b cart.Line) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// FindByCode implements coupon.Repository over committed coupons.
func (m *memTx) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.state.coupons {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, coupon.ErrNotFound
}

type redeemer struct{ u *memUoW }

// Redeem mirrors the conditional update of the postgres redeemer.
func (r redeemer) Redeem(_ context.Context, couponID string, now time.Time) error {
	r.u.tx.ops = append(r.u.tx.ops, "redeem")
	c, ok := r.u.s.coupons[couponID]
	switch {
	case !ok, !c.Active,
		c.ValidFrom != nil && c.ValidFrom.After(now),
		c.ValidUntil != nil && c.ValidUntil.Before(now),
		c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit:
		return coupon.ErrRedeemNotFound
	}
	c.UsedCount++
	r.u.s.coupons[couponID] = c
	return nil
}
