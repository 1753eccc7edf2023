package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/access"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/validation"
)

type recordingNotifier struct {
	seen []string
	err  error
}

func (n *recordingNotifier) OrderPlaced(_ context.Context, o *Order) error {
	n.seen = append(n.seen, o.ID)
	return n.err
}

func newTestService(t *testing.T, f *fixture, notifiers ...Notifier) *Service {
	t.Helper()
	svc, err := NewService(f.composer, f.persister, f.tx.Default().Orders(), ServiceConfig{
		Notifiers: notifiers,
	})
	require.NoError(t, err)
	return svc
}

func TestService_PlaceOrder(t *testing.T) {
	f := newFixture()
	f.addLine("l1", "u1", "P1", 2)
	failing := &recordingNotifier{err: errors.New("smtp unavailable")}
	ok := &recordingNotifier{}
	svc := newTestService(t, f, failing, ok, LogNotifier{})

	o, err := svc.PlaceOrder(context.Background(), ComposeRequest{
		UserID: "u1",
		Cart:   &CartSelection{Pricing: pricing("P1", "25.00")},
	})
	require.NoError(t, err, "notifier failure must not fail the order")
	assert.Equal(t, []string{o.ID}, failing.seen)
	assert.Equal(t, []string{o.ID}, ok.seen)
	assert.Len(t, f.tx.state.orders, 1)
}

func TestService_PlaceOrderRejected(t *testing.T) {
	f := newFixture()
	n := &recordingNotifier{}
	svc := newTestService(t, f, n)

	_, err := svc.PlaceOrder(context.Background(), ComposeRequest{
		UserID: "u1",
		Cart:   &CartSelection{},
	})
	require.ErrorIs(t, err, ErrCartEmpty)
	assert.Empty(t, n.seen)
}

func TestService_Reads(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := newTestService(t, f)

	o, err := svc.PlaceOrder(ctx, ComposeRequest{
		UserID: "owner",
		Items:  []DirectItem{{ProductID: "P1", Name: "P1", Quantity: 1, Price: d("5")}},
	})
	require.NoError(t, err)
	itemID := o.Items[0].ID

	got, err := svc.GetOrder(ctx, "owner", o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, got.Number)

	item, err := svc.GetItem(ctx, "owner", itemID)
	require.NoError(t, err)
	assert.Equal(t, "P1", item.ProductID)

	list, err := svc.ListOrders(ctx, "owner")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// Another user's order and item look missing.
	_, err = svc.GetOrder(ctx, "intruder", o.ID)
	require.ErrorIs(t, err, access.ErrNotFound)
	_, err = svc.GetItem(ctx, "intruder", itemID)
	require.ErrorIs(t, err, access.ErrNotFound)
	_, err = svc.GetOrder(ctx, "owner", "missing")
	require.ErrorIs(t, err, access.ErrNotFound)

	_, err = svc.GetOrder(ctx, "", o.ID)
	require.ErrorIs(t, err, access.ErrUnauthorized)
	_, err = svc.ListOrders(ctx, "")
	require.ErrorIs(t, err, access.ErrUnauthorized)
}

func TestRejectReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{validation.Errorf("items", "required"), "validation_error"},
		{access.ErrUnauthorized, "unauthorized"},
		{errors.Wrap(access.ErrNotFound, "get order"), "not_found"},
		{&coupon.InvalidError{Code: "X", Reason: coupon.ReasonExpired}, "coupon_expired"},
		{errors.Wrap(coupon.ErrRedeemNotFound, "redeem coupon"), "coupon_redeem_not_found"},
		{ErrCartEmpty, "cart_empty"},
		{errors.Wrap(ErrCartChanged, "persist"), "cart_changed"},
		{&PricingRequiredError{MissingProductIDs: []string{"P2"}}, "pricing_required"},
		{errors.New("connection refused"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RejectReason(tt.err), tt.err.Error())
	}
}
