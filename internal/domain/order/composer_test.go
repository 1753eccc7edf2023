package order

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/access"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/validation"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func dp(v string) *decimal.Decimal {
	return lo.ToPtr(d(v))
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2), msgAndArgs...)
}

type fixture struct {
	tx        *memTx
	composer  *Composer
	persister *Persister
}

func newFixture(opts ...ComposerOption) *fixture {
	tx := newMemTx()
	evaluator := coupon.NewEvaluator(tx).WithClock(fixedClock)
	opts = append([]ComposerOption{
		WithClock(fixedClock),
		WithNumberGenerator(func() string { return "ORD-TEST" }),
	}, opts...)
	return &fixture{
		tx:        tx,
		composer:  NewComposer(evaluator, tx, "TRY", opts...),
		persister: NewPersister(tx).WithClock(fixedClock),
	}
}

func (f *fixture) addLine(id, userID, productID string, qty int) {
	f.tx.state.lines[id] = cart.Line{ID: id, UserID: userID, ProductID: productID, Quantity: qty}
}

func (f *fixture) addCoupon(c coupon.Coupon) {
	f.tx.state.coupons[c.ID] = c
}

func consumedIDs(n *NormalizedOrder) []string {
	return lo.Map(n.ConsumedCartLines, func(l cart.Line, _ int) string { return l.ID })
}

func pricing(pairs ...string) map[string]Price {
	out := make(map[string]Price)
	for i := 0; i+1 < len(pairs); i += 2 {
		out[pairs[i]] = Price{Name: "Product " + pairs[i], Price: d(pairs[i+1])}
	}
	return out
}

func TestCompose_CartSingleLine(t *testing.T) {
	f := newFixture()
	f.addLine("l1", "u1", "P1", 2)

	n, err := f.composer.Compose(context.Background(), ComposeRequest{
		UserID: "u1",
		Cart:   &CartSelection{Pricing: pricing("P1", "25.00")},
	})
	require.NoError(t, err)

	assertMoney(t, "50.00", n.Order.Subtotal)
	assertMoney(t, "0.00", n.Order.Discount)
	assertMoney(t, "50.00", n.Order.Total)
	require.Len(t, n.Order.Items, 1)
	assertMoney(t, "50.00", n.Order.Items[0].Total)
	assert.Equal(t, "Product P1", n.Order.Items[0].ProductName)
	assert.Equal(t, []string{"l1"}, consumedIDs(n))
	assert.Empty(t, n.CouponID)
	assert.Equal(t, "ORD-TEST", n.Order.Number)
	assert.Equal(t, "TRY", n.Order.Currency)
	assert.Equal(t, StatusPending, n.Order.Status)
	assert.Equal(t, PaymentCreditCard, n.Order.PaymentMethod)
	assert.Equal(t, "pending", n.Order.PaymentStatus)
}

func TestCompose_CartWithCoupon(t *testing.T) {
	f := newFixture()
	f.addLine("l1", "u1", "P1", 2)
	f.addCoupon(coupon.Coupon{ID: "c1", Code: "SAVE10", Kind: coupon.KindPercentage, Value: d("10"), Active: true})

	n, err := f.composer.Compose(context.Background(), ComposeRequest{
		UserID:     "u1",
		Cart:       &CartSelection{Pricing: pricing("P1", "25.00")},
		CouponCode: "SAVE10",
	})
	require.NoError(t, err)

	assertMoney(t, "5.00", n.Order.Discount)
	assertMoney(t, "5.00", n.Order.CouponDiscount)
	assertMoney(t, "45.00", n.Order.Total)
	assert.Equal(t, "SAVE10", n.Order.CouponCode)
	assert.Equal(t, "c1", n.CouponID)
}

func TestCompose_CouponMinPurchaseNotMet(t *testing.T) {
	f := newFixture()
	f.addLine("l1", "u1", "P1", 2)
	f.addCoupon(coupon.Coupon{
		ID: "c1", Code: "SAVE10", Kind: coupon.KindPercentage, Value: d("10"),
		MinPurchase: dp("100"), Active: true,
	})

	_, err := f.composer.Compose(context.Background(), ComposeRequest{
		UserID:     "u1",
		Cart:       &CartSelection{Pricing: pricing("P1", "25.00")},
		CouponCode: "SAVE10",
	})

	var invalid *coupon.InvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, coupon.ReasonMinPurchaseNotMet, invalid.Reason)
	require.NotNil(t, invalid.MinPurchase)
	assertMoney(t, "100.00", *invalid.MinPurchase)
}

func TestCompose_CouponUsageLimitReached(t *testing.T) {
	f := newFixture()
	f.addLine("l1", "u1", "P1", 2)
	f.addCoupon(coupon.Coupon{
		ID: "c1", Code: "LIMITED", Kind: coupon.KindFixed, Value: d("5"),
		UsageLimit: lo.ToPtr(1), UsedCount: 1, Active: true,
	})

	_, err := f.composer.Compose(context.Background(), ComposeRequest{
		UserID:     "u1",
		Cart:       &CartSelection{Pricing: pricing("P1", "25.00")},
		CouponCode: "LIMITED",
	})

	var invalid *coupon.InvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, coupon.ReasonUsageLimitReached, invalid.Reason)
	assert.Empty(t, f.tx.ops, "no transaction may be opened")
}

func TestCompose_PricingRequired(t *testing.T) {
	f := newFixture()
	f.addLine("l1", "u1", "P2", 1)

	_, err := f.composer.Compose(context.Background(), ComposeRequest{
		UserID: "u1",
		Cart:   &CartSelection{Pricing: pricing("P1", "25.00")},
	})

	var pErr *PricingRequiredError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, []string{"P2"}, pErr.MissingProductIDs)
	assert.Len(t, f.tx.state.lines, 1)
	assert.Empty(t, f.tx.state.orders)
}

func TestCompose_PricingRequiredReportsAll(t *testing.T) {
	f := newFixture()
	f.addLine("l1", "u1", "P3", 1)
	f.addLine("l2", "u1", "P1", 1)
	f.addLine("l3", "u1", "P3", 2)
	f.addLine("l4", "u1", "P4", 1)

	_, err := f.composer.Compose(context.Background(), ComposeRequest{
		UserID: "u1",
		Cart:   &CartSelection{Pricing: pricing("P1", "1.00")},
	})

	var pErr *PricingRequiredError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, []string{"P3", "P4"}, pErr.MissingProductIDs)
	assert.Contains(t, pErr.Error(), "P3, P4")
}

func TestCompose_CartEmpty(t *testing.T) {
	f := newFixture()
	f.addLine("l1", "someone-else", "P1", 1)

	_, err := f.composer.Compose(context.Background(), ComposeRequest{
		UserID: "u1",
		Cart:   &CartSelection{Pricing: pricing("P1", "1.00")},
	})
	require.ErrorIs(t, err, ErrCartEmpty)

	// Selecting only lines that are not in the user's cart is empty too.
	f.addLine("l2", "u1", "P1", 1)
	_, err = f.composer.Compose(context.Background(), ComposeRequest{
		UserID: "u1",
		Cart:   &CartSelection{LineIDs: []string{"l1"}, Pricing: pricing("P1", "1.00")},
	})
	require.ErrorIs(t, err, ErrCartEmpty)
}

func TestCompose_CartSubset(t *testing.T) {
	f := newFixture()
	f.addLine("l1", "u1", "P1", 1)
	f.addLine("l2", "u1", "P2", 3)

	n, err := f.composer.Compose(context.Background(), ComposeRequest{
		UserID: "u1",
		Cart:   &CartSelection{LineIDs: []string{"l2"}, Pricing: pricing("P2", "1.10")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"l2"}, consumedIDs(n))
	assertMoney(t, "3.30", n.Order.Total)
}

func TestCompose_DirectItems(t *testing.T) {
	f := newFixture()

	n, err := f.composer.Compose(context.Background(), ComposeRequest{
		UserID: "u1",
		Items: []DirectItem{
			{ProductID: "P1", Name: "Gift card", Quantity: 3, Price: d("9.99")},
			{ProductID: "P2", Name: "Game key", Quantity: 1, Price: d("10"), Total: dp("8.50")},
		},
	})
	require.NoError(t, err)

	require.Len(t, n.Order.Items, 2)
	assertMoney(t, "29.97", n.Order.Items[0].Total)
	assertMoney(t, "8.50", n.Order.Items[1].Total, "supplied line total is trusted")
	assertMoney(t, "38.47", n.Order.Subtotal)
	assertMoney(t, "38.47", n.Order.Total)
	assert.Empty(t, n.ConsumedCartLines)
}

func TestCompose_DirectLineTotalReconciliation(t *testing.T) {
	f := newFixture()
	prices := []string{"0.01", "0.333", "9.99", "19.995", "1234.56", "0.005", "1.005"}
	for _, p := range prices {
		for qty := 1; qty <= 7; qty++ {
			n, err := f.composer.Compose(context.Background(), ComposeRequest{
				UserID: "u1",
				Items:  []DirectItem{{ProductID: "P", Name: "P", Quantity: qty, Price: d(p)}},
			})
			require.NoError(t, err)
			it := n.Order.Items[0]
			assert.True(t, it.Price.Equal(d(p).Round(2)), "price %s", p)
			assert.True(t, it.Price.Mul(decimal.NewFromInt(int64(qty))).Equal(it.Total), "price %s qty %d", p, qty)
		}
	}
}

func TestCompose_CartLineTotalUsesStoredPrice(t *testing.T) {
	f := newFixture()
	f.addLine("l1", "u1", "P1", 3)

	n, err := f.composer.Compose(context.Background(), ComposeRequest{
		UserID: "u1",
		Cart:   &CartSelection{Pricing: pricing("P1", "1.005")},
	})
	require.NoError(t, err)
	assertMoney(t, "1.01", n.Order.Items[0].Price)
	assertMoney(t, "3.03", n.Order.Items[0].Total)
	assertMoney(t, "3.03", n.Order.Subtotal)
}

func TestCompose_AmountsOutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		req   ComposeRequest
		field string
	}{
		{
			name: "line total",
			req: ComposeRequest{Items: []DirectItem{
				{ProductID: "P1", Name: "P1", Quantity: 2, Price: d("9999999999")},
			}},
			field: "items",
		},
		{
			name: "quantity",
			req: ComposeRequest{Items: []DirectItem{
				{ProductID: "P1", Name: "P1", Quantity: cart.MaxQuantity + 1, Price: d("1")},
			}},
			field: "items",
		},
		{
			name: "subtotal",
			req: ComposeRequest{Items: []DirectItem{
				{ProductID: "P1", Name: "P1", Quantity: 1, Price: d("6000000000")},
				{ProductID: "P2", Name: "P2", Quantity: 1, Price: d("6000000000")},
			}},
			field: "subtotal",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.req.UserID = "u1"
			_, err := f.composer.Compose(context.Background(), tt.req)
			var verr *validation.Error
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestCompose_CouponOverridesSuppliedAmounts(t *testing.T) {
	f := newFixture()
	f.addCoupon(coupon.Coupon{ID: "c1", Code: "FIVE", Kind: coupon.KindFixed, Value: d("5"), Active: true})

	n, err := f.composer.Compose(context.Background(), ComposeRequest{
		UserID:     "u1",
		Items:      []DirectItem{{ProductID: "P1", Name: "P1", Quantity: 2, Price: d("10")}},
		CouponCode: "FIVE",
		Discount:   dp("19.00"),
		Total:      dp("1.00"),
	})
	require.NoError(t, err)
	assertMoney(t, "5.00", n.Order.Discount)
	assertMoney(t, "15.00", n.Order.Total)
}

func TestCompose_SuppliedOverrides(t *testing.T) {
	items := []DirectItem{{ProductID: "P1", Name: "P1", Quantity: 2, Price: d("10"), Total: dp("18")}}

	t.Run("trusted", func(t *testing.T) {
		f := newFixture()
		n, err := f.composer.Compose(context.Background(), ComposeRequest{
			UserID:   "u1",
			Items:    items,
			Subtotal: dp("30"),
			Discount: dp("2.5"),
			Total:    dp("27.50"),
		})
		require.NoError(t, err)
		assertMoney(t, "18.00", n.Order.Items[0].Total)
		assertMoney(t, "30.00", n.Order.Subtotal)
		assertMoney(t, "2.50", n.Order.Discount)
		assertMoney(t, "0.00", n.Order.CouponDiscount)
		assertMoney(t, "27.50", n.Order.Total)
	})
	t.Run("server totals", func(t *testing.T) {
		f := newFixture(WithServerTotals())
		n, err := f.composer.Compose(context.Background(), ComposeRequest{
			UserID:   "u1",
			Items:    items,
			Subtotal: dp("30"),
			Discount: dp("2.5"),
			Total:    dp("1"),
		})
		require.NoError(t, err)
		assertMoney(t, "20.00", n.Order.Items[0].Total)
		assertMoney(t, "20.00", n.Order.Subtotal)
		assertMoney(t, "0.00", n.Order.Discount)
		assertMoney(t, "20.00", n.Order.Total)
	})
}

func TestCompose_Validation(t *testing.T) {
	valid := []DirectItem{{ProductID: "P1", Name: "P1", Quantity: 1, Price: d("10")}}

	tests := []struct {
		name  string
		req   ComposeRequest
		field string
	}{
		{name: "no items", req: ComposeRequest{UserID: "u1"}, field: "items"},
		{
			name:  "both modes",
			req:   ComposeRequest{UserID: "u1", Items: valid, Cart: &CartSelection{}},
			field: "items",
		},
		{
			name:  "zero quantity",
			req:   ComposeRequest{UserID: "u1", Items: []DirectItem{{ProductID: "P1", Name: "P1", Price: d("1")}}},
			field: "items",
		},
		{
			name:  "missing name",
			req:   ComposeRequest{UserID: "u1", Items: []DirectItem{{ProductID: "P1", Quantity: 1, Price: d("1")}}},
			field: "items",
		},
		{
			name:  "negative price",
			req:   ComposeRequest{UserID: "u1", Items: []DirectItem{{ProductID: "P1", Name: "P1", Quantity: 1, Price: d("-1")}}},
			field: "items",
		},
		{
			name:  "unknown payment method",
			req:   ComposeRequest{UserID: "u1", Items: valid, PaymentMethod: "barter"},
			field: "payment_method",
		},
		{
			name:  "discount above subtotal",
			req:   ComposeRequest{UserID: "u1", Items: valid, Discount: dp("10.01")},
			field: "discount",
		},
		{
			name:  "negative discount",
			req:   ComposeRequest{UserID: "u1", Items: valid, Discount: dp("-1")},
			field: "discount",
		},
		{
			name:  "inconsistent total",
			req:   ComposeRequest{UserID: "u1", Items: valid, Total: dp("9")},
			field: "total",
		},
		{
			name:  "negative subtotal",
			req:   ComposeRequest{UserID: "u1", Items: valid, Subtotal: dp("-5")},
			field: "subtotal",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.composer.Compose(context.Background(), tt.req)
			var vErr *validation.Error
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestCompose_Unauthorized(t *testing.T) {
	f := newFixture()
	_, err := f.composer.Compose(context.Background(), ComposeRequest{
		Items: []DirectItem{{ProductID: "P1", Name: "P1", Quantity: 1, Price: d("1")}},
	})
	require.ErrorIs(t, err, access.ErrUnauthorized)
}

type failingEvaluator struct{}

func (failingEvaluator) Evaluate(context.Context, string, decimal.Decimal) (*coupon.Evaluation, error) {
	return nil, errors.New("lookup coupon: connection refused")
}

func TestCompose_EvaluatorFailure(t *testing.T) {
	c := NewComposer(failingEvaluator{}, newMemTx(), "TRY")
	_, err := c.Compose(context.Background(), ComposeRequest{
		UserID:     "u1",
		Items:      []DirectItem{{ProductID: "P1", Name: "P1", Quantity: 1, Price: d("1")}},
		CouponCode: "ANY",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evaluate coupon")

	var invalid *coupon.InvalidError
	assert.False(t, errors.As(err, &invalid))
}

func TestNumberGenerator(t *testing.T) {
	gen := NewNumberGenerator("ORD", func() time.Time { return time.UnixMilli(1767225600000) })

	a, b := gen(), gen()
	assert.True(t, strings.HasPrefix(a, "ORD1767225600000-"), a)
	assert.Len(t, a, len("ORD1767225600000-")+6)
	assert.NotEqual(t, a, b, "same millisecond must still differ")
}
