package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/access"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/money"
	"github.com/xenking/storefront/internal/domain/validation"
)

// Price is the name and unit price of a product at checkout time.
type Price struct {
	Name  string
	Price decimal.Decimal
}

// DirectItem is a caller-supplied line of a direct order.
type DirectItem struct {
	ProductID string
	Name      string
	Quantity  int
	Price     decimal.Decimal
	// Total is trusted when set, unless the composer computes server totals.
	Total   *decimal.Decimal
	Options cart.Options
}

// CartSelection selects cart lines to check out. Empty LineIDs selects the
// whole cart. Pricing must hold every selected product.
type CartSelection struct {
	LineIDs []string
	Pricing map[string]Price
}

// ComposeRequest is the input of Compose. Exactly one of Items and Cart is
// set.
type ComposeRequest struct {
	UserID string
	Items  []DirectItem
	Cart   *CartSelection

	CouponCode string

	// Client-supplied overrides.
	Subtotal    *decimal.Decimal
	Discount    *decimal.Decimal
	Total       *decimal.Decimal
	OrderNumber string

	PaymentMethod PaymentMethod
	PaymentStatus string
	Notes         string
	ClientIP      string
	UserAgent     string
}

// NormalizedOrder is a fully priced order ready to be persisted.
type NormalizedOrder struct {
	Order Order
	// CouponID is the coupon to redeem, empty when none applies.
	CouponID string
	// ConsumedCartLines is the cart snapshot the order was priced from. The
	// lines are deleted together with the order write.
	ConsumedCartLines []cart.Line
}

// CouponEvaluator computes a coupon discount without redeeming it.
type CouponEvaluator interface {
	Evaluate(ctx context.Context, code string, subtotal decimal.Decimal) (*coupon.Evaluation, error)
}

// CartReader loads the user's cart lines, restricted to ids when non-empty.
type CartReader interface {
	List(ctx context.Context, userID string, ids []string) ([]cart.Line, error)
}

// Composer builds NormalizedOrder values from direct items or a cart.
type Composer struct {
	coupons      CouponEvaluator
	carts        CartReader
	currency     string
	now          func() time.Time
	number       NumberGenerator
	serverTotals bool
}

// ComposerOption configures a Composer.
type ComposerOption func(c *Composer)

// WithClock sets the time source.
func WithClock(now func() time.Time) ComposerOption {
	return func(c *Composer) { c.now = now }
}

// WithNumberGenerator sets the order number generator.
func WithNumberGenerator(g NumberGenerator) ComposerOption {
	return func(c *Composer) { c.number = g }
}

// WithServerTotals ignores client-supplied line totals, subtotal, discount
// and total.
func WithServerTotals() ComposerOption {
	return func(c *Composer) { c.serverTotals = true }
}

// NewComposer creates a Composer. currency is snapshotted on every order.
func NewComposer(coupons CouponEvaluator, carts CartReader, currency string, opts ...ComposerOption) *Composer {
	c := &Composer{
		coupons:  coupons,
		carts:    carts,
		currency: currency,
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.number == nil {
		c.number = NewNumberGenerator("ORD", c.now)
	}
	return c
}

// Compose prices the request and resolves its coupon. It does not write
// anything.
func (c *Composer) Compose(ctx context.Context, req ComposeRequest) (*NormalizedOrder, error) {
	if err := access.RequireUser(req.UserID); err != nil {
		return nil, err
	}
	method := req.PaymentMethod
	if method == "" {
		method = PaymentCreditCard
	}
	if !method.Valid() {
		return nil, validation.Errorf("payment_method", "unknown payment method %q", method)
	}

	var (
		items    []Item
		consumed []cart.Line
		err      error
	)
	switch {
	case req.Cart != nil && len(req.Items) > 0:
		return nil, validation.Errorf("items", "items and cart selection are mutually exclusive")
	case req.Cart != nil:
		items, consumed, err = c.cartItems(ctx, req.UserID, req.Cart)
	default:
		items, err = c.directItems(req.Items)
	}
	if err != nil {
		return nil, err
	}

	subtotal := money.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Total)
	}
	subtotal = money.Round(subtotal)
	if supplied, ok := c.supplied(req.Subtotal); ok {
		if supplied.IsNegative() {
			return nil, validation.Errorf("subtotal", "must not be negative")
		}
		subtotal = supplied
	}
	if err := money.CheckRange("subtotal", subtotal); err != nil {
		return nil, err
	}

	o := Order{
		Number:         req.OrderNumber,
		UserID:         req.UserID,
		Status:         StatusPending,
		PaymentMethod:  method,
		PaymentStatus:  lo.Ternary(req.PaymentStatus == "", "pending", req.PaymentStatus),
		Currency:       c.currency,
		Subtotal:       subtotal,
		Discount:       money.Zero,
		CouponDiscount: money.Zero,
		Notes:          req.Notes,
		ClientIP:       req.ClientIP,
		UserAgent:      req.UserAgent,
		Items:          items,
	}
	if o.Number == "" {
		o.Number = c.number()
	}

	var couponID string
	if req.CouponCode != "" {
		eval, err := c.coupons.Evaluate(ctx, req.CouponCode, subtotal)
		if err != nil {
			var invalid *coupon.InvalidError
			if errors.As(err, &invalid) {
				return nil, err
			}
			return nil, errors.Wrap(err, "evaluate coupon")
		}
		// The evaluated discount wins over anything the client sent.
		o.Discount = eval.Discount
		o.CouponDiscount = eval.Discount
		o.CouponCode = eval.Coupon.Code
		o.Total = money.Sub(subtotal, eval.Discount)
		couponID = eval.Coupon.ID
	} else {
		if d, ok := c.supplied(req.Discount); ok {
			if d.IsNegative() || d.GreaterThan(subtotal) {
				return nil, validation.Errorf("discount", "must be between 0 and the subtotal %s", money.Format(subtotal))
			}
			o.Discount = d
		}
		o.Total = money.Sub(subtotal, o.Discount)
		if t, ok := c.supplied(req.Total); ok && !t.Equal(o.Total) {
			return nil, validation.Errorf("total", "expected %s (subtotal - discount), got %s",
				money.Format(o.Total), money.Format(t))
		}
	}

	return &NormalizedOrder{
		Order:               o,
		CouponID:            couponID,
		ConsumedCartLines:   consumed,
	}, nil
}

// supplied returns the rounded client value when client totals are trusted.
func (c *Composer) supplied(v *decimal.Decimal) (decimal.Decimal, bool) {
	if v == nil || c.serverTotals {
		return decimal.Decimal{}, false
	}
	return money.Round(*v), true
}

func (c *Composer) directItems(in []DirectItem) ([]Item, error) {
	if len(in) == 0 {
		return nil, validation.Errorf("items", "at least one item is required")
	}

	items := make([]Item, 0, len(in))
	for i, di := range in {
		switch {
		case di.ProductID == "":
			return nil, validation.Errorf("items", "item %d: product_id is required", i)
		case di.Name == "":
			return nil, validation.Errorf("items", "item %d: name is required", i)
		case di.Quantity <= 0 || di.Quantity > cart.MaxQuantity:
			return nil, validation.Errorf("items", "item %d: quantity must be between 1 and %d", i, cart.MaxQuantity)
		case di.Price.IsNegative():
			return nil, validation.Errorf("items", "item %d: price must not be negative", i)
		}
		options, err := di.Options.Canonical()
		if err != nil {
			return nil, validation.Errorf("items", "item %d: invalid options: %v", i, err)
		}

		price := money.Round(di.Price)
		total, ok := c.supplied(di.Total)
		if !ok {
			total = money.MulQty(price, di.Quantity)
		}
		if err := money.CheckRange("items", total); err != nil {
			return nil, validation.Errorf("items", "item %d: total %s is out of range", i, money.Format(total))
		}
		items = append(items, Item{
			ProductID:      di.ProductID,
			ProductName:    di.Name,
			Quantity:       di.Quantity,
			Price:          price,
			Total:          total,
			Options:        options,
			DeliveryStatus: DeliveryPending,
		})
	}
	return items, nil
}

func (c *Composer) cartItems(ctx context.Context, userID string, sel *CartSelection) ([]Item, []cart.Line, error) {
	lines, err := c.carts.List(ctx, userID, sel.LineIDs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load cart")
	}
	if len(lines) == 0 {
		return nil, nil, ErrCartEmpty
	}

	var missing []string
	for _, l := range lines {
		if _, ok := sel.Pricing[l.ProductID]; !ok {
			missing = append(missing, l.ProductID)
		}
	}
	if len(missing) > 0 {
		return nil, nil, &PricingRequiredError{MissingProductIDs: lo.Uniq(missing)}
	}

	items := make([]Item, 0, len(lines))
	for _, l := range lines {
		p := sel.Pricing[l.ProductID]
		price := money.Round(p.Price)
		items = append(items, Item{
			ProductID:      l.ProductID,
			ProductName:    p.Name,
			Quantity:       l.Quantity,
			Price:          price,
			Total:          money.MulQty(price, l.Quantity),
			Options:        l.Options,
			DeliveryStatus: DeliveryPending,
		})
	}
	return items, lines, nil
}
