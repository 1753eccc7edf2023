// Package order turns item lists and cart snapshots into priced orders and
// persists them atomically together with coupon redemption and cart cleanup.
package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// PaymentMethod enumerates accepted ways to pay.
type PaymentMethod string

const (
	PaymentCreditCard   PaymentMethod = "credit_card"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentWallet       PaymentMethod = "wallet"
	PaymentPayTR        PaymentMethod = "paytr"
	PaymentShopier      PaymentMethod = "shopier"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCreditCard, PaymentBankTransfer, PaymentWallet, PaymentPayTR, PaymentShopier:
		return true
	default:
		return false
	}
}

// DeliveryStatus tracks fulfillment of a single item.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryProcessing DeliveryStatus = "processing"
	DeliveryDelivered  DeliveryStatus = "delivered"
	DeliveryFailed     DeliveryStatus = "failed"
)

// Order is a purchase record. Monetary fields satisfy
// Total == Subtotal - Discount and Discount >= CouponDiscount at creation.
type Order struct {
	ID             string
	Number         string
	UserID         string
	Status         Status
	PaymentMethod  PaymentMethod
	PaymentStatus  string
	Currency       string
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	CouponDiscount decimal.Decimal
	Total          decimal.Decimal
	CouponCode     string
	Notes          string
	ClientIP       string
	UserAgent      string

	// Set by payment flows after creation.
	PaymentToken    string
	ProviderOrderID string

	Items     []Item
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Owner implements access.Owned.
func (o Order) Owner() string { return o.UserID }

// Item is one purchased line. ProductName and Price are snapshots taken at
// creation.
type Item struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	Quantity    int
	Price       decimal.Decimal
	Total       decimal.Decimal
	Options     cart.Options

	DeliveryStatus  DeliveryStatus
	ActivationCode  *string
	StockCode       *string
	ExternalOrderID *string
	DeliveredAt     *time.Time

	// UserID is the owner of the parent order, filled on read.
	UserID string
}

// Owner implements access.Owned.
func (i Item) Owner() string { return i.UserID }

var (
	// ErrCartEmpty is returned when a cart checkout selects no lines.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrCartChanged is returned when a consumed cart line was removed or its
	// quantity changed after the order was priced.
	ErrCartChanged = errors.New("cart changed during checkout")
)

// PricingRequiredError lists every cart product without a price.
type PricingRequiredError struct {
	MissingProductIDs []string
}

func (e *PricingRequiredError) Error() string {
	return fmt.Sprintf("pricing required for products: %s", strings.Join(e.MissingProductIDs, ", "))
}

// Repository persists orders. Get and GetItem return access.ErrNotFound for
// unknown ids.
type Repository interface {
	// Create inserts the order header. Timestamps are assigned by storage.
	Create(ctx context.Context, o *Order) error
	CreateItems(ctx context.Context, items []Item) error
	// Get returns the order with its items.
	Get(ctx context.Context, id string) (*Order, error)
	GetItem(ctx context.Context, id string) (*Item, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}

// UnitOfWork groups the repositories that take part in an order write. The
// same interface is served by a transaction scope and by the default scope.
type UnitOfWork interface {
	Orders() Repository
	Coupons() coupon.Redeemer
	Cart() cart.Consumer
}

// Transactor runs fn inside a transaction. If fn returns an error every write
// made through uow is rolled back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
	// Default returns the non-transactional scope.
	Default() UnitOfWork
}
