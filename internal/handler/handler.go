// Package handler exposes the cart, coupon and order services as a JSON HTTP
// API.
package handler

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/access"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

// UserHeader carries the caller id resolved by the upstream gateway.
const UserHeader = "X-User-ID"

// CartService is the cart surface used by the API.
type CartService interface {
	AddOrMerge(ctx context.Context, userID, productID string, quantity int, options cart.Options) (*cart.Line, bool, error)
	UpdateLine(ctx context.Context, userID, lineID string, patch cart.Patch) (*cart.Line, error)
	RemoveLine(ctx context.Context, userID, lineID string) error
	List(ctx context.Context, userID string) ([]cart.Line, error)
	Clear(ctx context.Context, userID string) (int64, error)
}

// OrderService is the order surface used by the API.
type OrderService interface {
	PlaceOrder(ctx context.Context, req order.ComposeRequest) (*order.Order, error)
	GetOrder(ctx context.Context, userID, orderID string) (*order.Order, error)
	GetItem(ctx context.Context, userID, itemID string) (*order.Item, error)
	ListOrders(ctx context.Context, userID string) ([]order.Order, error)
}

// CouponEvaluator previews coupon discounts.
type CouponEvaluator interface {
	Evaluate(ctx context.Context, code string, subtotal decimal.Decimal) (*coupon.Evaluation, error)
}

// Handler serves the storefront API.
type Handler struct {
	carts    CartService
	orders   OrderService
	coupons  CouponEvaluator
	products product.Repository
}

// New creates a Handler.
func New(carts CartService, orders OrderService, coupons CouponEvaluator, products product.Repository) *Handler {
	return &Handler{
		carts:    carts,
		orders:   orders,
		coupons:  coupons,
		products: products,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, identify(fn))
	}
	handle("GET /api/cart", h.listCart)
	handle("DELETE /api/cart", h.clearCart)
	handle("POST /api/cart/lines", h.addCartLine)
	handle("PATCH /api/cart/lines/{id}", h.updateCartLine)
	handle("DELETE /api/cart/lines/{id}", h.removeCartLine)
	handle("POST /api/coupons/evaluate", h.evaluateCoupon)
	handle("POST /api/orders", h.placeOrder)
	handle("POST /api/checkout", h.checkout)
	handle("GET /api/orders", h.listOrders)
	handle("GET /api/orders/{id}", h.getOrder)
	handle("GET /api/order-items/{id}", h.getOrderItem)
}

// identify stores the caller id from UserHeader in the request context.
func identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(UserHeader)); id != "" {
			r = r.WithContext(access.WithUser(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the first X-Forwarded-For hop or the peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
