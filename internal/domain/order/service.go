package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/access"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/validation"
)

// Notifier is told about committed orders. Failures are logged and never
// affect the order.
type Notifier interface {
	OrderPlaced(ctx context.Context, o *Order) error
}

// LogNotifier logs placed orders.
type LogNotifier struct{}

// OrderPlaced implements Notifier.
func (LogNotifier) OrderPlaced(ctx context.Context, o *Order) error {
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.String("total", o.Total.StringFixed(2)),
		zap.Int("items", len(o.Items)),
	)
	return nil
}

// ServiceConfig holds optional Service collaborators.
type ServiceConfig struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Notifiers      []Notifier
}

// Service is the entry point for placing and reading orders.
type Service struct {
	composer  *Composer
	persister *Persister
	orders    Repository
	notifiers []Notifier

	tracer   trace.Tracer
	placed   metric.Int64Counter
	rejected metric.Int64Counter
}

// NewService creates a Service. orders serves reads outside transactions.
func NewService(composer *Composer, persister *Persister, orders Repository, cfg ServiceConfig) (*Service, error) {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = tracenoop.NewTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = metricnoop.NewMeterProvider()
	}

	meter := cfg.MeterProvider.Meter("storefront/order")
	placed, err := meter.Int64Counter("storefront.orders.placed",
		metric.WithDescription("Orders committed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "placed counter")
	}
	rejected, err := meter.Int64Counter("storefront.orders.rejected",
		metric.WithDescription("Order attempts that failed, by reason"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "rejected counter")
	}

	return &Service{
		composer:  composer,
		persister: persister,
		orders:    orders,
		notifiers: cfg.Notifiers,
		tracer:    cfg.TracerProvider.Tracer("storefront/order"),
		placed:    placed,
		rejected:  rejected,
	}, nil
}

// PlaceOrder composes and persists an order, then runs notifiers.
func (s *Service) PlaceOrder(ctx context.Context, req ComposeRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(
			attribute.Bool("order.from_cart", req.Cart != nil),
			attribute.Bool("order.with_coupon", req.CouponCode != ""),
		),
	)
	defer span.End()

	n, err := s.composer.Compose(ctx, req)
	if err != nil {
		s.reject(ctx, span, err)
		return nil, err
	}
	o, err := s.persister.Persist(ctx, n)
	if err != nil {
		s.reject(ctx, span, err)
		return nil, err
	}

	s.placed.Add(ctx, 1, metric.WithAttributes(attribute.Bool("coupon", n.CouponID != "")))
	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.number", o.Number),
	)

	for _, nt := range s.notifiers {
		if err := nt.OrderPlaced(ctx, o); err != nil {
			zctx.From(ctx).Warn("Order notifier failed",
				zap.String("order_id", o.ID),
				zap.Error(err),
			)
		}
	}
	return o, nil
}

func (s *Service) reject(ctx context.Context, span trace.Span, err error) {
	reason := RejectReason(err)
	s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	span.SetAttributes(attribute.String("order.reject_reason", reason))
	if reason == "internal" {
		span.RecordError(err)
		span.SetStatus(codes.Error, "place order failed")
	}
}

// GetOrder returns an order of userID with its items.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*Order, error) {
	if err := access.RequireUser(userID); err != nil {
		return nil, err
	}
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "get order")
	}
	if _, err := access.Check(userID, *o); err != nil {
		return nil, err
	}
	return o, nil
}

// GetItem returns an order item whose order belongs to userID.
func (s *Service) GetItem(ctx context.Context, userID, itemID string) (*Item, error) {
	if err := access.RequireUser(userID); err != nil {
		return nil, err
	}
	it, err := s.orders.GetItem(ctx, itemID)
	if err != nil {
		return nil, notFoundOr(err, "get order item")
	}
	if _, err := access.Check(userID, *it); err != nil {
		return nil, err
	}
	return it, nil
}

// ListOrders returns the user's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	if err := access.RequireUser(userID); err != nil {
		return nil, err
	}
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, access.ErrNotFound) {
		return access.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// RejectReason classifies a PlaceOrder error into a stable reason string.
func RejectReason(err error) string {
	var (
		vErr       *validation.Error
		invalid    *coupon.InvalidError
		pricingErr *PricingRequiredError
	)
	switch {
	case errors.As(err, &vErr):
		return "validation_error"
	case errors.Is(err, access.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, access.ErrNotFound):
		return "not_found"
	case errors.As(err, &invalid):
		return "coupon_" + string(invalid.Reason)
	case errors.Is(err, coupon.ErrRedeemNotFound):
		return "coupon_redeem_not_found"
	case errors.Is(err, ErrCartEmpty):
		return "cart_empty"
	case errors.Is(err, ErrCartChanged):
		return "cart_changed"
	case errors.As(err, &pricingErr):
		return "pricing_required"
	default:
		return "internal"
	}
}
