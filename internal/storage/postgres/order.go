package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"

	"github.com/xenking/storefront/internal/domain/access"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
)

const orderColumns = `id, order_number, user_id, status, payment_method, payment_status, currency,
	subtotal, discount, coupon_discount, total, coupon_code, notes, client_ip, user_agent,
	payment_token, provider_order_id, created_at, updated_at`

const itemColumns = `i.id, i.order_id, i.product_id, i.product_name, i.quantity, i.price, i.total,
	i.options, i.delivery_status, i.activation_code, i.stock_code, i.external_order_id,
	i.delivered_at, o.user_id`

const (
	insertOrderSQL = `INSERT INTO orders (
		id, order_number, user_id, status, payment_method, payment_status, currency,
		subtotal, discount, coupon_discount, total, coupon_code, notes, client_ip, user_agent,
		payment_token, provider_order_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	insertOrderItemSQL = `INSERT INTO order_items (
		id, order_id, product_id, product_name, quantity, price, total, options, delivery_status
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE user_id = $1
	ORDER BY created_at DESC, id`

	listItemsByOrdersSQL = `SELECT ` + itemColumns + `
	FROM order_items i JOIN orders o ON o.id = i.order_id
	WHERE i.order_id = ANY($1)
	ORDER BY i.created_at, i.id`

	getOrderItemSQL = `SELECT ` + itemColumns + `
	FROM order_items i JOIN orders o ON o.id = i.order_id
	WHERE i.id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository stores order headers and their items.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository returns an OrderRepository on db.
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order header. created_at and updated_at are filled by
// the database.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if _, err := r.db.Exec(ctx, insertOrderSQL,
		o.ID, o.Number, o.UserID, string(o.Status), string(o.PaymentMethod), o.PaymentStatus, o.Currency,
		o.Subtotal, o.Discount, o.CouponDiscount, o.Total,
		lo.EmptyableToPtr(o.CouponCode), o.Notes, o.ClientIP, o.UserAgent,
		lo.EmptyableToPtr(o.PaymentToken), lo.EmptyableToPtr(o.ProviderOrderID),
	); err != nil {
		return errors.Wrapf(err, "insert order %s", o.ID)
	}
	return nil
}

// CreateItems inserts items in one batch. The first failing row aborts the
// batch.
func (r *OrderRepository) CreateItems(ctx context.Context, items []order.Item) error {
	b := &pgx.Batch{}
	for _, it := range items {
		b.Queue(insertOrderItemSQL,
			it.ID, it.OrderID, it.ProductID, it.ProductName, it.Quantity, it.Price, it.Total,
			jsonArg(it.Options), string(it.DeliveryStatus),
		)
	}

	br := r.db.SendBatch(ctx, b)
	for _, it := range items {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return errors.Wrapf(err, "insert order item for product %s", it.ProductID)
		}
	}
	if err := br.Close(); err != nil {
		return errors.Wrap(err, "close batch")
	}
	return nil
}

// Get returns the order with its items or access.ErrNotFound.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, getOrderSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, access.ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}

	items, err := r.items(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return o, nil
}

// GetItem returns an order item with the owner of its order.
func (r *OrderRepository) GetItem(ctx context.Context, id string) (*order.Item, error) {
	it, err := scanItem(r.db.QueryRow(ctx, getOrderItemSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, access.ErrNotFound
		}
		return nil, errors.Wrap(err, "get order item")
	}
	return it, nil
}

// ListByUser returns the user's orders, newest first, with items.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.db.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		o, err := scanOrder(row)
		if err != nil {
			return order.Order{}, err
		}
		return *o, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	if len(orders) == 0 {
		return orders, nil
	}

	items, err := r.items(ctx, lo.Map(orders, func(o order.Order, _ int) string { return o.ID }))
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (r *OrderRepository) items(ctx context.Context, orderIDs []string) (map[string][]order.Item, error) {
	rows, err := r.db.Query(ctx, listItemsByOrdersSQL, orderIDs)
	if err != nil {
		return nil, errors.Wrap(err, "list order items")
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		it, err := scanItem(row)
		if err != nil {
			return order.Item{}, err
		}
		return *it, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan order items")
	}
	return lo.GroupBy(items, func(it order.Item) string { return it.OrderID }), nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o                                         order.Order
		status, method                            string
		couponCode, paymentToken, providerOrderID *string
	)
	if err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &status, &method, &o.PaymentStatus, &o.Currency,
		&o.Subtotal, &o.Discount, &o.CouponDiscount, &o.Total,
		&couponCode, &o.Notes, &o.ClientIP, &o.UserAgent,
		&paymentToken, &providerOrderID, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(method)
	o.CouponCode = lo.FromPtr(couponCode)
	o.PaymentToken = lo.FromPtr(paymentToken)
	o.ProviderOrderID = lo.FromPtr(providerOrderID)
	return &o, nil
}

func scanItem(row pgx.Row) (*order.Item, error) {
	var (
		it       order.Item
		options  []byte
		delivery string
	)
	if err := row.Scan(
		&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price, &it.Total,
		&options, &delivery, &it.ActivationCode, &it.StockCode, &it.ExternalOrderID,
		&it.DeliveredAt, &it.UserID,
	); err != nil {
		return nil, err
	}
	it.Options = cart.Options(options)
	it.DeliveryStatus = order.DeliveryStatus(delivery)
	return &it, nil
}
