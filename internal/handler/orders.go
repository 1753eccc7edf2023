package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/samber/lo"

	"github.com/xenking/storefront/internal/domain/access"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/validation"
)

// decodeOrderField handles the fields shared by direct orders and cart
// checkouts. It reports false for unknown keys.
func decodeOrderField(d *jx.Decoder, key string, req *order.ComposeRequest) (bool, error) {
	var err error
	switch key {
	case "coupon_code":
		req.CouponCode, err = readString(d, key)
	case "payment_method":
		var s string
		s, err = readString(d, key)
		req.PaymentMethod = order.PaymentMethod(s)
	case "payment_status":
		req.PaymentStatus, err = readString(d, key)
	case "notes":
		req.Notes, err = readString(d, key)
	case "order_number":
		req.OrderNumber, err = readString(d, key)
	case "subtotal":
		req.Subtotal, err = readOptionalMoney(d, key)
	case "discount":
		req.Discount, err = readOptionalMoney(d, key)
	case "total":
		req.Total, err = readOptionalMoney(d, key)
	default:
		return false, nil
	}
	return true, err
}

func decodeDirectItem(d *jx.Decoder) (order.DirectItem, error) {
	var item order.DirectItem
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
		switch string(key) {
		case "product_id":
			item.ProductID, err = readString(d, "items")
		case "name":
			item.Name, err = readString(d, "items")
		case "quantity":
			item.Quantity, err = readInt(d, "items")
		case "price":
			item.Price, err = readMoney(d, "items")
		case "total":
			item.Total, err = readOptionalMoney(d, "items")
		case "options":
			item.Options, err = readOptions(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return item, err
}

func (h *Handler) newRequest(r *http.Request, userID string) order.ComposeRequest {
	return order.ComposeRequest{
		UserID:    userID,
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// placeOrder creates an order from caller-supplied items.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := access.UserFrom(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	req := h.newRequest(r, userID)
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key == "items" {
			return d.Arr(func(d *jx.Decoder) error {
				item, err := decodeDirectItem(d)
				if err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		}
		ok, err := decodeOrderField(d, key, &req)
		if !ok {
			return d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.Items) == 0 {
		writeError(w, r, validation.Errorf("items", "at least one item is required"))
		return
	}

	h.place(w, r, req)
}

// checkout turns the caller's cart, or the selected lines of it, into an
// order priced from the catalog.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := access.UserFrom(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	req := h.newRequest(r, userID)
	sel := &order.CartSelection{}
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) (err error) {
		if key == "cart_line_ids" {
			sel.LineIDs, err = readStrings(d, key)
			return err
		}
		ok, err := decodeOrderField(d, key, &req)
		if !ok {
			return d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	pricing, err := h.cartPricing(ctx, userID, sel.LineIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sel.Pricing = pricing
	req.Cart = sel

	h.place(w, r, req)
}

// cartPricing prices the products referenced by the selected cart lines.
func (h *Handler) cartPricing(ctx context.Context, userID string, lineIDs []string) (map[string]order.Price, error) {
	lines, err := h.carts.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(lineIDs) > 0 {
		selected := lo.SliceToMap(lineIDs, func(id string) (string, struct{}) { return id, struct{}{} })
		lines = lo.Filter(lines, func(l cart.Line, _ int) bool {
			_, ok := selected[l.ID]
			return ok
		})
	}
	if len(lines) == 0 {
		return map[string]order.Price{}, nil
	}
	ids := lo.Uniq(lo.Map(lines, func(l cart.Line, _ int) string { return l.ProductID }))
	products, err := h.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return product.Pricing(products), nil
}

func (h *Handler) place(w http.ResponseWriter, r *http.Request, req order.ComposeRequest) {
	o, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := access.UserFrom(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orders, err := h.orders.ListOrders(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("orders")
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := access.UserFrom(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.GetOrder(ctx, userID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func (h *Handler) getOrderItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := access.UserFrom(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	item, err := h.orders.GetItem(ctx, userID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeItem(e, item)
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("order_number")
	e.Str(o.Number)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("payment_method")
	e.Str(string(o.PaymentMethod))
	e.FieldStart("payment_status")
	e.Str(o.PaymentStatus)
	e.FieldStart("currency")
	e.Str(o.Currency)
	writeMoney(e, "subtotal", o.Subtotal)
	writeMoney(e, "discount", o.Discount)
	writeMoney(e, "coupon_discount", o.CouponDiscount)
	writeMoney(e, "total", o.Total)
	writeOptionalString(e, "coupon_code", lo.EmptyableToPtr(o.CouponCode))
	writeOptionalString(e, "notes", lo.EmptyableToPtr(o.Notes))
	writeTime(e, "created_at", o.CreatedAt)
	writeTime(e, "updated_at", o.UpdatedAt)
	e.FieldStart("items")
	e.ArrStart()
	for i := range o.Items {
		encodeItem(e, &o.Items[i])
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeItem(e *jx.Encoder, it *order.Item) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(it.ID)
	e.FieldStart("order_id")
	e.Str(it.OrderID)
	e.FieldStart("product_id")
	e.Str(it.ProductID)
	e.FieldStart("product_name")
	e.Str(it.ProductName)
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	writeMoney(e, "price", it.Price)
	writeMoney(e, "total", it.Total)
	writeOptions(e, "options", it.Options)
	e.FieldStart("delivery_status")
	e.Str(string(it.DeliveryStatus))
	writeOptionalString(e, "activation_code", it.ActivationCode)
	writeOptionalString(e, "stock_code", it.StockCode)
	e.FieldStart("delivered_at")
	if it.DeliveredAt == nil {
		e.Null()
	} else {
		e.Str(it.DeliveredAt.UTC().Format(timeLayout))
	}
	e.ObjEnd()
}
