package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/access"
	"github.com/xenking/storefront/internal/domain/money"
	"github.com/xenking/storefront/internal/domain/validation"
)

// evaluateCoupon previews a discount without redeeming the coupon.
func (h *Handler) evaluateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := access.UserFrom(ctx); err != nil {
		writeError(w, r, err)
		return
	}

	var (
		code     string
		subtotal *decimal.Decimal
	)
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "code":
			code, err = readString(d, key)
		case "subtotal":
			subtotal, err = readOptionalMoney(d, key)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if code == "" {
		writeError(w, r, validation.Errorf("code", "is required"))
		return
	}
	if subtotal == nil {
		writeError(w, r, validation.Errorf("subtotal", "is required"))
		return
	}

	ev, err := h.coupons.Evaluate(ctx, code, *subtotal)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(ev.Coupon.Code)
		e.FieldStart("discount_type")
		e.Str(string(ev.Coupon.Kind))
		writeMoney(e, "subtotal", *subtotal)
		writeMoney(e, "discount", ev.Discount)
		writeMoney(e, "total", money.Sub(*subtotal, ev.Discount))
		e.ObjEnd()
	})
}
