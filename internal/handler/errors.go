package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/money"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/validation"
)

func statusFor(code string) int {
	switch code {
	case "validation_error":
		return http.StatusBadRequest
	case "unauthorized":
		return http.StatusUnauthorized
	case "not_found":
		return http.StatusNotFound
	case "coupon_redeem_not_found", "cart_changed":
		return http.StatusConflict
	case "cart_empty", "pricing_required":
		return http.StatusUnprocessableEntity
	}
	if strings.HasPrefix(code, "coupon_") {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": {...}}. Internal errors are logged and
// replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := order.RejectReason(err)
	status := statusFor(code)
	message := err.Error()
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		message = "internal error"
	}

	var (
		vErr       *validation.Error
		invalid    *coupon.InvalidError
		pricingErr *order.PricingRequiredError
	)
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("error")
		e.ObjStart()
		e.FieldStart("code")
		e.Str(code)
		e.FieldStart("message")
		e.Str(message)
		switch {
		case errors.As(err, &vErr):
			e.FieldStart("field")
			e.Str(vErr.Field)
		case errors.As(err, &invalid):
			if invalid.MinPurchase != nil {
				e.FieldStart("min_purchase")
				e.Str(money.Format(*invalid.MinPurchase))
			}
		case errors.As(err, &pricingErr):
			e.FieldStart("missing_product_ids")
			e.ArrStart()
			for _, id := range pricingErr.MissingProductIDs {
				e.Str(id)
			}
			e.ArrEnd()
		}
		e.ObjEnd()
		e.ObjEnd()
	})
}
