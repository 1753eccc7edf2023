package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/access"
	"github.com/xenking/storefront/internal/domain/cart"
)

func (h *Handler) listCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := access.UserFrom(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	lines, err := h.carts.List(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("lines")
		e.ArrStart()
		for i := range lines {
			encodeLine(e, &lines[i])
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := access.UserFrom(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	removed, err := h.carts.Clear(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("removed")
		e.Int64(removed)
		e.ObjEnd()
	})
}

func (h *Handler) addCartLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := access.UserFrom(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var (
		productID string
		quantity  int
		options   cart.Options
	)
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "product_id":
			productID, err = readString(d, key)
		case "quantity":
			quantity, err = readInt(d, key)
		case "options":
			options, err = readOptions(d)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	line, created, err := h.carts.AddOrMerge(ctx, userID, productID, quantity, options)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		encodeLine(e, line)
	})
}

func (h *Handler) updateCartLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := access.UserFrom(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var patch cart.Patch
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "quantity":
			q, err := readInt(d, key)
			if err != nil {
				return err
			}
			patch.Quantity = &q
		case "options":
			o, err := readOptions(d)
			if err != nil {
				return err
			}
			patch.Options = &o
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		writeError(w, r, err)
		return
	}

	line, err := h.carts.UpdateLine(ctx, userID, r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeLine(e, line)
	})
}

func (h *Handler) removeCartLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := access.UserFrom(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.RemoveLine(ctx, userID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func encodeLine(e *jx.Encoder, l *cart.Line) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(l.ID)
	e.FieldStart("product_id")
	e.Str(l.ProductID)
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	writeOptions(e, "options", l.Options)
	writeTime(e, "created_at", l.CreatedAt)
	writeTime(e, "updated_at", l.UpdatedAt)
	e.ObjEnd()
}
