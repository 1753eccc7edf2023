package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/money"
	"github.com/xenking/storefront/internal/domain/validation"
)

const (
	maxBodyBytes = 1 << 20
	timeLayout   = time.RFC3339Nano
)

// decodeObject reads a JSON object body and calls fn for every field.
func decodeObject(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return validation.Errorf("body", "cannot read request body")
	}
	d := jx.DecodeBytes(body)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	}); err != nil {
		var vErr *validation.Error
		if errors.As(err, &vErr) {
			return vErr
		}
		return validation.Errorf("body", "malformed json object")
	}
	return nil
}

func readString(d *jx.Decoder, field string) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return "", validation.Errorf(field, "must be a string")
	}
	return s, nil
}

// readInt reads an integer that fits the storage INTEGER column.
func readInt(d *jx.Decoder, field string) (int, error) {
	n, err := d.Int32()
	if err != nil {
		return 0, validation.Errorf(field, "must be a 32-bit integer")
	}
	return int(n), nil
}

// readMoney accepts a decimal string ("9.99") or a JSON number.
func readMoney(d *jx.Decoder, field string) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, validation.Errorf(field, "must be a decimal string")
		}
		return money.Parse(field, s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, validation.Errorf(field, "must be a decimal number")
		}
		return money.Parse(field, n.String())
	default:
		if err := d.Skip(); err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.Decimal{}, validation.Errorf(field, "must be a decimal string")
	}
}

func readOptionalMoney(d *jx.Decoder, field string) (*decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := readMoney(d, field)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func readStrings(d *jx.Decoder, field string) ([]string, error) {
	var out []string
	if err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return validation.Errorf(field, "must be an array of strings")
		}
		out = append(out, s)
		return nil
	}); err != nil {
		var vErr *validation.Error
		if errors.As(err, &vErr) {
			return nil, vErr
		}
		return nil, validation.Errorf(field, "must be an array of strings")
	}
	return out, nil
}

// readOptions captures an arbitrary JSON document.
func readOptions(d *jx.Decoder) (cart.Options, error) {
	raw, err := d.Raw()
	if err != nil {
		return nil, err
	}
	return cart.Options(append([]byte(nil), raw...)), nil
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeMoney(e *jx.Encoder, name string, v decimal.Decimal) {
	e.FieldStart(name)
	e.Str(money.Format(v))
}

func writeOptionalString(e *jx.Encoder, name string, v *string) {
	e.FieldStart(name)
	if v == nil {
		e.Null()
		return
	}
	e.Str(*v)
}

func writeTime(e *jx.Encoder, name string, t time.Time) {
	e.FieldStart(name)
	e.Str(t.UTC().Format(timeLayout))
}

func writeOptions(e *jx.Encoder, name string, o cart.Options) {
	e.FieldStart(name)
	c, err := o.Canonical()
	if err != nil || c == nil {
		e.Null()
		return
	}
	e.Raw(c)
}
