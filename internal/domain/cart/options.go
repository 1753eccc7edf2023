package cart

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// maxNumberExponent bounds the exponent of option numbers; normalizing
// expands a number to all of its digits.
const maxNumberExponent = 64

// Options is the structured document attached to a cart line (size, region,
// delivery e-mail and so on), kept as raw JSON. A nil Options is JSON null.
type Options []byte

// IsNull reports whether o is absent or the JSON literal null.
func (o Options) IsNull() bool {
	return len(bytes.TrimSpace(o)) == 0 || bytes.Equal(bytes.TrimSpace(o), []byte("null"))
}

// Canonical returns o with object keys sorted, insignificant whitespace
// removed and numbers normalized, so structurally equal documents are
// byte-equal. Null becomes nil.
func (o Options) Canonical() (Options, error) {
	if o.IsNull() {
		return nil, nil
	}

	if !jx.Valid(o) {
		return nil, errors.New("options: invalid json")
	}
	var e jx.Encoder
	if err := canonicalValue(jx.DecodeBytes(o), &e); err != nil {
		return nil, errors.Wrap(err, "canonicalize options")
	}
	return Options(e.Bytes()), nil
}

// Equal reports whether o and other are the same document regardless of key
// order or formatting.
func (o Options) Equal(other Options) bool {
	a, errA := o.Canonical()
	b, errB := other.Canonical()
	if errA != nil || errB != nil {
		return bytes.Equal(o, other)
	}
	return bytes.Equal(a, b)
}

// Key is a stable digest of the canonical document, empty for null. It is the
// options component of the (user, product, options) uniqueness key.
func (o Options) Key() string {
	c, err := o.Canonical()
	if err != nil {
		c = o
	}
	if len(c) == 0 {
		return ""
	}
	sum := sha256.Sum256(c)
	return hex.EncodeToString(sum[:])
}

func canonicalValue(d *jx.Decoder, e *jx.Encoder) error {
	switch d.Next() {
	case jx.Object:
		fields := make(map[string][]byte)
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var sub jx.Encoder
			if err := canonicalValue(d, &sub); err != nil {
				return errors.Wrapf(err, "field %q", key)
			}
			fields[key] = sub.Bytes()
			return nil
		}); err != nil {
			return err
		}
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		e.ObjStart()
		for _, k := range keys {
			e.FieldStart(k)
			e.Raw(fields[k])
		}
		e.ObjEnd()
		return nil
	case jx.Array:
		e.ArrStart()
		if err := d.Arr(func(d *jx.Decoder) error {
			return canonicalValue(d, e)
		}); err != nil {
			return err
		}
		e.ArrEnd()
		return nil
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return err
		}
		e.Str(s)
		return nil
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return err
		}
		v, err := decimal.NewFromString(n.String())
		if err != nil {
			return errors.Wrapf(err, "number %q", n.String())
		}
		if exp := v.Exponent(); exp > maxNumberExponent || exp < -maxNumberExponent {
			return errors.Errorf("number %q out of range", n.String())
		}
		e.RawStr(v.String())
		return nil
	case jx.Bool:
		b, err := d.Bool()
		if err != nil {
			return err
		}
		e.Bool(b)
		return nil
	case jx.Null:
		if err := d.Null(); err != nil {
			return err
		}
		e.Null()
		return nil
	default:
		return errors.New("invalid json value")
	}
}
