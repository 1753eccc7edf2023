package main

import (
	"bufio"
	"context"
	"os"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/money"
	"github.com/xenking/storefront/internal/domain/validation"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	maxLineBytes  = 64 << 10
)

type loadResult struct {
	Coupons    []coupon.Coupon
	Duplicates int
	Invalid    int
}

// load parses files concurrently and drops repeated codes.
//
// A shared bloom filter marks codes that may have been seen before. Only
// those suspects are compared exactly, so unique codes never need a second
// lookup.
func load(ctx context.Context, lg *zap.Logger, files []string) (*loadResult, error) {
	var (
		mu       sync.Mutex
		filter   = bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		suspects = make(map[string]struct{})
		parsed   = make([][]coupon.Coupon, len(files))
		invalid  = make([]int, len(files))
	)

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			var line int
			err := streamLines(ctx, path, func(b []byte) {
				line++
				c, err := parseCoupon(b)
				if err == nil {
					err = c.Validate()
				}
				if err != nil {
					invalid[i]++
					lg.Warn("Skipping invalid coupon",
						zap.String("file", path),
						zap.Int("line", line),
						zap.Error(err),
					)
					return
				}
				mu.Lock()
				if filter.TestAndAddString(c.Code) {
					suspects[c.Code] = struct{}{}
				}
				mu.Unlock()
				parsed[i] = append(parsed[i], *c)
			})
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			lg.Info("File parsed", zap.String("file", path), zap.Int("lines", line))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &loadResult{}
	seen := make(map[string]struct{}, len(suspects))
	for i := range files {
		res.Invalid += invalid[i]
		for _, c := range parsed[i] {
			if _, suspect := suspects[c.Code]; suspect {
				if _, dup := seen[c.Code]; dup {
					res.Duplicates++
					continue
				}
				seen[c.Code] = struct{}{}
			}
			res.Coupons = append(res.Coupons, c)
		}
	}
	return res, nil
}

// streamLines calls fn for each non-empty line of a gzip file.
func streamLines(ctx context.Context, path string, fn func(line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "gzip")
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}
		fn(scanner.Bytes())
	}
	return scanner.Err()
}

// parseCoupon decodes one JSON line. Money accepts decimal strings or
// numbers; times are RFC 3339.
func parseCoupon(b []byte) (*coupon.Coupon, error) {
	c := &coupon.Coupon{Active: true}
	err := jx.DecodeBytes(b).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch k := string(key); k {
		case "code":
			s, err := d.Str()
			c.Code = s
			return err
		case "discount_type":
			s, err := d.Str()
			c.Kind = coupon.Kind(s)
			return err
		case "discount_value":
			v, err := decodeMoney(d, k)
			if v != nil {
				c.Value = *v
			}
			return err
		case "max_discount":
			v, err := decodeMoney(d, k)
			c.MaxDiscount = v
			return err
		case "min_purchase":
			v, err := decodeMoney(d, k)
			c.MinPurchase = v
			return err
		case "valid_from":
			t, err := decodeTime(d, k)
			c.ValidFrom = t
			return err
		case "valid_until":
			t, err := decodeTime(d, k)
			c.ValidUntil = t
			return err
		case "usage_limit":
			if d.Next() == jx.Null {
				return d.Null()
			}
			n, err := d.Int()
			c.UsageLimit = &n
			return err
		case "active":
			v, err := d.Bool()
			c.Active = v
			return err
		case "description":
			s, err := d.Str()
			c.Description = s
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func decodeMoney(d *jx.Decoder, field string) (*decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		raw = n.String()
	default:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		raw = s
	}
	v, err := money.Parse(field, raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeTime(d *jx.Decoder, field string) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, validation.Errorf(field, "not an RFC 3339 time: %q", s)
	}
	return &t, nil
}
