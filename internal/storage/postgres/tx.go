package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
)

var _ order.Transactor = (*Store)(nil)

// Store hands out units of work over a pool, either bound to a transaction
// or to the pool itself.
type Store struct {
	pool *pgxpool.Pool
	def  *unitOfWork
}

// NewStore returns a Store using pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, def: &unitOfWork{db: pool}}
}

// Default implements order.Transactor.
func (s *Store) Default() order.UnitOfWork { return s.def }

// Products returns the catalog reader.
func (s *Store) Products() *ProductRepository { return &ProductRepository{db: s.pool} }

// CartLines returns the cart repository on the pool.
func (s *Store) CartLines() *CartRepository { return &CartRepository{db: s.pool} }

// Coupons returns the coupon repository on the pool.
func (s *Store) Coupons() *CouponRepository { return &CouponRepository{db: s.pool} }

// WithinTx runs fn in a read-committed transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow order.UnitOfWork) error) (txErr error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() {
		if txErr == nil {
			return
		}
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			zctx.From(ctx).Error("Rollback failed", zap.Error(err))
		}
	}()

	if err := fn(ctx, &unitOfWork{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

type unitOfWork struct {
	db DBTX
}

func (u *unitOfWork) Orders() order.Repository { return &OrderRepository{db: u.db} }
func (u *unitOfWork) Coupons() coupon.Redeemer { return &CouponRepository{db: u.db} }
func (u *unitOfWork) Cart() cart.Consumer { return &CartRepository{db: u.db} }
