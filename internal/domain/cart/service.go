package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/access"
	"github.com/xenking/storefront/internal/domain/validation"
)

// Service implements cart mutations with merge-by-(product, options).
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a cart Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithClock replaces the time source used for line timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AddOrMerge adds quantity of productID to the user's cart. When a line with
// deep-equal options exists its quantity is increased and created is false.
func (s *Service) AddOrMerge(
	ctx context.Context,
	userID, productID string,
	quantity int,
	options Options,
) (line *Line, created bool, err error) {
	if err := access.RequireUser(userID); err != nil {
		return nil, false, err
	}
	if productID == "" {
		return nil, false, validation.Errorf("product_id", "required")
	}
	if err := checkQuantity(quantity); err != nil {
		return nil, false, err
	}
	canon, err := options.Canonical()
	if err != nil {
		return nil, false, validation.Errorf("options", "invalid document: %v", err)
	}

	line, created, err = s.addOrMerge(ctx, userID, productID, quantity, canon)
	if errors.Is(err, ErrDuplicateLine) {
		// A concurrent request inserted the same line between our lookup and
		// insert; it is now visible, so merging into it succeeds.
		zctx.From(ctx).Debug("Cart line inserted concurrently, merging",
			zap.String("user_id", userID),
			zap.String("product_id", productID),
		)
		line, created, err = s.addOrMerge(ctx, userID, productID, quantity, canon)
	}
	if err != nil {
		return nil, false, err
	}
	return line, created, nil
}

func (s *Service) addOrMerge(
	ctx context.Context,
	userID, productID string,
	quantity int,
	options Options,
) (*Line, bool, error) {
	now := s.now()

	existing, err := s.repo.ListByProduct(ctx, userID, productID)
	if err != nil {
		return nil, false, errors.Wrap(err, "list product lines")
	}
	for _, l := range existing {
		if !l.Options.Equal(options) {
			continue
		}
		if l.Quantity > MaxQuantity-quantity {
			return nil, false, validation.Errorf("quantity", "merged quantity exceeds %d", MaxQuantity)
		}
		merged, err := s.repo.AddQuantity(ctx, l.ID, quantity, now)
		if err != nil {
			return nil, false, errors.Wrap(err, "merge line")
		}
		return merged, false, nil
	}

	line := &Line{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		Options:   options,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, line); err != nil {
		return nil, false, errors.Wrap(err, "insert line")
	}
	return line, true, nil
}

// UpdateLine applies patch to a line owned by userID.
func (s *Service) UpdateLine(ctx context.Context, userID, lineID string, patch Patch) (*Line, error) {
	line, err := s.owned(ctx, userID, lineID)
	if err != nil {
		return nil, err
	}

	if patch.Quantity != nil {
		if err := checkQuantity(*patch.Quantity); err != nil {
			return nil, err
		}
		line.Quantity = *patch.Quantity
	}
	if patch.Options != nil {
		canon, err := patch.Options.Canonical()
		if err != nil {
			return nil, validation.Errorf("options", "invalid document: %v", err)
		}
		line.Options = canon
	}
	line.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, line); err != nil {
		if errors.Is(err, ErrDuplicateLine) {
			return nil, validation.Errorf("options", "another line already holds this product with these options")
		}
		return nil, errors.Wrap(err, "update line")
	}
	return line, nil
}

// RemoveLine deletes a line owned by userID.
func (s *Service) RemoveLine(ctx context.Context, userID, lineID string) error {
	if _, err := s.owned(ctx, userID, lineID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, lineID); err != nil {
		return errors.Wrap(err, "delete line")
	}
	return nil
}

// List returns every line in the user's cart.
func (s *Service) List(ctx context.Context, userID string) ([]Line, error) {
	if err := access.RequireUser(userID); err != nil {
		return nil, err
	}
	lines, err := s.repo.List(ctx, userID, nil)
	if err != nil {
		return nil, errors.Wrap(err, "list lines")
	}
	return lines, nil
}

// Clear empties the user's cart and returns the number of removed lines.
func (s *Service) Clear(ctx context.Context, userID string) (int64, error) {
	if err := access.RequireUser(userID); err != nil {
		return 0, err
	}
	n, err := s.repo.Clear(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "clear cart")
	}
	return n, nil
}

func (s *Service) owned(ctx context.Context, userID, lineID string) (*Line, error) {
	if err := access.RequireUser(userID); err != nil {
		return nil, err
	}
	line, err := s.repo.Get(ctx, lineID)
	if err != nil {
		if errors.Is(err, access.ErrNotFound) {
			return nil, access.ErrNotFound
		}
		return nil, errors.Wrap(err, "get line")
	}
	if _, err := access.Check(userID, *line); err != nil {
		return nil, err
	}
	return line, nil
}

func checkQuantity(q int) error {
	if q <= 0 || q > MaxQuantity {
		return validation.Errorf("quantity", "must be between 1 and %d", MaxQuantity)
	}
	return nil
}
