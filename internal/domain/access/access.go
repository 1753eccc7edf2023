// Package access resolves caller identity and entity ownership.
//
// Every accessor that loads a user-owned entity (cart line, order, order item)
// goes through Check, so a cross-user access is indistinguishable from a
// missing entity.
package access

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

var (
	// ErrUnauthorized is returned when no caller identity is available.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned when an entity does not exist or belongs to
	// another user.
	ErrNotFound = errors.New("not found")
)

// Owned is implemented by entities that belong to a single user.
type Owned interface {
	Owner() string
}

// Check returns v when it is owned by caller and ErrNotFound otherwise.
func Check[T Owned](caller string, v T) (T, error) {
	var zero T
	if caller == "" {
		return zero, ErrUnauthorized
	}
	if v.Owner() != caller {
		return zero, ErrNotFound
	}
	return v, nil
}

// RequireUser validates a caller-supplied user id.
func RequireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUnauthorized
	}
	return nil
}

type userKey struct{}

// WithUser stores the resolved caller id in ctx.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFrom returns the caller id stored by WithUser.
func UserFrom(ctx context.Context) (string, error) {
	id, _ := ctx.Value(userKey{}).(string)
	if err := RequireUser(id); err != nil {
		return "", err
	}
	return id, nil
}
