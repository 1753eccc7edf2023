package order

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NumberGenerator returns a new human-facing order number.
type NumberGenerator func() string

// NewNumberGenerator returns a generator producing numbers like
// ORD1767225600000-9F3A1C: prefix, wall-clock milliseconds and a random
// suffix. Storage keeps order numbers unique, so a collision fails the insert
// instead of producing two orders with the same number.
func NewNumberGenerator(prefix string, now func() time.Time) NumberGenerator {
	return func() string {
		id := uuid.New()
		suffix := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:6])
		return prefix + strconv.FormatInt(now().UnixMilli(), 10) + "-" + suffix
	}
}
