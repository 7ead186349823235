package lock

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrLockNotAcquired = errors.New("provider lock not acquired")

// Locker serializes the booking critical section per provider. The overlap
// check and the insert must both happen inside fn; two concurrent bookings
// for the same provider must never run fn at the same time.
type Locker interface {
	WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error
}
