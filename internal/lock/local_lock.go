package lock

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type localProviderLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewLocalProviderLocker returns an in-process per-provider mutex locker.
// Sufficient when a single instance owns all bookings; multi-instance
// deployments need the Redis locker instead.
func NewLocalProviderLocker() Locker {
	return &localProviderLocker{
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (l *localProviderLocker) WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[providerID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[providerID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
