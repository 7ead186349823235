package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerializesPerProvider(t *testing.T) {
	locker := NewLocalProviderLocker()
	provider := uuid.New()

	var inCritical int
	var maxInCritical int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithProviderLock(context.Background(), provider, func(context.Context) error {
				mu.Lock()
				inCritical++
				if inCritical > maxInCritical {
					maxInCritical = inCritical
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inCritical--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInCritical, "critical sections for one provider must not overlap")
}

func TestLocalLockerIndependentProviders(t *testing.T) {
	locker := NewLocalProviderLocker()
	a, b := uuid.New(), uuid.New()

	release := make(chan struct{})
	held := make(chan struct{})

	go func() {
		_ = locker.WithProviderLock(context.Background(), a, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()

	<-held

	// Provider b is not blocked by provider a's lock.
	done := make(chan error, 1)
	go func() {
		done <- locker.WithProviderLock(context.Background(), b, func(context.Context) error {
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("lock for another provider should not block")
	}

	close(release)
}

func TestLocalLockerPropagatesError(t *testing.T) {
	locker := NewLocalProviderLocker()

	wantErr := context.DeadlineExceeded
	err := locker.WithProviderLock(context.Background(), uuid.New(), func(context.Context) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestLocalLockerRespectsCancelledContext(t *testing.T) {
	locker := NewLocalProviderLocker()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := locker.WithProviderLock(ctx, uuid.New(), func(context.Context) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}
