package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is one deferred callback. Durable: it survives process restarts and is
// claimed exactly once by whichever worker polls first.
type Job struct {
	ID        uuid.UUID         `json:"id"`
	Kind      string            `json:"kind"`
	FireAt    time.Time         `json:"fire_at"`
	Payload   map[string]string `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store persists scheduled jobs. ClaimDue must be atomic: a job returned to
// one caller must never be returned to another.
type Store interface {
	Enqueue(ctx context.Context, job Job) error

	// Cancel removes a pending job. False when the job already fired or was
	// already cancelled.
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)

	// ClaimDue atomically removes and returns up to limit jobs whose fire
	// time is at or before now.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
}
