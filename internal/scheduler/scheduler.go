package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const claimBatchSize = 100

// HandlerFunc executes a fired job's payload.
type HandlerFunc func(ctx context.Context, payload map[string]string) error

// Scheduler is a durable one-shot timer. Jobs live in the Store, not in
// process memory, so a reminder scheduled 24 hours out survives restarts.
// Firing happens from a poll loop, never on the scheduling caller.
type Scheduler struct {
	store Store

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewScheduler(store Store) *Scheduler {
	return &Scheduler{
		store:    store,
		handlers: make(map[string]HandlerFunc),
	}
}

// RegisterHandler binds a job kind to its callback. Call before Run.
func (s *Scheduler) RegisterHandler(kind string, fn HandlerFunc) {
	s.mu.Lock()
	s.handlers[kind] = fn
	s.mu.Unlock()
}

// Schedule enqueues a job to fire at fireAt. A fire time in the past is
// clamped to now and picked up on the next poll.
func (s *Scheduler) Schedule(ctx context.Context, fireAt time.Time, kind string, payload map[string]string) (uuid.UUID, error) {
	now := time.Now()
	due := false
	if !fireAt.After(now) {
		fireAt = now
		due = true
	}

	job := Job{
		ID:        uuid.New(),
		Kind:      kind,
		FireAt:    fireAt,
		Payload:   payload,
		CreatedAt: now,
	}

	if err := s.store.Enqueue(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("schedule job: %w", err)
	}

	if due {
		// Fire promptly instead of waiting a full poll interval. The claim
		// is still atomic, so a concurrent poller cannot double-fire it.
		go func() {
			if err := s.RunOnce(context.Background()); err != nil {
				log.Printf("immediate job run failed: %v", err)
			}
		}()
	}

	return job.ID, nil
}

// Cancel revokes a pending job. False when it already fired or was already
// cancelled.
func (s *Scheduler) Cancel(ctx context.Context, jobID uuid.UUID) (bool, error) {
	return s.store.Cancel(ctx, jobID)
}

// RunOnce claims and executes all currently due jobs.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	for {
		jobs, err := s.store.ClaimDue(ctx, time.Now(), claimBatchSize)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}

		for _, job := range jobs {
			s.execute(ctx, job)
		}

		if len(jobs) < claimBatchSize {
			return nil
		}
	}
}

// Run polls for due jobs until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				log.Printf("job poll error: %v", err)
			}
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) {
	s.mu.RLock()
	fn, ok := s.handlers[job.Kind]
	s.mu.RUnlock()

	if !ok {
		log.Printf("no handler for job kind %q, dropping job %s", job.Kind, job.ID)
		return
	}

	start := time.Now()
	if err := fn(ctx, job.Payload); err != nil {
		log.Printf("job %s kind=%s failed after %s: %v", job.ID, job.Kind, time.Since(start), err)
		return
	}
	log.Printf("job %s kind=%s fired in %s", job.ID, job.Kind, time.Since(start))
}
