package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/oyinkolade/readstack/internal/repository"
)

// Scheduler sweeps the database on an interval, claiming and processing
// pending books until none remain. Claims go through an atomic
// compare-and-set, so any number of schedulers can run against the same
// database without double-processing.
type Scheduler struct {
	pipeline *Pipeline
	interval time.Duration
	ticks    <-chan time.Time
}

// NewScheduler constructs a scheduler that polls at interval.
func NewScheduler(pipeline *Pipeline, interval time.Duration) *Scheduler {
	return &Scheduler{pipeline: pipeline, interval: interval}
}

// WithTicks replaces the internal ticker with an externally driven channel.
// Tests use this to step the scheduler deterministically.
func (s *Scheduler) WithTicks(ticks <-chan time.Time) *Scheduler {
	s.ticks = ticks
	return s
}

// Run polls until ctx is cancelled. Each tick drains the pending backlog;
// ticks arriving while a sweep is in progress are coalesced by the ticker.
// Errors are logged and never stop the loop.
func (s *Scheduler) Run(ctx context.Context) {
	ticks := s.ticks
	if ticks == nil {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !s.claimAndProcess(ctx) {
			return
		}
	}
}

// claimAndProcess takes the in-flight slot, claims one pending book and runs
// it. Holding the pipeline mutex across the claim means the asynq handler
// cannot start a second record while this one is parsing.
func (s *Scheduler) claimAndProcess(ctx context.Context) bool {
	s.pipeline.mu.Lock()
	defer s.pipeline.mu.Unlock()
	book, err := s.pipeline.repo.ClaimNextPending(ctx)
	if err != nil {
		if !errors.Is(err, repository.ErrNoPending) {
			log.Printf("claim next pending: %v", err)
		}
		return false
	}
	if err := s.pipeline.Process(ctx, book); err != nil {
		log.Printf("process book %d: %v", book.ID, err)
	}
	return true
}
