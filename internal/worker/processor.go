package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/oyinkolade/readstack/internal/queue"
	"github.com/oyinkolade/readstack/internal/repository"
)

// Processor is plugged into the asynq worker loop. Tasks are only a prompt
// to look at a specific book; the database claim decides whether this
// process actually gets to work on it.
type Processor struct {
	pipeline *Pipeline
}

// NewProcessor constructs a worker processor.
func NewProcessor(pipeline *Pipeline) *Processor {
	return &Processor{pipeline: pipeline}
}

// Handler registers the process job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ProcessBookTask, p.handleProcess)
	return mux
}

func (p *Processor) handleProcess(ctx context.Context, task *asynq.Task) error {
	var payload queue.ProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	// One record in flight per process: wait for the slot before claiming so
	// a kick never runs alongside the scheduler's sweep.
	p.pipeline.mu.Lock()
	defer p.pipeline.mu.Unlock()
	book, err := p.pipeline.repo.Claim(ctx, payload.BookID)
	if err != nil {
		if errors.Is(err, repository.ErrNoPending) {
			// Already claimed elsewhere or no longer pending; nothing to do.
			log.Printf("book %d not claimable, skipping task", payload.BookID)
			return nil
		}
		return fmt.Errorf("claim book %d: %w", payload.BookID, err)
	}
	return p.pipeline.Process(ctx, book)
}
