// Package queue defines the async tasks exchanged between the API and the
// worker. Tasks are a wake-up signal only; which book actually gets
// processed is decided by the database claim, so a lost or duplicated task
// is harmless.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// ProcessBookTask is published when a book is queued for processing.
	ProcessBookTask = "book:process"
)

// ProcessPayload identifies the book a task refers to.
type ProcessPayload struct {
	BookID int64 `json:"book_id"`
}

// EnqueueProcess publishes a processing task for a book.
func EnqueueProcess(ctx context.Context, client *asynq.Client, payload ProcessPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(ProcessBookTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("enqueue process task: %w", err)
	}
	return nil
}
