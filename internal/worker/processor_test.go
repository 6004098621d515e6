package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oyinkolade/readstack/internal/queue"
)

func processTask(t *testing.T, bookID int64) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(queue.ProcessPayload{BookID: bookID})
	require.NoError(t, err)
	return asynq.NewTask(queue.ProcessBookTask, payload)
}

func TestProcessorHandlesTask(t *testing.T) {
	backend := newTestBackend(t)
	writeEpub(t, backend, "books/9/book.epub")
	repo := newFakeRepo(pendingBook(9, "book.epub"))
	processor := NewProcessor(NewPipeline(repo, backend))

	err := processor.handleProcess(context.Background(), processTask(t, 9))
	require.NoError(t, err)

	<-repo.done
	assert.Contains(t, repo.completed, int64(9))
}

func TestProcessorSkipsUnclaimableBook(t *testing.T) {
	backend := newTestBackend(t)
	repo := newFakeRepo()
	processor := NewProcessor(NewPipeline(repo, backend))

	// Not pending: the claim loses and the task is dropped without error.
	err := processor.handleProcess(context.Background(), processTask(t, 404))
	assert.NoError(t, err)
	assert.Empty(t, repo.completed)
	assert.Empty(t, repo.failed)
}

func TestProcessorRejectsMalformedPayload(t *testing.T) {
	backend := newTestBackend(t)
	repo := newFakeRepo()
	processor := NewProcessor(NewPipeline(repo, backend))

	err := processor.handleProcess(context.Background(), asynq.NewTask(queue.ProcessBookTask, []byte("{broken")))
	assert.Error(t, err)
}
