package worker

import (
	"archive/zip"
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oyinkolade/readstack/internal/model"
	"github.com/oyinkolade/readstack/internal/repository"
	"github.com/oyinkolade/readstack/internal/storage"
)

type fakeRepo struct {
	mu        sync.Mutex
	pending   []*model.Book
	completed map[int64]model.ParseResult
	failed    map[int64]string
	done      chan int64
}

func newFakeRepo(pending ...*model.Book) *fakeRepo {
	return &fakeRepo{
		pending:   pending,
		completed: map[int64]model.ParseResult{},
		failed:    map[int64]string{},
		done:      make(chan int64, 16),
	}
}

func (f *fakeRepo) ClaimNextPending(ctx context.Context) (*model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, repository.ErrNoPending
	}
	book := f.pending[0]
	f.pending = f.pending[1:]
	book.Status = model.StatusProcessing
	return book, nil
}

func (f *fakeRepo) Claim(ctx context.Context, id int64) (*model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range f.pending {
		if b.ID == id {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			b.Status = model.StatusProcessing
			return b, nil
		}
	}
	return nil, repository.ErrNoPending
}

func (f *fakeRepo) MarkCompleted(ctx context.Context, id int64, result model.ParseResult) error {
	f.mu.Lock()
	f.completed[id] = result
	f.mu.Unlock()
	f.done <- id
	return nil
}

func (f *fakeRepo) MarkFailed(ctx context.Context, id int64, msg string) error {
	f.mu.Lock()
	f.failed[id] = msg
	f.mu.Unlock()
	f.done <- id
	return nil
}

func writeEpub(t *testing.T, backend storage.Backend, key string) {
	t.Helper()
	data := buildMinimalEpub(t)
	require.NoError(t, backend.Write(context.Background(), key, data))
}

func newTestBackend(t *testing.T) storage.Backend {
	t.Helper()
	backend, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	return backend
}

func pendingBook(id int64, name string) *model.Book {
	return &model.Book{
		ID:             id,
		Title:          "Test Book",
		EbookFileURL:   "/api/files/books/" + name,
		SourceFileName: name,
		Status:         model.StatusPending,
	}
}

func TestPipelineCompletesBook(t *testing.T) {
	backend := newTestBackend(t)
	writeEpub(t, backend, "books/1/book.epub")
	repo := newFakeRepo()
	pipeline := NewPipeline(repo, backend)

	book := pendingBook(1, "book.epub")
	book.Status = model.StatusProcessing
	require.NoError(t, pipeline.Process(context.Background(), book))

	<-repo.done
	result, ok := repo.completed[1]
	require.True(t, ok)
	assert.NotEmpty(t, result.Chapters)
	// Extracted metadata must reach the persistence call, not just parsing.
	assert.Equal(t, "Fixture Book", result.Metadata.Title)
	assert.Equal(t, "A. Writer", result.Metadata.Creator)
	assert.Empty(t, repo.failed)
}

func TestPipelineProcessesMarkdown(t *testing.T) {
	backend := newTestBackend(t)
	md := "# A Markdown Book\n\nintro\n\n## One\n\nbody text\n"
	require.NoError(t, backend.Write(context.Background(), "books/4/book.md", []byte(md)))
	repo := newFakeRepo()
	pipeline := NewPipeline(repo, backend)

	require.NoError(t, pipeline.Process(context.Background(), pendingBook(4, "book.md")))

	<-repo.done
	result, ok := repo.completed[4]
	require.True(t, ok)
	assert.Equal(t, "A Markdown Book", result.Metadata.Title)
	assert.Len(t, result.Chapters, 2)
}

func TestPipelineFailsMissingSource(t *testing.T) {
	backend := newTestBackend(t)
	repo := newFakeRepo()
	pipeline := NewPipeline(repo, backend)

	book := pendingBook(2, "gone.epub")
	require.NoError(t, pipeline.Process(context.Background(), book))

	<-repo.done
	assert.Contains(t, repo.failed[2], "read source file")
	assert.Empty(t, repo.completed)
}

func TestPipelineFailsUnsupportedFormat(t *testing.T) {
	backend := newTestBackend(t)
	require.NoError(t, backend.Write(context.Background(), "books/3/book.mobi", []byte("binary")))
	repo := newFakeRepo()
	pipeline := NewPipeline(repo, backend)

	require.NoError(t, pipeline.Process(context.Background(), pendingBook(3, "book.mobi")))

	<-repo.done
	assert.Contains(t, repo.failed[3], "unsupported book format")
}

func TestSchedulerDrainsPendingOnTick(t *testing.T) {
	backend := newTestBackend(t)
	writeEpub(t, backend, "books/1/a.epub")
	writeEpub(t, backend, "books/2/b.epub")
	repo := newFakeRepo(pendingBook(1, "a.epub"), pendingBook(2, "b.epub"))
	pipeline := NewPipeline(repo, backend)

	ticks := make(chan time.Time, 1)
	scheduler := NewScheduler(pipeline, time.Minute).WithTicks(ticks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Run(ctx)

	ticks <- time.Now()
	waitForBooks(t, repo.done, 2)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Len(t, repo.completed, 2)
	assert.Empty(t, repo.pending)
}

func TestSchedulerSurvivesFailures(t *testing.T) {
	backend := newTestBackend(t)
	writeEpub(t, backend, "books/2/good.epub")
	// Book 1 has no stored file; it must fail without stopping book 2.
	repo := newFakeRepo(pendingBook(1, "missing.epub"), pendingBook(2, "good.epub"))
	pipeline := NewPipeline(repo, backend)

	ticks := make(chan time.Time, 1)
	scheduler := NewScheduler(pipeline, time.Minute).WithTicks(ticks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Run(ctx)

	ticks <- time.Now()
	waitForBooks(t, repo.done, 2)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Contains(t, repo.failed, int64(1))
	assert.Contains(t, repo.completed, int64(2))
}

type countingBackend struct {
	storage.Backend
	mu        sync.Mutex
	active    int
	maxActive int
}

func (b *countingBackend) ReadAll(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	b.active++
	if b.active > b.maxActive {
		b.maxActive = b.active
	}
	b.mu.Unlock()
	// Hold the slot long enough for a racing claim to show up.
	time.Sleep(25 * time.Millisecond)
	data, err := b.Backend.ReadAll(ctx, key)
	b.mu.Lock()
	b.active--
	b.mu.Unlock()
	return data, err
}

func TestSingleRecordInFlight(t *testing.T) {
	inner := newTestBackend(t)
	writeEpub(t, inner, "books/1/a.epub")
	writeEpub(t, inner, "books/2/b.epub")
	writeEpub(t, inner, "books/3/c.epub")
	backend := &countingBackend{Backend: inner}
	repo := newFakeRepo(pendingBook(1, "a.epub"), pendingBook(2, "b.epub"), pendingBook(3, "c.epub"))
	pipeline := NewPipeline(repo, backend)

	ticks := make(chan time.Time, 1)
	scheduler := NewScheduler(pipeline, time.Minute).WithTicks(ticks)
	processor := NewProcessor(pipeline)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Run(ctx)

	// A queue kick racing the scheduler sweep must not put a second record
	// in flight in the same process.
	task := processTask(t, 3)
	handlerDone := make(chan error, 1)
	go func() { handlerDone <- processor.handleProcess(ctx, task) }()
	ticks <- time.Now()

	waitForBooks(t, repo.done, 3)
	require.NoError(t, <-handlerDone)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, 1, backend.maxActive)
}

func waitForBooks(t *testing.T, done <-chan int64, n int) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-timeout:
			t.Fatalf("timed out waiting for %d books, got %d", n, i)
		}
	}
}

func buildMinimalEpub(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entries := []struct{ name, content string }{
		{"content.opf", `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <metadata><dc:title>Fixture Book</dc:title><dc:creator>A. Writer</dc:creator></metadata>
</package>`},
		{"ch1.xhtml", `<html><body><p>some chapter text</p></body></html>`},
	}
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
