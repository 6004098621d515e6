// Package worker turns claimed books into parsed chapters. The same
// pipeline is driven two ways: the polling scheduler that sweeps the
// database, and the asynq handler that reacts to explicit queue tasks.
package worker

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"sync"

	"github.com/oyinkolade/readstack/internal/epub"
	"github.com/oyinkolade/readstack/internal/htmldoc"
	"github.com/oyinkolade/readstack/internal/model"
	"github.com/oyinkolade/readstack/internal/pdftext"
	"github.com/oyinkolade/readstack/internal/storage"
)

// Repository is the subset of book persistence the pipeline needs.
type Repository interface {
	ClaimNextPending(ctx context.Context) (*model.Book, error)
	Claim(ctx context.Context, id int64) (*model.Book, error)
	MarkCompleted(ctx context.Context, id int64, result model.ParseResult) error
	MarkFailed(ctx context.Context, id int64, msg string) error
}

// Pipeline downloads a claimed book's source file, parses it according to
// its format, and persists the outcome. The mutex keeps exactly one record
// in flight per process: the polling scheduler and the asynq handler both
// take it before claiming, which bounds memory use to a single archive's
// working set.
type Pipeline struct {
	repo  Repository
	store storage.Backend
	mu    sync.Mutex
}

// NewPipeline constructs a processing pipeline.
func NewPipeline(repo Repository, store storage.Backend) *Pipeline {
	return &Pipeline{repo: repo, store: store}
}

// Process runs one already-claimed book through parsing and records the
// result. The book must be in the processing state when called. The returned
// error reports infrastructure failures only; a parse failure is a normal
// outcome recorded on the book.
func (p *Pipeline) Process(ctx context.Context, book *model.Book) error {
	failure := func(msg string) error {
		log.Printf("book %d processing failed: %s", book.ID, msg)
		if err := p.repo.MarkFailed(ctx, book.ID, msg); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		return nil
	}

	key := storage.ResolveSourceKey(book.EbookFileURL, book.ID)
	if key == "" {
		return failure("no source file recorded for book")
	}
	data, err := p.store.ReadAll(ctx, key)
	if err != nil {
		return failure(fmt.Sprintf("read source file %s: %v", key, err))
	}

	result, err := parseByFormat(sourceName(book), data)
	if err != nil {
		return failure(err.Error())
	}
	if err := p.repo.MarkCompleted(ctx, book.ID, result); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	log.Printf("book %d processed: %d chapters", book.ID, len(result.Chapters))
	return nil
}

func sourceName(book *model.Book) string {
	if book.SourceFileName != "" {
		return book.SourceFileName
	}
	return path.Base(strings.ReplaceAll(book.EbookFileURL, `\`, "/"))
}

func parseByFormat(name string, data []byte) (model.ParseResult, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".epub":
		return epub.Parse(data)
	case ".html", ".htm", ".xhtml":
		return htmldoc.Process(string(data)), nil
	case ".md", ".markdown":
		return htmldoc.ProcessMarkdown(string(data)), nil
	case ".pdf":
		return pdftext.Process(data)
	default:
		return model.ParseResult{}, fmt.Errorf("unsupported book format %q", path.Ext(name))
	}
}
