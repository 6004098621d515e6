// Package repository wraps all SQL used by the API, the worker, and the CLI.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oyinkolade/readstack/internal/model"
)

var (
	// ErrNotFound is returned when a book id has no row.
	ErrNotFound = errors.New("book not found")
	// ErrNoPending is returned by claim operations when no record could be
	// transitioned; racing workers lose the claim and see this.
	ErrNoPending = errors.New("no pending book to claim")
)

// BookRepository owns the books/book_chapters tables plus the entitlement
// and access-log queries the delivery path needs.
type BookRepository struct {
	pool *pgxpool.Pool
}

// NewBookRepository constructs a repository.
func NewBookRepository(pool *pgxpool.Pool) *BookRepository {
	return &BookRepository{pool: pool}
}

const bookColumns = `
	id, title, COALESCE(ebook_file_url, ''), COALESCE(source_file_name, ''),
	processing_status, parsing_error, word_count, estimated_reading_time, pages,
	(SELECT COUNT(*) FROM book_chapters c WHERE c.book_id = books.id),
	metadata, created_at, updated_at`

// Get returns one book's processing projection.
func (r *BookRepository) Get(ctx context.Context, id int64) (*model.Book, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+bookColumns+` FROM books WHERE id = $1`, id)
	book, err := scanBook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select book: %w", err)
	}
	return book, nil
}

// AttachSource records an uploaded ebook file against a book and resets it
// to pending so the queue picks it up.
func (r *BookRepository) AttachSource(ctx context.Context, id int64, fileURL, fileName string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE books SET
			ebook_file_url = $1,
			source_file_name = $2,
			processing_status = $3,
			parsing_error = NULL,
			updated_at = now()
		WHERE id = $4
	`, fileURL, fileName, model.StatusPending, id)
	if err != nil {
		return fmt.Errorf("attach source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Enqueue sets a book back to pending unless it is in flight or already
// done, so re-queuing is idempotent. Books without a stored file are left
// alone; there is nothing to process. The bool reports whether the book
// actually transitioned; a missing, untouched, or file-less book reads as
// false.
func (r *BookRepository) Enqueue(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE books SET
			processing_status = $1,
			parsing_error = NULL,
			updated_at = now()
		WHERE id = $2
			AND ebook_file_url IS NOT NULL
			AND processing_status NOT IN ($3, $4)
	`, model.StatusPending, id, model.StatusProcessing, model.StatusCompleted)
	if err != nil {
		return false, fmt.Errorf("enqueue book: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Reprocess resets a book to pending for a deliberate re-run from the admin
// trigger. Unlike Enqueue it treats completed as re-queueable; only an
// in-flight claim blocks it.
func (r *BookRepository) Reprocess(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE books SET
			processing_status = $1,
			parsing_error = NULL,
			updated_at = now()
		WHERE id = $2
			AND ebook_file_url IS NOT NULL
			AND processing_status <> $3
	`, model.StatusPending, id, model.StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("reprocess book: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClaimNextPending atomically transitions the oldest pending book to
// processing and returns it. FOR UPDATE SKIP LOCKED makes concurrent
// workers pick distinct rows; a worker that finds nothing gets ErrNoPending.
func (r *BookRepository) ClaimNextPending(ctx context.Context) (*model.Book, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE books SET
			processing_status = $1,
			updated_at = now()
		WHERE id = (
			SELECT id FROM books
			WHERE processing_status = $2 AND ebook_file_url IS NOT NULL
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING`+bookColumns,
		model.StatusProcessing, model.StatusPending)
	book, err := scanBook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoPending
		}
		return nil, fmt.Errorf("claim next pending: %w", err)
	}
	return book, nil
}

// Claim attempts the pending-to-processing transition for one specific book.
// First writer wins; losers observe zero rows and get ErrNoPending.
func (r *BookRepository) Claim(ctx context.Context, id int64) (*model.Book, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE books SET
			processing_status = $1,
			updated_at = now()
		WHERE id = $2 AND processing_status = $3 AND ebook_file_url IS NOT NULL
		RETURNING`+bookColumns,
		model.StatusProcessing, id, model.StatusPending)
	book, err := scanBook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoPending
		}
		return nil, fmt.Errorf("claim book: %w", err)
	}
	return book, nil
}

// MarkCompleted persists the parse output and flips the record to completed
// in one transaction: stats and extracted metadata on the book row, chapters
// replaced wholesale. A manifest title also refreshes the record title so
// placeholder uploads pick up the real one.
func (r *BookRepository) MarkCompleted(ctx context.Context, id int64, result model.ParseResult) error {
	words := 0
	for _, ch := range result.Chapters {
		words += ch.WordCount
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE books SET
			processing_status = $1,
			parsing_error = NULL,
			word_count = $2,
			estimated_reading_time = $3,
			pages = $4,
			metadata = $5,
			title = CASE WHEN $6 <> '' THEN $6 ELSE title END,
			updated_at = now()
		WHERE id = $7
	`, model.StatusCompleted, words, model.ReadingTimeMinutes(words), model.PageCount(words),
		result.Metadata, result.Metadata.Title, id)
	if err != nil {
		return fmt.Errorf("update book stats: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM book_chapters WHERE book_id = $1`, id); err != nil {
		return fmt.Errorf("clear chapters: %w", err)
	}
	for _, ch := range result.Chapters {
		_, err := tx.Exec(ctx, `
			INSERT INTO book_chapters (book_id, chapter_number, chapter_title, content_html, word_count, reading_time_minutes)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, ch.Order, ch.Title, ch.Content, ch.WordCount, ch.ReadingTimeMins)
		if err != nil {
			return fmt.Errorf("insert chapter %d: %w", ch.Order, err)
		}
	}
	return tx.Commit(ctx)
}

// MarkFailed records the processing error and flips the record to failed.
// The message is operator-facing and stored verbatim.
func (r *BookRepository) MarkFailed(ctx context.Context, id int64, msg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE books SET
			processing_status = $1,
			parsing_error = $2,
			updated_at = now()
		WHERE id = $3
	`, model.StatusFailed, msg, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// RetryFailed resets every failed book with a stored file back to pending,
// clearing the error, and returns how many were re-queued.
func (r *BookRepository) RetryFailed(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE books SET
			processing_status = $1,
			parsing_error = NULL,
			updated_at = now()
		WHERE processing_status = $2 AND ebook_file_url IS NOT NULL
	`, model.StatusPending, model.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("retry failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ResetStale force-resets records stuck in processing longer than olderThan
// back to pending. This is the operator-triggered reaper for claims orphaned
// by a crashed worker; the queue loop itself never calls it.
func (r *BookRepository) ResetStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := r.pool.Exec(ctx, `
		UPDATE books SET
			processing_status = $1,
			updated_at = now()
		WHERE processing_status = $2 AND updated_at < $3
	`, model.StatusPending, model.StatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reset stale: %w", err)
	}
	return tag.RowsAffected(), nil
}

// QueueStatus holds a count per processing status, informational only.
type QueueStatus struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// GetQueueStatus counts books with stored files by status. Never mutates.
func (r *BookRepository) GetQueueStatus(ctx context.Context) (QueueStatus, error) {
	var status QueueStatus
	rows, err := r.pool.Query(ctx, `
		SELECT processing_status, COUNT(*)
		FROM books
		WHERE ebook_file_url IS NOT NULL
		GROUP BY processing_status
	`)
	if err != nil {
		return status, fmt.Errorf("queue status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s model.ProcessingStatus
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return status, fmt.Errorf("scan queue status: %w", err)
		}
		switch s {
		case model.StatusPending:
			status.Pending = n
		case model.StatusProcessing:
			status.Processing = n
		case model.StatusCompleted:
			status.Completed = n
		case model.StatusFailed:
			status.Failed = n
		}
	}
	return status, rows.Err()
}

// HasAccess reports whether readerID may read bookID: the book is in their
// library, they bought it in a paid order, or the book is free/public.
func (r *BookRepository) HasAccess(ctx context.Context, readerID string, bookID int64) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx, `
		SELECT 1 FROM user_library
		WHERE user_id = $1 AND book_id = $2
		UNION
		SELECT 1 FROM order_items oi
		JOIN orders o ON oi.order_id = o.id
		WHERE o.user_id = $1 AND oi.book_id = $2 AND o.payment_status = 'paid'
		UNION
		SELECT 1 FROM books b
		WHERE b.id = $2 AND (b.price = 0 OR b.visibility = 'public') AND b.status = 'published'
		LIMIT 1
	`, readerID, bookID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check access: %w", err)
	}
	return true, nil
}

// LogAccess records one secure-file request outcome.
func (r *BookRepository) LogAccess(ctx context.Context, entry model.AccessLogEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO book_access_logs (id, reader_id, book_id, file_path, allowed, reason, accessed_at)
		VALUES ($1, $2, NULLIF($3, 0), $4, $5, $6, $7)
	`, entry.ID, entry.ReaderID, entry.BookID, entry.FilePath, entry.Allowed, entry.Reason, entry.AccessedAt)
	if err != nil {
		return fmt.Errorf("insert access log: %w", err)
	}
	return nil
}

func scanBook(row pgx.Row) (*model.Book, error) {
	var b model.Book
	err := row.Scan(
		&b.ID, &b.Title, &b.EbookFileURL, &b.SourceFileName,
		&b.Status, &b.ErrorMessage, &b.WordCount, &b.ReadingTimeMins, &b.Pages,
		&b.ChapterCount, &b.Metadata, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
