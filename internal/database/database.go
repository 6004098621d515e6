package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the tables the ingestion pipeline touches, keeping
// the stack self-contained on first boot. The storefront owns the wider
// catalog schema; the books table here carries only the columns processing
// and delivery read.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS books (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	ebook_file_url TEXT,
	source_file_name TEXT,
	price NUMERIC NOT NULL DEFAULT 0,
	visibility TEXT NOT NULL DEFAULT 'private',
	status TEXT NOT NULL DEFAULT 'published',
	processing_status TEXT NOT NULL DEFAULT 'pending',
	parsing_error TEXT,
	word_count INTEGER NOT NULL DEFAULT 0,
	estimated_reading_time INTEGER NOT NULL DEFAULT 0,
	pages INTEGER NOT NULL DEFAULT 0,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_books_processing_status ON books(processing_status);

CREATE TABLE IF NOT EXISTS book_chapters (
	id BIGSERIAL PRIMARY KEY,
	book_id BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
	chapter_number INTEGER NOT NULL,
	chapter_title TEXT NOT NULL DEFAULT '',
	content_html TEXT NOT NULL DEFAULT '',
	word_count INTEGER NOT NULL DEFAULT 0,
	reading_time_minutes INTEGER NOT NULL DEFAULT 0,
	UNIQUE (book_id, chapter_number)
);

CREATE TABLE IF NOT EXISTS user_library (
	user_id TEXT NOT NULL,
	book_id BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
	added_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, book_id)
);

CREATE TABLE IF NOT EXISTS orders (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	payment_status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS order_items (
	order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	book_id BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
	PRIMARY KEY (order_id, book_id)
);

CREATE TABLE IF NOT EXISTS book_access_logs (
	id TEXT PRIMARY KEY,
	reader_id TEXT NOT NULL,
	book_id BIGINT,
	file_path TEXT NOT NULL,
	allowed BOOLEAN NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	accessed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_book_access_logs_book ON book_access_logs(book_id);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
