// Package storage abstracts where book files live. Keys are forward-slash
// relative paths under a configured root ("books/12/novel.epub"); the two
// implementations are the local filesystem and an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotExist is returned when a key has no stored object behind it.
var ErrNotExist = errors.New("storage: file does not exist")

// FileInfo describes one stored object.
type FileInfo struct {
	Size    int64
	ModTime time.Time
}

// Backend is the read side of book file storage. The delivery path streams
// whole files or byte ranges; the worker slurps archives for parsing.
type Backend interface {
	Stat(ctx context.Context, key string) (FileInfo, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// OpenRange streams the inclusive byte range [start, end].
	OpenRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error)
	ReadAll(ctx context.Context, key string) ([]byte, error)
	// Write stores an object; used by ingestion collaborators and tests.
	Write(ctx context.Context, key string, data []byte) error
}

// ValidKey reports whether key addresses one of the allowed storage areas
// without escaping it. Anything else is rejected before touching a backend.
func ValidKey(key string) bool {
	cleaned := path.Clean(strings.ReplaceAll(key, `\`, "/"))
	if strings.HasPrefix(cleaned, "/") || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return false
	}
	return strings.HasPrefix(cleaned, "books/") || strings.HasPrefix(cleaned, "ebooks/")
}

// ResolveSourceKey maps a book's stored file URL to its storage key. Two
// legacy conventions exist: URLs under /api/ point at the structured
// per-book directory, anything else at the flat ebooks directory.
func ResolveSourceKey(fileURL string, bookID int64) string {
	name := path.Base(strings.ReplaceAll(fileURL, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return ""
	}
	if strings.HasPrefix(fileURL, "/api/") {
		return path.Join("books", itoa(bookID), name)
	}
	return path.Join("ebooks", name)
}

// BookIDFromKey re-derives the book id embedded in a storage key by
// structural inspection: it expects a books/{id}/ segment.
func BookIDFromKey(key string) (int64, bool) {
	parts := strings.Split(path.Clean(strings.ReplaceAll(key, `\`, "/")), "/")
	for i, p := range parts {
		if p == "books" && i+1 < len(parts) {
			id, err := parseID(parts[i+1])
			if err == nil && id > 0 {
				return id, true
			}
			return 0, false
		}
	}
	return 0, false
}
