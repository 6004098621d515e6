// Package fileserver implements the token-gated delivery endpoint for book
// files. Every request walks the same fixed checks: signed token, then
// entitlement, then storage lookup. A valid token alone never releases
// bytes; it proves the caller was handed the path, not that they may read
// the book.
package fileserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oyinkolade/readstack/internal/model"
	"github.com/oyinkolade/readstack/internal/signing"
	"github.com/oyinkolade/readstack/internal/storage"
)

// AccessStore is the persistence surface the file server needs: entitlement
// checks and the access log.
type AccessStore interface {
	HasAccess(ctx context.Context, readerID string, bookID int64) (bool, error)
	LogAccess(ctx context.Context, entry model.AccessLogEntry) error
}

// Server streams book files to entitled readers.
type Server struct {
	tokens *signing.TokenService
	store  storage.Backend
	access AccessStore
}

// New constructs a file server.
func New(tokens *signing.TokenService, store storage.Backend, access AccessStore) *Server {
	return &Server{tokens: tokens, store: store, access: access}
}

var mimeTypes = map[string]string{
	".epub":  "application/epub+zip",
	".pdf":   "application/pdf",
	".html":  "text/html; charset=utf-8",
	".htm":   "text/html; charset=utf-8",
	".xhtml": "application/xhtml+xml",
	".txt":   "text/plain; charset=utf-8",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".png":   "image/png",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".css":   "text/css; charset=utf-8",
}

func contentType(filePath string) string {
	if ct, ok := mimeTypes[strings.ToLower(path.Ext(filePath))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ServeHTTP handles GET /files/secure?file=...&expires=...&token=... with an
// optional Range header. The reader identity comes from the X-Reader-ID
// header set by the authenticating proxy.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filePath := r.URL.Query().Get("file")
	expires := r.URL.Query().Get("expires")
	token := r.URL.Query().Get("token")
	readerID := r.Header.Get("X-Reader-ID")

	deny := func(status int, msg, reason string, bookID int64) {
		s.logAccess(readerID, bookID, filePath, false, reason)
		http.Error(w, msg, status)
	}

	if !s.tokens.Verify(filePath, expires, token) {
		deny(http.StatusForbidden, "Invalid or expired token", "token rejected", 0)
		return
	}
	bookID, ok := storage.BookIDFromKey(filePath)
	if !ok || !storage.ValidKey(filePath) {
		deny(http.StatusBadRequest, "Invalid file path", "no book id in path", 0)
		return
	}
	allowed, err := s.access.HasAccess(r.Context(), readerID, bookID)
	if err != nil {
		log.Printf("access check for book %d: %v", bookID, err)
		deny(http.StatusForbidden, "Access denied", "entitlement check error", bookID)
		return
	}
	if !allowed {
		deny(http.StatusForbidden, "Access denied", "no entitlement", bookID)
		return
	}
	info, err := s.store.Stat(r.Context(), filePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			deny(http.StatusNotFound, "File not found", "file missing", bookID)
			return
		}
		log.Printf("stat %s: %v", filePath, err)
		deny(http.StatusNotFound, "File not found", "storage error", bookID)
		return
	}

	w.Header().Set("Content-Type", contentType(filePath))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "private, no-store")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		s.logAccess(readerID, bookID, filePath, true, "full")
		w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size))
		rc, err := s.store.Open(r.Context(), filePath)
		if err != nil {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		defer rc.Close()
		w.WriteHeader(http.StatusOK)
		io.Copy(w, rc)
		return
	}

	start, end, err := parseRange(rangeHeader, info.Size)
	if err != nil {
		s.logAccess(readerID, bookID, filePath, false, "unsatisfiable range")
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", info.Size))
		http.Error(w, "Requested Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return
	}
	s.logAccess(readerID, bookID, filePath, true, "range")
	rc, err := s.store.OpenRange(r.Context(), filePath, start, end)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, info.Size))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", end-start+1))
	w.WriteHeader(http.StatusPartialContent)
	io.Copy(w, rc)
}

// parseRange handles the single-range forms "bytes=a-b", "bytes=a-" and
// "bytes=-n", returning inclusive bounds within size.
func parseRange(header string, size int64) (int64, int64, error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, fmt.Errorf("unsupported range %q", header)
	}
	first, last, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}
	var start, end int64
	switch {
	case first == "" && last != "":
		// Suffix form: last n bytes.
		n, err := parseByteCount(last)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("malformed range %q", header)
		}
		if n > size {
			n = size
		}
		start, end = size-n, size-1
	case first != "" && last == "":
		off, err := parseByteCount(first)
		if err != nil {
			return 0, 0, fmt.Errorf("malformed range %q", header)
		}
		start, end = off, size-1
	case first != "" && last != "":
		off, err := parseByteCount(first)
		if err != nil {
			return 0, 0, fmt.Errorf("malformed range %q", header)
		}
		lim, err := parseByteCount(last)
		if err != nil {
			return 0, 0, fmt.Errorf("malformed range %q", header)
		}
		start, end = off, lim
	default:
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}
	if start < 0 || end < start || end >= size {
		return 0, 0, fmt.Errorf("range %d-%d outside size %d", start, end, size)
	}
	return start, end, nil
}

func parseByteCount(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative byte count")
	}
	return n, nil
}

// logAccess records the outcome without blocking the response.
func (s *Server) logAccess(readerID string, bookID int64, filePath string, allowed bool, reason string) {
	entry := model.AccessLogEntry{
		ID:         uuid.NewString(),
		ReaderID:   readerID,
		BookID:     bookID,
		FilePath:   filePath,
		Allowed:    allowed,
		Reason:     reason,
		AccessedAt: time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.access.LogAccess(ctx, entry); err != nil {
			log.Printf("access log: %v", err)
		}
	}()
}
