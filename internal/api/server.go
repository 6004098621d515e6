// Package api exposes the HTTP surface: book upload and processing admin
// endpoints, access-URL minting, and the secure file endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"

	"github.com/oyinkolade/readstack/internal/config"
	"github.com/oyinkolade/readstack/internal/fileserver"
	"github.com/oyinkolade/readstack/internal/model"
	"github.com/oyinkolade/readstack/internal/queue"
	"github.com/oyinkolade/readstack/internal/repository"
	"github.com/oyinkolade/readstack/internal/signing"
	"github.com/oyinkolade/readstack/internal/storage"
)

// maxUploadSize caps ebook uploads, matching the per-entry archive limit.
const maxUploadSize = 50 << 20

// Server wires the HTTP endpoints to the repository, storage, token service
// and task queue.
type Server struct {
	cfg    *config.Config
	repo   *repository.BookRepository
	store  storage.Backend
	tokens *signing.TokenService
	files  *fileserver.Server
	queue  *asynq.Client
	server *http.Server
	once   sync.Once
}

// New constructs a Server. queueClient may be nil, in which case processing
// relies on the polling worker alone.
func New(cfg *config.Config, repo *repository.BookRepository, store storage.Backend, tokens *signing.TokenService, queueClient *asynq.Client) *Server {
	return &Server{
		cfg:    cfg,
		repo:   repo,
		store:  store,
		tokens: tokens,
		files:  fileserver.New(tokens, store, repo),
		queue:  queueClient,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/files/secure", s.files.ServeHTTP)
	r.Route("/books/{bookID}", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/access-url", s.handleAccessURL)
	})
	r.Route("/admin/books", func(r chi.Router) {
		r.Get("/processing/queue", s.handleQueueStatus)
		r.Post("/processing/retry-failed", s.handleRetryFailed)
		r.Get("/{bookID}/processing", s.handleProcessingStatus)
		r.Post("/{bookID}/processing", s.handleProcessingStart)
	})
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: s.Router(),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	log.Printf("api listening on %s", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func bookIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "bookID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid book id")
	}
	return id, nil
}

// handleUpload attaches an ebook file to an existing book and queues it for
// processing.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := bookIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1024)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "expecting multipart field 'file'", http.StatusBadRequest)
		return
	}
	defer file.Close()
	name := path.Base(strings.ReplaceAll(header.Filename, `\`, "/"))
	if name == "" || name == "." {
		http.Error(w, "missing filename", http.StatusBadRequest)
		return
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".epub", ".pdf", ".html", ".htm", ".xhtml", ".md", ".markdown":
	default:
		http.Error(w, "unsupported book format", http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read upload", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		http.Error(w, "empty file", http.StatusBadRequest)
		return
	}
	key := path.Join("books", strconv.FormatInt(id, 10), name)
	if err := s.store.Write(ctx, key, data); err != nil {
		log.Printf("store upload %s: %v", key, err)
		http.Error(w, "failed to store file", http.StatusInternalServerError)
		return
	}
	fileURL := "/api/files/" + key
	if err := s.repo.AttachSource(ctx, id, fileURL, name); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "book not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to record upload", http.StatusInternalServerError)
		return
	}
	s.kickWorker(ctx, id)
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"bookId": id,
		"status": model.StatusPending,
	})
}

// handleAccessURL mints a signed URL for an entitled reader.
func (s *Server) handleAccessURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := bookIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	readerID := r.Header.Get("X-Reader-ID")
	if readerID == "" {
		http.Error(w, "Access denied", http.StatusForbidden)
		return
	}
	allowed, err := s.repo.HasAccess(ctx, readerID, id)
	if err != nil {
		log.Printf("access check for book %d: %v", id, err)
		http.Error(w, "Access denied", http.StatusForbidden)
		return
	}
	if !allowed {
		http.Error(w, "Access denied", http.StatusForbidden)
		return
	}
	book, err := s.repo.Get(ctx, id)
	if err != nil {
		http.Error(w, "book not found", http.StatusNotFound)
		return
	}
	key, ok := servableKey(book)
	if !ok {
		http.Error(w, "book has no servable file", http.StatusNotFound)
		return
	}
	token := s.tokens.Mint(key, s.cfg.SignedURLTTL)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"url":     signedFileURL(token),
		"expires": token.ExpiresAt,
	})
}

// servableKey resolves a book's storage key and checks the secure endpoint
// can actually serve it. Flat legacy ebooks/ keys carry no book id, so the
// delivery pipeline would reject any URL minted for them; refusing here
// keeps the failure at mint time instead of handing out dead links.
func servableKey(book *model.Book) (string, bool) {
	key := storage.ResolveSourceKey(book.EbookFileURL, book.ID)
	if key == "" {
		return "", false
	}
	if _, ok := storage.BookIDFromKey(key); !ok {
		return "", false
	}
	return key, true
}

// signedFileURL renders a minted token as a secure-endpoint URL. Query
// encoding matters: file names may carry spaces, '+' or '&', and the token
// only verifies against the exact decoded path.
func signedFileURL(token signing.Token) string {
	q := url.Values{}
	q.Set("file", token.FilePath)
	q.Set("expires", strconv.FormatInt(token.ExpiresAt, 10))
	q.Set("token", token.Signature)
	return "/files/secure?" + q.Encode()
}

// handleProcessingStatus reports the processing projection for one book.
func (s *Server) handleProcessingStatus(w http.ResponseWriter, r *http.Request) {
	id, err := bookIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	book, err := s.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "book not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load book", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"processingStatus":     book.Status,
		"error":                book.ErrorMessage,
		"wordCount":            book.WordCount,
		"estimatedReadingTime": book.ReadingTimeMins,
		"pages":                book.Pages,
		"chapterCount":         book.ChapterCount,
		"metadata":             book.Metadata,
	})
}

// handleProcessingStart (re)queues one book, rejecting with a conflict while
// a worker has it claimed.
func (s *Server) handleProcessingStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := bookIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	book, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "book not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load book", http.StatusInternalServerError)
		return
	}
	if book.Status == model.StatusProcessing {
		http.Error(w, "book is already being processed", http.StatusConflict)
		return
	}
	if book.EbookFileURL == "" {
		http.Error(w, "book has no stored file", http.StatusBadRequest)
		return
	}
	queued, err := s.repo.Reprocess(ctx, id)
	if err != nil {
		http.Error(w, "failed to queue book", http.StatusInternalServerError)
		return
	}
	if !queued {
		// Lost the race with a worker claim since the status read above.
		http.Error(w, "book is already being processed", http.StatusConflict)
		return
	}
	s.kickWorker(ctx, id)
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"bookId": id,
		"status": model.StatusPending,
	})
}

func (s *Server) handleRetryFailed(w http.ResponseWriter, r *http.Request) {
	n, err := s.repo.RetryFailed(r.Context())
	if err != nil {
		http.Error(w, "failed to retry", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"requeued": n})
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.repo.GetQueueStatus(r.Context())
	if err != nil {
		http.Error(w, "failed to load queue status", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// kickWorker nudges the worker over the task queue so processing starts
// before the next poll tick. Failures are harmless; the poller will get to
// the book anyway.
func (s *Server) kickWorker(ctx context.Context, bookID int64) {
	if s.queue == nil {
		return
	}
	if err := queue.EnqueueProcess(ctx, s.queue, queue.ProcessPayload{BookID: bookID}); err != nil {
		log.Printf("kick worker for book %d: %v", bookID, err)
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}
