package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// Local serves files from a directory tree rooted at a configured path.
type Local struct {
	root string
}

// NewLocal creates a Local backend rooted at root, creating the books and
// ebooks areas if needed.
func NewLocal(root string) (*Local, error) {
	for _, dir := range []string{root, filepath.Join(root, "books"), filepath.Join(root, "ebooks")} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
		}
	}
	return &Local{root: root}, nil
}

func (l *Local) abs(key string) (string, error) {
	if !ValidKey(key) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(l.root, filepath.FromSlash(key)), nil
}

// Stat returns size and mtime for the stored file.
func (l *Local) Stat(ctx context.Context, key string) (FileInfo, error) {
	p, err := l.abs(key)
	if err != nil {
		return FileInfo{}, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return FileInfo{}, ErrNotExist
		}
		return FileInfo{}, fmt.Errorf("stat %s: %w", key, err)
	}
	if fi.IsDir() {
		return FileInfo{}, ErrNotExist
	}
	return FileInfo{Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// Open streams the whole file.
func (l *Local) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := l.abs(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return f, nil
}

// OpenRange streams the inclusive byte range [start, end].
func (l *Local) OpenRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error) {
	p, err := l.abs(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek %s: %w", key, err)
	}
	return &limitedFile{f: f, r: io.LimitReader(f, end-start+1)}, nil
}

// ReadAll slurps the whole file; the worker uses this for archive parsing.
func (l *Local) ReadAll(ctx context.Context, key string) ([]byte, error) {
	rc, err := l.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Write stores data under key, creating parent directories as needed.
func (l *Local) Write(ctx context.Context, key string, data []byte) error {
	p, err := l.abs(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("create dir for %s: %w", key, err)
	}
	if err := os.WriteFile(p, data, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

type limitedFile struct {
	f *os.File
	r io.Reader
}

func (lf *limitedFile) Read(p []byte) (int, error) { return lf.r.Read(p) }
func (lf *limitedFile) Close() error               { return lf.f.Close() }

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func parseID(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }
