package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidKey(t *testing.T) {
	valid := []string{
		"books/12/novel.epub",
		"ebooks/legacy.pdf",
		"books/1/nested/cover.png",
	}
	for _, key := range valid {
		assert.True(t, ValidKey(key), key)
	}

	invalid := []string{
		"",
		"/books/12/novel.epub",
		"books/../secrets.txt",
		"../books/12/x",
		"uploads/12/x.epub",
		`books\..\..\x`,
		"..",
	}
	for _, key := range invalid {
		assert.False(t, ValidKey(key), key)
	}
}

func TestResolveSourceKey(t *testing.T) {
	tests := []struct {
		fileURL string
		bookID  int64
		want    string
	}{
		{"/api/files/books/12/novel.epub", 12, "books/12/novel.epub"},
		{"/api/uploads/novel.epub", 7, "books/7/novel.epub"},
		{"https://cdn.example.com/files/legacy.pdf", 3, "ebooks/legacy.pdf"},
		{"legacy.pdf", 3, "ebooks/legacy.pdf"},
		{"", 3, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveSourceKey(tt.fileURL, tt.bookID), tt.fileURL)
	}
}

func TestBookIDFromKey(t *testing.T) {
	id, ok := BookIDFromKey("books/42/novel.epub")
	require.True(t, ok)
	assert.Equal(t, int64(42), id)

	for _, key := range []string{
		"ebooks/legacy.pdf",
		"books/not-a-number/x.epub",
		"books/0/x.epub",
		"books/-3/x.epub",
		"novel.epub",
	} {
		_, ok := BookIDFromKey(key)
		assert.False(t, ok, key)
	}
}

func TestLocalBackend(t *testing.T) {
	ctx := context.Background()
	backend, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	content := make([]byte, 100)
	for i := range content {
		content[i] = byte(i)
	}
	require.NoError(t, backend.Write(ctx, "books/5/novel.epub", content))

	info, err := backend.Stat(ctx, "books/5/novel.epub")
	require.NoError(t, err)
	assert.Equal(t, int64(100), info.Size)

	data, err := backend.ReadAll(ctx, "books/5/novel.epub")
	require.NoError(t, err)
	assert.Equal(t, content, data)

	rc, err := backend.OpenRange(ctx, "books/5/novel.epub", 10, 19)
	require.NoError(t, err)
	defer rc.Close()
	part, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content[10:20], part)
}

func TestLocalBackendMissingFile(t *testing.T) {
	ctx := context.Background()
	backend, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = backend.Stat(ctx, "books/5/missing.epub")
	assert.True(t, errors.Is(err, ErrNotExist))

	_, err = backend.Open(ctx, "books/5/missing.epub")
	assert.True(t, errors.Is(err, ErrNotExist))
}

func TestLocalBackendRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	backend, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../outside.txt", "/etc/passwd", "books/../../x"} {
		err := backend.Write(ctx, key, []byte("x"))
		assert.Error(t, err, key)
	}
}
