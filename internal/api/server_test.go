package api

import (
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oyinkolade/readstack/internal/model"
	"github.com/oyinkolade/readstack/internal/signing"
)

func TestSignedFileURLSurvivesAwkwardFileNames(t *testing.T) {
	tokens := signing.NewTokenService([]byte("testsecret"))
	names := []string{
		"books/7/novel.epub",
		"books/7/c++ primer.epub",
		"books/7/war & peace.epub",
		"books/7/100%.pdf",
		"books/7/notes#1.md",
	}
	for _, name := range names {
		tok := tokens.Mint(name, time.Hour)
		u, err := url.Parse(signedFileURL(tok))
		require.NoError(t, err, name)

		q := u.Query()
		// The decoded parameters must verify exactly as minted.
		assert.Equal(t, name, q.Get("file"), name)
		assert.Equal(t, strconv.FormatInt(tok.ExpiresAt, 10), q.Get("expires"), name)
		assert.True(t, tokens.Verify(q.Get("file"), q.Get("expires"), q.Get("token")), name)
	}
}

func TestServableKey(t *testing.T) {
	structured := &model.Book{ID: 12, EbookFileURL: "/api/files/books/12/novel.epub"}
	key, ok := servableKey(structured)
	require.True(t, ok)
	assert.Equal(t, "books/12/novel.epub", key)

	// Flat legacy keys carry no book id; the secure endpoint would reject
	// any URL minted for them, so minting refuses up front.
	legacy := &model.Book{ID: 3, EbookFileURL: "https://cdn.example.com/files/legacy.pdf"}
	_, ok = servableKey(legacy)
	assert.False(t, ok)

	empty := &model.Book{ID: 9}
	_, ok = servableKey(empty)
	assert.False(t, ok)
}
