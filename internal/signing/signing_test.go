package signing

import (
	"strconv"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	base := time.Unix(1700000000, 0)
	svc := NewTokenService([]byte("topsecret")).WithClock(func() time.Time { return base })

	tok := svc.Mint("books/7/novel.epub", time.Hour)
	if tok.Signature == "" {
		t.Fatalf("expected signature")
	}
	expires := strconv.FormatInt(tok.ExpiresAt, 10)
	if !svc.Verify("books/7/novel.epub", expires, tok.Signature) {
		t.Fatalf("expected fresh token to verify")
	}

	// Every altered part must fail verification.
	if svc.Verify("books/8/novel.epub", expires, tok.Signature) {
		t.Fatalf("expected verification to fail for a different path")
	}
	if svc.Verify("books/7/novel.epub", strconv.FormatInt(tok.ExpiresAt+1, 10), tok.Signature) {
		t.Fatalf("expected verification to fail for a shifted expiry")
	}
	if svc.Verify("books/7/novel.epub", expires, tok.Signature+"00") {
		t.Fatalf("expected verification to fail for a tampered signature")
	}
}

func TestTokenExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	svc := NewTokenService([]byte("topsecret")).WithClock(func() time.Time { return now })

	tok := svc.Mint("books/7/novel.epub", time.Second)
	expires := strconv.FormatInt(tok.ExpiresAt, 10)
	if !svc.Verify("books/7/novel.epub", expires, tok.Signature) {
		t.Fatalf("expected token to verify before expiry")
	}

	now = now.Add(2 * time.Second)
	if svc.Verify("books/7/novel.epub", expires, tok.Signature) {
		t.Fatalf("expected token to be rejected after expiry")
	}
}

func TestVerifyMalformedExpiry(t *testing.T) {
	svc := NewTokenService([]byte("topsecret"))
	if svc.Verify("books/7/novel.epub", "not-a-number", "deadbeef") {
		t.Fatalf("expected malformed expiry to be rejected")
	}
}
