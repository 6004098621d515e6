// Package signing implements the HMAC capability tokens that gate access to
// stored book files. A token binds one file path to an expiry instant; it
// proves path knowledge, not authorization, so callers must still run
// entitlement checks before releasing bytes.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// TokenService mints and verifies signed file-access tokens.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// Token is a minted capability over one file path. It is never persisted;
// verification recomputes the signature from its parts.
type Token struct {
	FilePath  string `json:"filePath"`
	ExpiresAt int64  `json:"expires"`
	Signature string `json:"token"`
}

// NewTokenService creates a TokenService keyed with secret.
func NewTokenService(secret []byte) *TokenService {
	return &TokenService{secret: secret, now: time.Now}
}

// WithClock overrides the time source; tests step expiry deterministically.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// Mint returns a token for filePath valid for ttl from now.
func (s *TokenService) Mint(filePath string, ttl time.Duration) Token {
	expires := s.now().Add(ttl).Unix()
	return Token{
		FilePath:  filePath,
		ExpiresAt: expires,
		Signature: s.sign(filePath, expires),
	}
}

// Verify reports whether the presented parts form a live, untampered token.
// It never returns an error: a malformed expiry, an expired timestamp, or a
// signature mismatch all read as false.
func (s *TokenService) Verify(filePath, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	if s.now().After(time.Unix(exp, 0)) {
		return false
	}
	expected := s.sign(filePath, exp)
	// hmac.Equal performs a constant-time comparison.
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (s *TokenService) sign(filePath string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", filePath, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}
