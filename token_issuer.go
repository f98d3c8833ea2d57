package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// tokenByteLength is 256 bits of entropy per token.
const tokenByteLength = 32

// IssuedToken is a token pairing: the opaque value and its expiry. Both are
// stored together and cleared together.
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// TokenIssuer produces and validates time-bounded, single-use opaque tokens
// for the verification and password-reset flows. One issuer per purpose,
// each with its own TTL.
type TokenIssuer struct {
	ttl time.Duration
	now func() time.Time
}

// TokenIssuerOption customizes a TokenIssuer.
type TokenIssuerOption func(*TokenIssuer)

// WithTokenClock injects a clock, used by tests to pin expiry boundaries.
func WithTokenClock(clock func() time.Time) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if clock != nil {
			ti.now = clock
		}
	}
}

// NewTokenIssuer returns an issuer whose tokens live for ttl.
func NewTokenIssuer(ttl time.Duration, opts ...TokenIssuerOption) *TokenIssuer {
	ti := &TokenIssuer{
		ttl: ttl,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ti)
		}
	}
	return ti
}

// Issue generates a fresh token pairing from the system CSPRNG.
func (ti *TokenIssuer) Issue() (IssuedToken, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return IssuedToken{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read random bytes for token")
	}

	return IssuedToken{
		Value:     base64.RawURLEncoding.EncodeToString(buf),
		ExpiresAt: ti.now().Add(ti.ttl),
	}, nil
}

// Validate checks a presented token against the stored pairing. It returns
// ErrTokenInvalid for a missing pairing, a mismatch, and an expired token
// alike; callers cannot distinguish the cases. A token presented exactly at
// its expiry instant is still valid.
func (ti *TokenIssuer) Validate(stored string, expiresAt *time.Time, presented string) error {
	if stored == "" || expiresAt == nil || presented == "" {
		return ErrTokenInvalid
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1 {
		return ErrTokenInvalid
	}

	if ti.now().After(*expiresAt) {
		return ErrTokenInvalid
	}

	return nil
}

// WithinCooldown reports whether a resend request falls inside the cooldown
// window following the previous send.
func WithinCooldown(lastSent *time.Time, window time.Duration, now time.Time) bool {
	if lastSent == nil {
		return false
	}
	return now.Sub(*lastSent) < window
}
