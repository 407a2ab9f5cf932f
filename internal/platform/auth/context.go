package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type contextKey string

const tokenContextKey contextKey = "welldata_token_context"

// TokenContext holds the decoded access token for the current request. It
// is published on the request context by the access token middleware and
// dies with the request; background work that needs the credential must
// receive it as an argument rather than reach for ambient state.
type TokenContext struct {
	Token   string
	TokenID string    // jti claim, or a hash of the token when absent
	Subject string    // sub claim, expected to be a WebID URL
	Expiry  time.Time // exp claim; zero when the token has no expiry
}

// SessionKey returns the identity used to partition session state: the
// token id when present, else the subject.
func (tc *TokenContext) SessionKey() string {
	if tc.TokenID != "" {
		return tc.TokenID
	}
	return tc.Subject
}

// IsExpired reports whether the token's expiry has passed.
func (tc *TokenContext) IsExpired(now time.Time) bool {
	return !tc.Expiry.IsZero() && now.After(tc.Expiry)
}

// WithContext returns a context carrying the token context.
func WithContext(ctx context.Context, tc *TokenContext) context.Context {
	return context.WithValue(ctx, tokenContextKey, tc)
}

// FromContext returns the request's token context, or nil when the request
// is unauthenticated.
func FromContext(ctx context.Context) *TokenContext {
	tc, _ := ctx.Value(tokenContextKey).(*TokenContext)
	return tc
}

// TokenHash derives a stable fallback token id from the raw token string.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}
