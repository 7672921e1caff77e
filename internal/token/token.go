package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/flexiproxy/flexiproxy/internal/config"
	"github.com/flexiproxy/flexiproxy/internal/kv"
)

// OpaquePrefix is the fixed prefix of externally-facing bearer tokens.
const OpaquePrefix = "fp-"

// DefaultShortLivedTTL applies when the caller does not specify a TTL.
const DefaultShortLivedTTL = time.Hour

var (
	// ErrSessionExpired is returned when the session assertion has expired.
	ErrSessionExpired = errors.New("token: session expired")
	// ErrSessionInvalid is returned when the assertion is malformed or the
	// signature does not verify.
	ErrSessionInvalid = errors.New("token: session invalid")
)

// NewOpaqueToken returns a fresh externally-facing bearer token. Uniqueness
// is probabilistic (UUID collision space), not guaranteed by the store.
func NewOpaqueToken() string {
	return OpaquePrefix + uuid.NewString()
}

// SessionClaims are the claims carried by a signed session assertion.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID string            `json:"uid"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// Fabricator issues short-lived gating tokens and signed session assertions.
type Fabricator struct {
	store  kv.Store
	prefix string
	jwtCfg config.JWTConfig
	nowFn  func() time.Time
}

// NewFabricator constructs a Fabricator. A nil nowFn defaults to time.Now.
func NewFabricator(store kv.Store, authTokenPrefix string, jwtCfg config.JWTConfig, nowFn func() time.Time) *Fabricator {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Fabricator{
		store:  store,
		prefix: strings.TrimSpace(authTokenPrefix),
		jwtCfg: jwtCfg,
		nowFn:  nowFn,
	}
}

func (f *Fabricator) shortLivedKey(token string) string {
	return f.prefix + ":tp:" + token
}

// IssueShortLived persists a TTL marker and returns the token gating a
// sensitive page or action.
func (f *Fabricator) IssueShortLived(ctx context.Context, ttl time.Duration) (string, error) {
	if f == nil || f.store == nil {
		return "", fmt.Errorf("token: fabricator not initialized")
	}
	if ttl <= 0 {
		ttl = DefaultShortLivedTTL
	}
	id := uuid.NewString()
	if errSet := f.store.SetTTL(ctx, f.shortLivedKey(id), []byte("1"), ttl); errSet != nil {
		return "", fmt.Errorf("token: persist marker: %w", errSet)
	}
	return id, nil
}

// VerifyShortLived reports whether the marker for token exists and has not
// expired. This is a presence check only; callers that need single use must
// call BurnShortLived after the gated action succeeds.
func (f *Fabricator) VerifyShortLived(ctx context.Context, tok string) (bool, error) {
	if f == nil || f.store == nil {
		return false, fmt.Errorf("token: fabricator not initialized")
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return false, nil
	}
	return f.store.Exists(ctx, f.shortLivedKey(tok))
}

// BurnShortLived deletes the marker so the token cannot gate another action.
func (f *Fabricator) BurnShortLived(ctx context.Context, tok string) error {
	if f == nil || f.store == nil {
		return fmt.Errorf("token: fabricator not initialized")
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return nil
	}
	return f.store.Delete(ctx, f.shortLivedKey(tok))
}

// SignSession issues a signed session assertion for userID. A non-positive
// ttl falls back to the configured expiry.
func (f *Fabricator) SignSession(userID string, extra map[string]string, ttl time.Duration) (string, error) {
	if f == nil {
		return "", fmt.Errorf("token: fabricator not initialized")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("token: missing user id")
	}
	if ttl <= 0 {
		ttl = f.jwtCfg.Expiry
	}

	now := f.nowFn()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    f.jwtCfg.Issuer,
			Audience:  jwt.ClaimStrings{f.jwtCfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		UserID: userID,
		Extra:  extra,
	}

	signed, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(f.jwtCfg.Secret))
	if errSign != nil {
		return "", fmt.Errorf("token: sign session: %w", errSign)
	}
	return signed, nil
}

// VerifySession validates a session assertion and returns its claims.
// Expiry and invalid-signature failures surface as distinct error kinds.
func (f *Fabricator) VerifySession(assertion string) (*SessionClaims, error) {
	if f == nil {
		return nil, fmt.Errorf("token: fabricator not initialized")
	}

	claims := &SessionClaims{}
	parsed, errParse := jwt.ParseWithClaims(assertion, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(f.jwtCfg.Secret), nil
		},
		jwt.WithIssuer(f.jwtCfg.Issuer),
		jwt.WithAudience(f.jwtCfg.Audience),
		jwt.WithTimeFunc(f.nowFn),
	)
	if errParse != nil {
		if errors.Is(errParse, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrSessionInvalid
	}
	if !parsed.Valid || strings.TrimSpace(claims.UserID) == "" {
		return nil, ErrSessionInvalid
	}
	return claims, nil
}
