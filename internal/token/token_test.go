package token

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/flexiproxy/flexiproxy/internal/config"
	"github.com/flexiproxy/flexiproxy/internal/kv"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:   "test-secret",
		Issuer:   "flexiproxy",
		Audience: "flexiproxy-dashboard",
		Expiry:   time.Hour,
	}
}

func TestNewOpaqueToken(t *testing.T) {
	tok := NewOpaqueToken()
	if !strings.HasPrefix(tok, "fp-") {
		t.Fatalf("expected fp- prefix, got %q", tok)
	}
	if tok == NewOpaqueToken() {
		t.Fatal("expected distinct tokens")
	}
}

func TestShortLivedTTL(t *testing.T) {
	now := time.Unix(5000, 0)
	store := kv.NewMemoryStore(func() time.Time { return now })
	fab := NewFabricator(store, "fp:authtoken", testJWTConfig(), func() time.Time { return now })
	ctx := context.Background()

	tok, err := fab.IssueShortLived(ctx, 5*time.Second)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	ok, err := fab.VerifyShortLived(ctx, tok)
	if err != nil || !ok {
		t.Fatalf("expected token valid, ok=%v err=%v", ok, err)
	}

	now = now.Add(6 * time.Second)
	ok, err = fab.VerifyShortLived(ctx, tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("expected token expired after TTL")
	}
}

func TestShortLivedBurn(t *testing.T) {
	store := kv.NewMemoryStore(nil)
	fab := NewFabricator(store, "fp:authtoken", testJWTConfig(), nil)
	ctx := context.Background()

	tok, err := fab.IssueShortLived(ctx, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if errBurn := fab.BurnShortLived(ctx, tok); errBurn != nil {
		t.Fatalf("burn: %v", errBurn)
	}
	ok, err := fab.VerifyShortLived(ctx, tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("expected burned token to be invalid")
	}
}

func TestVerifyShortLived_Unknown(t *testing.T) {
	fab := NewFabricator(kv.NewMemoryStore(nil), "fp:authtoken", testJWTConfig(), nil)
	ok, err := fab.VerifyShortLived(context.Background(), "never-issued")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("expected unknown token to be invalid")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	fab := NewFabricator(kv.NewMemoryStore(nil), "fp:authtoken", testJWTConfig(), nil)

	signed, err := fab.SignSession("user-1", map[string]string{"tier": "advanced"}, 0)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := fab.VerifySession(signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("expected user-1, got %q", claims.UserID)
	}
	if claims.Extra["tier"] != "advanced" {
		t.Fatalf("expected extra tier=advanced, got %v", claims.Extra)
	}
	if claims.ID == "" {
		t.Fatal("expected non-empty jti")
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Unix(10000, 0)
	fab := NewFabricator(kv.NewMemoryStore(nil), "fp:authtoken", testJWTConfig(), func() time.Time { return now })

	signed, err := fab.SignSession("user-1", nil, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := fab.VerifySession(signed); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestSessionInvalid(t *testing.T) {
	fab := NewFabricator(kv.NewMemoryStore(nil), "fp:authtoken", testJWTConfig(), nil)

	if _, err := fab.VerifySession("not-a-jwt"); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}

	otherCfg := testJWTConfig()
	otherCfg.Secret = "other-secret"
	other := NewFabricator(kv.NewMemoryStore(nil), "fp:authtoken", otherCfg, nil)
	signed, err := other.SignSession("user-1", nil, 0)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := fab.VerifySession(signed); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for wrong secret, got %v", err)
	}
}
