package permissions

import (
	"context"
	"testing"

	"github.com/flexiproxy/flexiproxy/internal/kv"
)

func TestGet_Default(t *testing.T) {
	gate := NewGate(kv.NewMemoryStore(nil), "fp:perms")

	perms, err := gate.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if perms.MaxAdapters != DefaultMaxAdapters {
		t.Fatalf("expected default max adapters %d, got %d", DefaultMaxAdapters, perms.MaxAdapters)
	}
	if perms.AdvancedTier {
		t.Fatal("expected advanced tier false by default")
	}
}

func TestSetThenGet(t *testing.T) {
	gate := NewGate(kv.NewMemoryStore(nil), "fp:perms")
	ctx := context.Background()

	if err := gate.Set(ctx, "user-1", Permissions{MaxAdapters: 10, AdvancedTier: true}); err != nil {
		t.Fatalf("set: %v", err)
	}

	perms, err := gate.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if perms.MaxAdapters != 10 || !perms.AdvancedTier {
		t.Fatalf("unexpected permissions: %+v", perms)
	}
}

func TestGet_MissingUserID(t *testing.T) {
	gate := NewGate(kv.NewMemoryStore(nil), "fp:perms")
	if _, err := gate.Get(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty user id")
	}
}
