package contact

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flexiproxy/flexiproxy/internal/kv"
)

func TestSubmit_WindowEnforced(t *testing.T) {
	now := time.Unix(100000, 0)
	nowFn := func() time.Time { return now }
	intake := NewIntake(kv.NewMemoryStore(nowFn), "fp:contact", nowFn)
	ctx := context.Background()

	if err := intake.Submit(ctx, "user-1", "hello", "first message"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := intake.Submit(ctx, "user-1", "hello", "second message"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// Another user is unaffected.
	if err := intake.Submit(ctx, "user-2", "hi", "other user"); err != nil {
		t.Fatalf("submit other user: %v", err)
	}

	now = now.Add(25 * time.Hour)
	if err := intake.Submit(ctx, "user-1", "hello", "after window"); err != nil {
		t.Fatalf("submit after window: %v", err)
	}
}

func TestSubmit_Validation(t *testing.T) {
	intake := NewIntake(kv.NewMemoryStore(nil), "fp:contact", nil)
	ctx := context.Background()

	if err := intake.Submit(ctx, "", "s", "m"); err == nil {
		t.Fatal("expected error for missing user id")
	}
	if err := intake.Submit(ctx, "user-1", "s", "  "); err == nil {
		t.Fatal("expected error for empty message")
	}
}
