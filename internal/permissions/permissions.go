package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/flexiproxy/flexiproxy/internal/kv"
)

// Defaults applied when a user has no stored permission record.
const (
	DefaultMaxAdapters = 3
)

// Permissions is the per-user entitlement record.
type Permissions struct {
	MaxAdapters  int  `json:"maa"`
	AdvancedTier bool `json:"adv"`
}

// Gate reads and writes per-user permission records.
type Gate struct {
	store  kv.Store
	prefix string
}

// NewGate constructs a Gate.
func NewGate(store kv.Store, prefix string) *Gate {
	return &Gate{store: store, prefix: strings.TrimSpace(prefix)}
}

func (g *Gate) key(userID string) string {
	return g.prefix + ":" + userID
}

// Get returns the user's permissions, defaulting to {3, false} when unset.
func (g *Gate) Get(ctx context.Context, userID string) (Permissions, error) {
	fallback := Permissions{MaxAdapters: DefaultMaxAdapters}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fallback, fmt.Errorf("permissions: missing user id")
	}

	raw, errGet := g.store.Get(ctx, g.key(userID))
	if errGet != nil {
		if errors.Is(errGet, kv.ErrNotFound) {
			return fallback, nil
		}
		return fallback, fmt.Errorf("permissions: get %s: %w", userID, errGet)
	}

	var perms Permissions
	if errUnmarshal := json.Unmarshal(raw, &perms); errUnmarshal != nil {
		return fallback, fmt.Errorf("permissions: decode %s: %w", userID, errUnmarshal)
	}
	if perms.MaxAdapters <= 0 {
		perms.MaxAdapters = DefaultMaxAdapters
	}
	return perms, nil
}

// Set stores the user's permissions.
func (g *Gate) Set(ctx context.Context, userID string, perms Permissions) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("permissions: missing user id")
	}
	raw, errMarshal := json.Marshal(perms)
	if errMarshal != nil {
		return fmt.Errorf("permissions: encode %s: %w", userID, errMarshal)
	}
	return g.store.Set(ctx, g.key(userID), raw)
}
