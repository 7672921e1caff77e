package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/flexiproxy/flexiproxy/internal/kv"
)

// Provider is a registered model provider selectable when binding an adapter.
type Provider struct {
	ID     string   `json:"-"`
	Name   string   `json:"name"`
	Models []string `json:"models,omitempty"`
}

// Directory lists and manages the registered model providers.
type Directory struct {
	store  kv.Store
	prefix string
}

// NewDirectory constructs a Directory.
func NewDirectory(store kv.Store, prefix string) *Directory {
	return &Directory{store: store, prefix: strings.TrimSpace(prefix)}
}

func (d *Directory) key(providerID string) string {
	return d.prefix + ":" + providerID
}

// Get returns the provider record for providerID, or nil when absent.
func (d *Directory) Get(ctx context.Context, providerID string) (*Provider, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return nil, nil
	}
	raw, errGet := d.store.Get(ctx, d.key(providerID))
	if errGet != nil {
		if errors.Is(errGet, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("provider directory: get %s: %w", providerID, errGet)
	}
	var provider Provider
	if errUnmarshal := json.Unmarshal(raw, &provider); errUnmarshal != nil {
		return nil, fmt.Errorf("provider directory: decode %s: %w", providerID, errUnmarshal)
	}
	provider.ID = providerID
	return &provider, nil
}

// List returns all registered providers.
func (d *Directory) List(ctx context.Context) ([]Provider, error) {
	keys, errScan := d.store.ScanPrefix(ctx, d.prefix+":")
	if errScan != nil {
		return nil, fmt.Errorf("provider directory: scan: %w", errScan)
	}
	if len(keys) == 0 {
		return []Provider{}, nil
	}

	values, errMGet := d.store.MGet(ctx, keys)
	if errMGet != nil {
		return nil, fmt.Errorf("provider directory: fetch: %w", errMGet)
	}

	providers := make([]Provider, 0, len(keys))
	for i, raw := range values {
		if len(raw) == 0 {
			continue
		}
		var provider Provider
		if errUnmarshal := json.Unmarshal(raw, &provider); errUnmarshal != nil {
			log.WithField("key", keys[i]).Warn("provider directory: skipping undecodable record")
			continue
		}
		provider.ID = strings.TrimPrefix(keys[i], d.prefix+":")
		providers = append(providers, provider)
	}
	return providers, nil
}

// Put registers or replaces a provider record.
func (d *Directory) Put(ctx context.Context, provider Provider) error {
	provider.ID = strings.TrimSpace(provider.ID)
	if provider.ID == "" {
		return fmt.Errorf("provider directory: missing provider id")
	}
	if strings.TrimSpace(provider.Name) == "" {
		return fmt.Errorf("provider directory: missing provider name")
	}
	raw, errMarshal := json.Marshal(provider)
	if errMarshal != nil {
		return fmt.Errorf("provider directory: encode %s: %w", provider.ID, errMarshal)
	}
	return d.store.Set(ctx, d.key(provider.ID), raw)
}

// Remove deletes a provider record. Removing an absent record is not an error.
func (d *Directory) Remove(ctx context.Context, providerID string) error {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return nil
	}
	return d.store.Delete(ctx, d.key(providerID))
}
