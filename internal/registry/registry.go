package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/flexiproxy/flexiproxy/internal/kv"
	"github.com/flexiproxy/flexiproxy/internal/proxydir"
	"github.com/flexiproxy/flexiproxy/internal/secret"
	"github.com/flexiproxy/flexiproxy/internal/token"
)

// maxNoteLength bounds the user-supplied adapter annotation.
const maxNoteLength = 20

var (
	// ErrUnauthorized indicates no authenticated owner was supplied.
	ErrUnauthorized = errors.New("registry: unauthorized")
	// ErrNotFound indicates the referenced adapter does not exist.
	ErrNotFound = errors.New("registry: adapter not found")
	// ErrProxyNotFound indicates the chosen proxy gateway does not exist.
	ErrProxyNotFound = errors.New("registry: proxy not found")
	// ErrValidation indicates a missing or malformed input field.
	ErrValidation = errors.New("registry: invalid input")
	// ErrStore indicates the underlying KV store failed.
	ErrStore = errors.New("registry: store failure")
)

// Input carries the user-facing fields of a create or update.
type Input struct {
	ProxyID     string
	ProviderID  string
	ModelID     string
	APIKey      string
	Note        string
	ExtraParams string
}

// Registry creates, reads, rotates, and deletes adapter records, maintaining
// the denormalized secondary indexes and the per-user modification version.
type Registry struct {
	store         kv.Store
	proxies       *proxydir.Directory
	masterKey     string
	adapterPrefix string
	versionPrefix string
	cache         *tagCache
}

// Option customizes Registry construction.
type Option func(*Registry)

// WithCache replaces the default read cache, used by tests to control time.
func WithCache(c *tagCache) Option {
	return func(r *Registry) { r.cache = c }
}

// New constructs a Registry.
func New(store kv.Store, proxies *proxydir.Directory, masterKey, adapterPrefix, versionPrefix string, opts ...Option) *Registry {
	r := &Registry{
		store:         store,
		proxies:       proxies,
		masterKey:     masterKey,
		adapterPrefix: strings.TrimSpace(adapterPrefix),
		versionPrefix: strings.TrimSpace(versionPrefix),
		cache:         newTagCache(cacheTTL, nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (i Input) validate() error {
	if strings.TrimSpace(i.ProxyID) == "" {
		return fmt.Errorf("%w: missing proxy id", ErrValidation)
	}
	if strings.TrimSpace(i.ProviderID) == "" {
		return fmt.Errorf("%w: missing provider id", ErrValidation)
	}
	if strings.TrimSpace(i.ModelID) == "" {
		return fmt.Errorf("%w: missing model id", ErrValidation)
	}
	if i.APIKey == "" {
		return fmt.Errorf("%w: missing api key", ErrValidation)
	}
	if len([]rune(i.Note)) > maxNoteLength {
		return fmt.Errorf("%w: note exceeds %d characters", ErrValidation, maxNoteLength)
	}
	return nil
}

func requireOwner(ownerUserID string) (string, error) {
	owner := strings.TrimSpace(ownerUserID)
	if owner == "" {
		return "", ErrUnauthorized
	}
	return owner, nil
}

// List returns all adapters owned by ownerUserID, with each adapter's
// Available flag computed against the live proxy directory. Results are
// cached per user until the next mutation or the revalidation window.
func (r *Registry) List(ctx context.Context, ownerUserID string) ([]Adapter, error) {
	owner, errOwner := requireOwner(ownerUserID)
	if errOwner != nil {
		return nil, errOwner
	}

	cacheKey := "list:" + owner
	if cached, ok := r.cache.get(cacheKey); ok {
		return cached.([]Adapter), nil
	}

	adapters, errLoad := r.loadAdapters(ctx, owner)
	if errLoad != nil {
		return nil, errLoad
	}

	r.cache.put(cacheKey, owner, adapters)
	return adapters, nil
}

// Count returns the number of adapters owned by ownerUserID.
func (r *Registry) Count(ctx context.Context, ownerUserID string) (int, error) {
	owner, errOwner := requireOwner(ownerUserID)
	if errOwner != nil {
		return 0, errOwner
	}

	cacheKey := "count:" + owner
	if cached, ok := r.cache.get(cacheKey); ok {
		return cached.(int), nil
	}

	keys, errScan := r.store.ScanPrefix(ctx, r.adapterKey(owner, ""))
	if errScan != nil {
		log.WithError(errScan).WithField("user", owner).Error("adapter count: scan failed")
		return 0, fmt.Errorf("%w: %v", ErrStore, errScan)
	}

	count := len(keys)
	r.cache.put(cacheKey, owner, count)
	return count, nil
}

// Get returns one adapter or ErrNotFound. Decode failures on the read path
// are reported as not found: a record that cannot be interpreted is no
// longer a live binding.
func (r *Registry) Get(ctx context.Context, ownerUserID, adapterID string) (*Adapter, error) {
	owner, errOwner := requireOwner(ownerUserID)
	if errOwner != nil {
		return nil, errOwner
	}
	adapterID = strings.TrimSpace(adapterID)
	if adapterID == "" {
		return nil, ErrNotFound
	}

	cacheKey := "get:" + owner + ":" + adapterID
	if cached, ok := r.cache.get(cacheKey); ok {
		adapter := cached.(Adapter)
		return &adapter, nil
	}

	record, errRead := r.readAdapterRecord(ctx, owner, adapterID)
	if errRead != nil {
		return nil, errRead
	}

	adapter := Adapter{
		ID:          adapterID,
		OwnerUserID: owner,
		ProxyID:     record.ProxyID,
		ProxyURL:    record.ProxyURL,
		BearerToken: record.Token,
		Note:        record.Note,
	}

	meta, errMeta := r.readTokenRecord(ctx, record.Token)
	if errMeta != nil {
		return nil, errMeta
	}
	adapter.ProviderID = meta.ProviderID
	adapter.ModelID = meta.ModelID
	adapter.ExtraParams = meta.ExtraParams

	r.cache.put(cacheKey, owner, adapter)
	return &adapter, nil
}

// Create validates the chosen proxy, encrypts the credential, mints a fresh
// adapter ID and bearer token, and writes all three records plus the version
// bump in one transaction.
//
// Quota is not checked here: the caller compares Count against the user's
// permission limit before invoking Create.
func (r *Registry) Create(ctx context.Context, ownerUserID string, input Input) (*Adapter, error) {
	owner, errOwner := requireOwner(ownerUserID)
	if errOwner != nil {
		return nil, errOwner
	}
	if errValidate := input.validate(); errValidate != nil {
		return nil, errValidate
	}
	return r.write(ctx, owner, uuid.NewString(), input, nil)
}

// Update rotates the adapter's bearer token: the old token-indexed records
// are deleted and fresh ones written in the same transaction. When no prior
// record exists it behaves like Create under the given adapter ID.
func (r *Registry) Update(ctx context.Context, ownerUserID, adapterID string, input Input) (*Adapter, error) {
	owner, errOwner := requireOwner(ownerUserID)
	if errOwner != nil {
		return nil, errOwner
	}
	adapterID = strings.TrimSpace(adapterID)
	if adapterID == "" {
		return nil, fmt.Errorf("%w: missing adapter id", ErrValidation)
	}
	if errValidate := input.validate(); errValidate != nil {
		return nil, errValidate
	}

	prior, errRead := r.readAdapterRecord(ctx, owner, adapterID)
	if errRead != nil && !errors.Is(errRead, ErrNotFound) {
		return nil, errRead
	}
	return r.write(ctx, owner, adapterID, input, prior)
}

// write performs the shared create/update transaction. A non-nil prior
// record adds deletion of the superseded token-indexed records (rotation).
func (r *Registry) write(ctx context.Context, owner, adapterID string, input Input, prior *adapterRecord) (*Adapter, error) {
	proxy, errProxy := r.proxies.Get(ctx, input.ProxyID)
	if errProxy != nil {
		log.WithError(errProxy).WithField("proxy", input.ProxyID).Error("adapter write: proxy lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrStore, errProxy)
	}
	if proxy == nil {
		return nil, ErrProxyNotFound
	}

	credential, errEncrypt := secret.Encrypt(input.APIKey, r.masterKey)
	if errEncrypt != nil {
		return nil, fmt.Errorf("registry: encrypt credential: %w", errEncrypt)
	}

	bearerToken := token.NewOpaqueToken()

	record := adapterRecord{
		Token:    bearerToken,
		ProxyID:  proxy.ID,
		ProxyURL: proxy.URL,
		Note:     input.Note,
	}
	meta := tokenRecord{
		UserID:      owner,
		ProviderID:  strings.TrimSpace(input.ProviderID),
		ModelID:     strings.TrimSpace(input.ModelID),
		ExtraParams: input.ExtraParams,
	}

	recordJSON, errRecord := json.Marshal(record)
	if errRecord != nil {
		return nil, fmt.Errorf("registry: encode adapter record: %w", errRecord)
	}
	metaJSON, errMeta := json.Marshal(meta)
	if errMeta != nil {
		return nil, fmt.Errorf("registry: encode token record: %w", errMeta)
	}
	credentialJSON, errCredential := json.Marshal(credential)
	if errCredential != nil {
		return nil, fmt.Errorf("registry: encode credential record: %w", errCredential)
	}

	var ops []kv.Op
	if prior != nil {
		ops = append(ops,
			kv.DeleteOp(r.tokenKey(prior.Token)),
			kv.DeleteOp(r.credentialKey(prior.ProxyID, prior.Token)),
		)
	}
	ops = append(ops,
		kv.SetOp(r.adapterKey(owner, adapterID), recordJSON),
		kv.SetOp(r.tokenKey(bearerToken), metaJSON),
		kv.SetOp(r.credentialKey(proxy.ID, bearerToken), credentialJSON),
		kv.IncrOp(r.versionKey(owner)),
	)

	if errTxn := r.store.Txn(ctx, ops); errTxn != nil {
		log.WithError(errTxn).WithField("user", owner).Error("adapter write: transaction failed")
		return nil, fmt.Errorf("%w: %v", ErrStore, errTxn)
	}

	r.cache.invalidateTag(owner)

	return &Adapter{
		ID:          adapterID,
		OwnerUserID: owner,
		ProxyID:     proxy.ID,
		ProxyURL:    proxy.URL,
		BearerToken: bearerToken,
		ProviderID:  meta.ProviderID,
		ModelID:     meta.ModelID,
		ExtraParams: meta.ExtraParams,
		Note:        input.Note,
		Available:   proxy.Status != proxydir.StatusUnavailable,
	}, nil
}

// Delete removes the adapter's three records and bumps the version in one
// transaction. Deleting an absent adapter succeeds without a version bump.
func (r *Registry) Delete(ctx context.Context, ownerUserID, adapterID string) error {
	owner, errOwner := requireOwner(ownerUserID)
	if errOwner != nil {
		return errOwner
	}
	adapterID = strings.TrimSpace(adapterID)
	if adapterID == "" {
		return nil
	}

	record, errRead := r.readAdapterRecord(ctx, owner, adapterID)
	if errRead != nil {
		if errors.Is(errRead, ErrNotFound) {
			return nil
		}
		return errRead
	}

	ops := []kv.Op{
		kv.DeleteOp(r.adapterKey(owner, adapterID)),
		kv.DeleteOp(r.tokenKey(record.Token)),
		kv.DeleteOp(r.credentialKey(record.ProxyID, record.Token)),
		kv.IncrOp(r.versionKey(owner)),
	}
	if errTxn := r.store.Txn(ctx, ops); errTxn != nil {
		log.WithError(errTxn).WithField("user", owner).Error("adapter delete: transaction failed")
		return fmt.Errorf("%w: %v", ErrStore, errTxn)
	}

	r.cache.invalidateTag(owner)
	return nil
}

// GetModifyVersion returns the user's modification counter, 0 if never set.
func (r *Registry) GetModifyVersion(ctx context.Context, ownerUserID string) (int64, error) {
	owner, errOwner := requireOwner(ownerUserID)
	if errOwner != nil {
		return 0, errOwner
	}

	cacheKey := "version:" + owner
	if cached, ok := r.cache.get(cacheKey); ok {
		return cached.(int64), nil
	}

	raw, errGet := r.store.Get(ctx, r.versionKey(owner))
	if errGet != nil {
		if errors.Is(errGet, kv.ErrNotFound) {
			return 0, nil
		}
		log.WithError(errGet).WithField("user", owner).Error("modify version: get failed")
		return 0, fmt.Errorf("%w: %v", ErrStore, errGet)
	}

	version, errParse := strconv.ParseInt(string(raw), 10, 64)
	if errParse != nil {
		return 0, fmt.Errorf("%w: malformed version counter", ErrStore)
	}

	r.cache.put(cacheKey, owner, version)
	return version, nil
}

// ResolveCredential decrypts the credential bound to (proxyID, bearerToken).
// This is the only credential read path: lookup by adapter ID is not
// provided.
func (r *Registry) ResolveCredential(ctx context.Context, proxyID, bearerToken string) (string, error) {
	proxyID = strings.TrimSpace(proxyID)
	bearerToken = strings.TrimSpace(bearerToken)
	if proxyID == "" || bearerToken == "" {
		return "", ErrNotFound
	}

	raw, errGet := r.store.Get(ctx, r.credentialKey(proxyID, bearerToken))
	if errGet != nil {
		if errors.Is(errGet, kv.ErrNotFound) {
			return "", ErrNotFound
		}
		log.WithError(errGet).Error("credential resolve: get failed")
		return "", fmt.Errorf("%w: %v", ErrStore, errGet)
	}

	var payload secret.Payload
	if errUnmarshal := json.Unmarshal(raw, &payload); errUnmarshal != nil {
		return "", ErrNotFound
	}

	plaintext, errDecrypt := secret.Decrypt(payload, r.masterKey)
	if errDecrypt != nil {
		log.WithError(errDecrypt).Warn("credential resolve: decrypt failed")
		return "", ErrNotFound
	}
	return plaintext, nil
}

func (r *Registry) loadAdapters(ctx context.Context, owner string) ([]Adapter, error) {
	prefix := r.adapterKey(owner, "")
	keys, errScan := r.store.ScanPrefix(ctx, prefix)
	if errScan != nil {
		log.WithError(errScan).WithField("user", owner).Error("adapter list: scan failed")
		return nil, fmt.Errorf("%w: %v", ErrStore, errScan)
	}
	if len(keys) == 0 {
		return []Adapter{}, nil
	}

	values, errMGet := r.store.MGet(ctx, keys)
	if errMGet != nil {
		log.WithError(errMGet).WithField("user", owner).Error("adapter list: fetch failed")
		return nil, fmt.Errorf("%w: %v", ErrStore, errMGet)
	}

	adapters := make([]Adapter, 0, len(keys))
	tokenKeys := make([]string, 0, len(keys))
	for i, raw := range values {
		if len(raw) == 0 {
			continue
		}
		var record adapterRecord
		if errUnmarshal := json.Unmarshal(raw, &record); errUnmarshal != nil {
			log.WithField("key", keys[i]).Warn("adapter list: skipping undecodable record")
			continue
		}
		adapters = append(adapters, Adapter{
			ID:          strings.TrimPrefix(keys[i], prefix),
			OwnerUserID: owner,
			ProxyID:     record.ProxyID,
			ProxyURL:    record.ProxyURL,
			BearerToken: record.Token,
			Note:        record.Note,
		})
		tokenKeys = append(tokenKeys, r.tokenKey(record.Token))
	}

	metas, errMetas := r.store.MGet(ctx, tokenKeys)
	if errMetas != nil {
		log.WithError(errMetas).WithField("user", owner).Error("adapter list: metadata fetch failed")
		return nil, fmt.Errorf("%w: %v", ErrStore, errMetas)
	}
	for i := range adapters {
		if i >= len(metas) || len(metas[i]) == 0 {
			continue
		}
		var meta tokenRecord
		if errUnmarshal := json.Unmarshal(metas[i], &meta); errUnmarshal != nil {
			continue
		}
		adapters[i].ProviderID = meta.ProviderID
		adapters[i].ModelID = meta.ModelID
		adapters[i].ExtraParams = meta.ExtraParams
	}

	for i := range adapters {
		proxy, errProxy := r.proxies.Get(ctx, adapters[i].ProxyID)
		if errProxy != nil {
			log.WithError(errProxy).WithField("proxy", adapters[i].ProxyID).Warn("adapter list: proxy lookup failed")
			continue
		}
		adapters[i].Available = proxy != nil && proxy.Status != proxydir.StatusUnavailable
	}

	return adapters, nil
}

func (r *Registry) readAdapterRecord(ctx context.Context, owner, adapterID string) (*adapterRecord, error) {
	raw, errGet := r.store.Get(ctx, r.adapterKey(owner, adapterID))
	if errGet != nil {
		if errors.Is(errGet, kv.ErrNotFound) {
			return nil, ErrNotFound
		}
		log.WithError(errGet).WithField("user", owner).Error("adapter read: get failed")
		return nil, fmt.Errorf("%w: %v", ErrStore, errGet)
	}
	var record adapterRecord
	if errUnmarshal := json.Unmarshal(raw, &record); errUnmarshal != nil {
		return nil, ErrNotFound
	}
	return &record, nil
}

func (r *Registry) readTokenRecord(ctx context.Context, bearerToken string) (*tokenRecord, error) {
	raw, errGet := r.store.Get(ctx, r.tokenKey(bearerToken))
	if errGet != nil {
		if errors.Is(errGet, kv.ErrNotFound) {
			return nil, ErrNotFound
		}
		log.WithError(errGet).Error("token read: get failed")
		return nil, fmt.Errorf("%w: %v", ErrStore, errGet)
	}
	var meta tokenRecord
	if errUnmarshal := json.Unmarshal(raw, &meta); errUnmarshal != nil {
		return nil, ErrNotFound
	}
	return &meta, nil
}
