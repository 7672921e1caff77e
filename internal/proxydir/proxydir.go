package proxydir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/flexiproxy/flexiproxy/internal/kv"
)

// StatusUnavailable marks a gateway that must not accept new bindings.
const StatusUnavailable = "unavailable"

// healthCheckTimeout bounds the liveness probe.
const healthCheckTimeout = 5 * time.Second

// Proxy is a regional gateway record.
type Proxy struct {
	ID     string `json:"-"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

// HealthStatus is the outcome of a liveness probe.
type HealthStatus struct {
	Healthy        bool   `json:"is_healthy"`
	ResponseTimeMs int64  `json:"response_time_ms,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Directory lists and health-checks the available proxy gateways.
type Directory struct {
	store  kv.Store
	prefix string
	client *http.Client
}

// NewDirectory constructs a Directory. A nil client gets the probe timeout
// applied to a fresh one.
func NewDirectory(store kv.Store, prefix string, client *http.Client) *Directory {
	if client == nil {
		client = &http.Client{Timeout: healthCheckTimeout}
	}
	return &Directory{
		store:  store,
		prefix: strings.TrimSpace(prefix),
		client: client,
	}
}

func (d *Directory) key(proxyID string) string {
	return d.prefix + ":" + proxyID
}

// Get returns the gateway record for proxyID, or nil when absent.
func (d *Directory) Get(ctx context.Context, proxyID string) (*Proxy, error) {
	proxyID = strings.TrimSpace(proxyID)
	if proxyID == "" {
		return nil, nil
	}
	raw, errGet := d.store.Get(ctx, d.key(proxyID))
	if errGet != nil {
		if errors.Is(errGet, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("proxy directory: get %s: %w", proxyID, errGet)
	}
	var proxy Proxy
	if errUnmarshal := json.Unmarshal(raw, &proxy); errUnmarshal != nil {
		return nil, fmt.Errorf("proxy directory: decode %s: %w", proxyID, errUnmarshal)
	}
	proxy.ID = proxyID
	return &proxy, nil
}

// ListPublic returns all registered gateways.
func (d *Directory) ListPublic(ctx context.Context) ([]Proxy, error) {
	keys, errScan := d.store.ScanPrefix(ctx, d.prefix+":")
	if errScan != nil {
		return nil, fmt.Errorf("proxy directory: scan: %w", errScan)
	}
	if len(keys) == 0 {
		return []Proxy{}, nil
	}

	values, errMGet := d.store.MGet(ctx, keys)
	if errMGet != nil {
		return nil, fmt.Errorf("proxy directory: fetch: %w", errMGet)
	}

	proxies := make([]Proxy, 0, len(keys))
	for i, raw := range values {
		if len(raw) == 0 {
			continue
		}
		var proxy Proxy
		if errUnmarshal := json.Unmarshal(raw, &proxy); errUnmarshal != nil {
			log.WithField("key", keys[i]).Warn("proxy directory: skipping undecodable record")
			continue
		}
		proxy.ID = strings.TrimPrefix(keys[i], d.prefix+":")
		proxies = append(proxies, proxy)
	}
	return proxies, nil
}

// Put registers or replaces a gateway record.
func (d *Directory) Put(ctx context.Context, proxy Proxy) error {
	proxy.ID = strings.TrimSpace(proxy.ID)
	if proxy.ID == "" {
		return fmt.Errorf("proxy directory: missing proxy id")
	}
	if strings.TrimSpace(proxy.URL) == "" {
		return fmt.Errorf("proxy directory: missing proxy url")
	}
	raw, errMarshal := json.Marshal(proxy)
	if errMarshal != nil {
		return fmt.Errorf("proxy directory: encode %s: %w", proxy.ID, errMarshal)
	}
	return d.store.Set(ctx, d.key(proxy.ID), raw)
}

// Remove deletes a gateway record. Removing an absent record is not an error.
func (d *Directory) Remove(ctx context.Context, proxyID string) error {
	proxyID = strings.TrimSpace(proxyID)
	if proxyID == "" {
		return nil
	}
	return d.store.Delete(ctx, d.key(proxyID))
}

// HealthCheck probes the gateway with a bounded GET. Network failure yields
// Healthy=false with an error message, never an error return.
func (d *Directory) HealthCheck(ctx context.Context, proxy Proxy) HealthStatus {
	url := strings.TrimSpace(proxy.URL)
	if url == "" {
		return HealthStatus{Healthy: false, Error: "missing proxy url"}
	}

	ctxProbe, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, errReq := http.NewRequestWithContext(ctxProbe, http.MethodGet, url, nil)
	if errReq != nil {
		return HealthStatus{Healthy: false, Error: errReq.Error()}
	}

	start := time.Now()
	resp, errDo := d.client.Do(req)
	if errDo != nil {
		return HealthStatus{Healthy: false, Error: errDo.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	elapsed := time.Since(start).Milliseconds()
	if resp.StatusCode >= http.StatusInternalServerError {
		return HealthStatus{
			Healthy:        false,
			ResponseTimeMs: elapsed,
			Error:          fmt.Sprintf("status %d", resp.StatusCode),
		}
	}
	return HealthStatus{Healthy: true, ResponseTimeMs: elapsed}
}
