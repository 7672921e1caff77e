package proxydir

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flexiproxy/flexiproxy/internal/kv"
)

func TestPutGetRemove(t *testing.T) {
	dir := NewDirectory(kv.NewMemoryStore(nil), "fp:proxy", nil)
	ctx := context.Background()

	if err := dir.Put(ctx, Proxy{ID: "gateway-us-east-01", URL: "https://us-east.example.com", Status: "active"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	proxy, err := dir.Get(ctx, "gateway-us-east-01")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if proxy == nil || proxy.URL != "https://us-east.example.com" {
		t.Fatalf("unexpected proxy: %+v", proxy)
	}
	if proxy.ID != "gateway-us-east-01" {
		t.Fatalf("expected id populated, got %q", proxy.ID)
	}

	missing, err := dir.Get(ctx, "gateway-unknown")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown proxy, got %+v", missing)
	}

	if err := dir.Remove(ctx, "gateway-us-east-01"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	proxy, err = dir.Get(ctx, "gateway-us-east-01")
	if err != nil {
		t.Fatalf("get after remove: %v", err)
	}
	if proxy != nil {
		t.Fatalf("expected nil after remove, got %+v", proxy)
	}
}

func TestListPublic(t *testing.T) {
	dir := NewDirectory(kv.NewMemoryStore(nil), "fp:proxy", nil)
	ctx := context.Background()

	for _, p := range []Proxy{
		{ID: "gateway-eu-west-01", URL: "https://eu-west.example.com", Status: "active"},
		{ID: "gateway-us-east-01", URL: "https://us-east.example.com", Status: StatusUnavailable},
	} {
		if err := dir.Put(ctx, p); err != nil {
			t.Fatalf("put %s: %v", p.ID, err)
		}
	}

	proxies, err := dir.ListPublic(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(proxies) != 2 {
		t.Fatalf("expected 2 proxies, got %d", len(proxies))
	}
	if proxies[0].ID != "gateway-eu-west-01" || proxies[1].Status != StatusUnavailable {
		t.Fatalf("unexpected proxies: %+v", proxies)
	}
}

func TestHealthCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	dir := NewDirectory(kv.NewMemoryStore(nil), "fp:proxy", nil)
	ctx := context.Background()

	status := dir.HealthCheck(ctx, Proxy{ID: "ok", URL: healthy.URL})
	if !status.Healthy {
		t.Fatalf("expected healthy, got %+v", status)
	}

	status = dir.HealthCheck(ctx, Proxy{ID: "bad", URL: failing.URL})
	if status.Healthy {
		t.Fatalf("expected unhealthy for 502, got %+v", status)
	}

	status = dir.HealthCheck(ctx, Proxy{ID: "gone", URL: "http://127.0.0.1:1"})
	if status.Healthy || status.Error == "" {
		t.Fatalf("expected network failure status with message, got %+v", status)
	}
}
