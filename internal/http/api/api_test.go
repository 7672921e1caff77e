package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flexiproxy/flexiproxy/internal/billing"
	"github.com/flexiproxy/flexiproxy/internal/config"
	"github.com/flexiproxy/flexiproxy/internal/contact"
	"github.com/flexiproxy/flexiproxy/internal/kv"
	"github.com/flexiproxy/flexiproxy/internal/permissions"
	"github.com/flexiproxy/flexiproxy/internal/providers"
	"github.com/flexiproxy/flexiproxy/internal/proxydir"
	"github.com/flexiproxy/flexiproxy/internal/registry"
	"github.com/flexiproxy/flexiproxy/internal/token"
)

const testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type testEnv struct {
	engine *gin.Engine
	deps   Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := kv.NewMemoryStore(nil)
	directory := proxydir.NewDirectory(store, "fp:proxy", nil)
	jwtCfg := config.JWTConfig{
		Secret:   "test-secret",
		Issuer:   "flexiproxy",
		Audience: "flexiproxy-dashboard",
		Expiry:   time.Hour,
	}
	deps := Deps{
		Store:     store,
		Registry:  registry.New(store, directory, testMasterKey, "fp:adapter", "fp:modver"),
		Directory: directory,
		Providers: providers.NewDirectory(store, "fp:provider"),
		Gate:      permissions.NewGate(store, "fp:perms"),
		Tokens:    token.NewFabricator(store, "fp:authtoken", jwtCfg, nil),
		Intake:    contact.NewIntake(store, "fp:contact", nil),
		Billing:   billing.NewService(""),
	}

	if err := directory.Put(context.Background(), proxydir.Proxy{
		ID:     "gateway-us-east-01",
		URL:    "https://us-east.example.com",
		Status: "active",
	}); err != nil {
		t.Fatalf("seed proxy: %v", err)
	}

	engine := gin.New()
	RegisterRoutes(engine, deps)
	return &testEnv{engine: engine, deps: deps}
}

func (env *testEnv) session(t *testing.T, userID string, extra map[string]string) string {
	t.Helper()
	signed, err := env.deps.Tokens.SignSession(userID, extra, 0)
	if err != nil {
		t.Fatalf("sign session: %v", err)
	}
	return signed
}

func (env *testEnv) do(t *testing.T, method, path, session, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) issueGateToken(t *testing.T, session string) string {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/v0/gate-tokens", session, "{}")
	if rec.Code != http.StatusCreated {
		t.Fatalf("issue gate token: status %d body %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode gate token: %v", err)
	}
	return out.Token
}

func createBody(gateToken string, version int64) string {
	return fmt.Sprintf(`{
		"proxy_id": "gateway-us-east-01",
		"provider_id": "anthropic",
		"model_id": "claude-3",
		"api_key": "sk-test",
		"note": "demo",
		"gate_token": %q,
		"version": %d
	}`, gateToken, version)
}

func TestAdaptersRequireSession(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v0/adapters", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateAdapter_FlowAndGateTokenBurn(t *testing.T) {
	env := newTestEnv(t)
	session := env.session(t, "user-1", nil)

	gateToken := env.issueGateToken(t, session)
	rec := env.do(t, http.MethodPost, "/v0/adapters", session, createBody(gateToken, 0))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}

	var created struct {
		Adapter struct {
			ID          string `json:"adapter_id"`
			ProviderID  string `json:"provider_id"`
			ModelID     string `json:"model_id"`
			BearerToken string `json:"bearer_token"`
		} `json:"adapter"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	if created.Adapter.ProviderID != "anthropic" || created.Adapter.ModelID != "claude-3" {
		t.Fatalf("unexpected adapter: %+v", created.Adapter)
	}
	if !strings.HasPrefix(created.Adapter.BearerToken, "fp-") {
		t.Fatalf("expected fp- token, got %q", created.Adapter.BearerToken)
	}

	rec = env.do(t, http.MethodGet, "/v0/adapters", session, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), created.Adapter.ID) {
		t.Fatalf("expected new adapter in list, got %s", rec.Body.String())
	}

	// The gate token was burned on success; reusing it is rejected.
	rec = env.do(t, http.MethodPost, "/v0/adapters", session, createBody(gateToken, 1))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for reused gate token, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestCreateAdapter_StaleVersionConflict(t *testing.T) {
	env := newTestEnv(t)
	session := env.session(t, "user-1", nil)

	gateToken := env.issueGateToken(t, session)
	if rec := env.do(t, http.MethodPost, "/v0/adapters", session, createBody(gateToken, 0)); rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d", rec.Code)
	}

	// A second submit still holding version 0 must conflict, not overwrite.
	gateToken = env.issueGateToken(t, session)
	rec := env.do(t, http.MethodPost, "/v0/adapters", session, createBody(gateToken, 0))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for stale version, got %d body %s", rec.Code, rec.Body.String())
	}
	var conflict struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &conflict); err != nil {
		t.Fatalf("decode conflict: %v", err)
	}
	if conflict.Version != 1 {
		t.Fatalf("expected fresh version 1 in conflict response, got %d", conflict.Version)
	}
}

func TestCreateAdapter_QuotaEnforced(t *testing.T) {
	env := newTestEnv(t)
	session := env.session(t, "user-1", nil)

	if err := env.deps.Gate.Set(context.Background(), "user-1", permissions.Permissions{MaxAdapters: 1}); err != nil {
		t.Fatalf("set permissions: %v", err)
	}

	gateToken := env.issueGateToken(t, session)
	if rec := env.do(t, http.MethodPost, "/v0/adapters", session, createBody(gateToken, 0)); rec.Code != http.StatusCreated {
		t.Fatalf("first create: status %d", rec.Code)
	}

	gateToken = env.issueGateToken(t, session)
	rec := env.do(t, http.MethodPost, "/v0/adapters", session, createBody(gateToken, 1))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 quota exceeded, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteAdapter_VersionRequired(t *testing.T) {
	env := newTestEnv(t)
	session := env.session(t, "user-1", nil)

	gateToken := env.issueGateToken(t, session)
	rec := env.do(t, http.MethodPost, "/v0/adapters", session, createBody(gateToken, 0))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d", rec.Code)
	}
	var created struct {
		Adapter struct {
			ID string `json:"adapter_id"`
		} `json:"adapter"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = env.do(t, http.MethodDelete, "/v0/adapters/"+created.Adapter.ID, session, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without version, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/v0/adapters/"+created.Adapter.ID+"?version=1", session, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/v0/adapters/"+created.Adapter.ID, session, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestAdminRoutesRequireRole(t *testing.T) {
	env := newTestEnv(t)

	user := env.session(t, "user-1", nil)
	rec := env.do(t, http.MethodPut, "/v0/admin/proxies/gateway-eu-west-01", user,
		`{"url": "https://eu-west.example.com", "status": "active"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}

	admin := env.session(t, "admin-1", map[string]string{"role": "admin"})
	rec = env.do(t, http.MethodPut, "/v0/admin/proxies/gateway-eu-west-01", admin,
		`{"url": "https://eu-west.example.com", "status": "active"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/v0/proxies", user, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "gateway-eu-west-01") {
		t.Fatalf("expected new proxy listed, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestProviderRegistration(t *testing.T) {
	env := newTestEnv(t)

	user := env.session(t, "user-1", nil)
	rec := env.do(t, http.MethodPut, "/v0/admin/providers/anthropic", user,
		`{"name": "Anthropic", "models": ["claude-3"]}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}

	admin := env.session(t, "admin-1", map[string]string{"role": "admin"})
	rec = env.do(t, http.MethodPut, "/v0/admin/providers/anthropic", admin,
		`{"name": "Anthropic", "models": ["claude-3"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/v0/providers", user, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "anthropic") {
		t.Fatalf("expected provider listed, got %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodDelete, "/v0/admin/providers/anthropic", admin, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestContactSubmit_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	session := env.session(t, "user-1", nil)

	rec := env.do(t, http.MethodPost, "/v0/contact", session, `{"subject": "hi", "message": "hello"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/v0/contact", session, `{"subject": "hi", "message": "again"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestBillingDisabled(t *testing.T) {
	env := newTestEnv(t)
	session := env.session(t, "user-1", nil)

	rec := env.do(t, http.MethodGet, "/v0/billing/plans", session, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"enabled":false`) {
		t.Fatalf("expected billing disabled, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
