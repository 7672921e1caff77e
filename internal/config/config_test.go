package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testMasterKey = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv(EnvMasterKey, testMasterKey)
	t.Setenv(EnvJWTSecret, "env-secret")
	t.Setenv(EnvRedisAddr, "localhost:6380")

	path := writeConfig(t, strings.Join([]string{
		"master-key: " + strings.Repeat("bb", 32),
		"jwt:",
		"  secret: file-secret",
		"  expiry: 2h",
		"redis:",
		"  addr: localhost:6379",
	}, "\n"))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.MasterKey != testMasterKey {
		t.Fatalf("expected env master key, got %q", cfg.MasterKey)
	}
	if cfg.JWT.Secret != "env-secret" {
		t.Fatalf("expected secret=env-secret, got %q", cfg.JWT.Secret)
	}
	if cfg.Redis.Addr != "localhost:6380" {
		t.Fatalf("expected addr=localhost:6380, got %q", cfg.Redis.Addr)
	}
	if cfg.JWT.Expiry != 2*time.Hour {
		t.Fatalf("expected expiry=2h, got %s", cfg.JWT.Expiry)
	}
}

func TestLoad_MissingMasterKey(t *testing.T) {
	t.Setenv(EnvMasterKey, "")
	t.Setenv(EnvJWTSecret, "secret")
	t.Setenv(EnvRedisAddr, "localhost:6379")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrMissingMasterKey) {
		t.Fatalf("expected ErrMissingMasterKey, got %v", err)
	}
}

func TestLoad_MalformedMasterKey(t *testing.T) {
	t.Setenv(EnvMasterKey, "not-hex")
	t.Setenv(EnvJWTSecret, "secret")
	t.Setenv(EnvRedisAddr, "localhost:6379")

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for malformed master key")
	}
}

func TestLoad_PrefixDefaults(t *testing.T) {
	t.Setenv(EnvMasterKey, testMasterKey)
	t.Setenv(EnvJWTSecret, "secret")
	t.Setenv(EnvRedisAddr, "localhost:6379")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Prefixes.Adapter != DefaultAdapterPrefix {
		t.Fatalf("expected default adapter prefix, got %q", cfg.Prefixes.Adapter)
	}
	if cfg.Prefixes.AuthToken != DefaultAuthTokenPrefix {
		t.Fatalf("expected default auth token prefix, got %q", cfg.Prefixes.AuthToken)
	}
	if cfg.JWT.Issuer != "flexiproxy" {
		t.Fatalf("expected default issuer, got %q", cfg.JWT.Issuer)
	}
}
