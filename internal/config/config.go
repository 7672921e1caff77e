package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath  = "FLEXIPROXY_CONFIG"
	EnvRedisAddr   = "REDIS_ADDR"
	EnvRedisPass   = "REDIS_PASSWORD"
	EnvMasterKey   = "MASTER_KEY"
	EnvJWTSecret   = "JWT_SECRET"
	EnvJWTIssuer   = "JWT_ISSUER"
	EnvJWTAudience = "JWT_AUDIENCE"
	EnvStripeKey   = "STRIPE_API_KEY"
)

// Default key prefixes used when the config file omits them.
const (
	DefaultAdapterPrefix     = "fp:adapter"
	DefaultVersionPrefix     = "fp:modver"
	DefaultProxyPrefix       = "fp:proxy"
	DefaultProviderPrefix    = "fp:provider"
	DefaultPermissionsPrefix = "fp:perms"
	DefaultAuthTokenPrefix   = "fp:authtoken"
	DefaultContactPrefix     = "fp:contact"
)

var (
	// ErrMissingMasterKey indicates no credential encryption key is configured.
	ErrMissingMasterKey = errors.New("missing master key (set `master-key` in config file or MASTER_KEY)")
	// ErrMissingJWTSecret indicates no session signing secret is configured.
	ErrMissingJWTSecret = errors.New("missing jwt secret (set `jwt.secret` in config file or JWT_SECRET)")
	// ErrMissingRedisAddr indicates no store address is configured.
	ErrMissingRedisAddr = errors.New("missing redis address (set `redis.addr` in config file or REDIS_ADDR)")
)

// RedisConfig holds KV store connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// JWTConfig holds session assertion signing settings.
type JWTConfig struct {
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	Expiry   time.Duration `yaml:"-"`
}

// UnmarshalYAML decodes the expiry from a duration string such as "2h".
func (j *JWTConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Secret   string `yaml:"secret"`
		Issuer   string `yaml:"issuer"`
		Audience string `yaml:"audience"`
		Expiry   string `yaml:"expiry"`
	}
	if errDecode := value.Decode(&raw); errDecode != nil {
		return errDecode
	}
	j.Secret = raw.Secret
	j.Issuer = raw.Issuer
	j.Audience = raw.Audience
	if expiry := strings.TrimSpace(raw.Expiry); expiry != "" {
		parsed, errParse := time.ParseDuration(expiry)
		if errParse != nil {
			return fmt.Errorf("parse jwt expiry: %w", errParse)
		}
		j.Expiry = parsed
	}
	return nil
}

// PrefixConfig holds the injected KV key prefixes.
type PrefixConfig struct {
	Adapter     string `yaml:"adapter"`
	Version     string `yaml:"version"`
	Proxy       string `yaml:"proxy"`
	Provider    string `yaml:"provider"`
	Permissions string `yaml:"permissions"`
	AuthToken   string `yaml:"auth-token"`
	Contact     string `yaml:"contact"`
}

// Config is the immutable application configuration resolved at startup.
type Config struct {
	Port      int          `yaml:"port"`
	MasterKey string       `yaml:"master-key"`
	StripeKey string       `yaml:"stripe-api-key"`
	Redis     RedisConfig  `yaml:"redis"`
	JWT       JWTConfig    `yaml:"jwt"`
	Prefixes  PrefixConfig `yaml:"prefixes"`
}

// defaultJWTExpiry is used when the config omits or invalidates session expiry.
const defaultJWTExpiry = 24 * time.Hour

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// Load reads the YAML config file, applies environment overrides and
// defaults, and validates required values. The file may be absent as long as
// the required values arrive via environment.
func Load(configPath string) (*Config, error) {
	var cfg Config

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return nil, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if errValidate := cfg.validate(); errValidate != nil {
		return nil, errValidate
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pass := strings.TrimSpace(os.Getenv(EnvRedisPass)); pass != "" {
		cfg.Redis.Password = pass
	}
	if key := strings.TrimSpace(os.Getenv(EnvMasterKey)); key != "" {
		cfg.MasterKey = key
	}
	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		cfg.JWT.Secret = secret
	}
	if issuer := strings.TrimSpace(os.Getenv(EnvJWTIssuer)); issuer != "" {
		cfg.JWT.Issuer = issuer
	}
	if audience := strings.TrimSpace(os.Getenv(EnvJWTAudience)); audience != "" {
		cfg.JWT.Audience = audience
	}
	if stripeKey := strings.TrimSpace(os.Getenv(EnvStripeKey)); stripeKey != "" {
		cfg.StripeKey = stripeKey
	}
}

func applyDefaults(cfg *Config) {
	if cfg.JWT.Expiry <= 0 {
		cfg.JWT.Expiry = defaultJWTExpiry
	}
	if strings.TrimSpace(cfg.JWT.Issuer) == "" {
		cfg.JWT.Issuer = "flexiproxy"
	}
	if strings.TrimSpace(cfg.JWT.Audience) == "" {
		cfg.JWT.Audience = "flexiproxy-dashboard"
	}
	if strings.TrimSpace(cfg.Prefixes.Adapter) == "" {
		cfg.Prefixes.Adapter = DefaultAdapterPrefix
	}
	if strings.TrimSpace(cfg.Prefixes.Version) == "" {
		cfg.Prefixes.Version = DefaultVersionPrefix
	}
	if strings.TrimSpace(cfg.Prefixes.Proxy) == "" {
		cfg.Prefixes.Proxy = DefaultProxyPrefix
	}
	if strings.TrimSpace(cfg.Prefixes.Provider) == "" {
		cfg.Prefixes.Provider = DefaultProviderPrefix
	}
	if strings.TrimSpace(cfg.Prefixes.Permissions) == "" {
		cfg.Prefixes.Permissions = DefaultPermissionsPrefix
	}
	if strings.TrimSpace(cfg.Prefixes.AuthToken) == "" {
		cfg.Prefixes.AuthToken = DefaultAuthTokenPrefix
	}
	if strings.TrimSpace(cfg.Prefixes.Contact) == "" {
		cfg.Prefixes.Contact = DefaultContactPrefix
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.MasterKey) == "" {
		return ErrMissingMasterKey
	}
	if len(c.MasterKey) != 64 {
		return fmt.Errorf("master key must be 32 bytes hex encoded")
	}
	if _, errDecode := hex.DecodeString(c.MasterKey); errDecode != nil {
		return fmt.Errorf("master key must be 32 bytes hex encoded")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return ErrMissingJWTSecret
	}
	if strings.TrimSpace(c.Redis.Addr) == "" {
		return ErrMissingRedisAddr
	}
	return nil
}
