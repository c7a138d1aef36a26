// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Identity      IdentityConfig      `yaml:"identity"`
	Policy        PolicyConfig        `yaml:"policy"`
	Cache         CacheConfig         `yaml:"cache"`
	Store         StoreConfig         `yaml:"store"`
	Admin         AdminConfig         `yaml:"admin"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// IdentityConfig describes JWT and identity provider settings.
type IdentityConfig struct {
	Issuer       string        `yaml:"issuer"`
	Audience     string        `yaml:"audience"`
	JWKSURL      string        `yaml:"jwks_url"`
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl"`
	Algorithms   []string      `yaml:"algorithms"`
}

// PolicyConfig describes the role policy file.
type PolicyConfig struct {
	File string `yaml:"file"`
}

// CacheConfig describes the shared capability cache.
type CacheConfig struct {
	Driver  string        `yaml:"driver"`
	AddrEnv string        `yaml:"addr_env"`
	DB      int           `yaml:"db"`
	TTL     time.Duration `yaml:"ttl"`
}

// StoreConfig describes the authoritative permission store.
type StoreConfig struct {
	Driver          string        `yaml:"driver"`
	DSNEnv          string        `yaml:"dsn_env"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxConns        int           `yaml:"max_conns"`
	MinConns        int           `yaml:"min_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// AdminConfig describes the administrative API surface (invalidation).
type AdminConfig struct {
	TokenEnv string `yaml:"token_env"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Workspace-Id",
					"X-Correlation-Id"},
				MaxAge: 86400,
			},
		},
		Identity: IdentityConfig{
			JWKSCacheTTL: 1 * time.Hour,
			Algorithms:   []string{"RS256"},
		},
		Policy: PolicyConfig{
			File: "/policies/roles.yaml",
		},
		Cache: CacheConfig{
			Driver:  "memory",
			AddrEnv: "AUTHGATE_REDIS_ADDR",
			TTL:     5 * time.Minute,
		},
		Store: StoreConfig{
			Driver:          "memory",
			DSNEnv:          "AUTHGATE_STORE_DSN",
			Timeout:         2 * time.Second,
			MaxConns:        25,
			MinConns:        2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Admin: AdminConfig{
			TokenEnv: "AUTHGATE_ADMIN_TOKEN",
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Identity.Issuer == "" {
		errs = append(errs, "identity.issuer is required")
	}
	if c.Identity.JWKSURL == "" {
		errs = append(errs, "identity.jwks_url is required")
	}
	if c.Identity.Audience == "" {
		errs = append(errs, "identity.audience is required")
	}
	if c.Policy.File == "" {
		errs = append(errs, "policy.file is required")
	}
	switch c.Cache.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("cache.driver %q must be memory or redis", c.Cache.Driver))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, "cache.ttl must be positive")
	}
	switch c.Store.Driver {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be memory or postgres", c.Store.Driver))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, "store.timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads AUTHGATE_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUTHGATE_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AUTHGATE_IDENTITY_ISSUER"); v != "" {
		cfg.Identity.Issuer = v
	}
	if v := os.Getenv("AUTHGATE_IDENTITY_JWKS_URL"); v != "" {
		cfg.Identity.JWKSURL = v
	}
	if v := os.Getenv("AUTHGATE_IDENTITY_AUDIENCE"); v != "" {
		cfg.Identity.Audience = v
	}
	if v := os.Getenv("AUTHGATE_POLICY_FILE"); v != "" {
		cfg.Policy.File = v
	}
	if v := os.Getenv("AUTHGATE_CACHE_DRIVER"); v != "" {
		cfg.Cache.Driver = v
	}
	if v := os.Getenv("AUTHGATE_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("AUTHGATE_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
