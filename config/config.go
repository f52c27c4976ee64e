// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RECORDBASE_"

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	OpenAPI  OpenAPIConfig  `yaml:"openapi"`
	Auth     AuthConfig     `yaml:"auth"`
	Sharing  SharingConfig  `yaml:"sharing"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig selects the storage engine.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // "sqlite" or "postgres"
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // default: /metrics
}

// OpenAPIConfig configures the OpenAPI document and Swagger UI.
type OpenAPIConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AuthConfig configures how callers of the API are identified.
type AuthConfig struct {
	JWTSecret        string        `yaml:"jwt_secret,omitempty"`
	JWTIssuer        string        `yaml:"jwt_issuer"`
	TokenTTL         time.Duration `yaml:"token_ttl"`
	APIKeyHash       string        `yaml:"api_key_hash,omitempty"` // bcrypt hash of the service key
	ServiceActor     string        `yaml:"service_actor"`
	TrustActorHeader bool          `yaml:"trust_actor_header"`
}

// SharingConfig configures share links.
type SharingConfig struct {
	DefaultTTL    time.Duration `yaml:"default_ttl"` // 0 means links never expire unless asked to
	BaseURL       string        `yaml:"base_url"`
	PurgeInterval time.Duration `yaml:"purge_interval"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	data = expandEnv(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// envRef matches ${VAR}. Bare $VAR is left alone so values such as bcrypt
// hashes survive.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		return []byte(os.Getenv(string(m[2 : len(m)-1])))
	})
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	RECORDBASE_SERVER_HOST            - Server host (default: 0.0.0.0)
//	RECORDBASE_SERVER_PORT            - Server port (default: 8080)
//	RECORDBASE_DATABASE_DRIVER        - sqlite or postgres (default: sqlite)
//	RECORDBASE_DATABASE_DSN           - Database path or URL (default: recordbase.db)
//	RECORDBASE_LOG_LEVEL              - debug, info, warn, error (default: info)
//	RECORDBASE_LOG_FORMAT             - json or console (default: json)
//	RECORDBASE_METRICS_ENABLED        - Enable /metrics
//	RECORDBASE_OPENAPI_ENABLED        - Enable /openapi.json and /swagger
//	RECORDBASE_AUTH_JWT_SECRET        - HMAC secret for bearer tokens
//	RECORDBASE_AUTH_API_KEY_HASH      - bcrypt hash of the service API key
//	RECORDBASE_AUTH_TRUST_ACTOR_HEADER - Accept X-Actor-ID from a trusted proxy
//	RECORDBASE_SHARING_DEFAULT_TTL    - Default share link lifetime
//	RECORDBASE_SHARING_BASE_URL       - Public base URL for share links
func LoadFromEnv() (*Config, error) {
	var cfg Config

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadWithFallback loads a .env file if one exists, then the YAML file at
// path if it exists, otherwise configuration from the environment alone.
func LoadWithFallback(path string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// LoadDotEnv loads variables from the given files. Missing files are
// skipped and variables already set in the process environment win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// applyEnvOverrides applies RECORDBASE_* variables. Environment variables
// always override file-based configuration; malformed values are errors.
func applyEnvOverrides(cfg *Config) error {
	e := envReader{}

	e.str("SERVER_HOST", &cfg.Server.Host)
	e.int("SERVER_PORT", &cfg.Server.Port)
	e.duration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	e.duration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	e.duration("SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)

	e.str("DATABASE_DRIVER", &cfg.Database.Driver)
	e.str("DATABASE_DSN", &cfg.Database.DSN)
	e.int("DATABASE_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)

	e.str("LOG_LEVEL", &cfg.Logging.Level)
	e.str("LOG_FORMAT", &cfg.Logging.Format)

	e.bool("METRICS_ENABLED", &cfg.Metrics.Enabled)
	e.str("METRICS_PATH", &cfg.Metrics.Path)
	e.bool("OPENAPI_ENABLED", &cfg.OpenAPI.Enabled)

	e.str("AUTH_JWT_SECRET", &cfg.Auth.JWTSecret)
	e.str("AUTH_JWT_ISSUER", &cfg.Auth.JWTIssuer)
	e.duration("AUTH_TOKEN_TTL", &cfg.Auth.TokenTTL)
	e.str("AUTH_API_KEY_HASH", &cfg.Auth.APIKeyHash)
	e.str("AUTH_SERVICE_ACTOR", &cfg.Auth.ServiceActor)
	e.bool("AUTH_TRUST_ACTOR_HEADER", &cfg.Auth.TrustActorHeader)

	e.duration("SHARING_DEFAULT_TTL", &cfg.Sharing.DefaultTTL)
	e.str("SHARING_BASE_URL", &cfg.Sharing.BaseURL)
	e.duration("SHARING_PURGE_INTERVAL", &cfg.Sharing.PurgeInterval)

	return errors.Join(e.errs...)
}

type envReader struct {
	errs []error
}

func (e *envReader) lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(name, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, v, err))
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.lookup(name); ok {
		*dst = v
	}
}

func (e *envReader) int(name string, dst *int) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = n
}

func (e *envReader) duration(name string, dst *time.Duration) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = d
}

func (e *envReader) bool(name string, dst *bool) {
	if v, ok := e.lookup(name); ok {
		*dst = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "recordbase.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Auth.JWTIssuer == "" {
		cfg.Auth.JWTIssuer = "recordbase"
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}
	if cfg.Auth.ServiceActor == "" {
		cfg.Auth.ServiceActor = "service"
	}

	if cfg.Sharing.PurgeInterval == 0 {
		cfg.Sharing.PurgeInterval = time.Hour
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be 'sqlite' or 'postgres', got %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for driver %q", cfg.Database.Driver)
	}

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}

	if cfg.Auth.JWTSecret != "" && len(cfg.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters")
	}

	if cfg.Sharing.DefaultTTL < 0 {
		return fmt.Errorf("sharing.default_ttl must not be negative")
	}
	if cfg.Sharing.PurgeInterval < 0 {
		return fmt.Errorf("sharing.purge_interval must not be negative")
	}
	return nil
}
