package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/recordbase/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090
  request_timeout: 5s

database:
  driver: "postgres"
  dsn: "postgres://localhost/recordbase"
  max_open_conns: 20

auth:
  jwt_secret: "0123456789abcdef0123"
  service_actor: "importer"
  trust_actor_header: true

sharing:
  default_ttl: 72h
  base_url: "https://forms.example.com"
`

	cfg := writeAndLoad(t, content)

	if cfg.Server.Addr() != "127.0.0.1:9090" {
		t.Errorf("Addr = %s, want 127.0.0.1:9090", cfg.Server.Addr())
	}
	if cfg.Server.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.Server.RequestTimeout)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.MaxOpenConns != 20 {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Auth.ServiceActor != "importer" || !cfg.Auth.TrustActorHeader {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if cfg.Sharing.DefaultTTL != 72*time.Hour {
		t.Errorf("Sharing.DefaultTTL = %v, want 72h", cfg.Sharing.DefaultTTL)
	}
	if cfg.Sharing.BaseURL != "https://forms.example.com" {
		t.Errorf("Sharing.BaseURL = %s", cfg.Sharing.BaseURL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, "{}\n")

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8080 {
		t.Errorf("default server = %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second || cfg.Server.WriteTimeout != 60*time.Second {
		t.Errorf("default timeouts = %v / %v", cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "recordbase.db" {
		t.Errorf("default database = %+v", cfg.Database)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default logging = %+v", cfg.Logging)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("default Metrics.Path = %s", cfg.Metrics.Path)
	}
	if cfg.Auth.JWTIssuer != "recordbase" || cfg.Auth.TokenTTL != 24*time.Hour || cfg.Auth.ServiceActor != "service" {
		t.Errorf("default auth = %+v", cfg.Auth)
	}
	if cfg.Sharing.DefaultTTL != 0 || cfg.Sharing.PurgeInterval != time.Hour {
		t.Errorf("default sharing = %+v", cfg.Sharing)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_PG_URL", "postgres://db:5432/records")

	cfg := writeAndLoad(t, `
database:
  driver: postgres
  dsn: "${TEST_PG_URL}"
`)
	if cfg.Database.DSN != "postgres://db:5432/records" {
		t.Errorf("DSN = %s, want expanded value", cfg.Database.DSN)
	}
}

func TestLoad_BareDollarKept(t *testing.T) {
	cfg := writeAndLoad(t, "auth:\n  api_key_hash: '$2a$04$abcdefghijklmnopqrstuv'\n")
	if cfg.Auth.APIKeyHash != "$2a$04$abcdefghijklmnopqrstuv" {
		t.Errorf("APIKeyHash = %q, want it unexpanded", cfg.Auth.APIKeyHash)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown driver", "database:\n  driver: mysql\n", "database.driver"},
		{"postgres without dsn", "database:\n  driver: postgres\n", "database.dsn"},
		{"bad log level", "logging:\n  level: loud\n", "logging.level"},
		{"bad log format", "logging:\n  format: xml\n", "logging.format"},
		{"port out of range", "server:\n  port: 70000\n", "server.port"},
		{"short jwt secret", "auth:\n  jwt_secret: short\n", "jwt_secret"},
		{"negative ttl", "sharing:\n  default_ttl: -1h\n", "default_ttl"},
		{"relative metrics path", "metrics:\n  path: metrics\n", "metrics.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := writeAndLoadErr(t, tt.content)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := writeAndLoadErr(t, "server: [unclosed"); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("RECORDBASE_SERVER_PORT", "7070")
	t.Setenv("RECORDBASE_LOG_LEVEL", "debug")
	t.Setenv("RECORDBASE_METRICS_ENABLED", "yes")
	t.Setenv("RECORDBASE_AUTH_TRUST_ACTOR_HEADER", "1")
	t.Setenv("RECORDBASE_SHARING_DEFAULT_TTL", "30m")

	cfg := writeAndLoad(t, `
server:
  port: 9090
logging:
  level: warn
`)
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, env should win", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %s, env should win", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled || !cfg.Auth.TrustActorHeader {
		t.Error("boolean overrides not applied")
	}
	if cfg.Sharing.DefaultTTL != 30*time.Minute {
		t.Errorf("DefaultTTL = %v, want 30m", cfg.Sharing.DefaultTTL)
	}
}

func TestEnvOverrides_Malformed(t *testing.T) {
	tests := []struct {
		env   string
		value string
	}{
		{"RECORDBASE_SERVER_PORT", "eighty"},
		{"RECORDBASE_SERVER_READ_TIMEOUT", "soon"},
		{"RECORDBASE_DATABASE_MAX_OPEN_CONNS", "many"},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := config.LoadFromEnv()
			if err == nil || !strings.Contains(err.Error(), tt.env) {
				t.Errorf("error = %v, want one naming %s", err, tt.env)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RECORDBASE_DATABASE_DRIVER", "postgres")
	t.Setenv("RECORDBASE_DATABASE_DSN", "postgres://localhost/rb")
	t.Setenv("RECORDBASE_AUTH_JWT_SECRET", "a-secret-of-sixteen+")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://localhost/rb" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Auth.JWTSecret != "a-secret-of-sixteen+" {
		t.Errorf("JWTSecret not read from env")
	}
}

func TestLoadWithFallback(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	t.Run("file exists", func(t *testing.T) {
		path := filepath.Join(dir, "recordbase.yaml")
		if err := os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := config.LoadWithFallback(path)
		if err != nil {
			t.Fatalf("LoadWithFallback: %v", err)
		}
		if cfg.Server.Port != 9191 {
			t.Errorf("Port = %d, want 9191", cfg.Server.Port)
		}
	})

	t.Run("env only", func(t *testing.T) {
		cfg, err := config.LoadWithFallback(filepath.Join(dir, "absent.yaml"))
		if err != nil {
			t.Fatalf("LoadWithFallback: %v", err)
		}
		if cfg.Server.Port != 8080 {
			t.Errorf("Port = %d, want default", cfg.Server.Port)
		}
	})
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "RECORDBASE_TEST_DOTENV_A=from-file\nRECORDBASE_TEST_DOTENV_B=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RECORDBASE_TEST_DOTENV_B", "from-process")
	t.Cleanup(func() { os.Unsetenv("RECORDBASE_TEST_DOTENV_A") })

	if err := config.LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("RECORDBASE_TEST_DOTENV_A"); got != "from-file" {
		t.Errorf("A = %q, want from-file", got)
	}
	if got := os.Getenv("RECORDBASE_TEST_DOTENV_B"); got != "from-process" {
		t.Errorf("B = %q, process environment should win", got)
	}
}

// Helpers

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := writeAndLoadErr(t, content)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}

func writeAndLoadErr(t *testing.T, content string) (*config.Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return config.Load(path)
}
