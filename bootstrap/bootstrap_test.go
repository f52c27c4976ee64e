package bootstrap_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/artpar/recordbase/adapters/clock"
	"github.com/artpar/recordbase/adapters/hasher"
	"github.com/artpar/recordbase/app"
	"github.com/artpar/recordbase/bootstrap"
	"github.com/artpar/recordbase/config"
	"github.com/artpar/recordbase/domain/schema"
	"github.com/artpar/recordbase/domain/share"
)

const serviceKey = "svc-key-for-tests"

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()

	hash, err := hasher.NewBcrypt(4).Hash(serviceKey)
	if err != nil {
		t.Fatalf("hash key: %v", err)
	}
	content := `
database:
  driver: sqlite
  dsn: "` + filepath.Join(dir, "recordbase.db") + `"
metrics:
  enabled: true
auth:
  api_key_hash: '` + string(hash) + `'
  service_actor: importer
` + extra
	path := filepath.Join(dir, "recordbase.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func newApp(t *testing.T, path string, opts bootstrap.Options) *bootstrap.App {
	t.Helper()
	holder, err := config.NewHolder(path, bootstrap.NewLogger(config.LoggingConfig{Level: "error"}, io.Discard))
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	opts.LogOutput = io.Discard
	a, err := bootstrap.New(context.Background(), holder, opts)
	if err != nil {
		t.Fatalf("bootstrap.New: %v", err)
	}
	t.Cleanup(func() { a.Shutdown() })
	return a
}

func TestNew_ServesAPI(t *testing.T) {
	a := newApp(t, writeConfig(t, ""), bootstrap.Options{})
	srv := httptest.NewServer(a.HTTPServer.Handler)
	defer srv.Close()

	body := `{"data":{"type":"models","attributes":{"name":"Task","properties":[{"name":"title","type":"string","required":true}]}}}`
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/models", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.Header.Set("X-API-Key", serviceKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /api/models: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/api/models", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/models: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/health/ready")
	if err != nil {
		t.Fatalf("GET /health/ready: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	metricsBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{"recordbase_http_requests_total", "go_goroutines", "go_sql_open_connections"} {
		if !strings.Contains(string(metricsBody), want) {
			t.Errorf("metrics output missing %s", want)
		}
	}

	models, err := a.Services.Schema.ListModels(context.Background())
	if err != nil || len(models) != 1 {
		t.Fatalf("ListModels = %v, %v", models, err)
	}
}

func TestNew_Version(t *testing.T) {
	a := newApp(t, writeConfig(t, ""), bootstrap.Options{})
	version, err := a.DB.Version()
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if version != "001_init" {
		t.Errorf("migration version = %q, want 001_init", version)
	}
}

func TestReload_AppliesShareTTL(t *testing.T) {
	path := writeConfig(t, "sharing:\n  default_ttl: 1h\n")
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a := newApp(t, path, bootstrap.Options{Clock: clock.NewFake(now)})
	ctx := context.Background()

	m, err := a.Services.Schema.UpsertModel(ctx, app.ModelInput{
		Name:       "Lead",
		Properties: []schema.Property{{Name: "name", Type: schema.TypeString}},
	}, "admin")
	if err != nil {
		t.Fatalf("UpsertModel: %v", err)
	}

	before, err := a.Services.Shares.CreateLink(ctx, app.LinkInput{ModelID: m.ID, Type: share.LinkCreate}, "admin")
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if before.ExpiresAt == nil || !before.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("ExpiresAt = %v, want now+1h", before.ExpiresAt)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	updated := strings.Replace(string(content), "default_ttl: 1h", "default_ttl: 3h", 1)
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatal(err)
	}
	if err := a.Config.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	after, err := a.Services.Shares.CreateLink(ctx, app.LinkInput{ModelID: m.ID, Type: share.LinkCreate}, "admin")
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if after.ExpiresAt == nil || !after.ExpiresAt.Equal(now.Add(3*time.Hour)) {
		t.Errorf("ExpiresAt after reload = %v, want now+3h", after.ExpiresAt)
	}
	if got := testutil.ToFloat64(a.Metrics.ConfigReloads); got != 1 {
		t.Errorf("config reloads = %v, want 1", got)
	}

	if err := os.WriteFile(path, []byte("database:\n  driver: oracle\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := a.Config.Reload(); err == nil {
		t.Error("invalid reload should fail")
	}
	if got := testutil.ToFloat64(a.Metrics.ConfigReloadErrors); got != 1 {
		t.Errorf("config reload errors = %v, want 1", got)
	}
}

func TestPurgeExpiredLinks(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	a := newApp(t, writeConfig(t, ""), bootstrap.Options{Clock: clk})
	ctx := context.Background()

	m, err := a.Services.Schema.UpsertModel(ctx, app.ModelInput{
		Name:       "Survey",
		Properties: []schema.Property{{Name: "answer", Type: schema.TypeString}},
	}, "admin")
	if err != nil {
		t.Fatalf("UpsertModel: %v", err)
	}
	soon := clk.Now().Add(time.Minute)
	if _, err := a.Services.Shares.CreateLink(ctx, app.LinkInput{ModelID: m.ID, Type: share.LinkCreate, ExpiresAt: &soon}, "admin"); err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if _, err := a.Services.Shares.CreateLink(ctx, app.LinkInput{ModelID: m.ID, Type: share.LinkCreate}, "admin"); err != nil {
		t.Fatalf("CreateLink: %v", err)
	}

	clk.Advance(2 * time.Minute)
	n, err := a.PurgeExpiredLinks(ctx)
	if err != nil {
		t.Fatalf("PurgeExpiredLinks: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d links, want 1", n)
	}
	if got := testutil.ToFloat64(a.Metrics.SharePurged); got != 1 {
		t.Errorf("purged metric = %v, want 1", got)
	}
	links, _ := a.Services.Shares.ListLinks(ctx, m.ID)
	if len(links) != 1 {
		t.Errorf("%d links remain, want 1", len(links))
	}
}

func TestShutdown_StopsBackground(t *testing.T) {
	a := newApp(t, writeConfig(t, "sharing:\n  purge_interval: 10ms\n"), bootstrap.Options{})
	a.StartBackground()

	done := make(chan struct{})
	go func() {
		a.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return")
	}
}

func TestOpenDatabase_UnknownDriver(t *testing.T) {
	if _, err := bootstrap.OpenDatabase(context.Background(), config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestLoadConfig_FallsBackToEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RECORDBASE_SERVER_PORT", "9393")

	holder, err := bootstrap.LoadConfig("absent.yaml")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if holder.Path() != "" {
		t.Errorf("Path = %q, want static holder", holder.Path())
	}
	if holder.Get().Server.Port != 9393 {
		t.Errorf("Port = %d, want 9393", holder.Get().Server.Port)
	}
}
