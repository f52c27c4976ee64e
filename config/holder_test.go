package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/recordbase/config"
)

func TestHolder_Get(t *testing.T) {
	h, err := config.NewHolder(writeConfig(t, validConfig()), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	got := h.Get()
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if got.Sharing.DefaultTTL != time.Hour {
		t.Errorf("DefaultTTL = %v, want 1h", got.Sharing.DefaultTTL)
	}
}

func TestHolder_ReloadNotifiesListeners(t *testing.T) {
	path := writeConfig(t, validConfig())
	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var (
		mu       sync.Mutex
		received *config.Config
	)
	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		received = cfg
		mu.Unlock()
	})
	h.OnError(func(err error) { t.Errorf("unexpected reload error: %v", err) })

	if err := os.WriteFile(path, []byte("logging:\n  level: debug\nsharing:\n  default_ttl: 2h\n"), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if received == nil {
		t.Fatal("OnChange callback was not called")
	}
	if received.Logging.Level != "debug" || received.Sharing.DefaultTTL != 2*time.Hour {
		t.Errorf("callback received %+v / %+v", received.Logging, received.Sharing)
	}
	if h.Get() != received {
		t.Error("Get should return the reloaded config")
	}
}

func TestHolder_ReloadInvalidKeepsOld(t *testing.T) {
	path := writeConfig(t, validConfig())
	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var failures int
	h.OnError(func(error) { failures++ })
	h.OnChange(func(*config.Config) { t.Error("OnChange should not run for an invalid file") })

	if err := os.WriteFile(path, []byte("database:\n  driver: oracle\n"), 0644); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}
	if err := h.Reload(); err == nil {
		t.Error("Reload should fail for invalid config")
	}
	if failures != 1 {
		t.Errorf("OnError called %d times, want 1", failures)
	}
	if h.Get().Database.Driver != "sqlite" {
		t.Errorf("should keep old config, got driver %s", h.Get().Database.Driver)
	}
}

func TestHolder_WatchFile(t *testing.T) {
	path := writeConfig(t, validConfig())
	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	changed := make(chan *config.Config, 16)
	h.OnChange(func(cfg *config.Config) { changed <- cfg })

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}
	if err := os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	// A single write may surface as several events; the last one wins.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.Logging.Level == "warn" {
				return
			}
		case <-deadline:
			t.Fatalf("file watcher did not reload; level = %s", h.Get().Logging.Level)
		}
	}
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	h, err := config.NewHolder(writeConfig(t, validConfig()), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if h.Get() == nil {
					t.Error("concurrent Get returned nil")
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Reload()
		}()
	}
	wg.Wait()
}

func TestHolder_Static(t *testing.T) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	h := config.Static(cfg)
	defer h.Stop()
	h.Stop()

	if err := h.Reload(); err != nil {
		t.Errorf("static Reload = %v", err)
	}
	if err := h.WatchFile(); err != nil {
		t.Errorf("static WatchFile = %v", err)
	}
	if h.Get() != cfg || h.Path() != "" {
		t.Error("static holder should return the wrapped config")
	}
}

func TestReloadableFields(t *testing.T) {
	reloadable := make(map[string]bool)
	for _, f := range config.ReloadableFields() {
		reloadable[f] = true
	}
	for _, f := range []string{"logging.level", "sharing.default_ttl"} {
		if !reloadable[f] {
			t.Errorf("%s not in ReloadableFields", f)
		}
	}
	for _, f := range config.NonReloadableFields() {
		if reloadable[f] {
			t.Errorf("%s listed as both reloadable and not", f)
		}
	}
}

// Helpers

func validConfig() string {
	return `
database:
  driver: sqlite
  dsn: ":memory:"
sharing:
  default_ttl: 1h
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
