// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/artpar/recordbase/adapters/auth"
	"github.com/artpar/recordbase/adapters/clock"
	"github.com/artpar/recordbase/adapters/hasher"
	apihttp "github.com/artpar/recordbase/adapters/http"
	"github.com/artpar/recordbase/adapters/http/api"
	"github.com/artpar/recordbase/adapters/idgen"
	"github.com/artpar/recordbase/adapters/metrics"
	"github.com/artpar/recordbase/adapters/random"
	"github.com/artpar/recordbase/app"
	"github.com/artpar/recordbase/config"
	"github.com/artpar/recordbase/ports"
)

// Options customise New. The zero value is production wiring.
type Options struct {
	Version apihttp.VersionInfo

	// LogOutput defaults to os.Stdout.
	LogOutput io.Writer

	// Clock, IDs and Random default to the real implementations.
	Clock  ports.Clock
	IDs    ports.IDGenerator
	Random ports.Random

	// SkipMigrations leaves the schema as found.
	SkipMigrations bool
}

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Holder
	DB         *Database
	Services   api.Services
	Metrics    *metrics.Collector
	Registry   *prometheus.Registry
	HTTPServer *http.Server

	background bool
	purgeStop  chan struct{}
	purgeDone  chan struct{}
}

// New opens the database, applies migrations and builds the HTTP server.
func New(ctx context.Context, holder *config.Holder, opts Options) (*App, error) {
	cfg := holder.Get()
	logger := NewLogger(cfg.Logging, opts.LogOutput)
	logger.Info().Str("driver", cfg.Database.Driver).Msg("initializing recordbase")

	a := &App{
		Logger:    logger,
		Config:    holder,
		purgeStop: make(chan struct{}),
		purgeDone: make(chan struct{}),
	}

	db, err := OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.DB = db
	if !opts.SkipMigrations {
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)
	if err := a.Metrics.WatchDB(db.Store.DB(), cfg.Database.Driver); err != nil {
		logger.Warn().Err(err).Msg("database pool metrics unavailable")
	}

	a.Services = NewServices(db.Store, opts, cfg.Sharing, logger)

	authMW, err := a.authMiddleware(cfg.Auth)
	if err != nil {
		db.Close()
		return nil, err
	}

	handler := api.New(a.Services, logger, api.Config{
		Metrics:      a.Metrics,
		ShareBaseURL: cfg.Sharing.BaseURL,
	})
	routerCfg := apihttp.RouterConfig{
		API:            handler,
		Auth:           authMW,
		Health:         apihttp.NewHealthHandler(db.Store),
		Version:        opts.Version,
		MetricsPath:    cfg.Metrics.Path,
		Gatherer:       a.Registry,
		EnableOpenAPI:  cfg.OpenAPI.Enabled,
		RequestTimeout: cfg.Server.RequestTimeout,
	}
	if cfg.Metrics.Enabled {
		routerCfg.Metrics = a.Metrics
	}

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      apihttp.NewRouter(routerCfg, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	holder.OnChange(a.applyConfig)
	holder.OnError(func(error) { a.Metrics.ConfigReloadErrors.Inc() })

	return a, nil
}

// NewServices builds the application services over store.
func NewServices(store ports.Store, opts Options, sharing config.SharingConfig, logger zerolog.Logger) api.Services {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	ids := opts.IDs
	if ids == nil {
		ids = idgen.UUID{}
	}
	rnd := opts.Random
	if rnd == nil {
		rnd = random.Real{}
	}

	objects := app.NewObjectService(store, app.NewValidator(clk, logger), ids, clk, logger)
	return api.Services{
		Schema:    app.NewSchemaService(store, objects, ids, clk, logger),
		Objects:   objects,
		Workflows: app.NewWorkflowService(store, objects, ids, clk, logger),
		Shares: app.NewShareService(store, objects, rnd, clk, logger, app.ShareServiceConfig{
			DefaultTTL: sharing.DefaultTTL,
		}),
		Changelog: app.NewChangelogService(store, logger),
	}
}

func (a *App) authMiddleware(cfg config.AuthConfig) (func(http.Handler) http.Handler, error) {
	ac := apihttp.AuthConfig{
		ServiceActor:     cfg.ServiceActor,
		Hasher:           hasher.NewBcrypt(0),
		TrustActorHeader: cfg.TrustActorHeader,
		Metrics:          a.Metrics,
	}
	if cfg.JWTSecret != "" {
		tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL, clock.Real{})
		if err != nil {
			return nil, fmt.Errorf("token service: %w", err)
		}
		ac.Tokens = tokens
	}
	if cfg.APIKeyHash != "" {
		ac.APIKeyHash = []byte(cfg.APIKeyHash)
	}
	if ac.Tokens == nil && ac.APIKeyHash == nil && !ac.TrustActorHeader {
		a.Logger.Warn().Msg("no authentication method configured; every API request will be rejected")
	}
	return apihttp.NewAuthMiddleware(ac, a.Logger), nil
}

// applyConfig applies the settings that take effect without a restart.
func (a *App) applyConfig(cfg *config.Config) {
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	a.Services.Shares.SetDefaultTTL(cfg.Sharing.DefaultTTL)
	a.Metrics.ConfigReloads.Inc()
	a.Metrics.ConfigLastReload.SetToCurrentTime()
}

// Run serves HTTP until SIGINT or SIGTERM, then shuts down.
func (a *App) Run() error {
	a.StartBackground()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}
	return a.Shutdown()
}

// StartBackground starts config watching and the expired link purger.
func (a *App) StartBackground() {
	if a.Config.Path() != "" {
		if err := a.Config.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watching disabled")
		}
		a.Config.WatchSignals()
	}
	a.background = true
	go a.purgeLoop(a.Config.Get().Sharing.PurgeInterval)
}

// PurgeExpiredLinks deletes expired share links once.
func (a *App) PurgeExpiredLinks(ctx context.Context) (int, error) {
	n, err := a.Services.Shares.PurgeExpired(ctx)
	if err != nil {
		return 0, err
	}
	a.Metrics.SharePurged.Add(float64(n))
	return n, nil
}

func (a *App) purgeLoop(interval time.Duration) {
	defer close(a.purgeDone)
	if interval <= 0 {
		<-a.purgeStop
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := a.PurgeExpiredLinks(ctx)
			cancel()
			if err != nil {
				a.Logger.Error().Err(err).Msg("purge expired share links")
			} else if n > 0 {
				a.Logger.Info().Int("count", n).Msg("purged expired share links")
			}
		case <-a.purgeStop:
			return
		}
	}
}

// Shutdown gracefully stops the server and closes the database.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	select {
	case <-a.purgeStop:
	default:
		close(a.purgeStop)
		if a.background {
			<-a.purgeDone
		}
	}

	a.Config.Stop()

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// LoadConfig returns a reloading holder when path names an existing file,
// otherwise a static holder built from the environment.
func LoadConfig(path string) (*config.Holder, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return config.NewHolder(path, NewLogger(config.LoggingConfig{Level: "info", Format: "json"}, nil))
		}
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	return config.Static(cfg), nil
}

// NewLogger builds the process logger and sets the global level.
func NewLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}
