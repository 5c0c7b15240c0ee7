package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/aussiebroadwan/saathi/internal/relay/http"
	"github.com/aussiebroadwan/saathi/internal/relay/metrics"
	"github.com/aussiebroadwan/saathi/internal/relay/registry"
	"github.com/aussiebroadwan/saathi/internal/relay/service"
	"github.com/aussiebroadwan/saathi/internal/relay/store"
	"github.com/aussiebroadwan/saathi/internal/relay/store/drivers/sqlite"
	"github.com/aussiebroadwan/saathi/pkg/cryptox"
	"github.com/aussiebroadwan/saathi/pkg/jwtx"
	"github.com/aussiebroadwan/saathi/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application owns the relay process: store, keys, registry, services and
// the HTTP server.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db         store.Store
	keyManager *jwtx.KeyManager
	registry   *registry.Registry
	promReg    *prometheus.Registry
	metrics    *metrics.Metrics

	hierarchyService    *service.HierarchyService
	tokenService        *service.TokenService
	messageService      *service.MessageService
	relay               *service.Relay
	lifecycle           *service.Lifecycle
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "saathi-relay",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keyManager, err := InitRelayKeys(app.cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	app.initMetrics()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	// Clears online flags left behind by a previous process before any
	// session can connect.
	app.housekeepingService.Start()

	app.logger.Info("relay starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown stops accepting requests, closes every live session and then
// the database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down relay...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Hijacked websocket connections are not tracked by Shutdown. Close them
	// and let each session persist its offline state before the store goes.
	for _, userID := range app.registry.Snapshot() {
		if h, ok := app.registry.Lookup(userID); ok {
			_ = h.Close()
		}
	}
	if err := app.lifecycle.Wait(ctx); err != nil {
		app.logger.Warn("sessions still open at shutdown", "error", err)
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("relay stopped")
	return nil
}

func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(sqlite.DSN(app.cfg.DatabaseFile))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initMetrics() {
	app.promReg = prometheus.NewRegistry()
	app.promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.New(app.promReg)
}

func (app *Application) initServices() {
	app.registry = registry.New()

	app.hierarchyService = &service.HierarchyService{Store: app.db}
	app.tokenService = &service.TokenService{
		KeyManager: app.keyManager,
		Store:      app.db,
		Issuer:     app.cfg.Issuer,
		AccessTTL:  app.cfg.TokenTTL,
	}
	app.messageService = &service.MessageService{Store: app.db}
	app.relay = service.NewRelay(app.db, app.registry, app.metrics)
	app.lifecycle = &service.Lifecycle{
		Store:    app.db,
		Registry: app.registry,
		Metrics:  app.metrics,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.registry,
		app.metrics,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager.KeySet,
		app.keyManager.Verifier,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.Registry = app.registry
	router.Metrics = app.metrics
	router.HierarchyService = app.hierarchyService
	router.TokenService = app.tokenService
	router.MessageService = app.messageService
	router.Relay = app.relay
	router.Lifecycle = app.lifecycle
	router.MetricsHandler = promhttp.HandlerFor(app.promReg, promhttp.HandlerOpts{})
	router.MaxFramesPerSecond = app.cfg.MaxFramesPerSecond
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
