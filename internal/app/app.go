// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the user API server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"userapi/config"
	"userapi/internal/server"
	"userapi/internal/storage"
	"userapi/internal/users"
)

// Services is the set of dependencies the HTTP layer is built from.
// Overrides receive a pointer to it and may replace any field.
type Services struct {
	Storage storage.Storage
	Users   users.Store
	Logger  *slog.Logger
}

// Override customizes Services after default wiring.
type Override func(*Services)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config   *config.Config
	services *Services
	storage  storage.Storage // opened by New, closed by Shutdown
	server   *server.Server
	logger   *slog.Logger

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig holds the loaded application configuration produced by config.Load.
	AppConfig *config.Config

	// Logger is used for application and request logs (default: slog.Default()).
	Logger *slog.Logger

	// Overrides run in order after the default services are wired and the
	// schema exists. Later overrides see, and may replace, earlier results.
	// When an override replaces Storage but keeps the default Users, the
	// user store is rebuilt on the new storage. The App takes ownership of
	// a replacement storage and closes it on Shutdown.
	Overrides []Override
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}

	appCfg := cfg.AppConfig
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.New(ctx, StorageConfig(appCfg.Storage))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := storage.EnsureSchema(ctx, store); err != nil {
		closeErr := store.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("failed to ensure schema: %w (also: storage close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	defaultUsers := users.NewGormStore(store.DB())
	services := &Services{
		Storage: store,
		Users:   defaultUsers,
		Logger:  logger,
	}
	for _, override := range cfg.Overrides {
		if override != nil {
			override(services)
		}
	}

	// A replaced datastore carries the default user store with it.
	if services.Storage == nil {
		services.Storage = store
	}
	if services.Storage != store {
		if err := storage.EnsureSchema(ctx, services.Storage); err != nil {
			closeErr := errors.Join(store.Close(), services.Storage.Close())
			if closeErr != nil {
				return nil, fmt.Errorf("failed to ensure schema on overridden storage: %w (also: storage close error: %v)", err, closeErr)
			}
			return nil, fmt.Errorf("failed to ensure schema on overridden storage: %w", err)
		}
		if services.Users == users.Store(defaultUsers) {
			services.Users = users.NewGormStore(services.Storage.DB())
		}
	}

	app := &App{
		config:   appCfg,
		services: services,
		storage:  store,
		logger:   services.Logger,
	}

	app.logStartupInfo()

	app.server = server.New(services.Users, &server.Config{
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		BodySizeLimit:   appCfg.Server.BodySizeLimit,
		SwaggerEnabled:  appCfg.Server.SwaggerEnabled,
		Logger:          services.Logger,
	})

	return app, nil
}

// StorageConfig converts the loaded storage section into a storage.Config.
func StorageConfig(cfg config.StorageConfig) storage.Config {
	return storage.Config{
		Type: cfg.Type,
		SQLite: storage.SQLiteConfig{
			Path: cfg.SQLite.Path,
		},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      cfg.PostgreSQL.URL,
			MaxConns: cfg.PostgreSQL.MaxConns,
		},
	}
}

// Services returns the wired dependencies, including any overrides.
func (a *App) Services() *Services {
	return a.services
}

// Handler returns the HTTP handler for in-process use (e.g. httptest).
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	a.logger.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			a.logger.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order:
// the HTTP server first, then any storage installed by an override, then
// the storage opened by New.
//
// Shutdown is idempotent and safe for repeated calls; after the first call, subsequent calls are no-ops.
// It attempts every close step and returns a joined error if any step fails.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	a.logger.Info("shutting down application...")

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if a.services.Storage != nil && a.services.Storage != a.storage {
		if err := a.services.Storage.Close(); err != nil {
			a.logger.Error("overridden storage close error", "error", err)
			errs = append(errs, fmt.Errorf("overridden storage close: %w", err))
		}
	}

	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Error("storage close error", "error", err)
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	a.logger.Info("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	a.logger.Info("storage configured", "type", cfg.Storage.Type)

	if cfg.Metrics.Enabled {
		a.logger.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		a.logger.Info("prometheus metrics disabled")
	}

	if cfg.Server.SwaggerEnabled {
		a.logger.Info("swagger UI enabled", "path", "/swagger/index.html")
	}
}
