// Package apitest runs the user API in-process against a test database.
//
// A Factory boots the application on first use, points its storage at a
// testdb.Database and cleans that database exactly once before handing out
// the first Client or Scope:
//
//	f, err := apitest.New(db)
//	...
//	defer f.Close()
//	client, err := f.Client(ctx)
//	resp, err := client.Get(ctx, "/api/users")
package apitest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"time"

	"userapi/config"
	"userapi/internal/app"
	"userapi/internal/storage"
	"userapi/internal/testdb"
)

// ErrClosed is returned by a Factory after Close.
var ErrClosed = errors.New("apitest: factory is closed")

const shutdownTimeout = 10 * time.Second

// Factory owns one in-process application instance wired to a test database.
// It is safe for concurrent use.
type Factory struct {
	db        testdb.Database
	overrides []app.Override

	mu     sync.Mutex
	closed bool

	bootOnce sync.Once
	bootErr  error
	app      *app.App
	server   *httptest.Server

	cleanOnce sync.Once
	cleanErr  error
}

// New returns a factory bound to db. Overrides run in the given order after
// the default services are wired against db; later ones may replace what
// earlier ones set. Nothing is started until the first Client or Scope call.
func New(db testdb.Database, overrides ...app.Override) (*Factory, error) {
	if db == nil {
		return nil, fmt.Errorf("apitest: database is required")
	}
	return &Factory{
		db:        db,
		overrides: overrides,
	}, nil
}

// Client returns an HTTP client for the running application.
// Redirects are not followed unless WithFollowRedirects is given.
func (f *Factory) Client(ctx context.Context, opts ...ClientOption) (*Client, error) {
	if err := f.ready(ctx); err != nil {
		return nil, err
	}
	return newClient(f.server.URL, f.server.Client(), opts...), nil
}

// Scope gives direct access to the application's services, for seeding data
// without going through HTTP.
func (f *Factory) Scope(ctx context.Context) (*Scope, error) {
	if err := f.ready(ctx); err != nil {
		return nil, err
	}
	return &Scope{services: f.app.Services()}, nil
}

// Close stops the HTTP server and shuts the application down. The database
// is left running. Close is idempotent.
func (f *Factory) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	// Wait for a boot in progress so its resources are released here.
	f.bootOnce.Do(func() { f.bootErr = ErrClosed })

	if f.server != nil {
		f.server.Close()
	}
	if f.app == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return f.app.Shutdown(ctx)
}

// ready boots the application once, then cleans the database once.
// Concurrent callers block until both steps have finished.
func (f *Factory) ready(ctx context.Context) error {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return ErrClosed
	}

	f.bootOnce.Do(func() {
		f.bootErr = f.boot(ctx)
	})
	if f.bootErr != nil {
		return f.bootErr
	}

	f.cleanOnce.Do(func() {
		f.cleanErr = f.db.Clean(ctx)
	})
	return f.cleanErr
}

func (f *Factory) boot(ctx context.Context) error {
	cfg, err := f.appConfig()
	if err != nil {
		return err
	}

	application, err := app.New(ctx, app.Config{
		AppConfig: cfg,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Overrides: f.overrides,
	})
	if err != nil {
		return fmt.Errorf("apitest: failed to start application: %w", err)
	}

	f.app = application
	f.server = httptest.NewServer(application.Handler())
	return nil
}

// appConfig starts from the defaults and repoints storage at the test database.
func (f *Factory) appConfig() (*config.Config, error) {
	cfg := config.Default()
	cfg.Server.Port = "0"

	conn := f.db.ConnectionString()
	if conn == "" {
		return nil, fmt.Errorf("apitest: %w", testdb.ErrNotStarted)
	}

	cfg.Storage.Type = f.db.StorageType()
	switch cfg.Storage.Type {
	case storage.TypeSQLite:
		cfg.Storage.SQLite.Path = conn
	case storage.TypePostgreSQL:
		cfg.Storage.PostgreSQL.URL = conn
	default:
		return nil, fmt.Errorf("apitest: unsupported storage type %q", cfg.Storage.Type)
	}
	return cfg, nil
}
