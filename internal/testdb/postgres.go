package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"userapi/internal/storage"
)

const (
	DefaultPostgresImage   = "postgres:16-alpine"
	DefaultDatabaseName    = "testdb"
	DefaultStartupTimeout  = 60 * time.Second
	defaultPostgresUser    = "test"
	defaultPostgresPass    = "test"
	postgresReadyLogLine   = "database system is ready to accept connections"
	postgresReadyLogRepeat = 2 // once for the init server, once for the real one
)

// PostgresOption configures a PostgresDatabase.
type PostgresOption func(*PostgresDatabase)

// WithImage sets the container image.
func WithImage(image string) PostgresOption {
	return func(d *PostgresDatabase) { d.image = image }
}

// WithDatabaseName sets the logical database the connection string points at.
func WithDatabaseName(name string) PostgresOption {
	return func(d *PostgresDatabase) { d.database = name }
}

// WithCredentials sets the superuser created in the container.
func WithCredentials(username, password string) PostgresOption {
	return func(d *PostgresDatabase) {
		d.username = username
		d.password = password
	}
}

// WithStartupTimeout bounds how long Start waits for the server to accept connections.
func WithStartupTimeout(timeout time.Duration) PostgresOption {
	return func(d *PostgresDatabase) { d.startupTimeout = timeout }
}

// WithExcludedTables adds tables that Clean must never clear.
func WithExcludedTables(tables ...string) PostgresOption {
	return func(d *PostgresDatabase) { d.excluded = append(d.excluded, tables...) }
}

// PostgresDatabase is a PostgreSQL server running in a throwaway container.
// Create it once per test package, Start it in TestMain and always Stop it.
type PostgresDatabase struct {
	image          string
	database       string
	username       string
	password       string
	startupTimeout time.Duration
	excluded       []string

	mu         sync.Mutex
	container  *postgres.PostgresContainer
	pool       *pgxpool.Pool
	sqlDB      *sql.DB
	resetter   *Resetter
	connString string
}

// NewPostgres returns an unstarted PostgresDatabase.
func NewPostgres(opts ...PostgresOption) *PostgresDatabase {
	d := &PostgresDatabase{
		image:          DefaultPostgresImage,
		database:       DefaultDatabaseName,
		username:       defaultPostgresUser,
		password:       defaultPostgresPass,
		startupTimeout: DefaultStartupTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the container and blocks until the server accepts
// connections. On failure everything acquired so far is released and a
// *ProvisioningError is returned.
func (d *PostgresDatabase) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.container != nil {
		return &ProvisioningError{Op: "start", Err: fmt.Errorf("already started")}
	}

	container, err := postgres.Run(ctx,
		d.image,
		postgres.WithDatabase(d.database),
		postgres.WithUsername(d.username),
		postgres.WithPassword(d.password),
		testcontainers.WithWaitStrategy(
			wait.ForLog(postgresReadyLogLine).
				WithOccurrence(postgresReadyLogRepeat).
				WithStartupTimeout(d.startupTimeout),
		),
	)
	// Run can return a container together with an error.
	d.container = container
	if err != nil {
		d.releaseLocked(ctx)
		return &ProvisioningError{Op: "run container", Err: err}
	}

	raw, err := container.ConnectionString(ctx)
	if err != nil {
		d.releaseLocked(ctx)
		return &ProvisioningError{Op: "connection string", Err: err}
	}

	connString, err := ComposeConnectionString(raw, d.database)
	if err != nil {
		d.releaseLocked(ctx)
		return &ProvisioningError{Op: "compose connection string", Err: err}
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		d.releaseLocked(ctx)
		return &ProvisioningError{Op: "connect", Err: err}
	}
	d.pool = pool

	if err := pool.Ping(ctx); err != nil {
		d.releaseLocked(ctx)
		return &ProvisioningError{Op: "ping", Err: err}
	}

	d.sqlDB = stdlib.OpenDBFromPool(pool)
	d.resetter = NewPostgresResetter(d.sqlDB, ExcludeTables(d.excluded...))
	d.connString = connString
	return nil
}

// Stop closes connections and terminates the container. It is safe to call
// more than once and after a failed Start.
func (d *PostgresDatabase) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.releaseLocked(ctx)
}

func (d *PostgresDatabase) releaseLocked(ctx context.Context) error {
	if d.sqlDB != nil {
		_ = d.sqlDB.Close()
		d.sqlDB = nil
	}
	if d.pool != nil {
		d.pool.Close()
		d.pool = nil
	}
	d.resetter = nil
	d.connString = ""

	if d.container == nil {
		return nil
	}
	container := d.container
	d.container = nil
	if err := container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate PostgreSQL container: %w", err)
	}
	return nil
}

// ConnectionString returns the composed URL, or "" when not started.
func (d *PostgresDatabase) ConnectionString() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connString
}

// StorageType implements Database.
func (d *PostgresDatabase) StorageType() string {
	return storage.TypePostgreSQL
}

// Pool returns the harness's own connection pool, or nil when not started.
func (d *PostgresDatabase) Pool() *pgxpool.Pool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pool
}

// Resetter returns the resetter bound to this database, or nil when not started.
func (d *PostgresDatabase) Resetter() *Resetter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resetter
}

// Clean implements Database. The table list is captured on the first Clean
// that finds any tables; tables created after that are not reset, so create
// the schema before the first Clean that matters.
func (d *PostgresDatabase) Clean(ctx context.Context) error {
	resetter := d.Resetter()
	if resetter == nil {
		return &ResetError{Op: "reset", Err: ErrNotStarted}
	}
	return resetter.Reset(ctx)
}

// ComposeConnectionString points a postgres URL at database and disables
// TLS, which the local container does not serve.
func ComposeConnectionString(raw, database string) (string, error) {
	if database == "" {
		return "", fmt.Errorf("database name is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse connection string: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported connection string scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("connection string has no host")
	}

	u.Path = "/" + database
	u.RawPath = ""
	q := u.Query()
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
