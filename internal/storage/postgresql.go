package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// postgresStorage implements Storage for PostgreSQL
type postgresStorage struct {
	pool  *pgxpool.Pool
	sqlDB *sql.DB
	db    *gorm.DB
}

// NewPostgreSQL creates a new PostgreSQL storage connection.
// It creates a connection pool for efficient connection reuse and layers
// database/sql and gorm on top of that pool.
func NewPostgreSQL(ctx context.Context, cfg PostgreSQLConfig) (Storage, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("PostgreSQL URL is required")
	}

	// Parse the connection string and create pool config
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL URL: %w", err)
	}

	// Set connection pool size
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	} else {
		poolCfg.MaxConns = 10 // default
	}

	// Create the connection pool
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)

	db, err := openGorm(postgres.New(postgres.Config{Conn: sqlDB}))
	if err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, fmt.Errorf("failed to open gorm session: %w", err)
	}

	return &postgresStorage{pool: pool, sqlDB: sqlDB, db: db}, nil
}

func (s *postgresStorage) Type() string {
	return TypePostgreSQL
}

func (s *postgresStorage) DB() *gorm.DB {
	return s.db
}

func (s *postgresStorage) SQLDB() *sql.DB {
	return s.sqlDB
}

func (s *postgresStorage) Close() error {
	var err error
	if s.sqlDB != nil {
		err = s.sqlDB.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

// Pool returns the underlying pgxpool.Pool for direct access
func (s *postgresStorage) Pool() *pgxpool.Pool {
	return s.pool
}
