package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteDriverName is the database/sql driver name registered by modernc.org/sqlite.
const SQLiteDriverName = "sqlite"

// sqliteStorage implements Storage for SQLite
type sqliteStorage struct {
	sqlDB *sql.DB
	db    *gorm.DB
}

// SQLiteDSN builds the DSN used for every SQLite connection in this module.
// WAL mode allows concurrent reads while writing; foreign keys are enforced.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)", path)
}

// NewSQLite creates a new SQLite storage connection.
func NewSQLite(ctx context.Context, cfg SQLiteConfig) (Storage, error) {
	if cfg.Path == "" {
		cfg.Path = "data/userapi.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	sqlDB, err := sql.Open(SQLiteDriverName, SQLiteDSN(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// SQLite only allows one writer at a time
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	// Verify connection
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	db, err := openGorm(sqlite.New(sqlite.Config{DriverName: SQLiteDriverName, Conn: sqlDB}))
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open gorm session: %w", err)
	}

	return &sqliteStorage{sqlDB: sqlDB, db: db}, nil
}

func (s *sqliteStorage) Type() string {
	return TypeSQLite
}

func (s *sqliteStorage) DB() *gorm.DB {
	return s.db
}

func (s *sqliteStorage) SQLDB() *sql.DB {
	return s.sqlDB
}

func (s *sqliteStorage) Close() error {
	if s.sqlDB != nil {
		return s.sqlDB.Close()
	}
	return nil
}
