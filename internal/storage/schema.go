package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"userapi/internal/core"
)

// SchemaVersion is recorded in schema_migrations whenever EnsureSchema runs.
const SchemaVersion int64 = 1

// SchemaMigrationsTable holds schema metadata and must survive test resets.
const SchemaMigrationsTable = "schema_migrations"

// SchemaMigration is one row of the schema metadata table. The layout matches
// the table golang-migrate maintains so either can own it.
type SchemaMigration struct {
	Version int64 `gorm:"primaryKey;autoIncrement:false"`
	Dirty   bool  `gorm:"not null;default:false"`
}

// TableName pins the metadata table name.
func (SchemaMigration) TableName() string {
	return SchemaMigrationsTable
}

// EnsureSchema creates any missing tables and records the schema version.
// It is create-if-missing only: existing columns are never dropped and no
// versioned migration history is replayed.
func EnsureSchema(ctx context.Context, s Storage) error {
	db := s.DB().WithContext(ctx)

	if err := db.AutoMigrate(&SchemaMigration{}, &core.User{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&SchemaMigration{Version: SchemaVersion}).Error
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return nil
}
