package store

import (
	"context"
	"embed"
	"fmt"

	"trustlog/core/utils"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

func ApplyMigrations(ctx context.Context, db *DB, logger *utils.Logger) error {
	dialect, dir := "sqlite3", "migrations/sqlite"
	if db.Dialect == DialectPostgres {
		dialect, dir = "postgres", "migrations/postgres"
	}
	goose.SetBaseFS(migrationFiles)
	if logger != nil {
		goose.SetLogger(logger)
	} else {
		goose.SetLogger(goose.NopLogger())
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied goose version.
func SchemaVersion(ctx context.Context, db *DB) (int64, error) {
	return goose.GetDBVersionContext(ctx, db.DB)
}
