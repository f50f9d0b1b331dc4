package pg

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// MigrationsDir is the directory of the embedded goose migrations
const MigrationsDir = "migrations"

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations returns the embedded migration files
func Migrations() embed.FS {
	return migrations
}

// SetupGoose points goose at the embedded migrations and the postgres dialect
func SetupGoose() error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return nil
}

// MigrateUp applies all pending migrations
func MigrateUp(ctx context.Context, db *sql.DB) error {
	if err := SetupGoose(); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, MigrationsDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
