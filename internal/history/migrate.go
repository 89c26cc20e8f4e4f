package history

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationsTable tracks the history schema version. It is separate from
// the default table so the runs schema can share a database with others.
const MigrationsTable = "blockscope_migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// AutoMigrate brings the history schema up to date and returns its version.
func AutoMigrate(db *sql.DB) (uint, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("history migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return 0, fmt.Errorf("history migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return 0, fmt.Errorf("history migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate history schema: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("history schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("history schema version %d is dirty; fix %s by hand", version, MigrationsTable)
	}
	return version, nil
}
