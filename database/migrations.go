// Package database provides the schema migrations of the snapshot store.
package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator is the interface for the migration tooling.
type Migrator interface {
	Up() error
	Down() error
	Steps(int) error
	Version() (uint, bool, error)
	Close() (error, error)
}

// GetMigrate returns a migrate instance over the embedded migrations for the database at connString
func GetMigrate(connString string) (Migrator, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations connection: %w", err)
	}

	driver, err := pgxv5.WithInstance(db, &pgxv5.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialise pgx v5 driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialise migrate instance: %w", err)
	}
	return m, nil
}

// MigrateUp applies every pending migration
func MigrateUp(connString string) error {
	return run(connString, "up", func(m Migrator) error { return m.Up() })
}

// MigrateDown rolls back steps migrations; steps <= 0 rolls back everything
func MigrateDown(connString string, steps int) error {
	return run(connString, "down", func(m Migrator) error {
		if steps <= 0 {
			return m.Down()
		}
		return m.Steps(-steps)
	})
}

func run(connString, direction string, fn func(Migrator) error) error {
	m, err := GetMigrate(connString)
	if err != nil {
		return err
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			slog.Warn("Failed to close migrate instance", "source_error", sourceErr, "db_error", dbErr)
		}
	}()

	if err := fn(m); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("Database migrations up-to-date", "direction", direction)
			return nil
		}
		return fmt.Errorf("failed to migrate %s: %w", direction, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	slog.Info("Database migrations applied", "direction", direction, "version", version, "dirty", dirty)
	return nil
}
