package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies all pending MySQL migrations. An empty path uses
// the migrations built into the binary.
func RunMigrations(db *sql.DB, path string) error {
	m, err := newMigrate(db, path)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// RollbackMigration reverts the most recent MySQL migration.
func RollbackMigration(db *sql.DB, path string) error {
	m, err := newMigrate(db, path)
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	return nil
}

func newMigrate(db *sql.DB, path string) (*migrate.Migrate, error) {
	driver, err := mysql.WithInstance(db, &mysql.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	if path != "" {
		m, err := migrate.NewWithDatabaseInstance("file://"+path, "mysql", driver)
		if err != nil {
			return nil, fmt.Errorf("failed to load migrations from %s: %w", path, err)
		}
		return m, nil
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "mysql", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// Versions lists the embedded migration versions in order.
func Versions() ([]uint, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	defer source.Close()

	var versions []uint
	v, err := source.First()
	for err == nil {
		versions = append(versions, v)
		v, err = source.Next(v)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return versions, nil
}
