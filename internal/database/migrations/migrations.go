// Package migrations embeds the property-store schema and applies it with
// golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// Status describes where a property store stands relative to the embedded
// migrations.
type Status struct {
	Current uint // 0 when no migration has run
	Latest  uint
	Dirty   bool
}

// Pending reports how many migrations have not been applied.
func (s Status) Pending() uint {
	if s.Current >= s.Latest {
		return 0
	}
	return s.Latest - s.Current
}

// ReadStatus inspects db without changing it.
func ReadStatus(db *sql.DB) (Status, error) {
	m, err := newMigrate(db)
	if err != nil {
		return Status{}, err
	}
	// m is not closed: closing it closes db, which the caller owns.

	latest, err := latestVersion(migrationFiles)
	if err != nil {
		return Status{}, err
	}

	current, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, fmt.Errorf("reading schema version: %w", err)
	}
	return Status{Current: current, Latest: latest, Dirty: dirty}, nil
}

// CheckDBMigrationStatus returns nil when db is exactly at the latest
// schema version and an error naming the mismatch otherwise.
func CheckDBMigrationStatus(db *sql.DB) error {
	s, err := ReadStatus(db)
	if err != nil {
		return err
	}
	switch {
	case s.Current == 0:
		return fmt.Errorf("property store has no schema version (needs migration)")
	case s.Dirty:
		return fmt.Errorf("property store is dirty at version %d (a migration failed)", s.Current)
	case s.Current < s.Latest:
		return fmt.Errorf("property store is at version %d, latest is %d (%d pending)", s.Current, s.Latest, s.Pending())
	case s.Current > s.Latest:
		return fmt.Errorf("property store version %d is newer than this binary (%d)", s.Current, s.Latest)
	}
	return nil
}

// MigrateUp applies every pending migration. An up-to-date store is not an
// error.
func MigrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating property store: %w", err)
	}
	return nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("loading embedded migrations: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating sqlite3 migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

// latestVersion walks the migrations in fsys and returns the highest version.
func latestVersion(fsys fs.FS) (uint, error) {
	src, err := iofs.New(fsys, "files")
	if err != nil {
		return 0, fmt.Errorf("loading embedded migrations: %w", err)
	}
	defer src.Close()
	return lastVersion(src)
}

func lastVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("reading first migration: %w", err)
	}
	for {
		next, err := src.Next(v)
		if err != nil {
			// Next fails with os.ErrNotExist past the last migration.
			return v, nil
		}
		v = next
	}
}
