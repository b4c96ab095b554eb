package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eni-go/internal/database/migrations"
	"eni-go/internal/eni"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const timeLayout = time.RFC3339Nano

// SQLiteDatabase implements eni.PropertyStore using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path and migrates it to the latest
// schema. path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}

	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Lock operations

func (s *SQLiteDatabase) FindLock(path string) (*eni.Lock, error) {
	return findLock(s.db, path)
}

type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

func findLock(q queryRower, path string) (*eni.Lock, error) {
	var (
		lock  eni.Lock
		since string
	)
	err := q.QueryRow("SELECT holder, comment, created_at FROM locks WHERE path = ?", path).
		Scan(&lock.Holder, &lock.Comment, &since)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding lock on %q: %w", path, err)
	}
	lock.Since, err = time.Parse(timeLayout, since)
	if err != nil {
		return nil, fmt.Errorf("parsing lock time on %q: %w", path, err)
	}
	return &lock, nil
}

// AcquireLock takes the lock on path for holder. A holder re-acquiring its
// own lock refreshes the comment and keeps the original timestamp.
func (s *SQLiteDatabase) AcquireLock(path, holder, comment string, at time.Time) (*eni.Lock, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := findLock(tx, path)
	if err != nil {
		return nil, err
	}

	var lock *eni.Lock
	switch {
	case existing == nil:
		lock = &eni.Lock{Holder: holder, Comment: comment, Since: at.UTC()}
		_, err = tx.Exec("INSERT INTO locks (path, holder, comment, created_at) VALUES (?, ?, ?, ?)",
			path, holder, comment, lock.Since.Format(timeLayout))
	case existing.Holder == holder:
		lock = &eni.Lock{Holder: holder, Comment: comment, Since: existing.Since}
		_, err = tx.Exec("UPDATE locks SET comment = ? WHERE path = ?", comment, path)
	default:
		return nil, &eni.LockConflictError{Path: path, Holder: existing.Holder}
	}
	if err != nil {
		return nil, fmt.Errorf("storing lock on %q: %w", path, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing lock on %q: %w", path, err)
	}
	return lock, nil
}

func (s *SQLiteDatabase) ReleaseLock(path, holder string) error {
	var err error
	if holder == "" {
		_, err = s.db.Exec("DELETE FROM locks WHERE path = ?", path)
	} else {
		_, err = s.db.Exec("DELETE FROM locks WHERE path = ? AND holder = ?", path, holder)
	}
	if err != nil {
		return fmt.Errorf("releasing lock on %q: %w", path, err)
	}
	return nil
}

func (s *SQLiteDatabase) ListLocks() ([]eni.LockedPath, error) {
	rows, err := s.db.Query("SELECT path, holder, comment, created_at FROM locks ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("listing locks: %w", err)
	}
	defer rows.Close()

	var locks []eni.LockedPath
	for rows.Next() {
		var (
			lp    eni.LockedPath
			since string
		)
		if err := rows.Scan(&lp.Path, &lp.Holder, &lp.Comment, &since); err != nil {
			return nil, fmt.Errorf("scanning lock: %w", err)
		}
		if lp.Since, err = time.Parse(timeLayout, since); err != nil {
			return nil, fmt.Errorf("parsing lock time on %q: %w", lp.Path, err)
		}
		locks = append(locks, lp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing locks: %w", err)
	}
	return locks, nil
}

// Property operations

func (s *SQLiteDatabase) SetPathProperty(path, name, value string) error {
	_, err := s.db.Exec(`INSERT INTO path_properties (path, name, value) VALUES (?, ?, ?)
		ON CONFLICT(path, name) DO UPDATE SET value = excluded.value`, path, name, value)
	if err != nil {
		return fmt.Errorf("setting %s on %q: %w", name, path, err)
	}
	return nil
}

func (s *SQLiteDatabase) FindPathProperty(path, name string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM path_properties WHERE path = ? AND name = ?", path, name).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("finding %s on %q: %w", name, path, err)
	}
	return value, nil
}

func (s *SQLiteDatabase) SetRevisionProperty(revision, name, value string) error {
	_, err := s.db.Exec(`INSERT INTO revision_properties (revision, name, value) VALUES (?, ?, ?)
		ON CONFLICT(revision, name) DO UPDATE SET value = excluded.value`, revision, name, value)
	if err != nil {
		return fmt.Errorf("setting %s on revision %s: %w", name, revision, err)
	}
	return nil
}

func (s *SQLiteDatabase) FindRevisionProperties(revision string) (map[string]string, error) {
	rows, err := s.db.Query("SELECT name, value FROM revision_properties WHERE revision = ?", revision)
	if err != nil {
		return nil, fmt.Errorf("finding properties of revision %s: %w", revision, err)
	}
	defer rows.Close()

	props := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scanning revision property: %w", err)
		}
		props[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finding properties of revision %s: %w", revision, err)
	}
	return props, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ eni.PropertyStore = (*SQLiteDatabase)(nil)
