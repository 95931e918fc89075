// Package store is the SQLite-backed record store and template catalog.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/starford/fiche/internal/apperr"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// DB wraps a sqlx.DB with catalog and record operations.
type DB struct {
	conn *sqlx.DB
}

// Open opens (or creates) the SQLite database, applies pending migrations and
// prepares the search index.
func Open(path string) (*DB, error) {
	if _, err := Migrate(path); err != nil {
		return nil, err
	}
	conn, err := sqlx.Open("sqlite3", path+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Migrate applies the embedded migrations to the database at path and
// returns the resulting schema version. It uses its own connection because
// closing the migrator closes the database handle.
func Migrate(path string) (uint, error) {
	conn, err := sql.Open("sqlite3", path+dsnParams)
	if err != nil {
		return 0, fmt.Errorf("store: open db for migration: %w", err)
	}
	driver, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	if err != nil {
		conn.Close()
		return 0, fmt.Errorf("store: migration driver: %w", err)
	}
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		driver.Close()
		return 0, fmt.Errorf("store: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		driver.Close()
		return 0, fmt.Errorf("store: migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("store: migrate up: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("store: migration version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("store: schema version %d is dirty", version)
	}
	slog.Debug("store: schema migrated", slog.Uint64("version", uint64(version)))
	return version, nil
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// translate maps driver errors onto apperr kinds.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store: %s: %w", what, apperr.ErrNotFound)
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("store: %s: %w", what, apperr.ErrAlreadyExists)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("store: %s: parent %w", what, apperr.ErrNotFound)
		}
	}
	return fmt.Errorf("store: %s: %w", what, err)
}
