// Package store is scribe's embedded row store: lock records, section
// versions, document metadata and the activity log, all in one SQLite file
// with typed (document, section[, timestamp]) keys.
//
// Views returned by [Store.Locks], [Store.Versions], [Store.Meta] and
// [Store.Activity] implement the storage interfaces of the lock, version and
// document packages.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the database file created inside the data directory.
const FileName = "scribe.sqlite"

const schemaVersion = 1

// ErrSchemaTooNew is returned when the database was written by a newer scribe.
var ErrSchemaTooNew = errors.New("database schema is newer than this binary")

// Store owns the SQLite handle.
type Store struct {
	path string
	sql  *sql.DB
}

// Open opens (creating if needed) the database in dataDir and migrates the
// schema.
func Open(ctx context.Context, dataDir string) (*Store, error) {
	if ctx == nil {
		return nil, errors.New("open store: context is nil")
	}

	if dataDir == "" {
		return nil, errors.New("open store: directory is empty")
	}

	dir := filepath.Clean(dataDir)

	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("open store: create data directory: %w", err)
	}

	path := filepath.Join(dir, FileName)

	db, err := openSQLite(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	err = migrate(ctx, db)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("open store: %w", err)
	}

	return &Store{path: path, sql: db}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the SQLite handle opened by Open.
func (s *Store) Close() error {
	if s == nil || s.sql == nil {
		return nil
	}

	err := s.sql.Close()
	if err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}

	return nil
}

// Locks returns the lock record view.
func (s *Store) Locks() *Locks { return &Locks{db: s.sql} }

// Versions returns the version history view.
func (s *Store) Versions() *Versions { return &Versions{db: s.sql} }

// Meta returns the document metadata view.
func (s *Store) Meta() *Meta { return &Meta{db: s.sql} }

// Activity returns the activity log view.
func (s *Store) Activity() *Activity { return &Activity{db: s.sql} }

func migrate(ctx context.Context, db *sql.DB) error {
	version, err := userVersion(ctx, db)
	if err != nil {
		return err
	}

	switch {
	case version == schemaVersion:
		return nil
	case version > schemaVersion:
		return fmt.Errorf("%w: user_version %d, supported %d", ErrSchemaTooNew, version, schemaVersion)
	}

	return runTx(ctx, db, func(tx *sql.Tx) error {
		for _, stmt := range schema {
			_, err := tx.ExecContext(ctx, stmt)
			if err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
		}

		_, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
		if err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}

		return nil
	})
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS locks (
		document TEXT NOT NULL,
		section TEXT NOT NULL,
		holder TEXT NOT NULL,
		locked_at INTEGER NOT NULL,
		PRIMARY KEY (document, section)
	) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS versions (
		document TEXT NOT NULL,
		section TEXT NOT NULL,
		ts TEXT NOT NULL,
		author TEXT NOT NULL,
		content TEXT NOT NULL,
		PRIMARY KEY (document, section, ts)
	) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS documents (
		name TEXT PRIMARY KEY,
		creator TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		purpose TEXT NOT NULL DEFAULT '',
		lang TEXT NOT NULL DEFAULT ''
	) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS activity (
		id TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		section TEXT NOT NULL DEFAULT '',
		actor TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS activity_document_at ON activity (document, at)`,
}
