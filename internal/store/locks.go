package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/calvinalkan/scribe/internal/lock"
)

// Locks stores lock records. The (document, section) primary key together
// with INSERT ... ON CONFLICT DO NOTHING makes creation atomic.
type Locks struct {
	db *sql.DB
}

// Create implements [lock.Store].
func (l *Locks) Create(ctx context.Context, rec lock.Record) (string, bool, error) {
	var (
		holder  string
		created bool
	)

	err := runTx(ctx, l.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO locks (document, section, holder, locked_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (document, section) DO NOTHING`,
			rec.Document, rec.Section, rec.User, rec.LockedAt.UTC().Unix())
		if err != nil {
			return fmt.Errorf("insert lock: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert lock: %w", err)
		}

		if n == 1 {
			holder, created = rec.User, true

			return nil
		}

		err = tx.QueryRowContext(ctx,
			`SELECT holder FROM locks WHERE document = ? AND section = ?`,
			rec.Document, rec.Section).Scan(&holder)
		if err != nil {
			return fmt.Errorf("read lock holder: %w", err)
		}

		return nil
	})
	if err != nil {
		return "", false, err
	}

	return holder, created, nil
}

// Get implements [lock.Store].
func (l *Locks) Get(ctx context.Context, doc, section string) (lock.Record, bool, error) {
	var (
		holder   string
		lockedAt int64
	)

	err := l.db.QueryRowContext(ctx,
		`SELECT holder, locked_at FROM locks WHERE document = ? AND section = ?`,
		doc, section).Scan(&holder, &lockedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return lock.Record{}, false, nil
	}

	if err != nil {
		return lock.Record{}, false, fmt.Errorf("read lock: %w", err)
	}

	return lock.Record{
		Document: doc,
		Section:  section,
		User:     holder,
		LockedAt: time.Unix(lockedAt, 0).UTC(),
	}, true, nil
}

// Release implements [lock.Store].
func (l *Locks) Release(ctx context.Context, doc, section, user string) (bool, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM locks WHERE document = ? AND section = ? AND holder = ?`,
		doc, section, user)
	if err != nil {
		return false, fmt.Errorf("delete lock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete lock: %w", err)
	}

	return n == 1, nil
}

// Break implements [lock.Store].
func (l *Locks) Break(ctx context.Context, doc, section string) (string, error) {
	var former string

	err := runTx(ctx, l.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT holder FROM locks WHERE document = ? AND section = ?`,
			doc, section).Scan(&former)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("read lock: %w", err)
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM locks WHERE document = ? AND section = ?`, doc, section)
		if err != nil {
			return fmt.Errorf("delete lock: %w", err)
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	return former, nil
}

// List implements [lock.Store].
func (l *Locks) List(ctx context.Context, doc string) ([]lock.Record, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT section, holder, locked_at FROM locks WHERE document = ? ORDER BY section`, doc)
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}
	defer rows.Close()

	var out []lock.Record

	for rows.Next() {
		var (
			rec      = lock.Record{Document: doc}
			lockedAt int64
		)

		err := rows.Scan(&rec.Section, &rec.User, &lockedAt)
		if err != nil {
			return nil, fmt.Errorf("scan lock: %w", err)
		}

		rec.LockedAt = time.Unix(lockedAt, 0).UTC()
		out = append(out, rec)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}

	return out, nil
}

// DeleteDocument implements [lock.Store].
func (l *Locks) DeleteDocument(ctx context.Context, doc string) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM locks WHERE document = ?`, doc)
	if err != nil {
		return fmt.Errorf("delete locks: %w", err)
	}

	return nil
}

var _ lock.Store = (*Locks)(nil)
