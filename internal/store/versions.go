package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/calvinalkan/scribe/internal/version"
)

// Versions stores section history keyed by (document, section, ts).
type Versions struct {
	db *sql.DB
}

// Insert implements [version.Store].
func (v *Versions) Insert(ctx context.Context, ver version.Version) (bool, error) {
	var inserted bool

	err := runTx(ctx, v.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO versions (document, section, ts, author, content)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (document, section, ts) DO NOTHING`,
			ver.Document, ver.Section, ver.Timestamp, ver.User, ver.Content)
		if err != nil {
			return fmt.Errorf("insert version: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert version: %w", err)
		}

		inserted = n == 1

		return nil
	})
	if err != nil {
		return false, err
	}

	return inserted, nil
}

// Latest implements [version.Store].
func (v *Versions) Latest(ctx context.Context, doc, section string) (string, bool, error) {
	var ts sql.NullString

	err := v.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM versions WHERE document = ? AND section = ?`,
		doc, section).Scan(&ts)
	if err != nil {
		return "", false, fmt.Errorf("read latest version: %w", err)
	}

	return ts.String, ts.Valid, nil
}

// Get implements [version.Store].
func (v *Versions) Get(ctx context.Context, doc, section, ts string) (version.Version, bool, error) {
	out := version.Version{Document: doc, Section: section, Timestamp: ts}

	err := v.db.QueryRowContext(ctx,
		`SELECT author, content FROM versions WHERE document = ? AND section = ? AND ts = ?`,
		doc, section, ts).Scan(&out.User, &out.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return version.Version{}, false, nil
	}

	if err != nil {
		return version.Version{}, false, fmt.Errorf("read version: %w", err)
	}

	return out, true, nil
}

// History implements [version.Store].
func (v *Versions) History(ctx context.Context, doc, section string) ([]version.Entry, error) {
	rows, err := v.db.QueryContext(ctx,
		`SELECT ts, author FROM versions WHERE document = ? AND section = ? ORDER BY ts DESC`,
		doc, section)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []version.Entry

	for rows.Next() {
		var e version.Entry

		err := rows.Scan(&e.Timestamp, &e.User)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}

		out = append(out, e)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	return out, nil
}

// Delete implements [version.Store].
func (v *Versions) Delete(ctx context.Context, doc, section, ts string) error {
	_, err := v.db.ExecContext(ctx,
		`DELETE FROM versions WHERE document = ? AND section = ? AND ts = ?`,
		doc, section, ts)
	if err != nil {
		return fmt.Errorf("delete version: %w", err)
	}

	return nil
}

// DeleteDocument implements [version.Store].
func (v *Versions) DeleteDocument(ctx context.Context, doc string) error {
	_, err := v.db.ExecContext(ctx, `DELETE FROM versions WHERE document = ?`, doc)
	if err != nil {
		return fmt.Errorf("delete versions: %w", err)
	}

	return nil
}

var _ version.Store = (*Versions)(nil)
