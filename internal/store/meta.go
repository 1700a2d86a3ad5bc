package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/calvinalkan/scribe/internal/document"
	"github.com/calvinalkan/scribe/internal/scribe"
)

// Meta is the document registry.
type Meta struct {
	db *sql.DB
}

// CreateMeta implements [document.MetaStore].
func (m *Meta) CreateMeta(ctx context.Context, meta document.Meta) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO documents (name, creator, created_at, role, purpose, lang)
		VALUES (?, ?, ?, ?, ?, ?)`,
		meta.Name, meta.Creator, meta.CreatedAt.UTC().Unix(),
		meta.Profile.Role, meta.Profile.Purpose, meta.Profile.Lang)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return scribe.ErrDocumentExists
		}

		return fmt.Errorf("insert document: %w", err)
	}

	return nil
}

// GetMeta implements [document.MetaStore].
func (m *Meta) GetMeta(ctx context.Context, name string) (document.Meta, bool, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT name, creator, created_at, role, purpose, lang
		FROM documents WHERE name = ?`, name)

	meta, err := scanMeta(row)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Meta{}, false, nil
	}

	if err != nil {
		return document.Meta{}, false, err
	}

	return meta, true, nil
}

// SetProfile implements [document.MetaStore].
func (m *Meta) SetProfile(ctx context.Context, name string, p scribe.Profile) error {
	res, err := m.db.ExecContext(ctx,
		`UPDATE documents SET role = ?, purpose = ?, lang = ? WHERE name = ?`,
		p.Role, p.Purpose, p.Lang, name)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	if n == 0 {
		return scribe.ErrDocumentNotFound
	}

	return nil
}

// ListMeta implements [document.MetaStore].
func (m *Meta) ListMeta(ctx context.Context) ([]document.Meta, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT name, creator, created_at, role, purpose, lang
		FROM documents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []document.Meta

	for rows.Next() {
		meta, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, meta)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	return out, nil
}

// DeleteMeta implements [document.MetaStore].
func (m *Meta) DeleteMeta(ctx context.Context, name string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM documents WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeta(s scanner) (document.Meta, error) {
	var (
		meta      document.Meta
		createdAt int64
	)

	err := s.Scan(&meta.Name, &meta.Creator, &createdAt, &meta.Profile.Role, &meta.Profile.Purpose, &meta.Profile.Lang)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Meta{}, err
	}

	if err != nil {
		return document.Meta{}, fmt.Errorf("scan document: %w", err)
	}

	meta.CreatedAt = time.Unix(createdAt, 0).UTC()

	return meta, nil
}

var _ document.MetaStore = (*Meta)(nil)
