package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/calvinalkan/scribe/internal/scribe"
)

// Activity is the append-only audit log of document mutations.
type Activity struct {
	db *sql.DB
}

// Record implements [scribe.Recorder].
func (a *Activity) Record(ctx context.Context, ev scribe.Event) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO activity (id, document, section, actor, action, detail, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Document, ev.Section, ev.User, string(ev.Action), ev.Detail, ev.At.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}

	return nil
}

// List returns the newest events of doc, newest first. limit <= 0 means all.
func (a *Activity) List(ctx context.Context, doc string, limit int) ([]scribe.Event, error) {
	if limit <= 0 {
		limit = -1
	}

	// UUIDv7 ids sort by creation time, breaking ties within a millisecond.
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, section, actor, action, detail, at
		FROM activity WHERE document = ?
		ORDER BY at DESC, id DESC
		LIMIT ?`, doc, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []scribe.Event

	for rows.Next() {
		var (
			ev     = scribe.Event{Document: doc}
			action string
			at     int64
		)

		err := rows.Scan(&ev.ID, &ev.Section, &ev.User, &action, &ev.Detail, &at)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}

		ev.Action = scribe.Action(action)
		ev.At = time.UnixMilli(at).UTC()
		out = append(out, ev)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}

	return out, nil
}

// DeleteDocument removes the activity of doc.
func (a *Activity) DeleteDocument(ctx context.Context, doc string) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM activity WHERE document = ?`, doc)
	if err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}

	return nil
}

var _ scribe.Recorder = (*Activity)(nil)
