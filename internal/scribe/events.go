package scribe

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Action names a recorded mutation.
type Action string

// Recorded actions.
const (
	ActionCreate        Action = "create"
	ActionDelete        Action = "delete"
	ActionRepair        Action = "repair"
	ActionLock          Action = "lock"
	ActionUnlock        Action = "unlock"
	ActionBreak         Action = "break"
	ActionSave          Action = "save"
	ActionRollback      Action = "rollback"
	ActionDeleteSection Action = "delete-section"
	ActionProfile       Action = "profile"
)

// Event is one entry of a document's activity log.
type Event struct {
	ID       string
	Document string
	Section  string
	User     string
	Action   Action
	Detail   string
	At       time.Time
}

// NewEvent returns an event stamped with a fresh UUIDv7 id.
func NewEvent(at time.Time, document, section, user string, action Action, detail string) Event {
	return Event{
		ID:       uuid.Must(uuid.NewV7()).String(),
		Document: document,
		Section:  section,
		User:     user,
		Action:   action,
		Detail:   detail,
		At:       at.UTC(),
	}
}

// Recorder persists activity events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// NopRecorder drops every event.
type NopRecorder struct{}

// Record implements [Recorder].
func (NopRecorder) Record(context.Context, Event) error { return nil }

// Emit records ev and logs it. A failing recorder never fails the caller's
// operation; the error is logged at warn level.
func Emit(ctx context.Context, rec Recorder, logger *slog.Logger, ev Event) {
	logger.DebugContext(ctx, "activity",
		"action", string(ev.Action),
		"doc", ev.Document,
		"section", ev.Section,
		"user", ev.User,
	)

	if rec == nil {
		return
	}

	err := rec.Record(ctx, ev)
	if err != nil {
		logger.WarnContext(ctx, "activity record failed", "error", err, "action", string(ev.Action), "doc", ev.Document)
	}
}

// DiscardLogger returns a logger that drops everything. Components use it
// when no logger is configured.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
