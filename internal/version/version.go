// Package version keeps the append-only history of section content and
// performs section saves and rollbacks.
//
// A version is identified by (document, section, timestamp). Timestamps have
// second resolution and are strictly increasing within one section: a save
// that would reuse or precede the newest timestamp waits for the clock.
package version

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/calvinalkan/scribe/internal/marker"
	"github.com/calvinalkan/scribe/internal/scribe"
	"github.com/calvinalkan/scribe/internal/section"
)

// TimestampLayout formats version timestamps (UTC).
const TimestampLayout = "20060102150405"

// maxSaveAttempts bounds how many clock ticks Save waits for a fresh timestamp.
const maxSaveAttempts = 5

// Version is one immutable snapshot of a section.
type Version struct {
	Document  string
	Section   string
	Timestamp string
	User      string
	Content   string
}

// Entry is a history line.
type Entry struct {
	Timestamp string
	User      string
}

// Store persists versions.
type Store interface {
	// Insert stores v unless (document, section, timestamp) exists; inserted
	// reports which happened.
	Insert(ctx context.Context, v Version) (inserted bool, err error)

	// Latest returns the newest timestamp of a section; ok is false when the
	// section has no history.
	Latest(ctx context.Context, doc, section string) (ts string, ok bool, err error)

	Get(ctx context.Context, doc, section, ts string) (Version, bool, error)

	// History returns a section's versions newest first.
	History(ctx context.Context, doc, section string) ([]Entry, error)

	// Delete removes one version. Deleting a missing version is not an error.
	Delete(ctx context.Context, doc, section, ts string) error

	DeleteDocument(ctx context.Context, doc string) error
}

// Documents is the read-modify-write access Manager needs to document files.
type Documents interface {
	Load(ctx context.Context, name string) (string, error)

	// Update runs fn on the current content under the document write lock and
	// persists the result.
	Update(ctx context.Context, name string, fn func(content string) (string, error)) error
}

// Locks gates section writes.
type Locks interface {
	AwaitFree(ctx context.Context, doc, section, user string) error
	Owner(ctx context.Context, doc, section string) (string, error)
}

// Manager records versions and applies section saves.
type Manager struct {
	store  Store
	docs   Documents
	locks  Locks
	clock  scribe.Clock
	logger *slog.Logger
	events scribe.Recorder
}

// Option configures a [Manager].
type Option func(*Manager)

// WithClock sets the clock.
func WithClock(c scribe.Clock) Option { return func(m *Manager) { m.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithRecorder sets the activity recorder.
func WithRecorder(r scribe.Recorder) Option { return func(m *Manager) { m.events = r } }

// NewManager returns a Manager.
func NewManager(store Store, docs Documents, locks Locks, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		docs:   docs,
		locks:  locks,
		clock:  scribe.SystemClock{},
		logger: scribe.DiscardLogger(),
		events: scribe.NopRecorder{},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Save records content as a new version and returns its timestamp.
//
// When the current second is already taken (or the clock is behind the
// newest version) Save sleeps until the next second and tries again, a
// bounded number of times.
func (m *Manager) Save(ctx context.Context, doc, sectionID, user, content string) (string, error) {
	for range maxSaveAttempts {
		now := m.clock.Now().UTC()
		ts := now.Format(TimestampLayout)

		latest, ok, err := m.store.Latest(ctx, doc, sectionID)
		if err != nil {
			return "", scribe.WithContext(fmt.Errorf("read history: %w", err), doc, sectionID)
		}

		if !ok || ts > latest {
			inserted, err := m.store.Insert(ctx, Version{
				Document:  doc,
				Section:   sectionID,
				Timestamp: ts,
				User:      user,
				Content:   content,
			})
			if err != nil {
				return "", scribe.WithContext(fmt.Errorf("insert version: %w", err), doc, sectionID)
			}

			if inserted {
				return ts, nil
			}
		}

		wait := now.Truncate(time.Second).Add(time.Second).Sub(now)
		m.logger.DebugContext(ctx, "version timestamp taken, waiting", "doc", doc, "section", sectionID, "ts", ts, "wait", wait)

		err = m.clock.Sleep(ctx, wait)
		if err != nil {
			return "", scribe.WithContext(err, doc, sectionID)
		}
	}

	return "", scribe.WithContext(scribe.ErrTimestampPending, doc, sectionID)
}

// History returns the versions of a section newest first.
func (m *Manager) History(ctx context.Context, doc, sectionID string) ([]Entry, error) {
	entries, err := m.store.History(ctx, doc, sectionID)
	if err != nil {
		return nil, scribe.WithContext(fmt.Errorf("read history: %w", err), doc, sectionID)
	}

	return entries, nil
}

// Get returns one version or an error wrapping [scribe.ErrVersionNotFound].
func (m *Manager) Get(ctx context.Context, doc, sectionID, ts string) (Version, error) {
	v, ok, err := m.store.Get(ctx, doc, sectionID, ts)
	if err != nil {
		return Version{}, scribe.WithContext(fmt.Errorf("read version: %w", err), doc, sectionID)
	}

	if !ok {
		return Version{}, scribe.WithContext(fmt.Errorf("%w: %s", scribe.ErrVersionNotFound, ts), doc, sectionID)
	}

	return v, nil
}

// SaveSection is the normal section save. It waits (bounded) until the
// section is free or held by user, then under the document write lock:
// checks the lock again, checks the document structure, replaces the section
// body, splits a body holding several headings into sibling sections, checks
// the result and records a version for the section and for every section the
// split created. It returns the timestamp of the saved section's version.
//
// The document is left untouched when any step fails, and versions recorded
// for a write that did not happen are removed again.
func (m *Manager) SaveSection(ctx context.Context, doc, sectionID, user, body string) (string, error) {
	err := scribe.ValidateUser(user)
	if err != nil {
		return "", scribe.WithContext(err, doc, sectionID)
	}

	err = m.locks.AwaitFree(ctx, doc, sectionID, user)
	if err != nil {
		return "", err
	}

	var (
		ts       string
		recorded []Version
	)

	err = m.docs.Update(ctx, doc, func(content string) (string, error) {
		owner, err := m.locks.Owner(ctx, doc, sectionID)
		if err != nil {
			return "", err
		}

		if owner != "" && owner != user {
			return "", fmt.Errorf("%w: held by %s", scribe.ErrLockHeld, owner)
		}

		err = marker.Check(content)
		if err != nil {
			return "", fmt.Errorf("document is not well-formed: %w", err)
		}

		updated, err := section.Replace(content, sectionID, body)
		if err != nil {
			return "", err
		}

		updated = marker.SplitSections(updated, marker.WithClock(m.clock.Now))

		err = marker.Check(updated)
		if err != nil {
			return "", fmt.Errorf("section body breaks document structure: %w", err)
		}

		stored, err := section.Extract(updated, sectionID)
		if err != nil {
			return "", err
		}

		ts, err = m.Save(ctx, doc, sectionID, user, stored)
		if err != nil {
			return "", err
		}

		recorded = append(recorded, Version{Document: doc, Section: sectionID, Timestamp: ts})

		for _, id := range added(content, updated) {
			extra, err := section.Extract(updated, id)
			if err != nil {
				return "", err
			}

			extraTS, err := m.Save(ctx, doc, id, user, extra)
			if err != nil {
				return "", err
			}

			recorded = append(recorded, Version{Document: doc, Section: id, Timestamp: extraTS})
		}

		return updated, nil
	})
	if err != nil {
		m.discard(ctx, recorded)

		return "", scribe.WithContext(err, doc, sectionID)
	}

	scribe.Emit(ctx, m.events, m.logger, scribe.NewEvent(m.clock.Now(), doc, sectionID, user, scribe.ActionSave, ts))

	return ts, nil
}

// discard removes versions recorded for a save whose document write failed.
func (m *Manager) discard(ctx context.Context, versions []Version) {
	ctx = context.WithoutCancel(ctx)

	for _, v := range versions {
		err := m.store.Delete(ctx, v.Document, v.Section, v.Timestamp)
		if err != nil {
			m.logger.WarnContext(ctx, "discard version of failed save", "doc", v.Document, "section", v.Section, "ts", v.Timestamp, "error", err)
		}
	}
}

// Outcome reports what a rollback did.
type Outcome struct {
	// Timestamp is the new version's timestamp, or the requested timestamp
	// when the section already held that content.
	Timestamp string
	Changed   bool
}

// Rollback restores the content of version ts into the section. Content
// equal to the current body up to surrounding whitespace is a no-op that
// returns ts unchanged. Otherwise the content goes through [Manager.SaveSection]
// and becomes a new history entry.
func (m *Manager) Rollback(ctx context.Context, doc, sectionID, ts, user string) (Outcome, error) {
	v, err := m.Get(ctx, doc, sectionID, ts)
	if err != nil {
		return Outcome{}, err
	}

	content, err := m.docs.Load(ctx, doc)
	if err != nil {
		return Outcome{}, scribe.WithContext(err, doc, sectionID)
	}

	current, err := section.Extract(content, sectionID)
	if err != nil {
		return Outcome{}, scribe.WithContext(err, doc, sectionID)
	}

	if strings.TrimSpace(current) == strings.TrimSpace(v.Content) {
		return Outcome{Timestamp: ts}, nil
	}

	newTS, err := m.SaveSection(ctx, doc, sectionID, user, v.Content)
	if err != nil {
		return Outcome{}, err
	}

	scribe.Emit(ctx, m.events, m.logger, scribe.NewEvent(m.clock.Now(), doc, sectionID, user, scribe.ActionRollback, ts+" -> "+newTS))

	return Outcome{Timestamp: newTS, Changed: true}, nil
}

// DeleteDocument removes every version of doc.
func (m *Manager) DeleteDocument(ctx context.Context, doc string) error {
	err := m.store.DeleteDocument(ctx, doc)
	if err != nil {
		return scribe.WithContext(fmt.Errorf("delete versions: %w", err), doc, "")
	}

	return nil
}

// added returns the section ids present in after but not in before.
func added(before, after string) []string {
	old := marker.IDs(before)

	var out []string

	for _, id := range marker.IDs(after) {
		if !slices.Contains(old, id) {
			out = append(out, id)
		}
	}

	return out
}
