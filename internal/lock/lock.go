// Package lock implements advisory per-section write locks.
//
// A lock is a persisted record keyed by (document, section). The record's
// existence is the lock: creating it must be an atomic create-if-absent, and
// only the owner may remove it. Locks never expire; [Manager.Break] is the
// administrative override for locks left behind by crashed holders.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/calvinalkan/scribe/internal/scribe"
)

// Record is one held lock.
type Record struct {
	Document string
	Section  string
	User     string
	LockedAt time.Time
}

// Store persists lock records. Implementations must make Create atomic with
// respect to other processes sharing the same storage.
type Store interface {
	// Create inserts rec unless a record for (rec.Document, rec.Section)
	// exists. It returns the user holding the lock afterwards and whether
	// rec was inserted.
	Create(ctx context.Context, rec Record) (holder string, created bool, err error)

	// Get returns the record for (doc, section); ok is false when unlocked.
	Get(ctx context.Context, doc, section string) (rec Record, ok bool, err error)

	// Release removes the record only if user holds it.
	Release(ctx context.Context, doc, section, user string) (bool, error)

	// Break removes the record regardless of holder and returns the former
	// holder ("" when there was none).
	Break(ctx context.Context, doc, section string) (string, error)

	// List returns every record of doc.
	List(ctx context.Context, doc string) ([]Record, error)

	// DeleteDocument removes every record of doc.
	DeleteDocument(ctx context.Context, doc string) error
}

// Defaults for [Manager.AwaitFree].
const (
	DefaultWaitRetries  = 10
	DefaultWaitInterval = 100 * time.Millisecond
)

// Manager applies the lock state machine UNLOCKED -> LOCKED(owner) -> UNLOCKED
// on top of a [Store].
type Manager struct {
	store    Store
	clock    scribe.Clock
	logger   *slog.Logger
	events   scribe.Recorder
	retries  int
	interval time.Duration
}

// Option configures a [Manager].
type Option func(*Manager)

// WithClock sets the clock used for lock timestamps and waits.
func WithClock(c scribe.Clock) Option { return func(m *Manager) { m.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithRecorder sets the activity recorder.
func WithRecorder(r scribe.Recorder) Option { return func(m *Manager) { m.events = r } }

// WithWait sets how often and how long [Manager.AwaitFree] polls.
func WithWait(retries int, interval time.Duration) Option {
	return func(m *Manager) {
		m.retries = max(retries, 0)
		m.interval = max(interval, 0)
	}
}

// NewManager returns a Manager over store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		clock:    scribe.SystemClock{},
		logger:   scribe.DiscardLogger(),
		events:   scribe.NopRecorder{},
		retries:  DefaultWaitRetries,
		interval: DefaultWaitInterval,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Lock acquires section for user. It returns true when user now holds the
// lock (including when user already held it) and false when another user
// does. Contention is not an error.
func (m *Manager) Lock(ctx context.Context, doc, section, user string) (bool, error) {
	err := validate(section, user)
	if err != nil {
		return false, scribe.WithContext(err, doc, section)
	}

	holder, created, err := m.store.Create(ctx, Record{
		Document: doc,
		Section:  section,
		User:     user,
		LockedAt: m.clock.Now().UTC().Truncate(time.Second),
	})
	if err != nil {
		return false, scribe.WithContext(fmt.Errorf("create lock: %w", err), doc, section)
	}

	if created {
		scribe.Emit(ctx, m.events, m.logger, scribe.NewEvent(m.clock.Now(), doc, section, user, scribe.ActionLock, ""))

		return true, nil
	}

	if holder != user {
		m.logger.DebugContext(ctx, "lock contended", "doc", doc, "section", section, "user", user, "holder", holder)
	}

	return holder == user, nil
}

// Owner returns the user holding section, or "" when it is unlocked.
func (m *Manager) Owner(ctx context.Context, doc, section string) (string, error) {
	rec, ok, err := m.Record(ctx, doc, section)
	if err != nil {
		return "", err
	}

	if !ok {
		return "", nil
	}

	return rec.User, nil
}

// Record returns the full lock record of section; ok is false when unlocked.
func (m *Manager) Record(ctx context.Context, doc, section string) (Record, bool, error) {
	err := scribe.ValidateSectionID(section)
	if err != nil {
		return Record{}, false, scribe.WithContext(err, doc, section)
	}

	rec, ok, err := m.store.Get(ctx, doc, section)
	if err != nil {
		return Record{}, false, scribe.WithContext(fmt.Errorf("read lock: %w", err), doc, section)
	}

	return rec, ok, nil
}

// Unlock releases section if user holds it. It returns false, without error,
// when user is not the holder or the section is not locked.
func (m *Manager) Unlock(ctx context.Context, doc, section, user string) (bool, error) {
	err := validate(section, user)
	if err != nil {
		return false, scribe.WithContext(err, doc, section)
	}

	released, err := m.store.Release(ctx, doc, section, user)
	if err != nil {
		return false, scribe.WithContext(fmt.Errorf("release lock: %w", err), doc, section)
	}

	if released {
		scribe.Emit(ctx, m.events, m.logger, scribe.NewEvent(m.clock.Now(), doc, section, user, scribe.ActionUnlock, ""))
	}

	return released, nil
}

// CheckAll maps every locked section of doc to its holder.
func (m *Manager) CheckAll(ctx context.Context, doc string) (map[string]string, error) {
	recs, err := m.store.List(ctx, doc)
	if err != nil {
		return nil, scribe.WithContext(fmt.Errorf("list locks: %w", err), doc, "")
	}

	out := make(map[string]string, len(recs))
	for _, r := range recs {
		out[r.Section] = r.User
	}

	return out, nil
}

// List returns every lock record of doc ordered by section id.
func (m *Manager) List(ctx context.Context, doc string) ([]Record, error) {
	recs, err := m.store.List(ctx, doc)
	if err != nil {
		return nil, scribe.WithContext(fmt.Errorf("list locks: %w", err), doc, "")
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].Section < recs[j].Section })

	return recs, nil
}

// Break removes the lock on section whoever holds it and returns the former
// holder. by names the administrator for the activity log.
func (m *Manager) Break(ctx context.Context, doc, section, by string) (string, error) {
	err := validate(section, by)
	if err != nil {
		return "", scribe.WithContext(err, doc, section)
	}

	former, err := m.store.Break(ctx, doc, section)
	if err != nil {
		return "", scribe.WithContext(fmt.Errorf("break lock: %w", err), doc, section)
	}

	if former != "" {
		m.logger.InfoContext(ctx, "lock broken", "doc", doc, "section", section, "holder", former, "by", by)
		scribe.Emit(ctx, m.events, m.logger, scribe.NewEvent(m.clock.Now(), doc, section, by, scribe.ActionBreak, "held by "+former))
	}

	return former, nil
}

// AwaitFree returns nil once section is unlocked or held by user. While
// another user holds it, AwaitFree polls up to the configured number of
// retries, sleeping the configured interval between polls, then fails with
// an error wrapping [scribe.ErrLockHeld]. Cancelling ctx aborts the wait.
func (m *Manager) AwaitFree(ctx context.Context, doc, section, user string) error {
	for attempt := 0; ; attempt++ {
		owner, err := m.Owner(ctx, doc, section)
		if err != nil {
			return err
		}

		if owner == "" || owner == user {
			return nil
		}

		if attempt >= m.retries {
			return scribe.WithContext(fmt.Errorf("%w: held by %s", scribe.ErrLockHeld, owner), doc, section)
		}

		m.logger.DebugContext(ctx, "waiting for lock", "doc", doc, "section", section, "holder", owner, "attempt", attempt+1)

		err = m.clock.Sleep(ctx, m.interval)
		if err != nil {
			return scribe.WithContext(fmt.Errorf("waiting for lock: %w", err), doc, section)
		}
	}
}

// DeleteDocument removes every lock of doc.
func (m *Manager) DeleteDocument(ctx context.Context, doc string) error {
	err := m.store.DeleteDocument(ctx, doc)
	if err != nil {
		return scribe.WithContext(fmt.Errorf("delete locks: %w", err), doc, "")
	}

	return nil
}

func validate(section, user string) error {
	err := scribe.ValidateSectionID(section)
	if err != nil {
		return err
	}

	return scribe.ValidateUser(user)
}
