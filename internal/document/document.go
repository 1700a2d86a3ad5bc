// Package document is the composition root for whole-document operations:
// load, save, create, delete, and the read-modify-write primitive that every
// section mutation goes through.
//
// Documents live at <dir>/<name>.md. Writes are serialized per document with
// an flock on <dir>/.locks/<name>.lock and land via temp file + rename, so
// concurrent writers to different sections of one document never lose each
// other's updates and readers never see a torn file.
package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/scribe/internal/marker"
	"github.com/calvinalkan/scribe/internal/scribe"
	"github.com/calvinalkan/scribe/internal/section"
	"github.com/calvinalkan/scribe/pkg/fs"
)

const (
	locksDir         = ".locks"
	dirPerm          = 0o755
	defaultWriteWait = 10 * time.Second
)

// Meta is the registry entry of a document.
type Meta struct {
	Name      string
	Creator   string
	CreatedAt time.Time
	Profile   scribe.Profile
}

// MetaStore persists document metadata.
type MetaStore interface {
	// CreateMeta inserts m; it fails with [scribe.ErrDocumentExists] when an
	// entry for m.Name exists.
	CreateMeta(ctx context.Context, m Meta) error
	GetMeta(ctx context.Context, name string) (Meta, bool, error)
	SetProfile(ctx context.Context, name string, p scribe.Profile) error
	ListMeta(ctx context.Context) ([]Meta, error)
	DeleteMeta(ctx context.Context, name string) error
}

// Purger removes per-document records kept elsewhere (versions, locks).
type Purger interface {
	DeleteDocument(ctx context.Context, doc string) error
}

// SectionLocks is the lock access needed for section deletion.
type SectionLocks interface {
	Owner(ctx context.Context, doc, section string) (string, error)
	Break(ctx context.Context, doc, section, by string) (string, error)
}

// Store manages document files.
type Store struct {
	dir       string
	fs        fs.FS
	locker    *fs.Locker
	clock     scribe.Clock
	logger    *slog.Logger
	events    scribe.Recorder
	meta      MetaStore
	locks     SectionLocks
	purgers   []Purger
	writeWait time.Duration
}

// Option configures a [Store].
type Option func(*Store)

// WithClock sets the clock used for metadata and generated section ids.
func WithClock(c scribe.Clock) Option { return func(s *Store) { s.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// WithRecorder sets the activity recorder.
func WithRecorder(r scribe.Recorder) Option { return func(s *Store) { s.events = r } }

// WithMeta sets the metadata registry. Without one, metadata is derived from
// the file alone.
func WithMeta(m MetaStore) Option { return func(s *Store) { s.meta = m } }

// WithSectionLocks enables lock checks for section deletion.
func WithSectionLocks(l SectionLocks) Option { return func(s *Store) { s.locks = l } }

// WithPurgers registers stores cleaned up by [Store.Delete].
func WithPurgers(p ...Purger) Option {
	return func(s *Store) { s.purgers = append(s.purgers, p...) }
}

// WithWriteWait bounds how long a writer waits for the document write lock.
func WithWriteWait(d time.Duration) Option { return func(s *Store) { s.writeWait = d } }

// New returns a Store for documents under dir.
func New(fsys fs.FS, dir string, opts ...Option) *Store {
	s := &Store{
		dir:       dir,
		fs:        fsys,
		locker:    fs.NewLocker(fsys),
		clock:     scribe.SystemClock{},
		logger:    scribe.DiscardLogger(),
		events:    scribe.NopRecorder{},
		writeWait: defaultWriteWait,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Dir returns the documents directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file path of a canonical document name.
func (s *Store) Path(name string) string { return filepath.Join(s.dir, name) }

func (s *Store) lockPath(name string) string {
	return filepath.Join(s.dir, locksDir, strings.TrimSuffix(name, scribe.DocumentExt)+".lock")
}

// Exists reports whether the document file exists.
func (s *Store) Exists(name string) (bool, error) {
	name, err := scribe.DocumentName(name)
	if err != nil {
		return false, err
	}

	return s.fs.Exists(s.Path(name))
}

// Load returns the content of a document or an error wrapping
// [scribe.ErrDocumentNotFound].
func (s *Store) Load(_ context.Context, name string) (string, error) {
	name, err := scribe.DocumentName(name)
	if err != nil {
		return "", err
	}

	data, err := s.fs.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", scribe.WithContext(scribe.ErrDocumentNotFound, name, "")
		}

		return "", scribe.WithContext(fmt.Errorf("read document: %w", err), name, "")
	}

	return string(data), nil
}

// Normalize labels unmarked headings and repairs the marker structure. It
// fails when the result cannot be proven well-formed.
func (s *Store) Normalize(content string) (string, error) {
	opts := []marker.Option{marker.WithClock(s.clock.Now)}

	labelled := marker.AddSectionMarkers(content, opts...)

	repaired, err := marker.Repair(labelled, opts...)
	if err != nil {
		return "", err
	}

	err = marker.Check(repaired)
	if err != nil {
		return "", fmt.Errorf("%w: %w", marker.ErrRepairFailed, err)
	}

	return repaired, nil
}

// Save labels, repairs and validates content, then replaces the whole
// document. Nothing is written when the content cannot be made well-formed.
func (s *Store) Save(ctx context.Context, name, content string) error {
	name, err := scribe.DocumentName(name)
	if err != nil {
		return err
	}

	normalized, err := s.Normalize(content)
	if err != nil {
		return scribe.WithContext(err, name, "")
	}

	return s.withWriteLock(name, func() error {
		return s.write(name, normalized)
	})
}

// Update runs fn on the current content while holding the document write
// lock and persists its result. The result must be well-formed; fn errors
// and structure errors leave the file untouched.
func (s *Store) Update(ctx context.Context, name string, fn func(content string) (string, error)) error {
	name, err := scribe.DocumentName(name)
	if err != nil {
		return err
	}

	return s.withWriteLock(name, func() error {
		current, err := s.Load(ctx, name)
		if err != nil {
			return err
		}

		updated, err := fn(current)
		if err != nil {
			return scribe.WithContext(err, name, "")
		}

		if updated == current {
			return nil
		}

		err = marker.Check(updated)
		if err != nil {
			return scribe.WithContext(fmt.Errorf("refusing to write: %w", err), name, "")
		}

		return s.write(name, updated)
	})
}

// Sanitize repairs a stored document and writes it back only when repair
// changed something. It reports whether the file changed.
func (s *Store) Sanitize(ctx context.Context, name, user string) (bool, error) {
	changed := false

	err := s.Update(ctx, name, func(content string) (string, error) {
		repaired, err := s.Normalize(content)
		if err != nil {
			return "", err
		}

		changed = repaired != content

		return repaired, nil
	})
	if err != nil {
		return false, err
	}

	if changed {
		canonical, _ := scribe.DocumentName(name)
		s.logger.InfoContext(ctx, "document repaired", "doc", canonical)
		scribe.Emit(ctx, s.events, s.logger, scribe.NewEvent(s.clock.Now(), canonical, "", user, scribe.ActionRepair, ""))
	}

	return changed, nil
}

// CreateRequest describes a new document.
type CreateRequest struct {
	Name    string
	User    string
	Title   string // placeholder heading when Content is empty; defaults to the name
	Content string
	Profile scribe.Profile
}

// Create writes a new document and registers its metadata. Content is
// labelled and repaired like [Store.Save]; empty content becomes a single
// "# {title}" section.
func (s *Store) Create(ctx context.Context, req CreateRequest) (Meta, error) {
	name, err := scribe.DocumentName(req.Name)
	if err != nil {
		return Meta{}, err
	}

	err = scribe.ValidateUser(req.User)
	if err != nil {
		return Meta{}, err
	}

	err = req.Profile.Validate()
	if err != nil {
		return Meta{}, err
	}

	content := req.Content
	if strings.TrimSpace(content) == "" {
		title := strings.TrimSpace(req.Title)
		if title == "" {
			title = strings.TrimSuffix(name, scribe.DocumentExt)
		}

		content = "# " + title + "\n"
	}

	normalized, err := s.Normalize(content)
	if err != nil {
		return Meta{}, scribe.WithContext(err, name, "")
	}

	meta := Meta{
		Name:      name,
		Creator:   req.User,
		CreatedAt: s.clock.Now().UTC().Truncate(time.Second),
		Profile:   scribe.DefaultProfile().Merge(req.Profile),
	}

	err = s.withWriteLock(name, func() error {
		exists, err := s.fs.Exists(s.Path(name))
		if err != nil {
			return scribe.WithContext(err, name, "")
		}

		if exists {
			return scribe.WithContext(scribe.ErrDocumentExists, name, "")
		}

		if s.meta != nil {
			err = s.meta.CreateMeta(ctx, meta)
			if err != nil {
				return scribe.WithContext(err, name, "")
			}
		}

		err = s.write(name, normalized)
		if err != nil && s.meta != nil {
			return errors.Join(err, s.meta.DeleteMeta(ctx, name))
		}

		return err
	})
	if err != nil {
		return Meta{}, err
	}

	s.logger.InfoContext(ctx, "document created", "doc", name, "user", req.User)
	scribe.Emit(ctx, s.events, s.logger, scribe.NewEvent(s.clock.Now(), name, "", req.User, scribe.ActionCreate, ""))

	return meta, nil
}

// List returns every document sorted by name, with registry metadata when
// available.
func (s *Store) List(ctx context.Context) ([]Meta, error) {
	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("list documents: %w", err)
	}

	known := map[string]Meta{}

	if s.meta != nil {
		metas, err := s.meta.ListMeta(ctx)
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}

		for _, m := range metas {
			known[m.Name] = m
		}
	}

	var out []Meta

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, scribe.DocumentExt) {
			continue
		}

		m, ok := known[name]
		if !ok {
			m = Meta{Name: name, Profile: scribe.DefaultProfile()}
		}

		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

// Meta returns the registry entry of a document. Documents without one get
// a default profile.
func (s *Store) Meta(ctx context.Context, name string) (Meta, error) {
	name, err := scribe.DocumentName(name)
	if err != nil {
		return Meta{}, err
	}

	exists, err := s.fs.Exists(s.Path(name))
	if err != nil {
		return Meta{}, scribe.WithContext(err, name, "")
	}

	if !exists {
		return Meta{}, scribe.WithContext(scribe.ErrDocumentNotFound, name, "")
	}

	if s.meta == nil {
		return Meta{Name: name, Profile: scribe.DefaultProfile()}, nil
	}

	m, ok, err := s.meta.GetMeta(ctx, name)
	if err != nil {
		return Meta{}, scribe.WithContext(err, name, "")
	}

	if !ok {
		return Meta{Name: name, Profile: scribe.DefaultProfile()}, nil
	}

	return m, nil
}

// SetProfile merges p into the document's assistant profile.
func (s *Store) SetProfile(ctx context.Context, name, user string, p scribe.Profile) (scribe.Profile, error) {
	if s.meta == nil {
		return scribe.Profile{}, errors.New("set profile: no metadata registry configured")
	}

	err := p.Validate()
	if err != nil {
		return scribe.Profile{}, err
	}

	m, err := s.Meta(ctx, name)
	if err != nil {
		return scribe.Profile{}, err
	}

	merged := m.Profile.Merge(p)

	if m.Creator == "" {
		// Adopt documents that predate the registry.
		m.Creator = user
		m.CreatedAt = s.clock.Now().UTC().Truncate(time.Second)
		m.Profile = merged

		err = s.meta.CreateMeta(ctx, m)
		if err != nil && !errors.Is(err, scribe.ErrDocumentExists) {
			return scribe.Profile{}, scribe.WithContext(err, m.Name, "")
		}
	}

	err = s.meta.SetProfile(ctx, m.Name, merged)
	if err != nil {
		return scribe.Profile{}, scribe.WithContext(err, m.Name, "")
	}

	scribe.Emit(ctx, s.events, s.logger, scribe.NewEvent(s.clock.Now(), m.Name, "", user, scribe.ActionProfile, ""))

	return merged, nil
}

// DeleteSection removes a section, markers and body. The section must be
// unlocked or locked by user, and the first section of a document cannot be
// deleted. The lock is checked under the document write lock. A lock user
// held on the section is released.
func (s *Store) DeleteSection(ctx context.Context, name, sectionID, user string) error {
	name, err := scribe.DocumentName(name)
	if err != nil {
		return err
	}

	err = scribe.ValidateUser(user)
	if err != nil {
		return err
	}

	err = s.Update(ctx, name, func(content string) (string, error) {
		if s.locks != nil {
			owner, err := s.locks.Owner(ctx, name, sectionID)
			if err != nil {
				return "", err
			}

			if owner != "" && owner != user {
				return "", scribe.WithContext(fmt.Errorf("%w: held by %s", scribe.ErrLockHeld, owner), name, sectionID)
			}
		}

		ids := section.List(content)
		if len(ids) > 0 && ids[0] == sectionID {
			return "", scribe.WithContext(scribe.ErrFirstSection, name, sectionID)
		}

		return section.Delete(content, sectionID)
	})
	if err != nil {
		return err
	}

	if s.locks != nil {
		_, err = s.locks.Break(ctx, name, sectionID, user)
		if err != nil {
			s.logger.WarnContext(ctx, "release lock of deleted section", "doc", name, "section", sectionID, "error", err)
		}
	}

	scribe.Emit(ctx, s.events, s.logger, scribe.NewEvent(s.clock.Now(), name, sectionID, user, scribe.ActionDeleteSection, ""))

	return nil
}

// Delete removes the document file, its metadata and every record held by
// the registered purgers. Every step runs even when an earlier one fails;
// the failures are joined. A missing file is reported as
// [scribe.ErrDocumentNotFound] after the remaining cleanup ran.
func (s *Store) Delete(ctx context.Context, name, user string) error {
	name, err := scribe.DocumentName(name)
	if err != nil {
		return err
	}

	var errs []error

	err = s.withWriteLock(name, func() error {
		err := s.fs.Remove(s.Path(name))
		if errors.Is(err, os.ErrNotExist) {
			return scribe.ErrDocumentNotFound
		}

		return err
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("remove file: %w", err))
	}

	for _, p := range s.purgers {
		err := p.DeleteDocument(ctx, name)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if s.meta != nil {
		err := s.meta.DeleteMeta(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete metadata: %w", err))
		}
	}

	if len(errs) > 0 {
		return scribe.WithContext(errors.Join(errs...), name, "")
	}

	s.logger.InfoContext(ctx, "document deleted", "doc", name, "user", user)
	scribe.Emit(ctx, s.events, s.logger, scribe.NewEvent(s.clock.Now(), name, "", user, scribe.ActionDelete, ""))

	return nil
}

// withWriteLock holds the per-document flock while fn runs.
func (s *Store) withWriteLock(name string, fn func() error) error {
	lk, err := s.locker.LockWithTimeout(s.lockPath(name), s.writeWait)
	if err != nil {
		return scribe.WithContext(fmt.Errorf("acquire write lock: %w", err), name, "")
	}

	fnErr := fn()
	closeErr := lk.Close()

	return errors.Join(fnErr, closeErr)
}

func (s *Store) write(name, content string) error {
	err := s.fs.MkdirAll(s.dir, dirPerm)
	if err != nil {
		return scribe.WithContext(fmt.Errorf("create documents dir: %w", err), name, "")
	}

	err = atomic.WriteFile(s.Path(name), strings.NewReader(content))
	if err != nil {
		return scribe.WithContext(fmt.Errorf("write document: %w", err), name, "")
	}

	return nil
}
