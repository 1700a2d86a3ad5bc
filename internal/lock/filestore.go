package lock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/calvinalkan/scribe/internal/scribe"
	"github.com/calvinalkan/scribe/pkg/fs"
)

// FileTimeLayout is the locked_at format of lock files.
const FileTimeLayout = "2006-01-02 15:04:05"

const (
	lockExt         = ".lock"
	lockFilePerm    = 0o644
	lockDirPerm     = 0o755
	mutexDir        = ".mutex"
	mutexTimeout    = 5 * time.Second
	createAttempts  = 5
	tempFilePattern = ".tmp-"
)

// fileRecord is the on-disk YAML shape of a lock file.
type fileRecord struct {
	Section  string `yaml:"section"`
	User     string `yaml:"user"`
	LockedAt string `yaml:"locked_at"`
}

// FileStore keeps one YAML file per held lock:
//
//	<root>/<document>/<section>.lock
//
// Create writes the record to a temporary file and hard-links it into place,
// so a lock file is never observed half written and two creators can never
// both succeed. Release and Break are serialized per document with an flock
// on <root>/.mutex/<document>.lock.
type FileStore struct {
	root   string
	fs     fs.FS
	locker *fs.Locker
}

// NewFileStore returns a FileStore rooted at root.
func NewFileStore(fsys fs.FS, root string) *FileStore {
	return &FileStore{root: root, fs: fsys, locker: fs.NewLocker(fsys)}
}

// docDir returns the lock directory of doc. doc must name a single path
// element below the root.
func (s *FileStore) docDir(doc string) (string, error) {
	err := localName("document", doc)
	if err != nil {
		return "", err
	}

	return filepath.Join(s.root, doc), nil
}

func (s *FileStore) path(doc, section string) (string, error) {
	dir, err := s.docDir(doc)
	if err != nil {
		return "", err
	}

	err = localName("section", section)
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, section+lockExt), nil
}

func localName(kind, name string) error {
	if !filepath.IsLocal(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %s %q is not a plain file name", scribe.ErrInvalidInput, kind, name)
	}

	return nil
}

// Create implements [Store].
func (s *FileStore) Create(ctx context.Context, rec Record) (string, bool, error) {
	data, err := yaml.Marshal(fileRecord{
		Section:  rec.Section,
		User:     rec.User,
		LockedAt: rec.LockedAt.UTC().Format(FileTimeLayout),
	})
	if err != nil {
		return "", false, fmt.Errorf("encode lock: %w", err)
	}

	target, err := s.path(rec.Document, rec.Section)
	if err != nil {
		return "", false, err
	}

	dir := filepath.Dir(target)

	err = s.fs.MkdirAll(dir, lockDirPerm)
	if err != nil {
		return "", false, fmt.Errorf("create lock dir: %w", err)
	}

	tmp := filepath.Join(dir, tempFilePattern+uuid.NewString())

	err = s.writeTemp(tmp, data)
	if err != nil {
		return "", false, err
	}

	defer func() { _ = s.fs.Remove(tmp) }()

	for range createAttempts {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}

		err = s.fs.Link(tmp, target)
		if err == nil {
			return rec.User, true, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return "", false, fmt.Errorf("link lock: %w", err)
		}

		holder, ok, err := s.Get(ctx, rec.Document, rec.Section)
		if err != nil {
			return "", false, err
		}

		// Released between link and read: try again.
		if ok {
			return holder.User, false, nil
		}
	}

	return "", false, fmt.Errorf("link lock: %s: lock file keeps changing", target)
}

func (s *FileStore) writeTemp(path string, data []byte) error {
	f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, lockFilePerm)
	if err != nil {
		return fmt.Errorf("create temp lock: %w", err)
	}

	_, werr := f.Write(data)
	if werr == nil {
		werr = f.Sync()
	}

	cerr := f.Close()

	if err := errors.Join(werr, cerr); err != nil {
		_ = s.fs.Remove(path)

		return fmt.Errorf("write temp lock: %w", err)
	}

	return nil
}

// Get implements [Store].
func (s *FileStore) Get(_ context.Context, doc, section string) (Record, bool, error) {
	path, err := s.path(doc, section)
	if err != nil {
		return Record{}, false, err
	}

	return s.read(doc, path)
}

func (s *FileStore) read(doc, path string) (Record, bool, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, false, nil
		}

		return Record{}, false, fmt.Errorf("open lock: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return Record{}, false, fmt.Errorf("read lock %s: %w", path, err)
	}

	var fr fileRecord

	err = yaml.Unmarshal(data, &fr)
	if err != nil {
		return Record{}, false, fmt.Errorf("decode lock %s: %w", path, err)
	}

	lockedAt, err := time.ParseInLocation(FileTimeLayout, fr.LockedAt, time.UTC)
	if err != nil {
		return Record{}, false, fmt.Errorf("decode lock %s: locked_at: %w", path, err)
	}

	section := fr.Section
	if section == "" {
		section = strings.TrimSuffix(filepath.Base(path), lockExt)
	}

	return Record{Document: doc, Section: section, User: fr.User, LockedAt: lockedAt}, true, nil
}

// Release implements [Store].
func (s *FileStore) Release(_ context.Context, doc, section, user string) (bool, error) {
	var released bool

	path, err := s.path(doc, section)
	if err != nil {
		return false, err
	}

	err = s.withMutex(doc, func() error {
		rec, ok, err := s.read(doc, path)
		if err != nil || !ok || rec.User != user {
			return err
		}

		err = s.fs.Remove(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove lock: %w", err)
		}

		released = err == nil

		return nil
	})

	return released, err
}

// Break implements [Store].
func (s *FileStore) Break(_ context.Context, doc, section string) (string, error) {
	var former string

	path, err := s.path(doc, section)
	if err != nil {
		return "", err
	}

	err = s.withMutex(doc, func() error {
		rec, ok, err := s.read(doc, path)
		if err != nil || !ok {
			return err
		}

		err = s.fs.Remove(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove lock: %w", err)
		}

		former = rec.User

		return nil
	})

	return former, err
}

// List implements [Store].
func (s *FileStore) List(_ context.Context, doc string) ([]Record, error) {
	dir, err := s.docDir(doc)
	if err != nil {
		return nil, err
	}

	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("list locks: %w", err)
	}

	var out []Record

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, lockExt) {
			continue
		}

		rec, ok, err := s.read(doc, filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		if ok {
			out = append(out, rec)
		}
	}

	return out, nil
}

// DeleteDocument implements [Store].
func (s *FileStore) DeleteDocument(_ context.Context, doc string) error {
	dir, err := s.docDir(doc)
	if err != nil {
		return err
	}

	return s.withMutex(doc, func() error {
		err := s.fs.RemoveAll(dir)
		if err != nil {
			return fmt.Errorf("remove lock dir: %w", err)
		}

		return nil
	})
}

// withMutex runs fn while holding the per-document flock. The mutex file
// lives outside the document's lock directory so DeleteDocument never
// unlinks a held lock file.
func (s *FileStore) withMutex(doc string, fn func() error) error {
	lk, err := s.locker.LockWithTimeout(filepath.Join(s.root, mutexDir, doc+lockExt), mutexTimeout)
	if err != nil {
		return fmt.Errorf("acquire lock mutex: %w", err)
	}

	fnErr := fn()
	closeErr := lk.Close()

	return errors.Join(fnErr, closeErr)
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)
