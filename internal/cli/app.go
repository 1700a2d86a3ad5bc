package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/calvinalkan/scribe/internal/assist"
	"github.com/calvinalkan/scribe/internal/document"
	"github.com/calvinalkan/scribe/internal/lock"
	"github.com/calvinalkan/scribe/internal/marker"
	"github.com/calvinalkan/scribe/internal/scribe"
	"github.com/calvinalkan/scribe/internal/store"
	"github.com/calvinalkan/scribe/internal/version"
	"github.com/calvinalkan/scribe/pkg/fs"
)

// Directories below the data dir.
const (
	documentsDir = "documents"
	fileLocksDir = "locks"
)

// app wires the components for one CLI invocation. The database is opened on
// first use so commands like print-config never touch the data dir.
type app struct {
	cfg    *scribe.Config
	logger *slog.Logger
	stdin  io.Reader
	prompt prompter

	db       *store.Store
	docs     *document.Store
	locks    *lock.Manager
	versions *version.Manager
	activity *store.Activity
}

func newApp(cfg *scribe.Config, logger *slog.Logger, stdin io.Reader) *app {
	return &app{cfg: cfg, logger: logger, stdin: stdin}
}

func (a *app) open(ctx context.Context) error {
	if a.db != nil {
		return nil
	}

	db, err := store.Open(ctx, a.cfg.DataDirAbs)
	if err != nil {
		return err
	}

	activity := db.Activity()

	var records lock.Store = db.Locks()
	if a.cfg.LockBackend == scribe.LockBackendFiles {
		records = lock.NewFileStore(fs.NewReal(), filepath.Join(a.cfg.DataDirAbs, fileLocksDir))
	}

	locks := lock.NewManager(records,
		lock.WithLogger(a.logger),
		lock.WithRecorder(activity),
		lock.WithWait(a.cfg.LockWaitRetries, a.cfg.LockWaitInterval()),
	)

	docs := document.New(fs.NewReal(), filepath.Join(a.cfg.DataDirAbs, documentsDir),
		document.WithLogger(a.logger),
		document.WithRecorder(activity),
		document.WithMeta(db.Meta()),
		document.WithSectionLocks(locks),
		document.WithPurgers(locks, db.Versions(), activity),
	)

	a.db = db
	a.activity = activity
	a.locks = locks
	a.docs = docs
	a.versions = version.NewManager(db.Versions(), docs, locks,
		version.WithLogger(a.logger),
		version.WithRecorder(activity),
	)

	a.logger.Debug("store opened", "path", db.Path(), "lock_backend", a.cfg.LockBackend)

	return nil
}

func (a *app) close() error {
	var errs []error

	if a.prompt != nil {
		errs = append(errs, a.prompt.Close())
		a.prompt = nil
	}

	if a.db != nil {
		errs = append(errs, a.db.Close())
		a.db = nil
	}

	return errors.Join(errs...)
}

// assistant builds the configured assistant. Provider errors surface only
// for ai commands.
func (a *app) assistant() (*assist.Assistant, error) {
	p, err := assist.NewProvider(a.cfg.AI, a.cfg.Env)
	if err != nil {
		return nil, err
	}

	return assist.New(p, assist.WithMaxTokens(a.cfg.AI.MaxTokens), assist.WithLogger(a.logger)), nil
}

// prompter returns the line reader used for confirmations, creating it on
// first use.
func (a *app) prompter() prompter {
	if a.prompt == nil {
		a.prompt = newPrompter(a.stdin)
	}

	return a.prompt
}

// load opens the store and returns the canonical name and content of doc.
// Documents are repaired on load when needed; a document that cannot be
// repaired is still returned, with a warning.
func (a *app) load(ctx context.Context, o *IO, doc string) (string, string, error) {
	name, err := scribe.DocumentName(doc)
	if err != nil {
		return "", "", err
	}

	err = a.open(ctx)
	if err != nil {
		return "", "", err
	}

	changed, err := a.docs.Sanitize(ctx, name, a.cfg.Env["USER"])

	switch {
	case errors.Is(err, marker.ErrRepairFailed):
		o.Warn(fmt.Sprintf("document %s has an invalid structure", name), "fix the markers by hand, see `scribe check "+name+"`")
	case err != nil:
		return "", "", err
	case changed:
		a.logger.Info("document repaired on load", "doc", name)
	}

	content, err := a.docs.Load(ctx, name)
	if err != nil {
		return "", "", err
	}

	return name, content, nil
}

// section opens the store and checks that section exists in doc. It
// returns the canonical document name.
func (a *app) section(ctx context.Context, o *IO, doc, sectionID string) (string, error) {
	name, content, err := a.load(ctx, o, doc)
	if err != nil {
		return "", err
	}

	_, err = sectionBody(content, name, sectionID)
	if err != nil {
		return "", err
	}

	return name, nil
}
