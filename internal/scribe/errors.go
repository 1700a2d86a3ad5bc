package scribe

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is the root of every "does not exist" error. Callers that only
// care about absence can test errors.Is(err, ErrNotFound).
var ErrNotFound = errors.New("not found")

// Error variables shared by all scribe components.
var (
	ErrDocumentNotFound = fmt.Errorf("document %w", ErrNotFound)
	ErrSectionNotFound  = fmt.Errorf("section %w", ErrNotFound)
	ErrVersionNotFound  = fmt.Errorf("version %w", ErrNotFound)

	ErrDocumentExists   = errors.New("document already exists")
	ErrLockHeld         = errors.New("section is locked by another user")
	ErrStructure        = errors.New("invalid document structure")
	ErrFirstSection     = errors.New("the first section of a document cannot be deleted")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTimestampPending = errors.New("no unique version timestamp after repeated attempts")

	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrDataDirEmpty       = errors.New("data-dir cannot be empty")
	ErrFlagRequiresArg    = errors.New("flag requires an argument")
	ErrUnknownFlag        = errors.New("unknown flag")
	ErrMissingArgument    = errors.New("missing argument")
	ErrTooManyArguments   = errors.New("too many arguments")
	ErrNoEditorFound      = errors.New("no editor found (set config.editor, $EDITOR, or install vi/nano)")
	ErrEditorFailed       = errors.New("editor failed")

	ErrAssistantUnavailable = errors.New("assistant provider not configured")
	ErrAssistantReply       = errors.New("assistant reply could not be parsed")
)

// Error attaches document and section context to an underlying error.
//
// The underlying message appears first, followed by the context:
//
//	section not found (doc=report.md section=20240102030405_1)
//
// Use [errors.As] to extract the fields and [errors.Is] to test sentinels.
type Error struct {
	Document string
	Section  string
	Err      error
}

// Error formats as "<cause> (doc=X section=Y)".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}

	var parts []string

	if e.Document != "" {
		parts = append(parts, "doc="+e.Document)
	}

	if e.Section != "" {
		parts = append(parts, "section="+e.Section)
	}

	if len(parts) == 0 {
		return cause
	}

	suffix := "(" + strings.Join(parts, " ") + ")"
	if cause == "" {
		return suffix
	}

	return cause + " " + suffix
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// WithContext attaches document context at API boundaries. If err already
// carries an *Error, its missing fields are filled in place and err is
// returned as is; otherwise err is wrapped in a new *Error.
func WithContext(err error, document, section string) error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		if existing.Document == "" {
			existing.Document = document
		}

		if existing.Section == "" {
			existing.Section = section
		}

		return err
	}

	return &Error{Document: document, Section: section, Err: err}
}
