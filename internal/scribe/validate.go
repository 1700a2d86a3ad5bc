package scribe

import (
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxDocumentNameLen bounds document names, extension included.
const MaxDocumentNameLen = 200

// DocumentExt is appended to document names that lack it.
const DocumentExt = ".md"

var (
	documentNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	sectionIDRe    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	userRe         = regexp.MustCompile(`^[A-Za-z0-9._@-]+$`)
)

// DocumentName validates a user supplied document name and returns its
// canonical form (with the .md extension). Names never contain path
// separators, so the result is safe to join under the documents directory.
func DocumentName(name string) (string, error) {
	base := strings.TrimSuffix(strings.TrimSpace(name), DocumentExt)

	err := validation.Validate(base,
		validation.Required,
		validation.Length(1, MaxDocumentNameLen-len(DocumentExt)),
		validation.Match(documentNameRe),
	)
	if err != nil {
		return "", fmt.Errorf("%w: document name %q: %w", ErrInvalidInput, name, err)
	}

	return base + DocumentExt, nil
}

// ValidateSectionID checks that id is usable as a marker id.
func ValidateSectionID(id string) error {
	err := validation.Validate(id, validation.Required, validation.Match(sectionIDRe))
	if err != nil {
		return fmt.Errorf("%w: section id %q: %w", ErrInvalidInput, id, err)
	}

	return nil
}

// ValidateUser checks a user identifier.
func ValidateUser(user string) error {
	err := validation.Validate(user, validation.Required, validation.Length(1, 100), validation.Match(userRe))
	if err != nil {
		return fmt.Errorf("%w: user %q: %w", ErrInvalidInput, user, err)
	}

	return nil
}
