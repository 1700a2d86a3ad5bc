package marker

import (
	"fmt"
	"strings"

	"github.com/calvinalkan/scribe/internal/scribe"
)

// ValidMessage is the message [Validate] returns for a well-formed document.
const ValidMessage = "Markdown syntax is valid."

// Problem identifies the first structural defect found by [Check].
type Problem uint8

// Structural problems.
const (
	ProblemNested Problem = iota + 1
	ProblemUnknownClose
	ProblemHeadingOutside
	ProblemUnclosed
	ProblemDuplicateID
	ProblemMultipleHeadings
)

// SyntaxError describes why a document is not well-formed.
// It matches [scribe.ErrStructure] with errors.Is.
type SyntaxError struct {
	Problem Problem
	Line    int    // 1-based line of the offending marker or heading; 0 for end of document
	ID      string // offending id (new id for nested, closing id for unknown close)
	OpenID  string // section open at the time (nested, multiple headings)
	Text    string // offending heading line
	Open    []string
}

func (e *SyntaxError) Error() string {
	var msg string

	switch e.Problem {
	case ProblemNested:
		msg = fmt.Sprintf("nested section detected (ID %s inside %s)", e.ID, e.OpenID)
	case ProblemUnknownClose:
		msg = fmt.Sprintf("closing tag found for unknown section (ID %s)", e.ID)
	case ProblemHeadingOutside:
		msg = fmt.Sprintf("heading found outside of a section (%s)", e.Text)
	case ProblemUnclosed:
		return "unclosed section(s) found: " + strings.Join(e.Open, ", ")
	case ProblemDuplicateID:
		msg = "duplicate section ID " + e.ID
	case ProblemMultipleHeadings:
		msg = fmt.Sprintf("multiple headings in section (ID %s)", e.OpenID)
	default:
		msg = "invalid section structure"
	}

	return fmt.Sprintf("%s at line %d", msg, e.Line)
}

// Unwrap lets errors.Is match [scribe.ErrStructure].
func (e *SyntaxError) Unwrap() error { return scribe.ErrStructure }

// Message renders the user facing validation message, e.g.
// "Error: Nested section detected (ID 2 inside 1).".
func (e *SyntaxError) Message() string {
	switch e.Problem {
	case ProblemNested:
		return fmt.Sprintf("Error: Nested section detected (ID %s inside %s).", e.ID, e.OpenID)
	case ProblemUnknownClose:
		return fmt.Sprintf("Error: Closing tag found for unknown section (ID %s).", e.ID)
	case ProblemHeadingOutside:
		return fmt.Sprintf("Error: Heading found outside of a section (%s).", e.Text)
	case ProblemUnclosed:
		return "Error: Unclosed section(s) found: " + strings.Join(e.Open, ", ") + "."
	case ProblemDuplicateID:
		return fmt.Sprintf("Error: Duplicate section ID %s.", e.ID)
	case ProblemMultipleHeadings:
		return fmt.Sprintf("Error: Multiple headings in section (ID %s).", e.OpenID)
	default:
		return "Error: Invalid section structure."
	}
}

// Check scans content and returns the first structural problem as a
// *SyntaxError, or nil when the document is well-formed. An empty document
// is well-formed.
func Check(content string) error {
	return check(Scan(content))
}

func check(lines []Line) error {
	var (
		open     string
		headings int
		seen     = make(map[string]bool)
	)

	for i, ln := range lines {
		lineNo := i + 1

		switch ln.Kind {
		case KindStart:
			if open != "" {
				return &SyntaxError{Problem: ProblemNested, Line: lineNo, ID: ln.ID, OpenID: open}
			}

			if seen[ln.ID] {
				return &SyntaxError{Problem: ProblemDuplicateID, Line: lineNo, ID: ln.ID}
			}

			seen[ln.ID] = true
			open, headings = ln.ID, 0

		case KindEnd:
			if open != ln.ID {
				return &SyntaxError{Problem: ProblemUnknownClose, Line: lineNo, ID: ln.ID, OpenID: open}
			}

			open = ""

		case KindHeading:
			if open == "" {
				return &SyntaxError{Problem: ProblemHeadingOutside, Line: lineNo, Text: strings.TrimSpace(ln.Text)}
			}

			headings++
			if headings > 1 {
				return &SyntaxError{Problem: ProblemMultipleHeadings, Line: lineNo, OpenID: open, Text: strings.TrimSpace(ln.Text)}
			}

		case KindText:
		}
	}

	if open != "" {
		return &SyntaxError{Problem: ProblemUnclosed, Open: []string{open}}
	}

	return nil
}

// Validate reports whether content is well-formed together with a human
// readable message. It never fails.
func Validate(content string) (bool, string) {
	err := Check(content)
	if err == nil {
		return true, ValidMessage
	}

	se, ok := err.(*SyntaxError)
	if !ok {
		return false, "Error: " + err.Error()
	}

	return false, se.Message()
}
