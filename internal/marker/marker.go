// Package marker defines the section delimiter grammar of scribe documents
// and validates and repairs it.
//
// A section is the span between a start marker line
//
//	>>>>>ID#20240102030405_1
//
// and the end marker line carrying the same id
//
//	<<<<<ID#20240102030405_1
//
// Marker lines stand on their own; surrounding whitespace is tolerated when
// matching. A heading line (one or more '#' followed by whitespace) may only
// appear inside an open section, and a section holds at most one heading.
// Lines inside fenced code blocks are never headings.
//
// Every function in this package is pure.
package marker

import (
	"regexp"
	"strings"
)

// Marker prefixes.
const (
	StartPrefix = ">>>>>ID#"
	EndPrefix   = "<<<<<ID#"
)

var (
	startRe   = regexp.MustCompile(`^>>>>>ID#([A-Za-z0-9_-]+)$`)
	endRe     = regexp.MustCompile(`^<<<<<ID#([A-Za-z0-9_-]+)$`)
	headingRe = regexp.MustCompile(`^#+\s`)
)

// Kind classifies a document line.
type Kind uint8

// Line kinds.
const (
	KindText Kind = iota
	KindStart
	KindEnd
	KindHeading
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindEnd:
		return "end"
	case KindHeading:
		return "heading"
	default:
		return "text"
	}
}

// Line is one classified document line.
type Line struct {
	Kind Kind
	ID   string // set for KindStart and KindEnd
	Text string // raw line, without the newline
}

// StartLine returns the start marker for id.
func StartLine(id string) string { return StartPrefix + id }

// EndLine returns the end marker for id.
func EndLine(id string) string { return EndPrefix + id }

// ParseStart reports whether line is a start marker and returns its id.
func ParseStart(line string) (string, bool) {
	m := startRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}

	return m[1], true
}

// ParseEnd reports whether line is an end marker and returns its id.
func ParseEnd(line string) (string, bool) {
	m := endRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}

	return m[1], true
}

// IsHeading reports whether line is a markdown ATX heading. It does not know
// about code fences; use [Scan] for document-level classification.
func IsHeading(line string) bool {
	return headingRe.MatchString(line)
}

// Split breaks content into lines on "\n". A trailing newline yields a final
// empty element, so strings.Join(Split(c), "\n") == c for every c.
func Split(content string) []string {
	return strings.Split(content, "\n")
}

// Scan classifies every line of content.
func Scan(content string) []Line {
	return classify(Split(content))
}

// classify tracks fenced code blocks so that "# comment" lines inside
// ``` or ~~~ fences stay text. Marker lines always win and reset fence state,
// so an unterminated fence cannot swallow a section boundary.
func classify(lines []string) []Line {
	out := make([]Line, len(lines))
	fence := ""

	for i, raw := range lines {
		out[i] = Line{Kind: KindText, Text: raw}

		if id, ok := ParseStart(raw); ok {
			out[i].Kind, out[i].ID = KindStart, id
			fence = ""

			continue
		}

		if id, ok := ParseEnd(raw); ok {
			out[i].Kind, out[i].ID = KindEnd, id
			fence = ""

			continue
		}

		trimmed := strings.TrimSpace(raw)

		if fence != "" {
			if strings.HasPrefix(trimmed, fence) {
				fence = ""
			}

			continue
		}

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fence = trimmed[:3]

			continue
		}

		if IsHeading(raw) {
			out[i].Kind = KindHeading
		}
	}

	return out
}

// IDs returns the id of every start marker in document order.
func IDs(content string) []string {
	var ids []string

	for _, ln := range Scan(content) {
		if ln.Kind == KindStart {
			ids = append(ids, ln.ID)
		}
	}

	return ids
}

// appendBeforeTrailingNewline appends extra to out, keeping a final empty
// element (the document's trailing newline) last.
func appendBeforeTrailingNewline(out []string, extra ...string) []string {
	if len(out) > 0 && out[len(out)-1] == "" {
		n := len(out) - 1
		out = append(out[:n], append(extra, "")...)

		return out
	}

	return append(out, extra...)
}
