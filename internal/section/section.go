// Package section reads and rewrites individual sections of a document.
//
// All functions are pure text transforms over a document whose markers are
// well-formed (see package marker). Everything outside the addressed section
// is preserved byte for byte.
package section

import (
	"strings"

	"github.com/calvinalkan/scribe/internal/marker"
	"github.com/calvinalkan/scribe/internal/scribe"
)

// Section is one marked span of a document.
type Section struct {
	ID      string
	Heading string // first heading line, trimmed; empty when the section has none
	Body    string
}

// List returns the section ids of content in document order.
func List(content string) []string {
	return marker.IDs(content)
}

// All returns every section of content in document order. Sections whose end
// marker is missing are skipped.
func All(content string) []Section {
	lines := marker.Scan(content)

	var out []Section

	for i, ln := range lines {
		if ln.Kind != marker.KindStart {
			continue
		}

		end := closing(lines, i)
		if end < 0 {
			continue
		}

		out = append(out, Section{
			ID:      ln.ID,
			Heading: heading(lines[i+1 : end]),
			Body:    joinText(lines[i+1 : end]),
		})
	}

	return out
}

// Extract returns the text strictly between the markers of section id,
// marker lines excluded. An empty section yields "" and a nil error;
// [scribe.ErrSectionNotFound] is returned only when the marker pair is
// missing.
func Extract(content, id string) (string, error) {
	lines := marker.Scan(content)

	start, end, err := locate(lines, id)
	if err != nil {
		return "", err
	}

	return joinText(lines[start+1 : end]), nil
}

// Replace substitutes body for the current body of section id. An empty body
// leaves the markers adjacent. Replacing a body with itself returns content
// unchanged.
func Replace(content, id, body string) (string, error) {
	lines := marker.Scan(content)

	start, end, err := locate(lines, id)
	if err != nil {
		return "", err
	}

	if joinText(lines[start+1:end]) == body {
		return content, nil
	}

	raw := marker.Split(content)

	var bodyLines []string
	if body != "" {
		bodyLines = marker.Split(body)
	}

	out := make([]string, 0, len(raw)-(end-start-1)+len(bodyLines))
	out = append(out, raw[:start+1]...)
	out = append(out, bodyLines...)
	out = append(out, raw[end:]...)

	return strings.Join(out, "\n"), nil
}

// Delete removes section id, markers included, leaving the surrounding
// content contiguous.
func Delete(content, id string) (string, error) {
	lines := marker.Scan(content)

	start, end, err := locate(lines, id)
	if err != nil {
		return "", err
	}

	raw := marker.Split(content)

	out := make([]string, 0, len(raw)-(end-start+1))
	out = append(out, raw[:start]...)
	out = append(out, raw[end+1:]...)

	return strings.Join(out, "\n"), nil
}

// Heading returns the first heading line of section id, trimmed.
func Heading(content, id string) (string, error) {
	lines := marker.Scan(content)

	start, end, err := locate(lines, id)
	if err != nil {
		return "", err
	}

	return heading(lines[start+1 : end]), nil
}

// Containing returns the first section whose body contains excerpt.
func Containing(content, excerpt string) (string, bool) {
	excerpt = strings.TrimSpace(excerpt)
	if excerpt == "" {
		return "", false
	}

	for _, s := range All(content) {
		if strings.Contains(s.Body, excerpt) {
			return s.ID, true
		}
	}

	return "", false
}

// locate finds the start marker of id and its matching end marker.
func locate(lines []marker.Line, id string) (int, int, error) {
	for i, ln := range lines {
		if ln.Kind != marker.KindStart || ln.ID != id {
			continue
		}

		end := closing(lines, i)
		if end < 0 {
			break
		}

		return i, end, nil
	}

	return 0, 0, scribe.WithContext(scribe.ErrSectionNotFound, "", id)
}

func closing(lines []marker.Line, start int) int {
	id := lines[start].ID

	for j := start + 1; j < len(lines); j++ {
		if lines[j].Kind == marker.KindEnd && lines[j].ID == id {
			return j
		}
	}

	return -1
}

func heading(lines []marker.Line) string {
	for _, ln := range lines {
		if ln.Kind == marker.KindHeading {
			return strings.TrimSpace(ln.Text)
		}
	}

	return ""
}

func joinText(lines []marker.Line) string {
	parts := make([]string, len(lines))
	for i, ln := range lines {
		parts[i] = ln.Text
	}

	return strings.Join(parts, "\n")
}
