package marker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRepairFailed is returned by [Repair] when the repaired document is still
// not well-formed. The residual *SyntaxError is wrapped as well.
var ErrRepairFailed = errors.New("repair failed")

// AddSectionMarkers wraps every heading that is not already inside a marked
// region in a fresh section. A synthetic section runs until the next heading,
// the next pre-existing start marker, or the end of the document.
//
// Existing marker lines pass through untouched and are not validated.
func AddSectionMarkers(content string, opts ...Option) string {
	lines := Scan(content)

	return strings.Join(addSectionMarkers(lines, newIDGenerator(lines, opts)), "\n")
}

func addSectionMarkers(lines []Line, gen *idGenerator) []string {
	out := make([]string, 0, len(lines)+4)
	inExisting := false
	synthetic := ""

	for _, ln := range lines {
		switch ln.Kind {
		case KindStart:
			if synthetic != "" {
				out = append(out, EndLine(synthetic))
				synthetic = ""
			}

			inExisting = true

		case KindEnd:
			inExisting = false

		case KindHeading:
			if !inExisting {
				if synthetic != "" {
					out = append(out, EndLine(synthetic))
				}

				synthetic = gen.next()
				out = append(out, StartLine(synthetic))
			}

		case KindText:
		}

		out = append(out, ln.Text)
	}

	if synthetic != "" {
		out = appendBeforeTrailingNewline(out, EndLine(synthetic))
	}

	return out
}

// Repair restores a well-formed marker structure or fails.
//
// The passes are:
//  1. [AddSectionMarkers] for unlabelled headings.
//  2. A two-state automaton (no section open, section open):
//     a start marker while a section is open closes the open section first;
//     a heading while no section is open opens a fresh section;
//     an end marker for the open section closes it;
//     any other end marker is kept as is (pairing is never guessed);
//     a section still open at end of document is closed.
//  3. [SplitSections] for sections that now hold several headings.
//  4. [Check]. A residual problem yields an error wrapping [ErrRepairFailed].
//
// Repair never drops a non-marker line. A well-formed document is returned
// unchanged.
func Repair(content string, opts ...Option) (string, error) {
	lines := Scan(content)
	gen := newIDGenerator(lines, opts)

	pass := addSectionMarkers(lines, gen)
	pass = closeAndOpen(classify(pass), gen)
	pass = splitSections(classify(pass), gen)

	repaired := strings.Join(pass, "\n")

	err := Check(repaired)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRepairFailed, err)
	}

	return repaired, nil
}

// closeAndOpen is the repair automaton.
func closeAndOpen(lines []Line, gen *idGenerator) []string {
	out := make([]string, 0, len(lines)+4)
	open := ""

	for _, ln := range lines {
		switch ln.Kind {
		case KindStart:
			if open != "" {
				out = append(out, EndLine(open))
			}

			open = ln.ID

		case KindEnd:
			if ln.ID == open {
				open = ""
			}

		case KindHeading:
			if open == "" {
				open = gen.next()
				out = append(out, StartLine(open))
			}

		case KindText:
		}

		out = append(out, ln.Text)
	}

	if open != "" {
		out = appendBeforeTrailingNewline(out, EndLine(open))
	}

	return out
}

// SplitSections splits every closed section holding more than one heading
// into one section per heading. The first part keeps the original id, later
// parts get fresh ids, and the last part ends at the original end marker.
// Text before the first heading stays in the first part.
func SplitSections(content string, opts ...Option) string {
	lines := Scan(content)

	return strings.Join(splitSections(lines, newIDGenerator(lines, opts)), "\n")
}

func splitSections(lines []Line, gen *idGenerator) []string {
	out := make([]string, 0, len(lines)+4)

	for i := 0; i < len(lines); i++ {
		ln := lines[i]
		if ln.Kind != KindStart {
			out = append(out, ln.Text)

			continue
		}

		end := closingIndex(lines, i)
		if end < 0 || countHeadings(lines[i+1:end]) < 2 {
			out = append(out, ln.Text)

			continue
		}

		out = append(out, ln.Text)
		current := ln.ID
		seenHeading := false

		for _, body := range lines[i+1 : end] {
			if body.Kind == KindHeading {
				if seenHeading {
					out = append(out, EndLine(current))
					current = gen.next()
					out = append(out, StartLine(current))
				}

				seenHeading = true
			}

			out = append(out, body.Text)
		}

		out = append(out, EndLine(current))
		i = end
	}

	return out
}

// closingIndex returns the index of the end marker matching the start marker
// at i, or -1 when another marker intervenes first.
func closingIndex(lines []Line, i int) int {
	id := lines[i].ID

	for j := i + 1; j < len(lines); j++ {
		switch lines[j].Kind {
		case KindEnd:
			if lines[j].ID == id {
				return j
			}

			return -1
		case KindStart:
			return -1
		case KindText, KindHeading:
		}
	}

	return -1
}

func countHeadings(lines []Line) int {
	n := 0

	for _, ln := range lines {
		if ln.Kind == KindHeading {
			n++
		}
	}

	return n
}
