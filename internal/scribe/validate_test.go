package scribe_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/calvinalkan/scribe/internal/scribe"
)

func Test_DocumentName_Canonicalizes_When_Valid(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		in   string
		want string
	}{
		{"report", "report.md"},
		{"report.md", "report.md"},
		{" notes-2024_v1 ", "notes-2024_v1.md"},
		{"a.b.c", "a.b.c.md"},
	} {
		got, err := scribe.DocumentName(tt.in)
		if err != nil {
			t.Errorf("DocumentName(%q): %v", tt.in, err)

			continue
		}

		if got != tt.want {
			t.Errorf("DocumentName(%q)=%q, want=%q", tt.in, got, tt.want)
		}
	}
}

func Test_DocumentName_Rejects_When_Invalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"",
		".md",
		"../etc/passwd",
		"a/b",
		".hidden",
		"-flag",
		"spaces in name",
		strings.Repeat("x", scribe.MaxDocumentNameLen),
	} {
		_, err := scribe.DocumentName(in)
		if !errors.Is(err, scribe.ErrInvalidInput) {
			t.Errorf("DocumentName(%q) err=%v, want=%v", in, err, scribe.ErrInvalidInput)
		}
	}
}

func Test_ValidateSectionID_And_User(t *testing.T) {
	t.Parallel()

	if err := scribe.ValidateSectionID("20240102030405_1"); err != nil {
		t.Errorf("ValidateSectionID: %v", err)
	}

	if err := scribe.ValidateSectionID("bad id"); !errors.Is(err, scribe.ErrInvalidInput) {
		t.Errorf("ValidateSectionID(bad id) err=%v", err)
	}

	if err := scribe.ValidateUser("alice@example.com"); err != nil {
		t.Errorf("ValidateUser: %v", err)
	}

	if err := scribe.ValidateUser(""); !errors.Is(err, scribe.ErrInvalidInput) {
		t.Errorf("ValidateUser(\"\") err=%v", err)
	}
}

func Test_Error_Formats_Context_And_Unwraps(t *testing.T) {
	t.Parallel()

	err := scribe.WithContext(scribe.ErrSectionNotFound, "report.md", "s1")

	if got, want := err.Error(), "section not found (doc=report.md section=s1)"; got != want {
		t.Errorf("Error()=%q, want=%q", got, want)
	}

	if !errors.Is(err, scribe.ErrNotFound) {
		t.Errorf("errors.Is(err, ErrNotFound)=false, want true")
	}

	// Context is filled in place, never nested twice.
	wrapped := scribe.WithContext(fmt.Errorf("load: %w", err), "other.md", "s2")

	var se *scribe.Error
	if !errors.As(wrapped, &se) {
		t.Fatalf("errors.As failed for %v", wrapped)
	}

	if se.Document != "report.md" || se.Section != "s1" {
		t.Errorf("context overwritten: %+v", se)
	}

	if got, want := wrapped.Error(), "load: section not found (doc=report.md section=s1)"; got != want {
		t.Errorf("wrapped=%q, want=%q", got, want)
	}

	if scribe.WithContext(nil, "x", "y") != nil {
		t.Errorf("WithContext(nil) should be nil")
	}
}
