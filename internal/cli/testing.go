package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/scribe/internal/scribe"
)

// CLI provides a clean interface for running CLI commands in tests.
// It manages a temp directory and environment variables.
type CLI struct {
	t   *testing.T
	Dir string
	Env map[string]string
}

// NewCLI creates a new test CLI with a temp directory. Lock waits are
// disabled so contended saves fail immediately.
func NewCLI(t *testing.T) *CLI {
	t.Helper()

	c := &CLI{
		t:   t,
		Dir: t.TempDir(),
		Env: map[string]string{"HOME": t.TempDir(), "USER": "tester"},
	}

	c.WriteConfig(`{
		// tests never wait for locks
		"lock_wait_retries": 0,
	}`)

	return c
}

// Run executes the CLI with the given args and returns stdout, stderr, and exit code.
// Args should not include "scribe" or "--cwd" - those are added automatically.
func (r *CLI) Run(args ...string) (string, string, int) {
	var outBuf, errBuf bytes.Buffer

	fullArgs := append([]string{"scribe", "--cwd", r.Dir}, args...)
	code := Run(nil, &outBuf, &errBuf, fullArgs, r.Env, nil)

	return outBuf.String(), errBuf.String(), code
}

// RunWithInput executes the CLI with stdin and returns stdout, stderr, and exit code.
// stdin must be a string or io.Reader; panics otherwise.
func (r *CLI) RunWithInput(stdin any, args ...string) (string, string, int) {
	var inReader io.Reader
	switch v := stdin.(type) {
	case string:
		inReader = strings.NewReader(v)
	case io.Reader:
		inReader = v
	default:
		panic(fmt.Sprintf("stdin must be string or io.Reader, got %T", stdin))
	}

	var outBuf, errBuf bytes.Buffer

	fullArgs := append([]string{"scribe", "--cwd", r.Dir}, args...)
	code := Run(inReader, &outBuf, &errBuf, fullArgs, r.Env, nil)

	return outBuf.String(), errBuf.String(), code
}

// MustRun executes the CLI and fails the test if the command returns non-zero.
// Returns trimmed stdout on success.
func (r *CLI) MustRun(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code != 0 {
		r.t.Fatalf("command %v failed with exit code %d\nstderr: %s", args, code, stderr)
	}

	return strings.TrimSpace(stdout)
}

// MustFail executes the CLI and fails the test if the command succeeds.
// Also fails if stdout is not empty. Returns trimmed stderr.
func (r *CLI) MustFail(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code == 0 {
		r.t.Fatalf("command %v should have failed but succeeded\nstdout: %s", args, stdout)
	}

	if stdout != "" {
		r.t.Fatalf("command %v failed but stdout should be empty\nstdout: %s", args, stdout)
	}

	return strings.TrimSpace(stderr)
}

// WriteConfig writes the project config file.
func (r *CLI) WriteConfig(content string) {
	r.t.Helper()

	err := os.WriteFile(filepath.Join(r.Dir, scribe.ConfigFileName), []byte(content), 0o600)
	if err != nil {
		r.t.Fatalf("failed to write config: %v", err)
	}
}

// DocumentsDir returns the path to the documents directory.
func (r *CLI) DocumentsDir() string {
	return filepath.Join(r.Dir, scribe.DefaultConfig().DataDir, documentsDir)
}

// ReadDocument reads and returns the content of a document file.
func (r *CLI) ReadDocument(name string) string {
	r.t.Helper()

	content, err := os.ReadFile(filepath.Join(r.DocumentsDir(), name))
	if err != nil {
		r.t.Fatalf("failed to read document %s: %v", name, err)
	}

	return string(content)
}

// WriteDocument writes content to a document file, bypassing validation.
func (r *CLI) WriteDocument(name, content string) {
	r.t.Helper()

	err := os.MkdirAll(r.DocumentsDir(), 0o750)
	if err != nil {
		r.t.Fatalf("failed to create documents dir: %v", err)
	}

	err = os.WriteFile(filepath.Join(r.DocumentsDir(), name), []byte(content), 0o600)
	if err != nil {
		r.t.Fatalf("failed to write document %s: %v", name, err)
	}
}

// SectionIDs returns the section ids of a document in order, as listed by
// the sections command.
func (r *CLI) SectionIDs(doc string) []string {
	r.t.Helper()

	var ids []string

	for _, line := range strings.Split(r.MustRun("sections", doc), "\n") {
		id, _, _ := strings.Cut(line, "\t")
		if id != "" {
			ids = append(ids, id)
		}
	}

	return ids
}

// AssertContains fails the test if content doesn't contain substr.
func AssertContains(t *testing.T, content, substr string) {
	t.Helper()

	if !strings.Contains(content, substr) {
		t.Errorf("content should contain %q\ncontent:\n%s", substr, content)
	}
}

// AssertNotContains fails the test if content contains substr.
func AssertNotContains(t *testing.T, content, substr string) {
	t.Helper()

	if strings.Contains(content, substr) {
		t.Errorf("content should NOT contain %q\ncontent:\n%s", substr, content)
	}
}
