package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/calvinalkan/scribe/internal/scribe"
	"github.com/calvinalkan/scribe/internal/section"
)

// stdinArg is the content argument meaning "read from stdin".
const stdinArg = "-"

// wantArgs checks that args holds exactly the named positional arguments.
func wantArgs(args []string, names ...string) error {
	if len(args) < len(names) {
		return fmt.Errorf("%w: %s", scribe.ErrMissingArgument, strings.Join(names[len(args):], " "))
	}

	if len(args) > len(names) {
		return fmt.Errorf("%w: %s", scribe.ErrTooManyArguments, strings.Join(args[len(names):], " "))
	}

	return nil
}

// sectionBody extracts a section with document context attached.
func sectionBody(content, doc, sectionID string) (string, error) {
	body, err := section.Extract(content, sectionID)
	if err != nil {
		return "", scribe.WithContext(err, doc, sectionID)
	}

	return body, nil
}

// readContent returns arg, or all of stdin when arg is "-". A nil stdin
// (inside the shell) means content must be given inline.
func readContent(stdin io.Reader, arg string) (string, error) {
	if arg != stdinArg {
		return arg, nil
	}

	if stdin == nil {
		return "", fmt.Errorf("%w: content (stdin is not available)", scribe.ErrMissingArgument)
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}

	return string(data), nil
}

// actor returns user, falling back to $USER.
func actor(user string, env map[string]string) string {
	if user != "" {
		return user
	}

	return env["USER"]
}
