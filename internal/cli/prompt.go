package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
)

// prompter reads one line of user input at a time.
type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// newPrompter returns a liner-backed prompter when in is a terminal and a
// plain line reader otherwise (pipes, tests).
func newPrompter(in io.Reader) prompter {
	if f, ok := in.(*os.File); ok && isTerminal(f) {
		state := liner.NewLiner()
		state.SetCtrlCAborts(true)

		return state
	}

	if in == nil {
		in = strings.NewReader("")
	}

	return &lineReader{scanner: bufio.NewScanner(in)}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}

	return info.Mode()&os.ModeCharDevice != 0
}

// lineReader reads lines without echoing prompts.
type lineReader struct {
	scanner *bufio.Scanner
}

func (r *lineReader) Prompt(string) (string, error) {
	if r.scanner.Scan() {
		return r.scanner.Text(), nil
	}

	err := r.scanner.Err()
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}

	return "", io.EOF
}

func (*lineReader) AppendHistory(string) {}

func (*lineReader) Close() error { return nil }

// confirm asks a yes/no question. Anything but yes/y is a no; end of input
// and Ctrl-C are a no too.
func confirm(p prompter, question string) (bool, error) {
	answer, err := p.Prompt(question + " (yes/no): ")
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return false, nil
		}

		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// splitLine splits a shell line into words. Single and double quotes group
// words; a backslash escapes the next character outside single quotes.
func splitLine(line string) ([]string, error) {
	var (
		words   []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)

			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()

				inWord = false
			}
		default:
			cur.WriteRune(r)

			inWord = true
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}

	if inWord {
		words = append(words, cur.String())
	}

	return words, nil
}
