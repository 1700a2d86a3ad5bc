package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	loremgen "github.com/bozaro/golorem"
)

// Lorem is an offline provider producing placeholder text. JSON list requests
// get an empty list (no grammar problems); JSON object requests get an
// assessment-shaped object.
type Lorem struct {
	mu        sync.Mutex
	generator *loremgen.Lorem
}

// NewLorem returns a lorem ipsum provider.
func NewLorem() *Lorem {
	return &Lorem{generator: loremgen.New()}
}

// Name implements [Provider].
func (*Lorem) Name() string { return "lorem" }

// Complete implements [Provider].
func (l *Lorem) Complete(ctx context.Context, req Request) (string, error) {
	err := ctx.Err()
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch req.Format {
	case FormatJSONList:
		return "[]", nil
	case FormatJSONObject:
		return l.assessment()
	default:
		return l.markdown(req.MaxTokens), nil
	}
}

func (l *Lorem) markdown(maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	// One token is roughly four characters.
	target := min(maxTokens*4, 1200)

	var b strings.Builder

	b.WriteString(l.generator.Paragraph(2, 4))

	for b.Len() < target {
		fmt.Fprintf(&b, "\n\n## %s\n\n%s", strings.TrimSuffix(l.generator.Sentence(2, 4), "."), l.generator.Paragraph(2, 4))
	}

	return b.String() + "\n"
}

func (l *Lorem) assessment() (string, error) {
	list := func() []string {
		out := make([]string, 5)
		for i := range out {
			out[i] = l.generator.Sentence(6, 12)
		}

		return out
	}

	data, err := json.Marshal(Assessment{
		Purpose:         l.generator.Sentence(6, 10),
		TypeOfDocument:  l.generator.Sentence(2, 4),
		ExpectedContent: l.generator.Paragraph(1, 2),
		Criteria:        list(),
		Assessment:      list(),
		Recommendations: list(),
	})
	if err != nil {
		return "", fmt.Errorf("encode lorem assessment: %w", err)
	}

	return string(data), nil
}

var _ Provider = (*Lorem)(nil)
