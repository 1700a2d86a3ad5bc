package assist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/calvinalkan/scribe/internal/scribe"
	"github.com/calvinalkan/scribe/internal/section"
)

// Loader reads documents.
type Loader interface {
	Load(ctx context.Context, name string) (string, error)
}

// Saver saves one section body, honouring section locks.
type Saver interface {
	SaveSection(ctx context.Context, doc, sectionID, user, body string) (string, error)
}

// Applied reports the fate of one correction.
type Applied struct {
	Correction Correction
	Section    string // section the excerpt was found in; empty when not found
	Timestamp  string // version created; empty when skipped
	Err        error  // save failure, e.g. the section is locked by someone else
}

// Apply replaces the first occurrence of each correction's excerpt in the
// section containing it and saves the section as user. The document is
// reloaded before every correction, so corrections see each other's edits.
// Excerpts that no longer occur are skipped. Save failures are reported per
// correction; the returned error is reserved for failures to read the
// document.
func Apply(ctx context.Context, docs Loader, saver Saver, doc, user string, corrections []Correction) ([]Applied, error) {
	out := make([]Applied, 0, len(corrections))

	for _, c := range corrections {
		content, err := docs.Load(ctx, doc)
		if err != nil {
			return out, err
		}

		res := Applied{Correction: c}

		id, ok := section.Containing(content, c.Original)
		if !ok {
			out = append(out, res)

			continue
		}

		res.Section = id

		body, err := section.Extract(content, id)
		if err != nil {
			return out, err
		}

		res.Timestamp, res.Err = saver.SaveSection(ctx, doc, id, user, strings.Replace(body, strings.TrimSpace(c.Original), c.Corrected, 1))
		if res.Err != nil && !errors.Is(res.Err, scribe.ErrLockHeld) && !errors.Is(res.Err, scribe.ErrStructure) {
			return append(out, res), fmt.Errorf("apply correction: %w", res.Err)
		}

		out = append(out, res)
	}

	return out, nil
}
