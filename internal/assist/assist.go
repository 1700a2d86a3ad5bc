package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/scribe/internal/marker"
	"github.com/calvinalkan/scribe/internal/scribe"
	"github.com/calvinalkan/scribe/internal/section"
)

// maxCorrections caps how many grammar problems a review reports.
const maxCorrections = 10

// Correction is one grammar finding. Original is an exact excerpt of the
// document; Corrected replaces it and may be empty to delete the excerpt.
type Correction struct {
	Section   string `json:"section"`
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
}

// Assessment is the structured content review of a document.
type Assessment struct {
	Purpose         string   `json:"purpose"`
	TypeOfDocument  string   `json:"type_of_document"`
	ExpectedContent string   `json:"expected_content"`
	Criteria        []string `json:"criteria"`
	Assessment      []string `json:"assessment"`
	Recommendations []string `json:"recommendations"`
}

// Assistant runs prompts against a provider on behalf of one document
// profile.
type Assistant struct {
	provider  Provider
	maxTokens int
	logger    *slog.Logger
}

// Option configures an [Assistant].
type Option func(*Assistant)

// WithMaxTokens bounds reply length.
func WithMaxTokens(n int) Option { return func(a *Assistant) { a.maxTokens = n } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(a *Assistant) { a.logger = l } }

// New returns an Assistant backed by p.
func New(p Provider, opts ...Option) *Assistant {
	a := &Assistant{provider: p, maxTokens: defaultMaxTokens, logger: scribe.DiscardLogger()}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Provider returns the backing provider.
func (a *Assistant) Provider() Provider { return a.provider }

// ReviewGrammar asks for up to ten critical grammar, spelling and syntax
// problems in content, most critical first.
func (a *Assistant) ReviewGrammar(ctx context.Context, p scribe.Profile, content string) ([]Correction, error) {
	prompt := fmt.Sprintf(`Your role in the review of this document is: grammar and syntax reviewer, native %[1]s speaker.
Document purpose: %[2]s

You will be given a document in progress.

1. Assess grammar, spelling and syntax correctness in %[1]s.
2. Check titles, content and lists.
3. List up to %[3]d problems. Keep the critical ones and omit pure style improvements.
4. For each problem select the minimal excerpt that shows it, around twenty words.
5. Keep the style and tone of the document. Ignore literals in programming examples.
6. If there are no important problems, return an empty list [].
7. Look for incomplete, incoherent or nonsensical phrases and misspelled words, and propose a correction.
8. Deleting content is a valid suggestion: propose an empty string.
9. Order the results by criticality.
10. Translate text written in another language into %[1]s.

The "original" excerpt must be identical to the document (case, symbols, new lines and markdown) so it can be searched and replaced.
Reply with a JSON list of objects with the fields "section" (inferred from the title), "original" and "corrected".

The content to review is below:
========================
%[4]s
========================
`, p.Lang, p.Purpose, maxCorrections, Plain(content))

	reply, err := a.complete(ctx, p, prompt, FormatJSONList)
	if err != nil {
		return nil, err
	}

	var out []Correction

	err = RecoverJSON(reply, &out)
	if err != nil {
		return nil, err
	}

	kept := out[:0]

	for _, c := range out {
		if c.Original == "" || c.Original == c.Corrected {
			continue
		}

		kept = append(kept, c)
	}

	if len(kept) > maxCorrections {
		kept = kept[:maxCorrections]
	}

	return kept, nil
}

// AssessContent infers the type and purpose of the document and evaluates it
// against five criteria.
func (a *Assistant) AssessContent(ctx context.Context, p scribe.Profile, content string) (Assessment, error) {
	prompt := fmt.Sprintf(`Based on your role in the review of this document: %[1]q
and the declared purpose %[2]q:

1. Infer what type of document it is, its likely audience and distribution.
2. Infer the general purpose of this kind of document.
3. Write a short paragraph on what a document of this type should contain.
4. Define 5 criteria to evaluate its content. Check whether text seems incomplete or missing.
5. For each criterion write one of [achieved, partially achieved, to be improved] followed by the assessment.
6. For each criterion write recommendations; "nothing to change" is valid when the assessment is positive.

Reply with a JSON object with exactly these fields:
purpose (string), type_of_document (string), expected_content (string),
criteria (list of five strings), assessment (list of five strings), recommendations (list of five strings).

Write the values in %[3]s.

The document to assess is below:
========================
%[4]s
========================
`, p.Role, p.Purpose, p.Lang, Plain(content))

	reply, err := a.complete(ctx, p, prompt, FormatJSONObject)
	if err != nil {
		return Assessment{}, err
	}

	var out Assessment

	err = RecoverJSON(reply, &out)
	if err != nil {
		return Assessment{}, err
	}

	return out, nil
}

// SuggestSection proposes a rewrite of one section body. The reply is
// returned as markdown without section markers.
func (a *Assistant) SuggestSection(ctx context.Context, p scribe.Profile, content, sectionID string) (string, error) {
	body, err := section.Extract(content, sectionID)
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf(`You are a %[1]s working on a document with the purpose %[2]q.
Improve the following section of the document. Keep its heading and its meaning,
fix errors, complete unfinished sentences and keep the tone of the document.
Write in %[3]s. Reply with the rewritten section in markdown only.

The full document, for context:
========================
%[4]s
========================

The section to rewrite:
========================
%[5]s
========================
`, p.Role, p.Purpose, p.Lang, Plain(content), body)

	reply, err := a.complete(ctx, p, prompt, FormatText)
	if err != nil {
		return "", err
	}

	return keepHeading(Plain(stripFence(reply)), body), nil
}

// CreateContent drafts the skeleton of a new document titled title. The
// draft always starts with a "# title" heading.
func (a *Assistant) CreateContent(ctx context.Context, p scribe.Profile, title string) (string, error) {
	prompt := fmt.Sprintf(`You are a %[1]s with the purpose %[2]q.
The document must be written in %[3]s.
Create the skeleton of a markdown document titled %[4]q. Infer the best writing style,
add some initial content and leave placeholders for the user to fill in the rest.
Reply with markdown only.
`, p.Role, p.Purpose, p.Lang, title)

	reply, err := a.complete(ctx, p, prompt, FormatText)
	if err != nil {
		return "", err
	}

	draft := strings.TrimSpace(Plain(stripFence(reply)))

	lines := marker.Split(draft)
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "# ") {
		draft = "# " + title + "\n\n" + draft
	}

	return draft + "\n", nil
}

func (a *Assistant) complete(ctx context.Context, p scribe.Profile, prompt string, format Format) (string, error) {
	system := fmt.Sprintf("You are a %s. Always answer in %s.", p.Role, p.Lang)

	a.logger.DebugContext(ctx, "assistant request", "provider", a.provider.Name(), "format", format, "prompt_bytes", len(prompt))

	reply, err := a.provider.Complete(ctx, Request{
		System:    system,
		Prompt:    prompt,
		MaxTokens: a.maxTokens,
		Format:    format,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", a.provider.Name(), err)
	}

	return reply, nil
}

var jsonSpan = regexp.MustCompile(`(?s)(\[.*\]|\{.*\})`)

// RecoverJSON decodes the first JSON list or object in reply into v. Models
// often wrap JSON in prose or code fences and leave trailing commas, so the
// span is standardized as JSONC before decoding.
func RecoverJSON(reply string, v any) error {
	span := jsonSpan.FindString(reply)
	if span == "" {
		return fmt.Errorf("%w: no JSON found", scribe.ErrAssistantReply)
	}

	data, err := hujson.Standardize([]byte(span))
	if err != nil {
		return fmt.Errorf("%w: %w", scribe.ErrAssistantReply, err)
	}

	err = json.Unmarshal(data, v)
	if err != nil {
		return fmt.Errorf("%w: %w", scribe.ErrAssistantReply, err)
	}

	return nil
}

// Plain returns content without marker lines.
func Plain(content string) string {
	lines := marker.Scan(content)
	out := make([]string, 0, len(lines))

	for _, ln := range lines {
		if ln.Kind == marker.KindStart || ln.Kind == marker.KindEnd {
			continue
		}

		out = append(out, ln.Text)
	}

	return strings.Join(out, "\n")
}

// stripFence removes a ```markdown fence wrapping the whole reply.
func stripFence(reply string) string {
	trimmed := strings.TrimSpace(reply)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") || len(trimmed) < 6 {
		return reply
	}

	inner := strings.TrimSuffix(trimmed, "```")

	_, rest, ok := strings.Cut(inner, "\n")
	if !ok {
		return reply
	}

	return strings.TrimSpace(rest)
}

// keepHeading prefixes suggestion with the heading of original when the
// suggestion dropped it.
func keepHeading(suggestion, original string) string {
	suggestion = strings.TrimSpace(suggestion)

	var heading string

	for _, ln := range marker.Scan(original) {
		if ln.Kind == marker.KindHeading {
			heading = ln.Text

			break
		}
	}

	if heading == "" || strings.Contains(suggestion, heading) {
		return suggestion
	}

	for _, ln := range marker.Scan(suggestion) {
		if ln.Kind == marker.KindHeading {
			return suggestion
		}
	}

	return heading + "\n" + suggestion
}
