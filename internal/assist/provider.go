// Package assist is the AI collaborator: grammar review, content assessment,
// section suggestions and first drafts, backed by a pluggable completion
// [Provider].
//
// Replies are untrusted text. Structured replies are recovered from the first
// JSON span of the reply, and every change to a document goes through the
// normal section save path.
package assist

import (
	"context"
	"fmt"

	"github.com/calvinalkan/scribe/internal/scribe"
)

// Format tells a provider what shape of reply the caller will parse.
type Format uint8

// Reply formats.
const (
	FormatText Format = iota
	FormatJSONList
	FormatJSONObject
)

// Request is one completion call.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
	Format    Format
}

// Provider completes prompts.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderFunc adapts a function to [Provider].
type ProviderFunc func(ctx context.Context, req Request) (string, error)

// Name implements [Provider].
func (ProviderFunc) Name() string { return "func" }

// Complete implements [Provider].
func (f ProviderFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// APIKeyEnv is the environment variable holding the Anthropic API key.
const APIKeyEnv = "ANTHROPIC_API_KEY"

// NewProvider returns the provider selected by cfg. env supplies the API key.
func NewProvider(cfg scribe.AIConfig, env map[string]string) (Provider, error) {
	switch cfg.Provider {
	case scribe.ProviderLorem, "":
		return NewLorem(), nil
	case scribe.ProviderAnthropic:
		key := env[APIKeyEnv]
		if key == "" {
			return nil, fmt.Errorf("%w: %s is not set", scribe.ErrAssistantUnavailable, APIKeyEnv)
		}

		return NewAnthropic(key, cfg.Model)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", scribe.ErrAssistantUnavailable, cfg.Provider)
	}
}
