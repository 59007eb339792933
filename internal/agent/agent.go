// Package agent wraps generative language model providers behind a small
// structured-output interface. Callers supply a prompt plus a JSON schema
// and decode the parsed result into their own types.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrAuthentication marks credential-class provider failures. These are
// operational incidents, not per-item failures: callers must not retry.
var ErrAuthentication = errors.New("agent authentication failed")

// ErrUnavailable is returned when no provider is configured or the provider
// reports itself unavailable.
var ErrUnavailable = errors.New("agent unavailable")

// Request is one structured generation call.
type Request struct {
	// Prompt is the user-facing instruction.
	Prompt string

	// System is the system prompt, optional.
	System string

	// Schema is the JSON schema the response must conform to. It is
	// embedded into the instruction and the provider is forced into
	// JSON output mode.
	Schema json.RawMessage

	// MaxTokens limits the response length; 0 uses the provider default.
	MaxTokens int
}

// Result is the structured output of a generation call.
type Result struct {
	Raw        json.RawMessage
	Model      string
	TokensUsed int
}

// Decode unmarshals the structured result into v.
func (r *Result) Decode(v any) error {
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("decode agent result: %w", err)
	}
	return nil
}

// Agent is the generative agent contract. Model selection (text-only versus
// vision-capable) is the caller's responsibility: use GenerateWithImage
// whenever the content carries an image reference.
type Agent interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Result, error)
	GenerateWithImage(ctx context.Context, req Request, imageRef string) (*Result, error)
	IsAvailable(ctx context.Context) bool
}

// SearchAgent is the web-search-augmented variant used for verification.
// Its results may carry source URLs gathered during retrieval.
type SearchAgent interface {
	GenerateWithSearch(ctx context.Context, req Request) (*Result, error)
}

// Config holds provider configuration.
type Config struct {
	Provider    string // "openai", "ollama", "" (disabled)
	Model       string
	VisionModel string
	SearchModel string
	APIKey      string
	BaseURL     string
	Timeout     int // seconds
	MaxTokens   int
}

// DefaultConfig returns sensible defaults with the provider disabled.
func DefaultConfig() Config {
	return Config{
		Timeout:   30,
		MaxTokens: 1500,
	}
}

// buildStructuredPrompt appends the output schema contract to the prompt so
// providers without native schema enforcement still return the right shape.
func buildStructuredPrompt(req Request) string {
	if len(req.Schema) == 0 {
		return req.Prompt
	}
	return fmt.Sprintf(`%s

Respond with a single JSON object conforming exactly to this JSON schema. No prose, no markdown fences.

%s`, req.Prompt, string(req.Schema))
}
