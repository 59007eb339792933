package agent

import (
	"fmt"
	"strings"

	"github.com/veracity-social/veracity/internal/model"
)

// New creates an agent from configuration. A nil agent (no error) means the
// provider is disabled and callers should use their deterministic fallbacks.
func New(config Config) (Agent, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIAgent(config)

	case "ollama":
		return NewOllamaAgent(config)

	case "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown agent provider: %s (supported: openai, ollama)", config.Provider)
	}
}

// ConfigFromModel converts the application config section into an agent
// Config.
func ConfigFromModel(c model.AgentConfig) Config {
	return Config{
		Provider:    c.Provider,
		Model:       c.Model,
		VisionModel: c.VisionModel,
		SearchModel: c.SearchModel,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Timeout:     c.Timeout,
		MaxTokens:   c.MaxTokens,
	}
}
