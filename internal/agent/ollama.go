package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaAgent implements Agent for local Ollama models. It has no
// credentials, no vision support, and no search variant; it exists so the
// pipeline can run fully offline.
type OllamaAgent struct {
	baseURL    string
	httpClient *http.Client
	config     Config
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	System  string        `json:"system,omitempty"`
	Format  string        `json:"format,omitempty"`
	Options ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// NewOllamaAgent creates a new Ollama-backed agent.
func NewOllamaAgent(config Config) (*OllamaAgent, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &OllamaAgent{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		config:     config,
	}, nil
}

// Name returns the provider name.
func (a *OllamaAgent) Name() string {
	return "ollama"
}

// IsAvailable checks that the local server responds.
func (a *OllamaAgent) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Generate runs a structured generation call with JSON output forced.
func (a *OllamaAgent) Generate(ctx context.Context, req Request) (*Result, error) {
	model := a.config.Model
	if model == "" {
		model = "llama3.2"
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = a.config.MaxTokens
	}

	body := ollamaRequest{
		Model:  model,
		Prompt: buildStructuredPrompt(req),
		Stream: false,
		System: req.System,
		Format: "json",
		Options: ollamaOptions{
			Temperature: 0.2,
			NumPredict:  maxTokens,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr ollamaError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("ollama error: %s", apiErr.Error)
		}
		return nil, fmt.Errorf("ollama error: status %d", resp.StatusCode)
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := json.RawMessage(strings.TrimSpace(parsed.Response))
	if !json.Valid(out) {
		return nil, fmt.Errorf("ollama returned invalid JSON")
	}

	return &Result{
		Raw:        out,
		Model:      parsed.Model,
		TokensUsed: parsed.PromptEvalCount + parsed.EvalCount,
	}, nil
}

// GenerateWithImage is unsupported; Ollama deployments here are text-only.
// Callers fall back to heuristic extraction for image content.
func (a *OllamaAgent) GenerateWithImage(ctx context.Context, req Request, imageRef string) (*Result, error) {
	return nil, fmt.Errorf("ollama provider has no vision support: %w", ErrUnavailable)
}
