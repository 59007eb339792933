package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIAgent implements Agent and SearchAgent on top of the OpenAI API.
type OpenAIAgent struct {
	client *openai.Client
	config Config
}

// NewOpenAIAgent creates a new OpenAI-backed agent.
func NewOpenAIAgent(config Config) (*OpenAIAgent, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIAgent{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the provider name.
func (a *OpenAIAgent) Name() string {
	return "openai"
}

// IsAvailable checks that the API accepts our credentials.
func (a *OpenAIAgent) IsAvailable(ctx context.Context) bool {
	_, err := a.client.ListModels(ctx)
	return err == nil
}

// Generate runs a text-only structured generation call.
func (a *OpenAIAgent) Generate(ctx context.Context, req Request) (*Result, error) {
	model := a.config.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: buildStructuredPrompt(req)},
	}
	return a.complete(ctx, model, req, messages, true)
}

// GenerateWithImage runs a structured generation call against the
// vision-capable model with the image attached.
func (a *OpenAIAgent) GenerateWithImage(ctx context.Context, req Request, imageRef string) (*Result, error) {
	model := a.config.VisionModel
	if model == "" {
		model = openai.GPT4o
	}
	messages := []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: buildStructuredPrompt(req)},
				{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: imageRef},
				},
			},
		},
	}
	return a.complete(ctx, model, req, messages, true)
}

// GenerateWithSearch runs the call against the search-augmented model,
// which performs web retrieval server-side. The search models reject the
// JSON response-format parameter, so the schema contract rides in the
// prompt alone.
func (a *OpenAIAgent) GenerateWithSearch(ctx context.Context, req Request) (*Result, error) {
	model := a.config.SearchModel
	if model == "" {
		return nil, fmt.Errorf("search model not configured: %w", ErrUnavailable)
	}
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: buildStructuredPrompt(req)},
	}
	return a.complete(ctx, model, req, messages, false)
}

func (a *OpenAIAgent) complete(ctx context.Context, model string, req Request, messages []openai.ChatCompletionMessage, jsonMode bool) (*Result, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = a.config.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = 1500
	}

	timeout := time.Duration(a.config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if req.System != "" {
		messages = append([]openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
		}, messages...)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if jsonMode {
		chatReq.Temperature = 0.2
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := a.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	raw := extractJSON(resp.Choices[0].Message.Content)
	if !json.Valid(raw) {
		return nil, fmt.Errorf("OpenAI returned invalid JSON")
	}

	return &Result{
		Raw:        raw,
		Model:      model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// classifyOpenAIError maps credential failures to ErrAuthentication so
// callers can stop retrying immediately.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
	}
	return fmt.Errorf("OpenAI API error: %w", err)
}

// extractJSON strips markdown fences some models wrap around JSON output.
func extractJSON(content string) json.RawMessage {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}
	// Some search models add prose around the object; keep the outermost
	// JSON object when present.
	if !strings.HasPrefix(content, "{") {
		start := strings.Index(content, "{")
		end := strings.LastIndex(content, "}")
		if start >= 0 && end > start {
			content = content[start : end+1]
		}
	}
	return json.RawMessage(content)
}
