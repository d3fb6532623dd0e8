package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sequorhq/sequor/pkg/protocol"
)

const defaultCompletionModel = "gpt-4o-mini"

// HTTPCompletionProvider calls an OpenAI-compatible chat completions
// endpoint for the ai nodes.
type HTTPCompletionProvider struct {
	baseURL string
	apiKey  string
	client  protocol.HTTPDoer
	logger  *slog.Logger
}

// NewHTTPCompletionProvider creates a completion client. baseURL is the API
// root, e.g. "https://api.openai.com".
func NewHTTPCompletionProvider(baseURL, apiKey string, logger *slog.Logger) *HTTPCompletionProvider {
	return &HTTPCompletionProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger.With("module", "completions"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (p *HTTPCompletionProvider) Complete(ctx context.Context, req protocol.CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = defaultCompletionModel
	}

	var messages []chatMessage
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}

	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload, err := json.Marshal(chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode completion request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build completion request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+p.apiKey)

	response, err := p.client.Do(request)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read completion response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", fmt.Errorf("completion endpoint returned status %d", response.StatusCode)
	}

	var decoded chatCompletionResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}

	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("completion endpoint returned no choices")
	}

	return decoded.Choices[0].Message.Content, nil
}
