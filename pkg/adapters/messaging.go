// Package adapters implements the protocol interfaces against the HTTP APIs
// of the surrounding platform services: the messaging gateway, the contact
// directory and an OpenAI-compatible completion endpoint.
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

	"github.com/sequorhq/sequor/pkg/models"
	"github.com/sequorhq/sequor/pkg/protocol"
)

const maxErrorBody = 4 * 1024

// HTTPMessagingGateway delivers outbound messages through the messaging
// gateway service's REST API.
type HTTPMessagingGateway struct {
	baseURL string
	client  protocol.HTTPDoer
	logger  *slog.Logger
}

// NewHTTPMessagingGateway creates a gateway client for the given base URL.
func NewHTTPMessagingGateway(baseURL string, logger *slog.Logger) *HTTPMessagingGateway {
	return &HTTPMessagingGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger.With("module", "messaging_gateway"),
	}
}

type sendMessageRequest struct {
	SenderID   string `json:"sender_id"`
	To         string `json:"to"`
	Text       string `json:"text,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	MediaURL   string `json:"media_url,omitempty"`
	MediaType  string `json:"media_type,omitempty"`
	Caption    string `json:"caption,omitempty"`
}

type sendMessageResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
}

func (g *HTTPMessagingGateway) Send(ctx context.Context, credentials models.ChannelCredentials, message protocol.OutboundMessage) (*protocol.DeliveryResult, error) {
	payload, err := json.Marshal(sendMessageRequest{
		SenderID:   credentials.SenderID,
		To:         message.To,
		Text:       message.Text,
		TemplateID: message.TemplateID,
		MediaURL:   message.MediaURL,
		MediaType:  message.MediaType,
		Caption:    message.Caption,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+credentials.AccessToken)

	response, err := g.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway returned status %d: %s", response.StatusCode, string(body))
	}

	var decoded sendMessageResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	return &protocol.DeliveryResult{
		MessageID: decoded.MessageID,
		Accepted:  decoded.Status != "rejected",
		Detail:    decoded.Detail,
	}, nil
}
