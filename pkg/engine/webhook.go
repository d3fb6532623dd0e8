package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sequorhq/sequor/pkg/models"
	"github.com/sequorhq/sequor/pkg/template"
)

const (
	defaultWebhookTimeout = 30 * time.Second
	maxWebhookResponse    = 64 * 1024
)

// executeWebhook calls the configured external endpoint. The body and header
// values support placeholders; a non-2xx status or transport error fails the
// node, and with retry_on_failure set the retry budget of the node caps the
// re-attempts.
func (e *Engine) executeWebhook(ctx context.Context, execution *models.Execution, node *models.Node, contact *models.Contact) dispatchResult {
	var config models.WebhookConfig
	if err := node.DecodeConfig(&config); err != nil {
		return failed(err.Error())
	}

	if config.URL == "" {
		return failed(fmt.Sprintf("webhook node %s has no url configured", node.ID))
	}

	method := strings.ToUpper(config.Method)
	if method == "" {
		method = http.MethodPost
	}

	timeout := defaultWebhookTimeout
	if config.TimeoutSeconds > 0 {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if config.Body != "" {
		body = strings.NewReader(template.RenderForContact(config.Body, contact, execution))
	}

	request, err := http.NewRequestWithContext(ctx, method, config.URL, body)
	if err != nil {
		return failed(fmt.Sprintf("webhook node %s: invalid request: %v", node.ID, err))
	}

	request.Header.Set("Content-Type", "application/json")

	for name, value := range config.Headers {
		request.Header.Set(name, template.RenderForContact(value, contact, execution))
	}

	if err := applyWebhookAuth(request, config); err != nil {
		return failed(fmt.Sprintf("webhook node %s: %v", node.ID, err))
	}

	response, err := e.httpClient.Do(request)
	if err != nil {
		return e.webhookFailure(execution, config, fmt.Sprintf("webhook request failed: %v", err))
	}

	defer func() {
		_ = response.Body.Close()
	}()

	payload, err := io.ReadAll(io.LimitReader(response.Body, maxWebhookResponse))
	if err != nil {
		return e.webhookFailure(execution, config, fmt.Sprintf("failed to read webhook response: %v", err))
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return e.webhookFailure(execution, config,
			fmt.Sprintf("webhook returned status %d", response.StatusCode))
	}

	patch := map[string]any{"webhook_status": response.StatusCode}

	var parsed map[string]any
	if json.Unmarshal(payload, &parsed) == nil {
		patch["webhook_response"] = parsed
	} else if len(payload) > 0 {
		patch["webhook_response"] = string(payload)
	}

	return succeededWith(patch)
}

// webhookFailure marks the failure retryable only while the node's own
// retry budget allows it.
func (e *Engine) webhookFailure(execution *models.Execution, config models.WebhookConfig, message string) dispatchResult {
	if config.RetryOnFailure && execution.RetryCount < config.MaxRetries {
		return retryableFailure(message)
	}

	return failed(message)
}

func applyWebhookAuth(request *http.Request, config models.WebhookConfig) error {
	switch config.AuthType {
	case models.WebhookAuthNone:
		return nil
	case models.WebhookAuthBearer:
		if config.AuthToken == "" {
			return fmt.Errorf("bearer auth configured without a token")
		}

		request.Header.Set("Authorization", "Bearer "+config.AuthToken)

		return nil
	case models.WebhookAuthBasic:
		if config.AuthUsername == "" {
			return fmt.Errorf("basic auth configured without a username")
		}

		request.SetBasicAuth(config.AuthUsername, config.AuthPassword)

		return nil
	case models.WebhookAuthAPIKey:
		if config.APIKeyHeader == "" || config.APIKeyValue == "" {
			return fmt.Errorf("api_key auth configured without header or value")
		}

		request.Header.Set(config.APIKeyHeader, config.APIKeyValue)

		return nil
	default:
		return fmt.Errorf("unknown auth type %q", config.AuthType)
	}
}
