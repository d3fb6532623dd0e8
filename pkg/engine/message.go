package engine

import (
	"context"
	"fmt"

	"github.com/sequorhq/sequor/pkg/models"
	"github.com/sequorhq/sequor/pkg/protocol"
	"github.com/sequorhq/sequor/pkg/template"
)

// executeMessage renders the configured message and hands it to the gateway.
// A contact without a phone number or an organization without credentials is
// a degraded no-op, not a failure; gateway errors are retryable.
func (e *Engine) executeMessage(ctx context.Context, execution *models.Execution, node *models.Node, contact *models.Contact, credentials models.ChannelCredentials) dispatchResult {
	var config models.MessageConfig
	if err := node.DecodeConfig(&config); err != nil {
		return failed(err.Error())
	}

	if config.Text == "" && config.TemplateID == "" && config.MediaURL == "" {
		return failed(fmt.Sprintf("message node %s has no text, template or media configured", node.ID))
	}

	if contact.PhoneNumber == "" {
		return skipped("contact has no phone number", map[string]any{
			"last_message_status": "skipped_no_phone",
		})
	}

	if e.gateway == nil || credentials.Empty() {
		return skipped("no messaging credentials available", map[string]any{
			"last_message_status": "skipped_no_credentials",
		})
	}

	message := protocol.OutboundMessage{
		To:         contact.PhoneNumber,
		Text:       template.RenderForContact(config.Text, contact, execution),
		TemplateID: config.TemplateID,
		MediaURL:   config.MediaURL,
		MediaType:  config.MediaType,
		Caption:    template.RenderForContact(config.Caption, contact, execution),
	}

	result, err := e.gateway.Send(ctx, credentials, message)
	if err != nil {
		return retryableFailure(fmt.Sprintf("failed to send message: %v", err))
	}

	if !result.Accepted {
		return retryableFailure(fmt.Sprintf("gateway rejected message: %s", result.Detail))
	}

	return succeededWith(map[string]any{
		"last_message_id":     result.MessageID,
		"last_message_status": "sent",
	})
}
