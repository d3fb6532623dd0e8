// Package protocol defines the interfaces of the external collaborators the
// engine consumes: messaging gateway, contact directory, AI completion
// provider and a generic HTTP client.
package protocol

import (
	"context"
	"net/http"

	"github.com/sequorhq/sequor/pkg/models"
)

// OutboundMessage is the payload handed to the messaging gateway. Exactly
// one of Text, TemplateID or MediaURL is set.
type OutboundMessage struct {
	To         string
	Text       string
	TemplateID string
	MediaURL   string
	MediaType  string
	Caption    string
}

// DeliveryResult reports the gateway's acceptance of an outbound message.
type DeliveryResult struct {
	MessageID string
	Accepted  bool
	Detail    string
}

// MessagingGateway delivers outbound messages on a contact's channel.
type MessagingGateway interface {
	Send(ctx context.Context, credentials models.ChannelCredentials, message OutboundMessage) (*DeliveryResult, error)
}

// DirectoryService exposes contact attributes and performs best-effort
// mutations driven by action nodes.
type DirectoryService interface {
	GetContact(ctx context.Context, organizationID, contactID string) (*models.Contact, error)
	AddTag(ctx context.Context, contactID, tagID string) error
	RemoveTag(ctx context.Context, contactID, tagID string) error
	UpdateField(ctx context.Context, contactID, field string, value any) error
	AddToList(ctx context.Context, contactID, listID string) error
	RemoveFromList(ctx context.Context, contactID, listID string) error
	Notify(ctx context.Context, organizationID, message string) error

	// ContactsByTag lists contacts carrying the tag, bounded by limit. An
	// empty tagID selects all contacts of the organization.
	ContactsByTag(ctx context.Context, organizationID, tagID string, limit int) ([]*models.Contact, error)
}

// CredentialsResolver resolves the messaging channel credentials of an
// organization, used when an execution is resumed outside the original
// trigger context.
type CredentialsResolver interface {
	CredentialsForOrganization(ctx context.Context, organizationID string) (models.ChannelCredentials, error)
}

// CompletionRequest is a single prompt sent to the AI provider.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Prompt       string
	Temperature  float64
	MaxTokens    int
}

// CompletionProvider produces text completions for ai nodes.
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// HTTPDoer is the minimal HTTP client surface webhook nodes need.
// *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
