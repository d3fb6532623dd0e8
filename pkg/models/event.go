package models

import "time"

// EventType classifies an inbound event evaluated by the trigger gate.
type EventType string

const (
	EventMessageReceived EventType = "message_received"
	EventContactReplied  EventType = "contact_replied"
	EventContactCreated  EventType = "contact_created"
	EventTagApplied      EventType = "tag_applied"
	EventFieldChanged    EventType = "field_changed"
	EventWebhookReceived EventType = "webhook_received"

	// EventDateTime marks schedule-driven starts. Date-time triggers are
	// fired by the scheduler only and never match at the gate.
	EventDateTime EventType = "datetime"
)

// TriggerEvent is one inbound occurrence the gate evaluates against the
// organization's active workflows.
type TriggerEvent struct {
	ID             string         `json:"id"`
	Type           EventType      `json:"type"            validate:"required"`
	OrganizationID string         `json:"organization_id" validate:"required"`
	ContactID      string         `json:"contact_id"      validate:"required"`
	TagID          string         `json:"tag_id,omitempty"`
	FieldName      string         `json:"field_name,omitempty"`
	FieldValue     string         `json:"field_value,omitempty"`
	MessageBody    string         `json:"message_body,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}
