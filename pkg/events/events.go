// Package events defines event types and structures for execution lifecycle notifications.
package events

import (
	"time"

	"github.com/sequorhq/sequor/pkg/models"
)

type EventType string

// Kafka topics.
const Topic = "sequor.events"                      // Execution lifecycle events
const ContactEventTopic = "sequor.contact.events"  // Inbound contact events feeding the gate

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionWaitingEvent   EventType = "execution.waiting"
	ExecutionResumedEvent   EventType = "execution.resumed"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	GoalRecordedEvent       EventType = "goal.recorded"
	ContactEventReceived    EventType = "contact.event.received"
)

type Event interface {
	GetType() EventType
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string           `json:"execution_id"`
	ContactID   string           `json:"contact_id"`
	TriggerType models.EventType `json:"trigger_type,omitempty"`
}

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEvent }

type ExecutionWaiting struct {
	BaseEvent

	ExecutionID string    `json:"execution_id"`
	NodeID      string    `json:"node_id"`
	WaitUntil   time.Time `json:"wait_until"`
}

func (e ExecutionWaiting) GetType() EventType { return ExecutionWaitingEvent }

type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
}

func (e ExecutionResumed) GetType() EventType { return ExecutionResumedEvent }

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	ContactID   string        `json:"contact_id"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEvent }

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id,omitempty"`
	Error       string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType { return ExecutionFailedEvent }

type GoalRecorded struct {
	BaseEvent

	ExecutionID string  `json:"execution_id"`
	ContactID   string  `json:"contact_id"`
	GoalName    string  `json:"goal_name"`
	GoalValue   float64 `json:"goal_value,omitempty"`
}

func (e GoalRecorded) GetType() EventType { return GoalRecordedEvent }

// ContactEvent wraps an inbound trigger event published on the contact
// event topic for the gate to consume.
type ContactEvent struct {
	BaseEvent

	TriggerEvent models.TriggerEvent `json:"trigger_event"`
}

func (e ContactEvent) GetType() EventType { return ContactEventReceived }
