package web

import (
	"time"

	"github.com/sequorhq/sequor/pkg/models"
)

// CreateWorkflowRequest is the payload for creating a workflow definition.
type CreateWorkflowRequest struct {
	OrganizationID string                  `json:"organization_id" validate:"required"`
	Name           string                  `json:"name"            validate:"required,min=3"`
	Description    string                  `json:"description"`
	Nodes          []*models.Node          `json:"nodes"           validate:"dive"`
	Edges          []*models.Edge          `json:"edges"           validate:"dive"`
	Settings       models.WorkflowSettings `json:"settings"`
}

// UpdateWorkflowStatusRequest changes a workflow's lifecycle status.
type UpdateWorkflowStatusRequest struct {
	Status models.WorkflowStatus `json:"status" validate:"required,oneof=draft active paused archived"`
}

// CreateScheduleRequest is the payload for attaching a schedule to a workflow.
type CreateScheduleRequest struct {
	Type models.ScheduleType `json:"type" validate:"required,oneof=once recurring cron"`

	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	IntervalMinutes int        `json:"interval_minutes,omitempty" validate:"omitempty,gt=0"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	EndAt           *time.Time `json:"end_at,omitempty"`
	CronExpression  string     `json:"cron_expression,omitempty"`
	Timezone        string     `json:"timezone,omitempty"`

	TagFilter     string `json:"tag_filter,omitempty"`
	ContactLimit  int    `json:"contact_limit,omitempty"  validate:"omitempty,gt=0"`
	MaxExecutions int    `json:"max_executions,omitempty" validate:"omitempty,gt=0"`
}

// EventRequest is an inbound trigger event posted over HTTP.
type EventRequest struct {
	Type           models.EventType `json:"type"            validate:"required"`
	OrganizationID string           `json:"organization_id" validate:"required"`
	ContactID      string           `json:"contact_id"      validate:"required"`
	TagID          string           `json:"tag_id,omitempty"`
	FieldName      string           `json:"field_name,omitempty"`
	FieldValue     string           `json:"field_value,omitempty"`
	MessageBody    string           `json:"message_body,omitempty"`
	Payload        map[string]any   `json:"payload,omitempty"`
	OccurredAt     *time.Time       `json:"occurred_at,omitempty"`
}
