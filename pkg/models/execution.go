package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the lifecycle state of one contact's run through a workflow.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusWaiting   ExecutionStatus = "waiting"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status cannot change anymore.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// Fact is one named value a node contributed to the execution, keyed by the
// node that produced it. Facts are append-only so a run can be replayed.
type Fact struct {
	NodeID     string    `json:"node_id"`
	Key        string    `json:"key"`
	Value      any       `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Execution is one contact's live progress through one workflow. It is
// mutated only by the engine and the scheduler; once the status is terminal
// the record is frozen.
type Execution struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflow_id"`
	ContactID      string          `json:"contact_id"`
	OrganizationID string          `json:"organization_id"`
	Status         ExecutionStatus `json:"status"`
	CurrentNodeID  string          `json:"current_node_id"`
	Path           []string        `json:"path"`
	Facts          []Fact          `json:"facts,omitempty"`
	TriggerType    EventType       `json:"trigger_type,omitempty"`
	WaitUntil      *time.Time      `json:"wait_until,omitempty"`
	RetryCount     int             `json:"retry_count"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	ErrorNodeID    string          `json:"error_node_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// NewExecution seeds a running execution positioned at the given entry node.
func NewExecution(workflow *Workflow, contactID string, entryNodeID string, triggerType EventType, now time.Time) *Execution {
	return &Execution{
		ID:             NewExecutionID(),
		WorkflowID:     workflow.ID,
		ContactID:      contactID,
		OrganizationID: workflow.OrganizationID,
		Status:         ExecutionStatusRunning,
		CurrentNodeID:  entryNodeID,
		Path:           []string{entryNodeID},
		TriggerType:    triggerType,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewExecutionID generates a unique execution ID.
func NewExecutionID() string {
	return fmt.Sprintf("exec-%s", uuid.New().String())
}

// Advance moves the execution to the next node, appending it to the path.
func (e *Execution) Advance(nodeID string, now time.Time) {
	e.CurrentNodeID = nodeID
	e.Path = append(e.Path, nodeID)
	e.UpdatedAt = now
}

// RecordFact appends a named fact contributed by a node.
func (e *Execution) RecordFact(nodeID, key string, value any, now time.Time) {
	e.Facts = append(e.Facts, Fact{
		NodeID:     nodeID,
		Key:        key,
		Value:      value,
		RecordedAt: now,
	})
	e.UpdatedAt = now
}

// FactValue returns the most recently recorded value for a key.
func (e *Execution) FactValue(key string) (any, bool) {
	for i := len(e.Facts) - 1; i >= 0; i-- {
		if e.Facts[i].Key == key {
			return e.Facts[i].Value, true
		}
	}

	return nil, false
}

// FactData flattens the fact log into a lookup map, later facts winning.
// Used by template rendering and condition evaluation.
func (e *Execution) FactData() map[string]any {
	data := make(map[string]any, len(e.Facts))
	for _, fact := range e.Facts {
		data[fact.Key] = fact.Value
	}

	return data
}

// MarkWaiting suspends the execution until the given instant.
func (e *Execution) MarkWaiting(until time.Time, now time.Time) {
	e.Status = ExecutionStatusWaiting
	e.WaitUntil = &until
	e.UpdatedAt = now
}

// MarkRetryWait suspends the execution for a retry of the current node. The
// failing node and message stay on the record so a resume knows to
// re-dispatch the current node instead of advancing past it.
func (e *Execution) MarkRetryWait(nodeID, message string, until time.Time, now time.Time) {
	e.Status = ExecutionStatusWaiting
	e.WaitUntil = &until
	e.ErrorNodeID = nodeID
	e.ErrorMessage = message
	e.RetryCount++
	e.UpdatedAt = now
}

// PendingRetry reports whether the execution is positioned on a node whose
// last dispatch failed and is awaiting re-attempt.
func (e *Execution) PendingRetry() bool {
	return e.ErrorMessage != "" && e.ErrorNodeID == e.CurrentNodeID && !e.Status.IsTerminal()
}

// ClearError wipes retry bookkeeping after a successful re-dispatch.
func (e *Execution) ClearError(now time.Time) {
	e.ErrorMessage = ""
	e.ErrorNodeID = ""
	e.UpdatedAt = now
}

// MarkCompleted finishes the execution normally.
func (e *Execution) MarkCompleted(now time.Time) {
	e.Status = ExecutionStatusCompleted
	e.WaitUntil = nil
	e.CompletedAt = &now
	e.UpdatedAt = now
}

// MarkFailed finishes the execution with the failing node and message preserved.
func (e *Execution) MarkFailed(nodeID, message string, now time.Time) {
	e.Status = ExecutionStatusFailed
	e.ErrorNodeID = nodeID
	e.ErrorMessage = message
	e.WaitUntil = nil
	e.CompletedAt = &now
	e.UpdatedAt = now
}
