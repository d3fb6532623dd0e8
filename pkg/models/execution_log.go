package models

import "time"

// LogStatus is the state of one (execution, node) audit row.
type LogStatus string

const (
	LogStatusStarted   LogStatus = "started"
	LogStatusCompleted LogStatus = "completed"
	LogStatusFailed    LogStatus = "failed"
	LogStatusSkipped   LogStatus = "skipped"
)

// ExecutionLogEntry is one audit row per node transition. A started row is
// updated in place when the node completes or fails; if the start event was
// lost a synthetic complete row is inserted instead.
type ExecutionLogEntry struct {
	ID           string         `json:"id"`
	ExecutionID  string         `json:"execution_id" validate:"required"`
	NodeID       string         `json:"node_id"      validate:"required"`
	NodeType     NodeType       `json:"node_type"`
	Status       LogStatus      `json:"status"`
	Input        map[string]any `json:"input,omitempty"`
	Output       map[string]any `json:"output,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// ExecutionSummary aggregates an execution's audit rows for reporting.
type ExecutionSummary struct {
	ExecutionID     string            `json:"execution_id"`
	TotalNodes      int               `json:"total_nodes"`
	CountsByStatus  map[LogStatus]int `json:"counts_by_status"`
	TotalDurationMs int64             `json:"total_duration_ms"`
	FirstStartedAt  *time.Time        `json:"first_started_at,omitempty"`
	LastCompletedAt *time.Time        `json:"last_completed_at,omitempty"`
}
