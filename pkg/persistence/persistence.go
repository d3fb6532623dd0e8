// Package persistence provides the data storage abstraction for workflows,
// executions, schedules and execution audit logs.
package persistence

import (
	"context"
	"time"

	"github.com/sequorhq/sequor/pkg/models"
)

// WorkflowRepository stores workflow definitions. The engine only reads them.
type WorkflowRepository interface {
	Workflows(ctx context.Context, organizationID string) ([]*models.Workflow, error)
	ActiveWorkflows(ctx context.Context, organizationID string) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error
}

// ExecutionRepository stores execution records keyed by id. All mutation is
// scoped to one row; MarkResuming is the conditional claim used by the
// scheduler's resume sweep so overlapping ticks never resume a run twice.
type ExecutionRepository interface {
	SaveExecution(ctx context.Context, execution *models.Execution) error
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	ExecutionsByWorkflowAndContact(ctx context.Context, workflowID, contactID string) ([]*models.Execution, error)
	ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error)

	// WaitingExecutionsDue returns executions with status waiting whose
	// wait_until has passed, ordered by wait_until, bounded by limit.
	WaitingExecutionsDue(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error)

	// MarkResuming flips status waiting→running for the given execution.
	// Returns false when the row was not in waiting state anymore.
	MarkResuming(ctx context.Context, executionID string, now time.Time) (bool, error)
}

// ScheduleRepository stores workflow schedules. ClaimDue atomically marks a
// due schedule as being processed so overlapping poll ticks cannot
// double-fire it.
type ScheduleRepository interface {
	SaveSchedule(ctx context.Context, schedule *models.WorkflowSchedule) error
	ScheduleByID(ctx context.Context, id string) (*models.WorkflowSchedule, error)
	SchedulesByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowSchedule, error)
	DueSchedules(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowSchedule, error)

	// ClaimDue sets processing_until on a due, unclaimed schedule. Returns
	// false when another tick already claimed it or it is no longer due.
	ClaimDue(ctx context.Context, scheduleID string, now time.Time, until time.Time) (bool, error)
}

// ExecutionLogRepository stores per-node audit rows.
type ExecutionLogRepository interface {
	SaveLogEntry(ctx context.Context, entry *models.ExecutionLogEntry) error
	StartedEntry(ctx context.Context, executionID, nodeID string) (*models.ExecutionLogEntry, error)
	EntriesByExecution(ctx context.Context, executionID string) ([]*models.ExecutionLogEntry, error)
}

// Persistence aggregates the repositories behind one store handle.
type Persistence interface {
	Workflows() WorkflowRepository
	Executions() ExecutionRepository
	Schedules() ScheduleRepository
	ExecutionLogs() ExecutionLogRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
