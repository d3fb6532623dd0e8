package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sequorhq/sequor/pkg/models"
	"github.com/sequorhq/sequor/pkg/persistence"
)

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `id, workflow_id, contact_id, organization_id, status, current_node_id,
	path, facts, trigger_type, wait_until, retry_count, error_message, error_node_id,
	created_at, updated_at, completed_at`

func (r *ExecutionRepository) SaveExecution(ctx context.Context, execution *models.Execution) error {
	pathJSON, err := json.Marshal(execution.Path)
	if err != nil {
		return fmt.Errorf("failed to marshal path: %w", err)
	}

	factsJSON, err := json.Marshal(execution.Facts)
	if err != nil {
		return fmt.Errorf("failed to marshal facts: %w", err)
	}

	query := `
		INSERT INTO executions (id, workflow_id, contact_id, organization_id, status, current_node_id,
			path, facts, trigger_type, wait_until, retry_count, error_message, error_node_id,
			created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_node_id = EXCLUDED.current_node_id,
			path = EXCLUDED.path,
			facts = EXCLUDED.facts,
			wait_until = EXCLUDED.wait_until,
			retry_count = EXCLUDED.retry_count,
			error_message = EXCLUDED.error_message,
			error_node_id = EXCLUDED.error_node_id,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.ContactID,
		execution.OrganizationID,
		execution.Status,
		execution.CurrentNodeID,
		pathJSON,
		factsJSON,
		execution.TriggerType,
		execution.WaitUntil,
		execution.RetryCount,
		execution.ErrorMessage,
		execution.ErrorNodeID,
		execution.CreatedAt,
		execution.UpdatedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ExecutionsByWorkflowAndContact(ctx context.Context, workflowID, contactID string) ([]*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions
		WHERE workflow_id = $1 AND contact_id = $2 ORDER BY created_at`

	return r.queryExecutions(ctx, query, workflowID, contactID)
}

func (r *ExecutionRepository) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions
		WHERE workflow_id = $1 ORDER BY created_at`

	return r.queryExecutions(ctx, query, workflowID)
}

func (r *ExecutionRepository) WaitingExecutionsDue(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions
		WHERE status = $1 AND wait_until IS NOT NULL AND wait_until <= $2
		ORDER BY wait_until
		LIMIT $3`

	return r.queryExecutions(ctx, query, models.ExecutionStatusWaiting, now, limit)
}

// MarkResuming claims a waiting execution for resumption. The conditional
// WHERE is the sole guard against overlapping scheduler ticks.
func (r *ExecutionRepository) MarkResuming(ctx context.Context, executionID string, now time.Time) (bool, error) {
	query := `UPDATE executions
		SET status = $1, wait_until = NULL, updated_at = $2
		WHERE id = $3 AND status = $4`

	result, err := r.db.ExecContext(ctx, query,
		models.ExecutionStatusRunning, now, executionID, models.ExecutionStatusWaiting)
	if err != nil {
		return false, fmt.Errorf("failed to mark execution resuming: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}

	return affected == 1, nil
}

func (r *ExecutionRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]*models.Execution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var executions []*models.Execution

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func (r *ExecutionRepository) scanExecution(scanner interface{ Scan(dest ...any) error }) (*models.Execution, error) {
	var (
		execution           models.Execution
		pathJSON, factsJSON []byte
	)

	err := scanner.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.ContactID,
		&execution.OrganizationID,
		&execution.Status,
		&execution.CurrentNodeID,
		&pathJSON,
		&factsJSON,
		&execution.TriggerType,
		&execution.WaitUntil,
		&execution.RetryCount,
		&execution.ErrorMessage,
		&execution.ErrorNodeID,
		&execution.CreatedAt,
		&execution.UpdatedAt,
		&execution.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(pathJSON, &execution.Path); err != nil {
		return nil, fmt.Errorf("failed to unmarshal path: %w", err)
	}

	if err := json.Unmarshal(factsJSON, &execution.Facts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal facts: %w", err)
	}

	return &execution, nil
}
