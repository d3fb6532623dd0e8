package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sequorhq/sequor/pkg/models"
	"github.com/sequorhq/sequor/pkg/persistence"
)

// ScheduleRepository handles schedule-related database operations.
type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sql.DB, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: logger}
}

const scheduleColumns = `id, workflow_id, type, scheduled_at, interval_minutes, start_at, end_at,
	cron_expression, timezone, tag_filter, contact_limit, active, next_execution_at,
	last_execution_at, last_execution_status, execution_count, max_executions,
	processing_until, created_at, updated_at`

func (r *ScheduleRepository) SaveSchedule(ctx context.Context, schedule *models.WorkflowSchedule) error {
	query := `
		INSERT INTO workflow_schedules (id, workflow_id, type, scheduled_at, interval_minutes,
			start_at, end_at, cron_expression, timezone, tag_filter, contact_limit, active,
			next_execution_at, last_execution_at, last_execution_status, execution_count,
			max_executions, processing_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
			active = EXCLUDED.active,
			next_execution_at = EXCLUDED.next_execution_at,
			last_execution_at = EXCLUDED.last_execution_at,
			last_execution_status = EXCLUDED.last_execution_status,
			execution_count = EXCLUDED.execution_count,
			processing_until = EXCLUDED.processing_until,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		schedule.ID,
		schedule.WorkflowID,
		schedule.Type,
		schedule.ScheduledAt,
		schedule.IntervalMinutes,
		schedule.StartAt,
		schedule.EndAt,
		schedule.CronExpression,
		schedule.Timezone,
		schedule.TagFilter,
		schedule.ContactLimit,
		schedule.Active,
		schedule.NextExecutionAt,
		schedule.LastExecutionAt,
		schedule.LastExecutionStatus,
		schedule.ExecutionCount,
		schedule.MaxExecutions,
		schedule.ProcessingUntil,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}

	return nil
}

func (r *ScheduleRepository) ScheduleByID(ctx context.Context, id string) (*models.WorkflowSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM workflow_schedules WHERE id = $1`

	schedule, err := r.scanSchedule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrScheduleNotFound
		}

		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	return schedule, nil
}

func (r *ScheduleRepository) SchedulesByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM workflow_schedules WHERE workflow_id = $1 ORDER BY created_at`

	return r.querySchedules(ctx, query, workflowID)
}

func (r *ScheduleRepository) DueSchedules(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM workflow_schedules
		WHERE active = TRUE AND next_execution_at IS NOT NULL AND next_execution_at <= $1
		ORDER BY next_execution_at
		LIMIT $2`

	return r.querySchedules(ctx, query, now, limit)
}

// ClaimDue atomically marks a due schedule as being processed. The
// conditional update is what keeps overlapping poll ticks from firing the
// same schedule twice.
func (r *ScheduleRepository) ClaimDue(ctx context.Context, scheduleID string, now time.Time, until time.Time) (bool, error) {
	query := `UPDATE workflow_schedules
		SET processing_until = $1, updated_at = $2
		WHERE id = $3
			AND active = TRUE
			AND next_execution_at IS NOT NULL AND next_execution_at <= $2
			AND (processing_until IS NULL OR processing_until < $2)`

	result, err := r.db.ExecContext(ctx, query, until, now, scheduleID)
	if err != nil {
		return false, fmt.Errorf("failed to claim schedule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}

	return affected == 1, nil
}

func (r *ScheduleRepository) querySchedules(ctx context.Context, query string, args ...any) ([]*models.WorkflowSchedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var schedules []*models.WorkflowSchedule

	for rows.Next() {
		schedule, err := r.scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}

	return schedules, nil
}

func (r *ScheduleRepository) scanSchedule(scanner interface{ Scan(dest ...any) error }) (*models.WorkflowSchedule, error) {
	var schedule models.WorkflowSchedule

	err := scanner.Scan(
		&schedule.ID,
		&schedule.WorkflowID,
		&schedule.Type,
		&schedule.ScheduledAt,
		&schedule.IntervalMinutes,
		&schedule.StartAt,
		&schedule.EndAt,
		&schedule.CronExpression,
		&schedule.Timezone,
		&schedule.TagFilter,
		&schedule.ContactLimit,
		&schedule.Active,
		&schedule.NextExecutionAt,
		&schedule.LastExecutionAt,
		&schedule.LastExecutionStatus,
		&schedule.ExecutionCount,
		&schedule.MaxExecutions,
		&schedule.ProcessingUntil,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &schedule, nil
}
