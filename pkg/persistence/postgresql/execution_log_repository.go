package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sequorhq/sequor/pkg/models"
	"github.com/sequorhq/sequor/pkg/persistence"
)

// ExecutionLogRepository handles execution audit log database operations.
type ExecutionLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionLogRepository creates a new execution log repository.
func NewExecutionLogRepository(db *sql.DB, logger *slog.Logger) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db, logger: logger}
}

const logColumns = `id, execution_id, node_id, node_type, status, input, output,
	error_message, error_code, metadata, started_at, completed_at`

func (r *ExecutionLogRepository) SaveLogEntry(ctx context.Context, entry *models.ExecutionLogEntry) error {
	inputJSON, err := json.Marshal(entry.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}

	outputJSON, err := json.Marshal(entry.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO execution_logs (id, execution_id, node_id, node_type, status, input, output,
			error_message, error_code, metadata, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			output = EXCLUDED.output,
			error_message = EXCLUDED.error_message,
			error_code = EXCLUDED.error_code,
			metadata = EXCLUDED.metadata,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.ExecutionID,
		entry.NodeID,
		entry.NodeType,
		entry.Status,
		inputJSON,
		outputJSON,
		entry.ErrorMessage,
		entry.ErrorCode,
		metadataJSON,
		entry.StartedAt,
		entry.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save log entry: %w", err)
	}

	return nil
}

func (r *ExecutionLogRepository) StartedEntry(ctx context.Context, executionID, nodeID string) (*models.ExecutionLogEntry, error) {
	query := `SELECT ` + logColumns + ` FROM execution_logs
		WHERE execution_id = $1 AND node_id = $2 AND status = $3
		ORDER BY started_at DESC
		LIMIT 1`

	entry, err := r.scanLogEntry(r.db.QueryRowContext(ctx, query, executionID, nodeID, models.LogStatusStarted))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrLogEntryNotFound
		}

		return nil, fmt.Errorf("failed to scan log entry: %w", err)
	}

	return entry, nil
}

func (r *ExecutionLogRepository) EntriesByExecution(ctx context.Context, executionID string) ([]*models.ExecutionLogEntry, error) {
	query := `SELECT ` + logColumns + ` FROM execution_logs
		WHERE execution_id = $1 ORDER BY started_at`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var entries []*models.ExecutionLogEntry

	for rows.Next() {
		entry, err := r.scanLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating log entries: %w", err)
	}

	return entries, nil
}

func (r *ExecutionLogRepository) scanLogEntry(scanner interface{ Scan(dest ...any) error }) (*models.ExecutionLogEntry, error) {
	var (
		entry                              models.ExecutionLogEntry
		inputJSON, outputJSON, metadataJSON []byte
	)

	err := scanner.Scan(
		&entry.ID,
		&entry.ExecutionID,
		&entry.NodeID,
		&entry.NodeType,
		&entry.Status,
		&inputJSON,
		&outputJSON,
		&entry.ErrorMessage,
		&entry.ErrorCode,
		&metadataJSON,
		&entry.StartedAt,
		&entry.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if inputJSON != nil {
		if err := json.Unmarshal(inputJSON, &entry.Input); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input: %w", err)
		}
	}

	if outputJSON != nil {
		if err := json.Unmarshal(outputJSON, &entry.Output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output: %w", err)
		}
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &entry, nil
}
