// Package execlog records per-node audit rows for executions and builds run
// summaries from them. Audit-write failures are logged and swallowed so the
// underlying business operation never aborts on a lost log row.
package execlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sequorhq/sequor/pkg/models"
	"github.com/sequorhq/sequor/pkg/persistence"
)

// Logger appends and updates execution audit rows.
type Logger struct {
	store  persistence.ExecutionLogRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewLogger creates an execution logger backed by the given repository.
func NewLogger(store persistence.ExecutionLogRepository, logger *slog.Logger) *Logger {
	return &Logger{
		store:  store,
		logger: logger.With("module", "execlog"),
		now:    time.Now,
	}
}

// NewLoggerWithClock creates an execution logger with an injected clock.
func NewLoggerWithClock(store persistence.ExecutionLogRepository, logger *slog.Logger, now func() time.Time) *Logger {
	l := NewLogger(store, logger)
	l.now = now

	return l
}

// LogNodeStart appends a started row for the node.
func (l *Logger) LogNodeStart(ctx context.Context, executionID string, node *models.Node, input map[string]any) {
	entry := &models.ExecutionLogEntry{
		ID:          newLogID(),
		ExecutionID: executionID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		Status:      models.LogStatusStarted,
		Input:       input,
		StartedAt:   l.now(),
	}

	l.save(ctx, entry)
}

// LogNodeComplete closes the node's started row, or inserts a synthetic
// complete row when the start event was lost.
func (l *Logger) LogNodeComplete(ctx context.Context, executionID string, node *models.Node, output map[string]any) {
	l.finish(ctx, executionID, node, models.LogStatusCompleted, output, "", "")
}

// LogNodeFailure closes the node's started row with failure detail.
func (l *Logger) LogNodeFailure(ctx context.Context, executionID string, node *models.Node, errorMessage, errorCode string) {
	l.finish(ctx, executionID, node, models.LogStatusFailed, nil, errorMessage, errorCode)
}

// LogNodeSkipped records a node that was visited but deliberately not executed.
func (l *Logger) LogNodeSkipped(ctx context.Context, executionID string, node *models.Node, reason string) {
	now := l.now()
	entry := &models.ExecutionLogEntry{
		ID:          newLogID(),
		ExecutionID: executionID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		Status:      models.LogStatusSkipped,
		Metadata:    map[string]any{"reason": reason},
		StartedAt:   now,
		CompletedAt: &now,
	}

	l.save(ctx, entry)
}

func (l *Logger) finish(ctx context.Context, executionID string, node *models.Node, status models.LogStatus, output map[string]any, errorMessage, errorCode string) {
	now := l.now()

	entry, err := l.store.StartedEntry(ctx, executionID, node.ID)
	if err != nil {
		if !errors.Is(err, persistence.ErrLogEntryNotFound) {
			l.logger.ErrorContext(ctx, "Failed to look up started log entry",
				"execution_id", executionID, "node_id", node.ID, "error", err)
		}

		// Synthetic row so a summary can always be reconstructed.
		entry = &models.ExecutionLogEntry{
			ID:          newLogID(),
			ExecutionID: executionID,
			NodeID:      node.ID,
			NodeType:    node.Type,
			StartedAt:   now,
		}
	}

	entry.Status = status
	entry.Output = output
	entry.ErrorMessage = errorMessage
	entry.ErrorCode = errorCode
	entry.CompletedAt = &now

	l.save(ctx, entry)
}

func (l *Logger) save(ctx context.Context, entry *models.ExecutionLogEntry) {
	if err := l.store.SaveLogEntry(ctx, entry); err != nil {
		l.logger.ErrorContext(ctx, "Failed to write execution log entry",
			"execution_id", entry.ExecutionID, "node_id", entry.NodeID,
			"status", entry.Status, "error", err)
	}
}

// ExecutionSummary aggregates the audit rows of one execution: counts per
// status and total completed-node duration.
func (l *Logger) ExecutionSummary(ctx context.Context, executionID string) (*models.ExecutionSummary, error) {
	entries, err := l.store.EntriesByExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load log entries for execution %s: %w", executionID, err)
	}

	summary := &models.ExecutionSummary{
		ExecutionID:    executionID,
		TotalNodes:     len(entries),
		CountsByStatus: make(map[models.LogStatus]int),
	}

	for _, entry := range entries {
		summary.CountsByStatus[entry.Status]++

		if summary.FirstStartedAt == nil || entry.StartedAt.Before(*summary.FirstStartedAt) {
			startedAt := entry.StartedAt
			summary.FirstStartedAt = &startedAt
		}

		if entry.CompletedAt != nil {
			if summary.LastCompletedAt == nil || entry.CompletedAt.After(*summary.LastCompletedAt) {
				summary.LastCompletedAt = entry.CompletedAt
			}

			if entry.Status == models.LogStatusCompleted {
				summary.TotalDurationMs += entry.CompletedAt.Sub(entry.StartedAt).Milliseconds()
			}
		}
	}

	return summary, nil
}

func newLogID() string {
	return fmt.Sprintf("elog-%s", uuid.New().String())
}
