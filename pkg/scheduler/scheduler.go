// Package scheduler drives all time-based behavior from a poll loop: firing
// due workflow schedules and resuming suspended executions. Every pickup
// goes through a conditional claim on the store, so any number of scheduler
// instances can poll the same database without double-firing.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sequorhq/sequor/pkg/engine"
	"github.com/sequorhq/sequor/pkg/models"
	"github.com/sequorhq/sequor/pkg/persistence"
	"github.com/sequorhq/sequor/pkg/protocol"
)

const (
	defaultPollInterval  = 30 * time.Second
	defaultBatchSize     = 50
	defaultClaimDuration = 5 * time.Minute
	defaultContactLimit  = 500
)

// Config carries the scheduler's collaborators and tuning knobs.
type Config struct {
	Store       persistence.Persistence
	Directory   protocol.DirectoryService
	Credentials protocol.CredentialsResolver
	Engine      *engine.Engine
	Logger      *slog.Logger
	Now         func() time.Time

	// PollInterval is the tick period; BatchSize bounds how many schedules
	// and waiting executions one tick picks up; ClaimDuration is how long a
	// claim shields a schedule from other ticks.
	PollInterval  time.Duration
	BatchSize     int
	ClaimDuration time.Duration
}

// Report summarizes one processing pass.
type Report struct {
	SchedulesProcessed int
	ExecutionsStarted  int
	ExecutionsResumed  int
	Errors             []string
}

// Scheduler polls the store for due work.
type Scheduler struct {
	store         persistence.Persistence
	directory     protocol.DirectoryService
	credentials   protocol.CredentialsResolver
	engine        *engine.Engine
	logger        *slog.Logger
	now           func() time.Time
	pollInterval  time.Duration
	batchSize     int
	claimDuration time.Duration
}

// New creates a scheduler from the given configuration, filling in default
// tuning values.
func New(config Config) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	if config.Now == nil {
		config.Now = time.Now
	}

	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}

	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}

	if config.ClaimDuration <= 0 {
		config.ClaimDuration = defaultClaimDuration
	}

	return &Scheduler{
		store:         config.Store,
		directory:     config.Directory,
		credentials:   config.Credentials,
		engine:        config.Engine,
		logger:        config.Logger.With("module", "scheduler"),
		now:           config.Now,
		pollInterval:  config.PollInterval,
		batchSize:     config.BatchSize,
		claimDuration: config.ClaimDuration,
	}
}

// Run polls until the context is cancelled. Each tick fires due schedules
// and resumes due executions; a failing tick is logged and the loop keeps
// going.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Scheduler started", "poll_interval", s.pollInterval)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Scheduler stopped")

			return ctx.Err()
		case <-ticker.C:
			report := s.Tick(ctx)
			if len(report.Errors) > 0 {
				s.logger.WarnContext(ctx, "Scheduler tick finished with errors",
					"schedules_processed", report.SchedulesProcessed,
					"executions_started", report.ExecutionsStarted,
					"executions_resumed", report.ExecutionsResumed,
					"errors", len(report.Errors))
			}
		}
	}
}

// Tick runs one full processing pass: schedules first, then resumes.
func (s *Scheduler) Tick(ctx context.Context) *Report {
	report := s.ProcessDueSchedules(ctx)

	resumed, errs := s.ResumeDueExecutions(ctx)
	report.ExecutionsResumed = resumed
	report.Errors = append(report.Errors, errs...)

	return report
}

// ProcessDueSchedules claims and fires every due schedule, isolating
// per-schedule failures. Claiming happens before any execution is started,
// so a crash mid-fire costs at most one claim window, never a double fire.
func (s *Scheduler) ProcessDueSchedules(ctx context.Context) *Report {
	report := &Report{}
	now := s.now()

	due, err := s.store.Schedules().DueSchedules(ctx, now, s.batchSize)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("failed to list due schedules: %v", err))

		return report
	}

	for _, schedule := range due {
		claimed, err := s.store.Schedules().ClaimDue(ctx, schedule.ID, now, now.Add(s.claimDuration))
		if err != nil {
			report.Errors = append(report.Errors,
				fmt.Sprintf("failed to claim schedule %s: %v", schedule.ID, err))

			continue
		}

		if !claimed {
			// Another instance got there first.
			continue
		}

		report.SchedulesProcessed++

		started, err := s.fireSchedule(ctx, schedule, now)
		report.ExecutionsStarted += started

		status := "completed"
		if err != nil {
			status = "failed"

			report.Errors = append(report.Errors,
				fmt.Sprintf("schedule %s: %v", schedule.ID, err))
			s.logger.ErrorContext(ctx, "Schedule firing failed",
				"schedule_id", schedule.ID, "workflow_id", schedule.WorkflowID, "error", err)
		}

		if err := s.closeSchedule(ctx, schedule, now, status); err != nil {
			report.Errors = append(report.Errors,
				fmt.Sprintf("failed to update schedule %s: %v", schedule.ID, err))
		}
	}

	return report
}

// fireSchedule starts an execution for every targeted contact. Per-contact
// failures are logged and counted but do not stop the batch.
func (s *Scheduler) fireSchedule(ctx context.Context, schedule *models.WorkflowSchedule, now time.Time) (int, error) {
	workflow, err := s.store.Workflows().WorkflowByID(ctx, schedule.WorkflowID)
	if err != nil {
		return 0, fmt.Errorf("failed to load workflow %s: %w", schedule.WorkflowID, err)
	}

	if !workflow.IsExecutable() {
		s.logger.InfoContext(ctx, "Schedule fired for inactive workflow, skipping",
			"schedule_id", schedule.ID, "workflow_id", workflow.ID, "status", workflow.Status)

		return 0, nil
	}

	limit := schedule.ContactLimit
	if limit <= 0 {
		limit = defaultContactLimit
	}

	contacts, err := s.directory.ContactsByTag(ctx, workflow.OrganizationID, schedule.TagFilter, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list contacts: %w", err)
	}

	credentials := s.resolveCredentials(ctx, workflow.OrganizationID)

	var started int

	for _, contact := range contacts {
		execution, err := s.engine.Start(ctx, workflow, contact, credentials, models.EventDateTime)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to start scheduled execution",
				"schedule_id", schedule.ID, "workflow_id", workflow.ID,
				"contact_id", contact.ID, "error", err)

			continue
		}

		started++

		s.logger.DebugContext(ctx, "Scheduled execution started",
			"schedule_id", schedule.ID, "execution_id", execution.ID, "contact_id", contact.ID)
	}

	return started, nil
}

// closeSchedule releases the claim and advances or deactivates the schedule.
func (s *Scheduler) closeSchedule(ctx context.Context, schedule *models.WorkflowSchedule, now time.Time, status string) error {
	schedule.LastExecutionAt = &now
	schedule.LastExecutionStatus = status
	schedule.ExecutionCount++
	schedule.ProcessingUntil = nil
	schedule.UpdatedAt = now

	next, err := schedule.NextAfter(now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to compute next firing time, deactivating schedule",
			"schedule_id", schedule.ID, "error", err)

		next = nil
	}

	schedule.NextExecutionAt = next

	if next == nil || schedule.Exhausted() {
		schedule.Active = false
		schedule.NextExecutionAt = nil

		s.logger.InfoContext(ctx, "Schedule deactivated",
			"schedule_id", schedule.ID, "execution_count", schedule.ExecutionCount)
	}

	return s.store.Schedules().SaveSchedule(ctx, schedule)
}

// ResumeDueExecutions claims and resumes waiting executions whose wait_until
// has passed. The waiting→running flip in the store is the claim; an
// execution another instance already flipped is skipped silently.
func (s *Scheduler) ResumeDueExecutions(ctx context.Context) (int, []string) {
	now := s.now()

	due, err := s.store.Executions().WaitingExecutionsDue(ctx, now, s.batchSize)
	if err != nil {
		return 0, []string{fmt.Sprintf("failed to list due executions: %v", err)}
	}

	var (
		resumed int
		errs    []string
	)

	for _, execution := range due {
		claimed, err := s.store.Executions().MarkResuming(ctx, execution.ID, now)
		if err != nil {
			errs = append(errs, fmt.Sprintf("failed to claim execution %s: %v", execution.ID, err))

			continue
		}

		if !claimed {
			continue
		}

		// Mirror the store-side flip on the in-memory record.
		execution.Status = models.ExecutionStatusRunning
		execution.WaitUntil = nil

		if err := s.engine.Resume(ctx, execution); err != nil {
			errs = append(errs, fmt.Sprintf("failed to resume execution %s: %v", execution.ID, err))
			s.logger.ErrorContext(ctx, "Execution resume failed",
				"execution_id", execution.ID, "error", err)

			s.reparkExecution(ctx, execution, now)

			continue
		}

		resumed++
	}

	return resumed, errs
}

// reparkExecution returns a claimed execution to the waiting pool after a
// resume attempt errored before the engine persisted any transition. The
// stored row is still running at this point, which no sweep picks up; a
// short wait puts it back in front of a later tick.
func (s *Scheduler) reparkExecution(ctx context.Context, execution *models.Execution, now time.Time) {
	execution.MarkWaiting(now.Add(s.pollInterval), now)

	if err := s.store.Executions().SaveExecution(ctx, execution); err != nil {
		s.logger.ErrorContext(ctx, "Failed to return execution to the waiting pool",
			"execution_id", execution.ID, "error", err)
	}
}

func (s *Scheduler) resolveCredentials(ctx context.Context, organizationID string) models.ChannelCredentials {
	if s.credentials == nil {
		return models.ChannelCredentials{}
	}

	credentials, err := s.credentials.CredentialsForOrganization(ctx, organizationID)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to resolve channel credentials",
			"organization_id", organizationID, "error", err)

		return models.ChannelCredentials{}
	}

	return credentials
}
