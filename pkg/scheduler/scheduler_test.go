package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sequorhq/sequor/pkg/engine"
	"github.com/sequorhq/sequor/pkg/execlog"
	"github.com/sequorhq/sequor/pkg/mocks"
	"github.com/sequorhq/sequor/pkg/models"
	"github.com/sequorhq/sequor/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testClock = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

type schedulerFixture struct {
	store     *memory.Persistence
	directory *mocks.MockDirectoryService
	scheduler *Scheduler
}

func newSchedulerFixture() *schedulerFixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewPersistence()
	directory := &mocks.MockDirectoryService{}
	clock := func() time.Time { return testClock }

	eng := engine.New(engine.Config{
		Store:     store,
		Directory: directory,
		AuditLog:  execlog.NewLoggerWithClock(store.ExecutionLogs(), logger, clock),
		Logger:    logger,
		Now:       clock,
	})

	sched := New(Config{
		Store:     store,
		Directory: directory,
		Engine:    eng,
		Logger:    logger,
		Now:       clock,
	})

	return &schedulerFixture{store: store, directory: directory, scheduler: sched}
}

func timePtr(t time.Time) *time.Time { return &t }

func activeWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:             "wf-1",
		OrganizationID: "org-1",
		Name:           "Weekly digest",
		Status:         models.WorkflowStatusActive,
		Nodes: []*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger, Config: map[string]any{"event_type": "datetime"}},
		},
	}
}

func dueSchedule(scheduleType models.ScheduleType) *models.WorkflowSchedule {
	schedule := &models.WorkflowSchedule{
		ID:              "sched-1",
		WorkflowID:      "wf-1",
		Type:            scheduleType,
		Active:          true,
		NextExecutionAt: timePtr(testClock.Add(-time.Minute)),
	}

	switch scheduleType {
	case models.ScheduleTypeOnce:
		schedule.ScheduledAt = timePtr(testClock.Add(-time.Minute))
	case models.ScheduleTypeRecurring:
		schedule.IntervalMinutes = 60
	case models.ScheduleTypeCron:
		schedule.CronExpression = "0 * * * *"
	}

	return schedule
}

func TestSchedulerFiresDueSchedule(t *testing.T) {
	ctx := context.Background()
	fixture := newSchedulerFixture()

	require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, activeWorkflow()))
	require.NoError(t, fixture.store.Schedules().SaveSchedule(ctx, dueSchedule(models.ScheduleTypeRecurring)))

	contacts := []*models.Contact{
		{ID: "c1", OrganizationID: "org-1"},
		{ID: "c2", OrganizationID: "org-1"},
	}
	fixture.directory.On("ContactsByTag", mock.Anything, "org-1", "", defaultContactLimit).
		Return(contacts, nil)

	report := fixture.scheduler.ProcessDueSchedules(ctx)

	assert.Equal(t, 1, report.SchedulesProcessed)
	assert.Equal(t, 2, report.ExecutionsStarted)
	assert.Empty(t, report.Errors)

	// The schedule advanced by its interval and released the claim.
	saved, err := fixture.store.Schedules().ScheduleByID(ctx, "sched-1")
	require.NoError(t, err)
	assert.True(t, saved.Active)
	assert.Nil(t, saved.ProcessingUntil)
	assert.Equal(t, 1, saved.ExecutionCount)
	assert.Equal(t, "completed", saved.LastExecutionStatus)
	require.NotNil(t, saved.NextExecutionAt)
	assert.Equal(t, testClock.Add(time.Hour), *saved.NextExecutionAt)
}

func TestSchedulerOnceScheduleDeactivates(t *testing.T) {
	ctx := context.Background()
	fixture := newSchedulerFixture()

	require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, activeWorkflow()))
	require.NoError(t, fixture.store.Schedules().SaveSchedule(ctx, dueSchedule(models.ScheduleTypeOnce)))

	fixture.directory.On("ContactsByTag", mock.Anything, "org-1", "", defaultContactLimit).
		Return([]*models.Contact{{ID: "c1", OrganizationID: "org-1"}}, nil)

	report := fixture.scheduler.ProcessDueSchedules(ctx)
	assert.Equal(t, 1, report.ExecutionsStarted)

	saved, err := fixture.store.Schedules().ScheduleByID(ctx, "sched-1")
	require.NoError(t, err)
	assert.False(t, saved.Active)
	assert.Nil(t, saved.NextExecutionAt)
}

func TestSchedulerSecondTickDoesNotDoubleFire(t *testing.T) {
	ctx := context.Background()
	fixture := newSchedulerFixture()

	require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, activeWorkflow()))
	require.NoError(t, fixture.store.Schedules().SaveSchedule(ctx, dueSchedule(models.ScheduleTypeRecurring)))

	fixture.directory.On("ContactsByTag", mock.Anything, "org-1", "", defaultContactLimit).
		Return([]*models.Contact{{ID: "c1", OrganizationID: "org-1"}}, nil)

	first := fixture.scheduler.ProcessDueSchedules(ctx)
	second := fixture.scheduler.ProcessDueSchedules(ctx)

	assert.Equal(t, 1, first.SchedulesProcessed)
	assert.Equal(t, 0, second.SchedulesProcessed)
	fixture.directory.AssertNumberOfCalls(t, "ContactsByTag", 1)
}

func TestSchedulerSkipsInactiveWorkflow(t *testing.T) {
	ctx := context.Background()
	fixture := newSchedulerFixture()

	workflow := activeWorkflow()
	workflow.Status = models.WorkflowStatusPaused
	require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, workflow))
	require.NoError(t, fixture.store.Schedules().SaveSchedule(ctx, dueSchedule(models.ScheduleTypeRecurring)))

	report := fixture.scheduler.ProcessDueSchedules(ctx)

	// The schedule still advances; firing was a deliberate no-op.
	assert.Equal(t, 1, report.SchedulesProcessed)
	assert.Equal(t, 0, report.ExecutionsStarted)
	assert.Empty(t, report.Errors)
	fixture.directory.AssertNotCalled(t, "ContactsByTag", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSchedulerMissingWorkflowFailsSchedule(t *testing.T) {
	ctx := context.Background()
	fixture := newSchedulerFixture()

	require.NoError(t, fixture.store.Schedules().SaveSchedule(ctx, dueSchedule(models.ScheduleTypeRecurring)))

	report := fixture.scheduler.ProcessDueSchedules(ctx)

	assert.Equal(t, 1, report.SchedulesProcessed)
	assert.Equal(t, 0, report.ExecutionsStarted)
	require.Len(t, report.Errors, 1)

	saved, err := fixture.store.Schedules().ScheduleByID(ctx, "sched-1")
	require.NoError(t, err)
	assert.Equal(t, "failed", saved.LastExecutionStatus)
}

func TestSchedulerHonorsTagFilterAndContactLimit(t *testing.T) {
	ctx := context.Background()
	fixture := newSchedulerFixture()

	require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, activeWorkflow()))

	schedule := dueSchedule(models.ScheduleTypeRecurring)
	schedule.TagFilter = "vip"
	schedule.ContactLimit = 10
	require.NoError(t, fixture.store.Schedules().SaveSchedule(ctx, schedule))

	fixture.directory.On("ContactsByTag", mock.Anything, "org-1", "vip", 10).
		Return([]*models.Contact{{ID: "c1", OrganizationID: "org-1"}}, nil)

	report := fixture.scheduler.ProcessDueSchedules(ctx)

	assert.Equal(t, 1, report.ExecutionsStarted)
	fixture.directory.AssertExpectations(t)
}

func TestSchedulerResumesDueExecutions(t *testing.T) {
	ctx := context.Background()
	fixture := newSchedulerFixture()

	workflow := &models.Workflow{
		ID:             "wf-1",
		OrganizationID: "org-1",
		Status:         models.WorkflowStatusActive,
		Nodes: []*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger},
			{ID: "d1", Type: models.NodeTypeDelay, Config: map[string]any{"amount": 1, "unit": "hours"}},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "d1"},
		},
	}
	require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, workflow))

	contact := &models.Contact{ID: "c1", OrganizationID: "org-1"}
	fixture.directory.On("GetContact", mock.Anything, "org-1", "c1").Return(contact, nil)

	// A run suspended at the delay whose wait has elapsed.
	execution := models.NewExecution(workflow, "c1", "t1", models.EventDateTime, testClock.Add(-2*time.Hour))
	execution.Advance("d1", testClock.Add(-2*time.Hour))
	execution.MarkWaiting(testClock.Add(-time.Hour), testClock.Add(-2*time.Hour))
	require.NoError(t, fixture.store.Executions().SaveExecution(ctx, execution))

	// And one still waiting in the future; it must not be touched.
	future := models.NewExecution(workflow, "c2", "t1", models.EventDateTime, testClock)
	future.MarkWaiting(testClock.Add(time.Hour), testClock)
	require.NoError(t, fixture.store.Executions().SaveExecution(ctx, future))

	resumed, errs := fixture.scheduler.ResumeDueExecutions(ctx)

	assert.Equal(t, 1, resumed)
	assert.Empty(t, errs)

	saved, err := fixture.store.Executions().ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, saved.Status)

	untouched, err := fixture.store.Executions().ExecutionByID(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusWaiting, untouched.Status)
}

func TestSchedulerReparksExecutionWhenResumeFails(t *testing.T) {
	ctx := context.Background()
	fixture := newSchedulerFixture()

	// The workflow is never saved, so the resume fails loading it right
	// after the claim flipped the row to running.
	workflow := activeWorkflow()
	execution := models.NewExecution(workflow, "c1", "t1", models.EventDateTime, testClock.Add(-2*time.Hour))
	execution.MarkWaiting(testClock.Add(-time.Hour), testClock.Add(-2*time.Hour))
	require.NoError(t, fixture.store.Executions().SaveExecution(ctx, execution))

	resumed, errs := fixture.scheduler.ResumeDueExecutions(ctx)

	assert.Equal(t, 0, resumed)
	require.Len(t, errs, 1)

	// The execution is back in the waiting pool for a later tick, not
	// stranded as running.
	saved, err := fixture.store.Executions().ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusWaiting, saved.Status)
	require.NotNil(t, saved.WaitUntil)
	assert.Equal(t, testClock.Add(defaultPollInterval), *saved.WaitUntil)
}

func TestSchedulerTickCombinesBothPasses(t *testing.T) {
	ctx := context.Background()
	fixture := newSchedulerFixture()

	require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, activeWorkflow()))
	require.NoError(t, fixture.store.Schedules().SaveSchedule(ctx, dueSchedule(models.ScheduleTypeRecurring)))

	fixture.directory.On("ContactsByTag", mock.Anything, "org-1", "", defaultContactLimit).
		Return([]*models.Contact{{ID: "c1", OrganizationID: "org-1"}}, nil)

	report := fixture.scheduler.Tick(ctx)

	assert.Equal(t, 1, report.SchedulesProcessed)
	assert.Equal(t, 1, report.ExecutionsStarted)
	assert.Equal(t, 0, report.ExecutionsResumed)
	assert.Empty(t, report.Errors)
}
