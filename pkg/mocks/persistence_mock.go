// Package mocks provides testify mock implementations of the persistence
// and protocol interfaces for unit tests.
package mocks

import (
	"context"
	"time"

	"github.com/sequorhq/sequor/pkg/models"
	"github.com/sequorhq/sequor/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) Workflows(ctx context.Context, organizationID string) ([]*models.Workflow, error) {
	args := m.Called(ctx, organizationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) ActiveWorkflows(ctx context.Context, organizationID string) ([]*models.Workflow, error) {
	args := m.Called(ctx, organizationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) DeleteWorkflow(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) SaveExecution(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) ExecutionsByWorkflowAndContact(ctx context.Context, workflowID, contactID string) ([]*models.Execution, error) {
	args := m.Called(ctx, workflowID, contactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) WaitingExecutionsDue(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) MarkResuming(ctx context.Context, executionID string, now time.Time) (bool, error) {
	args := m.Called(ctx, executionID, now)

	return args.Bool(0), args.Error(1)
}

// MockScheduleRepository is a mock implementation of persistence.ScheduleRepository.
type MockScheduleRepository struct {
	mock.Mock
}

func (m *MockScheduleRepository) SaveSchedule(ctx context.Context, schedule *models.WorkflowSchedule) error {
	args := m.Called(ctx, schedule)

	return args.Error(0)
}

func (m *MockScheduleRepository) ScheduleByID(ctx context.Context, id string) (*models.WorkflowSchedule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowSchedule), args.Error(1)
}

func (m *MockScheduleRepository) SchedulesByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowSchedule, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowSchedule), args.Error(1)
}

func (m *MockScheduleRepository) DueSchedules(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowSchedule, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowSchedule), args.Error(1)
}

func (m *MockScheduleRepository) ClaimDue(ctx context.Context, scheduleID string, now time.Time, until time.Time) (bool, error) {
	args := m.Called(ctx, scheduleID, now, until)

	return args.Bool(0), args.Error(1)
}

// MockExecutionLogRepository is a mock implementation of persistence.ExecutionLogRepository.
type MockExecutionLogRepository struct {
	mock.Mock
}

func (m *MockExecutionLogRepository) SaveLogEntry(ctx context.Context, entry *models.ExecutionLogEntry) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockExecutionLogRepository) StartedEntry(ctx context.Context, executionID, nodeID string) (*models.ExecutionLogEntry, error) {
	args := m.Called(ctx, executionID, nodeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionLogEntry), args.Error(1)
}

func (m *MockExecutionLogRepository) EntriesByExecution(ctx context.Context, executionID string) ([]*models.ExecutionLogEntry, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionLogEntry), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence
// aggregating the repository mocks.
type MockPersistence struct {
	mock.Mock

	workflowRepo  *MockWorkflowRepository
	executionRepo *MockExecutionRepository
	scheduleRepo  *MockScheduleRepository
	logRepo       *MockExecutionLogRepository
}

// NewMockPersistence creates a MockPersistence with all repository mocks wired.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		workflowRepo:  &MockWorkflowRepository{},
		executionRepo: &MockExecutionRepository{},
		scheduleRepo:  &MockScheduleRepository{},
		logRepo:       &MockExecutionLogRepository{},
	}
}

// MockWorkflows returns the underlying workflow repository mock for expectations.
func (m *MockPersistence) MockWorkflows() *MockWorkflowRepository { return m.workflowRepo }

// MockExecutions returns the underlying execution repository mock for expectations.
func (m *MockPersistence) MockExecutions() *MockExecutionRepository { return m.executionRepo }

// MockSchedules returns the underlying schedule repository mock for expectations.
func (m *MockPersistence) MockSchedules() *MockScheduleRepository { return m.scheduleRepo }

// MockExecutionLogs returns the underlying log repository mock for expectations.
func (m *MockPersistence) MockExecutionLogs() *MockExecutionLogRepository { return m.logRepo }

func (m *MockPersistence) Workflows() persistence.WorkflowRepository { return m.workflowRepo }

func (m *MockPersistence) Executions() persistence.ExecutionRepository { return m.executionRepo }

func (m *MockPersistence) Schedules() persistence.ScheduleRepository { return m.scheduleRepo }

func (m *MockPersistence) ExecutionLogs() persistence.ExecutionLogRepository { return m.logRepo }

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
