// Package memory provides an in-memory persistence implementation used in
// tests and local development.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sequorhq/sequor/pkg/models"
	"github.com/sequorhq/sequor/pkg/persistence"
)

// Persistence stores everything in process memory behind one mutex. Records
// are deep-copied on the way in and out so callers never alias stored state.
type Persistence struct {
	mu         sync.RWMutex
	workflows  map[string]*models.Workflow
	executions map[string]*models.Execution
	schedules  map[string]*models.WorkflowSchedule
	logEntries []*models.ExecutionLogEntry
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		workflows:  make(map[string]*models.Workflow),
		executions: make(map[string]*models.Execution),
		schedules:  make(map[string]*models.WorkflowSchedule),
	}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository         { return (*workflowRepo)(p) }
func (p *Persistence) Executions() persistence.ExecutionRepository       { return (*executionRepo)(p) }
func (p *Persistence) Schedules() persistence.ScheduleRepository         { return (*scheduleRepo)(p) }
func (p *Persistence) ExecutionLogs() persistence.ExecutionLogRepository { return (*logRepo)(p) }

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }
func (p *Persistence) Close(_ context.Context) error       { return nil }

func clone[T any](v *T) *T {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("memory persistence: failed to marshal %T: %v", v, err))
	}

	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic(fmt.Sprintf("memory persistence: failed to unmarshal %T: %v", v, err))
	}

	return out
}

type workflowRepo Persistence

func (r *workflowRepo) Workflows(_ context.Context, organizationID string) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Workflow

	for _, wf := range r.workflows {
		if organizationID == "" || wf.OrganizationID == organizationID {
			result = append(result, clone(wf))
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result, nil
}

func (r *workflowRepo) ActiveWorkflows(ctx context.Context, organizationID string) ([]*models.Workflow, error) {
	all, err := r.Workflows(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	var active []*models.Workflow

	for _, wf := range all {
		if wf.Status == models.WorkflowStatusActive {
			active = append(active, wf)
		}
	}

	return active, nil
}

func (r *workflowRepo) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.workflows[id]
	if !ok {
		return nil, persistence.ErrWorkflowNotFound
	}

	return clone(wf), nil
}

func (r *workflowRepo) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.workflows[workflow.ID] = clone(workflow)

	return nil
}

func (r *workflowRepo) DeleteWorkflow(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workflows[id]; !ok {
		return persistence.ErrWorkflowNotFound
	}

	delete(r.workflows, id)

	return nil
}

type executionRepo Persistence

func (r *executionRepo) SaveExecution(_ context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.executions[execution.ID] = clone(execution)

	return nil
}

func (r *executionRepo) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, ok := r.executions[id]
	if !ok {
		return nil, persistence.ErrExecutionNotFound
	}

	return clone(exec), nil
}

func (r *executionRepo) ExecutionsByWorkflowAndContact(_ context.Context, workflowID, contactID string) ([]*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Execution

	for _, exec := range r.executions {
		if exec.WorkflowID == workflowID && exec.ContactID == contactID {
			result = append(result, clone(exec))
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })

	return result, nil
}

func (r *executionRepo) ExecutionsByWorkflow(_ context.Context, workflowID string) ([]*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Execution

	for _, exec := range r.executions {
		if exec.WorkflowID == workflowID {
			result = append(result, clone(exec))
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })

	return result, nil
}

func (r *executionRepo) WaitingExecutionsDue(_ context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []*models.Execution

	for _, exec := range r.executions {
		if exec.Status == models.ExecutionStatusWaiting && exec.WaitUntil != nil && !exec.WaitUntil.After(now) {
			due = append(due, clone(exec))
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].WaitUntil.Before(*due[j].WaitUntil) })

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

func (r *executionRepo) MarkResuming(_ context.Context, executionID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	exec, ok := r.executions[executionID]
	if !ok {
		return false, persistence.ErrExecutionNotFound
	}

	if exec.Status != models.ExecutionStatusWaiting {
		return false, nil
	}

	exec.Status = models.ExecutionStatusRunning
	exec.WaitUntil = nil
	exec.UpdatedAt = now

	return true, nil
}

type scheduleRepo Persistence

func (r *scheduleRepo) SaveSchedule(_ context.Context, schedule *models.WorkflowSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.schedules[schedule.ID] = clone(schedule)

	return nil
}

func (r *scheduleRepo) ScheduleByID(_ context.Context, id string) (*models.WorkflowSchedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schedule, ok := r.schedules[id]
	if !ok {
		return nil, persistence.ErrScheduleNotFound
	}

	return clone(schedule), nil
}

func (r *scheduleRepo) SchedulesByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowSchedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.WorkflowSchedule

	for _, schedule := range r.schedules {
		if schedule.WorkflowID == workflowID {
			result = append(result, clone(schedule))
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result, nil
}

func (r *scheduleRepo) DueSchedules(_ context.Context, now time.Time, limit int) ([]*models.WorkflowSchedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []*models.WorkflowSchedule

	for _, schedule := range r.schedules {
		if schedule.IsDue(now) {
			due = append(due, clone(schedule))
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].NextExecutionAt.Before(*due[j].NextExecutionAt) })

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

func (r *scheduleRepo) ClaimDue(_ context.Context, scheduleID string, now time.Time, until time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	schedule, ok := r.schedules[scheduleID]
	if !ok {
		return false, persistence.ErrScheduleNotFound
	}

	if !schedule.IsDue(now) {
		return false, nil
	}

	if schedule.ProcessingUntil != nil && schedule.ProcessingUntil.After(now) {
		return false, nil
	}

	schedule.ProcessingUntil = &until
	schedule.UpdatedAt = now

	return true, nil
}

type logRepo Persistence

func (r *logRepo) SaveLogEntry(_ context.Context, entry *models.ExecutionLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.logEntries {
		if existing.ID == entry.ID {
			r.logEntries[i] = clone(entry)

			return nil
		}
	}

	r.logEntries = append(r.logEntries, clone(entry))

	return nil
}

func (r *logRepo) StartedEntry(_ context.Context, executionID, nodeID string) (*models.ExecutionLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Latest started row wins when a node is visited more than once.
	for i := len(r.logEntries) - 1; i >= 0; i-- {
		entry := r.logEntries[i]
		if entry.ExecutionID == executionID && entry.NodeID == nodeID && entry.Status == models.LogStatusStarted {
			return clone(entry), nil
		}
	}

	return nil, persistence.ErrLogEntryNotFound
}

func (r *logRepo) EntriesByExecution(_ context.Context, executionID string) ([]*models.ExecutionLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.ExecutionLogEntry

	for _, entry := range r.logEntries {
		if entry.ExecutionID == executionID {
			result = append(result, clone(entry))
		}
	}

	return result, nil
}
