// Package web provides the HTTP surface of sequor: inbound event ingestion
// plus read and management endpoints for workflows, executions and schedules.
package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/sequorhq/sequor/pkg/execlog"
	"github.com/sequorhq/sequor/pkg/gate"
	"github.com/sequorhq/sequor/pkg/models"
	"github.com/sequorhq/sequor/pkg/persistence"
)

// APIHandlers carries the collaborators behind the HTTP endpoints.
type APIHandlers struct {
	store     persistence.Persistence
	gate      *gate.Gate
	auditLog  *execlog.Logger
	validator *validator.Validate
	now       func() time.Time
}

// NewAPIHandlers creates the handler set.
func NewAPIHandlers(store persistence.Persistence, g *gate.Gate, auditLog *execlog.Logger, v *validator.Validate) *APIHandlers {
	return &APIHandlers{
		store:     store,
		gate:      g,
		auditLog:  auditLog,
		validator: v,
		now:       time.Now,
	}
}

// PostEvent ingests one inbound trigger event and returns the gate's verdicts.
func (h *APIHandlers) PostEvent(c fiber.Ctx) error {
	var req EventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event := models.TriggerEvent{
		ID:             fmt.Sprintf("evt-%s", uuid.New().String()),
		Type:           req.Type,
		OrganizationID: req.OrganizationID,
		ContactID:      req.ContactID,
		TagID:          req.TagID,
		FieldName:      req.FieldName,
		FieldValue:     req.FieldValue,
		MessageBody:    req.MessageBody,
		Payload:        req.Payload,
		OccurredAt:     h.now().UTC(),
	}

	if req.OccurredAt != nil {
		event.OccurredAt = *req.OccurredAt
	}

	results, err := h.gate.Evaluate(c.Context(), event)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"event_id": event.ID,
		"results":  results,
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	organizationID := c.Query("organization_id")
	if organizationID == "" {
		return badRequest(c, "organization_id query parameter is required")
	}

	workflows, err := h.store.Workflows().Workflows(c.Context(), organizationID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.store.Workflows().WorkflowByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	for _, node := range req.Nodes {
		if !node.Type.IsValid() {
			return badRequest(c, fmt.Sprintf("node %s has unknown type %q", node.ID, node.Type))
		}
	}

	now := h.now().UTC()
	workflow := &models.Workflow{
		ID:             fmt.Sprintf("wf-%s", uuid.New().String()),
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		Description:    req.Description,
		Status:         models.WorkflowStatusDraft,
		Nodes:          req.Nodes,
		Edges:          req.Edges,
		Settings:       req.Settings,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.store.Workflows().SaveWorkflow(c.Context(), workflow); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

// UpdateWorkflowStatus moves a workflow between lifecycle states. Activating
// a workflow without exactly one trigger node is rejected.
func (h *APIHandlers) UpdateWorkflowStatus(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowStatusRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.store.Workflows().WorkflowByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	if req.Status == models.WorkflowStatusActive {
		if _, err := workflow.TriggerNode(); err != nil {
			return badRequest(c, err.Error())
		}
	}

	workflow.Status = req.Status
	workflow.UpdatedAt = h.now().UTC()

	if err := h.store.Workflows().SaveWorkflow(c.Context(), workflow); err != nil {
		return internalError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	executions, err := h.store.Executions().ExecutionsByWorkflow(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.store.Executions().ExecutionByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(execution)
}

// GetExecutionSummary aggregates the execution's audit rows.
func (h *APIHandlers) GetExecutionSummary(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if _, err := h.store.Executions().ExecutionByID(c.Context(), id); err != nil {
		return handleStoreError(c, err)
	}

	summary, err := h.auditLog.ExecutionSummary(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(summary)
}

func (h *APIHandlers) GetExecutionLog(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	entries, err := h.store.ExecutionLogs().EntriesByExecution(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"entries": entries})
}

// CreateSchedule attaches a time-based start rule to a workflow and seeds
// its first firing time.
func (h *APIHandlers) CreateSchedule(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req CreateScheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if _, err := h.store.Workflows().WorkflowByID(c.Context(), workflowID); err != nil {
		return handleStoreError(c, err)
	}

	now := h.now().UTC()
	schedule := &models.WorkflowSchedule{
		ID:              fmt.Sprintf("sched-%s", uuid.New().String()),
		WorkflowID:      workflowID,
		Type:            req.Type,
		ScheduledAt:     req.ScheduledAt,
		IntervalMinutes: req.IntervalMinutes,
		StartAt:         req.StartAt,
		EndAt:           req.EndAt,
		CronExpression:  req.CronExpression,
		Timezone:        req.Timezone,
		TagFilter:       req.TagFilter,
		ContactLimit:    req.ContactLimit,
		MaxExecutions:   req.MaxExecutions,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := schedule.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	if schedule.Type == models.ScheduleTypeOnce {
		schedule.NextExecutionAt = schedule.ScheduledAt
	} else {
		next, err := schedule.NextAfter(now)
		if err != nil {
			return badRequest(c, err.Error())
		}

		schedule.NextExecutionAt = next
	}

	if err := h.store.Schedules().SaveSchedule(c.Context(), schedule); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(schedule)
}

func (h *APIHandlers) GetWorkflowSchedules(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	schedules, err := h.store.Schedules().SchedulesByWorkflow(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"schedules": schedules})
}

func (h *APIHandlers) GetSchedule(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Schedule ID is required")
	}

	schedule, err := h.store.Schedules().ScheduleByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(schedule)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Sequor API is healthy"
	httpStatus := http.StatusOK

	if err := h.store.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "Sequor API is unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": h.now().UTC(),
	})
}
