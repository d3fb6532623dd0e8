// Package gate admits inbound contact events into workflow executions. For
// every event it matches the organization's active workflows' trigger
// predicates, applies the re-entry rules, and starts an execution per
// admitted workflow.
package gate

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

// Rejection reasons reported in Result.Reason.
const (
	ReasonTriggerMismatch = "trigger_mismatch"
	ReasonReentryDenied   = "reentry_denied"
	ReasonAlreadyActive   = "already_active"
	ReasonExecutionCap    = "execution_cap_reached"
	ReasonInvalidWorkflow = "invalid_workflow"
	ReasonStartFailed     = "start_failed"
)

// Result is the gate's verdict for one workflow against one event.
type Result struct {
	WorkflowID  string
	Admitted    bool
	Reason      string
	ExecutionID string
}

// Config carries the gate's collaborators.
type Config struct {
	Store       persistence.Persistence
	Directory   protocol.DirectoryService
	Credentials protocol.CredentialsResolver
	Engine      *engine.Engine
	Logger      *slog.Logger
	Now         func() time.Time
}

// Gate evaluates trigger events against active workflows.
type Gate struct {
	store       persistence.Persistence
	directory   protocol.DirectoryService
	credentials protocol.CredentialsResolver
	engine      *engine.Engine
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a gate from the given configuration.
func New(config Config) *Gate {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	if config.Now == nil {
		config.Now = time.Now
	}

	return &Gate{
		store:       config.Store,
		directory:   config.Directory,
		credentials: config.Credentials,
		engine:      config.Engine,
		logger:      config.Logger.With("module", "gate"),
		now:         config.Now,
	}
}

// Evaluate matches one inbound event against the organization's active
// workflows and starts an execution per admitted one. Per-workflow failures
// are isolated: one misconfigured workflow never blocks the others.
func (g *Gate) Evaluate(ctx context.Context, event models.TriggerEvent) ([]Result, error) {
	workflows, err := g.store.Workflows().ActiveWorkflows(ctx, event.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active workflows: %w", err)
	}

	if len(workflows) == 0 {
		return nil, nil
	}

	contact, err := g.directory.GetContact(ctx, event.OrganizationID, event.ContactID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contact %s: %w", event.ContactID, err)
	}

	var results []Result

	for _, workflow := range workflows {
		result := g.evaluateWorkflow(ctx, workflow, event, contact)
		if result.Reason == ReasonTriggerMismatch {
			continue
		}

		results = append(results, result)
	}

	return results, nil
}

func (g *Gate) evaluateWorkflow(ctx context.Context, workflow *models.Workflow, event models.TriggerEvent, contact *models.Contact) Result {
	trigger, err := workflow.TriggerNode()
	if err != nil {
		g.logger.WarnContext(ctx, "Workflow has no usable trigger node",
			"workflow_id", workflow.ID, "error", err)

		return Result{WorkflowID: workflow.ID, Reason: ReasonInvalidWorkflow}
	}

	var config models.TriggerConfig
	if err := trigger.DecodeConfig(&config); err != nil {
		g.logger.WarnContext(ctx, "Failed to decode trigger config",
			"workflow_id", workflow.ID, "node_id", trigger.ID, "error", err)

		return Result{WorkflowID: workflow.ID, Reason: ReasonInvalidWorkflow}
	}

	if !Matches(config, event, contact) {
		return Result{WorkflowID: workflow.ID, Reason: ReasonTriggerMismatch}
	}

	if reason := g.admissionDenied(ctx, workflow, event.ContactID); reason != "" {
		g.logger.InfoContext(ctx, "Event matched but admission denied",
			"workflow_id", workflow.ID, "contact_id", event.ContactID, "reason", reason)

		return Result{WorkflowID: workflow.ID, Reason: reason}
	}

	credentials := g.resolveCredentials(ctx, event.OrganizationID)

	execution, err := g.engine.Start(ctx, workflow, contact, credentials, event.Type)
	if err != nil {
		g.logger.ErrorContext(ctx, "Failed to start execution",
			"workflow_id", workflow.ID, "contact_id", event.ContactID, "error", err)

		return Result{WorkflowID: workflow.ID, Reason: ReasonStartFailed}
	}

	return Result{WorkflowID: workflow.ID, Admitted: true, ExecutionID: execution.ID}
}

// admissionDenied applies the workflow's re-entry rules to the contact's
// execution history. An empty return admits.
func (g *Gate) admissionDenied(ctx context.Context, workflow *models.Workflow, contactID string) string {
	history, err := g.store.Executions().ExecutionsByWorkflowAndContact(ctx, workflow.ID, contactID)
	if err != nil {
		g.logger.ErrorContext(ctx, "Failed to load execution history, denying admission",
			"workflow_id", workflow.ID, "contact_id", contactID, "error", err)

		return ReasonStartFailed
	}

	var terminal int

	for _, execution := range history {
		if !execution.Status.IsTerminal() {
			// One live run per contact per workflow, re-entry or not.
			return ReasonAlreadyActive
		}

		terminal++
	}

	if terminal == 0 {
		return ""
	}

	if !workflow.Settings.AllowReentry {
		return ReasonReentryDenied
	}

	if limit := workflow.Settings.MaxExecutionsPerContact; limit > 0 && terminal >= limit {
		return ReasonExecutionCap
	}

	return ""
}

func (g *Gate) resolveCredentials(ctx context.Context, organizationID string) models.ChannelCredentials {
	if g.credentials == nil {
		return models.ChannelCredentials{}
	}

	credentials, err := g.credentials.CredentialsForOrganization(ctx, organizationID)
	if err != nil {
		g.logger.WarnContext(ctx, "Failed to resolve channel credentials",
			"organization_id", organizationID, "error", err)

		return models.ChannelCredentials{}
	}

	return credentials
}

// Matches reports whether a trigger predicate accepts an event. Date-time
// triggers never match here; only the scheduler fires them.
func Matches(config models.TriggerConfig, event models.TriggerEvent, contact *models.Contact) bool {
	if config.EventType != event.Type {
		return false
	}

	switch event.Type {
	case models.EventDateTime:
		return false
	case models.EventTagApplied:
		return config.TagID == "" || config.TagID == event.TagID
	case models.EventFieldChanged:
		if config.FieldName != "" && config.FieldName != event.FieldName {
			return false
		}

		return config.FieldValue == "" || config.FieldValue == event.FieldValue
	case models.EventMessageReceived, models.EventContactReplied, models.EventContactCreated, models.EventWebhookReceived:
		// Pass-through: the event type itself is the predicate. An optional
		// tag filter narrows to contacts already carrying the tag.
		return config.TagID == "" || (contact != nil && contact.HasTag(config.TagID))
	default:
		return false
	}
}
