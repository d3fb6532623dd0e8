// Package engine walks workflow node graphs for individual contacts. The
// engine is a synchronous interpreter: it dispatches one node at a time,
// accumulates facts on the execution, and returns once the run reaches a
// terminal state or suspends on a timer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sort"
	"time"

	"dario.cat/mergo"
	"github.com/sequorhq/sequor/pkg/eventbus"
	"github.com/sequorhq/sequor/pkg/events"
	"github.com/sequorhq/sequor/pkg/execlog"
	"github.com/sequorhq/sequor/pkg/models"
	"github.com/sequorhq/sequor/pkg/persistence"
	"github.com/sequorhq/sequor/pkg/protocol"
	"github.com/sequorhq/sequor/pkg/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrWorkflowNotExecutable = errors.New("workflow is not executable")

// Config carries the engine's collaborators. Store, Directory and AuditLog
// are required; the rest degrade gracefully when absent.
type Config struct {
	Store       persistence.Persistence
	Gateway     protocol.MessagingGateway
	Directory   protocol.DirectoryService
	Completions protocol.CompletionProvider
	HTTPClient  protocol.HTTPDoer
	Credentials protocol.CredentialsResolver
	RetryPolicy *retry.Policy
	AuditLog    *execlog.Logger
	EventBus    eventbus.EventBus
	Logger      *slog.Logger

	// Now and Random default to the real clock and math/rand; tests inject
	// fixed values for deterministic delays and split draws.
	Now    func() time.Time
	Random func() float64
}

// Engine executes workflows node by node for one contact at a time.
type Engine struct {
	store       persistence.Persistence
	gateway     protocol.MessagingGateway
	directory   protocol.DirectoryService
	completions protocol.CompletionProvider
	httpClient  protocol.HTTPDoer
	credentials protocol.CredentialsResolver
	retryPolicy *retry.Policy
	auditLog    *execlog.Logger
	bus         eventbus.EventBus
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time
	random      func() float64
}

// New creates an engine from the given configuration, filling in defaults
// for the optional collaborators.
func New(config Config) *Engine {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	if config.Now == nil {
		config.Now = time.Now
	}

	if config.Random == nil {
		config.Random = rand.Float64
	}

	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	if config.RetryPolicy == nil {
		config.RetryPolicy = retry.NewPolicy(retry.DefaultConfig())
	}

	return &Engine{
		store:       config.Store,
		gateway:     config.Gateway,
		directory:   config.Directory,
		completions: config.Completions,
		httpClient:  config.HTTPClient,
		credentials: config.Credentials,
		retryPolicy: config.RetryPolicy,
		auditLog:    config.AuditLog,
		bus:         config.EventBus,
		tracer:      otel.Tracer("sequor.engine"),
		logger:      config.Logger.With("module", "engine"),
		now:         config.Now,
		random:      config.Random,
	}
}

// Start begins a fresh execution of the workflow for the contact, positioned
// at the trigger node, and runs it until it suspends or terminates. The
// returned execution is persisted in its final state; admission checks are
// the gate's job, not the engine's.
func (e *Engine) Start(ctx context.Context, workflow *models.Workflow, contact *models.Contact, credentials models.ChannelCredentials, triggerType models.EventType) (*models.Execution, error) {
	if !workflow.IsExecutable() {
		return nil, fmt.Errorf("%w: workflow %s is %s", ErrWorkflowNotExecutable, workflow.ID, workflow.Status)
	}

	trigger, err := workflow.TriggerNode()
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", workflow.ID, err)
	}

	execution := models.NewExecution(workflow, contact.ID, trigger.ID, triggerType, e.now())

	e.logger.InfoContext(ctx, "Starting execution",
		"execution_id", execution.ID, "workflow_id", workflow.ID, "contact_id", contact.ID)

	if err := e.saveExecution(ctx, execution); err != nil {
		return nil, err
	}

	e.publish(ctx, workflow.ID, events.ExecutionStarted{
		BaseEvent:   e.baseEvent(events.ExecutionStartedEvent, workflow.ID),
		ExecutionID: execution.ID,
		ContactID:   contact.ID,
		TriggerType: triggerType,
	})

	if err := e.run(ctx, workflow, execution, contact, credentials); err != nil {
		return execution, err
	}

	return execution, nil
}

// Resume continues a previously suspended execution. The caller has already
// claimed the record (status flipped back to running); Resume loads the
// workflow and contact, then either re-dispatches the current node when a
// retry is pending or advances past the node that caused the suspension.
func (e *Engine) Resume(ctx context.Context, execution *models.Execution) error {
	workflow, err := e.store.Workflows().WorkflowByID(ctx, execution.WorkflowID)
	if err != nil {
		return fmt.Errorf("failed to load workflow %s: %w", execution.WorkflowID, err)
	}

	contact, err := e.directory.GetContact(ctx, execution.OrganizationID, execution.ContactID)
	if err != nil {
		return e.fail(ctx, execution, execution.CurrentNodeID,
			fmt.Sprintf("failed to load contact %s: %v", execution.ContactID, err))
	}

	credentials := e.resolveCredentials(ctx, execution.OrganizationID)

	e.logger.InfoContext(ctx, "Resuming execution",
		"execution_id", execution.ID, "workflow_id", workflow.ID, "node_id", execution.CurrentNodeID)

	e.publish(ctx, workflow.ID, events.ExecutionResumed{
		BaseEvent:   e.baseEvent(events.ExecutionResumedEvent, workflow.ID),
		ExecutionID: execution.ID,
		NodeID:      execution.CurrentNodeID,
	})

	if !execution.PendingRetry() {
		// The current node is the delay or wait_until that suspended the
		// run; it already did its work, so move to its successor.
		next := e.firstOutgoing(workflow, execution.CurrentNodeID)
		if next == "" {
			return e.complete(ctx, execution)
		}

		execution.Advance(next, e.now())
	}

	return e.run(ctx, workflow, execution, contact, credentials)
}

// run is the interpreter loop. Every iteration dispatches the current node
// and either advances along one edge, suspends, or terminates. Edge
// exhaustion is normal completion.
func (e *Engine) run(ctx context.Context, workflow *models.Workflow, execution *models.Execution, contact *models.Contact, credentials models.ChannelCredentials) error {
	for {
		node, ok := workflow.NodeByID(execution.CurrentNodeID)
		if !ok {
			return e.fail(ctx, execution, execution.CurrentNodeID,
				fmt.Sprintf("node %s not found in workflow %s", execution.CurrentNodeID, workflow.ID))
		}

		e.auditLog.LogNodeStart(ctx, execution.ID, node, map[string]any{"path_length": len(execution.Path)})

		result := e.executeNode(ctx, workflow, execution, node, contact, credentials)

		if result.patch != nil {
			e.applyPatch(execution, node.ID, result.patch)
		}

		if !result.success {
			e.auditLog.LogNodeFailure(ctx, execution.ID, node, result.err, "")

			if result.allowRetry {
				decision := e.retryPolicy.EvaluateRetry(errors.New(result.err), execution.RetryCount)
				if decision.ShouldRetry {
					execution.MarkRetryWait(node.ID, result.err, *decision.NextAttemptAt, e.now())

					e.logger.WarnContext(ctx, "Node failed, retry scheduled",
						"execution_id", execution.ID, "node_id", node.ID,
						"retry_count", execution.RetryCount, "next_attempt_at", decision.NextAttemptAt,
						"error", result.err)

					e.publish(ctx, workflow.ID, events.ExecutionWaiting{
						BaseEvent:   e.baseEvent(events.ExecutionWaitingEvent, workflow.ID),
						ExecutionID: execution.ID,
						NodeID:      node.ID,
						WaitUntil:   *decision.NextAttemptAt,
					})

					return e.saveExecution(ctx, execution)
				}
			}

			if workflow.Settings.ContinueOnError {
				execution.RecordFact(node.ID, "last_error", result.err, e.now())

				e.logger.WarnContext(ctx, "Node failed, continuing past it",
					"execution_id", execution.ID, "node_id", node.ID, "error", result.err)

				next := e.nextNode(workflow, node, result)
				if next == "" {
					return e.complete(ctx, execution)
				}

				execution.Advance(next, e.now())

				continue
			}

			return e.fail(ctx, execution, node.ID, result.err)
		}

		if result.skipReason != "" {
			e.auditLog.LogNodeSkipped(ctx, execution.ID, node, result.skipReason)
		} else {
			e.auditLog.LogNodeComplete(ctx, execution.ID, node, result.patch)
		}

		if execution.PendingRetry() {
			execution.ClearError(e.now())
		}

		if result.waitUntil != nil {
			return e.suspend(ctx, execution, node, *result.waitUntil)
		}

		if result.stop {
			return e.complete(ctx, execution)
		}

		next := e.nextNode(workflow, node, result)
		if next == "" {
			return e.complete(ctx, execution)
		}

		execution.Advance(next, e.now())
	}
}

// executeNode dispatches one node inside a span. The switch is exhaustive
// over the node type set; an unknown type is a configuration failure, not a
// silent skip.
func (e *Engine) executeNode(ctx context.Context, workflow *models.Workflow, execution *models.Execution, node *models.Node, contact *models.Contact, credentials models.ChannelCredentials) dispatchResult {
	ctx, span := e.tracer.Start(ctx, "engine.execute_node", trace.WithAttributes(
		attribute.String("workflow.id", workflow.ID),
		attribute.String("execution.id", execution.ID),
		attribute.String("node.id", node.ID),
		attribute.String("node.type", string(node.Type)),
	))
	defer span.End()

	var result dispatchResult

	switch node.Type {
	case models.NodeTypeTrigger:
		// Entry marker only; the gate already matched the event.
		result = succeeded()
	case models.NodeTypeMessage:
		result = e.executeMessage(ctx, execution, node, contact, credentials)
	case models.NodeTypeDelay:
		result = e.executeDelay(node)
	case models.NodeTypeWaitUntil:
		result = e.executeWaitUntil(node)
	case models.NodeTypeCondition:
		result = e.executeCondition(ctx, execution, node, contact)
	case models.NodeTypeSplit:
		result = e.executeSplit(ctx, execution, node)
	case models.NodeTypeAction:
		result = e.executeAction(ctx, execution, node, contact)
	case models.NodeTypeWebhook:
		result = e.executeWebhook(ctx, execution, node, contact)
	case models.NodeTypeAI:
		result = e.executeAI(ctx, execution, node, contact)
	case models.NodeTypeGoal:
		result = e.executeGoal(ctx, workflow, execution, node, contact)
	default:
		result = failed(fmt.Sprintf("%v: %q", models.ErrUnknownNodeType, node.Type))
	}

	if !result.success {
		span.SetStatus(codes.Error, result.err)
	}

	return result
}

// nextNode resolves the follow-up node: an explicit branch target when the
// node chose one, otherwise the node's first outgoing edge. Multiple
// unhandled edges are not fanned out; the first one in definition order wins.
func (e *Engine) nextNode(workflow *models.Workflow, node *models.Node, result dispatchResult) string {
	if len(result.nextNodes) > 0 {
		return result.nextNodes[0]
	}

	if result.handle != "" {
		if edge, ok := workflow.EdgeByHandle(node.ID, result.handle); ok {
			return edge.Target
		}

		// A branch with no edge wired to it ends the run normally.
		return ""
	}

	return e.firstOutgoing(workflow, node.ID)
}

func (e *Engine) firstOutgoing(workflow *models.Workflow, nodeID string) string {
	edges := workflow.OutgoingEdges(nodeID)
	if len(edges) == 0 {
		return ""
	}

	if len(edges) > 1 {
		e.logger.Debug("Node has multiple outgoing edges, following the first",
			"node_id", nodeID, "edges", len(edges))
	}

	return edges[0].Target
}

// applyPatch records each patch entry as a fact. When both the previous and
// the new value for a key are maps they are deep-merged, so nodes can extend
// structured facts instead of clobbering them.
func (e *Engine) applyPatch(execution *models.Execution, nodeID string, patch map[string]any) {
	now := e.now()

	keys := make([]string, 0, len(patch))
	for key := range patch {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		value := patch[key]

		if previous, ok := execution.FactValue(key); ok {
			previousMap, okPrevious := previous.(map[string]any)
			valueMap, okValue := value.(map[string]any)

			if okPrevious && okValue {
				merged := make(map[string]any, len(previousMap))
				if err := mergo.Map(&merged, previousMap); err == nil {
					if err := mergo.Map(&merged, valueMap, mergo.WithOverride); err == nil {
						value = merged
					}
				}
			}
		}

		execution.RecordFact(nodeID, key, value, now)
	}
}

func (e *Engine) suspend(ctx context.Context, execution *models.Execution, node *models.Node, until time.Time) error {
	execution.MarkWaiting(until, e.now())

	e.logger.InfoContext(ctx, "Execution waiting",
		"execution_id", execution.ID, "node_id", node.ID, "wait_until", until)

	e.publish(ctx, execution.WorkflowID, events.ExecutionWaiting{
		BaseEvent:   e.baseEvent(events.ExecutionWaitingEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		NodeID:      node.ID,
		WaitUntil:   until,
	})

	return e.saveExecution(ctx, execution)
}

func (e *Engine) complete(ctx context.Context, execution *models.Execution) error {
	execution.MarkCompleted(e.now())

	e.logger.InfoContext(ctx, "Execution completed",
		"execution_id", execution.ID, "workflow_id", execution.WorkflowID,
		"path_length", len(execution.Path))

	e.publish(ctx, execution.WorkflowID, events.ExecutionCompleted{
		BaseEvent:   e.baseEvent(events.ExecutionCompletedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		ContactID:   execution.ContactID,
		Duration:    execution.CompletedAt.Sub(execution.CreatedAt),
	})

	return e.saveExecution(ctx, execution)
}

func (e *Engine) fail(ctx context.Context, execution *models.Execution, nodeID, message string) error {
	execution.MarkFailed(nodeID, message, e.now())

	e.logger.ErrorContext(ctx, "Execution failed",
		"execution_id", execution.ID, "workflow_id", execution.WorkflowID,
		"node_id", nodeID, "error", message)

	e.publish(ctx, execution.WorkflowID, events.ExecutionFailed{
		BaseEvent:   e.baseEvent(events.ExecutionFailedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		NodeID:      nodeID,
		Error:       message,
	})

	return e.saveExecution(ctx, execution)
}

func (e *Engine) saveExecution(ctx context.Context, execution *models.Execution) error {
	if err := e.store.Executions().SaveExecution(ctx, execution); err != nil {
		return fmt.Errorf("failed to save execution %s: %w", execution.ID, err)
	}

	return nil
}

func (e *Engine) resolveCredentials(ctx context.Context, organizationID string) models.ChannelCredentials {
	if e.credentials == nil {
		return models.ChannelCredentials{}
	}

	credentials, err := e.credentials.CredentialsForOrganization(ctx, organizationID)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to resolve channel credentials, messages will be skipped",
			"organization_id", organizationID, "error", err)

		return models.ChannelCredentials{}
	}

	return credentials
}

func (e *Engine) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	var id string
	if e.bus != nil {
		id = e.bus.GenerateID()
	}

	return events.BaseEvent{
		ID:         id,
		Type:       eventType,
		Timestamp:  e.now(),
		WorkflowID: workflowID,
	}
}

func (e *Engine) publish(ctx context.Context, key string, event events.Event) {
	if e.bus == nil {
		return
	}

	if err := e.bus.Publish(ctx, key, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}
