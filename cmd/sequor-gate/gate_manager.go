// Package main provides the Sequor gate service: it consumes inbound
// contact events from the Redis queue and runs them through the trigger gate.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sequorhq/sequor/pkg/adapters"
	"github.com/sequorhq/sequor/pkg/engine"
	"github.com/sequorhq/sequor/pkg/eventbus"
	"github.com/sequorhq/sequor/pkg/events"
	"github.com/sequorhq/sequor/pkg/execlog"
	"github.com/sequorhq/sequor/pkg/gate"
	"github.com/sequorhq/sequor/pkg/models"
	"github.com/sequorhq/sequor/pkg/persistence"
	"github.com/sequorhq/sequor/pkg/receivers/queue"
	"github.com/sequorhq/sequor/pkg/tracer"
	cli "github.com/urfave/cli/v3"
)

// GateManager ties the queue receiver to the trigger gate.
type GateManager struct {
	receiver *queue.Receiver
	gate     *gate.Gate
	bus      eventbus.EventBus
	logger   *slog.Logger
}

// NewGateManager wires the gate service from CLI configuration.
func NewGateManager(ctx context.Context, command *cli.Command, store persistence.Persistence, bus eventbus.EventBus, logger *slog.Logger) (*GateManager, error) {
	if _, err := tracer.NewTracer(ctx, "sequor-gate"); err != nil {
		logger.WarnContext(ctx, "Tracing disabled", "error", err)
	}

	directory := adapters.NewHTTPDirectoryService(
		command.String("directory-url"), command.String("directory-api-key"), logger)
	gateway := adapters.NewHTTPMessagingGateway(command.String("gateway-url"), logger)

	engineConfig := engine.Config{
		Store:       store,
		Gateway:     gateway,
		Directory:   directory,
		Credentials: directory,
		AuditLog:    execlog.NewLogger(store.ExecutionLogs(), logger),
		EventBus:    bus,
		Logger:      logger,
	}

	if completionsURL := command.String("completions-url"); completionsURL != "" {
		engineConfig.Completions = adapters.NewHTTPCompletionProvider(
			completionsURL, command.String("completions-api-key"), logger)
	}

	workflowEngine := engine.New(engineConfig)

	eventGate := gate.New(gate.Config{
		Store:       store,
		Directory:   directory,
		Credentials: directory,
		Engine:      workflowEngine,
		Logger:      logger,
	})

	receiver, err := queue.NewReceiver(queue.Config{
		Addr:     command.String("redis-addr"),
		Password: command.String("redis-password"),
		DB:       command.Int("redis-db"),
		Queue:    command.String("event-queue"),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue receiver: %w", err)
	}

	return &GateManager{
		receiver: receiver,
		gate:     eventGate,
		bus:      bus,
		logger:   logger,
	}, nil
}

// Run consumes events until a shutdown signal arrives.
func (m *GateManager) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := m.receiver.Start(ctx, m.handleEvent)
	if err != nil {
		return fmt.Errorf("failed to start queue receiver: %w", err)
	}

	m.logger.InfoContext(ctx, "Sequor Gate started")

	<-ctx.Done()

	m.logger.InfoContext(ctx, "Shutting down Sequor Gate")

	return m.receiver.Stop(context.Background())
}

func (m *GateManager) handleEvent(ctx context.Context, event models.TriggerEvent) error {
	results, err := m.gate.Evaluate(ctx, event)
	if err != nil {
		return err
	}

	for _, result := range results {
		m.logger.InfoContext(ctx, "Gate verdict",
			"event_id", event.ID, "workflow_id", result.WorkflowID,
			"admitted", result.Admitted, "reason", result.Reason,
			"execution_id", result.ExecutionID)
	}

	if m.bus != nil {
		published := events.ContactEvent{
			BaseEvent: events.BaseEvent{
				ID:        m.bus.GenerateID(),
				Type:      events.ContactEventReceived,
				Timestamp: event.OccurredAt,
			},
			TriggerEvent: event,
		}

		if err := m.bus.Publish(ctx, event.OrganizationID, published); err != nil {
			m.logger.WarnContext(ctx, "Failed to publish contact event", "error", err)
		}
	}

	return nil
}
