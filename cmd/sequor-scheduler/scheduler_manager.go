// Package main provides the Sequor scheduler service: the poll loop that
// fires due schedules and resumes waiting executions.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sequorhq/sequor/pkg/adapters"
	"github.com/sequorhq/sequor/pkg/engine"
	"github.com/sequorhq/sequor/pkg/eventbus"
	"github.com/sequorhq/sequor/pkg/execlog"
	"github.com/sequorhq/sequor/pkg/persistence"
	"github.com/sequorhq/sequor/pkg/scheduler"
	"github.com/sequorhq/sequor/pkg/tracer"
	cli "github.com/urfave/cli/v3"
)

// SchedulerManager runs the scheduler poll loop with signal handling.
type SchedulerManager struct {
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
}

// NewSchedulerManager wires the scheduler service from CLI configuration.
func NewSchedulerManager(ctx context.Context, command *cli.Command, store persistence.Persistence, bus eventbus.EventBus, logger *slog.Logger) *SchedulerManager {
	if _, err := tracer.NewTracer(ctx, "sequor-scheduler"); err != nil {
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

	return &SchedulerManager{
		scheduler: scheduler.New(scheduler.Config{
			Store:        store,
			Directory:    directory,
			Credentials:  directory,
			Engine:       workflowEngine,
			Logger:       logger,
			PollInterval: command.Duration("poll-interval"),
			BatchSize:    command.Int("batch-size"),
		}),
		logger: logger,
	}
}

// Run polls until a shutdown signal arrives.
func (m *SchedulerManager) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := m.scheduler.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
