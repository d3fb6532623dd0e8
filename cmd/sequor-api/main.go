package main

import (
	"context"
	"os"

	"github.com/sequorhq/sequor/pkg/adapters"
	"github.com/sequorhq/sequor/pkg/cmd"
	"github.com/sequorhq/sequor/pkg/engine"
	"github.com/sequorhq/sequor/pkg/execlog"
	"github.com/sequorhq/sequor/pkg/gate"
	"github.com/sequorhq/sequor/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "sequor-api",
		Usage:                 "Manage workflows, schedules and executions over HTTP",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel, none)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "directory-url",
				Usage:    "Base URL of the contact directory service",
				Required: true,
				Sources:  cli.EnvVars("DIRECTORY_URL"),
			},
			&cli.StringFlag{
				Name:    "directory-api-key",
				Usage:   "API key for the contact directory service",
				Sources: cli.EnvVars("DIRECTORY_API_KEY"),
			},
			&cli.StringFlag{
				Name:     "gateway-url",
				Usage:    "Base URL of the messaging gateway service",
				Required: true,
				Sources:  cli.EnvVars("GATEWAY_URL"),
			},
			&cli.StringFlag{
				Name:    "completions-url",
				Usage:   "Base URL of the OpenAI-compatible completions API",
				Sources: cli.EnvVars("COMPLETIONS_URL"),
			},
			&cli.StringFlag{
				Name:    "completions-api-key",
				Usage:   "API key for the completions API",
				Sources: cli.EnvVars("COMPLETIONS_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Sequor API")

			store := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "sequor-api", logger)

			defer func() {
				if eventBus != nil {
					if err := eventBus.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}
			}()

			directory := adapters.NewHTTPDirectoryService(
				command.String("directory-url"), command.String("directory-api-key"), logger)
			gateway := adapters.NewHTTPMessagingGateway(command.String("gateway-url"), logger)
			auditLog := execlog.NewLogger(store.ExecutionLogs(), logger)

			engineConfig := engine.Config{
				Store:       store,
				Gateway:     gateway,
				Directory:   directory,
				Credentials: directory,
				AuditLog:    auditLog,
				EventBus:    eventBus,
				Logger:      logger,
			}

			if completionsURL := command.String("completions-url"); completionsURL != "" {
				engineConfig.Completions = adapters.NewHTTPCompletionProvider(
					completionsURL, command.String("completions-api-key"), logger)
			}

			eventGate := gate.New(gate.Config{
				Store:       store,
				Directory:   directory,
				Credentials: directory,
				Engine:      engine.New(engineConfig),
				Logger:      logger,
			})

			api := NewAPI(logger, store, eventGate, auditLog)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
