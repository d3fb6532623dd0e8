package main

import (
	"context"
	"os"
	"time"

	"github.com/sequorhq/sequor/pkg/cmd"
	"github.com/sequorhq/sequor/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "sequor-scheduler",
		Usage:                 "Fire due workflow schedules and resume waiting executions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often the scheduler polls for due work",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "batch-size",
				Usage:   "Maximum schedules and executions picked up per tick",
				Value:   50,
				Sources: cli.EnvVars("BATCH_SIZE"),
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

			logger := log.WithModule("sequor-scheduler")

			logger.InfoContext(ctx, "Initializing Sequor Scheduler")

			store := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "sequor-scheduler", logger)

			defer func() {
				if eventBus != nil {
					if err := eventBus.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}
			}()

			manager := NewSchedulerManager(ctx, command, store, eventBus, logger)

			return manager.Run(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
