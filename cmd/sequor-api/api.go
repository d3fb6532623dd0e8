// Package main provides the Sequor API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/sequorhq/sequor/pkg/execlog"
	"github.com/sequorhq/sequor/pkg/gate"
	"github.com/sequorhq/sequor/pkg/persistence"
	"github.com/sequorhq/sequor/pkg/web"
)

type API struct {
	logger   *slog.Logger
	store    persistence.Persistence
	gate     *gate.Gate
	auditLog *execlog.Logger
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, store persistence.Persistence, g *gate.Gate, auditLog *execlog.Logger) *API {
	return &API{
		logger:   logger,
		store:    store,
		gate:     g,
		auditLog: auditLog,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.store, a.gate, a.auditLog, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Sequor API")
	})

	app.Post("/events", handlers.PostEvent)

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id/status", handlers.UpdateWorkflowStatus)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)
	w.Get("/:id/schedules", handlers.GetWorkflowSchedules)
	w.Post("/:id/schedules", handlers.CreateSchedule)

	e := app.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/summary", handlers.GetExecutionSummary)
	e.Get("/:id/log", handlers.GetExecutionLog)

	app.Get("/schedules/:id", handlers.GetSchedule)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
