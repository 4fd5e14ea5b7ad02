// Package main provides the ticketd API server implementation.
package main

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/redis/go-redis/v9"

	"github.com/confops/ticketd/pkg/eventbus"
	"github.com/confops/ticketd/pkg/persistence"
	"github.com/confops/ticketd/pkg/storage"
	"github.com/confops/ticketd/pkg/targets"
	"github.com/confops/ticketd/pkg/web"
	"github.com/confops/ticketd/pkg/workflow"
)

const labelCacheTTL = 5 * time.Minute

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	store       *storage.Store
	eventBus    eventbus.EventBus
	redisURL    string
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	store *storage.Store,
	eventBus eventbus.EventBus,
	redisURL string,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		store:       store,
		eventBus:    eventBus,
		redisURL:    redisURL,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) resolver() *targets.Resolver {
	resolver := targets.NewResolver(a.persistence.Directory(), a.logger)

	if a.redisURL != "" {
		opts, err := redis.ParseURL(a.redisURL)
		if err != nil {
			panic(err)
		}

		resolver = resolver.WithCache(redis.NewClient(opts), labelCacheTTL)
	}

	return resolver
}

func (a *API) App() *fiber.App {
	resolver := a.resolver()
	engine := workflow.NewEngine(a.persistence, resolver, a.eventBus, a.logger)
	templateService := workflow.NewTemplates(a.persistence, resolver)
	uploadService := workflow.NewUploads(a.persistence, a.store, a.logger)

	handlers := web.NewAPIHandlers(engine, templateService, uploadService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("ticketd API")
	})

	app.Get("/health", handlers.HealthCheck)

	authenticated := app.Group("/", web.RequireUser())

	tickets := authenticated.Group("/tickets")
	tickets.Get("/", handlers.GetTickets)
	tickets.Post("/", handlers.CreateTicket)
	tickets.Get("/:id", handlers.GetTicket)
	tickets.Post("/:id/steps/:stepId/form", handlers.SubmitForm)
	tickets.Post("/:id/steps/:stepId/review", handlers.SubmitReview)

	templates := authenticated.Group("/templates")
	templates.Get("/", handlers.GetTemplates)
	templates.Post("/", handlers.CreateTemplate)
	templates.Get("/:id", handlers.GetTemplate)
	templates.Post("/:id/steps", handlers.AddTemplateStep)
	templates.Get("/:id/steps/:stepId/assignable-users", handlers.GetAssignableUsers)
	templates.Get("/:id/tickets", handlers.GetTemplateTickets)
	templates.Post("/:id/steps/:stepId/fields/:fieldKey/uploads", handlers.UploadFieldFile)

	authenticated.Get("/uploads/:id", handlers.DownloadUpload)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
