package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/confops/ticketd/pkg/audit"
	"github.com/confops/ticketd/pkg/cmd"
	"github.com/confops/ticketd/pkg/log"
	"github.com/confops/ticketd/pkg/otelhelper"
	"github.com/confops/ticketd/pkg/storage"
	"github.com/confops/ticketd/pkg/workflow"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "ticketd-api",
		Usage:                 "Run ticket workflows for event operations",
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
				Usage:    "Database connection URL, postgres:// or a file root",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "storage-root",
				Usage:   "Directory for uploaded file content",
				Value:   "./data/blobs",
				Sources: cli.EnvVars("STORAGE_ROOT"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, channel)",
				Value:   "channel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "expiry-schedule",
				Usage:   "Cron expression for the form deadline sweep",
				Value:   "@every 1m",
				Sources: cli.EnvVars("EXPIRY_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for label membership caching, empty disables the cache",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger.InfoContext(ctx, "Initializing ticketd API")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "ticketd-api", logger)

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			tracer, err := otelhelper.NewTracer(ctx, "ticketd-api")
			if err != nil {
				logger.WarnContext(ctx, "Tracing disabled", "error", err)
			}

			if err := audit.NewAuditor(eventBus, tracer, logger).Start(ctx); err != nil {
				return err
			}

			sweeper := workflow.NewExpirySweeper(persistence, eventBus, logger).
				WithSchedule(command.String("expiry-schedule"))
			if err := sweeper.Start(ctx); err != nil {
				return err
			}

			defer sweeper.Stop()

			api := NewAPI(
				logger,
				persistence,
				storage.NewStore(command.String("storage-root")),
				eventBus,
				command.String("redis-url"),
			)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
