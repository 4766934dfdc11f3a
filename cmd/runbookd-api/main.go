package main

import (
	"context"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/runbookd/runbookd/pkg/cmd"
	"github.com/runbookd/runbookd/pkg/log"
	"github.com/runbookd/runbookd/pkg/models"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "runbookd-api",
		Usage:                 "Serve the runbook hook and operations API",
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
				Name:    "runbooks-dir",
				Usage:   "Directory containing runbook definitions",
				Value:   "./runbooks",
				Sources: cli.EnvVars("RUNBOOKS_DIR"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Audit store URL (file://dir or memory://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for shared idempotency keys (in-memory if unset)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "default-mode",
				Usage:   "Execution mode for definitions that do not set one",
				Value:   string(models.ExecutionModeSupervised),
				Sources: cli.EnvVars("DEFAULT_EXECUTION_MODE"),
			},
			&cli.DurationFlag{
				Name:    "approval-timeout",
				Usage:   "Approval timeout before critical/high runs auto-approve (0 disables)",
				Value:   time.Hour,
				Sources: cli.EnvVars("APPROVAL_TIMEOUT"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Sources: cli.EnvVars("TRACING_ENABLED"),
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

			logger.InfoContext(ctx, "Initializing runbookd API")

			core, err := cmd.NewCore(ctx, cmd.CoreOptions{
				ServiceName:      "runbookd-api",
				RunbooksDir:      command.String("runbooks-dir"),
				DatabaseURL:      command.String("database-url"),
				EventBusProvider: command.String("event-bus"),
				RedisURL:         command.String("redis-url"),
				DefaultMode:      models.ExecutionMode(command.String("default-mode")),
				ApprovalTimeout:  command.Duration("approval-timeout"),
				TracingEnabled:   command.Bool("tracing"),
			}, logger)
			if err != nil {
				return err
			}
			defer core.Close(ctx)

			return NewAPI(core, logger).Start(ctx, command.Int("port"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
