// Package main provides the runbookd CLI for inspecting and validating
// runbook definitions.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/runbookd/runbookd/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "runbookd",
		Usage:                 "Inspect and validate runbook definitions",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewListCommand(),
			NewShowCommand(),
			NewValidateCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))
			return ctx, nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
