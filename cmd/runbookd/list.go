package main

import (
	"context"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/runbookd/runbookd/pkg/log"
	"github.com/runbookd/runbookd/pkg/registry"
)

func runbooksDirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "runbooks-dir",
		Usage:   "Directory containing runbook definitions",
		Value:   "./runbooks",
		Sources: cli.EnvVars("RUNBOOKS_DIR"),
	}
}

func NewListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List loaded runbook definitions and their triggers",
		Flags:   []cli.Flag{runbooksDirFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			reg := registry.NewRegistry(command.String("runbooks-dir"), "", log.WithModule("cli"))

			defs := reg.List()
			if len(defs) == 0 {
				fmt.Println("No runbook definitions found.")
				return nil
			}

			totalTriggers := 0
			for _, def := range defs {
				fmt.Printf("\nRunbook: %s (v%s)\n", def.Name, def.Version)
				fmt.Printf("  Priority: %s  Mode: %s  Steps: %d\n",
					def.Priority, def.ExecutionMode, len(def.Steps))

				if def.Description != "" {
					fmt.Printf("  %s\n", def.Description)
				}

				fmt.Println("  Triggers:")
				for _, trigger := range def.Triggers {
					fmt.Printf("    - %s\n", trigger)
					totalTriggers++
				}
			}

			fmt.Printf("\nTotal: %d definitions, %d triggers\n", len(defs), totalTriggers)

			return nil
		},
	}
}
