package main

import (
	"context"
	"fmt"
	"strings"

	cli "github.com/urfave/cli/v3"

	"github.com/runbookd/runbookd/pkg/log"
	"github.com/runbookd/runbookd/pkg/models"
	"github.com/runbookd/runbookd/pkg/registry"
)

func NewShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a runbook definition with its full step sequence",
		ArgsUsage: "<name>",
		Flags:     []cli.Flag{runbooksDirFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			name := command.Args().First()
			if name == "" {
				return fmt.Errorf("usage: runbookd show <name>")
			}

			reg := registry.NewRegistry(command.String("runbooks-dir"), "", log.WithModule("cli"))

			def, err := reg.Get(name)
			if err != nil {
				return fmt.Errorf("show %q: %w", name, err)
			}

			fmt.Printf("Runbook: %s (v%s)\n", def.Name, def.Version)

			if def.Description != "" {
				fmt.Printf("%s\n", def.Description)
			}

			fmt.Printf("\nPriority: %s\n", def.Priority)
			fmt.Printf("Execution mode: %s\n", def.ExecutionMode)
			fmt.Printf("Max concurrent: %d\n", def.MaxConcurrent)

			if def.CooldownSecs > 0 {
				fmt.Printf("Cooldown: %ds\n", def.CooldownSecs)
			}

			fmt.Println("\nTriggers:")
			for _, trigger := range def.Triggers {
				fmt.Printf("  - %s\n", trigger)

				if trigger.Condition != "" {
					fmt.Printf("    condition: %s\n", trigger.Condition)
				}
			}

			fmt.Printf("\nSteps (%d):\n", len(def.Steps))
			for _, step := range def.Steps {
				marker := " "
				if step.RequiresConfirmation {
					marker = "!"
				}

				fmt.Printf("  %s %d. %s\n", marker, step.Number, step.Title)

				if len(step.SuggestedTools) > 0 {
					fmt.Printf("      tools: %s\n", strings.Join(step.SuggestedTools, ", "))
				}
			}

			if hasConfirmationSteps(def.Steps) {
				fmt.Println("\n(!) steps require confirmation before execution")
			}

			return nil
		},
	}
}

func hasConfirmationSteps(steps []models.Step) bool {
	for _, step := range steps {
		if step.RequiresConfirmation {
			return true
		}
	}

	return false
}
