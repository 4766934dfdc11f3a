package main

import (
	"context"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/runbookd/runbookd/pkg/log"
	"github.com/runbookd/runbookd/pkg/registry"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate runbook definitions and report findings",
		ArgsUsage: "[name]",
		Flags:     []cli.Flag{runbooksDirFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			reg := registry.NewRegistry(command.String("runbooks-dir"), "", log.WithModule("cli"))

			name := command.Args().First()

			findings, err := reg.Validate(name)
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}

			checked := len(reg.List())
			if name != "" {
				checked = 1
			}

			if len(findings) == 0 {
				fmt.Printf("OK: %d definition(s) checked, no findings\n", checked)
				return nil
			}

			for _, finding := range findings {
				fmt.Printf("%s: %s\n", finding.Definition, finding.Message)
			}

			return fmt.Errorf("%d finding(s) across %d definition(s)", len(findings), checked)
		},
	}
}
