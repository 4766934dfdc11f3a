package registry

import (
	"fmt"

	"github.com/runbookd/runbookd/pkg/matcher"
	"github.com/runbookd/runbookd/pkg/models"
)

// Finding is a non-fatal validation issue on a loaded definition. Findings
// never prevent a definition from loading or other definitions from matching.
type Finding struct {
	Definition string `json:"definition"`
	Message    string `json:"message"`
}

// Validate checks the named definition, or every loaded definition when name
// is empty. It returns ErrDefinitionNotFound for an unknown name.
func (r *Registry) Validate(name string) ([]Finding, error) {
	var defs []*models.Definition

	if name == "" {
		defs = r.List()
	} else {
		def, err := r.Get(name)
		if err != nil {
			return nil, err
		}

		defs = []*models.Definition{def}
	}

	var findings []Finding

	for _, def := range defs {
		findings = append(findings, validateDefinition(def)...)
	}

	return findings, nil
}

func validateDefinition(def *models.Definition) []Finding {
	var findings []Finding

	add := func(format string, args ...any) {
		findings = append(findings, Finding{
			Definition: def.Name,
			Message:    fmt.Sprintf(format, args...),
		})
	}

	if def.Name == "" {
		add("definition name is empty")
	}

	if def.Description == "" {
		add("definition description is empty")
	}

	if len(def.Triggers) == 0 {
		add("definition has no triggers")
	}

	if len(def.Steps) == 0 {
		add("definition has no steps (missing or empty %s)", StepsFile)
	}

	for i, trigger := range def.Triggers {
		for _, msg := range validateTriggerSchema(trigger) {
			add("trigger %d (%s): %s", i+1, trigger.Type, msg)
		}

		if trigger.Type == models.TriggerTypeCron {
			if _, err := matcher.ParseCron(trigger.Expression); err != nil {
				add("trigger %d: %v", i+1, err)
			}
		}
	}

	for i, step := range def.Steps {
		if step.Number != i+1 {
			add("step numbering gap: expected %d, got %d", i+1, step.Number)
		}

		if step.Title == "" {
			add("step %d has an empty title", step.Number)
		}
	}

	return findings
}
