package registry

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/runbookd/runbookd/pkg/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// manifest is the parse target for runbook.toml.
type manifest struct {
	Runbook  manifestMeta     `toml:"runbook"`
	Triggers []models.Trigger `toml:"triggers"`
}

type manifestMeta struct {
	Name          string               `toml:"name"`
	Description   string               `toml:"description"`
	Version       string               `toml:"version"`
	Priority      models.Priority      `toml:"priority"`
	ExecutionMode models.ExecutionMode `toml:"execution_mode"`
	CooldownSecs  int64                `toml:"cooldown_secs"`
	MaxConcurrent int                  `toml:"max_concurrent"`
}

func parseManifest(data []byte, defaultMode models.ExecutionMode) (*models.Definition, error) {
	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	def := &models.Definition{
		Name:          m.Runbook.Name,
		Description:   m.Runbook.Description,
		Version:       m.Runbook.Version,
		Priority:      m.Runbook.Priority,
		ExecutionMode: m.Runbook.ExecutionMode,
		CooldownSecs:  m.Runbook.CooldownSecs,
		MaxConcurrent: m.Runbook.MaxConcurrent,
		Triggers:      m.Triggers,
	}

	if def.Version == "" {
		def.Version = models.DefaultVersion
	}

	if def.Priority == "" {
		def.Priority = models.PriorityNormal
	}

	if def.ExecutionMode == "" {
		def.ExecutionMode = defaultMode
	}

	if def.MaxConcurrent == 0 {
		def.MaxConcurrent = models.DefaultMaxConcurrent
	}

	if err := validate.Struct(def); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	return def, nil
}
