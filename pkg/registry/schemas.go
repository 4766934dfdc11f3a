package registry

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/runbookd/runbookd/pkg/models"
)

// Per-type JSON Schemas for trigger blocks. Validation runs against the
// trigger's field map so a manifest missing a required field surfaces as a
// finding instead of silently never matching.
var triggerSchemas = map[models.TriggerType]map[string]any{
	models.TriggerTypeManual: {
		"type": "object",
	},
	models.TriggerTypeWebhook: {
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "minLength": 1, "pattern": "^/"},
		},
		"required": []string{"path"},
	},
	models.TriggerTypePubSub: {
		"type": "object",
		"properties": map[string]any{
			"topic":     map[string]any{"type": "string", "minLength": 1},
			"condition": map[string]any{"type": "string"},
		},
		"required": []string{"topic"},
	},
	models.TriggerTypeCron: {
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []string{"expression"},
	},
	models.TriggerTypePeripheral: {
		"type": "object",
		"properties": map[string]any{
			"board":     map[string]any{"type": "string", "minLength": 1},
			"signal":    map[string]any{"type": "string", "minLength": 1},
			"condition": map[string]any{"type": "string"},
		},
		"required": []string{"board", "signal"},
	},
}

func validateTriggerSchema(trigger models.Trigger) []string {
	schema, ok := triggerSchemas[trigger.Type]
	if !ok {
		return []string{fmt.Sprintf("unknown trigger type %q", trigger.Type)}
	}

	doc := map[string]any{}

	setIfPresent := func(key, value string) {
		if value != "" {
			doc[key] = value
		}
	}
	setIfPresent("path", trigger.Path)
	setIfPresent("topic", trigger.Topic)
	setIfPresent("expression", trigger.Expression)
	setIfPresent("board", trigger.Board)
	setIfPresent("signal", trigger.Signal)
	setIfPresent("condition", trigger.Condition)

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return []string{fmt.Sprintf("schema validation failed: %v", err)}
	}

	var msgs []string
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}

	return msgs
}
