package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_CleanDefinition(t *testing.T) {
	root := t.TempDir()
	writeRunbook(t, root, "restart-db", validManifest, validSteps)

	reg := newTestRegistry(t, root)

	findings, err := reg.Validate("restart-db")
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestValidate_UnknownName(t *testing.T) {
	reg := newTestRegistry(t, t.TempDir())

	_, err := reg.Validate("ghost")
	assert.ErrorIs(t, err, ErrDefinitionNotFound)
}

func TestValidate_ReportsFindings(t *testing.T) {
	root := t.TempDir()
	writeRunbook(t, root, "sloppy", `
[runbook]
name = "sloppy"

[[triggers]]
type = "webhook"
path = "no-leading-slash"

[[triggers]]
type = "cron"
expression = "61 * * * *"

[[triggers]]
type = "pubsub"
`, "")

	reg := newTestRegistry(t, root)

	findings, err := reg.Validate("sloppy")
	require.NoError(t, err)

	messages := make([]string, 0, len(findings))
	for _, finding := range findings {
		assert.Equal(t, "sloppy", finding.Definition)
		messages = append(messages, finding.Message)
	}

	assertContainsSubstring(t, messages, "description is empty")
	assertContainsSubstring(t, messages, "no steps")
	assertContainsSubstring(t, messages, "trigger 1")
	assertContainsSubstring(t, messages, "invalid cron expression")
	assertContainsSubstring(t, messages, "topic")
}

func TestValidate_AllDefinitions(t *testing.T) {
	root := t.TempDir()
	writeRunbook(t, root, "good", validManifest, validSteps)
	writeRunbook(t, root, "stepless", `
[runbook]
name = "stepless"
description = "has everything but steps"

[[triggers]]
type = "manual"
`, "")

	reg := newTestRegistry(t, root)

	findings, err := reg.Validate("")
	require.NoError(t, err)
	require.NotEmpty(t, findings)

	for _, finding := range findings {
		assert.Equal(t, "stepless", finding.Definition)
	}
}

func assertContainsSubstring(t *testing.T, haystack []string, needle string) {
	t.Helper()

	for _, s := range haystack {
		if strings.Contains(s, needle) {
			return
		}
	}

	t.Errorf("no message contains %q in %v", needle, haystack)
}
