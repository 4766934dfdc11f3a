package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSteps(t *testing.T) {
	doc := `# Database failover

Some intro text that is not a step.

## Prerequisites

1. This numbered item is outside the steps section.

## Steps

1. **Check replica lag** — lag must be below 10s
   - tools: psql, pg_stat
2. **Promote the replica**
   Extra body line one.
   - a plain sub-bullet stays in the body
   - requires_confirmation: true
3. Verify application connectivity

## Rollback

1. This one is past the steps section.
`

	steps := ParseSteps(doc)
	require.Len(t, steps, 3)

	assert.Equal(t, 1, steps[0].Number)
	assert.Equal(t, "Check replica lag", steps[0].Title)
	assert.Equal(t, "lag must be below 10s", steps[0].Body)
	assert.Equal(t, []string{"psql", "pg_stat"}, steps[0].SuggestedTools)
	assert.False(t, steps[0].RequiresConfirmation)

	assert.Equal(t, "Promote the replica", steps[1].Title)
	assert.Contains(t, steps[1].Body, "Extra body line one.")
	assert.Contains(t, steps[1].Body, "a plain sub-bullet stays in the body")
	assert.True(t, steps[1].RequiresConfirmation)

	// Without bold text the whole line is the title.
	assert.Equal(t, "Verify application connectivity", steps[2].Title)
	assert.Empty(t, steps[2].Body)
}

func TestParseSteps_NoStepsSection(t *testing.T) {
	assert.Empty(t, ParseSteps("# Doc\n\n1. numbered but no steps heading\n"))
	assert.Empty(t, ParseSteps(""))
}

func TestParseSteps_HeadingCaseInsensitive(t *testing.T) {
	steps := ParseSteps("## steps\n\n1. lower case heading works\n")
	require.Len(t, steps, 1)
	assert.Equal(t, "lower case heading works", steps[0].Title)
}

func TestParseSteps_NumbersAssignedSequentially(t *testing.T) {
	// Author numbering is cosmetic; parsed steps are numbered by position.
	steps := ParseSteps("## Steps\n\n1. first\n5. second\n9. third\n")
	require.Len(t, steps, 3)
	for i, step := range steps {
		assert.Equal(t, i+1, step.Number)
	}
}

func TestParseSteps_ConfirmationFlagParsing(t *testing.T) {
	steps := ParseSteps(`## Steps

1. strict true
   - requires_confirmation: true
2. case insensitive
   - requires_confirmation: TRUE
3. anything else is false
   - requires_confirmation: yes
`)
	require.Len(t, steps, 3)
	assert.True(t, steps[0].RequiresConfirmation)
	assert.True(t, steps[1].RequiresConfirmation)
	assert.False(t, steps[2].RequiresConfirmation)
}
