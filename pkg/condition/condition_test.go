package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate_EmptyConditionAlwaysMatches(t *testing.T) {
	assert.True(t, Evaluate("", `{"cpu": 10}`))
	assert.True(t, Evaluate("   ", `{"cpu": 10}`))
	assert.True(t, Evaluate("", ""))
}

func TestEvaluate_PathComparisons(t *testing.T) {
	payload := `{"cpu": 91.5, "host": "db-1", "disk": {"used_pct": 97}, "alerts": [{"severity": "critical"}]}`

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"numeric greater", "$.cpu > 90", true},
		{"numeric greater false", "$.cpu > 95", false},
		{"numeric gte boundary", "$.disk.used_pct >= 97", true},
		{"numeric lte", "$.cpu <= 91.5", true},
		{"numeric not equal", "$.cpu != 91.5", false},
		{"string equality", `$.host == "db-1"`, true},
		{"string equality unquoted", "$.host == db-1", true},
		{"string inequality", `$.host != "db-2"`, true},
		{"nested path", "$.disk.used_pct > 90", true},
		{"array index", `$.alerts.0.severity == "critical"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.expr, payload))
		})
	}
}

func TestEvaluate_BareComparisons(t *testing.T) {
	assert.True(t, Evaluate("> 0", "42"))
	assert.True(t, Evaluate(">= 42", "42"))
	assert.False(t, Evaluate("< 42", "42"))
	assert.False(t, Evaluate("> 0", "not-a-number"))
}

func TestEvaluate_FailClosed(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		payload string
	}{
		{"missing payload", "$.cpu > 90", ""},
		{"malformed payload", "$.cpu > 90", "{not json"},
		{"unresolvable path", "$.memory > 90", `{"cpu": 91}`},
		{"path through scalar", "$.cpu.used > 90", `{"cpu": 91}`},
		{"array index out of range", "$.alerts.5 == x", `{"alerts": []}`},
		{"unparsable expression", "$.cpu >>", `{"cpu": 91}`},
		{"missing comparand", "$.cpu >", `{"cpu": 91}`},
		{"string ordering incomparable", "$.host > 10", `{"host": "db-1"}`},
		{"ordering string against string", `$.host > "a"`, `{"host": "db-1"}`},
		{"object as operand", "$.disk == full", `{"disk": {"used_pct": 97}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, Evaluate(tt.expr, tt.payload))
		})
	}
}

func TestEvaluate_OperatorPrecedenceInParsing(t *testing.T) {
	// ">=" must not be read as ">" followed by "= 90".
	assert.True(t, Evaluate("$.cpu >= 90", `{"cpu": 90}`))
	assert.False(t, Evaluate("$.cpu > 90", `{"cpu": 90}`))
}
