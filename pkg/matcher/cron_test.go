package matcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCron(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    string
		wantErr bool
	}{
		{"five fields gains seconds", "*/5 * * * *", "0 */5 * * * *", false},
		{"six fields unchanged", "30 */5 * * * *", "30 */5 * * * *", false},
		{"seven fields drops year", "0 0 12 * * * 2026", "0 0 12 * * *", false},
		{"descriptor passes through", "@hourly", "@hourly", false},
		{"whitespace trimmed", "  */5 * * * *  ", "0 */5 * * * *", false},
		{"empty", "", "", true},
		{"too few fields", "* * *", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeCron(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCron_KeepsRawExpression(t *testing.T) {
	schedule, err := ParseCron("*/5 * * * *")
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", schedule.Expression)
}

func TestParseCron_Invalid(t *testing.T) {
	_, err := ParseCron("61 * * * *")
	assert.Error(t, err)

	_, err = ParseCron("not a cron")
	assert.Error(t, err)
}

func TestFiresWithin(t *testing.T) {
	schedule, err := ParseCron("*/5 * * * *")
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// Window covering 10:05:00.
	assert.True(t, schedule.FiresWithin(base.Add(4*time.Minute), base.Add(5*time.Minute)))

	// Window strictly between occurrences.
	assert.False(t, schedule.FiresWithin(base.Add(1*time.Minute), base.Add(4*time.Minute)))

	// Occurrence exactly at lastCheck is excluded, the window is half-open.
	assert.False(t, schedule.FiresWithin(base.Add(5*time.Minute), base.Add(6*time.Minute)))

	// Occurrence exactly at now is included.
	assert.True(t, schedule.FiresWithin(base, base.Add(5*time.Minute)))

	// Two occurrences in one window still report a single firing.
	assert.True(t, schedule.FiresWithin(base.Add(-1*time.Minute), base.Add(11*time.Minute)))
}
