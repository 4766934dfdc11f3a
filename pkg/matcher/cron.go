package matcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts 6-field expressions with a leading seconds field.
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NormalizeCron normalizes a cron expression to the 6-field form used for
// matching. A 5-field crontab expression gets a zero-seconds field prepended;
// a 7-field expression drops its trailing year field. Descriptors like
// "@hourly" pass through unchanged.
func NormalizeCron(expression string) (string, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return "", fmt.Errorf("empty cron expression")
	}

	if strings.HasPrefix(expression, "@") {
		return expression, nil
	}

	fields := strings.Fields(expression)
	switch len(fields) {
	case 5:
		fields = append([]string{"0"}, fields...)
	case 6:
	case 7:
		fields = fields[:6]
	default:
		return "", fmt.Errorf("cron expression has %d fields, want 5, 6, or 7", len(fields))
	}

	return strings.Join(fields, " "), nil
}

// CronSchedule is a parsed cron trigger expression. Parsing happens once at
// registry load so the schedule receiver never re-parses per tick.
type CronSchedule struct {
	Expression string
	schedule   cron.Schedule
}

// ParseCron normalizes and parses a 5/6/7-field cron expression. The returned
// schedule keeps the raw expression: cron events carry it as their topic so
// trigger matching stays an exact string comparison.
func ParseCron(expression string) (*CronSchedule, error) {
	normalized, err := NormalizeCron(expression)
	if err != nil {
		return nil, err
	}

	schedule, err := cronParser.Parse(normalized)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}

	return &CronSchedule{Expression: expression, schedule: schedule}, nil
}

// FiresWithin reports whether the schedule has an occurrence in the window
// (lastCheck, now]. Multiple occurrences inside one window coalesce into a
// single firing; callers advance lastCheck to now only after dispatching.
func (c *CronSchedule) FiresWithin(lastCheck, now time.Time) bool {
	next := c.schedule.Next(lastCheck)
	if next.IsZero() {
		return false
	}

	return !next.After(now)
}

// Next returns the first occurrence strictly after the given time.
func (c *CronSchedule) Next(after time.Time) time.Time {
	return c.schedule.Next(after)
}
