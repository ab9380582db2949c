package orchestrator

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule fires every 15 minutes, 45 seconds past the boundary so the
// sentiment source has published the new candle.
const DefaultSchedule = "45 */15 * * * *"

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a cron expression with an optional leading seconds field.
// "@every 1m" style descriptors are accepted too.
func ParseSchedule(spec string) (cron.Schedule, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	s, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("orchestrator.ParseSchedule: %q: %w", spec, err)
	}
	return s, nil
}

// nextTimer arms a timer for the next boundary strictly after now.
func nextTimer(s cron.Schedule, now time.Time) (*time.Timer, time.Time) {
	next := s.Next(now)
	return time.NewTimer(next.Sub(now)), next
}
