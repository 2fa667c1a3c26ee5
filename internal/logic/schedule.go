package logic

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// Period is a daily window [Start, Stop) expressed as offsets from midnight
// in the local time of the clock being checked.
type Period struct {
	Start time.Duration
	Stop  time.Duration
}

// Contains reports whether the time-of-day offset lies in [Start, Stop).
func (p Period) Contains(offset time.Duration) bool {
	return p.Start <= offset && offset < p.Stop
}

func (p Period) String() string {
	return formatClock(p.Start) + "-" + formatClock(p.Stop)
}

// Active reports whether now falls inside any period. It has no side effects;
// the caller decides what an inactive schedule means for the relay.
func Active(now time.Time, periods []Period) bool {
	offset := TimeOfDay(now)
	for _, p := range periods {
		if p.Contains(offset) {
			return true
		}
	}
	return false
}

// TimeOfDay returns the wall-clock offset of t from its local midnight.
func TimeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond())
}

// ParsePeriod parses "HH:MM-HH:MM" (seconds optional). "24:00" is accepted as
// a stop time. Windows that wrap midnight must be given as two periods.
func ParsePeriod(s string) (Period, error) {
	startStr, stopStr, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Period{}, fmt.Errorf("period %q: want HH:MM-HH:MM", s)
	}
	start, err := parseClock(startStr)
	if err != nil {
		return Period{}, fmt.Errorf("period %q start: %w", s, err)
	}
	stop, err := parseClock(stopStr)
	if err != nil {
		return Period{}, fmt.Errorf("period %q stop: %w", s, err)
	}
	if start >= day {
		return Period{}, fmt.Errorf("period %q: start must be before 24:00", s)
	}
	if start >= stop {
		return Period{}, fmt.Errorf("period %q: start must be before stop", s)
	}
	return Period{Start: start, Stop: stop}, nil
}

// ParseSchedule parses a list of periods.
func ParseSchedule(specs []string) ([]Period, error) {
	periods := make([]Period, 0, len(specs))
	for _, s := range specs {
		p, err := ParsePeriod(s)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, nil
}

func parseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q", s)
	}

	limits := []int{24, 59, 59}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, part := range parts {
		if len(part) != 2 {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		d += time.Duration(n) * units[i]
	}
	if d > day {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return d, nil
}

func formatClock(d time.Duration) string {
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}
