package pipeline

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// cronField matches one position of a five-field cron expression.
type cronField struct {
	wildcard bool
	values   []int
}

func (f cronField) matches(v int) bool {
	return f.wildcard || slices.Contains(f.values, v)
}

// parseCronField accepts "*", "*/n", "a", "a-b", "a-b/n" and comma lists of
// those, bounded to [lo, hi].
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}
	var values []int
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		rng, stepStr, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n < 1 {
				return cronField{}, fmt.Errorf("invalid step %q", stepStr)
			}
			step = n
		}

		from, to := lo, hi
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var err error
			if from, err = strconv.Atoi(a); err != nil {
				return cronField{}, fmt.Errorf("invalid value %q", a)
			}
			if to, err = strconv.Atoi(b); err != nil {
				return cronField{}, fmt.Errorf("invalid value %q", b)
			}
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return cronField{}, fmt.Errorf("invalid value %q", rng)
			}
			from = v
			if !hasStep {
				to = v
			}
		}
		if from < lo || to > hi || from > to {
			return cronField{}, fmt.Errorf("%q outside [%d,%d]", part, lo, hi)
		}
		for v := from; v <= to; v += step {
			values = append(values, v)
		}
	}
	return cronField{values: values}, nil
}

// schedule is a parsed "minute hour day-of-month month day-of-week"
// expression. Day-of-week 0 is Sunday.
type schedule struct {
	minute, hour, dom, month, dow cronField
}

func (s schedule) matches(t time.Time) bool {
	return s.minute.matches(t.Minute()) &&
		s.hour.matches(t.Hour()) &&
		s.dom.matches(t.Day()) &&
		s.month.matches(int(t.Month())) &&
		s.dow.matches(int(t.Weekday()))
}

func parseSchedule(expr string) (schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return schedule{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}
	bounds := []struct {
		name   string
		lo, hi int
	}{
		{"minute", 0, 59}, {"hour", 0, 23}, {"day-of-month", 1, 31}, {"month", 1, 12}, {"day-of-week", 0, 6},
	}
	parsed := make([]cronField, 5)
	for i, b := range bounds {
		f, err := parseCronField(fields[i], b.lo, b.hi)
		if err != nil {
			return schedule{}, fmt.Errorf("%s field: %w", b.name, err)
		}
		parsed[i] = f
	}
	return schedule{parsed[0], parsed[1], parsed[2], parsed[3], parsed[4]}, nil
}

// ValidateCron reports whether expr is a usable five-field cron expression.
func ValidateCron(expr string) error {
	_, err := parseSchedule(expr)
	return err
}

// nextCronTime returns the first minute strictly after `after` matching
// expr, searching at most one year ahead.
func nextCronTime(expr string, after time.Time) (time.Time, error) {
	s, err := parseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if s.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching time within one year for %q", expr)
}
