package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronField matches one of the five cron positions. A nil set matches all.
// star records that the field was written starting with "*".
type cronField struct {
	set  map[int]bool
	star bool
}

func (f cronField) matches(v int) bool {
	return f.set == nil || f.set[v]
}

// parseCronField accepts "*", "*/n", "a", "a-b", "a-b/n" and comma lists of
// those, bounded by lo..hi.
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{star: true}, nil
	}
	set := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		step := 1
		if base, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return cronField{}, fmt.Errorf("invalid step in %q", part)
			}
			step, part = n, base
		}

		from, to := lo, hi
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			var err error
			if from, err = strconv.Atoi(a); err != nil {
				return cronField{}, fmt.Errorf("invalid range start %q", a)
			}
			if to, err = strconv.Atoi(b); err != nil {
				return cronField{}, fmt.Errorf("invalid range end %q", b)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return cronField{}, fmt.Errorf("invalid cron field value %q", part)
			}
			from, to = v, v
		}
		if from < lo || to > hi || from > to {
			return cronField{}, fmt.Errorf("value out of range %d-%d in %q", lo, hi, field)
		}
		for v := from; v <= to; v += step {
			set[v] = true
		}
	}
	return cronField{set: set, star: strings.HasPrefix(field, "*")}, nil
}

// cronSchedule is a parsed "minute hour day-of-month month day-of-week"
// expression evaluated in UTC.
type cronSchedule struct {
	minute, hour, dom, month, dow cronField
}

// parseCron parses a five-field expression. As in standard cron, when both
// day-of-month and day-of-week are restricted (neither starts with "*") a day
// matches if either field matches; otherwise both must match.
func parseCron(expr string) (cronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return cronSchedule{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}
	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	var parsed [5]cronField
	for i, f := range fields {
		cf, err := parseCronField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return cronSchedule{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		parsed[i] = cf
	}
	return cronSchedule{
		minute: parsed[0],
		hour:   parsed[1],
		dom:    parsed[2],
		month:  parsed[3],
		dow:    parsed[4],
	}, nil
}

func (c cronSchedule) matches(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.month.matches(int(t.Month())) &&
		c.dayMatches(t)
}

func (c cronSchedule) dayMatches(t time.Time) bool {
	dom, dow := c.dom.matches(t.Day()), c.dow.matches(int(t.Weekday()))
	if !c.dom.star && !c.dow.star {
		return dom || dow
	}
	return dom && dow
}

// next returns the first matching minute strictly after t, searching up to
// a year ahead.
func (c cronSchedule) next(t time.Time) (time.Time, error) {
	candidate := t.UTC().Truncate(time.Minute).Add(time.Minute)
	limit := candidate.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if c.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching cron time within one year")
}
