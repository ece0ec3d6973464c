package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SpecKind is either a cron expression (robfig/cron) or a fixed interval.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a schedule string after ParseSchedule.
//
// Accepted forms:
//   - cron: "0 */2 * * *", "@hourly", "@every 2h"
//   - duration: "2h", "90m", "1d"
//   - HH:MM interval: "02:30" is every 2h30m, not a time of day
//
// A "cron:" prefix forces cron; "interval:" or "every:" forces an interval.
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // cron, duration or hhmm
}

var reHHMM = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)

// ParseSchedule classifies and validates raw. Cron expressions are only
// checked for shape here; AddSchedule reports cron syntax errors.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}

	if rest, ok := cutPrefixFold(s, "cron:"); ok {
		if rest == "" {
			return ParsedSpec{}, fmt.Errorf("cron expression required after %q", "cron:")
		}
		return ParsedSpec{Kind: SpecCron, Cron: rest, Source: "cron"}, nil
	}
	for _, p := range []string{"interval:", "every:"} {
		if rest, ok := cutPrefixFold(s, p); ok {
			return parseInterval(rest)
		}
	}

	if strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t") {
		return ParsedSpec{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}
	spec, err := parseInterval(s)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid schedule %q: use cron ('0 */2 * * *'), HH:MM ('02:30') or a duration ('2h')", raw)
	}
	return spec, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

func parseInterval(v string) (ParsedSpec, error) {
	if v == "" {
		return ParsedSpec{}, fmt.Errorf("interval required")
	}
	spec := ParsedSpec{Kind: SpecInterval, Source: "duration"}
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return ParsedSpec{}, fmt.Errorf("invalid minutes in %q", v)
		}
		spec.Every = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		spec.Source = "hhmm"
	} else {
		d, err := parseDays(v)
		if err != nil {
			return ParsedSpec{}, fmt.Errorf("invalid interval %q", v)
		}
		spec.Every = d
	}
	if spec.Every <= 0 {
		return ParsedSpec{}, fmt.Errorf("interval must be > 0")
	}
	return spec, nil
}

// parseDays is time.ParseDuration plus a leading whole-day part ("1d6h").
func parseDays(s string) (time.Duration, error) {
	days, rest, ok := strings.Cut(s, "d")
	if !ok {
		return time.ParseDuration(s)
	}
	n, err := strconv.Atoi(days)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid day count %q", days)
	}
	d := time.Duration(n) * 24 * time.Hour
	if rest == "" {
		return d, nil
	}
	r, err := time.ParseDuration(rest)
	return d + r, err
}
