package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseDuration accepts time.ParseDuration syntax with an optional leading
// whole-day part, e.g. "1d", "2d12h". Days are fixed 24h spans.
func parseDuration(s string) (time.Duration, error) {
	i := strings.IndexByte(s, 'd')
	if i <= 0 {
		return time.ParseDuration(s)
	}
	days, err := strconv.Atoi(s[:i])
	if err != nil || days < 0 {
		return time.ParseDuration(s)
	}
	d := time.Duration(days) * 24 * time.Hour
	if rest := s[i+1:]; rest != "" {
		r, err := time.ParseDuration(rest)
		if err != nil {
			return 0, err
		}
		d += r
	}
	return d, nil
}

// ParseDurationField parses the value at path. Empty means zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := parseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", path, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

type durationField struct {
	path string
	raw  string
}

// durationFields lists every duration-valued setting of cfg by its config path.
func durationFields(cfg *Config) []durationField {
	out := []durationField{
		{"api.timeout", cfg.API.Timeout},
		{"schedule.timeout", cfg.Schedule.Timeout},
		{"diagnostics.read_timeout", cfg.Diagnostics.ReadTimeout},
		{"diagnostics.write_timeout", cfg.Diagnostics.WriteTimeout},
		{"diagnostics.idle_timeout", cfg.Diagnostics.IdleTimeout},
	}
	if te := cfg.TaskEngine; te != nil {
		out = append(out,
			durationField{"task_engine.default_timeout", te.DefaultTimeout},
			durationField{"task_engine.max_queue_delay", te.MaxQueueDelay},
		)
	}
	if n := cfg.Notifier; n != nil {
		out = append(out,
			durationField{"notifier.retry_base", n.RetryBase},
			durationField{"notifier.retry_max_delay", n.RetryMaxDelay},
			durationField{"notifier.send_timeout", n.SendTimeout},
			durationField{"notifier.dedup_window", n.DedupWindow},
		)
	}
	if s := cfg.Storage; s != nil {
		out = append(out, durationField{"storage.busy_timeout", s.BusyTimeout})
	}
	return out
}
