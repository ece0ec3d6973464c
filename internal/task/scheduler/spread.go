package scheduler

import (
	"hash/fnv"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// delayedFirst fires once at first, then follows base.
type delayedFirst struct {
	base  cron.Schedule
	first time.Time
}

func (s *delayedFirst) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// spreadInterval returns an "@every" schedule whose first tick is pushed back
// by an offset derived from name, so watchers sharing an API stay out of step
// while each one keeps the same phase across restarts.
func spreadInterval(every time.Duration, now time.Time, name string) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	limit := min(every, maxStartupSpread)
	if limit <= 0 {
		return base, 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	offset := time.Duration(h.Sum64() % uint64(limit))
	return &delayedFirst{base: base, first: now.Add(every + offset)}, offset
}
