package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"searchwatch/internal/task/engine"
	"searchwatch/pkg/logx"
)

// AddSchedule parses schedule and registers either a cron or interval trigger.
// Registering the same name again replaces the previous schedule.
//
// Supported schedule formats:
//   - Cron: "*/5 * * * *", "55 * * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, opt TaskOptions, job func(ctx context.Context) error) (string, error) {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return "", err
	}
	switch ps.Kind {
	case SpecCron:
		if _, err := s.parser.Parse(ps.Cron); err != nil {
			return "", fmt.Errorf("invalid cron %q: %w", ps.Cron, err)
		}
		return s.add(name, ps.Cron, timeout, opt, job)
	case SpecInterval:
		return s.add(name, fmt.Sprintf("@every %s", ps.Every.String()), timeout, opt, job)
	default:
		return "", fmt.Errorf("unsupported schedule kind")
	}
}

func (s *Service) add(name, spec string, timeout time.Duration, opt TaskOptions, job func(ctx context.Context) error) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if job == nil {
		return "", errors.New("job required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Keep the overlap state across re-registration so a hot reload does not
	// let a second cycle start next to one that is still running.
	state := &engine.RunState{}
	for _, d := range s.defs {
		if d.name == name && d.state != nil {
			state = d.state
		}
	}
	_ = s.removeScheduleLocked(name)

	d := scheduleDef{
		id:      fmt.Sprintf("sch-%x", time.Now().UnixNano()),
		name:    name,
		spec:    spec,
		timeout: timeout,
		job:     job,
		opt:     opt,
		state:   state,
	}
	s.defs = append(s.defs, d)
	if s.c == nil {
		// registered on Start
		return name, nil
	}
	err := s.addCronLocked(&s.defs[len(s.defs)-1])
	if err != nil {
		s.log.Error("schedule register failed", logx.String("name", name), logx.String("spec", spec), logx.Err(err))
		return name, err
	}
	args := []logx.Field{logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", timeout)}
	if next := s.previewNextRunsLocked(spec, 3); next != "" {
		args = append(args, logx.String("next", next))
	}
	s.log.Info("schedule registered", args...)
	return name, nil
}

// TriggerNow enqueues one run of a registered schedule immediately, sharing
// its overlap state.
func (s *Service) TriggerNow(name string) error {
	s.mu.Lock()
	var (
		d     scheduleDef
		found bool
	)
	for _, it := range s.defs {
		if it.name == name {
			d, found = it, true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return fmt.Errorf("schedule %q not found", name)
	}
	err := s.enqueue(d)
	if err != nil {
		s.reportEnqueueError(name, err)
	}
	return err
}

// Remove unschedules all schedules with the given name. It returns true if something was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeScheduleLocked(name)
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// removeScheduleLocked removes all defs matching name and unregisters them from cron if running.
// Call with s.mu held.
func (s *Service) removeScheduleLocked(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) enqueue(d scheduleDef) error {
	if s.engine == nil {
		return engine.ErrStopped
	}
	return s.engine.Enqueue(engine.Task{
		Name:    d.name,
		Timeout: d.timeout,
		Run:     d.job,
		Opt:     d.opt,
		State:   d.state,
	})
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	def := *d
	job := cron.FuncJob(func() {
		if err := s.enqueue(def); err != nil {
			s.reportEnqueueError(def.name, err)
		}
	})

	spec := strings.TrimSpace(d.spec)
	if strings.HasPrefix(spec, "@every") {
		every, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(spec, "@every")))
		if err == nil && every > 0 {
			loc := s.loc
			if loc == nil {
				loc = time.Local
			}
			var sched cron.Schedule = cron.Every(every)
			d.startupSpread = 0
			if !s.cfg.NoSpread {
				sched, d.startupSpread = spreadInterval(every, time.Now().In(loc), d.name)
			}
			d.entryID = s.c.Schedule(sched, job)
			return nil
		}
	}

	d.startupSpread = 0
	eid, err := s.c.AddJob(d.spec, job)
	if err == nil {
		d.entryID = eid
	}
	return err
}

func (s *Service) previewNextRunsLocked(spec string, n int) string {
	loc := s.loc
	if loc == nil {
		loc = time.Local
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	t := time.Now().In(loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
