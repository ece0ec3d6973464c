package app

import (
	"context"
	"time"

	rtsup "searchwatch/internal/runtime/supervisor"
	"searchwatch/internal/task/engine"
	"searchwatch/internal/task/scheduler"
)

// LastCycle summarizes the most recent cycle for /healthz.
type LastCycle struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Outcome   string        `json:"outcome"`
	Total     int64         `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   string        `json:"skipped,omitempty"`
}

// Health is the /healthz document.
type Health struct {
	Status     string             `json:"status"`
	Error      string             `json:"error,omitempty"`
	Total      int64              `json:"total"`
	LastCycle  *LastCycle         `json:"last_cycle,omitempty"`
	Engine     engine.Snapshot    `json:"engine"`
	Scheduler  scheduler.Snapshot `json:"scheduler"`
	Supervisor *rtsup.Snapshot    `json:"supervisor,omitempty"`
}

func (a *App) health(context.Context) (any, bool) {
	h := Health{
		Status:    "ok",
		Total:     a.state.Total(),
		Engine:    a.engine.Snapshot(),
		Scheduler: a.sched.Snapshot(),
	}
	// history is large and already in the store
	h.Engine.History = nil
	if rep := a.last.Load(); rep != nil {
		h.LastCycle = &LastCycle{
			ID:        rep.ID,
			StartedAt: rep.StartedAt,
			Duration:  rep.Duration,
			Outcome:   rep.Outcome(),
			Total:     rep.Result.Total,
			Succeeded: rep.Result.Succeeded,
			Failed:    rep.Result.Failed,
			Skipped:   rep.Skipped,
		}
	}
	ok := true
	if a.sup != nil {
		snap := a.sup.Snapshot()
		h.Supervisor = &snap
		if err := a.sup.Err(); err != nil {
			ok = false
			h.Status = "failing"
			h.Error = err.Error()
		}
	}
	return h, ok
}
