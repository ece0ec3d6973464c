// Package monitor runs one search cycle: plan the lookback window, fetch and
// sum every chunk, then hand the total to the change notifier and record the
// cycle in history.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"searchwatch/internal/change"
	"searchwatch/internal/eventbus"
	"searchwatch/internal/search"
	"searchwatch/internal/storage"
	"searchwatch/pkg/logx"
)

// Skip reasons recorded in cycle history.
const (
	SkipEmptyParams  = "empty_params"
	SkipInvalidRange = "invalid_range"
	SkipCancelled    = "cancelled"
)

// Config is the per-cycle search setup. It can be swapped between cycles.
type Config struct {
	Params        search.Params
	ChunkDays     int
	LookbackYears int
}

// Store is what a cycle writes to.
type Store interface {
	change.TotalSaver
	AppendCycle(ctx context.Context, r storage.CycleRecord) error
}

// Recorder receives cycle measurements. Nil disables recording.
type Recorder interface {
	ObserveCycle(outcome string, d time.Duration)
	ObserveChunk(ok bool, d time.Duration)
	SetTotal(v int64)
}

// CycleEvent is published on the event bus for cycle lifecycle events.
type CycleEvent struct {
	ID        string        `json:"id"`
	Total     int64         `json:"total,omitempty"`
	Previous  int64         `json:"previous,omitempty"`
	Succeeded int           `json:"succeeded,omitempty"`
	Failed    int           `json:"failed,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// Report describes one finished cycle.
type Report struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Chunks    []search.Chunk
	Result    search.Result
	Change    change.Outcome
	Skipped   string
}

// Outcome labels the cycle for metrics: skipped, ok, partial or failed.
func (r Report) Outcome() string {
	switch {
	case r.Skipped != "":
		return "skipped"
	case r.Result.Failed == 0:
		return "ok"
	case r.Result.Succeeded > 0:
		return "partial"
	default:
		return "failed"
	}
}

type Runner struct {
	fetcher  search.Fetcher
	store    Store
	notifier *change.Notifier
	log      logx.Logger
	bus      eventbus.Bus
	rec      Recorder
	now      func() time.Time

	mu  sync.RWMutex
	cfg Config
}

// NewRunner wires a cycle runner. out may be nil when no delivery channel is
// configured; the total is still tracked.
func NewRunner(cfg Config, f search.Fetcher, store Store, out change.Dispatcher, log logx.Logger, bus eventbus.Bus, rec Recorder) *Runner {
	log = log.With(logx.String("comp", "monitor"))
	return &Runner{
		fetcher:  f,
		store:    store,
		notifier: change.NewNotifier(out, store, log),
		log:      log,
		bus:      bus,
		rec:      rec,
		now:      time.Now,
		cfg:      cfg,
	}
}

func (r *Runner) Apply(cfg Config) {
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

func (r *Runner) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// RunCycle executes one cycle against st. Fetch failures and storage errors
// are logged, never returned; the only error is ctx's, when the cycle was
// cancelled before its total could be evaluated.
func (r *Runner) RunCycle(ctx context.Context, st *State) (Report, error) {
	cfg := r.Config()
	rep := Report{ID: uuid.NewString(), StartedAt: r.now()}
	log := r.log.With(logx.String("cycle", rep.ID))

	if cfg.Params.Empty() {
		log.Info("no search parameters configured; cycle skipped")
		return r.skip(ctx, rep, st, SkipEmptyParams), nil
	}

	start, end := search.Window(rep.StartedAt, cfg.LookbackYears)
	chunks, err := search.Plan(start, end, cfg.ChunkDays)
	if err != nil {
		log.Error("cannot plan search window", logx.Time("start", start), logx.Time("end", end), logx.Int("chunk_days", cfg.ChunkDays), logx.Err(err))
		return r.skip(ctx, rep, st, SkipInvalidRange), nil
	}
	rep.Chunks = chunks

	eventbus.Publish(r.bus, eventbus.CycleStarted, CycleEvent{ID: rep.ID})
	log.Debug("cycle started", logx.Int("chunks", len(chunks)), logx.Time("start", start), logx.Time("end", end))

	rep.Result = search.Aggregate(ctx, cfg.Params, chunks, r.fetcher, log)
	if r.rec != nil {
		for _, o := range rep.Result.Outcomes {
			r.rec.ObserveChunk(o.OK(), o.Duration)
		}
	}

	if err := ctx.Err(); err != nil {
		log.Warn("cycle cancelled; total not evaluated", logx.Int("succeeded", rep.Result.Succeeded), logx.Int("failed", rep.Result.Failed), logx.Err(err))
		return r.skip(context.WithoutCancel(ctx), rep, st, SkipCancelled), err
	}

	rep.Change = r.notifier.Apply(ctx, st, rep.Result.Total, cfg.Params)
	rep.Duration = r.now().Sub(rep.StartedAt)
	if rep.Change.Fired {
		eventbus.Publish(r.bus, eventbus.TotalIncreased, rep.Change.Event)
	}
	if r.rec != nil {
		r.rec.SetTotal(st.Total())
		r.rec.ObserveCycle(rep.Outcome(), rep.Duration)
	}
	r.record(ctx, rep)

	eventbus.Publish(r.bus, eventbus.CycleFinished, CycleEvent{
		ID:        rep.ID,
		Total:     rep.Result.Total,
		Previous:  rep.Change.Previous,
		Succeeded: rep.Result.Succeeded,
		Failed:    rep.Result.Failed,
		Duration:  rep.Duration,
	})
	log.Info("cycle finished",
		logx.Int64("total", rep.Result.Total),
		logx.Int64("previous", rep.Change.Previous),
		logx.Bool("increased", rep.Change.Fired),
		logx.Int("succeeded", rep.Result.Succeeded),
		logx.Int("failed", rep.Result.Failed),
		logx.Duration("took", rep.Duration),
	)
	return rep, nil
}

func (r *Runner) skip(ctx context.Context, rep Report, st *State, reason string) Report {
	rep.Skipped = reason
	rep.Duration = r.now().Sub(rep.StartedAt)
	rep.Change.Previous = st.Total()
	if r.rec != nil {
		r.rec.ObserveCycle(rep.Outcome(), rep.Duration)
	}
	r.record(ctx, rep)
	eventbus.Publish(r.bus, eventbus.CycleSkipped, CycleEvent{ID: rep.ID, Reason: reason, Duration: rep.Duration})
	return rep
}

func (r *Runner) record(ctx context.Context, rep Report) {
	if r.store == nil {
		return
	}
	rec := storage.CycleRecord{
		ID:         rep.ID,
		StartedAt:  rep.StartedAt.UTC(),
		DurationMS: rep.Duration.Milliseconds(),
		Total:      rep.Result.Total,
		Previous:   rep.Change.Previous,
		Succeeded:  rep.Result.Succeeded,
		Failed:     rep.Result.Failed,
		Notified:   rep.Change.Notified,
		Skipped:    rep.Skipped,
	}
	if rep.Change.SaveErr != nil {
		rec.Error = rep.Change.SaveErr.Error()
	}
	if err := r.store.AppendCycle(ctx, rec); err != nil {
		r.log.Warn("append cycle history failed", logx.String("cycle", rep.ID), logx.Err(err))
	}
}
