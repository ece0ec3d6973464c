package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"searchwatch/internal/config"
	"searchwatch/internal/eventbus"
	"searchwatch/internal/fetch"
	"searchwatch/internal/monitor"
	"searchwatch/internal/notifier"
	"searchwatch/internal/observability/diag"
	"searchwatch/internal/observability/metrics"
	rtsup "searchwatch/internal/runtime/supervisor"
	"searchwatch/internal/search"
	"searchwatch/internal/storage"
	"searchwatch/internal/task/engine"
	"searchwatch/internal/task/scheduler"
	"searchwatch/internal/transport"
	"searchwatch/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	state *monitor.State

	fetcher atomic.Pointer[fetch.Client]
	runner  *monitor.Runner

	engine  *engine.Service
	sched   *scheduler.Service
	notif   *notifier.Service
	metrics *metrics.Metrics
	diag    *diag.Service

	schedMu sync.Mutex
	cycle   cycleSchedule

	last atomic.Pointer[monitor.Report]
}

// New loads the config at cfgPath and wires every component. Nothing runs
// until Start or RunOnce.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := mapAll(cfg); err != nil {
		return nil, err
	}
	return build(cfgm, cfg)
}

func build(cfgm *config.ConfigManager, cfg *config.Config) (*App, error) {
	a := &App{cfgm: cfgm, bus: eventbus.New()}

	a.logs, a.log = logx.New(mapLogConfig(cfg), nil)
	log := a.log.With(logx.String("comp", "app"))

	sc, _ := mapStorageConfig(cfg)
	store, err := storage.Open(sc, a.log)
	if err != nil {
		a.logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.store = store

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := monitor.LoadState(ctx, store)
	if err != nil {
		_ = store.Close()
		a.logs.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}
	a.state = st

	fc, _ := mapFetchConfig(cfg)
	a.fetcher.Store(fetch.New(fc, nil, a.log))

	senders, err := buildSenders(cfg)
	if err != nil {
		_ = store.Close()
		a.logs.Close()
		return nil, err
	}
	nc, _ := mapNotifierConfig(cfg)
	a.notif = notifier.New(nc, senders, a.log, a.bus, store)
	// Forwarded log lines go straight to the senders, never through the
	// notifier, so a failing channel cannot feed its own warnings back.
	a.logs.SetSender(transport.SenderFunc{ID: "log", Fn: a.forwardLog})

	a.metrics = metrics.New()
	a.metrics.SetTotal(st.Total())
	a.runner = monitor.NewRunner(mapMonitorConfig(cfg), search.FetcherFunc(a.fetchTotal), store, a.notif, a.log, a.bus, a.metrics)

	ec, _ := mapTaskEngineConfig(cfg)
	a.engine = engine.New(ec, a.log, a.bus)
	a.sched = scheduler.New(scheduler.Config{Timezone: cfg.Schedule.Timezone}, a.engine, a.log)
	a.cycle, _ = mapCycleSchedule(cfg)
	if _, err := a.sched.AddSchedule(CycleTask, a.cycle.Spec, a.cycle.Timeout, a.cycle.Opt, a.runCycle); err != nil {
		_ = store.Close()
		a.logs.Close()
		return nil, fmt.Errorf("schedule: %w", err)
	}

	dc, _ := mapDiagConfig(cfg)
	a.diag = diag.New(dc, a.health, a.metrics.Handler(), a.log)

	names := make([]string, 0, len(senders))
	for _, s := range senders {
		names = append(names, s.Name())
	}
	log.Info("app configured",
		logx.String("storage", sc.Driver),
		logx.Int64("total", st.Total()),
		logx.String("senders", strings.Join(names, ",")),
		logx.String("interval", a.cycle.Spec),
	)
	if len(senders) == 0 {
		log.Warn("no notification channel configured; increases are tracked but not delivered")
	}
	return a, nil
}

func (a *App) fetchTotal(ctx context.Context, q string) (int64, error) {
	return a.fetcher.Load().FetchTotal(ctx, q)
}

// runCycle is the scheduled job.
func (a *App) runCycle(ctx context.Context) error {
	rep, err := a.runner.RunCycle(ctx, a.state)
	a.last.Store(&rep)
	if err != nil {
		return engine.NoRetry(err)
	}
	return nil
}

func (a *App) forwardLog(ctx context.Context, text string) error {
	channel := ""
	if cfg := a.cfgm.Get(); cfg != nil {
		channel = strings.TrimSpace(cfg.Logging.Forward.Channel)
	}
	var errs []error
	for _, s := range a.notif.Senders() {
		if channel != "" && s.Name() != channel {
			continue
		}
		errs = append(errs, s.SendText(ctx, text))
	}
	return errors.Join(errs...)
}

// Store exposes the opened store (CLI state/history commands).
func (a *App) Store() storage.Store { return a.store }

// State exposes the in-memory total.
func (a *App) State() *monitor.State { return a.state }

// Logger returns the root logger.
func (a *App) Logger() logx.Logger { return a.log }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// RunOnce executes a single cycle outside the scheduler and shuts down.
// Queued notifications are drained before it returns.
func (a *App) RunOnce(ctx context.Context) (monitor.Report, error) {
	a.notif.Start(ctx)
	rep, err := a.runner.RunCycle(ctx, a.state)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	a.notif.Stop(stopCtx)
	if cerr := a.store.Close(); cerr != nil {
		a.log.Warn("storage close failed", logx.Err(cerr))
	}
	_ = a.logs.Close()
	return rep, err
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	log := a.log.With(logx.String("comp", "app"))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return mapAll(cfg)
	})

	c := a.sup.Context()
	a.notif.Start(c)
	a.engine.Start(c)
	a.sched.Start(c)
	a.diag.Start(c)

	if a.cycle.RunOnStart {
		if err := a.sched.TriggerNow(CycleTask); err != nil {
			log.Warn("initial cycle not enqueued", logx.Err(err))
		}
	}

	a.sup.Go("metrics.consume", func(c context.Context) error {
		return a.metrics.Consume(c, a.bus)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	}, rtsup.WithRestartBackoff(time.Second, 30*time.Second))

	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		watchdogLoop(c, a.log.With(logx.String("comp", "systemd")), func() bool { return a.sup.Err() == nil })
	})
	sdNotify(log, daemon.SdNotifyReady)

	log.Info("app started")
	return nil
}

// applyConfig hot-applies everything except storage.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	log := a.log.With(logx.String("comp", "app"))
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogConfig(newCfg))

	for _, s := range sections {
		if s == "storage" {
			log.Warn("storage config changed; restart required for changes to take effect")
			break
		}
	}

	if fc, err := mapFetchConfig(newCfg); err != nil {
		log.Warn("invalid api config; keeping previous", logx.Err(err))
	} else {
		a.fetcher.Store(fetch.New(fc, nil, a.log))
	}
	a.runner.Apply(mapMonitorConfig(newCfg))

	if ec, err := mapTaskEngineConfig(newCfg); err != nil {
		log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(ctx, ec)
	}

	a.sched.Apply(scheduler.Config{Timezone: newCfg.Schedule.Timezone})
	if cs, err := mapCycleSchedule(newCfg); err != nil {
		log.Warn("invalid schedule config; keeping previous", logx.Err(err))
	} else {
		a.schedMu.Lock()
		changed := cs.Spec != a.cycle.Spec || cs.Timeout != a.cycle.Timeout || cs.Opt.Overlap != a.cycle.Opt.Overlap
		a.cycle = cs
		a.schedMu.Unlock()
		if changed {
			if _, err := a.sched.AddSchedule(CycleTask, cs.Spec, cs.Timeout, cs.Opt, a.runCycle); err != nil {
				log.Warn("reschedule failed", logx.Err(err))
			}
		}
	}

	if senders, err := buildSenders(newCfg); err != nil {
		log.Warn("invalid notification channel config; keeping previous", logx.Err(err))
	} else {
		a.notif.SetSenders(senders)
	}
	if nc, err := mapNotifierConfig(newCfg); err != nil {
		log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		prev := a.notif.Enabled()
		a.notif.Apply(nc)
		switch {
		case prev && !nc.Enabled:
			log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !prev && nc.Enabled:
			log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	if dc, err := mapDiagConfig(newCfg); err != nil {
		log.Warn("invalid diagnostics config; keeping previous", logx.Err(err))
	} else {
		a.diag.Reconfigure(ctx, dc)
	}

	eventbus.Publish(a.bus, eventbus.ConfigReloaded, sections)
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	log := a.log.With(logx.String("comp", "app"))
	log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(log, daemon.SdNotifyStopping)

	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// triggers first, then the cycle in flight, then delivery of what it queued
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("diag", time.Second, func(c context.Context) error { a.diag.Stop(c); return nil })
	step("notifier", 5*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	log.Info("stopped")
	_ = a.logs.Close()
	return nil
}
