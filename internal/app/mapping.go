package app

import (
	"fmt"
	"strings"
	"time"

	"searchwatch/internal/config"
	"searchwatch/internal/fetch"
	"searchwatch/internal/monitor"
	"searchwatch/internal/notifier"
	"searchwatch/internal/observability/diag"
	"searchwatch/internal/search"
	"searchwatch/internal/storage"
	"searchwatch/internal/task/engine"
	"searchwatch/internal/task/scheduler"
	"searchwatch/internal/transport"
	"searchwatch/internal/transport/discord"
	"searchwatch/internal/transport/telegram"
	"searchwatch/pkg/logx"
)

// CycleTask is the schedule name of the search cycle.
const CycleTask = "search.cycle"

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{Driver: "file", Path: config.DefaultStatePath}, nil
	}
	sc := cfg.Storage
	path := strings.TrimSpace(sc.Path)

	dl := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch dl {
	case "", "file":
		if path == "" {
			path = config.DefaultStatePath
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: dl, Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	te := config.TaskEngineConfig{}
	if cfg != nil && cfg.TaskEngine != nil {
		te = *cfg.TaskEngine
	}
	defTimeout, err := config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	maxQueueDelay, err := config.ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Enabled:        true,
		Workers:        te.Workers,
		QueueSize:      te.QueueSize,
		DefaultTimeout: defTimeout,
		MaxQueueDelay:  maxQueueDelay,
		HistorySize:    te.HistorySize,
		// cycles never retry; a failed chunk already counts as zero
		RetryMax: 0,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := config.DefaultNotifier()
	if cfg != nil && cfg.Notifier != nil {
		nc = cfg.Notifier
	}
	retryBase, err := config.ParseDurationOrDefault("notifier.retry_base", nc.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationOrDefault("notifier.retry_max_delay", nc.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	sendTimeout, err := config.ParseDurationOrDefault("notifier.send_timeout", nc.SendTimeout, 15*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	dedupWindow, err := config.ParseDurationField("notifier.dedup_window", nc.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:         nc.Enabled,
		Workers:         nc.Workers,
		QueueSize:       nc.QueueSize,
		RatePerSec:      nc.RatePerSec,
		RetryMax:        nc.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
		SendTimeout:     sendTimeout,
		DedupWindow:     dedupWindow,
		DedupMaxEntries: nc.DedupMaxEntries,
		PersistDedup:    nc.PersistDedup,
	}, nil
}

func mapFetchConfig(cfg *config.Config) (fetch.Config, error) {
	api := cfg.API
	timeout, err := config.ParseDurationOrDefault("api.timeout", api.Timeout, fetch.DefaultTimeout)
	if err != nil {
		return fetch.Config{}, err
	}
	return fetch.Config{
		BaseURL:    strings.TrimSpace(api.BaseURL),
		Path:       strings.TrimSpace(api.Path),
		Timeout:    timeout,
		RatePerSec: api.RatePerSec,
		UserAgent:  api.UserAgent,
		Headers:    api.Headers,
	}, nil
}

func mapMonitorConfig(cfg *config.Config) monitor.Config {
	s := cfg.Search
	mc := monitor.Config{
		Params: search.Params{
			OrganizationName: strings.TrimSpace(s.OrganizationName),
			OrganizationID:   s.OrganizationID.String(),
			Query:            strings.TrimSpace(s.Query),
		},
		ChunkDays:     s.ChunkDays,
		LookbackYears: s.LookbackYears,
	}
	if mc.ChunkDays <= 0 {
		mc.ChunkDays = config.DefaultChunkDays
	}
	if mc.LookbackYears <= 0 {
		mc.LookbackYears = config.DefaultLookbackYears
	}
	return mc
}

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled: l.File.Enabled,
			Path:    l.File.Path,
		},
		Forward: logx.ForwardConfig{
			Enabled:    l.Forward.Enabled,
			MinLevel:   l.Forward.MinLevel,
			RatePerSec: l.Forward.RatePerSec,
		},
	}
}

// cycleSchedule is the effective trigger definition of the search cycle.
type cycleSchedule struct {
	Spec       string
	Timeout    time.Duration
	Opt        scheduler.TaskOptions
	RunOnStart bool
}

func mapCycleSchedule(cfg *config.Config) (cycleSchedule, error) {
	sc := cfg.Schedule
	spec := strings.TrimSpace(sc.Interval)
	if spec == "" {
		spec = config.DefaultInterval
	}
	if _, err := scheduler.ParseSchedule(spec); err != nil {
		return cycleSchedule{}, fmt.Errorf("schedule.interval: %w", err)
	}
	timeout, err := config.ParseDurationField("schedule.timeout", sc.Timeout)
	if err != nil {
		return cycleSchedule{}, err
	}
	opt := scheduler.TaskOptions{Overlap: scheduler.OverlapSkipIfRunning, RetryMax: -1}
	if strings.EqualFold(strings.TrimSpace(sc.Overlap), "allow") {
		opt.Overlap = scheduler.OverlapAllow
	}
	return cycleSchedule{Spec: spec, Timeout: timeout, Opt: opt, RunOnStart: sc.RunOnStartOrDefault()}, nil
}

func mapDiagConfig(cfg *config.Config) (diag.Config, error) {
	d := cfg.Diagnostics
	read, err := config.ParseDurationOrDefault("diagnostics.read_timeout", d.ReadTimeout, 10*time.Second)
	if err != nil {
		return diag.Config{}, err
	}
	// pprof profiles stream for up to 30s by default
	write, err := config.ParseDurationOrDefault("diagnostics.write_timeout", d.WriteTimeout, 60*time.Second)
	if err != nil {
		return diag.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("diagnostics.idle_timeout", d.IdleTimeout, 60*time.Second)
	if err != nil {
		return diag.Config{}, err
	}
	addr := strings.TrimSpace(d.Addr)
	if addr == "" {
		addr = config.DefaultDiagnosticsAddr
	}
	return diag.Config{
		Enabled:              d.Enabled,
		Addr:                 addr,
		Token:                strings.TrimSpace(d.Token),
		AllowInsecure:        d.AllowInsecure,
		Pprof:                d.Pprof,
		ReadTimeout:          read,
		WriteTimeout:         write,
		IdleTimeout:          idle,
		MutexProfileFraction: d.MutexProfileFraction,
		BlockProfileRate:     d.BlockProfileRate,
	}, nil
}

// buildSenders returns one sender per configured delivery channel. An empty
// result is valid: increases are then tracked but not delivered.
func buildSenders(cfg *config.Config) ([]transport.Sender, error) {
	var out []transport.Sender
	if u := strings.TrimSpace(cfg.Discord.WebhookURL); u != "" {
		s, err := discord.New(discord.Config{WebhookURL: u, Username: cfg.Discord.Username}, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if tg := cfg.Telegram; strings.TrimSpace(tg.Token) != "" && tg.ChatID != 0 {
		s, err := telegram.New(telegram.Config{
			Token:          strings.TrimSpace(tg.Token),
			ChatID:         tg.ChatID,
			ThreadID:       tg.ThreadID,
			APIURL:         tg.APIURL,
			DisablePreview: tg.DisablePreview,
		})
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}

// mapAll checks every derived section; the config manager runs it before a
// reload is committed.
func mapAll(cfg *config.Config) error {
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapTaskEngineConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapFetchConfig(cfg); err != nil {
		return err
	}
	if _, err := mapCycleSchedule(cfg); err != nil {
		return err
	}
	if _, err := mapDiagConfig(cfg); err != nil {
		return err
	}
	return nil
}
