package config

import (
	"reflect"
	"strings"

	"searchwatch/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging. Secrets (tokens, webhook URLs, headers) are
// reported only as *_set booleans.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 24)

	if !reflect.DeepEqual(oldCfg.Search, newCfg.Search) {
		changed = append(changed, "search")
		attrs = append(attrs,
			logx.String("search.organization_name", strings.TrimSpace(newCfg.Search.OrganizationName)),
			logx.String("search.organization_id", newCfg.Search.OrganizationID.String()),
			logx.String("search.query", strings.TrimSpace(newCfg.Search.Query)),
			logx.Int("search.chunk_days", newCfg.Search.ChunkDays),
			logx.Int("search.lookback_years", newCfg.Search.LookbackYears),
		)
	}

	if !reflect.DeepEqual(oldCfg.API, newCfg.API) {
		changed = append(changed, "api")
		attrs = append(attrs,
			logx.String("api.base_url", strings.TrimSpace(newCfg.API.BaseURL)),
			logx.String("api.timeout", strings.TrimSpace(newCfg.API.Timeout)),
			logx.Any("api.rate_per_sec", newCfg.API.RatePerSec),
			logx.Int("api.header_count", len(newCfg.API.Headers)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.String("schedule.interval", strings.TrimSpace(newCfg.Schedule.Interval)),
			logx.String("schedule.timezone", strings.TrimSpace(newCfg.Schedule.Timezone)),
			logx.String("schedule.overlap", strings.TrimSpace(newCfg.Schedule.Overlap)),
		)
	}

	if !reflect.DeepEqual(derefTaskEngine(oldCfg.TaskEngine), derefTaskEngine(newCfg.TaskEngine)) {
		changed = append(changed, "task_engine")
		te := derefTaskEngine(newCfg.TaskEngine)
		attrs = append(attrs,
			logx.Bool("task_engine.present", newCfg.TaskEngine != nil),
			logx.Int("task_engine.workers", te.Workers),
			logx.Int("task_engine.queue_size", te.QueueSize),
			logx.String("task_engine.default_timeout", strings.TrimSpace(te.DefaultTimeout)),
		)
	}

	// Treat an omitted notifier section as the runtime defaults.
	oldN, newN := oldCfg.Notifier, newCfg.Notifier
	if oldN == nil {
		oldN = DefaultNotifier()
	}
	if newN == nil {
		newN = DefaultNotifier()
	}
	if !reflect.DeepEqual(*oldN, *newN) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newN.Enabled),
			logx.Int("notifier.workers", newN.Workers),
			logx.Int("notifier.queue_size", newN.QueueSize),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.Int("notifier.retry_max", newN.RetryMax),
			logx.String("notifier.dedup_window", strings.TrimSpace(newN.DedupWindow)),
		)
	}

	if oldCfg.Discord != newCfg.Discord {
		changed = append(changed, "discord")
		attrs = append(attrs,
			logx.Bool("discord.webhook_set", strings.TrimSpace(newCfg.Discord.WebhookURL) != ""),
			logx.String("discord.username", newCfg.Discord.Username),
		)
	}

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID),
			logx.Int("telegram.thread_id", newCfg.Telegram.ThreadID),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.forward_enabled", newCfg.Logging.Forward.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		var driver, path string
		if newCfg.Storage != nil {
			driver, path = newCfg.Storage.Driver, newCfg.Storage.Path
		}
		attrs = append(attrs,
			logx.String("storage.driver", driver),
			logx.String("storage.path", path),
			logx.Bool("storage.requires_restart", true),
		)
	}

	od, nd := oldCfg.Diagnostics, newCfg.Diagnostics
	if od != nd {
		changed = append(changed, "diagnostics")
		attrs = append(attrs,
			logx.Bool("diagnostics.enabled", nd.Enabled),
			logx.String("diagnostics.addr", strings.TrimSpace(nd.Addr)),
			logx.Bool("diagnostics.pprof", nd.Pprof),
			logx.Bool("diagnostics.token_set", strings.TrimSpace(nd.Token) != ""),
		)
	}

	return changed, attrs
}

func derefTaskEngine(p *TaskEngineConfig) TaskEngineConfig {
	if p == nil {
		return TaskEngineConfig{}
	}
	return *p
}
