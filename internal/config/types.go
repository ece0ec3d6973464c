package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Config struct {
	Search   SearchConfig   `json:"search"`
	API      APIConfig      `json:"api"`
	Schedule ScheduleConfig `json:"schedule"`

	// TaskEngine controls execution of scheduled cycles.
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Discord  DiscordConfig   `json:"discord"`
	Telegram TelegramConfig  `json:"telegram"`
	Logging  LoggingConfig   `json:"logging"`
	Storage  *StorageConfig  `json:"storage,omitempty"`

	Diagnostics DiagnosticsConfig `json:"diagnostics,omitempty"`
}

// SearchConfig holds the monitored search parameters.
//
// At least one of organization_name, organization_id or query must be set
// for a cycle to do any work; an all-empty section is accepted and every
// cycle is skipped.
type SearchConfig struct {
	OrganizationName string   `json:"organization_name,omitempty"`
	OrganizationID   IDString `json:"organization_id,omitempty"`
	Query            string   `json:"query,omitempty"`

	// ChunkDays is the width of one date chunk. Default: 180.
	ChunkDays int `json:"chunk_days,omitempty" validate:"omitempty,min=1,max=3660"`
	// LookbackYears is the size of the search window ending now. Default: 3.
	LookbackYears int `json:"lookback_years,omitempty" validate:"omitempty,min=1,max=100"`
}

// APIConfig describes the remote search API.
//
// Example:
//
//	"api": { "base_url": "https://search.example.com/api/v1", "rate_per_sec": 2 }
type APIConfig struct {
	BaseURL string `json:"base_url" validate:"omitempty,url"`
	// Path is appended to base_url. Default: "search/advanced".
	Path string `json:"path,omitempty"`
	// Timeout is a Go duration string applied per request. Default: "30s".
	Timeout    string            `json:"timeout,omitempty"`
	RatePerSec float64           `json:"rate_per_sec,omitempty" validate:"gte=0"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// ScheduleConfig controls the cycle trigger.
//
// Interval accepts a Go duration ("2h"), an "every" expression, a 5-field
// cron spec or a daily "HH:MM". Default: "2h".
type ScheduleConfig struct {
	Interval string `json:"interval,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	// Overlap is "skip" (default) or "allow".
	Overlap string `json:"overlap,omitempty" validate:"omitempty,oneof=skip allow"`
	// RunOnStart enqueues one cycle immediately at startup. Default: true.
	RunOnStart *bool `json:"run_on_start,omitempty"`
	// Timeout bounds a single cycle. "0s" or empty disables it.
	Timeout string `json:"timeout,omitempty"`
}

// TaskEngineConfig controls the task execution engine.
//
// Defaults (when fields are omitted/zero):
//   - workers: 1
//   - queue_size: 16
//   - default_timeout: "0s" (disabled)
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 100
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty" validate:"omitempty,min=1,max=64"`
	QueueSize      int    `json:"queue_size,omitempty" validate:"omitempty,min=1"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty" validate:"omitempty,min=1"`
}

// NotifierConfig controls the async notification pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// If the whole section is omitted, the notifier defaults to enabled=true.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers" validate:"gte=0,lte=32"`
	QueueSize       int    `json:"queue_size" validate:"gte=0"`
	RatePerSec      int    `json:"rate_per_sec" validate:"gte=0"`
	RetryMax        int    `json:"retry_max" validate:"gte=0,lte=20"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries" validate:"gte=0"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
}

// DiscordConfig enables delivery through a Discord webhook when
// webhook_url is set. The URL is a secret and is never logged.
type DiscordConfig struct {
	WebhookURL string `json:"webhook_url,omitempty" validate:"omitempty,url"`
	Username   string `json:"username,omitempty"`
}

// TelegramConfig enables delivery to one chat when token and chat_id are set.
type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty" validate:"gte=0"`
	// APIURL overrides the Bot API endpoint (local bot API servers).
	APIURL         string `json:"api_url,omitempty" validate:"omitempty,url"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Forward LoggingForward `json:"forward,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" validate:"required_if=Enabled true"`
}

// LoggingForward mirrors warn+ log records to a notification channel.
type LoggingForward struct {
	Enabled bool `json:"enabled"`
	// Channel is a sender name ("discord", "telegram"); empty means all.
	Channel    string `json:"channel,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty" validate:"gte=0"`
}

// StorageConfig controls where the last known total lives.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./output.json" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=file sqlite sqlite3"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DiagnosticsConfig controls the optional HTTP server exposing /healthz,
// /metrics and (optionally) pprof.
//
// Prefer binding to localhost. A non-loopback address requires a token or
// allow_insecure.
type DiagnosticsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default: "127.0.0.1:9464"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty" validate:"gte=0"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty" validate:"gte=0"`
}

// IDString accepts either a JSON string or a JSON number, so YAML configs can
// write organization_id: 12345 without quoting.
type IDString string

func (s *IDString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = IDString(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("organization_id: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("organization_id: %q is not an integer", n.String())
	}
	*s = IDString(n.String())
	return nil
}

func (s IDString) String() string { return string(s) }
