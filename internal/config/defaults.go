package config

const (
	DefaultInterval        = "2h"
	DefaultChunkDays       = 180
	DefaultLookbackYears   = 3
	DefaultStatePath       = "./output.json"
	DefaultDiagnosticsAddr = "127.0.0.1:9464"
)

// DefaultNotifier is the pipeline used when the notifier section is omitted.
func DefaultNotifier() *NotifierConfig {
	return &NotifierConfig{
		Enabled:         true,
		Workers:         2,
		QueueSize:       128,
		RatePerSec:      2,
		RetryMax:        3,
		RetryBase:       "500ms",
		RetryMaxDelay:   "10s",
		SendTimeout:     "15s",
		DedupWindow:     "1m",
		DedupMaxEntries: 2000,
	}
}

// RunOnStartOrDefault reports schedule.run_on_start, defaulting to true.
func (s ScheduleConfig) RunOnStartOrDefault() bool {
	if s.RunOnStart == nil {
		return true
	}
	return *s.RunOnStart
}

// Example returns a minimal configuration, written by `searchwatch init`.
func Example() *Config {
	return &Config{
		Search: SearchConfig{
			OrganizationName: "Acme Corp",
			Query:            "acme",
			ChunkDays:        DefaultChunkDays,
			LookbackYears:    DefaultLookbackYears,
		},
		API:      APIConfig{BaseURL: "https://search.example.com/api/v1", Timeout: "30s", RatePerSec: 2},
		Schedule: ScheduleConfig{Interval: DefaultInterval, Overlap: "skip"},
		Logging:  LoggingConfig{Level: "info", Console: true},
		Storage:  &StorageConfig{Driver: "file", Path: DefaultStatePath},
	}
}
