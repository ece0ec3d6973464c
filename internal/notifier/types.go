package notifier

import "time"

// Config controls the async notification pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
}

type HistoryItem struct {
	At      time.Time
	Channel string
	Text    string
}

// NotificationEvent is published on the event bus for pipeline lifecycle events.
type NotificationEvent struct {
	Channel string    `json:"channel"`
	Key     string    `json:"key"`
	At      time.Time `json:"at"`
	Attempt int       `json:"attempt,omitempty"`
	Error   string    `json:"error,omitempty"`
}
