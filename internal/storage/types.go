package storage

import (
	"errors"
	"time"
)

var (
	ErrClosed = errors.New("storage closed")
	// ErrNegativeTotal is returned by SaveTotal for a value below zero.
	ErrNegativeTotal = errors.New("storage: total must be non-negative")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON state file (atomic replace) + jsonl side files
//   - "sqlite": SQLite database file
//
// An empty Driver means "file".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// State is the persisted record. The file driver writes it as-is.
type State struct {
	TotalResults *int64 `json:"totalResults" validate:"required,gte=0"`
}

// CycleRecord summarizes one completed cycle.
// Keep it compact and schema-stable.
type CycleRecord struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Total      int64     `json:"total"`
	Previous   int64     `json:"previous"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Notified   bool      `json:"notified"`
	Skipped    string    `json:"skipped,omitempty"`
	Error      string    `json:"error,omitempty"`
}
