package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"searchwatch/internal/task/engine"
	"searchwatch/pkg/logx"
)

type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Berlin"
	// NoSpread disables the per-name delay of the first interval tick.
	NoSpread bool
}

// Re-export execution types from engine.
type OverlapPolicy = engine.OverlapPolicy

type TaskOptions = engine.TaskOptions

type HistoryItem = engine.HistoryItem

const (
	OverlapAllow         = engine.OverlapAllow
	OverlapSkipIfRunning = engine.OverlapSkipIfRunning
)

// Enqueuer is the part of the task engine the scheduler needs.
type Enqueuer interface {
	Enqueue(t engine.Task) error
}

type scheduleDef struct {
	id            string
	name          string
	spec          string // cron spec or @every
	timeout       time.Duration
	job           func(ctx context.Context) error
	entryID       cron.EntryID
	startupSpread time.Duration
	opt           TaskOptions
	state         *engine.RunState
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	engine Enqueuer

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	enqMu   sync.Mutex
	enqWarn map[string]*rate.Limiter
}

type ScheduleInfo struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Spec          string        `json:"spec"`
	Timeout       time.Duration `json:"timeout"`
	Overlap       string        `json:"overlap"`
	Running       bool          `json:"running"`
	StartupSpread time.Duration `json:"startup_spread,omitempty"`
	Next          time.Time     `json:"next,omitempty"`
	Prev          time.Time     `json:"prev,omitempty"`
}

type Snapshot struct {
	Timezone  string         `json:"timezone"`
	Started   bool           `json:"started"`
	Schedules []ScheduleInfo `json:"schedules"`
}
