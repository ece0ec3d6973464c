package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"searchwatch/pkg/logx"
)

// Store is the persistence API used by the cycle runner, the notifier and the CLI.
type Store interface {
	// LoadTotal returns the persisted total. Missing or malformed state is
	// replaced with a zero total, which is written back and returned.
	LoadTotal(ctx context.Context) (int64, error)
	// SaveTotal replaces the persisted total; readers never observe a partial write.
	SaveTotal(ctx context.Context, v int64) error

	AppendCycle(ctx context.Context, r CycleRecord) error
	// ListCycles returns up to limit records, most recent first.
	ListCycles(ctx context.Context, limit int) ([]CycleRecord, error)

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
