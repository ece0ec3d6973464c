package app

import (
	"fmt"
	"time"

	"searchwatch/internal/config"
	"searchwatch/internal/fetch"
	"searchwatch/internal/search"
	"searchwatch/internal/storage"
	"searchwatch/pkg/logx"
)

// PlannedChunk is one request a cycle would make.
type PlannedChunk struct {
	Chunk search.Chunk
	Query string
	URL   string
}

// PlanCycle returns the requests a cycle started at now would issue, without
// fetching anything. An empty result with a nil error means the search
// section has no terms and the cycle would be skipped.
func PlanCycle(cfg *config.Config, now time.Time) ([]PlannedChunk, error) {
	mc := mapMonitorConfig(cfg)
	if mc.Params.Empty() {
		return nil, nil
	}
	fc, err := mapFetchConfig(cfg)
	if err != nil {
		return nil, err
	}
	client := fetch.New(fc, nil, logx.Nop())

	start, end := search.Window(now, mc.LookbackYears)
	chunks, err := search.Plan(start, end, mc.ChunkDays)
	if err != nil {
		return nil, err
	}
	out := make([]PlannedChunk, 0, len(chunks))
	for _, c := range chunks {
		q, _ := search.BuildQuery(mc.Params, c)
		// a missing base url still lets operators inspect the queries
		u, _ := client.URL(q)
		out = append(out, PlannedChunk{Chunk: c, Query: q, URL: u})
	}
	return out, nil
}

// OpenStore opens the configured store on its own, for CLI commands that do
// not run cycles.
func OpenStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(sc, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return st, nil
}
