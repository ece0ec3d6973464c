package search

import (
	"fmt"
	"time"
)

// Plan partitions [start, end] into ordered chunks of chunkDays calendar days.
//
// Bounds are truncated to whole seconds. Each chunk ends one second before the
// next one starts, so the chunks are contiguous with no overlap, and the last
// chunk always ends exactly at end.
func Plan(start, end time.Time, chunkDays int) ([]Chunk, error) {
	start = start.Truncate(time.Second)
	end = end.Truncate(time.Second)
	if chunkDays < 1 {
		return nil, fmt.Errorf("%w: chunk days %d < 1", ErrInvalidRange, chunkDays)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start %s not before end %s", ErrInvalidRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	var out []Chunk
	cur := start
	for {
		next := cur.AddDate(0, 0, chunkDays)
		if !next.Before(end) {
			out = append(out, Chunk{Start: cur, End: end})
			return out, nil
		}
		out = append(out, Chunk{Start: cur, End: next.Add(-time.Second)})
		cur = next
	}
}

// Window returns the lookback window ending at now.
func Window(now time.Time, lookbackYears int) (time.Time, time.Time) {
	end := now.UTC().Truncate(time.Second)
	return end.AddDate(-lookbackYears, 0, 0), end
}
