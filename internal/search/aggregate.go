package search

import (
	"context"
	"strconv"
	"time"

	"searchwatch/pkg/logx"
)

// Aggregate fetches every chunk sequentially, in order, and sums the
// successful counts.
//
// A failed chunk contributes nothing and never aborts the cycle. Once ctx is
// done the remaining chunks are recorded as failed without being fetched.
func Aggregate(ctx context.Context, p Params, chunks []Chunk, f Fetcher, log logx.Logger) Result {
	res := Result{Outcomes: make([]Outcome, 0, len(chunks))}
	for i, c := range chunks {
		o := fetchChunk(ctx, p, c, f)
		res.Outcomes = append(res.Outcomes, o)
		if !o.OK() {
			res.Failed++
			log.Warn("chunk fetch failed",
				logx.Int("chunk", i),
				logx.String("query", o.Query),
				logx.Time("start", c.Start),
				logx.Time("end", c.End),
				logx.Err(o.Err),
			)
			continue
		}
		res.Succeeded++
		res.Total += o.Count
		log.Debug("chunk fetched",
			logx.Int("chunk", i),
			logx.Int64("count", o.Count),
			logx.Duration("took", o.Duration),
		)
	}
	return res
}

func fetchChunk(ctx context.Context, p Params, c Chunk, f Fetcher) Outcome {
	o := Outcome{Chunk: c}
	q, ok := BuildQuery(p, c)
	if !ok {
		o.Err = ErrEmptyParams
		return o
	}
	o.Query = q
	if err := ctx.Err(); err != nil {
		o.Err = err
		return o
	}

	started := time.Now()
	n, err := f.FetchTotal(ctx, q)
	o.Duration = time.Since(started)
	switch {
	case err != nil:
		o.Err = err
	case n < 0:
		o.Err = NegativeCountError(n)
	default:
		o.Count = n
	}
	return o
}

// NegativeCountError is reported when a fetcher returns a count below zero.
type NegativeCountError int64

func (e NegativeCountError) Error() string {
	return "search: negative result count " + strconv.FormatInt(int64(e), 10)
}
