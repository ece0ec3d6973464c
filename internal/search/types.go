package search

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidRange is returned by Plan for an empty/negative range or a chunk size below one day.
	ErrInvalidRange = errors.New("search: invalid range")
	// ErrEmptyParams means no search term is configured; the cycle has nothing to search.
	ErrEmptyParams = errors.New("search: no search parameters")
)

// Params are the per-cycle search parameters. All fields are optional but at
// least one must produce a term for a cycle to run.
type Params struct {
	OrganizationName string
	// OrganizationID is kept as configured text; it only contributes a term
	// when it parses as an integer.
	OrganizationID string
	Query          string
}

// orgID returns the parsed organization id, if any.
func (p Params) orgID() (int64, bool) {
	s := strings.TrimSpace(p.OrganizationID)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Empty reports whether no term can be built from p.
func (p Params) Empty() bool {
	_, ok := BaseQuery(p)
	return !ok
}

// Chunk is an inclusive time range at second granularity.
type Chunk struct {
	Start time.Time
	End   time.Time
}

// Fetcher returns the total result count for a fully-formed query string.
//
// Implementations own timeout and rate policy. A non-nil error (transport
// failure, non-success status, undecodable body) marks the chunk failed.
type Fetcher interface {
	FetchTotal(ctx context.Context, query string) (int64, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, query string) (int64, error)

func (f FetcherFunc) FetchTotal(ctx context.Context, query string) (int64, error) {
	return f(ctx, query)
}

// Outcome is the result of one chunk fetch: either a count or a failure.
type Outcome struct {
	Chunk    Chunk
	Query    string
	Count    int64
	Err      error
	Duration time.Duration
}

func (o Outcome) OK() bool { return o.Err == nil }

// Result is the aggregate of one cycle.
type Result struct {
	Total     int64
	Succeeded int
	Failed    int
	Outcomes  []Outcome
}
