package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"searchwatch/pkg/logx"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func checkCover(t *testing.T, chunks []Chunk, start, end time.Time) {
	t.Helper()
	if len(chunks) == 0 {
		t.Fatal("no chunks")
	}
	if !chunks[0].Start.Equal(start) {
		t.Fatalf("first start = %s, want %s", chunks[0].Start, start)
	}
	if !chunks[len(chunks)-1].End.Equal(end) {
		t.Fatalf("last end = %s, want %s", chunks[len(chunks)-1].End, end)
	}
	for i, c := range chunks {
		if c.End.Before(c.Start) {
			t.Fatalf("chunk %d: end %s before start %s", i, c.End, c.Start)
		}
		if i == 0 {
			continue
		}
		prev := chunks[i-1]
		if want := prev.End.Add(time.Second); !c.Start.Equal(want) {
			t.Fatalf("chunk %d starts at %s, want %s (gap or overlap)", i, c.Start, want)
		}
	}
}

func TestPlanCoversRange(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		start     string
		end       string
		chunkDays int
		want      int
	}{
		{name: "three years by 180", start: "2022-10-17T09:30:00Z", end: "2025-10-17T09:30:00Z", chunkDays: 180, want: 7},
		{name: "exact multiple", start: "2024-01-01T00:00:00Z", end: "2024-01-11T00:00:00Z", chunkDays: 5, want: 2},
		{name: "one day chunks", start: "2024-02-27T12:00:00Z", end: "2024-03-02T06:00:00Z", chunkDays: 1, want: 4},
		{name: "leap year", start: "2023-12-01T00:00:00Z", end: "2024-12-01T00:00:00Z", chunkDays: 30, want: 13},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			start, end := mustTime(t, tt.start), mustTime(t, tt.end)
			chunks, err := Plan(start, end, tt.chunkDays)
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if len(chunks) != tt.want {
				t.Fatalf("got %d chunks, want %d", len(chunks), tt.want)
			}
			checkCover(t, chunks, start, end)
		})
	}
}

func TestPlanShortRangeSingleChunk(t *testing.T) {
	t.Parallel()
	start := mustTime(t, "2025-01-01T00:00:00Z")
	end := mustTime(t, "2025-03-01T17:45:12Z")
	chunks, err := Plan(start, end, 180)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if !chunks[0].Start.Equal(start) || !chunks[0].End.Equal(end) {
		t.Fatalf("chunk = %+v, want [%s, %s]", chunks[0], start, end)
	}
}

func TestPlanTruncatesSubSecond(t *testing.T) {
	t.Parallel()
	start := mustTime(t, "2025-01-01T00:00:00Z").Add(400 * time.Millisecond)
	end := mustTime(t, "2025-06-01T00:00:00Z").Add(900 * time.Millisecond)
	chunks, err := Plan(start, end, 30)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	checkCover(t, chunks, start.Truncate(time.Second), end.Truncate(time.Second))
}

func TestPlanInvalid(t *testing.T) {
	t.Parallel()
	now := mustTime(t, "2025-01-01T00:00:00Z")
	cases := []struct {
		start, end time.Time
		days       int
	}{
		{now, now, 10},
		{now, now.Add(-time.Hour), 10},
		{now, now.AddDate(1, 0, 0), 0},
	}
	for _, c := range cases {
		if _, err := Plan(c.start, c.end, c.days); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("Plan(%s, %s, %d) err = %v, want ErrInvalidRange", c.start, c.end, c.days, err)
		}
	}
}

func TestWindow(t *testing.T) {
	t.Parallel()
	now := mustTime(t, "2025-10-17T09:30:00Z").Add(250 * time.Millisecond)
	start, end := Window(now, 3)
	if want := mustTime(t, "2022-10-17T09:30:00Z"); !start.Equal(want) {
		t.Fatalf("start = %s, want %s", start, want)
	}
	if want := mustTime(t, "2025-10-17T09:30:00Z"); !end.Equal(want) {
		t.Fatalf("end = %s, want %s", end, want)
	}
}

func TestBaseQuery(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		p    Params
		want string
		ok   bool
	}{
		{name: "empty", p: Params{}, ok: false},
		{name: "bad id only", p: Params{OrganizationID: "abc"}, ok: false},
		{name: "query", p: Params{Query: "acme"}, want: `q:["acme"]`, ok: true},
		{name: "all", p: Params{OrganizationName: "Acme Corp", OrganizationID: "42", Query: "widgets"},
			want: `organizationLatinName:"Acme Corp" AND organizationId:42 AND q:["widgets"]`, ok: true},
		{name: "bad id skipped", p: Params{OrganizationName: "Acme", OrganizationID: "4x2"},
			want: `organizationLatinName:"Acme"`, ok: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := BaseQuery(tt.p)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Fatalf("query = %q, want %q", got, tt.want)
			}
			if tt.p.Empty() == tt.ok {
				t.Fatalf("Empty() = %v, inconsistent with ok=%v", tt.p.Empty(), tt.ok)
			}
		})
	}
}

func TestBuildQueryDateTerm(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+2", 2*60*60)
	c := Chunk{
		Start: time.Date(2024, 1, 1, 2, 0, 0, 0, loc),
		End:   time.Date(2024, 6, 28, 1, 59, 59, 999_000_000, loc),
	}
	got, ok := BuildQuery(Params{Query: "acme"}, c)
	if !ok {
		t.Fatal("expected query")
	}
	want := `q:["acme"] AND issueDate:[DT(2024-01-01T00:00:00) TO DT(2024-06-27T23:59:59)]`
	if got != want {
		t.Fatalf("query = %q, want %q", got, want)
	}
	if _, ok := BuildQuery(Params{}, c); ok {
		t.Fatal("empty params must not build a query")
	}
}

func testChunks(t *testing.T, n int) []Chunk {
	t.Helper()
	start := mustTime(t, "2024-01-01T00:00:00Z")
	chunks, err := Plan(start, start.AddDate(0, 0, 10*n), 10)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(chunks) != n {
		t.Fatalf("planned %d chunks, want %d", len(chunks), n)
	}
	return chunks
}

func TestAggregateAllFail(t *testing.T) {
	t.Parallel()
	chunks := testChunks(t, 3)
	f := FetcherFunc(func(context.Context, string) (int64, error) {
		return 0, errors.New("boom")
	})
	res := Aggregate(context.Background(), Params{Query: "acme"}, chunks, f, logx.Nop())
	if res.Total != 0 || res.Failed != 3 || res.Succeeded != 0 {
		t.Fatalf("result = %+v, want total 0 with 3 failures", res)
	}
}

func TestAggregatePartialFailure(t *testing.T) {
	t.Parallel()
	chunks := testChunks(t, 4)
	replies := []struct {
		n   int64
		err error
	}{
		{5, nil},
		{0, errors.New("status 502")},
		{7, nil},
		{-1, nil},
	}
	var calls []string
	f := FetcherFunc(func(_ context.Context, q string) (int64, error) {
		r := replies[len(calls)]
		calls = append(calls, q)
		return r.n, r.err
	})
	res := Aggregate(context.Background(), Params{Query: "acme"}, chunks, f, logx.Nop())
	if res.Total != 12 {
		t.Fatalf("total = %d, want 12", res.Total)
	}
	if res.Succeeded != 2 || res.Failed != 2 {
		t.Fatalf("succeeded/failed = %d/%d, want 2/2", res.Succeeded, res.Failed)
	}
	if len(calls) != 4 {
		t.Fatalf("fetch called %d times, want 4", len(calls))
	}
	for i, q := range calls {
		want, _ := BuildQuery(Params{Query: "acme"}, chunks[i])
		if q != want {
			t.Fatalf("call %d query = %q, want %q (order)", i, q, want)
		}
	}
	var neg NegativeCountError
	if !errors.As(res.Outcomes[3].Err, &neg) {
		t.Fatalf("outcome 3 err = %v, want NegativeCountError", res.Outcomes[3].Err)
	}
}

func TestAggregateCancelledSkipsFetch(t *testing.T) {
	t.Parallel()
	chunks := testChunks(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	f := FetcherFunc(func(context.Context, string) (int64, error) {
		calls++
		cancel()
		return 3, nil
	})
	res := Aggregate(ctx, Params{Query: "acme"}, chunks, f, logx.Nop())
	if calls != 1 {
		t.Fatalf("fetch called %d times after cancel, want 1", calls)
	}
	if res.Total != 3 || res.Failed != 2 {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Outcomes[2].Err.Error(), "canceled") {
		t.Fatalf("outcome err = %v, want context canceled", res.Outcomes[2].Err)
	}
}
