package change

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"searchwatch/internal/notifier"
	"searchwatch/internal/search"
	"searchwatch/internal/storage"
	"searchwatch/internal/transport"
	"searchwatch/pkg/logx"
)

type memHandle struct {
	mu sync.Mutex
	v  int64
}

func (h *memHandle) Advance(fn func(int64) int64) {
	h.mu.Lock()
	h.v = fn(h.v)
	h.mu.Unlock()
}

type captureDispatcher struct {
	err  error
	sent []transport.Notification
}

func (c *captureDispatcher) Notify(_ context.Context, n transport.Notification) error {
	c.sent = append(c.sent, n)
	return c.err
}

type failingSaver struct{}

func (failingSaver) SaveTotal(context.Context, int64) error { return errors.New("disk full") }

func openStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "output.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestEvaluate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		prev     int64
		cur      int64
		fire     bool
		delta    int64
		contains []string
	}{
		{name: "equal", prev: 10, cur: 10},
		{name: "decrease", prev: 10, cur: 3},
		{name: "increase", prev: 10, cur: 15, fire: true, delta: 5, contains: []string{"5", `"acme"`}},
		{name: "first run", prev: 0, cur: 1, fire: true, delta: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := Evaluate(tt.prev, tt.cur, search.Params{Query: "acme"})
			if ok != tt.fire {
				t.Fatalf("fired = %v, want %v", ok, tt.fire)
			}
			if !ok {
				return
			}
			if ev.Delta != tt.delta {
				t.Fatalf("delta = %d, want %d", ev.Delta, tt.delta)
			}
			for _, s := range tt.contains {
				if !strings.Contains(ev.Message, s) {
					t.Fatalf("message %q missing %q", ev.Message, s)
				}
			}
		})
	}
}

func TestFormatMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		p    search.Params
		want string
	}{
		{search.Params{Query: "acme"}, `Found 5 new results for "acme"`},
		{search.Params{Query: "acme", OrganizationName: "Acme Corp"}, `Found 5 new results for "acme" in Acme Corp`},
		{search.Params{OrganizationName: "Acme Corp"}, `Found 5 new results for "" in Acme Corp`},
		{search.Params{OrganizationID: "12"}, `Found 5 new results for ""`},
	}
	for _, tt := range tests {
		if got := FormatMessage(5, tt.p); got != tt.want {
			t.Fatalf("FormatMessage(%+v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestApplyNoChange(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	ctx := context.Background()
	if err := st.SaveTotal(ctx, 10); err != nil {
		t.Fatalf("seed: %v", err)
	}
	d := &captureDispatcher{}
	h := &memHandle{v: 10}

	out := NewNotifier(d, st, logx.Nop()).Apply(ctx, h, 10, search.Params{Query: "acme"})
	if out.Fired {
		t.Fatal("equal totals must not fire")
	}
	if len(d.sent) != 0 {
		t.Fatalf("dispatched %d messages, want 0", len(d.sent))
	}
	if h.v != 10 {
		t.Fatalf("handle = %d, want 10", h.v)
	}
	if v, _ := st.LoadTotal(ctx); v != 10 {
		t.Fatalf("store = %d, want 10", v)
	}
}

func TestApplyIncrease(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	ctx := context.Background()
	d := &captureDispatcher{}
	h := &memHandle{v: 10}

	out := NewNotifier(d, st, logx.Nop()).Apply(ctx, h, 15, search.Params{Query: "acme"})
	if !out.Fired || !out.Notified || out.SaveErr != nil {
		t.Fatalf("outcome = %+v", out)
	}
	if len(d.sent) != 1 || !strings.Contains(d.sent[0].Text, "5") || !strings.Contains(d.sent[0].Text, "acme") {
		t.Fatalf("sent = %+v", d.sent)
	}
	if v, err := st.LoadTotal(ctx); err != nil || v != 15 {
		t.Fatalf("store = %d, %v; want 15", v, err)
	}
	if h.v != 15 {
		t.Fatalf("handle = %d, want 15", h.v)
	}
}

func TestApplyRepeatedDeltaDeliveredEachTime(t *testing.T) {
	t.Parallel()
	delivered := make(chan string, 4)
	snd := transport.SenderFunc{ID: "discord", Fn: func(_ context.Context, text string) error {
		delivered <- text
		return nil
	}}
	svc := notifier.New(notifier.Config{
		Enabled:         true,
		Workers:         1,
		QueueSize:       8,
		RatePerSec:      100,
		SendTimeout:     time.Second,
		DedupWindow:     time.Minute,
		DedupMaxEntries: 100,
	}, []transport.Sender{snd}, logx.Nop(), nil, nil)
	svc.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		svc.Stop(ctx)
	})

	n := NewNotifier(svc, openStore(t), logx.Nop())
	h := &memHandle{v: 10}
	p := search.Params{Query: "acme"}
	first := n.Apply(context.Background(), h, 15, p)
	second := n.Apply(context.Background(), h, 20, p)
	if !first.Notified || !second.Notified || h.v != 20 {
		t.Fatalf("first = %+v, second = %+v, handle = %d", first, second, h.v)
	}

	for i := 0; i < 2; i++ {
		select {
		case got := <-delivered:
			if got != `Found 5 new results for "acme"` {
				t.Fatalf("delivered %q", got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 2 increases delivered", i)
		}
	}
}

func TestApplyDedupedDispatchNotNotified(t *testing.T) {
	t.Parallel()
	d := &captureDispatcher{err: notifier.ErrDeduped}
	h := &memHandle{v: 1}
	out := NewNotifier(d, nil, logx.Nop()).Apply(context.Background(), h, 2, search.Params{Query: "acme"})
	if !out.Fired || out.Notified || h.v != 2 {
		t.Fatalf("outcome = %+v, handle = %d", out, h.v)
	}
	if len(d.sent) != 1 || !d.sent[0].NoDedup {
		t.Fatalf("sent = %+v", d.sent)
	}
}

func TestApplyDecreaseNeverWritten(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	ctx := context.Background()
	_ = st.SaveTotal(ctx, 20)
	h := &memHandle{v: 20}

	NewNotifier(nil, st, logx.Nop()).Apply(ctx, h, 4, search.Params{Query: "acme"})
	if v, _ := st.LoadTotal(ctx); v != 20 {
		t.Fatalf("store = %d, want 20", v)
	}
	if h.v != 20 {
		t.Fatalf("handle = %d, want 20", h.v)
	}
}

func TestApplyDispatchFailureStillPersists(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	ctx := context.Background()
	d := &captureDispatcher{err: errors.New("queue full")}
	h := &memHandle{v: 1}

	out := NewNotifier(d, st, logx.Nop()).Apply(ctx, h, 3, search.Params{Query: "acme"})
	if !out.Fired || out.Notified {
		t.Fatalf("outcome = %+v", out)
	}
	if v, _ := st.LoadTotal(ctx); v != 3 {
		t.Fatalf("store = %d, want 3", v)
	}
}

func TestApplySaveFailureAdvancesHandle(t *testing.T) {
	t.Parallel()
	h := &memHandle{v: 1}
	out := NewNotifier(nil, failingSaver{}, logx.Nop()).Apply(context.Background(), h, 3, search.Params{Query: "acme"})
	if out.SaveErr == nil {
		t.Fatal("expected save error")
	}
	if h.v != 3 {
		t.Fatalf("handle = %d, want 3", h.v)
	}
}

func TestApplyConcurrentMonotonic(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	ctx := context.Background()
	h := &memHandle{}
	n := NewNotifier(nil, st, logx.Nop())

	var wg sync.WaitGroup
	for _, v := range []int64{5, 9, 2, 7, 9, 1} {
		v := v
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Apply(ctx, h, v, search.Params{Query: "acme"})
		}()
	}
	wg.Wait()
	if h.v != 9 {
		t.Fatalf("handle = %d, want 9", h.v)
	}
	if v, _ := st.LoadTotal(ctx); v != 9 {
		t.Fatalf("store = %d, want 9", v)
	}
}
