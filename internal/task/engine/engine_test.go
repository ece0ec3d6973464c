package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"searchwatch/internal/eventbus"
	"searchwatch/pkg/logx"
)

func startEngine(t *testing.T, cfg Config, bus eventbus.Bus) *Service {
	t.Helper()
	cfg.Enabled = true
	s := New(cfg, logx.Nop(), bus)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestEnqueueRunsTask(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	s := startEngine(t, Config{}, bus)

	var ran atomic.Int32
	if err := s.Enqueue(Task{Name: "cycle", Run: func(context.Context) error { ran.Add(1); return nil }}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, func() bool { return ran.Load() == 1 })

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == eventbus.TaskFinished {
				return
			}
		case <-deadline:
			t.Fatal("no task.finished event")
		}
	}
}

func TestOverlapSkipIfRunning(t *testing.T) {
	t.Parallel()
	s := startEngine(t, Config{Workers: 2}, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	st := &RunState{}
	task := Task{
		Name:  "cycle",
		State: st,
		Opt:   TaskOptions{Overlap: OverlapSkipIfRunning},
		Run: func(context.Context) error {
			close(started)
			<-release
			return nil
		},
	}
	if err := s.Enqueue(task); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	<-started
	if err := s.Enqueue(task); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second Enqueue err = %v, want ErrOverlapSkip", err)
	}
	if s.Snapshot().Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", s.Snapshot().Skipped)
	}
	close(release)
	waitFor(t, func() bool { return !st.Running() })

	task.Run = func(context.Context) error { return nil }
	if err := s.Enqueue(task); err != nil {
		t.Fatalf("Enqueue after completion: %v", err)
	}
}

func TestOverlapAllowRunsConcurrently(t *testing.T) {
	t.Parallel()
	s := startEngine(t, Config{Workers: 2}, nil)

	var running, peak atomic.Int32
	gate := make(chan struct{})
	run := func(context.Context) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-gate
		running.Add(-1)
		return nil
	}
	for i := 0; i < 2; i++ {
		if err := s.Enqueue(Task{Name: "cycle", Opt: TaskOptions{Overlap: OverlapAllow}, Run: run}); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	waitFor(t, func() bool { return peak.Load() == 2 })
	close(gate)
}

func TestRetryAndNoRetry(t *testing.T) {
	t.Parallel()
	s := startEngine(t, Config{RetryMax: 2}, nil)

	var calls atomic.Int32
	err := s.Enqueue(Task{
		Name: "flaky",
		Opt:  TaskOptions{RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond},
		Run: func(context.Context) error {
			if calls.Add(1) < 3 {
				return errors.New("transient")
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, func() bool { return calls.Load() == 3 })

	var permanent atomic.Int32
	_ = s.Enqueue(Task{
		Name: "permanent",
		Run: func(context.Context) error {
			permanent.Add(1)
			return NoRetry(context.Canceled)
		},
	})
	waitFor(t, func() bool {
		for _, h := range s.Snapshot().History {
			if h.Name == "permanent" {
				return true
			}
		}
		return false
	})
	if permanent.Load() != 1 {
		t.Fatalf("permanent ran %d times, want 1", permanent.Load())
	}
}

func TestPanicBecomesError(t *testing.T) {
	t.Parallel()
	s := startEngine(t, Config{RetryMax: -1}, nil)
	_ = s.Enqueue(Task{Name: "boom", Run: func(context.Context) error { panic("kaboom") }})
	waitFor(t, func() bool {
		h := s.Snapshot().History
		return len(h) == 1 && h[0].Error == "panic: kaboom"
	})

	var ran atomic.Bool
	_ = s.Enqueue(Task{Name: "after", Run: func(context.Context) error { ran.Store(true); return nil }})
	waitFor(t, ran.Load)
}

func TestTimeoutCancelsRun(t *testing.T) {
	t.Parallel()
	s := startEngine(t, Config{RetryMax: -1}, nil)
	_ = s.Enqueue(Task{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	waitFor(t, func() bool {
		h := s.Snapshot().History
		return len(h) == 1 && h[0].Error == context.DeadlineExceeded.Error()
	})
}

func TestQueueFullDrops(t *testing.T) {
	t.Parallel()
	s := startEngine(t, Config{Workers: 1, QueueSize: 1}, nil)
	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})
	_ = s.Enqueue(Task{Name: "a", Opt: TaskOptions{Overlap: OverlapAllow}, Run: func(context.Context) error { close(started); <-block; return nil }})
	<-started
	_ = s.Enqueue(Task{Name: "b", Opt: TaskOptions{Overlap: OverlapAllow}, Run: func(context.Context) error { return nil }})
	err := s.Enqueue(Task{Name: "c", Opt: TaskOptions{Overlap: OverlapAllow}, Run: func(context.Context) error { return nil }})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if s.Snapshot().DroppedQueueFull != 1 {
		t.Fatalf("dropped = %d", s.Snapshot().DroppedQueueFull)
	}
}

func TestDisabledAndStopped(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	if err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled err = %v", err)
	}
	s = New(Config{Enabled: true}, logx.Nop(), nil)
	if err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrStopped) {
		t.Fatalf("stopped err = %v", err)
	}
	if err := s.Enqueue(Task{Name: "x"}); err == nil {
		t.Fatal("nil Run must be rejected")
	}
}

func TestBackoffDelayBounds(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(1))
	opt := TaskOptions{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second, RetryJitter: 0.2}
	for retry := 1; retry <= 6; retry++ {
		d := backoffDelay(opt, retry, rng)
		if d < 0 || d > time.Second {
			t.Fatalf("retry %d: delay %v out of bounds", retry, d)
		}
	}
}

func TestNoRetry(t *testing.T) {
	t.Parallel()
	base := errors.New("cancelled")
	if NoRetry(nil) != nil {
		t.Fatal("NoRetry(nil) must be nil")
	}
	err := NoRetry(base)
	if !errors.Is(err, base) {
		t.Fatalf("%v does not wrap base", err)
	}
	if got, final := finalError(err); !final || got != base {
		t.Fatalf("finalError = %v, %v", got, final)
	}
	if _, final := finalError(base); final {
		t.Fatal("plain error reported final")
	}
}
