package engine

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync/atomic"
	"time"

	"searchwatch/internal/eventbus"
	"searchwatch/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue chan queuedTask) {
	// Per-worker RNG: avoids global lock contention on retry jitter.
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t, ok := <-queue:
			if !ok {
				return
			}
			atomic.AddInt32(&s.inFlight, 1)
			s.execOne(ctx, stopCh, t, rng)
			atomic.AddInt32(&s.inFlight, -1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, stopCh <-chan struct{}, qt queuedTask, rng *rand.Rand) {
	start := time.Now()
	queueDelay := max(start.Sub(qt.enqueuedAt), 0)
	if qt.enqueuedAt.IsZero() {
		queueDelay = 0
	}

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	if qt.track && qt.state != nil {
		defer qt.state.release()
	}

	if cfg.MaxQueueDelay > 0 && queueDelay > cfg.MaxQueueDelay {
		s.onStaleDropped(start, qt.task, queueDelay)
		s.recordHistory(HistoryItem{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay, Error: "stale_queue_delay"}, cfg.HistorySize)
		return
	}

	s.log.Debug("task.started", logx.String("task", qt.task.Name), logx.String("id", qt.task.ID), logx.Duration("queue_delay", queueDelay))
	eventbus.Publish(s.bus, eventbus.TaskStarted, TaskEvent{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay})

	var err error
	attempts := 0
	maxAttempts := 1 + qt.opt.RetryMax
attemptLoop:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt

		runCtx := ctx
		var cancel func()
		if qt.timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, qt.timeout)
		}
		// A panicking task becomes an error; the worker survives.
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
					s.log.Error("task.panic", logx.String("task", qt.task.Name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				}
			}()
			err = qt.task.Run(runCtx)
		}()
		if cancel != nil {
			cancel()
		}
		if err == nil {
			break
		}
		if e, final := finalError(err); final {
			err = e
			break
		}
		if attempt >= maxAttempts {
			break
		}

		delay := backoffDelay(qt.opt, attempt, rng)
		if delay > 0 {
			s.log.Debug("task retry scheduled", logx.String("task", qt.task.Name), logx.Int("attempt", attempt+1), logx.Duration("delay", delay), logx.Err(err))
			tmr := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				tmr.Stop()
				err = ctx.Err()
				break attemptLoop
			case <-stopCh:
				tmr.Stop()
				err = ErrStopping
				break attemptLoop
			case <-tmr.C:
			}
		}
	}

	dur := time.Since(start)
	item := HistoryItem{ID: qt.task.ID, Name: qt.task.Name, Started: start, Duration: dur, QueueDelay: queueDelay, Attempts: attempts}
	ev := TaskEvent{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay, Duration: dur, Attempts: attempts}
	if err != nil {
		item.Error = err.Error()
		ev.Error = item.Error
		s.log.Warn("task.failed", logx.String("task", qt.task.Name), logx.Err(err), logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		eventbus.Publish(s.bus, eventbus.TaskFailed, ev)
	} else {
		if dur >= 750*time.Millisecond {
			s.log.Info("task.completed", logx.String("task", qt.task.Name), logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		} else {
			s.log.Debug("task.completed", logx.String("task", qt.task.Name), logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		}
		eventbus.Publish(s.bus, eventbus.TaskFinished, ev)
	}
	s.recordHistory(item, cfg.HistorySize)
}

func backoffDelay(opt TaskOptions, retry int, rng *rand.Rand) time.Duration {
	base := opt.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxD := opt.RetryMaxDelay
	if maxD <= 0 {
		maxD = 15 * time.Second
	}

	d := base
	for i := 1; i < retry; i++ {
		d *= 2
		if d > maxD {
			d = maxD
			break
		}
	}
	return jitter(d, opt.RetryJitter, maxD, rng)
}

func jitter(d time.Duration, j float64, maxD time.Duration, rng *rand.Rand) time.Duration {
	if j <= 0 {
		j = 0.2
	}
	if d > 0 && rng != nil {
		r := (rng.Float64()*2 - 1) * j
		d = max(time.Duration(float64(d)*(1+r)), 0)
	}
	return min(d, maxD)
}
