package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"searchwatch/internal/eventbus"
	rtsup "searchwatch/internal/runtime/supervisor"
	"searchwatch/internal/storage"
	"searchwatch/internal/transport"
	"searchwatch/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")

	// ErrDeduped means every target had already received the same text
	// within the dedup window, so nothing was queued.
	ErrDeduped = errors.New("notifier: duplicate within dedup window")
)

// DedupStore is the subset of storage.Store used for cross-restart dedup.
type DedupStore interface {
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (time.Time, bool, error)
}

var _ DedupStore = (storage.Store)(nil)

type job struct {
	sender   transport.Sender
	text     string
	dedupKey string
}

// Service is an async notification pipeline:
// queue + worker pool + rate limit + retry + dedup.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	senders []transport.Sender
	bus     eventbus.Bus
	store   DedupStore

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	dmu   sync.Mutex
	dedup map[string]time.Time

	persistCh chan dedupWrite

	hmu     sync.Mutex
	history []HistoryItem
}

type dedupWrite struct {
	key   string
	until time.Time
}

func New(cfg Config, senders []transport.Sender, log logx.Logger, bus eventbus.Bus, store DedupStore) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		senders: append([]transport.Sender(nil), senders...),
		log:     log.With(logx.String("comp", "notifier")),
		bus:     bus,
		store:   store,
		dedup:   map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply updates pipeline settings. Worker count and queue size take effect on
// the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

// SetSenders replaces the delivery targets (hot reload of channel config).
func (s *Service) SetSenders(senders []transport.Sender) {
	s.mu.Lock()
	s.senders = append([]transport.Sender(nil), senders...)
	s.mu.Unlock()
}

// Senders returns the current delivery targets.
func (s *Service) Senders() []transport.Sender {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.Sender(nil), s.senders...)
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 500
	}

	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start launches the workers. It is idempotent and a no-op when disabled.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers
	if s.cfg.PersistDedup && s.store != nil {
		s.persistCh = make(chan dedupWrite, 256)
	}
	// Delivery failures are best-effort and must not take down the app.
	s.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	sup, q, pch, st := s.sup, s.queue, s.persistCh, s.store
	s.mu.Unlock()

	if pch != nil {
		sup.GoRestart("dedup.persist", func(c context.Context) error {
			s.persistLoop(c, pch, st)
			return s.loopExit(c, "persist loop")
		}, rtsup.WithPublishFirstError(true))
	}
	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return s.loopExit(c, "worker")
		}, rtsup.WithPublishFirstError(true))
	}
}

// loopExit maps a returned loop to a supervisor result: clean while stopping,
// an error otherwise so the loop gets restarted.
func (s *Service) loopExit(c context.Context, what string) error {
	s.mu.Lock()
	stopping := s.stopDone != nil
	s.mu.Unlock()
	if stopping {
		return context.Canceled
	}
	if c.Err() != nil {
		return c.Err()
	}
	return fmt.Errorf("notifier %s exited unexpectedly", what)
}

// Stop stops intake and drains the queue best-effort until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q, pch, sup := s.queue, s.persistCh, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		// In-flight Notify calls finish before the queue closes; workers then drain it.
		s.sendWG.Wait()
		if pch != nil {
			close(pch)
		}
		close(q)
		if sup != nil {
			_ = sup.Wait(context.Background())
		}

		s.mu.Lock()
		s.queue = nil
		s.persistCh = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if sup != nil {
			sup.Cancel()
		}
	}
}

// Notify enqueues n for every matching sender and returns without waiting
// for delivery. Duplicate text within the dedup window is dropped, unless
// n.NoDedup is set; when that drops every target Notify returns ErrDeduped.
func (s *Service) Notify(ctx context.Context, n transport.Notification) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	targets := selectSenders(s.senders, n.Channel)
	dedupWindow := s.cfg.DedupWindow
	dedupMax := s.cfg.DedupMaxEntries
	persist := s.cfg.PersistDedup
	st := s.store
	pch := s.persistCh
	bus := s.bus
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	if len(targets) == 0 {
		return transport.ErrNoSenders
	}

	text := prefixForPriority(n.Priority) + n.Text
	var (
		errs    []error
		deduped int
	)
	for _, snd := range targets {
		key := dedupKey(snd.Name(), n.Priority, n.Text)
		ev := NotificationEvent{Channel: snd.Name(), Key: key, At: time.Now()}
		if !n.NoDedup && dedupWindow > 0 && !s.dedupAllow(ctx, key, dedupWindow, dedupMax, persist, st, pch) {
			eventbus.Publish(bus, eventbus.NotifierDeduped, ev)
			deduped++
			continue
		}
		select {
		case q <- job{sender: snd, text: text, dedupKey: key}:
			eventbus.Publish(bus, eventbus.NotifierQueued, ev)
		default:
			ev.Error = ErrQueueFull.Error()
			eventbus.Publish(bus, eventbus.NotifierDropped, ev)
			errs = append(errs, fmt.Errorf("%s: %w", snd.Name(), ErrQueueFull))
		}
	}
	if deduped == len(targets) {
		return ErrDeduped
	}
	return errors.Join(errs...)
}

func selectSenders(all []transport.Sender, channel string) []transport.Sender {
	if channel == "" {
		return append([]transport.Sender(nil), all...)
	}
	for _, snd := range all {
		if snd != nil && snd.Name() == channel {
			return []transport.Sender{snd}
		}
	}
	return nil
}

// History returns recently delivered messages, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(channel, text string) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Channel: channel, Text: text})
	if len(s.history) > 100 {
		s.history = s.history[len(s.history)-100:]
	}
	s.hmu.Unlock()
}

func (s *Service) persistLoop(ctx context.Context, ch <-chan dedupWrite, st DedupStore) {
	for {
		select {
		case <-ctx.Done():
			return
		case w, ok := <-ch:
			if !ok {
				return
			}
			cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
			if err := st.PutDedup(cctx, w.key, w.until); err != nil {
				s.log.Debug("dedup persist failed", logx.Err(err))
			}
			cancel()
		}
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, j job) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	bus := s.bus
	s.mu.Unlock()

	if j.sender == nil || j.text == "" {
		return
	}
	name := j.sender.Name()
	maxAttempts := 1 + cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := j.sender.SendText(callCtx, j.text)
		cancel()
		if err == nil {
			s.appendHistory(name, j.text)
			eventbus.Publish(bus, eventbus.NotifierSent, NotificationEvent{Channel: name, Key: j.dedupKey, At: time.Now(), Attempt: attempt})
			return
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.String("channel", name), logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))
		if attempt >= maxAttempts {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}

	s.log.Warn("notification delivery failed", logx.String("channel", name), logx.Int("attempts", maxAttempts), logx.Err(lastErr))
	eventbus.Publish(bus, eventbus.NotifierFailed, NotificationEvent{Channel: name, Key: j.dedupKey, At: time.Now(), Attempt: maxAttempts, Error: lastErr.Error()})
}

func prefixForPriority(p int) string {
	switch {
	case p >= 9:
		return "🚨 "
	case p >= 7:
		return "⚠️ "
	default:
		return ""
	}
}

func dedupKey(channel string, priority int, text string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(channel))
	_, _ = h.Write([]byte("|" + strconv.Itoa(priority) + "|"))
	_, _ = h.Write([]byte(text))
	return strconv.FormatUint(h.Sum64(), 16)
}

func (s *Service) dedupAllow(ctx context.Context, key string, window time.Duration, maxEntries int, persist bool, st DedupStore, pch chan dedupWrite) bool {
	now := time.Now()

	s.dmu.Lock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		s.dmu.Unlock()
		return false
	}
	s.dmu.Unlock()

	// Cross-restart check, best-effort.
	if persist && st != nil {
		qctx := ctx
		if qctx == nil {
			qctx = context.Background()
		}
		cctx, cancel := context.WithTimeout(qctx, 50*time.Millisecond)
		until, ok, err := st.GetDedup(cctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			s.dmu.Lock()
			s.dedup[key] = until
			s.dmu.Unlock()
			return false
		}
	}

	until := now.Add(window)
	s.dmu.Lock()
	s.dedup[key] = until
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
		}
	}
	for len(s.dedup) > maxEntries {
		var (
			oldest string
			minT   time.Time
		)
		for k, u := range s.dedup {
			if oldest == "" || u.Before(minT) {
				oldest, minT = k, u
			}
		}
		delete(s.dedup, oldest)
	}
	s.dmu.Unlock()

	if pch != nil {
		select {
		case pch <- dedupWrite{key: key, until: until}:
		default:
		}
	}
	return true
}

// retryDelay is the wait before attempt+1: exponential from RetryBase,
// capped at RetryMaxDelay, with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}
