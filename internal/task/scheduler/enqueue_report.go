package scheduler

import (
	"errors"
	"time"

	"golang.org/x/time/rate"

	"searchwatch/internal/task/engine"
	"searchwatch/pkg/logx"
)

// at most one enqueue warning per schedule every 5s
const enqueueWarnEvery = 5 * time.Second

func (s *Service) warnLimiter(name string) *rate.Limiter {
	s.enqMu.Lock()
	defer s.enqMu.Unlock()
	l, ok := s.enqWarn[name]
	if !ok {
		l = rate.NewLimiter(rate.Every(enqueueWarnEvery), 1)
		s.enqWarn[name] = l
	}
	return l
}

// reportEnqueueError logs a trigger the engine refused. Overlap skips are
// expected with the skip policy and stay at debug.
func (s *Service) reportEnqueueError(name string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrOverlapSkip):
		s.log.Debug("schedule trigger skipped", logx.String("schedule", name), logx.Err(err))
	case s.warnLimiter(name).Allow():
		s.log.Warn("schedule failed to enqueue task", logx.String("schedule", name), logx.Err(err))
	}
}
