package monitor

import (
	"context"
	"sync"
)

// State is the in-memory view of the persisted total. One State is created
// per process and handed to every cycle.
type State struct {
	mu    sync.Mutex
	total int64
}

func NewState(total int64) *State {
	return &State{total: total}
}

// TotalLoader reads the persisted total.
type TotalLoader interface {
	LoadTotal(ctx context.Context) (int64, error)
}

// LoadState seeds a State from the store.
func LoadState(ctx context.Context, l TotalLoader) (*State, error) {
	v, err := l.LoadTotal(ctx)
	if err != nil {
		return nil, err
	}
	return NewState(v), nil
}

func (s *State) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Advance runs fn under the lock and stores its result, so concurrent cycles
// compare and write one at a time.
func (s *State) Advance(fn func(previous int64) int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = fn(s.total)
}
