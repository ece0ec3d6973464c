package engine

import "errors"

var (
	ErrDisabled    = errors.New("task engine disabled")
	ErrStopped     = errors.New("task engine stopped")
	ErrStopping    = errors.New("task engine stopping")
	ErrQueueFull   = errors.New("task engine queue full")
	ErrOverlapSkip = errors.New("task skipped: previous run still active")
)

// NoRetry ends the attempt loop for err even when retries remain. The task
// is reported as failed with err itself.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return &noRetryError{err: err}
}

type noRetryError struct{ err error }

func (e *noRetryError) Error() string { return "no retry: " + e.err.Error() }
func (e *noRetryError) Unwrap() error { return e.err }

// finalError reports whether err stops retries, returning the error to record.
func finalError(err error) (error, bool) {
	var nr *noRetryError
	if errors.As(err, &nr) {
		return nr.err, true
	}
	return err, false
}
