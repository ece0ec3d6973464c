// Package scheduler turns schedule strings into triggers.
//
// It only decides when work is due: each trigger enqueues a task into the
// task engine, which owns execution, overlap gating, timeouts and retries.
package scheduler
