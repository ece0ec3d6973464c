// Package change decides whether a cycle total is news and, when it is,
// dispatches the message and persists the new total.
package change

import (
	"context"
	"strconv"
	"strings"

	"searchwatch/internal/search"
	"searchwatch/internal/transport"
	"searchwatch/pkg/logx"
)

// Event describes a strict increase of the total.
type Event struct {
	Previous int64
	Current  int64
	Delta    int64
	Message  string
}

// Evaluate fires only when current > previous.
func Evaluate(previous, current int64, p search.Params) (Event, bool) {
	if current <= previous {
		return Event{}, false
	}
	delta := current - previous
	return Event{
		Previous: previous,
		Current:  current,
		Delta:    delta,
		Message:  FormatMessage(delta, p),
	}, true
}

// FormatMessage renders `Found {delta} new results for "{query}"`, with
// ` in {organization}` appended when an organization name is set. A missing
// query renders as empty quotes.
func FormatMessage(delta int64, p search.Params) string {
	var b strings.Builder
	b.WriteString("Found ")
	b.WriteString(strconv.FormatInt(delta, 10))
	b.WriteString(` new results for "`)
	b.WriteString(strings.TrimSpace(p.Query))
	b.WriteString(`"`)
	if name := strings.TrimSpace(p.OrganizationName); name != "" {
		b.WriteString(" in ")
		b.WriteString(name)
	}
	return b.String()
}

// Dispatcher hands a message to the notification pipeline without waiting
// for delivery.
type Dispatcher interface {
	Notify(ctx context.Context, n transport.Notification) error
}

// TotalSaver persists a new total.
type TotalSaver interface {
	SaveTotal(ctx context.Context, v int64) error
}

// Handle is the in-memory view of the persisted total shared by cycles.
//
// Advance runs fn under the handle's lock with the current total and stores
// the returned value, so compare-and-write is atomic across concurrent cycles.
type Handle interface {
	Advance(fn func(previous int64) int64)
}

// Notifier applies a cycle total: notify on growth, then persist.
type Notifier struct {
	out      Dispatcher
	store    TotalSaver
	log      logx.Logger
	priority int
}

// NewNotifier returns a Notifier. out may be nil (no delivery configured).
func NewNotifier(out Dispatcher, store TotalSaver, log logx.Logger) *Notifier {
	return &Notifier{out: out, store: store, log: log.With(logx.String("comp", "change")), priority: 5}
}

// Outcome reports what Apply did.
type Outcome struct {
	// Previous is the handle's total observed under its lock.
	Previous int64
	Event    Event
	Fired    bool
	Notified bool
	SaveErr  error
}

// Apply compares current with the handle's total. On growth it dispatches the
// message best-effort, writes current through the store and advances the
// handle. A failed save is logged and reported but the handle still advances,
// so the same growth is not announced twice by this process.
func (n *Notifier) Apply(ctx context.Context, h Handle, current int64, p search.Params) Outcome {
	var out Outcome
	h.Advance(func(previous int64) int64 {
		out.Previous = previous
		ev, ok := Evaluate(previous, current, p)
		if !ok {
			n.log.Debug("no new results", logx.Int64("previous", previous), logx.Int64("current", current))
			return previous
		}
		out.Event, out.Fired = ev, true
		n.log.Info("new results", logx.Int64("delta", ev.Delta), logx.Int64("previous", previous), logx.Int64("current", current), logx.String("message", ev.Message))

		if n.out != nil {
			if err := n.out.Notify(ctx, transport.Notification{Priority: n.priority, Text: ev.Message, NoDedup: true}); err != nil {
				n.log.Warn("notification dispatch failed", logx.Err(err))
			} else {
				out.Notified = true
			}
		}

		if n.store != nil {
			if err := n.store.SaveTotal(ctx, current); err != nil {
				out.SaveErr = err
				n.log.Error("persist total failed", logx.Int64("total", current), logx.Err(err))
			}
		}
		return current
	})
	return out
}
