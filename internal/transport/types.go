package transport

import (
	"context"
	"errors"
)

// ErrNoSenders is returned when a notification has nowhere to go.
var ErrNoSenders = errors.New("no notification senders configured")

// Sender delivers a plain-text message to one outbound channel
// (Discord webhook, Telegram chat, ...).
type Sender interface {
	// Name is a short stable identifier used in logs and dedup keys.
	Name() string
	SendText(ctx context.Context, text string) error
}

// Notification is a message queued for delivery.
//
// Channel selects a single sender by name; empty means every configured sender.
type Notification struct {
	Channel  string
	Priority int // 0 low.. 10 high
	Text     string
	// NoDedup marks a message that must be sent even when the same text
	// went out recently.
	NoDedup bool
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc struct {
	ID string
	Fn func(ctx context.Context, text string) error
}

func (s SenderFunc) Name() string { return s.ID }

func (s SenderFunc) SendText(ctx context.Context, text string) error {
	if s.Fn == nil {
		return nil
	}
	return s.Fn(ctx, text)
}
