// Package notifier delivers change notifications asynchronously.
//
// Callers enqueue a Notification and return immediately. Workers fan each
// notification out to the configured senders (Discord webhook, Telegram chat)
// with rate limiting, retry with jittered backoff, and a dedup window so the
// same text is not delivered twice in quick succession.
//
// A small in-memory history of delivered messages is kept for the CLI and
// diagnostics.
package notifier
