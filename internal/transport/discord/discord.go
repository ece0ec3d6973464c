// Package discord sends plain-text messages through a Discord webhook.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"searchwatch/internal/transport"
)

// Discord rejects content longer than 2000 characters.
const contentLimit = 2000

var ErrNoWebhook = errors.New("discord: webhook url is empty")

type Config struct {
	WebhookURL string
	Username   string
	Timeout    time.Duration
}

// Sender posts to a webhook. It implements transport.Sender.
type Sender struct {
	cfg  Config
	http *http.Client
}

var _ transport.Sender = (*Sender)(nil)

// New returns a webhook sender. hc may be nil.
func New(cfg Config, hc *http.Client) (*Sender, error) {
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return nil, ErrNoWebhook
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Sender{cfg: cfg, http: hc}, nil
}

func (s *Sender) Name() string { return "discord" }

type webhookPayload struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

// StatusError is returned for any response outside 2xx.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("discord: webhook returned %d: %s", e.Code, e.Body)
}

func (s *Sender) SendText(ctx context.Context, text string) error {
	for _, chunk := range transport.SplitText(text, contentLimit) {
		if err := s.post(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) post(ctx context.Context, content string) error {
	body, err := json.Marshal(webhookPayload{Content: content, Username: s.cfg.Username})
	if err != nil {
		return fmt.Errorf("discord: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("discord: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return nil
}
