// Package telegram sends plain-text messages to one Telegram chat (or forum
// topic) through the Bot API. It is outbound only: no updates are polled.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"searchwatch/internal/transport"
)

const textLimit = 4000

var ErrNoToken = errors.New("telegram: token is empty")

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	// APIURL overrides the Bot API endpoint (tests, local bot API servers).
	APIURL         string
	DisablePreview bool
	Timeout        time.Duration
}

// Sender implements transport.Sender for a single chat.
type Sender struct {
	cfg Config
	bot *tele.Bot
}

var _ transport.Sender = (*Sender)(nil)

func New(cfg Config) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrNoToken
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram: chat id is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     strings.TrimSpace(cfg.APIURL),
		Client:  &http.Client{Timeout: cfg.Timeout},
		Offline: true, // skip getMe; we never poll
	})
	if err != nil {
		return nil, err
	}
	return &Sender{cfg: cfg, bot: b}, nil
}

func (s *Sender) Name() string { return "telegram" }

func (s *Sender) SendText(ctx context.Context, text string) error {
	chat := &tele.Chat{ID: s.cfg.ChatID}
	opt := &tele.SendOptions{
		ThreadID:              s.cfg.ThreadID,
		DisableWebPagePreview: s.cfg.DisablePreview,
	}
	for _, chunk := range transport.SplitText(text, textLimit) {
		// telebot calls are not context-aware; check between chunks.
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.bot.Send(chat, chunk, opt); err != nil {
			return err
		}
	}
	return nil
}
