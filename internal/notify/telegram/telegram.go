// Package telegram delivers log lines to a Telegram chat. It is send-only:
// no updates are polled.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// bot is the subset of *tele.Bot used here.
type bot interface {
	Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error)
}

type Sender struct {
	bot bot
}

// New builds a sender without contacting Telegram; a bad token surfaces on
// the first send.
func New(token string) (*Sender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: true,
		Client:  &http.Client{Timeout: 8 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &Sender{bot: b}, nil
}

// SendText posts text as plain text. threadID 0 means the main thread.
func (s *Sender) SendText(ctx context.Context, chatID int64, threadID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{
		ThreadID:              threadID,
		DisableWebPagePreview: true,
	})
	return err
}
