// Package notify sends reminder notifications to a Telegram chat.
//
// Notifications are the best-effort secondary effect of a dispatch: the
// queue engine treats their failure as log-worthy, never as a reason to
// keep or retry a reminder whose agent ping already succeeded.
package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "remindq/pkg/logx"
)

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
	Timeout  time.Duration
}

type Service struct {
	bot      *tele.Bot
	chatID   int64
	threadID int
	log      logx.Logger
}

func New(cfg Config, log logx.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{bot: b, chatID: cfg.ChatID, threadID: cfg.ThreadID, log: log}, nil
}

// Notify sends text to the configured chat. ccTargets are already rendered
// into the text by the dispatcher; they are accepted here so alternative
// transports can tag recipients natively.
func (s *Service) Notify(ctx context.Context, text string, ccTargets []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := &tele.SendOptions{
		DisableWebPagePreview: true,
		ThreadID:              s.threadID,
	}
	_, err := s.bot.Send(tele.ChatID(s.chatID), text, opts)
	if err != nil {
		s.log.Warn("telegram send failed", logx.Int64("chat_id", s.chatID), logx.Err(err))
		return err
	}
	s.log.Debug("notification sent", logx.Int64("chat_id", s.chatID), logx.Int("cc", len(ccTargets)))
	return nil
}
