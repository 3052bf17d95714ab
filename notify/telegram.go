package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rustyeddy/volaccel/pkg/logger"
	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"
)

// ErrTelegramDisabled is returned by NewTelegram when no token or chat is
// configured.
var ErrTelegramDisabled = errors.New("telegram token or chat id not configured")

type TelegramConfig struct {
	Token             string        `json:"-" yaml:"-" mapstructure:"token"`
	ChatID            int64         `json:"chat_id" yaml:"chat_id" mapstructure:"chat_id"`
	URL               string        `json:"url,omitempty" yaml:"url,omitempty" mapstructure:"url"`
	MessagesPerSecond float64       `json:"messages_per_second" yaml:"messages_per_second" mapstructure:"messages_per_second"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

func DefaultTelegramConfig() TelegramConfig {
	return TelegramConfig{MessagesPerSecond: 1, Timeout: 10 * time.Second}
}

// Enabled reports whether both the token and the chat are set.
func (c TelegramConfig) Enabled() bool { return c.Token != "" && c.ChatID != 0 }

// Telegram sends events as HTML messages to one chat. The bot never polls
// for updates; it only sends.
type Telegram struct {
	bot     *telebot.Bot
	chat    *telebot.Chat
	limiter *rate.Limiter
	log     *logger.Logger
}

func NewTelegram(cfg TelegramConfig, log *logger.Logger) (*Telegram, error) {
	if !cfg.Enabled() {
		return nil, ErrTelegramDisabled
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	bot, err := telebot.NewBot(telebot.Settings{
		URL:       cfg.URL,
		Token:     cfg.Token,
		Offline:   true,
		ParseMode: telebot.ModeHTML,
		Client:    &http.Client{Timeout: cfg.Timeout},
		OnError: func(err error, _ telebot.Context) {
			log.Error("Telegram bot error", logger.ErrorField(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	return &Telegram{
		bot:     bot,
		chat:    &telebot.Chat{ID: cfg.ChatID},
		limiter: rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), 1),
		log:     log.With(logger.StringField("chat", strconv.FormatInt(cfg.ChatID, 10))),
	}, nil
}

func (t *Telegram) Notify(ctx context.Context, e Event) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := t.bot.Send(t.chat, e.HTML(), telebot.ModeHTML, telebot.NoPreview); err != nil {
		t.log.ErrorContext(ctx, "Failed to send telegram message",
			logger.StringField("event", e.Kind()), logger.ErrorField(err))
		return fmt.Errorf("telegram %s: %w", e.Kind(), err)
	}
	return nil
}
