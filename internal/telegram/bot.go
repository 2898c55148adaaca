// Package telegram provides the Telegram front-end over the Brain.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/koromind/koromind/internal/approvals"
	"github.com/koromind/koromind/internal/brain"
)

// maxMessageLen is Telegram's hard limit, minus headroom for markup.
const maxMessageLen = 4000

// Bot runs long polling against the Telegram API and forwards turns to the
// Brain. Each update is handled in its own goroutine; per-user ordering is
// enforced downstream by the Brain's turn serialization.
type Bot struct {
	api     *tgbotapi.BotAPI
	brain   *brain.Brain
	tracker *approvals.Tracker
	allowed map[int64]bool
	client  *http.Client
}

// New creates a Bot. An empty allowedIDs list admits everyone.
func New(token string, allowedIDs []int64, b *brain.Brain, tracker *approvals.Tracker) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	allowed := make(map[int64]bool, len(allowedIDs))
	for _, id := range allowedIDs {
		allowed[id] = true
	}

	return &Bot{
		api:     api,
		brain:   b,
		tracker: tracker,
		allowed: allowed,
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	slog.Info("telegram bot started", "username", b.api.Self.UserName)

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			slog.Info("telegram bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("telegram handler panicked", "panic", r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	if !b.authorized(msg.From.ID) {
		slog.Warn("ignoring message from unauthorized user", "telegram_id", msg.From.ID)
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg)
	case msg.Voice != nil:
		b.handleVoice(ctx, msg)
	case msg.Text != "":
		b.handleText(ctx, msg)
	}
}

func (b *Bot) authorized(telegramID int64) bool {
	return len(b.allowed) == 0 || b.allowed[telegramID]
}

// userID maps a Telegram user to a Brain user id.
func userID(telegramID int64) string {
	return strconv.FormatInt(telegramID, 10)
}

func (b *Bot) send(chatID int64, text string) {
	b.sendWithMarkup(chatID, text, nil)
}

func (b *Bot) sendWithMarkup(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := b.api.Send(msg); err != nil {
		slog.Warn("failed to send telegram message", "chat_id", chatID, "error", err)
	}
}

// sendLong splits text across messages to stay under Telegram's length limit.
func (b *Bot) sendLong(chatID int64, text string) {
	for len(text) > maxMessageLen {
		cut := maxMessageLen
		// Prefer breaking on a newline within the last quarter of the chunk.
		for i := maxMessageLen - 1; i > maxMessageLen*3/4; i-- {
			if text[i] == '\n' {
				cut = i
				break
			}
		}
		b.send(chatID, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		b.send(chatID, text)
	}
}

func (b *Bot) sendVoice(chatID int64, audio []byte) {
	voice := tgbotapi.NewVoice(chatID, tgbotapi.FileBytes{Name: "reply.ogg", Bytes: audio})
	if _, err := b.api.Send(voice); err != nil {
		slog.Warn("failed to send voice reply", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) sendTyping(chatID int64) {
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		slog.Debug("failed to send chat action", "error", err)
	}
}
