package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/koromind/koromind/internal/approvals"
	"github.com/koromind/koromind/internal/brain"
	"github.com/koromind/koromind/internal/domain"
	"github.com/koromind/koromind/internal/engine"
)

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	b.runTurn(ctx, msg, brain.TurnRequest{
		UserID:      userID(msg.From.ID),
		ContentType: domain.ContentText,
		Text:        msg.Text,
	})
}

func (b *Bot) handleVoice(ctx context.Context, msg *tgbotapi.Message) {
	audio, err := b.downloadVoice(ctx, msg.Voice.FileID)
	if err != nil {
		slog.Error("failed to download voice message", "error", err, "telegram_id", msg.From.ID)
		b.send(msg.Chat.ID, "Could not download the voice message.")
		return
	}

	b.runTurn(ctx, msg, brain.TurnRequest{
		UserID:      userID(msg.From.ID),
		ContentType: domain.ContentVoice,
		Audio:       audio,
	})
}

func (b *Bot) runTurn(ctx context.Context, msg *tgbotapi.Message, req brain.TurnRequest) {
	chatID := msg.Chat.ID
	b.sendTyping(chatID)

	req.OnToolCall = func(toolName, detail string) {
		if detail != "" {
			b.send(chatID, toolName+": "+detail)
		} else {
			b.send(chatID, "Using: "+toolName)
		}
	}
	req.CanUseTool = b.approvalPrompt(chatID, req.UserID)

	result, err := b.brain.ProcessTurn(ctx, req)
	if err != nil {
		b.send(chatID, turnErrorMessage(err))
		return
	}

	b.sendLong(chatID, result.Text)
	if len(result.Audio) > 0 {
		b.sendVoice(chatID, result.Audio)
	}
}

// approvalPrompt surfaces approve-mode decisions as inline keyboards. The
// decision is shared through the tracker, so the REST API can resolve it too.
func (b *Bot) approvalPrompt(chatID int64, user string) engine.ApprovalFunc {
	return func(ctx context.Context, toolName string, toolInput map[string]any) (bool, error) {
		pending := b.tracker.Add(user, toolName, toolInput)

		markup := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Approve", "approve_"+pending.ID),
				tgbotapi.NewInlineKeyboardButtonData("Reject", "reject_"+pending.ID),
			),
		)
		prompt := "Tool request: " + toolName
		if detail := engine.ToolDetail(toolName, toolInput); detail != "" {
			prompt += "\n" + detail
		}
		b.sendWithMarkup(chatID, prompt, &markup)

		return pending.Wait(ctx) == approvals.Approved, nil
	}
}

func (b *Bot) downloadVoice(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download voice file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download voice file: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// turnErrorMessage keeps user-visible errors generic; detail stays in the log.
func turnErrorMessage(err error) string {
	slog.Error("telegram turn failed", "error", err)
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "Slow down a little."
	case errors.Is(err, domain.ErrTranscriptionFailed):
		return "Could not understand the audio. Please try again."
	case errors.Is(err, domain.ErrInvalidInput):
		return err.Error()
	default:
		return "Something went wrong. Please try again."
	}
}
