package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/koromind/koromind/internal/approvals"
	"github.com/koromind/koromind/internal/domain"
)

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil || !b.authorized(cq.From.ID) {
		b.answerCallback(cq.ID, "")
		return
	}
	user := userID(cq.From.ID)

	data := cq.Data
	switch {
	case strings.HasPrefix(data, "approve_"):
		b.resolveApproval(cq, strings.TrimPrefix(data, "approve_"), approvals.Approved)
	case strings.HasPrefix(data, "reject_"):
		b.resolveApproval(cq, strings.TrimPrefix(data, "reject_"), approvals.Denied)
	case strings.HasPrefix(data, "switch_"):
		b.callbackSwitch(ctx, cq, user, strings.TrimPrefix(data, "switch_"))
	case strings.HasPrefix(data, "setting_"):
		b.callbackSetting(ctx, cq, user, strings.TrimPrefix(data, "setting_"))
	default:
		b.answerCallback(cq.ID, "")
	}
}

func (b *Bot) resolveApproval(cq *tgbotapi.CallbackQuery, id string, decision approvals.Decision) {
	if !b.tracker.Resolve(id, decision) {
		b.answerCallback(cq.ID, "Already resolved or expired.")
		return
	}

	outcome := "Rejected"
	if decision == approvals.Approved {
		outcome = "Approved"
	}
	b.answerCallback(cq.ID, outcome)

	// Strip the buttons so the decision cannot be clicked twice.
	if cq.Message != nil {
		edit := tgbotapi.NewEditMessageText(cq.Message.Chat.ID, cq.Message.MessageID,
			cq.Message.Text+"\n\n"+outcome)
		if _, err := b.api.Send(edit); err != nil {
			slog.Debug("failed to edit approval message", "error", err)
		}
	}
}

func (b *Bot) callbackSwitch(ctx context.Context, cq *tgbotapi.CallbackQuery, user, sessionID string) {
	sess, err := b.brain.SwitchSession(ctx, user, sessionID)
	if err != nil {
		b.answerCallback(cq.ID, "Switch failed.")
		slog.Error("session switch via callback failed", "error", err, "user_id", user)
		return
	}
	b.answerCallback(cq.ID, "Switched")
	if cq.Message != nil {
		b.send(cq.Message.Chat.ID, "Switched to session: "+sessionLabel(*sess))
	}
}

func (b *Bot) callbackSetting(ctx context.Context, cq *tgbotapi.CallbackQuery, user, action string) {
	settings, err := b.brain.Settings(ctx, user)
	if err != nil {
		b.answerCallback(cq.ID, "Failed to load settings.")
		return
	}

	var update domain.SettingsUpdate
	switch {
	case action == "mode_toggle":
		mode := domain.ModeAuto
		if settings.Mode == domain.ModeAuto {
			mode = domain.ModeApprove
		}
		update.Mode = &mode
	case action == "watch_toggle":
		watch := !settings.WatchEnabled
		update.WatchEnabled = &watch
	case action == "audio_toggle":
		audio := !settings.AudioEnabled
		update.AudioEnabled = &audio
	case strings.HasPrefix(action, "speed_"):
		speed, err := strconv.ParseFloat(strings.TrimPrefix(action, "speed_"), 64)
		if err != nil {
			b.answerCallback(cq.ID, "")
			return
		}
		update.VoiceSpeed = &speed
	default:
		b.answerCallback(cq.ID, "")
		return
	}

	settings, err = b.brain.UpdateSettings(ctx, user, update)
	if err != nil {
		b.answerCallback(cq.ID, "Update failed.")
		slog.Error("settings update via callback failed", "error", err, "user_id", user)
		return
	}
	b.answerCallback(cq.ID, "Saved")

	// Redraw the settings message in place.
	if cq.Message != nil {
		edit := tgbotapi.NewEditMessageTextAndMarkup(cq.Message.Chat.ID, cq.Message.MessageID,
			settingsText(settings), settingsMarkup(settings))
		if _, err := b.api.Send(edit); err != nil {
			slog.Debug("failed to redraw settings message", "error", err)
		}
	}
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		slog.Debug("failed to answer callback query", "error", err)
	}
}

func onOff(enabled bool) string {
	if enabled {
		return "ON"
	}
	return "OFF"
}

func modeDisplay(mode domain.Mode) string {
	if mode == domain.ModeApprove {
		return "Approve"
	}
	return "Auto"
}

func settingsText(s domain.Settings) string {
	model := s.Model
	if model == "" {
		model = "default"
	}
	return fmt.Sprintf("Settings:\n\nMode: %s\nWatch: %s\nAudio: %s\nVoice Speed: %.1fx\nModel: %s",
		modeDisplay(s.Mode), onOff(s.WatchEnabled), onOff(s.AudioEnabled), s.VoiceSpeed, model)
}

func settingsMarkup(s domain.Settings) tgbotapi.InlineKeyboardMarkup {
	speeds := []string{"0.8", "0.9", "1.0", "1.1", "1.2"}
	speedRow := make([]tgbotapi.InlineKeyboardButton, 0, len(speeds))
	for _, sp := range speeds {
		speedRow = append(speedRow, tgbotapi.NewInlineKeyboardButtonData(sp+"x", "setting_speed_"+sp))
	}

	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Mode: "+modeDisplay(s.Mode), "setting_mode_toggle"),
			tgbotapi.NewInlineKeyboardButtonData("Watch: "+onOff(s.WatchEnabled), "setting_watch_toggle"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Audio: "+onOff(s.AudioEnabled), "setting_audio_toggle"),
		),
		tgbotapi.NewInlineKeyboardRow(speedRow...),
	)
}
