package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/koromind/koromind/internal/domain"
)

const helpText = `Commands:

Sessions:
/new [name] - Start new session
/continue - Resume last session
/sessions - List recent sessions
/switch <name|id> - Switch to session
/status - Current session info

Settings:
/settings - Configure mode, watch, audio, and voice speed
/mode - Toggle auto/approve mode
/watch - Toggle tool-call notifications
/speed [0.7-1.2] - Show or set voice speed
/model [name] - Show or set the model

Control:
/stop - Interrupt the current turn
/help - Show this list`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	user := userID(msg.From.ID)
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		b.send(chatID, helpText)
	case "new":
		b.cmdNew(ctx, chatID, user, args)
	case "continue", "resume":
		b.cmdContinue(ctx, chatID, user)
	case "sessions":
		b.cmdSessions(ctx, chatID, user)
	case "switch":
		b.cmdSwitch(ctx, chatID, user, args)
	case "status":
		b.cmdStatus(ctx, chatID, user)
	case "settings":
		b.cmdSettings(ctx, chatID, user)
	case "mode":
		b.cmdMode(ctx, chatID, user)
	case "watch":
		b.cmdWatch(ctx, chatID, user)
	case "speed":
		b.cmdSpeed(ctx, chatID, user, args)
	case "model":
		b.cmdModel(ctx, chatID, user, args)
	case "stop":
		b.cmdStop(chatID, user)
	default:
		b.send(chatID, "Unknown command. Try /help.")
	}
}

func (b *Bot) cmdNew(ctx context.Context, chatID int64, user, name string) {
	if err := b.brain.StartNewSession(ctx, user, name); err != nil {
		b.send(chatID, turnErrorMessage(err))
		return
	}
	if name != "" {
		b.send(chatID, fmt.Sprintf("New session selected: %s\nYour next message will start it.", name))
	} else {
		b.send(chatID, "New session selected. Your next message will start it.")
	}
}

func (b *Bot) cmdContinue(ctx context.Context, chatID int64, user string) {
	sess, err := b.brain.CurrentSession(ctx, user)
	if err != nil {
		b.send(chatID, turnErrorMessage(err))
		return
	}
	if sess == nil {
		b.send(chatID, "No previous session. Send a message to start.")
		return
	}
	b.send(chatID, "Continuing session: "+sessionLabel(*sess))
}

func (b *Bot) cmdSessions(ctx context.Context, chatID int64, user string) {
	sessions, err := b.brain.ListSessions(ctx, user)
	if err != nil {
		b.send(chatID, turnErrorMessage(err))
		return
	}
	if len(sessions) == 0 {
		b.send(chatID, "No sessions yet.")
		return
	}

	const listLimit = 10
	if len(sessions) > listLimit {
		sessions = sessions[:listLimit]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Sessions (%d):\n", len(sessions))
	for i, sess := range sessions {
		marker := ""
		if sess.IsCurrent {
			marker = " (current)"
		}
		if sess.Name != "" {
			fmt.Fprintf(&sb, "%d. %s [%s]%s\n", i+1, shortID(sess.ID), sess.Name, marker)
		} else {
			fmt.Fprintf(&sb, "%d. %s%s\n", i+1, shortID(sess.ID), marker)
		}
	}
	sb.WriteString("\nUse /switch <name|id-prefix> to switch.")
	b.send(chatID, sb.String())
}

func (b *Bot) cmdSwitch(ctx context.Context, chatID int64, user, query string) {
	sessions, err := b.brain.ListSessions(ctx, user)
	if err != nil {
		b.send(chatID, turnErrorMessage(err))
		return
	}

	if query == "" {
		if len(sessions) == 0 {
			b.send(chatID, "No sessions yet.")
			return
		}
		markup := switchPickerMarkup(sessions)
		b.sendWithMarkup(chatID, "Select a session to switch:", &markup)
		return
	}

	target, matches := resolveSession(sessions, query)
	switch {
	case target != nil:
		sess, err := b.brain.SwitchSession(ctx, user, target.ID)
		if err != nil {
			b.send(chatID, turnErrorMessage(err))
			return
		}
		b.send(chatID, "Switched to session: "+sessionLabel(*sess))
	case len(matches) > 0:
		labels := make([]string, 0, len(matches))
		for i, m := range matches {
			if i == 5 {
				break
			}
			labels = append(labels, sessionLabel(m))
		}
		markup := switchPickerMarkup(matches)
		b.sendWithMarkup(chatID,
			"Multiple matches. Pick one below or be more specific.\nMatches: "+strings.Join(labels, ", "),
			&markup)
	default:
		b.send(chatID, "Session not found: "+query)
	}
}

func (b *Bot) cmdStatus(ctx context.Context, chatID int64, user string) {
	sess, err := b.brain.CurrentSession(ctx, user)
	if err != nil {
		b.send(chatID, turnErrorMessage(err))
		return
	}
	sessions, err := b.brain.ListSessions(ctx, user)
	if err != nil {
		b.send(chatID, turnErrorMessage(err))
		return
	}

	if sess == nil {
		b.send(chatID, "No active session. Send a message or /new to start.")
		return
	}
	b.send(chatID, fmt.Sprintf("Current session: %s\nTotal sessions: %d", sessionLabel(*sess), len(sessions)))
}

func (b *Bot) cmdSettings(ctx context.Context, chatID int64, user string) {
	settings, err := b.brain.Settings(ctx, user)
	if err != nil {
		b.send(chatID, turnErrorMessage(err))
		return
	}
	markup := settingsMarkup(settings)
	b.sendWithMarkup(chatID, settingsText(settings), &markup)
}

func (b *Bot) cmdMode(ctx context.Context, chatID int64, user string) {
	settings, err := b.brain.Settings(ctx, user)
	if err != nil {
		b.send(chatID, turnErrorMessage(err))
		return
	}
	mode := domain.ModeAuto
	if settings.Mode == domain.ModeAuto {
		mode = domain.ModeApprove
	}
	if _, err := b.brain.UpdateSettings(ctx, user, domain.SettingsUpdate{Mode: &mode}); err != nil {
		b.send(chatID, turnErrorMessage(err))
		return
	}
	b.send(chatID, "Mode: "+modeDisplay(mode))
}

func (b *Bot) cmdWatch(ctx context.Context, chatID int64, user string) {
	settings, err := b.brain.Settings(ctx, user)
	if err != nil {
		b.send(chatID, turnErrorMessage(err))
		return
	}
	watch := !settings.WatchEnabled
	if _, err := b.brain.UpdateSettings(ctx, user, domain.SettingsUpdate{WatchEnabled: &watch}); err != nil {
		b.send(chatID, turnErrorMessage(err))
		return
	}
	b.send(chatID, "Watch: "+onOff(watch))
}

func (b *Bot) cmdSpeed(ctx context.Context, chatID int64, user, arg string) {
	if arg == "" {
		settings, err := b.brain.Settings(ctx, user)
		if err != nil {
			b.send(chatID, turnErrorMessage(err))
			return
		}
		b.send(chatID, fmt.Sprintf("Voice speed: %.1fx\n\nUsage: /speed <0.7-1.2>", settings.VoiceSpeed))
		return
	}

	speed, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		b.send(chatID, "Usage: /speed <0.7-1.2>")
		return
	}
	if _, err := b.brain.UpdateSettings(ctx, user, domain.SettingsUpdate{VoiceSpeed: &speed}); err != nil {
		b.send(chatID, turnErrorMessage(err))
		return
	}
	b.send(chatID, fmt.Sprintf("Voice speed: %.1fx", speed))
}

func (b *Bot) cmdModel(ctx context.Context, chatID int64, user, model string) {
	if model == "" {
		settings, err := b.brain.Settings(ctx, user)
		if err != nil {
			b.send(chatID, turnErrorMessage(err))
			return
		}
		current := settings.Model
		if current == "" {
			current = "default"
		}
		b.send(chatID, fmt.Sprintf("Current model: %s\n\nUsage:\n/model <name>\n/model default", current))
		return
	}

	if strings.EqualFold(model, "default") {
		model = ""
	}
	if _, err := b.brain.UpdateSettings(ctx, user, domain.SettingsUpdate{Model: &model}); err != nil {
		b.send(chatID, turnErrorMessage(err))
		return
	}
	if model == "" {
		b.send(chatID, "Model set to default.")
	} else {
		b.send(chatID, "Model set to: "+model)
	}
}

func (b *Bot) cmdStop(chatID int64, user string) {
	if b.brain.Interrupt(user) {
		b.send(chatID, "Interrupted.")
	} else {
		b.send(chatID, "Nothing is running.")
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sessionLabel(sess domain.Session) string {
	if sess.Name != "" {
		return sess.Name
	}
	return shortID(sess.ID)
}

func sessionButtonLabel(sess domain.Session) string {
	if sess.Name != "" {
		return fmt.Sprintf("%s (%s)", sess.Name, shortID(sess.ID))
	}
	return shortID(sess.ID)
}

func switchPickerMarkup(sessions []domain.Session) tgbotapi.InlineKeyboardMarkup {
	const pickerLimit = 10
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, pickerLimit)
	for i, sess := range sessions {
		if i == pickerLimit {
			break
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(sessionButtonLabel(sess), "switch_"+sess.ID),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// resolveSession matches by exact name, then name prefix, then id prefix. A
// unique match wins; ambiguous matches are returned for disambiguation.
func resolveSession(sessions []domain.Session, query string) (*domain.Session, []domain.Session) {
	lower := strings.ToLower(query)
	candidates := [][]domain.Session{}

	var exact, namePrefix, idPrefix []domain.Session
	for _, sess := range sessions {
		name := strings.ToLower(sess.Name)
		if sess.Name != "" && name == lower {
			exact = append(exact, sess)
		}
		if sess.Name != "" && strings.HasPrefix(name, lower) {
			namePrefix = append(namePrefix, sess)
		}
		if strings.HasPrefix(sess.ID, query) {
			idPrefix = append(idPrefix, sess)
		}
	}
	candidates = append(candidates, exact, namePrefix, idPrefix)

	for _, matches := range candidates {
		if len(matches) == 1 {
			return &matches[0], nil
		}
		if len(matches) > 0 {
			return nil, matches
		}
	}
	return nil, nil
}
