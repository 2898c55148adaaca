package domain

import (
	"fmt"
	"regexp"
)

// Mode controls how the agent engine handles tool calls.
type Mode string

const (
	// ModeAuto executes tool calls without asking.
	ModeAuto Mode = "auto"
	// ModeApprove requires a human decision before each tool call.
	ModeApprove Mode = "approve"
)

// Valid reports whether the mode is a known value.
func (m Mode) Valid() bool {
	return m == ModeAuto || m == ModeApprove
}

// Voice speed bounds, taken from the voice provider's supported range.
const (
	MinVoiceSpeed = 0.7
	MaxVoiceSpeed = 1.2
)

// STTLanguageAuto asks the voice provider to detect the language itself.
const STTLanguageAuto = "auto"

// ISO 639-1 style codes, optionally with a region subtag ("en", "pt-BR").
var languageCodePattern = regexp.MustCompile(`^[a-z]{2}(-[A-Za-z]{2})?$`)

// Settings holds per-user preferences. A user with no stored row gets
// DefaultSettings, which is persisted on first read.
type Settings struct {
	UserID       string  `json:"user_id"`
	Mode         Mode    `json:"mode"`
	AudioEnabled bool    `json:"audio_enabled"`
	VoiceSpeed   float64 `json:"voice_speed"`
	WatchEnabled bool    `json:"watch_enabled"`
	STTLanguage  string  `json:"stt_language"`
	Model        string  `json:"model,omitempty"`
}

// DefaultSettings returns the fully-populated default record for a user.
func DefaultSettings(userID string) Settings {
	return Settings{
		UserID:       userID,
		Mode:         ModeAuto,
		AudioEnabled: true,
		VoiceSpeed:   1.1,
		WatchEnabled: false,
		STTLanguage:  STTLanguageAuto,
		Model:        "",
	}
}

// SettingsUpdate is a partial settings change. Nil fields are left untouched
// (merge semantics). Field names are fixed at compile time, so an update can
// never smuggle an unknown column into the store.
type SettingsUpdate struct {
	Mode         *Mode    `json:"mode,omitempty"`
	AudioEnabled *bool    `json:"audio_enabled,omitempty"`
	VoiceSpeed   *float64 `json:"voice_speed,omitempty"`
	WatchEnabled *bool    `json:"watch_enabled,omitempty"`
	STTLanguage  *string  `json:"stt_language,omitempty"`
	Model        *string  `json:"model,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u SettingsUpdate) IsEmpty() bool {
	return u.Mode == nil && u.AudioEnabled == nil && u.VoiceSpeed == nil &&
		u.WatchEnabled == nil && u.STTLanguage == nil && u.Model == nil
}

// Validate checks every supplied field against its bounds.
func (u SettingsUpdate) Validate() error {
	if u.Mode != nil && !u.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, *u.Mode)
	}
	if u.VoiceSpeed != nil {
		if *u.VoiceSpeed < MinVoiceSpeed || *u.VoiceSpeed > MaxVoiceSpeed {
			return fmt.Errorf("%w: voice_speed %.2f outside [%.1f, %.1f]",
				ErrInvalidInput, *u.VoiceSpeed, MinVoiceSpeed, MaxVoiceSpeed)
		}
	}
	if u.STTLanguage != nil && *u.STTLanguage != STTLanguageAuto {
		if !languageCodePattern.MatchString(*u.STTLanguage) {
			return fmt.Errorf("%w: invalid stt_language %q", ErrInvalidInput, *u.STTLanguage)
		}
	}
	return nil
}

// Apply merges the update into a copy of s and returns it.
func (u SettingsUpdate) Apply(s Settings) Settings {
	if u.Mode != nil {
		s.Mode = *u.Mode
	}
	if u.AudioEnabled != nil {
		s.AudioEnabled = *u.AudioEnabled
	}
	if u.VoiceSpeed != nil {
		s.VoiceSpeed = *u.VoiceSpeed
	}
	if u.WatchEnabled != nil {
		s.WatchEnabled = *u.WatchEnabled
	}
	if u.STTLanguage != nil {
		s.STTLanguage = *u.STTLanguage
	}
	if u.Model != nil {
		s.Model = *u.Model
	}
	return s
}
