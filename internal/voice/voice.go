// Package voice provides the speech-to-text / text-to-speech boundary.
package voice

import (
	"context"
	"errors"
)

// Language hint asking the provider to detect the language itself.
const LanguageAuto = "auto"

// Typed failure categories. Callers branch with errors.Is; failure is never
// encoded as a distinguished string in the success value space.
var (
	// ErrTranscription marks a speech-to-text failure.
	ErrTranscription = errors.New("voice transcription failed")
	// ErrSynthesis marks a text-to-speech failure.
	ErrSynthesis = errors.New("voice synthesis failed")
	// ErrNotConfigured marks a provider missing credentials.
	ErrNotConfigured = errors.New("voice provider not configured")
)

// Provider converts between audio and text.
type Provider interface {
	// Transcribe converts audio bytes to text. language is an ISO code or
	// LanguageAuto.
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)

	// Synthesize converts text to audio bytes at the given playback speed.
	Synthesize(ctx context.Context, text string, speed float64) ([]byte, error)
}
