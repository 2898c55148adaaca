package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
	"unicode/utf8"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultVoiceID = "JBFqnCBsd6RMkjVDRZzb"
	sttModelID     = "scribe_v1"
	ttsModelID     = "eleven_multilingual_v2"

	// maxSynthesisChars caps TTS input so voice replies stay short.
	maxSynthesisChars = 500
)

// ElevenLabs implements Provider against the ElevenLabs HTTP API.
type ElevenLabs struct {
	apiKey  string
	voiceID string
	baseURL string
	client  *http.Client
}

// ElevenLabsOption customizes the client.
type ElevenLabsOption func(*ElevenLabs)

// WithVoiceID overrides the synthesis voice.
func WithVoiceID(id string) ElevenLabsOption {
	return func(e *ElevenLabs) { e.voiceID = id }
}

// WithBaseURL points the client at a different endpoint (tests).
func WithBaseURL(url string) ElevenLabsOption {
	return func(e *ElevenLabs) { e.baseURL = url }
}

// NewElevenLabs creates an ElevenLabs voice provider.
func NewElevenLabs(apiKey string, opts ...ElevenLabsOption) *ElevenLabs {
	e := &ElevenLabs{
		apiKey:  apiKey,
		voiceID: defaultVoiceID,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ Provider = (*ElevenLabs)(nil)

// Transcribe converts audio to text via the speech-to-text endpoint.
func (e *ElevenLabs) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	if e.apiKey == "" {
		return "", ErrNotConfigured
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: empty audio", ErrTranscription)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("file", "audio.ogg")
	if err != nil {
		return "", fmt.Errorf("%w: build form: %v", ErrTranscription, err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("%w: write audio: %v", ErrTranscription, err)
	}
	if err := form.WriteField("model_id", sttModelID); err != nil {
		return "", fmt.Errorf("%w: write model field: %v", ErrTranscription, err)
	}
	if language != "" && language != LanguageAuto {
		if err := form.WriteField("language_code", language); err != nil {
			return "", fmt.Errorf("%w: write language field: %v", ErrTranscription, err)
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("%w: close form: %v", ErrTranscription, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/speech-to-text", &body)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrTranscription, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: API returned %d: %s", ErrTranscription, resp.StatusCode, detail)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrTranscription, err)
	}
	return result.Text, nil
}

// Synthesize converts text to audio via the text-to-speech endpoint.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string, speed float64) ([]byte, error) {
	if e.apiKey == "" {
		return nil, ErrNotConfigured
	}
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrSynthesis)
	}
	if len(text) > maxSynthesisChars {
		cut := maxSynthesisChars - 3
		// Back off to a rune boundary so truncation never produces
		// invalid UTF-8.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}

	payload := map[string]any{
		"text":     text,
		"model_id": ttsModelID,
		"voice_settings": map[string]any{
			"stability":        0.3,
			"similarity_boost": 0.75,
			"style":            0.4,
			"speed":            speed,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrSynthesis, err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=opus_48000_64", e.baseURL, e.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrSynthesis, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: API returned %d: %s", ErrSynthesis, resp.StatusCode, detail)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read audio: %v", ErrSynthesis, err)
	}
	return audio, nil
}
