package voice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTranscribe(t *testing.T) {
	var gotLanguage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/speech-to-text" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Errorf("Expected api key header, got %q", r.Header.Get("xi-api-key"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("Failed to parse form: %v", err)
		}
		gotLanguage = r.FormValue("language_code")
		if r.FormValue("model_id") != "scribe_v1" {
			t.Errorf("Expected scribe model, got %q", r.FormValue("model_id"))
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
	}))
	defer srv.Close()

	e := NewElevenLabs("test-key", WithBaseURL(srv.URL))

	text, err := e.Transcribe(context.Background(), []byte("ogg bytes"), "en")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "hello world" {
		t.Errorf("Expected transcript, got %q", text)
	}
	if gotLanguage != "en" {
		t.Errorf("Expected language forwarded, got %q", gotLanguage)
	}
}

func TestTranscribeAutoLanguageOmitted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("Failed to parse form: %v", err)
		}
		if _, ok := r.MultipartForm.Value["language_code"]; ok {
			t.Error("Expected language_code omitted for auto detection")
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer srv.Close()

	e := NewElevenLabs("test-key", WithBaseURL(srv.URL))
	if _, err := e.Transcribe(context.Background(), []byte("ogg"), LanguageAuto); err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
}

func TestTranscribeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"bad audio"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	e := NewElevenLabs("test-key", WithBaseURL(srv.URL))

	_, err := e.Transcribe(context.Background(), []byte("ogg"), "en")
	if !errors.Is(err, ErrTranscription) {
		t.Errorf("Expected ErrTranscription, got %v", err)
	}

	if _, err := e.Transcribe(context.Background(), nil, "en"); !errors.Is(err, ErrTranscription) {
		t.Errorf("Expected ErrTranscription for empty audio, got %v", err)
	}
}

func TestTranscribeNotConfigured(t *testing.T) {
	e := NewElevenLabs("")
	if _, err := e.Transcribe(context.Background(), []byte("ogg"), "en"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
	if _, err := e.Synthesize(context.Background(), "hi", 1.0); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestSynthesize(t *testing.T) {
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/text-to-speech/") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("output_format") != "opus_48000_64" {
			t.Errorf("Expected opus output format, got %q", r.URL.Query().Get("output_format"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("Failed to decode payload: %v", err)
		}
		w.Write([]byte("opus audio"))
	}))
	defer srv.Close()

	e := NewElevenLabs("test-key", WithBaseURL(srv.URL), WithVoiceID("custom-voice"))

	audio, err := e.Synthesize(context.Background(), "hello", 0.9)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(audio) != "opus audio" {
		t.Errorf("Expected audio bytes, got %q", audio)
	}

	vs, _ := gotPayload["voice_settings"].(map[string]any)
	if vs["speed"] != 0.9 {
		t.Errorf("Expected speed forwarded, got %v", vs["speed"])
	}
	if gotPayload["model_id"] != "eleven_multilingual_v2" {
		t.Errorf("Expected multilingual model, got %v", gotPayload["model_id"])
	}
}

func TestSynthesizeTruncatesLongText(t *testing.T) {
	var gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		gotText, _ = payload["text"].(string)
		w.Write([]byte("audio"))
	}))
	defer srv.Close()

	e := NewElevenLabs("test-key", WithBaseURL(srv.URL))

	long := strings.Repeat("a", 1200)
	if _, err := e.Synthesize(context.Background(), long, 1.0); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(gotText) > maxSynthesisChars {
		t.Errorf("Expected text capped at %d chars, got %d", maxSynthesisChars, len(gotText))
	}
	if !strings.HasSuffix(gotText, "...") {
		t.Error("Expected truncated text to end with ellipsis")
	}

	// Multibyte text must be cut at a rune boundary.
	long = strings.Repeat("é", 1200)
	if _, err := e.Synthesize(context.Background(), long, 1.0); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if !utf8.ValidString(gotText) {
		t.Error("Expected truncated text to remain valid UTF-8")
	}
	if len(gotText) > maxSynthesisChars {
		t.Errorf("Expected multibyte text capped at %d bytes, got %d", maxSynthesisChars, len(gotText))
	}
}

func TestSynthesizeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"quota"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := NewElevenLabs("test-key", WithBaseURL(srv.URL))

	if _, err := e.Synthesize(context.Background(), "hi", 1.0); !errors.Is(err, ErrSynthesis) {
		t.Errorf("Expected ErrSynthesis, got %v", err)
	}
	if _, err := e.Synthesize(context.Background(), "", 1.0); !errors.Is(err, ErrSynthesis) {
		t.Errorf("Expected ErrSynthesis for empty text, got %v", err)
	}
}
