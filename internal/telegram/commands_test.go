package telegram

import (
	"strings"
	"testing"

	"github.com/koromind/koromind/internal/domain"
)

func sessionsFixture() []domain.Session {
	return []domain.Session{
		{ID: "aaa111-long-id", UserID: "u", Name: "research"},
		{ID: "aab222-long-id", UserID: "u", Name: "recipes"},
		{ID: "bbb333-long-id", UserID: "u"},
	}
}

func TestResolveSessionExactName(t *testing.T) {
	target, matches := resolveSession(sessionsFixture(), "Research")
	if target == nil || target.Name != "research" {
		t.Fatalf("Expected exact name match, got %+v (matches %v)", target, matches)
	}
}

func TestResolveSessionNamePrefixAmbiguous(t *testing.T) {
	target, matches := resolveSession(sessionsFixture(), "re")
	if target != nil {
		t.Fatalf("Expected ambiguity, got %+v", target)
	}
	if len(matches) != 2 {
		t.Errorf("Expected 2 candidates, got %d", len(matches))
	}
}

func TestResolveSessionIDPrefix(t *testing.T) {
	target, _ := resolveSession(sessionsFixture(), "bbb")
	if target == nil || target.ID != "bbb333-long-id" {
		t.Fatalf("Expected id prefix match, got %+v", target)
	}
}

func TestResolveSessionNoMatch(t *testing.T) {
	target, matches := resolveSession(sessionsFixture(), "zzz")
	if target != nil || len(matches) != 0 {
		t.Errorf("Expected no match, got %+v / %v", target, matches)
	}
}

func TestSessionLabel(t *testing.T) {
	named := domain.Session{ID: "abcdefgh1234", Name: "notes"}
	if got := sessionLabel(named); got != "notes" {
		t.Errorf("Expected name label, got %q", got)
	}

	unnamed := domain.Session{ID: "abcdefgh1234"}
	if got := sessionLabel(unnamed); got != "abcdefgh" {
		t.Errorf("Expected short id label, got %q", got)
	}
}

func TestSettingsText(t *testing.T) {
	s := domain.DefaultSettings("u")
	text := settingsText(s)

	for _, want := range []string{"Mode: Auto", "Watch: OFF", "Audio: ON", "1.1x", "Model: default"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in settings text:\n%s", want, text)
		}
	}

	s.Mode = domain.ModeApprove
	s.Model = "opus"
	text = settingsText(s)
	if !strings.Contains(text, "Mode: Approve") || !strings.Contains(text, "Model: opus") {
		t.Errorf("Expected updated settings text, got:\n%s", text)
	}
}

func TestSettingsMarkupCallbackData(t *testing.T) {
	markup := settingsMarkup(domain.DefaultSettings("u"))

	var data []string
	for _, row := range markup.InlineKeyboard {
		for _, btn := range row {
			if btn.CallbackData != nil {
				data = append(data, *btn.CallbackData)
			}
		}
	}

	joined := strings.Join(data, " ")
	for _, want := range []string{"setting_mode_toggle", "setting_watch_toggle", "setting_audio_toggle", "setting_speed_1.0"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected callback %q in markup, got %v", want, data)
		}
	}
}
