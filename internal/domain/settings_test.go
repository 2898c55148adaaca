package domain

import "testing"

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings("user1")

	if s.UserID != "user1" {
		t.Errorf("Expected user id set, got %q", s.UserID)
	}
	if s.Mode != ModeAuto {
		t.Errorf("Expected default mode auto, got %s", s.Mode)
	}
	if !s.AudioEnabled {
		t.Error("Expected audio enabled by default")
	}
	if s.VoiceSpeed != 1.1 {
		t.Errorf("Expected default speed 1.1, got %v", s.VoiceSpeed)
	}
	if s.WatchEnabled {
		t.Error("Expected watch disabled by default")
	}
	if s.STTLanguage != STTLanguageAuto {
		t.Errorf("Expected stt language auto, got %s", s.STTLanguage)
	}
}

func TestSettingsUpdateValidate(t *testing.T) {
	ptr := func(f float64) *float64 { return &f }
	mode := func(m Mode) *Mode { return &m }
	str := func(s string) *string { return &s }

	cases := []struct {
		name    string
		update  SettingsUpdate
		wantErr bool
	}{
		{"empty", SettingsUpdate{}, false},
		{"valid mode", SettingsUpdate{Mode: mode(ModeApprove)}, false},
		{"invalid mode", SettingsUpdate{Mode: mode("yolo")}, true},
		{"speed lower bound", SettingsUpdate{VoiceSpeed: ptr(0.7)}, false},
		{"speed upper bound", SettingsUpdate{VoiceSpeed: ptr(1.2)}, false},
		{"speed too slow", SettingsUpdate{VoiceSpeed: ptr(0.69)}, true},
		{"speed too fast", SettingsUpdate{VoiceSpeed: ptr(1.21)}, true},
		{"language auto", SettingsUpdate{STTLanguage: str("auto")}, false},
		{"language code", SettingsUpdate{STTLanguage: str("en")}, false},
		{"language with region", SettingsUpdate{STTLanguage: str("pt-BR")}, false},
		{"language garbage", SettingsUpdate{STTLanguage: str("english please")}, true},
		{"language uppercase", SettingsUpdate{STTLanguage: str("EN")}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.update.Validate()
			if tc.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestSettingsUpdateApply(t *testing.T) {
	base := DefaultSettings("user1")

	mode := ModeApprove
	speed := 0.8
	merged := SettingsUpdate{Mode: &mode, VoiceSpeed: &speed}.Apply(base)

	if merged.Mode != ModeApprove {
		t.Errorf("Expected mode applied, got %s", merged.Mode)
	}
	if merged.VoiceSpeed != 0.8 {
		t.Errorf("Expected speed applied, got %v", merged.VoiceSpeed)
	}
	// Untouched fields carry over.
	if !merged.AudioEnabled {
		t.Error("Expected audio untouched")
	}
	if merged.STTLanguage != STTLanguageAuto {
		t.Errorf("Expected language untouched, got %s", merged.STTLanguage)
	}
	// The original is not mutated.
	if base.Mode != ModeAuto {
		t.Errorf("Expected base untouched, got %s", base.Mode)
	}
}

func TestSettingsUpdateIsEmpty(t *testing.T) {
	if !(SettingsUpdate{}).IsEmpty() {
		t.Error("Expected zero update to be empty")
	}
	off := false
	if (SettingsUpdate{AudioEnabled: &off}).IsEmpty() {
		t.Error("Expected update with field to be non-empty")
	}
}
