package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/koromind/koromind/internal/domain"
)

// Migration marker names persisted in migration_status. A failed import is
// recorded permanently and never retried on later startups.
const (
	markerJSONImport       = "json_import"
	markerJSONImportFailed = "json_import_failed"
)

var _ Repository = (*SQLiteStore)(nil)

type legacyUserState struct {
	CurrentSession string   `json:"current_session"`
	Sessions       []string `json:"sessions"`
}

type legacyUserSettings struct {
	Mode         string   `json:"mode"`
	AudioEnabled *bool    `json:"audio_enabled"`
	VoiceSpeed   *float64 `json:"voice_speed"`
	WatchEnabled *bool    `json:"watch_enabled"`
	Model        string   `json:"model"`
}

// ImportLegacyJSON performs a one-time import of the flat-file state format
// used before the SQLite store existed. The outcome (success or failure) is
// recorded in migration_status; subsequent calls are no-ops either way.
func (s *SQLiteStore) ImportLegacyJSON(ctx context.Context, statePath, settingsPath string) error {
	var done int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM migration_status
		WHERE name IN (?, ?)`,
		markerJSONImport, markerJSONImportFailed,
	).Scan(&done)
	if err != nil {
		return fmt.Errorf("check migration status: %w", err)
	}
	if done > 0 {
		return nil
	}

	var importErrs []string

	if err := s.importLegacySessions(ctx, statePath); err != nil {
		slog.Error("legacy session import failed", "path", statePath, "error", err)
		importErrs = append(importErrs, err.Error())
	}
	if err := s.importLegacySettings(ctx, settingsPath); err != nil {
		slog.Error("legacy settings import failed", "path", settingsPath, "error", err)
		importErrs = append(importErrs, err.Error())
	}

	marker := markerJSONImport
	if len(importErrs) > 0 {
		marker = markerJSONImportFailed
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO migration_status (name, completed_at) VALUES (?, ?)`,
		marker, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("record migration status: %w", err)
	}

	if len(importErrs) > 0 {
		return fmt.Errorf("legacy JSON import failed permanently: %v", importErrs)
	}
	return nil
}

func (s *SQLiteStore) importLegacySessions(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read legacy state file: %w", err)
	}

	var states map[string]legacyUserState
	if err := json.Unmarshal(data, &states); err != nil {
		return fmt.Errorf("parse legacy state file: %w", err)
	}

	now := time.Now().Unix()
	for userID, state := range states {
		for _, sessionID := range state.Sessions {
			isCurrent := 0
			if sessionID == state.CurrentSession {
				isCurrent = 1
			}
			if _, err := s.db.ExecContext(ctx, `
				INSERT OR IGNORE INTO sessions (id, user_id, is_current, created_at, last_active)
				VALUES (?, ?, ?, ?, ?)`,
				sessionID, userID, isCurrent, now, now,
			); err != nil {
				return fmt.Errorf("import session %s: %w", sessionID, err)
			}
		}
	}

	slog.Info("imported legacy sessions", "users", len(states))
	return nil
}

func (s *SQLiteStore) importLegacySettings(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read legacy settings file: %w", err)
	}

	var settings map[string]legacyUserSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("parse legacy settings file: %w", err)
	}

	for userID, legacy := range settings {
		merged := domain.DefaultSettings(userID)
		if legacy.Mode != "" {
			// The predecessor called auto mode "go_all".
			if legacy.Mode == "go_all" {
				merged.Mode = domain.ModeAuto
			} else {
				merged.Mode = domain.Mode(legacy.Mode)
			}
		}
		if legacy.AudioEnabled != nil {
			merged.AudioEnabled = *legacy.AudioEnabled
		}
		if legacy.VoiceSpeed != nil {
			merged.VoiceSpeed = *legacy.VoiceSpeed
		}
		if legacy.WatchEnabled != nil {
			merged.WatchEnabled = *legacy.WatchEnabled
		}
		merged.Model = legacy.Model

		if _, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO settings (user_id, `+settingsColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			userID, string(merged.Mode), boolToInt(merged.AudioEnabled),
			merged.VoiceSpeed, boolToInt(merged.WatchEnabled),
			merged.STTLanguage, merged.Model,
		); err != nil {
			return fmt.Errorf("import settings for %s: %w", userID, err)
		}
	}

	slog.Info("imported legacy settings", "users", len(settings))
	return nil
}
