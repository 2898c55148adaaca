package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/koromind/koromind/internal/domain"
)

// Session and settings passthroughs for front-ends. All storage failures
// surface as ErrStorageUnavailable; driver errors never cross this boundary.

// ListSessions returns the user's sessions, most-recently-active first.
func (b *Brain) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	sessions, err := b.repo.ListSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", domain.ErrStorageUnavailable, err)
	}
	return sessions, nil
}

// CurrentSession returns the user's current session, or nil.
func (b *Brain) CurrentSession(ctx context.Context, userID string) (*domain.Session, error) {
	sess, err := b.repo.GetCurrentSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: get current session: %v", domain.ErrStorageUnavailable, err)
	}
	return sess, nil
}

// SwitchSession makes an existing session current.
func (b *Brain) SwitchSession(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: missing session id", domain.ErrInvalidInput)
	}
	sess, err := b.repo.SetCurrentSession(ctx, userID, sessionID, "")
	if err != nil {
		return nil, fmt.Errorf("%w: switch session: %v", domain.ErrStorageUnavailable, err)
	}
	return sess, nil
}

// StartNewSession clears the current session so the next turn opens a fresh
// engine session, optionally staging a name for it. The session record
// itself is created when the engine returns its id.
func (b *Brain) StartNewSession(ctx context.Context, userID, name string) error {
	if name = strings.TrimSpace(name); name != "" {
		if err := b.repo.SetPendingSessionName(ctx, userID, name); err != nil {
			return fmt.Errorf("%w: stage session name: %v", domain.ErrStorageUnavailable, err)
		}
	}
	if err := b.repo.ClearCurrentSession(ctx, userID); err != nil {
		return fmt.Errorf("%w: clear current session: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

// Settings returns the user's settings, materializing defaults on first use.
func (b *Brain) Settings(ctx context.Context, userID string) (domain.Settings, error) {
	settings, err := b.repo.GetSettings(ctx, userID)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("%w: get settings: %v", domain.ErrStorageUnavailable, err)
	}
	return settings, nil
}

// UpdateSettings merges a partial update and returns the result.
func (b *Brain) UpdateSettings(ctx context.Context, userID string, update domain.SettingsUpdate) (domain.Settings, error) {
	settings, err := b.repo.UpdateSettings(ctx, userID, update)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return domain.Settings{}, err
		}
		return domain.Settings{}, fmt.Errorf("%w: update settings: %v", domain.ErrStorageUnavailable, err)
	}
	return settings, nil
}
