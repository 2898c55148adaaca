// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/koromind/koromind/internal/domain"
)

// RateLimitState is the persisted throttling state for one user.
type RateLimitState struct {
	UserID      string
	LastMessage *time.Time
	MinuteStart time.Time
	MinuteCount int
}

// Repository defines the interface for persisting session and settings data.
// It is the only component allowed to mutate the database.
type Repository interface {
	// GetCurrentSession returns the user's current session, or nil if the
	// user has never had one.
	GetCurrentSession(ctx context.Context, userID string) (*domain.Session, error)

	// ListSessions returns the user's sessions ordered most-recently-active
	// first. Unknown users get an empty slice, not an error.
	ListSessions(ctx context.Context, userID string) ([]domain.Session, error)

	// SetCurrentSession makes sessionID the user's current session as one
	// atomic unit: the previous current flag is cleared, the target session
	// is created if unseen (consuming any pending name when displayName is
	// empty), last_active is bumped, and the least-recently-active
	// non-current sessions are evicted past the per-user cap.
	SetCurrentSession(ctx context.Context, userID, sessionID, displayName string) (*domain.Session, error)

	// ClearCurrentSession unsets the current flag so the next turn starts a
	// fresh engine session.
	ClearCurrentSession(ctx context.Context, userID string) error

	// SetPendingSessionName stages a name for the next session created for
	// this user. An empty name clears the staged value.
	SetPendingSessionName(ctx context.Context, userID, name string) error

	// TakePendingSessionName returns and clears the staged name in one
	// atomic step, so a name can never be consumed twice.
	TakePendingSessionName(ctx context.Context, userID string) (string, error)

	// GetSettings returns the user's settings, materializing and persisting
	// defaults on first access.
	GetSettings(ctx context.Context, userID string) (domain.Settings, error)

	// UpdateSettings merges the partial update into the stored settings and
	// returns the result. Unset fields are left untouched.
	UpdateSettings(ctx context.Context, userID string, update domain.SettingsUpdate) (domain.Settings, error)

	// GetRateLimit returns the persisted rate-limit state, or nil if none.
	GetRateLimit(ctx context.Context, userID string) (*RateLimitState, error)

	// UpsertRateLimit creates or replaces the rate-limit state for a user.
	UpsertRateLimit(ctx context.Context, state *RateLimitState) error

	// DeleteRateLimit removes the rate-limit state for a user.
	DeleteRateLimit(ctx context.Context, userID string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
