// Package domain contains core domain types for KoroMind.
package domain

import (
	"time"
)

// MaxSessionsPerUser caps the number of stored sessions per user.
// Insertion past the cap evicts the least-recently-active non-current session.
const MaxSessionsPerUser = 100

// Session represents one ongoing conversation's context within the agent
// engine. The ID is assigned by the engine; KoroMind never generates one.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name,omitempty"`
	IsCurrent  bool      `json:"is_current"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// Age returns how long ago the session was last active.
func (s *Session) Age() time.Duration {
	return time.Since(s.LastActive)
}
