// Package ratelimit throttles per-user message processing.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/koromind/koromind/internal/store"
)

// Defaults taken from the predecessor's policy.
const (
	DefaultCooldown       = 500 * time.Millisecond
	DefaultPerMinuteLimit = 50
)

// Limiter enforces a per-user cooldown between messages and a per-minute
// cap. State is held in memory and written through to the store so limits
// survive restarts.
type Limiter struct {
	cooldown  time.Duration
	perMinute int
	repo      store.Repository

	mu    sync.Mutex
	users map[string]*store.RateLimitState
}

// New creates a limiter. repo may be nil for purely in-memory limiting.
func New(cooldown time.Duration, perMinute int, repo store.Repository) *Limiter {
	if cooldown < 0 {
		cooldown = DefaultCooldown
	}
	if perMinute <= 0 {
		perMinute = DefaultPerMinuteLimit
	}
	return &Limiter{
		cooldown:  cooldown,
		perMinute: perMinute,
		repo:      repo,
		users:     make(map[string]*store.RateLimitState),
	}
}

// Check reports whether the user may send a message now. When denied, the
// returned message explains why in end-user terms.
func (l *Limiter) Check(ctx context.Context, userID string) (bool, string) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)

	state, ok := l.users[userID]
	if !ok {
		state = l.load(ctx, userID)
		if state == nil {
			state = &store.RateLimitState{UserID: userID, MinuteStart: now}
		}
		l.users[userID] = state
	}

	if state.LastMessage != nil && l.cooldown > 0 {
		elapsed := now.Sub(*state.LastMessage)
		if elapsed < l.cooldown {
			wait := l.cooldown - elapsed
			return false, fmt.Sprintf("Please wait %.1fs before sending another message.", wait.Seconds())
		}
	}

	if now.Sub(state.MinuteStart) > time.Minute {
		state.MinuteStart = now
		state.MinuteCount = 0
	}
	if state.MinuteCount >= l.perMinute {
		return false, fmt.Sprintf("Rate limit reached (%d/min). Please wait.", l.perMinute)
	}

	ts := now
	state.LastMessage = &ts
	state.MinuteCount++
	l.persist(ctx, state)
	return true, ""
}

// pruneLocked evicts entries whose limits can no longer bind, so the map
// stays bounded by recently active users instead of every user ever seen.
// Persisted state survives eviction and is reloaded on the next Check.
func (l *Limiter) pruneLocked(now time.Time) {
	stale := time.Minute
	if l.cooldown > stale {
		stale = l.cooldown
	}
	for id, state := range l.users {
		idle := now.Sub(state.MinuteStart)
		if state.LastMessage != nil {
			if since := now.Sub(*state.LastMessage); since < idle {
				idle = since
			}
		}
		if idle > stale {
			delete(l.users, id)
		}
	}
}

// Reset clears limits for a user.
func (l *Limiter) Reset(ctx context.Context, userID string) {
	l.mu.Lock()
	delete(l.users, userID)
	l.mu.Unlock()

	if l.repo != nil {
		if err := l.repo.DeleteRateLimit(ctx, userID); err != nil {
			slog.Warn("delete persisted rate limit", "user_id", userID, "error", err)
		}
	}
}

func (l *Limiter) load(ctx context.Context, userID string) *store.RateLimitState {
	if l.repo == nil {
		return nil
	}
	state, err := l.repo.GetRateLimit(ctx, userID)
	if err != nil {
		slog.Warn("load persisted rate limit", "user_id", userID, "error", err)
		return nil
	}
	return state
}

func (l *Limiter) persist(ctx context.Context, state *store.RateLimitState) {
	if l.repo == nil {
		return
	}
	// Persistence is best effort; a storage hiccup must not block the turn.
	if err := l.repo.UpsertRateLimit(ctx, state); err != nil {
		slog.Warn("persist rate limit", "user_id", state.UserID, "error", err)
	}
}
