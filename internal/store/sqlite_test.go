package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/koromind/koromind/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return s
}

func TestGetCurrentSessionEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.GetCurrentSession(ctx, "user1")
	if err != nil {
		t.Fatalf("GetCurrentSession failed: %v", err)
	}
	if sess != nil {
		t.Errorf("Expected nil session for new user, got %+v", sess)
	}
}

func TestSetCurrentSessionCreatesAndSwitches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.SetCurrentSession(ctx, "user1", "sess-a", "")
	if err != nil {
		t.Fatalf("SetCurrentSession failed: %v", err)
	}
	if !sess.IsCurrent {
		t.Error("Expected new session to be current")
	}

	if _, err := s.SetCurrentSession(ctx, "user1", "sess-b", ""); err != nil {
		t.Fatalf("SetCurrentSession failed: %v", err)
	}

	current, err := s.GetCurrentSession(ctx, "user1")
	if err != nil {
		t.Fatalf("GetCurrentSession failed: %v", err)
	}
	if current.ID != "sess-b" {
		t.Errorf("Expected current session sess-b, got %s", current.ID)
	}

	sessions, err := s.ListSessions(ctx, "user1")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	currentCount := 0
	for _, sess := range sessions {
		if sess.IsCurrent {
			currentCount++
		}
	}
	if currentCount != 1 {
		t.Errorf("Expected exactly 1 current session, got %d", currentCount)
	}
}

func TestSetCurrentSessionIsolatedPerUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SetCurrentSession(ctx, "user1", "sess-a", ""); err != nil {
		t.Fatalf("SetCurrentSession failed: %v", err)
	}
	if _, err := s.SetCurrentSession(ctx, "user2", "sess-b", ""); err != nil {
		t.Fatalf("SetCurrentSession failed: %v", err)
	}

	sess1, err := s.GetCurrentSession(ctx, "user1")
	if err != nil {
		t.Fatalf("GetCurrentSession failed: %v", err)
	}
	if sess1 == nil || sess1.ID != "sess-a" {
		t.Errorf("Expected user1 current session sess-a, got %+v", sess1)
	}
}

func TestSetCurrentSessionConcurrentSwitches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("sess-%d", n)
			if _, err := s.SetCurrentSession(ctx, "user1", id, ""); err != nil {
				t.Errorf("SetCurrentSession failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	sessions, err := s.ListSessions(ctx, "user1")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	currentCount := 0
	for _, sess := range sessions {
		if sess.IsCurrent {
			currentCount++
		}
	}
	if currentCount != 1 {
		t.Errorf("Expected exactly 1 current session after concurrent switches, got %d", currentCount)
	}
}

func TestSessionEvictionAtCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < domain.MaxSessionsPerUser+1; i++ {
		id := fmt.Sprintf("sess-%03d", i)
		if _, err := s.SetCurrentSession(ctx, "user1", id, ""); err != nil {
			t.Fatalf("SetCurrentSession %s failed: %v", id, err)
		}
	}

	sessions, err := s.ListSessions(ctx, "user1")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != domain.MaxSessionsPerUser {
		t.Errorf("Expected %d sessions after eviction, got %d", domain.MaxSessionsPerUser, len(sessions))
	}

	// The newest session is current and must survive.
	current, err := s.GetCurrentSession(ctx, "user1")
	if err != nil {
		t.Fatalf("GetCurrentSession failed: %v", err)
	}
	want := fmt.Sprintf("sess-%03d", domain.MaxSessionsPerUser)
	if current.ID != want {
		t.Errorf("Expected current session %s, got %s", want, current.ID)
	}

	// The oldest non-current session was evicted.
	for _, sess := range sessions {
		if sess.ID == "sess-000" {
			t.Error("Expected oldest session sess-000 to be evicted")
		}
	}
}

func TestSetCurrentSessionConsumesPendingName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetPendingSessionName(ctx, "user1", "my project"); err != nil {
		t.Fatalf("SetPendingSessionName failed: %v", err)
	}

	sess, err := s.SetCurrentSession(ctx, "user1", "sess-a", "")
	if err != nil {
		t.Fatalf("SetCurrentSession failed: %v", err)
	}
	if sess.Name != "my project" {
		t.Errorf("Expected staged name to be consumed, got %q", sess.Name)
	}

	// The name applies once. A second new session stays unnamed.
	sess2, err := s.SetCurrentSession(ctx, "user1", "sess-b", "")
	if err != nil {
		t.Fatalf("SetCurrentSession failed: %v", err)
	}
	if sess2.Name != "" {
		t.Errorf("Expected second session to be unnamed, got %q", sess2.Name)
	}
}

func TestPendingNameNotConsumedByExistingSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SetCurrentSession(ctx, "user1", "sess-a", ""); err != nil {
		t.Fatalf("SetCurrentSession failed: %v", err)
	}
	if err := s.SetPendingSessionName(ctx, "user1", "fresh"); err != nil {
		t.Fatalf("SetPendingSessionName failed: %v", err)
	}

	// Switching back to a known session must not steal the staged name.
	sess, err := s.SetCurrentSession(ctx, "user1", "sess-a", "")
	if err != nil {
		t.Fatalf("SetCurrentSession failed: %v", err)
	}
	if sess.Name != "" {
		t.Errorf("Expected existing session to keep its name, got %q", sess.Name)
	}

	sess2, err := s.SetCurrentSession(ctx, "user1", "sess-new", "")
	if err != nil {
		t.Fatalf("SetCurrentSession failed: %v", err)
	}
	if sess2.Name != "fresh" {
		t.Errorf("Expected new session to consume staged name, got %q", sess2.Name)
	}
}

func TestTakePendingSessionName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	name, err := s.TakePendingSessionName(ctx, "user1")
	if err != nil {
		t.Fatalf("TakePendingSessionName failed: %v", err)
	}
	if name != "" {
		t.Errorf("Expected empty name for new user, got %q", name)
	}

	if err := s.SetPendingSessionName(ctx, "user1", "notes"); err != nil {
		t.Fatalf("SetPendingSessionName failed: %v", err)
	}

	name, err = s.TakePendingSessionName(ctx, "user1")
	if err != nil {
		t.Fatalf("TakePendingSessionName failed: %v", err)
	}
	if name != "notes" {
		t.Errorf("Expected staged name notes, got %q", name)
	}

	// Take is destructive: a second call returns nothing.
	name, err = s.TakePendingSessionName(ctx, "user1")
	if err != nil {
		t.Fatalf("TakePendingSessionName failed: %v", err)
	}
	if name != "" {
		t.Errorf("Expected name to be cleared after take, got %q", name)
	}
}

func TestClearCurrentSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SetCurrentSession(ctx, "user1", "sess-a", ""); err != nil {
		t.Fatalf("SetCurrentSession failed: %v", err)
	}
	if err := s.ClearCurrentSession(ctx, "user1"); err != nil {
		t.Fatalf("ClearCurrentSession failed: %v", err)
	}

	sess, err := s.GetCurrentSession(ctx, "user1")
	if err != nil {
		t.Fatalf("GetCurrentSession failed: %v", err)
	}
	if sess != nil {
		t.Errorf("Expected no current session after clear, got %+v", sess)
	}

	// The session record itself survives.
	sessions, err := s.ListSessions(ctx, "user1")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("Expected session record to remain, got %d sessions", len(sessions))
	}
}

func TestGetSettingsMaterializesDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	settings, err := s.GetSettings(ctx, "user1")
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}

	want := domain.DefaultSettings("user1")
	if settings != want {
		t.Errorf("Expected defaults %+v, got %+v", want, settings)
	}

	// Defaults are persisted on first read, not recomputed.
	again, err := s.GetSettings(ctx, "user1")
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if again != want {
		t.Errorf("Expected persisted defaults %+v, got %+v", want, again)
	}
}

func TestUpdateSettingsMerge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mode := domain.ModeApprove
	updated, err := s.UpdateSettings(ctx, "user1", domain.SettingsUpdate{Mode: &mode})
	if err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}
	if updated.Mode != domain.ModeApprove {
		t.Errorf("Expected mode approve, got %s", updated.Mode)
	}
	// Untouched fields keep their defaults.
	if updated.VoiceSpeed != 1.1 {
		t.Errorf("Expected voice speed 1.1 untouched, got %v", updated.VoiceSpeed)
	}
	if !updated.AudioEnabled {
		t.Error("Expected audio to stay enabled")
	}

	speed := 0.9
	updated, err = s.UpdateSettings(ctx, "user1", domain.SettingsUpdate{VoiceSpeed: &speed})
	if err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}
	if updated.Mode != domain.ModeApprove {
		t.Errorf("Expected earlier mode change to survive, got %s", updated.Mode)
	}
	if updated.VoiceSpeed != 0.9 {
		t.Errorf("Expected voice speed 0.9, got %v", updated.VoiceSpeed)
	}
}

func TestUpdateSettingsEmptyUpdateIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	before, err := s.GetSettings(ctx, "user1")
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}

	after, err := s.UpdateSettings(ctx, "user1", domain.SettingsUpdate{})
	if err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}
	if after != before {
		t.Errorf("Expected no-op update, got %+v", after)
	}
}

func TestUpdateSettingsRejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	speed := 2.0
	if _, err := s.UpdateSettings(ctx, "user1", domain.SettingsUpdate{VoiceSpeed: &speed}); err == nil {
		t.Error("Expected error for out-of-range voice speed")
	}

	mode := domain.Mode("yolo")
	if _, err := s.UpdateSettings(ctx, "user1", domain.SettingsUpdate{Mode: &mode}); err == nil {
		t.Error("Expected error for unknown mode")
	}

	// A rejected update must not have changed anything.
	settings, err := s.GetSettings(ctx, "user1")
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if settings != domain.DefaultSettings("user1") {
		t.Errorf("Expected settings unchanged after rejected update, got %+v", settings)
	}
}

func TestRateLimitRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	state, err := s.GetRateLimit(ctx, "user1")
	if err != nil {
		t.Fatalf("GetRateLimit failed: %v", err)
	}
	if state != nil {
		t.Errorf("Expected nil state for new user, got %+v", state)
	}

	stored := &RateLimitState{UserID: "user1", MinuteStart: time.Now(), MinuteCount: 3}
	if err := s.UpsertRateLimit(ctx, stored); err != nil {
		t.Fatalf("UpsertRateLimit failed: %v", err)
	}

	state, err = s.GetRateLimit(ctx, "user1")
	if err != nil {
		t.Fatalf("GetRateLimit failed: %v", err)
	}
	if state == nil || state.MinuteCount != 3 {
		t.Errorf("Expected minute count 3, got %+v", state)
	}
	if state.LastMessage != nil {
		t.Errorf("Expected nil last message, got %v", state.LastMessage)
	}

	if err := s.DeleteRateLimit(ctx, "user1"); err != nil {
		t.Fatalf("DeleteRateLimit failed: %v", err)
	}
	state, err = s.GetRateLimit(ctx, "user1")
	if err != nil {
		t.Fatalf("GetRateLimit failed: %v", err)
	}
	if state != nil {
		t.Errorf("Expected state deleted, got %+v", state)
	}
}
