package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/koromind/koromind/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	sessionMu sync.Mutex // Serializes session write transactions to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		name TEXT,
		is_current INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		last_active INTEGER NOT NULL,
		PRIMARY KEY (user_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_user_current ON sessions(user_id, is_current);

	CREATE TABLE IF NOT EXISTS settings (
		user_id TEXT PRIMARY KEY,
		mode TEXT NOT NULL DEFAULT 'auto',
		audio_enabled INTEGER NOT NULL DEFAULT 1,
		voice_speed REAL NOT NULL DEFAULT 1.1,
		watch_enabled INTEGER NOT NULL DEFAULT 0,
		stt_language TEXT NOT NULL DEFAULT 'auto',
		model TEXT NOT NULL DEFAULT '',
		pending_session_name TEXT
	);

	CREATE TABLE IF NOT EXISTS rate_limits (
		user_id TEXT PRIMARY KEY,
		last_message INTEGER,
		minute_start INTEGER NOT NULL,
		minute_count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS migration_status (
		name TEXT PRIMARY KEY,
		completed_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func scanSession(row interface{ Scan(...any) error }) (*domain.Session, error) {
	var sess domain.Session
	var name sql.NullString
	var isCurrent int
	var createdAt, lastActive int64

	err := row.Scan(&sess.ID, &sess.UserID, &name, &isCurrent, &createdAt, &lastActive)
	if err != nil {
		return nil, err
	}

	sess.Name = name.String
	sess.IsCurrent = isCurrent != 0
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.LastActive = time.Unix(lastActive, 0)
	return &sess, nil
}

// GetCurrentSession returns the user's current session, or nil if none.
func (s *SQLiteStore) GetCurrentSession(ctx context.Context, userID string) (*domain.Session, error) {
	query := `
		SELECT id, user_id, name, is_current, created_at, last_active
		FROM sessions WHERE user_id = ? AND is_current = 1`

	sess, err := scanSession(s.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan current session: %w", err)
	}
	return sess, nil
}

// ListSessions returns the user's sessions, most-recently-active first.
func (s *SQLiteStore) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	query := `
		SELECT id, user_id, name, is_current, created_at, last_active
		FROM sessions WHERE user_id = ?
		ORDER BY last_active DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// SetCurrentSession switches the user's current session in one transaction.
// Two interleaved switches can therefore never leave two sessions marked
// current or corrupt the eviction count.
func (s *SQLiteStore) SetCurrentSession(ctx context.Context, userID, sessionID, displayName string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin session switch: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	var existingName sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT name FROM sessions WHERE user_id = ? AND id = ?`,
		userID, sessionID,
	).Scan(&existingName)
	exists := err == nil
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("look up session: %w", err)
	}

	name := strings.TrimSpace(displayName)
	if !exists && name == "" {
		// New sessions consume the staged name, if any.
		var pending sql.NullString
		err = tx.QueryRowContext(ctx,
			`SELECT pending_session_name FROM settings WHERE user_id = ?`,
			userID,
		).Scan(&pending)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("read pending session name: %w", err)
		}
		name = strings.TrimSpace(pending.String)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET is_current = 0 WHERE user_id = ? AND is_current = 1`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("clear current flag: %w", err)
	}

	if exists {
		if _, err := tx.ExecContext(ctx, `
			UPDATE sessions
			SET is_current = 1, last_active = ?, name = COALESCE(NULLIF(?, ''), name)
			WHERE user_id = ? AND id = ?`,
			now.Unix(), name, userID, sessionID,
		); err != nil {
			return nil, fmt.Errorf("update session: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, user_id, name, is_current, created_at, last_active)
			VALUES (?, ?, NULLIF(?, ''), 1, ?, ?)`,
			sessionID, userID, name, now.Unix(), now.Unix(),
		); err != nil {
			return nil, fmt.Errorf("insert session: %w", err)
		}

		// Evict least-recently-active non-current sessions past the cap.
		// rowid breaks last_active ties so same-second activity still evicts
		// in insertion order.
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM sessions
			WHERE user_id = ? AND is_current = 0 AND id NOT IN (
				SELECT id FROM sessions
				WHERE user_id = ?
				ORDER BY last_active DESC, rowid DESC
				LIMIT ?
			)`,
			userID, userID, domain.MaxSessionsPerUser,
		); err != nil {
			return nil, fmt.Errorf("evict old sessions: %w", err)
		}
	}

	if name != "" || !exists {
		if _, err := tx.ExecContext(ctx,
			`UPDATE settings SET pending_session_name = NULL WHERE user_id = ?`,
			userID,
		); err != nil {
			return nil, fmt.Errorf("clear pending session name: %w", err)
		}
	}

	sess, err := scanSession(tx.QueryRowContext(ctx, `
		SELECT id, user_id, name, is_current, created_at, last_active
		FROM sessions WHERE user_id = ? AND id = ?`,
		userID, sessionID,
	))
	if err != nil {
		return nil, fmt.Errorf("read back session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit session switch: %w", err)
	}
	return sess, nil
}

// ClearCurrentSession unsets the current flag for a user.
func (s *SQLiteStore) ClearCurrentSession(ctx context.Context, userID string) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET is_current = 0 WHERE user_id = ?`,
		userID,
	); err != nil {
		return fmt.Errorf("clear current session: %w", err)
	}
	return nil
}

// SetPendingSessionName stages a name for the next created session.
func (s *SQLiteStore) SetPendingSessionName(ctx context.Context, userID, name string) error {
	defaults := domain.DefaultSettings(userID)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (user_id, mode, audio_enabled, voice_speed, watch_enabled, stt_language, model, pending_session_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''))
		ON CONFLICT(user_id) DO UPDATE SET pending_session_name = excluded.pending_session_name`,
		userID, string(defaults.Mode), boolToInt(defaults.AudioEnabled),
		defaults.VoiceSpeed, boolToInt(defaults.WatchEnabled),
		defaults.STTLanguage, defaults.Model, strings.TrimSpace(name),
	)
	if err != nil {
		return fmt.Errorf("stage pending session name: %w", err)
	}
	return nil
}

// TakePendingSessionName returns and clears the staged name atomically.
func (s *SQLiteStore) TakePendingSessionName(ctx context.Context, userID string) (string, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin take pending name: %w", err)
	}
	defer tx.Rollback()

	var pending sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT pending_session_name FROM settings WHERE user_id = ?`,
		userID,
	).Scan(&pending)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read pending session name: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE settings SET pending_session_name = NULL WHERE user_id = ?`,
		userID,
	); err != nil {
		return "", fmt.Errorf("clear pending session name: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit take pending name: %w", err)
	}
	return pending.String, nil
}

func scanSettings(row interface{ Scan(...any) error }, userID string) (domain.Settings, error) {
	var set domain.Settings
	var mode string
	var audioEnabled, watchEnabled int

	err := row.Scan(&mode, &audioEnabled, &set.VoiceSpeed, &watchEnabled, &set.STTLanguage, &set.Model)
	if err != nil {
		return domain.Settings{}, err
	}

	set.UserID = userID
	set.Mode = domain.Mode(mode)
	set.AudioEnabled = audioEnabled != 0
	set.WatchEnabled = watchEnabled != 0
	return set, nil
}

const settingsColumns = `mode, audio_enabled, voice_speed, watch_enabled, stt_language, model`

// GetSettings returns settings for a user, persisting defaults on first read.
func (s *SQLiteStore) GetSettings(ctx context.Context, userID string) (domain.Settings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+settingsColumns+` FROM settings WHERE user_id = ?`, userID)

	set, err := scanSettings(row, userID)
	if err == nil {
		return set, nil
	}
	if err != sql.ErrNoRows {
		return domain.Settings{}, fmt.Errorf("scan settings: %w", err)
	}

	defaults := domain.DefaultSettings(userID)
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (user_id, `+settingsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		userID, string(defaults.Mode), boolToInt(defaults.AudioEnabled),
		defaults.VoiceSpeed, boolToInt(defaults.WatchEnabled),
		defaults.STTLanguage, defaults.Model,
	); err != nil {
		return domain.Settings{}, fmt.Errorf("insert default settings: %w", err)
	}
	return defaults, nil
}

// UpdateSettings merges a partial update into stored settings and returns the
// result. The column list is fixed; caller-supplied names never reach SQL.
func (s *SQLiteStore) UpdateSettings(ctx context.Context, userID string, update domain.SettingsUpdate) (domain.Settings, error) {
	if err := update.Validate(); err != nil {
		return domain.Settings{}, err
	}

	current, err := s.GetSettings(ctx, userID)
	if err != nil {
		return domain.Settings{}, err
	}
	if update.IsEmpty() {
		return current, nil
	}

	merged := update.Apply(current)
	if _, err := s.db.ExecContext(ctx, `
		UPDATE settings
		SET mode = ?, audio_enabled = ?, voice_speed = ?, watch_enabled = ?, stt_language = ?, model = ?
		WHERE user_id = ?`,
		string(merged.Mode), boolToInt(merged.AudioEnabled), merged.VoiceSpeed,
		boolToInt(merged.WatchEnabled), merged.STTLanguage, merged.Model, userID,
	); err != nil {
		return domain.Settings{}, fmt.Errorf("update settings: %w", err)
	}
	return merged, nil
}

// GetRateLimit returns persisted rate-limit state, or nil if none.
func (s *SQLiteStore) GetRateLimit(ctx context.Context, userID string) (*RateLimitState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT last_message, minute_start, minute_count
		FROM rate_limits WHERE user_id = ?`, userID)

	var state RateLimitState
	var lastMessage sql.NullInt64
	var minuteStart int64

	err := row.Scan(&lastMessage, &minuteStart, &state.MinuteCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan rate limit: %w", err)
	}

	state.UserID = userID
	state.MinuteStart = time.Unix(minuteStart, 0)
	if lastMessage.Valid {
		ts := time.Unix(lastMessage.Int64, 0)
		state.LastMessage = &ts
	}
	return &state, nil
}

// UpsertRateLimit creates or replaces rate-limit state for a user.
func (s *SQLiteStore) UpsertRateLimit(ctx context.Context, state *RateLimitState) error {
	var lastMessage interface{}
	if state.LastMessage != nil {
		lastMessage = state.LastMessage.Unix()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_limits (user_id, last_message, minute_start, minute_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			last_message = excluded.last_message,
			minute_start = excluded.minute_start,
			minute_count = excluded.minute_count`,
		state.UserID, lastMessage, state.MinuteStart.Unix(), state.MinuteCount,
	)
	if err != nil {
		return fmt.Errorf("upsert rate limit: %w", err)
	}
	return nil
}

// DeleteRateLimit removes rate-limit state for a user.
func (s *SQLiteStore) DeleteRateLimit(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_limits WHERE user_id = ?`, userID,
	); err != nil {
		return fmt.Errorf("delete rate limit: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
