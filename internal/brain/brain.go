// Package brain sequences one user turn: transcription, the agent engine
// call, state updates, and speech synthesis.
package brain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/koromind/koromind/internal/domain"
	"github.com/koromind/koromind/internal/engine"
	"github.com/koromind/koromind/internal/ratelimit"
	"github.com/koromind/koromind/internal/shared"
	"github.com/koromind/koromind/internal/store"
	"github.com/koromind/koromind/internal/voice"
)

// DefaultEngineTimeout bounds one engine call. Tool execution can be slow,
// so this is minutes, not seconds.
const DefaultEngineTimeout = 10 * time.Minute

// TurnRequest is one user turn. Exactly one of Text or Audio is set,
// matching ContentType.
type TurnRequest struct {
	UserID      string
	Text        string
	Audio       []byte
	ContentType domain.ContentType

	// Overrides apply for this call only and are never persisted.
	Overrides domain.SettingsUpdate

	// OnToolCall receives watch-mode notifications. A panicking callback is
	// logged and ignored; it cannot abort the turn.
	OnToolCall engine.NotifyFunc

	// CanUseTool supplies approve-mode decisions. Only consulted when the
	// effective mode is approve.
	CanUseTool engine.ApprovalFunc
}

// Brain orchestrates turns. It holds no persistent state of its own; all
// collaborators are injected at construction.
type Brain struct {
	repo          store.Repository
	engine        engine.Engine
	voice         voice.Provider
	limiter       *ratelimit.Limiter
	locks         *userLocks
	engineTimeout time.Duration
}

// Option customizes a Brain.
type Option func(*Brain)

// WithEngineTimeout overrides the per-call engine timeout.
func WithEngineTimeout(d time.Duration) Option {
	return func(b *Brain) { b.engineTimeout = d }
}

// New creates a Brain with explicit dependencies. limiter may be nil to
// disable rate limiting (tests, CLI).
func New(repo store.Repository, eng engine.Engine, vp voice.Provider, limiter *ratelimit.Limiter, opts ...Option) *Brain {
	b := &Brain{
		repo:          repo,
		engine:        eng,
		voice:         vp,
		limiter:       limiter,
		locks:         newUserLocks(),
		engineTimeout: DefaultEngineTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ProcessTurn runs one complete turn for a user. Turns for the same user are
// serialized; turns for different users proceed in parallel.
func (b *Brain) ProcessTurn(ctx context.Context, req TurnRequest) (*domain.TurnResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if b.limiter != nil {
		if ok, msg := b.limiter.Check(ctx, req.UserID); !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
		}
	}

	release := b.locks.acquire(req.UserID)
	defer release()

	settings, err := b.repo.GetSettings(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: load settings: %v", domain.ErrStorageUnavailable, err)
	}
	effective := req.Overrides.Apply(settings)

	prompt := strings.TrimSpace(req.Text)
	if req.ContentType == domain.ContentVoice {
		// Failures before the engine call never mutate state.
		prompt, err = b.transcribe(ctx, req.Audio, effective.STTLanguage)
		if err != nil {
			return nil, err
		}
	}

	current, err := b.repo.GetCurrentSession(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: load current session: %v", domain.ErrStorageUnavailable, err)
	}
	sessionID := ""
	if current != nil {
		sessionID = current.ID
	}

	res, err := b.callEngine(ctx, req, effective, prompt, sessionID)
	if err != nil {
		return nil, err
	}

	// Degraded results (IsError false but stopped early, e.g. a turn-limit
	// stop) still update session state: the session exists engine-side and
	// is resumable. Only IsError results leave state untouched, and those
	// never reach this point.
	if res.SessionID != "" {
		err = shared.WithSQLiteRetry(ctx, "set current session", func() error {
			_, err := b.repo.SetCurrentSession(ctx, req.UserID, res.SessionID, "")
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("%w: persist session: %v", domain.ErrStorageUnavailable, err)
		}
	}

	result := &domain.TurnResult{
		Text:      res.Text,
		SessionID: res.SessionID,
		ToolCalls: res.ToolCalls,
		Metadata: domain.TurnMetadata{
			CostUSD:    res.CostUSD,
			NumTurns:   res.NumTurns,
			DurationMS: res.DurationMS,
			ToolCount:  len(res.ToolCalls),
		},
	}

	if effective.AudioEnabled && result.Text != "" {
		audio, synthErr := b.voice.Synthesize(ctx, result.Text, effective.VoiceSpeed)
		if synthErr != nil {
			// Synthesis failures degrade gracefully: text still goes out.
			slog.Warn("voice synthesis failed, returning text only",
				"user_id", req.UserID, "error", synthErr)
			result.AudioUnavailable = true
		} else {
			result.Audio = audio
		}
	}

	return result, nil
}

func (b *Brain) transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	text, err := b.voice.Transcribe(ctx, audio, language)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty transcript", domain.ErrTranscriptionFailed)
	}
	return text, nil
}

func (b *Brain) callEngine(ctx context.Context, req TurnRequest, effective domain.Settings, prompt, sessionID string) (*engine.Result, error) {
	engineReq := engine.ExecuteRequest{
		UserID:    req.UserID,
		Prompt:    prompt,
		SessionID: sessionID,
		Mode:      effective.Mode,
		Model:     effective.Model,
	}
	if effective.WatchEnabled && req.OnToolCall != nil {
		engineReq.OnToolCall = isolateNotify(req.UserID, req.OnToolCall)
	}
	if effective.Mode == domain.ModeApprove && req.CanUseTool != nil {
		engineReq.CanUseTool = isolateApproval(req.UserID, req.CanUseTool)
	}

	engineCtx, cancel := context.WithTimeout(ctx, b.engineTimeout)
	defer cancel()

	res, err := b.engine.Execute(engineCtx, engineReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAgentEngineFailed, err)
	}
	if res.IsError {
		slog.Error("engine returned error result", "user_id", req.UserID, "detail", res.Text)
		return nil, fmt.Errorf("%w: engine reported an error", domain.ErrAgentEngineFailed)
	}
	return res, nil
}

// isolateNotify shields the turn from a misbehaving front-end callback.
func isolateNotify(userID string, fn engine.NotifyFunc) engine.NotifyFunc {
	return func(toolName, detail string) {
		defer func() {
			if r := recover(); r != nil {
				slog.Warn("tool notification callback panicked; caller bug",
					"user_id", userID, "tool", toolName, "panic", r)
			}
		}()
		fn(toolName, detail)
	}
}

// isolateApproval shields the turn from a panicking approval callback. A
// panic counts as a denial, never as an aborted turn.
func isolateApproval(userID string, fn engine.ApprovalFunc) engine.ApprovalFunc {
	return func(ctx context.Context, toolName string, toolInput map[string]any) (allowed bool, err error) {
		defer func() {
			if r := recover(); r != nil {
				slog.Warn("approval callback panicked; denying tool call",
					"user_id", userID, "tool", toolName, "panic", r)
				allowed, err = false, nil
			}
		}()
		return fn(ctx, toolName, toolInput)
	}
}

// Interrupt terminates the user's in-flight engine call, if any.
func (b *Brain) Interrupt(userID string) bool {
	return b.engine.Interrupt(userID)
}

func validateRequest(req TurnRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: missing user id", domain.ErrInvalidInput)
	}
	switch req.ContentType {
	case domain.ContentText:
		if strings.TrimSpace(req.Text) == "" {
			return fmt.Errorf("%w: empty text message", domain.ErrInvalidInput)
		}
		if len(req.Audio) > 0 {
			return fmt.Errorf("%w: audio supplied with text content type", domain.ErrInvalidInput)
		}
	case domain.ContentVoice:
		if len(req.Audio) == 0 {
			return fmt.Errorf("%w: empty voice message", domain.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown content type %q", domain.ErrInvalidInput, req.ContentType)
	}
	return req.Overrides.Validate()
}
