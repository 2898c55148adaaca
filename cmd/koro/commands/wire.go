package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/koromind/koromind/internal/brain"
	"github.com/koromind/koromind/internal/config"
	"github.com/koromind/koromind/internal/engine"
	"github.com/koromind/koromind/internal/ratelimit"
	"github.com/koromind/koromind/internal/store"
	"github.com/koromind/koromind/internal/voice"
)

// core holds the wired application dependencies shared by serve and chat.
type core struct {
	cfg   *config.Config
	repo  *store.SQLiteStore
	brain *brain.Brain
}

func (c *core) close() {
	if err := c.repo.Close(); err != nil {
		slog.Error("failed to close repository", "error", err)
	}
}

// buildCore wires storage, the engine, the voice provider, and the Brain.
// limited controls whether turn rate limiting is active; the local REPL
// disables it.
func buildCore(ctx context.Context, cfg *config.Config, limited bool) (*core, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("database health check: %w", err)
	}

	// One-time import of pre-database flat-file state. A failed import is
	// recorded and never retried, so a bad legacy file cannot wedge startup.
	if err := repo.ImportLegacyJSON(ctx, cfg.LegacyStatePath, cfg.LegacySettingsPath); err != nil {
		slog.Warn("legacy state import failed, continuing with empty state", "error", err)
	}

	var limiter *ratelimit.Limiter
	if limited {
		limiter = ratelimit.New(cfg.RateLimitCooldown, cfg.RateLimitPerMinute, repo)
	}

	eng := engine.NewCLIEngine(engine.CLIConfig{
		Binary:       cfg.AgentBinary,
		SandboxDir:   cfg.AgentSandboxDir,
		AddDir:       cfg.AgentWorkingDir,
		SystemPrompt: cfg.SystemPrompt,
	})

	var vopts []voice.ElevenLabsOption
	if cfg.ElevenLabsVoiceID != "" {
		vopts = append(vopts, voice.WithVoiceID(cfg.ElevenLabsVoiceID))
	}
	vp := voice.NewElevenLabs(cfg.ElevenLabsAPIKey, vopts...)
	if !cfg.VoiceEnabled() {
		slog.Info("voice provider not configured, audio features disabled")
	}

	b := brain.New(repo, eng, vp, limiter, brain.WithEngineTimeout(cfg.EngineTimeout))

	return &core{cfg: cfg, repo: repo, brain: b}, nil
}
