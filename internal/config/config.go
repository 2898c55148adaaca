// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	APIKey      string
	AllowNoAuth bool
	CORSOrigins []string

	DataDir string
	DBPath  string

	// Legacy flat-file state imported once on first startup.
	LegacyStatePath    string
	LegacySettingsPath string

	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string

	AgentBinary     string
	AgentSandboxDir string
	AgentWorkingDir string
	EngineTimeout   time.Duration
	SystemPrompt    string

	TelegramToken      string
	TelegramAllowedIDs []int64

	RateLimitCooldown  time.Duration
	RateLimitPerMinute int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	dataDir := getEnv("KOROMIND_DATA_DIR", filepath.Join(home, ".koromind"))

	cfg := &Config{
		Port:        getEnv("KOROMIND_PORT", "8420"),
		APIKey:      getEnv("KOROMIND_API_KEY", ""),
		AllowNoAuth: getEnvBool("KOROMIND_ALLOW_NO_AUTH", false),
		CORSOrigins: splitList(getEnv("KOROMIND_CORS_ORIGINS", "http://localhost:3000")),

		DataDir: dataDir,
		DBPath:  filepath.Join(dataDir, "koromind.db"),

		LegacyStatePath:    getEnv("KOROMIND_LEGACY_STATE_FILE", filepath.Join(dataDir, "sessions_state.json")),
		LegacySettingsPath: getEnv("KOROMIND_LEGACY_SETTINGS_FILE", filepath.Join(dataDir, "user_settings.json")),

		ElevenLabsAPIKey:  getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID: getEnv("ELEVENLABS_VOICE_ID", ""),

		AgentBinary:     getEnv("AGENT_BINARY", "claude"),
		AgentSandboxDir: getEnv("AGENT_SANDBOX_DIR", filepath.Join(home, "koromind-sandbox")),
		AgentWorkingDir: getEnv("AGENT_WORKING_DIR", home),
		EngineTimeout:   getEnvDuration("AGENT_TIMEOUT", 10*time.Minute),
		SystemPrompt:    getEnv("AGENT_SYSTEM_PROMPT", ""),

		TelegramToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAllowedIDs: parseIDList(getEnv("TELEGRAM_ALLOWED_IDS", "")),

		RateLimitCooldown:  getEnvDuration("RATE_LIMIT_COOLDOWN", 500*time.Millisecond),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 50),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("KOROMIND_PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.APIKey == "" && !c.AllowNoAuth {
		return fmt.Errorf("KOROMIND_API_KEY is required unless KOROMIND_ALLOW_NO_AUTH=true")
	}
	if c.EngineTimeout <= 0 {
		return fmt.Errorf("AGENT_TIMEOUT must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be > 0")
	}
	return nil
}

// VoiceEnabled reports whether the voice provider is configured.
func (c *Config) VoiceEnabled() bool {
	return c.ElevenLabsAPIKey != ""
}

// TelegramEnabled reports whether the Telegram front-end is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseIDList(value string) []int64 {
	var out []int64
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
