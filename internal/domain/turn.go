package domain

// ContentType distinguishes text turns from voice turns.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentVoice ContentType = "voice"
)

// ToolCall records one tool invocation observed during a turn.
type ToolCall struct {
	Name   string `json:"name"`
	Detail string `json:"detail,omitempty"`
}

// TurnMetadata carries operator-facing metrics from the agent engine.
type TurnMetadata struct {
	CostUSD    float64 `json:"cost_usd,omitempty"`
	NumTurns   int     `json:"num_turns,omitempty"`
	DurationMS int64   `json:"duration_ms,omitempty"`
	ToolCount  int     `json:"tool_count"`
}

// TurnResult is the outcome of one processed turn. It is transient and never
// persisted.
type TurnResult struct {
	Text      string       `json:"text"`
	SessionID string       `json:"session_id"`
	Audio     []byte       `json:"audio,omitempty"`
	// AudioUnavailable is set when audio was requested but synthesis failed;
	// the turn itself still succeeded.
	AudioUnavailable bool         `json:"audio_unavailable,omitempty"`
	ToolCalls        []ToolCall   `json:"tool_calls,omitempty"`
	Metadata         TurnMetadata `json:"metadata"`
}
