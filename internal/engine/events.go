package engine

import (
	"encoding/json"
	"fmt"
)

// Event is the tagged union of messages the agent CLI emits on its
// stream-JSON output. Exactly one concrete type is produced per line; the
// consumer switches exhaustively over them.
type Event interface {
	eventKind() string
}

// InitEvent announces the session the engine assigned to this run.
type InitEvent struct {
	SessionID string
}

// AssistantEvent carries incremental assistant output: text and tool uses.
type AssistantEvent struct {
	SessionID string
	Text      string
	ToolUses  []ToolUse
}

// ToolUse is one tool invocation inside an assistant message.
type ToolUse struct {
	Name  string
	Input map[string]any
}

// ResultEvent is the terminal message of a run.
type ResultEvent struct {
	SessionID  string
	Result     string
	IsError    bool
	CostUSD    float64
	NumTurns   int
	DurationMS int64
}

// ControlRequestEvent asks the host for a decision (tool approval).
type ControlRequestEvent struct {
	RequestID string
	Subtype   string
	ToolName  string
	ToolInput map[string]any
}

// UnknownEvent preserves lines with an unrecognized type so the consumer can
// log and skip them instead of failing the stream.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (InitEvent) eventKind() string           { return "init" }
func (AssistantEvent) eventKind() string      { return "assistant" }
func (ResultEvent) eventKind() string         { return "result" }
func (ControlRequestEvent) eventKind() string { return "control_request" }
func (UnknownEvent) eventKind() string        { return "unknown" }

type rawEvent struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`

	// assistant
	Message struct {
		Content []struct {
			Type  string         `json:"type"`
			Text  string         `json:"text"`
			Name  string         `json:"name"`
			Input map[string]any `json:"input"`
		} `json:"content"`
	} `json:"message"`

	// result
	Result       string  `json:"result"`
	IsError      bool    `json:"is_error"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	NumTurns     int     `json:"num_turns"`
	DurationMS   int64   `json:"duration_ms"`

	// control_request
	RequestID string `json:"request_id"`
	Request   struct {
		Subtype  string         `json:"subtype"`
		ToolName string         `json:"tool_name"`
		Input    map[string]any `json:"input"`
	} `json:"request"`
}

// DecodeEvent parses one line of the engine's stream-JSON output.
func DecodeEvent(line []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("decode engine event: %w", err)
	}

	switch raw.Type {
	case "system":
		if raw.Subtype == "init" {
			return InitEvent{SessionID: raw.SessionID}, nil
		}
		return UnknownEvent{Type: raw.Type + "/" + raw.Subtype, Raw: append([]byte(nil), line...)}, nil

	case "assistant":
		ev := AssistantEvent{SessionID: raw.SessionID}
		for _, block := range raw.Message.Content {
			switch block.Type {
			case "text":
				ev.Text += block.Text
			case "tool_use":
				ev.ToolUses = append(ev.ToolUses, ToolUse{Name: block.Name, Input: block.Input})
			}
		}
		return ev, nil

	case "result":
		return ResultEvent{
			SessionID:  raw.SessionID,
			Result:     raw.Result,
			IsError:    raw.IsError,
			CostUSD:    raw.TotalCostUSD,
			NumTurns:   raw.NumTurns,
			DurationMS: raw.DurationMS,
		}, nil

	case "control_request":
		return ControlRequestEvent{
			RequestID: raw.RequestID,
			Subtype:   raw.Request.Subtype,
			ToolName:  raw.Request.ToolName,
			ToolInput: raw.Request.Input,
		}, nil

	default:
		return UnknownEvent{Type: raw.Type, Raw: append([]byte(nil), line...)}, nil
	}
}
