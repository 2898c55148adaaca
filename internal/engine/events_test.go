package engine

import (
	"testing"
)

func TestDecodeInitEvent(t *testing.T) {
	line := []byte(`{"type":"system","subtype":"init","session_id":"abc-123"}`)

	ev, err := DecodeEvent(line)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	init, ok := ev.(InitEvent)
	if !ok {
		t.Fatalf("Expected InitEvent, got %T", ev)
	}
	if init.SessionID != "abc-123" {
		t.Errorf("Expected session abc-123, got %s", init.SessionID)
	}
}

func TestDecodeAssistantEvent(t *testing.T) {
	line := []byte(`{
		"type": "assistant",
		"session_id": "abc-123",
		"message": {
			"content": [
				{"type": "text", "text": "Let me check. "},
				{"type": "tool_use", "name": "Bash", "input": {"command": "ls -la"}},
				{"type": "text", "text": "Done."}
			]
		}
	}`)

	ev, err := DecodeEvent(line)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	asst, ok := ev.(AssistantEvent)
	if !ok {
		t.Fatalf("Expected AssistantEvent, got %T", ev)
	}
	if asst.Text != "Let me check. Done." {
		t.Errorf("Expected concatenated text blocks, got %q", asst.Text)
	}
	if len(asst.ToolUses) != 1 {
		t.Fatalf("Expected 1 tool use, got %d", len(asst.ToolUses))
	}
	if asst.ToolUses[0].Name != "Bash" {
		t.Errorf("Expected Bash tool use, got %s", asst.ToolUses[0].Name)
	}
	if cmd, _ := asst.ToolUses[0].Input["command"].(string); cmd != "ls -la" {
		t.Errorf("Expected tool input preserved, got %v", asst.ToolUses[0].Input)
	}
}

func TestDecodeResultEvent(t *testing.T) {
	line := []byte(`{
		"type": "result",
		"session_id": "abc-123",
		"result": "All done.",
		"is_error": false,
		"total_cost_usd": 0.0231,
		"num_turns": 3,
		"duration_ms": 4521
	}`)

	ev, err := DecodeEvent(line)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	res, ok := ev.(ResultEvent)
	if !ok {
		t.Fatalf("Expected ResultEvent, got %T", ev)
	}
	if res.Result != "All done." {
		t.Errorf("Expected result text, got %q", res.Result)
	}
	if res.IsError {
		t.Error("Expected is_error false")
	}
	if res.CostUSD != 0.0231 {
		t.Errorf("Expected cost 0.0231, got %v", res.CostUSD)
	}
	if res.NumTurns != 3 {
		t.Errorf("Expected 3 turns, got %d", res.NumTurns)
	}
	if res.DurationMS != 4521 {
		t.Errorf("Expected 4521ms, got %d", res.DurationMS)
	}
}

func TestDecodeControlRequestEvent(t *testing.T) {
	line := []byte(`{
		"type": "control_request",
		"request_id": "req-7",
		"request": {
			"subtype": "can_use_tool",
			"tool_name": "Write",
			"input": {"file_path": "/tmp/x"}
		}
	}`)

	ev, err := DecodeEvent(line)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	cr, ok := ev.(ControlRequestEvent)
	if !ok {
		t.Fatalf("Expected ControlRequestEvent, got %T", ev)
	}
	if cr.RequestID != "req-7" {
		t.Errorf("Expected request id req-7, got %s", cr.RequestID)
	}
	if cr.Subtype != "can_use_tool" {
		t.Errorf("Expected subtype can_use_tool, got %s", cr.Subtype)
	}
	if cr.ToolName != "Write" {
		t.Errorf("Expected tool Write, got %s", cr.ToolName)
	}
}

func TestDecodeUnknownEventType(t *testing.T) {
	line := []byte(`{"type":"shiny_new_thing","session_id":"abc"}`)

	ev, err := DecodeEvent(line)
	if err != nil {
		t.Fatalf("Expected unknown types to decode, got %v", err)
	}
	unknown, ok := ev.(UnknownEvent)
	if !ok {
		t.Fatalf("Expected UnknownEvent, got %T", ev)
	}
	if unknown.Type != "shiny_new_thing" {
		t.Errorf("Expected type preserved, got %s", unknown.Type)
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	if _, err := DecodeEvent([]byte(`{not json`)); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestToolDetail(t *testing.T) {
	cases := []struct {
		name  string
		tool  string
		input map[string]any
		want  string
	}{
		{"bash command", "Bash", map[string]any{"command": "ls -la"}, "ls -la"},
		{"read path", "Read", map[string]any{"file_path": "/etc/hosts"}, "/etc/hosts"},
		{"write path", "Write", map[string]any{"file_path": "/tmp/out"}, "/tmp/out"},
		{"grep pattern", "Grep", map[string]any{"pattern": "TODO"}, "/TODO/"},
		{"glob pattern", "Glob", map[string]any{"pattern": "**/*.go"}, "**/*.go"},
		{"unknown tool", "WebSearch", map[string]any{"query": "weather"}, ""},
		{"nil input", "Bash", nil, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ToolDetail(tc.tool, tc.input); got != tc.want {
				t.Errorf("ToolDetail(%s) = %q, want %q", tc.tool, got, tc.want)
			}
		})
	}
}

func TestToolDetailTruncatesLongCommands(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	got := ToolDetail("Bash", map[string]any{"command": string(long)})
	if len(got) > 90 {
		t.Errorf("Expected long command truncated, got %d chars", len(got))
	}
}
