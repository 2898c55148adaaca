package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/koromind/koromind/internal/domain"
)

// DefaultAllowedTools is the tool allow-list used in auto mode.
var DefaultAllowedTools = []string{
	"Read", "Grep", "Glob", "WebSearch", "WebFetch",
	"Task", "Bash", "Edit", "Write", "Skill",
}

// CLIConfig configures the CLI-subprocess engine.
type CLIConfig struct {
	// Binary is the agent CLI executable.
	Binary string
	// SandboxDir is the working directory the agent writes into.
	SandboxDir string
	// AddDir is an extra directory the agent may read.
	AddDir string
	// SystemPrompt overrides the agent's system prompt when non-empty.
	SystemPrompt string
	// AllowedTools is the auto-mode tool allow-list.
	AllowedTools []string
	// ApprovalTimeout bounds each human approval decision. Expiry denies
	// the tool call.
	ApprovalTimeout time.Duration
}

func (c *CLIConfig) applyDefaults() {
	if c.Binary == "" {
		c.Binary = "claude"
	}
	if len(c.AllowedTools) == 0 {
		c.AllowedTools = DefaultAllowedTools
	}
	if c.ApprovalTimeout <= 0 {
		c.ApprovalTimeout = 5 * time.Minute
	}
}

// CLIEngine runs turns by spawning the agent CLI and speaking its
// stream-JSON protocol over stdin/stdout. One process per Execute call;
// in-flight processes are tracked per user so Interrupt can reach them.
type CLIEngine struct {
	cfg CLIConfig

	mu      sync.Mutex
	running map[string]*os.Process
}

// NewCLIEngine creates a CLI-subprocess engine.
func NewCLIEngine(cfg CLIConfig) *CLIEngine {
	cfg.applyDefaults()
	return &CLIEngine{
		cfg:     cfg,
		running: make(map[string]*os.Process),
	}
}

var _ Engine = (*CLIEngine)(nil)

// Execute runs one turn through the agent CLI.
func (e *CLIEngine) Execute(ctx context.Context, req ExecuteRequest) (*Result, error) {
	if e.cfg.SandboxDir != "" {
		if err := os.MkdirAll(e.cfg.SandboxDir, 0755); err != nil {
			return nil, fmt.Errorf("create sandbox dir: %w", err)
		}
	}

	cmd := exec.CommandContext(ctx, e.cfg.Binary, e.buildArgs(req)...)
	if e.cfg.SandboxDir != "" {
		cmd.Dir = e.cfg.SandboxDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open engine stdout: %w", err)
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine process: %w", err)
	}
	e.track(req.UserID, cmd.Process)
	defer e.untrack(req.UserID, cmd.Process)

	if req.CanUseTool != nil {
		// Approve mode speaks stream-JSON on stdin: the prompt goes in as a
		// user message and the pipe stays open for control responses.
		if err := writeUserMessage(stdin, req.Prompt); err != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return nil, err
		}
	} else {
		// Auto mode passes the prompt as an argument. Close stdin right away
		// so the CLI never waits for input that is not coming.
		stdin.Close()
	}

	result, readErr := e.consumeStream(ctx, req, stdout, stdin)
	stdin.Close()

	waitErr := cmd.Wait()
	if readErr != nil {
		return nil, readErr
	}
	if result == nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("engine call canceled: %w", ctx.Err())
		}
		if waitErr != nil {
			return nil, fmt.Errorf("engine process failed: %w", waitErr)
		}
		return nil, fmt.Errorf("engine produced no result")
	}
	return result, nil
}

func (e *CLIEngine) buildArgs(req ExecuteRequest) []string {
	args := []string{"--print", "--output-format", "stream-json", "--verbose"}

	if e.cfg.SystemPrompt != "" {
		args = append(args, "--system-prompt", e.cfg.SystemPrompt)
	}
	if e.cfg.AddDir != "" {
		args = append(args, "--add-dir", e.cfg.AddDir)
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.SessionID != "" {
		args = append(args, "--resume", req.SessionID)
	}

	if req.CanUseTool != nil {
		// Approve mode: stream-JSON stdin carries the prompt and the
		// control_response frames answering permission requests.
		args = append(args, "--input-format", "stream-json",
			"--permission-mode", "default", "--permission-prompt-tool", "stdio")
	} else {
		args = append(args, "--allowed-tools", strings.Join(e.cfg.AllowedTools, ","))
		args = append(args, req.Prompt)
	}
	return args
}

// writeUserMessage frames a prompt as a stream-JSON user message.
func writeUserMessage(w io.Writer, prompt string) error {
	msg := map[string]any{
		"type": "user",
		"message": map[string]any{
			"role":    "user",
			"content": []map[string]any{{"type": "text", "text": prompt}},
		},
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal user message: %w", err)
	}
	if _, err := w.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write prompt: %w", err)
	}
	return nil
}

// consumeStream reads engine events until the terminal result. Tool-use
// notifications and approval decisions are dispatched as they arrive.
func (e *CLIEngine) consumeStream(ctx context.Context, req ExecuteRequest, stdout io.Reader, stdin io.Writer) (*Result, error) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	res := &Result{SessionID: req.SessionID}
	var assistantText strings.Builder

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		ev, err := DecodeEvent(line)
		if err != nil {
			slog.Debug("skipping undecodable engine line", "error", err)
			continue
		}

		switch ev := ev.(type) {
		case InitEvent:
			if ev.SessionID != "" {
				res.SessionID = ev.SessionID
			}

		case AssistantEvent:
			assistantText.WriteString(ev.Text)
			for _, use := range ev.ToolUses {
				res.ToolCalls = append(res.ToolCalls, toolCallRecord(use))
				if req.OnToolCall != nil {
					req.OnToolCall(use.Name, ToolDetail(use.Name, use.Input))
				}
			}

		case ResultEvent:
			if ev.SessionID != "" {
				res.SessionID = ev.SessionID
			}
			res.Text = ev.Result
			if res.Text == "" {
				res.Text = assistantText.String()
			}
			res.IsError = ev.IsError
			res.CostUSD = ev.CostUSD
			res.NumTurns = ev.NumTurns
			res.DurationMS = ev.DurationMS
			return res, nil

		case ControlRequestEvent:
			e.answerControlRequest(ctx, req, ev, stdin)

		case UnknownEvent:
			slog.Debug("unknown engine event", "type", ev.Type)

		default:
			// Every Event variant is handled above; a new variant must be
			// added here, not silently dropped.
			slog.Warn("unhandled engine event variant", "kind", ev.eventKind())
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read engine stream: %w", err)
	}
	return nil, nil
}

func (e *CLIEngine) answerControlRequest(ctx context.Context, req ExecuteRequest, ev ControlRequestEvent, stdin io.Writer) {
	if ev.Subtype != "can_use_tool" {
		slog.Debug("ignoring control request", "subtype", ev.Subtype)
		return
	}

	allowed := false
	if req.CanUseTool != nil {
		decisionCtx, cancel := context.WithTimeout(ctx, e.cfg.ApprovalTimeout)
		ok, err := req.CanUseTool(decisionCtx, ev.ToolName, ev.ToolInput)
		cancel()
		if err != nil {
			slog.Warn("approval callback failed, denying tool call",
				"tool", ev.ToolName, "error", err)
		} else {
			allowed = ok
		}
	}

	behavior := "deny"
	if allowed {
		behavior = "allow"
	}
	response := map[string]any{
		"type": "control_response",
		"response": map[string]any{
			"subtype":    "success",
			"request_id": ev.RequestID,
			"response":   map[string]any{"behavior": behavior},
		},
	}
	payload, err := json.Marshal(response)
	if err != nil {
		slog.Error("marshal control response", "error", err)
		return
	}
	if _, err := stdin.Write(append(payload, '\n')); err != nil {
		slog.Warn("write control response", "error", err)
	}
}

// Interrupt signals the user's in-flight engine process.
func (e *CLIEngine) Interrupt(userID string) bool {
	e.mu.Lock()
	proc := e.running[userID]
	e.mu.Unlock()

	if proc == nil {
		return false
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		slog.Warn("interrupt engine process", "user_id", userID, "error", err)
		return false
	}
	return true
}

func (e *CLIEngine) track(userID string, proc *os.Process) {
	e.mu.Lock()
	e.running[userID] = proc
	e.mu.Unlock()
}

func (e *CLIEngine) untrack(userID string, proc *os.Process) {
	e.mu.Lock()
	if e.running[userID] == proc {
		delete(e.running, userID)
	}
	e.mu.Unlock()
}

func toolCallRecord(use ToolUse) domain.ToolCall {
	return domain.ToolCall{Name: use.Name, Detail: ToolDetail(use.Name, use.Input)}
}

// ToolDetail extracts a short display detail from a tool's input.
func ToolDetail(toolName string, input map[string]any) string {
	str := func(key string) string {
		v, _ := input[key].(string)
		return v
	}

	switch toolName {
	case "Bash":
		cmd := str("command")
		if len(cmd) > 80 {
			return cmd[:80] + "..."
		}
		return cmd
	case "Read", "Edit", "Write":
		return str("file_path")
	case "Grep":
		if p := str("pattern"); p != "" {
			return "/" + p + "/"
		}
		return ""
	case "Glob":
		return str("pattern")
	default:
		return ""
	}
}
