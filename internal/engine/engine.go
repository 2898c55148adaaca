// Package engine defines the boundary to the external agent engine and a
// CLI-subprocess implementation of it.
package engine

import (
	"context"

	"github.com/koromind/koromind/internal/domain"
)

// NotifyFunc is called once per tool invocation with the tool name and a
// short human-readable detail. Implementations must treat it as untrusted
// caller code: a panicking callback must never abort the turn.
type NotifyFunc func(toolName, detail string)

// ApprovalFunc is asked before each tool call in approve mode. Returning
// false denies the call. The context carries the decision deadline; an
// expired context is treated as a denial.
type ApprovalFunc func(ctx context.Context, toolName string, toolInput map[string]any) (allowed bool, err error)

// ExecuteRequest describes one engine invocation.
type ExecuteRequest struct {
	UserID     string
	Prompt     string
	SessionID  string // empty starts a new engine session
	Mode       domain.Mode
	Model      string // empty uses the engine default
	OnToolCall NotifyFunc
	CanUseTool ApprovalFunc
}

// Result is the engine's final answer for one turn.
type Result struct {
	Text       string
	SessionID  string
	IsError    bool
	CostUSD    float64
	NumTurns   int
	DurationMS int64
	ToolCalls  []domain.ToolCall
}

// Engine executes agentic turns. Implementations must support interrupting
// an in-flight call, since approval-mode turns can run arbitrarily long.
type Engine interface {
	// Execute runs one turn and blocks until the engine produces a final
	// result or ctx is done.
	Execute(ctx context.Context, req ExecuteRequest) (*Result, error)

	// Interrupt terminates the user's in-flight Execute call, if any.
	// Returns true if a call was interrupted.
	Interrupt(userID string) bool
}
