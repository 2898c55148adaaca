package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/koromind/koromind/internal/approvals"
	"github.com/koromind/koromind/internal/domain"
	"github.com/koromind/koromind/internal/engine"
)

// streamEvent is the envelope for all server-to-client stream messages.
type streamEvent struct {
	Type     string           `json:"type"`
	ToolCall *domain.ToolCall `json:"tool_call,omitempty"`
	Approval *approvalView    `json:"approval,omitempty"`
	Result   *messageResponse `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// clientCommand is what the client may send after the initial request.
type clientCommand struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	Decision string `json:"decision,omitempty"`
}

// wsSession serializes writes to a single websocket connection. Tool-call
// notifications arrive from the engine goroutine while the handler goroutine
// owns the final result write.
type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(context.Background(), websocket.MessageText, data)
}

// streamMessage runs a single turn over a websocket, streaming tool calls and
// approval requests as they happen. The client sends one message request, then
// optionally approval decisions and interrupts while the turn runs.
func (h *Handler) streamMessage(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err, "user_id", user)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "turn ended"); closeErr != nil {
			slog.Debug("failed to close websocket", "error", closeErr, "user_id", user)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := &wsSession{conn: ws}

	_, raw, err := ws.Read(ctx)
	if err != nil {
		slog.Debug("websocket closed before request", "error", err, "user_id", user)
		return
	}

	var req messageRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.streamError(sess, domain.ErrInvalidInput)
		return
	}

	turn, err := h.buildTurnRequest(user, req)
	if err != nil {
		h.streamError(sess, err)
		return
	}

	turn.OnToolCall = func(toolName, detail string) {
		tc := domain.ToolCall{Name: toolName, Detail: detail}
		if err := sess.writeJSON(streamEvent{Type: "tool_call", ToolCall: &tc}); err != nil {
			slog.Debug("failed to stream tool call", "error", err, "user_id", user)
		}
	}
	turn.CanUseTool = h.streamApproval(sess, user)

	// Command loop: the client can resolve approvals or interrupt while the
	// turn is in flight. Exits when the connection drops or the turn ends.
	go func() {
		defer cancel()
		for {
			_, raw, err := ws.Read(ctx)
			if err != nil {
				if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
					slog.Debug("websocket read error", "error", err, "user_id", user)
				}
				return
			}

			var cmd clientCommand
			if err := json.Unmarshal(raw, &cmd); err != nil {
				continue
			}
			switch cmd.Type {
			case "approval":
				decision := approvals.Denied
				if cmd.Decision == "allow" {
					decision = approvals.Approved
				}
				h.tracker.Resolve(cmd.ID, decision)
			case "interrupt":
				h.brain.Interrupt(user)
			}
		}
	}()

	result, err := h.brain.ProcessTurn(ctx, turn)
	if err != nil {
		h.streamError(sess, err)
		return
	}

	resp := toMessageResponse(result)
	if err := sess.writeJSON(streamEvent{Type: "result", Result: &resp}); err != nil {
		slog.Debug("failed to stream result", "error", err, "user_id", user)
	}
}

// streamApproval bridges engine approval requests through the tracker so they
// can be resolved either over this connection or via the REST endpoint.
func (h *Handler) streamApproval(sess *wsSession, user string) engine.ApprovalFunc {
	return func(ctx context.Context, toolName string, toolInput map[string]any) (bool, error) {
		pending := h.tracker.Add(user, toolName, toolInput)
		view := approvalView{
			ID:        pending.ID,
			ToolName:  pending.ToolName,
			ToolInput: pending.ToolInput,
			CreatedAt: pending.CreatedAt,
		}
		if err := sess.writeJSON(streamEvent{Type: "approval_request", Approval: &view}); err != nil {
			slog.Debug("failed to stream approval request", "error", err, "user_id", user)
		}
		return pending.Wait(ctx) == approvals.Approved, nil
	}
}

func (h *Handler) streamError(sess *wsSession, err error) {
	status, message := classifyError(err)
	slog.Error("streamed turn failed", "status", status, "error", err)
	if writeErr := sess.writeJSON(streamEvent{Type: "error", Error: message}); writeErr != nil {
		slog.Debug("failed to stream error", "error", writeErr)
	}
}
