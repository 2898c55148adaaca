package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/koromind/koromind/internal/approvals"
)

type approvalView struct {
	ID        string         `json:"id"`
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
	CreatedAt time.Time      `json:"created_at"`
}

func (h *Handler) getApprovals(w http.ResponseWriter, r *http.Request) {
	pending := h.tracker.PendingFor(userID(r))
	views := make([]approvalView, 0, len(pending))
	for _, p := range pending {
		views = append(views, approvalView{
			ID:        p.ID,
			ToolName:  p.ToolName,
			ToolInput: p.ToolInput,
			CreatedAt: p.CreatedAt,
		})
	}
	JSON(w, http.StatusOK, map[string]any{"approvals": views})
}

func (h *Handler) postApproval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Decision string `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var decision approvals.Decision
	switch req.Decision {
	case "allow":
		decision = approvals.Approved
	case "deny":
		decision = approvals.Denied
	default:
		Error(w, http.StatusBadRequest, "decision must be \"allow\" or \"deny\"")
		return
	}

	if !h.tracker.Resolve(chi.URLParam(r, "id"), decision) {
		Error(w, http.StatusNotFound, "approval not found or already resolved")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
