package api

import (
	"encoding/json"
	"net/http"
)

func (h *Handler) getSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.brain.ListSessions(r.Context(), userID(r))
	if err != nil {
		BrainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) getCurrentSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.brain.CurrentSession(r.Context(), userID(r))
	if err != nil {
		BrainError(w, err)
		return
	}
	if sess == nil {
		JSON(w, http.StatusOK, map[string]any{"session": nil})
		return
	}
	JSON(w, http.StatusOK, map[string]any{"session": sess})
}

func (h *Handler) postCurrentSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sess, err := h.brain.SwitchSession(r.Context(), userID(r), req.SessionID)
	if err != nil {
		BrainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"session": sess})
}

func (h *Handler) postNewSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	// Body is optional for unnamed sessions.
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.brain.StartNewSession(r.Context(), userID(r), req.Name); err != nil {
		BrainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
