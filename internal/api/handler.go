// Package api provides HTTP handlers for the KoroMind API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/koromind/koromind/internal/approvals"
	"github.com/koromind/koromind/internal/brain"
	"github.com/koromind/koromind/internal/domain"
)

// UserHeader names the header carrying the caller's user id. The API serves
// a personal deployment, so an absent header maps to the local user.
const (
	UserHeader    = "X-User-ID"
	defaultUserID = "local"
)

// Handler provides the REST front-end over the Brain.
type Handler struct {
	brain   *brain.Brain
	tracker *approvals.Tracker
}

// NewHandler creates a Handler.
func NewHandler(b *brain.Brain, tracker *approvals.Tracker) *Handler {
	return &Handler{brain: b, tracker: tracker}
}

// RegisterRoutes mounts all API routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/messages", h.postMessage)
		r.Post("/messages/interrupt", h.postInterrupt)
		r.Get("/messages/stream", h.streamMessage)

		r.Get("/sessions", h.getSessions)
		r.Get("/sessions/current", h.getCurrentSession)
		r.Post("/sessions/current", h.postCurrentSession)
		r.Post("/sessions/new", h.postNewSession)

		r.Get("/settings", h.getSettings)
		r.Patch("/settings", h.patchSettings)

		r.Get("/approvals", h.getApprovals)
		r.Post("/approvals/{id}", h.postApproval)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// BrainError maps a Brain error to its HTTP representation. The mapping is
// total over the named error kinds; anything else is a 500. User-visible
// messages stay generic, detail goes to the log.
func BrainError(w http.ResponseWriter, err error) {
	status, message := classifyError(err)
	slog.Error("turn failed", "status", status, "error", err)
	Error(w, status, message)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "Slow down a little."
	case errors.Is(err, domain.ErrTranscriptionFailed):
		return http.StatusUnprocessableEntity, "Could not understand the audio."
	case errors.Is(err, domain.ErrAgentEngineFailed):
		return http.StatusBadGateway, "Something went wrong. Please try again."
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "Something went wrong. Please try again."
	default:
		return http.StatusInternalServerError, "Something went wrong."
	}
}

func userID(r *http.Request) string {
	if id := r.Header.Get(UserHeader); id != "" {
		return id
	}
	return defaultUserID
}
