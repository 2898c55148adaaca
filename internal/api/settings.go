package api

import (
	"encoding/json"
	"net/http"

	"github.com/koromind/koromind/internal/domain"
)

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.brain.Settings(r.Context(), userID(r))
	if err != nil {
		BrainError(w, err)
		return
	}
	JSON(w, http.StatusOK, settings)
}

func (h *Handler) patchSettings(w http.ResponseWriter, r *http.Request) {
	// Unknown fields fail loudly: a typoed setting name is a caller bug,
	// not something to silently ignore.
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var update domain.SettingsUpdate
	if err := decoder.Decode(&update); err != nil {
		Error(w, http.StatusBadRequest, "invalid settings update: "+err.Error())
		return
	}

	settings, err := h.brain.UpdateSettings(r.Context(), userID(r), update)
	if err != nil {
		BrainError(w, err)
		return
	}
	JSON(w, http.StatusOK, settings)
}
