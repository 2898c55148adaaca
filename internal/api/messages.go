package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/koromind/koromind/internal/brain"
	"github.com/koromind/koromind/internal/domain"
)

type messageRequest struct {
	ContentType domain.ContentType    `json:"content_type"`
	Text        string                `json:"text,omitempty"`
	AudioB64    string                `json:"audio,omitempty"`
	Overrides   domain.SettingsUpdate `json:"overrides"`
}

type messageResponse struct {
	Text             string              `json:"text"`
	SessionID        string              `json:"session_id"`
	AudioB64         string              `json:"audio,omitempty"`
	AudioUnavailable bool                `json:"audio_unavailable,omitempty"`
	ToolCalls        []domain.ToolCall   `json:"tool_calls,omitempty"`
	Metadata         domain.TurnMetadata `json:"metadata"`
}

func (h *Handler) postMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	turn, err := h.buildTurnRequest(userID(r), req)
	if err != nil {
		BrainError(w, err)
		return
	}

	result, err := h.brain.ProcessTurn(r.Context(), turn)
	if err != nil {
		BrainError(w, err)
		return
	}

	JSON(w, http.StatusOK, toMessageResponse(result))
}

func (h *Handler) buildTurnRequest(user string, req messageRequest) (brain.TurnRequest, error) {
	turn := brain.TurnRequest{
		UserID:      user,
		ContentType: req.ContentType,
		Text:        req.Text,
		Overrides:   req.Overrides,
	}
	if req.AudioB64 != "" {
		audio, err := base64.StdEncoding.DecodeString(req.AudioB64)
		if err != nil {
			return brain.TurnRequest{}, fmt.Errorf("%w: audio is not valid base64", domain.ErrInvalidInput)
		}
		turn.Audio = audio
	}
	return turn, nil
}

func toMessageResponse(result *domain.TurnResult) messageResponse {
	resp := messageResponse{
		Text:             result.Text,
		SessionID:        result.SessionID,
		AudioUnavailable: result.AudioUnavailable,
		ToolCalls:        result.ToolCalls,
		Metadata:         result.Metadata,
	}
	if len(result.Audio) > 0 {
		resp.AudioB64 = base64.StdEncoding.EncodeToString(result.Audio)
	}
	return resp
}

func (h *Handler) postInterrupt(w http.ResponseWriter, r *http.Request) {
	interrupted := h.brain.Interrupt(userID(r))
	JSON(w, http.StatusOK, map[string]bool{"interrupted": interrupted})
}
