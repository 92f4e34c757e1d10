package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/parcel-bridge/internal/bridges/parcel"
	"github.com/nerrad567/parcel-bridge/internal/codec"
	"github.com/nerrad567/parcel-bridge/internal/voice"
)

// VoiceRequest is the body of POST /voice.
type VoiceRequest struct {
	Text string `json:"text"`
}

// VoiceResponse reports what the matcher made of the text and whether the
// action went out. Action is the match; Sent is false for "none" and for
// actions that failed or were throttled.
type VoiceResponse struct {
	Action     string `json:"action"`
	TailNumber string `json:"tail_number,omitempty"`
	Sent       bool   `json:"sent"`
	Throttled  bool   `json:"throttled,omitempty"`
}

// handleVoice feeds recognised speech to the bridge.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	var req VoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "text is required")
		return
	}

	action, err := s.bridge.HandleVoiceText(req.Text)
	writeJSON(w, http.StatusOK, VoiceResponse{
		Action:     action.Kind.String(),
		TailNumber: action.TailNumber,
		Sent:       err == nil && action.Kind != voice.NoMatch,
		Throttled:  errors.Is(err, parcel.ErrLookupThrottled),
	})
}

// handleMotion writes a motion command to the controller board,
// e.g. POST /motion/move_forward.
func (s *Server) handleMotion(w http.ResponseWriter, r *http.Request) {
	m, err := codec.ParseMotion(chi.URLParam(r, "command"))
	if err != nil {
		writeNotFound(w, "unknown motion command")
		return
	}

	if err := s.bridge.Drive(m); err != nil {
		if errors.Is(err, parcel.ErrSerialUnavailable) {
			writeUnavailable(w, "serial link disabled")
			return
		}
		s.logger.Warn("motion command failed", "command", m.String(), "error", err)
		writeInternalError(w, "serial write failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"command": m.String()})
}
