package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) setupEmergencyRoutes(r chi.Router) {
	r.Post("/brake", s.handleTripBrake)
	r.Post("/release", s.handleReleaseBrake)
}

type tripBrakeBody struct {
	Reason string `json:"reason"`
}

// handleTripBrake trips the emergency brake. Every in-flight pipeline
// check already polls Brake.Active on each call, so no separate drain
// step is needed: the next tick simply sees the brake up.
func (s *Server) handleTripBrake(w http.ResponseWriter, r *http.Request) {
	var body tripBrakeBody
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.engine.Brake().Trip()
	s.log.Warn().Str("reason", body.Reason).Msg("emergency brake tripped via REST")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "brake_active"})
}

type releaseBrakeBody struct {
	Confirmation string `json:"confirmation"`
}

const releaseConfirmationPhrase = "RELEASE_EMERGENCY_BRAKE"

// handleReleaseBrake requires the exact confirmation phrase so a release
// can never happen by an accidental or malformed request.
func (s *Server) handleReleaseBrake(w http.ResponseWriter, r *http.Request) {
	var body releaseBrakeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Confirmation != releaseConfirmationPhrase {
		s.writeBadRequest(w, "confirmation must equal "+releaseConfirmationPhrase)
		return
	}

	s.engine.Brake().Release()
	s.log.Info().Msg("emergency brake released via REST")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "brake_released"})
}
