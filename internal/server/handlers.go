package server

import (
	"encoding/json"
	"net/http"

	"github.com/sentineltrading/execution-core/internal/domain"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// writeError maps a domain error to an HTTP status and {code, message}
// body. Errors that are not *domain.Error (a bug surfacing, or a ledger/
// database failure) are reported as a generic 500 without leaking detail.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	derr, ok := err.(*domain.Error)
	if !ok {
		s.log.Error().Err(err).Msg("unhandled error in request handler")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"code": "INTERNAL", "message": "internal error"})
		return
	}

	status := http.StatusBadRequest
	switch derr.Code {
	case domain.ErrBrakeActive:
		status = http.StatusServiceUnavailable
	case domain.ErrUnknownSymbol, domain.ErrUnknownStrategy, domain.ErrUnknownBot, domain.ErrOrderNotFound:
		status = http.StatusNotFound
	case domain.ErrComplianceDenied:
		status = http.StatusForbidden
	}
	s.writeJSON(w, status, map[string]string{"code": derr.Code, "message": derr.Message})
}

func (s *Server) writeBadRequest(w http.ResponseWriter, message string) {
	s.writeJSON(w, http.StatusBadRequest, map[string]string{"code": "INVALID_REQUEST", "message": message})
}

// handleHealth reports whether the ledger and universe databases pass an
// integrity check, for a liveness/readiness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.HealthCheck(); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
}

// handleMetrics is a plain JSON admin snapshot of emergency-brake state
// and per-bot missed-tick counters, for a headless execution core with no
// physical status display.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	bots := s.engine.Bots().All()
	botMetrics := make([]map[string]interface{}, 0, len(bots))
	for _, bot := range bots {
		state, ok := s.engine.Scheduler().State(bot.BotID)
		if !ok {
			continue
		}
		botMetrics = append(botMetrics, map[string]interface{}{
			"bot_id":       bot.BotID,
			"status":       state.Status,
			"missed_ticks": state.MissedTicks,
			"trades_today": state.TradesToday,
			"daily_pnl":    state.DailyPnL.String(),
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"brake_active": s.engine.Brake().Active(),
		"bots":         botMetrics,
	})
}
