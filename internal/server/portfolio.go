package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func (s *Server) setupPortfolioRoutes(r chi.Router) {
	r.Get("/{userId}", s.handleGetPortfolio)
}

// handleGetPortfolio serves GET /portfolio/{userId}: open positions plus
// a pending-yield summary. Allocation by asset class is omitted for the
// same reason GET /assets?class= is: the domain model carries no class
// field to group by.
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	positions := s.engine.Store().PositionsForHolder(userID)

	pendingYield := decimal.Zero
	for _, pos := range positions {
		pendingYield = pendingYield.Add(pos.PendingYield)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"yield_summary": map[string]string{
			"pending": pendingYield.String(),
		},
	})
}
