package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sentineltrading/execution-core/internal/domain"
)

func (s *Server) setupBotRoutes(r chi.Router) {
	r.Post("/{id}/activate", s.handleActivateBot)
	r.Post("/{id}/deactivate", s.handleDeactivateBot)
	r.Post("/{id}/pause", s.handlePauseBot)
	r.Post("/{id}/resume", s.handleResumeBot)
	r.Get("/{id}/trading-state", s.handleBotTradingState)
}

// riskPerTradeByLevel maps the REST surface's coarse "riskLevel" knob to
// the fraction-of-balance RiskProfile.RiskPerTrade the risk pipeline
// actually sizes against. Unrecognized levels fall back to "medium".
var riskPerTradeByLevel = map[string]decimal.Decimal{
	"low":    decimal.NewFromFloat(0.005),
	"medium": decimal.NewFromFloat(0.01),
	"high":   decimal.NewFromFloat(0.02),
}

type activateBotBody struct {
	RiskLevel       string  `json:"riskLevel"`
	MaxPositionSize *string `json:"maxPositionSize"`
	MaxDailyTrades  *int    `json:"maxDailyTrades"`
	MaxDailyLoss    *string `json:"maxDailyLoss"`
}

func (s *Server) handleActivateBot(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "id")
	bot, ok := s.engine.Bots().Get(botID)
	if !ok {
		s.writeError(w, domain.NewError(domain.ErrUnknownBot, "bot not found", false))
		return
	}

	var body activateBotBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeBadRequest(w, "invalid request body")
		return
	}

	if rpt, ok := riskPerTradeByLevel[body.RiskLevel]; ok {
		bot.Risk.RiskPerTrade = rpt
	} else if body.RiskLevel != "" {
		bot.Risk.RiskPerTrade = riskPerTradeByLevel["medium"]
	}
	if body.MaxPositionSize != nil {
		if v, err := decimal.NewFromString(*body.MaxPositionSize); err == nil {
			bot.Risk.MaxPositionSize = v
		}
	}
	if body.MaxDailyTrades != nil {
		bot.Risk.MaxDailyTrades = *body.MaxDailyTrades
	}
	if body.MaxDailyLoss != nil {
		if v, err := decimal.NewFromString(*body.MaxDailyLoss); err == nil {
			bot.Risk.DailyLossLimit = v
		}
	}

	if err := s.engine.Bots().Update(bot); err != nil {
		s.writeError(w, err)
		return
	}
	s.engine.Scheduler().Enable(botID)
	s.writeJSON(w, http.StatusOK, bot)
}

func (s *Server) handleDeactivateBot(w http.ResponseWriter, r *http.Request) {
	s.engine.Scheduler().Disable(chi.URLParam(r, "id"))
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (s *Server) handlePauseBot(w http.ResponseWriter, r *http.Request) {
	s.engine.Scheduler().Pause(chi.URLParam(r, "id"))
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResumeBot(w http.ResponseWriter, r *http.Request) {
	s.engine.Scheduler().Resume(chi.URLParam(r, "id"))
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleBotTradingState(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "id")
	state, ok := s.engine.Scheduler().State(botID)
	if !ok {
		s.writeError(w, domain.NewError(domain.ErrUnknownBot, "bot has no scheduler state", false))
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}
