package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sentineltrading/execution-core/internal/domain"
)

func (s *Server) setupMarketRoutes(r chi.Router) {
	r.Get("/quote/{symbol}", s.handleGetQuote)
	r.Post("/quotes", s.handleGetQuotes)
	r.Get("/history/{symbol}", s.handleGetHistory)
}

func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	quote, err := s.engine.Market().GetAggregated(r.Context(), symbol)
	if err != nil {
		s.writeError(w, domain.NewError(domain.ErrNoProviderAvailable, err.Error(), true))
		return
	}
	s.writeJSON(w, http.StatusOK, quote)
}

type quotesRequestBody struct {
	Symbols []string `json:"symbols"`
}

func (s *Server) handleGetQuotes(w http.ResponseWriter, r *http.Request) {
	var body quotesRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeBadRequest(w, "invalid request body")
		return
	}

	quotes := make(map[string]domain.AggregatedQuote, len(body.Symbols))
	for _, symbol := range body.Symbols {
		quote, err := s.engine.Market().GetAggregated(r.Context(), symbol)
		if err != nil {
			continue
		}
		quotes[symbol] = quote
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"quotes": quotes})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = "1h"
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	candles, err := s.engine.Market().GetCandles(r.Context(), s.engine.PrimaryProvider(), symbol, timeframe, limit)
	if err != nil {
		s.writeError(w, domain.NewError(domain.ErrNoProviderAvailable, err.Error(), true))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"candles": candles})
}
