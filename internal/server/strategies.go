package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sentineltrading/execution-core/internal/domain"
)

func (s *Server) setupStrategyRoutes(r chi.Router) {
	r.Route("/builder", func(r chi.Router) {
		r.Get("/", s.handleListStrategies)
		r.Post("/", s.handleCreateStrategy)
		r.Get("/{id}", s.handleGetStrategy)
		r.Put("/{id}", s.handleUpdateStrategy)
		r.Post("/validate", s.handleValidateStrategy)
		r.Post("/{id}/backtest", s.handleBacktestStrategy)
		r.Post("/{id}/deploy", s.handleDeployStrategy)
	})
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"strategies": s.engine.Strategies().All()})
}

func (s *Server) decodeStrategy(w http.ResponseWriter, r *http.Request) (*domain.Strategy, bool) {
	var strat domain.Strategy
	if err := json.NewDecoder(r.Body).Decode(&strat); err != nil {
		s.writeBadRequest(w, "invalid request body")
		return nil, false
	}
	return &strat, true
}

func (s *Server) handleCreateStrategy(w http.ResponseWriter, r *http.Request) {
	strat, ok := s.decodeStrategy(w, r)
	if !ok {
		return
	}
	if err := validateStrategy(strat); err != nil {
		s.writeBadRequest(w, err.Error())
		return
	}
	if err := s.engine.Strategies().Upsert(strat); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, strat)
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	strat, ok := s.engine.Strategies().Get(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, domain.NewError(domain.ErrUnknownStrategy, "strategy not found", false))
		return
	}
	s.writeJSON(w, http.StatusOK, strat)
}

func (s *Server) handleUpdateStrategy(w http.ResponseWriter, r *http.Request) {
	strat, ok := s.decodeStrategy(w, r)
	if !ok {
		return
	}
	strat.StrategyID = chi.URLParam(r, "id")
	if err := validateStrategy(strat); err != nil {
		s.writeBadRequest(w, err.Error())
		return
	}
	if err := s.engine.Strategies().Upsert(strat); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, strat)
}

// handleValidateStrategy checks a candidate strategy's condition tree for
// structural soundness without persisting it: every rule's tree must
// resolve to a params field matching its Kind.
func (s *Server) handleValidateStrategy(w http.ResponseWriter, r *http.Request) {
	strat, ok := s.decodeStrategy(w, r)
	if !ok {
		return
	}
	if err := validateStrategy(strat); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"valid": false, "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"valid": true})
}

// handleDeployStrategy registers an already-created strategy with the
// live evaluator, so bots referencing its StrategyID start firing on the
// next scheduler cycle.
func (s *Server) handleDeployStrategy(w http.ResponseWriter, r *http.Request) {
	strat, ok := s.engine.Strategies().Get(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, domain.NewError(domain.ErrUnknownStrategy, "strategy not found", false))
		return
	}
	s.engine.Evaluator().RegisterStrategy(strat)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deployed"})
}

// handleBacktestStrategy is intentionally unimplemented: this engine has
// no historical simulation harness, only the live evaluator, indicator
// cache, and risk pipeline. Building one is a larger undertaking than a
// REST handler (candle replay, a shadow ledger, a P&L accumulator) and is
// out of scope here.
func (s *Server) handleBacktestStrategy(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusNotImplemented, map[string]string{
		"code":    "not_implemented",
		"message": "backtesting requires a historical simulation harness this engine does not provide",
	})
}

func validateStrategy(strat *domain.Strategy) error {
	if strat.Name == "" {
		return fmt.Errorf("strategy name is required")
	}
	if len(strat.EntryRules) == 0 {
		return fmt.Errorf("strategy must declare at least one entry rule")
	}
	for _, rule := range append(append([]domain.Rule{}, strat.EntryRules...), strat.ExitRules...) {
		if err := validateCondition(rule.Tree); err != nil {
			return fmt.Errorf("rule %s: %w", rule.RuleID, err)
		}
	}
	return nil
}

func validateCondition(c domain.Condition) error {
	switch c.Kind {
	case domain.ConditionGroup:
		if c.Group == nil || len(c.Group.Children) == 0 {
			return fmt.Errorf("group condition requires at least one child")
		}
		for _, child := range c.Group.Children {
			if err := validateCondition(child); err != nil {
				return err
			}
		}
	case domain.ConditionPriceAbove, domain.ConditionPriceBelow,
		domain.ConditionPriceCrossesAbove, domain.ConditionPriceCrossesBelow:
		if c.PriceIndicator == nil {
			return fmt.Errorf("%s requires priceIndicator", c.Kind)
		}
	case domain.ConditionIndicatorAbove, domain.ConditionIndicatorBelow:
		if c.IndicatorValue == nil {
			return fmt.Errorf("%s requires indicatorValue", c.Kind)
		}
	case domain.ConditionIndicatorCrossAbove, domain.ConditionIndicatorCrossBelow:
		if c.IndicatorPair == nil {
			return fmt.Errorf("%s requires indicatorPair", c.Kind)
		}
	case domain.ConditionVolumeSpike:
		if c.VolumeSpike == nil {
			return fmt.Errorf("volume_spike requires volumeSpike params")
		}
	case domain.ConditionTimeOfDay:
		if c.TimeWindow == nil {
			return fmt.Errorf("time_of_day requires timeWindow params")
		}
	case domain.ConditionDayOfWeek:
		if c.DayOfWeek == nil {
			return fmt.Errorf("day_of_week requires dayOfWeek params")
		}
	case domain.ConditionRegimeIs:
		if c.Regime == nil {
			return fmt.Errorf("regime_is requires regime params")
		}
	case domain.ConditionVolatilityAbove, domain.ConditionVolatilityBelow,
		domain.ConditionDrawdownExceeds, domain.ConditionProfitTargetHit,
		domain.ConditionConsecutiveLosses, domain.ConditionConsecutiveWins:
		if c.Threshold == nil {
			return fmt.Errorf("%s requires threshold params", c.Kind)
		}
	default:
		return fmt.Errorf("unknown condition kind %q", c.Kind)
	}
	return nil
}
