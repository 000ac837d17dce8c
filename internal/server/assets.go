package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sentineltrading/execution-core/internal/domain"
)

func (s *Server) setupAssetRoutes(r chi.Router) {
	r.Get("/", s.handleListAssets)
	r.Get("/{id}", s.handleGetAsset)
	r.Post("/{id}/buy", s.handleBuyAsset)
	r.Post("/{id}/sell", s.handleSellAsset)
}

// handleListAssets serves GET /assets?minYield=&maxPrice=. class and
// jurisdiction are accepted but ignored: no domain type in this engine
// models either concept, and inventing one this late to satisfy an
// unused query parameter would be worse than a documented no-op.
func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	assets := s.engine.Store().ListActiveAssets()

	q := r.URL.Query()
	if raw := q.Get("minYield"); raw != "" {
		if minYield, err := strconv.ParseFloat(raw, 64); err == nil {
			assets = filterAssets(assets, func(a domain.Asset) bool {
				rate, _ := a.AnnualYieldRate.Float64()
				return rate >= minYield
			})
		}
	}
	if raw := q.Get("maxPrice"); raw != "" {
		if maxPrice, err := strconv.ParseFloat(raw, 64); err == nil {
			assets = filterAssets(assets, func(a domain.Asset) bool { return a.Price <= maxPrice })
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"assets": assets})
}

func filterAssets(assets []domain.Asset, keep func(domain.Asset) bool) []domain.Asset {
	out := assets[:0]
	for _, a := range assets {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

// handleGetAsset serves GET /assets/{id}: the asset record plus its
// order book's top-10 bid/ask levels and recent trade tape.
func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")
	asset, ok := s.engine.Store().Asset(assetID)
	if !ok {
		s.writeError(w, domain.NewError(domain.ErrUnknownSymbol, "asset not found", false))
		return
	}

	snap, _ := s.engine.Book().Snapshot(assetID)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset":         asset,
		"bids":          topLevels(snap.Bids, 10),
		"asks":          topLevels(snap.Asks, 10),
		"recent_trades": snap.RecentTrades,
	})
}

func topLevels[T any](levels []T, n int) []T {
	if len(levels) <= n {
		return levels
	}
	return levels[:n]
}

type tradeRequestBody struct {
	UserID     string   `json:"userId"`
	Amount     *string  `json:"amount"`     // buy: dollar amount to spend
	Quantity   *string  `json:"quantity"`   // sell: token quantity to sell
	OrderType  string   `json:"orderType"`  // "market" or "limit"
	LimitPrice *float64 `json:"limitPrice"`
}

func (s *Server) handleBuyAsset(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, domain.SideBuy)
}

func (s *Server) handleSellAsset(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, domain.SideSell)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request, side domain.Side) {
	assetID := chi.URLParam(r, "id")

	var body tradeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeBadRequest(w, "invalid request body")
		return
	}
	if body.UserID == "" {
		s.writeBadRequest(w, "userId is required")
		return
	}

	orderType := domain.OrderTypeMarket
	if body.OrderType == string(domain.OrderTypeLimit) {
		orderType = domain.OrderTypeLimit
		if body.LimitPrice == nil {
			s.writeBadRequest(w, "limitPrice is required for limit orders")
			return
		}
	}

	qty, err := s.resolveTradeQty(r.Context(), side, assetID, body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	order, err := s.engine.Pipeline().SubmitManual(r.Context(), body.UserID, assetID, side, orderType, qty, body.LimitPrice)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, order)
}

// resolveTradeQty converts a buy request's dollar amount into a token
// quantity at the current best ask; sell requests already carry a token
// quantity directly.
func (s *Server) resolveTradeQty(ctx context.Context, side domain.Side, assetID string, body tradeRequestBody) (decimal.Decimal, error) {
	if side == domain.SideSell {
		if body.Quantity == nil {
			return decimal.Zero, domain.NewError(domain.ErrBelowMinimum, "quantity is required to sell", false)
		}
		qty, err := decimal.NewFromString(*body.Quantity)
		if err != nil {
			return decimal.Zero, domain.NewError(domain.ErrBelowMinimum, "quantity must be a decimal string", false)
		}
		return qty, nil
	}

	if body.Amount == nil {
		return decimal.Zero, domain.NewError(domain.ErrBelowMinimum, "amount is required to buy", false)
	}
	amount, err := decimal.NewFromString(*body.Amount)
	if err != nil {
		return decimal.Zero, domain.NewError(domain.ErrBelowMinimum, "amount must be a decimal string", false)
	}
	quote, err := s.engine.Market().GetAggregated(ctx, assetID)
	if err != nil {
		return decimal.Zero, domain.NewError(domain.ErrNoProviderAvailable, err.Error(), true)
	}
	if quote.BestAsk <= 0 {
		return decimal.Zero, domain.NewError(domain.ErrNoProviderAvailable, "no ask price available", true)
	}
	return amount.Div(decimal.NewFromFloat(quote.BestAsk)), nil
}
