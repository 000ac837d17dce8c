package risk

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sentineltrading/execution-core/internal/domain"
	"github.com/sentineltrading/execution-core/internal/indicators"
	"github.com/sentineltrading/execution-core/internal/ledger"
	"github.com/sentineltrading/execution-core/internal/marketdata"
)

// AssetStore resolves an asset's current engine-side record.
type AssetStore interface {
	Asset(assetID string) (domain.Asset, bool)
}

// PositionStore answers the duplicate-position and correlation-cap checks.
type PositionStore interface {
	OpenPosition(botID, assetID string) (domain.Position, bool)
	OpenPositions(botID string) []domain.Position
}

// AccountStore resolves the account balance a bot trades against.
type AccountStore interface {
	Balance(botID string) decimal.Decimal
}

// ComplianceChecker answers whether a user may trade accredited-only assets.
type ComplianceChecker interface {
	IsAccredited(userID string) bool
}

// OrderSink is where an accepted order goes next (the matching engine).
type OrderSink interface {
	PlaceOrder(ctx context.Context, order *domain.Order) error
}

// Brake is the engine-wide emergency stop; Trip/Release are expected to be
// called by the reliability component, Active is polled here on every
// signal.
type Brake struct {
	active atomic.Bool
}

func (b *Brake) Trip()        { b.active.Store(true) }
func (b *Brake) Release()     { b.active.Store(false) }
func (b *Brake) Active() bool { return b.active.Load() }

// Config holds the pipeline's engine-wide, non-per-bot parameters.
type Config struct {
	FeeBps            int32
	CorrelationWindow int    // candles of lookback for the correlation/VaR estimate
	RiskTimeframe     string // timeframe used for the correlation/VaR candle window

	// DefaultStopLossPct and DefaultTakeProfitPct size the bracket orders
	// auto-attached to a new entry when the bot's own RiskProfile leaves
	// StopLossPct/TakeProfitPct at zero.
	DefaultStopLossPct   float64
	DefaultTakeProfitPct float64
}

// Pipeline implements the sequential pre-trade check chain: engine state,
// bot state and daily cap, asset state, compliance, duplicate position,
// position sizing (below-minimum rejection), then correlation cap and VaR
// cap, which use the sized notional, in that order (fail-fast).
type Pipeline struct {
	log zerolog.Logger

	market      *marketdata.Aggregator
	indicators  *indicators.Cache
	ledger      *ledger.Ledger
	assets      AssetStore
	positions   PositionStore
	accounts    AccountStore
	compliance  ComplianceChecker
	sink        OrderSink
	brake       *Brake
	cfg         Config

	mu            sync.Mutex
	ordersBySignal map[string]*domain.Order
}

// New creates a Pipeline. Every dependency is required except brake, which
// New allocates if nil so a pipeline always has a checkable brake.
func New(market *marketdata.Aggregator, cache *indicators.Cache, led *ledger.Ledger, assets AssetStore, positions PositionStore, accounts AccountStore, compliance ComplianceChecker, sink OrderSink, brake *Brake, cfg Config, log zerolog.Logger) *Pipeline {
	if brake == nil {
		brake = &Brake{}
	}
	if cfg.CorrelationWindow <= 0 {
		cfg.CorrelationWindow = 30
	}
	if cfg.RiskTimeframe == "" {
		cfg.RiskTimeframe = "1d"
	}
	if cfg.DefaultStopLossPct <= 0 {
		cfg.DefaultStopLossPct = 0.02
	}
	if cfg.DefaultTakeProfitPct <= 0 {
		cfg.DefaultTakeProfitPct = 0.03
	}
	return &Pipeline{
		log:            log.With().Str("component", "risk_pipeline").Logger(),
		market:         market,
		indicators:     cache,
		ledger:         led,
		assets:         assets,
		positions:      positions,
		accounts:       accounts,
		compliance:     compliance,
		sink:           sink,
		brake:          brake,
		cfg:            cfg,
		ordersBySignal: make(map[string]*domain.Order),
	}
}

// Brake exposes the pipeline's emergency brake to components that need to
// trip or release it (the reliability component, the admin API).
func (p *Pipeline) Brake() *Brake { return p.brake }

// Submit runs signal through the full pre-trade check chain and, if it
// survives, sizes and records an order. Idempotent: resubmitting a signal
// id already recorded returns the existing order rather than re-running
// the checks or double-booking.
func (p *Pipeline) Submit(ctx context.Context, bot *domain.Bot, state *domain.BotState, signal *domain.Signal) (*domain.Order, error) {
	if existing, ok := p.existingOrder(signal.SignalID); ok {
		return existing, nil
	}

	if p.brake.Active() {
		return nil, domain.NewError(domain.ErrBrakeActive, "emergency brake is active", true)
	}
	if state.Status != domain.BotStatusActive {
		return nil, domain.NewError(domain.ErrBotNotEnabled, "bot is not active", true)
	}
	if bot.Risk.MaxDailyTrades > 0 && state.TradesToday >= bot.Risk.MaxDailyTrades {
		return nil, domain.NewError(domain.ErrDailyCapReached, "daily trade cap reached", false)
	}

	asset, ok := p.assets.Asset(signal.AssetID)
	if !ok {
		return nil, domain.NewError(domain.ErrUnknownSymbol, fmt.Sprintf("unknown asset %s", signal.AssetID), false)
	}
	if !asset.Active {
		return nil, domain.NewError(domain.ErrAssetNotActive, fmt.Sprintf("asset %s is not active", signal.AssetID), false)
	}
	if asset.AccreditedOnly && !p.compliance.IsAccredited(bot.OwnerID) {
		return nil, domain.NewError(domain.ErrComplianceDenied, "asset requires accredited status", false)
	}

	if !signal.ScaleIn && signal.Side == domain.SideBuy {
		if existingPos, hasPos := p.positions.OpenPosition(bot.BotID, signal.AssetID); hasPos && existingPos.Tokens.IsPositive() {
			return nil, domain.NewError(domain.ErrDuplicatePosition, "bot already holds an open position on this asset", false)
		}
	}

	quote, err := p.market.GetAggregated(ctx, signal.AssetID)
	if err != nil {
		return nil, domain.NewError(domain.ErrNoProviderAvailable, err.Error(), true)
	}
	price := quote.BestAsk
	if signal.Side == domain.SideSell {
		price = quote.BestBid
	}

	balance := p.accounts.Balance(bot.BotID)
	sized := sizePosition(balance, bot.Risk.RiskPerTrade, signal.Confidence, price, p.cfg.FeeBps, &asset, bot.Risk.MaxPositionSize)
	if sized.BelowMinimum {
		return nil, domain.NewError(domain.ErrBelowMinimum, "sized position falls below the asset minimum trade", false)
	}

	if err := p.checkCorrelationAndVaR(bot, signal.AssetID, sized.Notional); err != nil {
		return nil, err
	}

	order := &domain.Order{
		OrderID:   signal.SignalID + ":order",
		SignalID:  signal.SignalID,
		BotID:     bot.BotID,
		AssetID:   signal.AssetID,
		Side:      signal.Side,
		Type:      domain.OrderTypeMarket,
		Qty:       sized.Qty,
		Status:    domain.OrderStatusOpen,
		CreatedAt: signal.CreatedAt,
	}

	brackets := p.bracketOrders(bot, signal, order, price)
	orders := append([]*domain.Order{order}, brackets...)

	entries := make([]struct {
		Kind    ledger.EntryKind
		Payload any
	}, 0, len(orders)+1)
	entries = append(entries, struct {
		Kind    ledger.EntryKind
		Payload any
	}{
		Kind: ledger.KindSignalEmitted,
		Payload: ledger.SignalEmittedPayload{
			SignalID: signal.SignalID, BotID: bot.BotID, AssetID: signal.AssetID,
			Side: string(signal.Side), Confidence: signal.Confidence,
			Rationale: signal.Rationale, PatternKey: signal.PatternKey, CreatedAt: signal.CreatedAt,
		},
	})
	for _, o := range orders {
		entries = append(entries, struct {
			Kind    ledger.EntryKind
			Payload any
		}{
			Kind: ledger.KindOrderPlaced,
			Payload: ledger.OrderPlacedPayload{
				OrderID: o.OrderID, SignalID: signal.SignalID, BotID: bot.BotID, AssetID: signal.AssetID,
				Side: string(o.Side), Type: string(o.Type), Qty: o.Qty.String(),
				LimitPrice: o.LimitPrice, StopPrice: o.StopPrice,
				CreatedAt: signal.CreatedAt, ExpiresAt: o.ExpiresAt,
			},
		})
	}
	if err := p.ledger.AppendGroup(entries...); err != nil {
		return nil, fmt.Errorf("risk: ledger append: %w", err)
	}

	p.recordOrder(signal.SignalID, order)

	if p.sink != nil {
		for _, o := range orders {
			if err := p.sink.PlaceOrder(ctx, o); err != nil {
				return order, fmt.Errorf("risk: place order: %w", err)
			}
		}
	}
	return order, nil
}

// bracketOrders derives the stop-loss and take-profit orders auto-attached
// to a new long entry, sized off the entry fill price and the bot's
// RiskProfile percentages (falling back to the pipeline defaults when the
// bot leaves them at zero). Exit-side signals (closing an existing
// position) carry no brackets of their own.
func (p *Pipeline) bracketOrders(bot *domain.Bot, signal *domain.Signal, entry *domain.Order, entryPrice float64) []*domain.Order {
	if signal.Side != domain.SideBuy {
		return nil
	}

	stopPct, _ := bot.Risk.StopLossPct.Float64()
	if stopPct <= 0 {
		stopPct = p.cfg.DefaultStopLossPct
	}
	takePct, _ := bot.Risk.TakeProfitPct.Float64()
	if takePct <= 0 {
		takePct = p.cfg.DefaultTakeProfitPct
	}

	stopPrice := entryPrice * (1 - stopPct)
	takePrice := entryPrice * (1 + takePct)

	return []*domain.Order{
		{
			OrderID:   signal.SignalID + ":stop",
			SignalID:  signal.SignalID,
			BotID:     bot.BotID,
			AssetID:   signal.AssetID,
			Side:      domain.SideSell,
			Type:      domain.OrderTypeStop,
			Qty:       entry.Qty,
			StopPrice: &stopPrice,
			Status:    domain.OrderStatusOpen,
			CreatedAt: signal.CreatedAt,
		},
		{
			OrderID:    signal.SignalID + ":take_profit",
			SignalID:   signal.SignalID,
			BotID:      bot.BotID,
			AssetID:    signal.AssetID,
			Side:       domain.SideSell,
			Type:       domain.OrderTypeLimit,
			Qty:        entry.Qty,
			LimitPrice: &takePrice,
			Status:     domain.OrderStatusOpen,
			CreatedAt:  signal.CreatedAt,
		},
	}
}

// checkCorrelationAndVaR builds a correlation matrix over the bot's
// currently open positions plus the proposed asset and rejects the signal
// if the proposed asset's correlation to any existing holding exceeds the
// bot's cap, or if the resulting portfolio VaR would exceed it.
func (p *Pipeline) checkCorrelationAndVaR(bot *domain.Bot, proposedAsset string, proposedNotional decimal.Decimal) error {
	open := p.positions.OpenPositions(bot.BotID)

	symbols := make([]string, 0, len(open)+1)
	notionals := make([]decimal.Decimal, 0, len(open)+1)
	proposedIdx := -1
	for _, pos := range open {
		if pos.AssetID == proposedAsset {
			continue
		}
		symbols = append(symbols, pos.AssetID)
		notionals = append(notionals, pos.Tokens.Mul(pos.AverageCost()))
	}
	proposedIdx = len(symbols)
	symbols = append(symbols, proposedAsset)
	notionals = append(notionals, proposedNotional)

	n := len(symbols)
	corr := correlationMatrix(p.indicators, symbols, p.cfg.RiskTimeframe, p.cfg.CorrelationWindow)

	if bot.Risk.CorrelationLimit > 0 && n > 1 {
		if maxCorr := maxAbsCorrelation(corr, proposedIdx, n); maxCorr > bot.Risk.CorrelationLimit {
			return domain.NewError(domain.ErrCorrelationCapped, fmt.Sprintf("correlation %.2f exceeds cap %.2f", maxCorr, bot.Risk.CorrelationLimit), false)
		}
	}

	if bot.Risk.MaxPortfolioVaR.IsZero() {
		return nil
	}

	standalone := make([]float64, n)
	for i, sym := range symbols {
		sigma, err := dailySigma(p.indicators, sym, p.cfg.RiskTimeframe)
		if err != nil {
			continue // missing volatility data defaults the symbol's VaR contribution to zero
		}
		value, _ := notionals[i].Float64()
		standalone[i] = value * sigma * z99
	}

	totalVaR := portfolioVaR(corr, standalone)
	limit, _ := bot.Risk.MaxPortfolioVaR.Float64()
	if totalVaR > limit {
		return domain.NewError(domain.ErrVaRCapped, fmt.Sprintf("portfolio VaR %.2f exceeds cap %.2f", totalVaR, limit), false)
	}
	return nil
}

func (p *Pipeline) existingOrder(signalID string) (*domain.Order, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.ordersBySignal[signalID]
	return o, ok
}

func (p *Pipeline) recordOrder(signalID string, order *domain.Order) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ordersBySignal[signalID] = order
}
