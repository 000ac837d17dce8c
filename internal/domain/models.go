// Package domain holds the core entities of the trading execution core:
// assets, positions, bots, strategies, signals, orders, fills, and the
// yield/knowledge-base side tables. Types here carry no infrastructure
// dependency (no sql, no http) — persistence and wire formats live in the
// packages that own them (ledger, server).
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a signal, order, or fill.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType enumerates the order types the book understands.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

// OrderStatus tracks an order through the matching lifecycle.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// SignalStatus tracks a signal from production through settlement.
type SignalStatus string

const (
	SignalStatusPending  SignalStatus = "pending"
	SignalStatusApproved SignalStatus = "approved"
	SignalStatusRejected SignalStatus = "rejected"
	SignalStatusFilled   SignalStatus = "filled"
	SignalStatusExpired  SignalStatus = "expired"
)

// BotStatus is the bot lifecycle state machine: created -> (optional review)
// -> active <-> paused -> archived.
type BotStatus string

const (
	BotStatusDraft         BotStatus = "draft"
	BotStatusPendingReview BotStatus = "pending_review"
	BotStatusActive        BotStatus = "active"
	BotStatusPaused        BotStatus = "paused"
	BotStatusArchived      BotStatus = "archived"
)

// SchedulerMode selects the cadence between full scheduler cycles.
type SchedulerMode string

const (
	ModeAggressive   SchedulerMode = "aggressive"
	ModeBalanced     SchedulerMode = "balanced"
	ModeConservative SchedulerMode = "conservative"
)

// CyclePeriod returns the cadence between full scheduler cycles for a mode.
func (m SchedulerMode) CyclePeriod() time.Duration {
	switch m {
	case ModeAggressive:
		return 1 * time.Second
	case ModeConservative:
		return 10 * time.Second
	default:
		return 5 * time.Second
	}
}

// YieldFrequency is how often an asset distributes yield.
type YieldFrequency string

const (
	FrequencyDaily     YieldFrequency = "daily"
	FrequencyWeekly    YieldFrequency = "weekly"
	FrequencyMonthly   YieldFrequency = "monthly"
	FrequencyQuarterly YieldFrequency = "quarterly"
	FrequencyAnnually  YieldFrequency = "annually"
)

// PeriodsPerYear maps a distribution frequency to the number of payouts in
// a year, used by the yield engine's period_yield calculation.
func (f YieldFrequency) PeriodsPerYear() float64 {
	switch f {
	case FrequencyDaily:
		return 365
	case FrequencyWeekly:
		return 52
	case FrequencyMonthly:
		return 12
	case FrequencyQuarterly:
		return 4
	default:
		return 1
	}
}

// Asset is a tokenized accounting entity. Price and NAV are float64
// because they feed statistical/indicator computation, not ledger totals;
// every cash-valued field elsewhere in the engine is decimal.Decimal.
type Asset struct {
	AssetID             string
	Symbol              string
	AccreditedOnly      bool
	Active              bool
	Decimals            int32
	Price               float64
	NAV                 float64
	TotalSupply         decimal.Decimal
	MinInvest           decimal.Decimal
	MinTrade            decimal.Decimal
	AnnualYieldRate     decimal.Decimal // e.g. 0.085 for 8.5%
	YieldFrequency      YieldFrequency
	NextDistributionAt  time.Time
	MarketCap           decimal.Decimal
	Volume24h           decimal.Decimal
	ATH                 float64
	ATL                 float64
	Holders             int
	FeeBpsOverride      *int32 // per-asset fee override; nil uses the global feeBps
	MaxOwnershipPercent decimal.Decimal // 0 means unbounded
}

// EffectiveFeeBps returns the per-asset fee override if set, else the
// engine-wide default.
func (a *Asset) EffectiveFeeBps(defaultBps int32) int32 {
	if a.FeeBpsOverride != nil {
		return *a.FeeBpsOverride
	}
	return defaultBps
}

// Position is a (user, asset) holding. Invariants: Tokens >= 0,
// CostBasis >= 0; a full sell removes the position entirely.
type Position struct {
	UserID         string
	AssetID        string
	Tokens         decimal.Decimal
	CostBasis      decimal.Decimal // running weighted-average total cost, not per-token
	RealisedPnL    decimal.Decimal
	PendingYield   decimal.Decimal
	Reinvest       bool
	LastUpdated    time.Time
}

// AverageCost returns cost basis per token, or zero if the position is flat.
func (p *Position) AverageCost() decimal.Decimal {
	if p.Tokens.IsZero() {
		return decimal.Zero
	}
	return p.CostBasis.Div(p.Tokens)
}

// RiskProfile bundles a bot's per-trade risk envelope.
type RiskProfile struct {
	RiskPerTrade      decimal.Decimal // fraction of account balance, e.g. 0.015
	MaxPositionSize   decimal.Decimal
	CorrelationLimit  float64
	MaxPortfolioVaR   decimal.Decimal
	DailyLossLimit    decimal.Decimal
	TargetDailyProfit decimal.Decimal
	MaxPositions      int
	MaxDailyTrades    int
	StopLossPct       decimal.Decimal // fraction below entry, e.g. 0.02; zero means fall back to the pipeline default
	TakeProfitPct     decimal.Decimal // fraction above entry, e.g. 0.03; zero means fall back to the pipeline default
}

// Fingerprint summarizes a bot for catalog/knowledge-base purposes.
type Fingerprint struct {
	StrategyTypes      []string
	IndicatorsUsed     []string
	PreferredRegimes   []string
	RiskProfileSummary string
}

// Performance is a bot's rolling trading statistics.
type Performance struct {
	WinRate      float64
	ProfitFactor float64
	Sharpe       float64
	Drawdown     float64
	TotalTrades  int
	TotalPnL     decimal.Decimal
}

// BotState is the mutable, mutex-guarded slice of a Bot that the scheduler
// reads every cycle: status, cooldowns, and per-day counters. It is
// deliberately separate from the Bot's immutable configuration so cycle
// tasks can carry a cheap snapshot without copying strategy definitions.
type BotState struct {
	Status            BotStatus
	MissedTicks       int64
	TradesToday       int
	DailyPnL          decimal.Decimal
	ConsecutiveWins   int
	ConsecutiveLosses int
	LastTradeDay      string // YYYY-MM-DD in engine timezone, for daily counter resets
	PeakEquity        decimal.Decimal
	CurrentEquity     decimal.Decimal
	RuleStates        map[string]*RuleState // RuleID -> cooldown/cap bookkeeping
	TripPaused        bool                  // true if paused by the scheduler's daily loss trip, not a user action
	TripDay           string                // YYYY-MM-DD the trip fired, so it can re-arm at UTC midnight
}

// Drawdown returns the fractional decline from peak equity, 0 if flat or
// at a new peak.
func (s *BotState) Drawdown() float64 {
	if s.PeakEquity.IsZero() {
		return 0
	}
	d := s.PeakEquity.Sub(s.CurrentEquity)
	if d.IsNegative() {
		return 0
	}
	f, _ := d.Div(s.PeakEquity).Float64()
	return f
}

// Bot is a configured automation running one strategy.
type Bot struct {
	BotID       string
	OwnerID     string
	StrategyID  string
	Symbols     []string
	Timeframes  []string
	Risk        RiskProfile
	Performance Performance
	Fingerprint Fingerprint
	AutoExecute bool
	CreatedAt   time.Time
}

// Signal is the evaluator's output for one (bot, symbol, tick).
type Signal struct {
	SignalID   string
	BotID      string
	AssetID    string
	Side       Side
	Confidence float64
	Rationale  string
	PatternKey string
	ScaleIn    bool // bypasses the duplicate-open-position rejection
	Status     SignalStatus
	CreatedAt  time.Time
}

// Order is a trading intention produced from an approved signal.
type Order struct {
	OrderID       string
	SignalID      string
	BotID         string
	AssetID       string
	Side          Side
	Type          OrderType
	Qty           decimal.Decimal
	LimitPrice    *float64
	StopPrice     *float64
	FilledQty     decimal.Decimal
	AvgFillPrice  float64
	Status        OrderStatus
	ArrivalSeq    uint64
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Remaining is the unfilled quantity of the order.
func (o *Order) Remaining() decimal.Decimal {
	return o.Qty.Sub(o.FilledQty)
}

// Fill is an immutable atomic settlement record against an order.
type Fill struct {
	OrderID   string
	AssetID   string
	Side      Side
	Qty       decimal.Decimal
	Price     float64
	Fee       decimal.Decimal
	Synthetic bool // true for yield-reinvestment fills, which bypass the book
	Timestamp time.Time
}

// DistributionEvent is a single yield payout cascade.
type DistributionEvent struct {
	AssetID     string
	TotalYield  decimal.Decimal
	PeriodYield decimal.Decimal
	Timestamp   time.Time
}

// KnowledgePattern is the running outcome statistics for a rule pattern
// key, consulted by the evaluator to scale confidence.
type KnowledgePattern struct {
	PatternKey        string
	Wins              int
	Losses            int
	Mean              float64 // Welford running mean of trade P&L%
	M2                float64 // Welford running sum of squared deviations
	ConfidenceModifier float64
}

// Outcomes returns total labelled trades for this pattern.
func (k *KnowledgePattern) Outcomes() int {
	return k.Wins + k.Losses
}
