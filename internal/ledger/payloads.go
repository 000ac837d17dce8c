package ledger

import (
	"time"

	"github.com/sentineltrading/execution-core/internal/domain"
)

// Payload shapes for each EntryKind. Every field a reader would need to
// make sense of the entry without a join lives here.

type SignalEmittedPayload struct {
	SignalID   string    `json:"signal_id"`
	BotID      string    `json:"bot_id"`
	AssetID    string    `json:"asset_id"`
	Side       string    `json:"side"`
	Confidence float64   `json:"confidence"`
	Rationale  string    `json:"rationale"`
	PatternKey string    `json:"pattern_key"`
	CreatedAt  time.Time `json:"created_at"`
}

type OrderPlacedPayload struct {
	OrderID    string    `json:"order_id"`
	SignalID   string    `json:"signal_id"`
	BotID      string    `json:"bot_id"`
	AssetID    string    `json:"asset_id"`
	Side       string    `json:"side"`
	Type       string    `json:"type"`
	Qty        string    `json:"qty"` // decimal.Decimal serialized as string
	LimitPrice *float64  `json:"limit_price,omitempty"`
	StopPrice  *float64  `json:"stop_price,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type OrderRejectedPayload struct {
	SignalID string `json:"signal_id"`
	BotID    string `json:"bot_id"`
	AssetID  string `json:"asset_id"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

type OrderFilledPayload struct {
	OrderID string `json:"order_id"`
	// UserID is set only for synthetic fills that do not originate from an
	// OrderPlaced entry (yield reinvestment); replay resolves the holder
	// for a book-originated fill from the matching OrderPlaced entry's
	// BotID instead.
	UserID    string    `json:"user_id,omitempty"`
	AssetID   string    `json:"asset_id"`
	Side      string    `json:"side"`
	Qty       string    `json:"qty"`
	Price     float64   `json:"price"`
	Fee       string    `json:"fee"`
	Synthetic bool      `json:"synthetic"`
	Timestamp time.Time `json:"timestamp"`
}

type OrderCancelledPayload struct {
	OrderID string `json:"order_id"`
	AssetID string `json:"asset_id"`
	Reason  string `json:"reason"`
}

type PositionOpenedPayload struct {
	UserID    string `json:"user_id"`
	AssetID   string `json:"asset_id"`
	Tokens    string `json:"tokens"`
	CostBasis string `json:"cost_basis"`
}

type PositionClosedPayload struct {
	UserID      string `json:"user_id"`
	AssetID     string `json:"asset_id"`
	RealisedPnL string `json:"realised_pnl"`
	PlatformFee string `json:"platform_fee"`
}

type DistributionPaidPayload struct {
	AssetID     string    `json:"asset_id"`
	TotalYield  string    `json:"total_yield"`
	PeriodYield string    `json:"period_yield"`
	Timestamp   time.Time `json:"timestamp"`
}

// YieldCreditedPayload records a single holder's pending-yield credit,
// whether from a distribution run or drift absorption. Replay sums these
// per (user, asset) to rebuild pending_yield balances.
type YieldCreditedPayload struct {
	UserID    string    `json:"user_id"`
	AssetID   string    `json:"asset_id"`
	Amount    string    `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// YieldClaimedPayload records a holder zeroing their pending yield via
// Claim. Replay subtracts Amount from the reconstructed balance.
type YieldClaimedPayload struct {
	UserID    string    `json:"user_id"`
	AssetID   string    `json:"asset_id"`
	Amount    string    `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

type FeeChargedPayload struct {
	UserID  string `json:"user_id"`
	AssetID string `json:"asset_id"`
	Kind    string `json:"kind"` // "trading" | "platform"
	Amount  string `json:"amount"`
}

type BotStateChangedPayload struct {
	BotID  string `json:"bot_id"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// BotConfigPayload is the full immutable-config snapshot for a bot,
// appended on both initial registration and any later config change.
// Replay keeps only the most recent one per BotID: bots are a cache
// rebuilt from the ledger, not their own source of truth.
type BotConfigPayload struct {
	BotID       string             `json:"bot_id"`
	OwnerID     string             `json:"owner_id"`
	StrategyID  string             `json:"strategy_id"`
	Symbols     []string           `json:"symbols"`
	Timeframes  []string           `json:"timeframes"`
	Risk        domain.RiskProfile `json:"risk"`
	Fingerprint domain.Fingerprint `json:"fingerprint"`
	AutoExecute bool               `json:"auto_execute"`
	CreatedAt   time.Time          `json:"created_at"`
}

// BotArchivedPayload records a bot's permanent removal from scheduling.
type BotArchivedPayload struct {
	BotID string `json:"bot_id"`
}

// StrategyUpsertedPayload carries a full strategy definition; replay keeps
// only the most recent one per StrategyID.
type StrategyUpsertedPayload struct {
	Strategy domain.Strategy `json:"strategy"`
}
