package book

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sentineltrading/execution-core/internal/domain"
)

// PositionEffect reports what applying a fill did to the resting
// position, so the book can decide which ledger entries accompany the
// OrderFilled row.
type PositionEffect struct {
	Opened      bool
	Closed      bool
	Tokens      decimal.Decimal
	CostBasis   decimal.Decimal
	RealisedPnL decimal.Decimal
	PlatformFee decimal.Decimal
}

// PositionBook is the write side of position accounting: the book calls
// ApplyFill for every fill it produces, in generation order, and folds
// the resulting ledger entries into the same AppendGroup as the fill.
type PositionBook interface {
	ApplyFill(botID string, fill domain.Fill) (PositionEffect, error)
}

// AssetStats is the write side of per-asset market statistics updated on
// every trade print.
type AssetStats interface {
	ApplyTrade(assetID string, price float64, qty decimal.Decimal, side domain.Side)
}

// restingOrder wraps a resting order with the index container/heap needs
// to support arbitrary removal (cancel, expiry).
type restingOrder struct {
	order domain.Order
	index int
}

// Level is one aggregated price level in a book snapshot.
type Level struct {
	Price float64
	Qty   decimal.Decimal
}

// Snapshot is a point-in-time, copy-on-read view of a book. Readers never
// see partial writer state: the writer goroutine publishes a fresh
// Snapshot only after it finishes mutating.
type Snapshot struct {
	AssetID   string
	BestBid   float64
	BestAsk   float64
	LastPrice float64
	Bids         []Level
	Asks         []Level
	RecentTrades []domain.Fill
	UpdatedAt    time.Time
}

func isExpired(o domain.Order, now time.Time) bool {
	return o.Type == domain.OrderTypeLimit && !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt)
}
