package eventbus

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sentineltrading/execution-core/internal/domain"
)

// IndicatorsUpdatedEvent is published by the indicator cache after it
// recomputes a (symbol, timeframe) on a newly closed candle. No component
// subscribes to it: the scheduler runs its evaluation cycles on its mode's
// fixed cadence instead.
type IndicatorsUpdatedEvent struct {
	Symbol    string
	Timeframe string
	Timestamp time.Time
}

// SignalEmittedEvent carries a signal that cleared the confidence floor.
// No component publishes it; accepted signals are recorded as
// SignalEmitted ledger entries by the risk pipeline instead.
type SignalEmittedEvent struct {
	Signal domain.Signal
}

// OrderFilledEvent is published by the order book after a fill settles
// and position/stats updates are applied atomically. RealisedPnL is zero
// unless this fill closed the position, matching PositionEffect's own
// convention; the scheduler uses it to roll up a bot's daily P&L.
type OrderFilledEvent struct {
	Fill        domain.Fill
	Order       domain.Order
	RealisedPnL decimal.Decimal
}

// BotStateChangedEvent is published on any lifecycle transition, including
// the daily-loss-trip mass pause.
type BotStateChangedEvent struct {
	BotID  string
	Status domain.BotStatus
	Reason string
}

// DistributionPaidEvent is published once per asset per distribution scan
// hit.
type DistributionPaidEvent struct {
	Event domain.DistributionEvent
}

// EmergencyBrakeEvent is published by the startup reconciler when it trips
// the brake and again when it releases it. The REST brake and release
// endpoints change the brake without publishing this event.
type EmergencyBrakeEvent struct {
	Active bool
	Reason string
}
