package risk

import (
	"github.com/shopspring/decimal"

	"github.com/sentineltrading/execution-core/internal/domain"
)

// tradingFee is the flat taker fee on notional, in bps, falling back to the
// engine default when the asset carries no override.
func tradingFee(notional decimal.Decimal, bps int32) decimal.Decimal {
	return notional.Mul(decimal.NewFromInt32(bps)).Div(decimal.NewFromInt(10000))
}

// sizeResult is the output of position sizing: a quantity plus the pieces
// that produced it, kept around for the OrderPlaced ledger entry.
type sizeResult struct {
	Qty          decimal.Decimal
	Notional     decimal.Decimal
	Fee          decimal.Decimal
	Price        float64
	BelowMinimum bool
}

// sizePosition implements the risk_amount = balance x riskPerTrade x
// confidence sizing rule, converts it to quantity at the proposed side's
// touch price net of the taker fee, and clamps the notional to
// [asset.MinTrade, bot.Risk.MaxPositionSize].
func sizePosition(balance decimal.Decimal, riskPerTrade decimal.Decimal, confidence float64, price float64, feeBps int32, asset *domain.Asset, maxPositionSize decimal.Decimal) sizeResult {
	riskAmount := balance.Mul(riskPerTrade).Mul(decimal.NewFromFloat(confidence))

	minTrade := asset.MinTrade
	if !maxPositionSize.IsZero() && riskAmount.GreaterThan(maxPositionSize) {
		riskAmount = maxPositionSize
	}
	if riskAmount.LessThan(minTrade) {
		return sizeResult{BelowMinimum: true}
	}

	fee := tradingFee(riskAmount, asset.EffectiveFeeBps(feeBps))
	netAmount := riskAmount.Sub(fee)
	if netAmount.IsNegative() || price <= 0 {
		return sizeResult{BelowMinimum: true}
	}

	qty := netAmount.Div(decimal.NewFromFloat(price))
	return sizeResult{Qty: qty, Notional: riskAmount, Fee: fee, Price: price}
}
