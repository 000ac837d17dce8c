package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/sentineltrading/execution-core/internal/domain"
)

func TestSizePositionAppliesRiskPerTradeAndConfidence(t *testing.T) {
	asset := domain.Asset{MinTrade: decimal.NewFromInt(10)}
	result := sizePosition(decimal.NewFromInt(10000), decimal.NewFromFloat(0.02), 0.8, 100, 10, &asset, decimal.Zero)

	assert.False(t, result.BelowMinimum)
	// risk_amount = 10000 * 0.02 * 0.8 = 160; fee = 160*10bps = 0.16; net = 159.84; qty = 1.5984
	assert.True(t, result.Notional.Equal(decimal.NewFromFloat(160)))
	assert.True(t, result.Qty.GreaterThan(decimal.NewFromFloat(1.59)))
	assert.True(t, result.Qty.LessThan(decimal.NewFromFloat(1.60)))
}

func TestSizePositionClampsToMaxPositionSize(t *testing.T) {
	asset := domain.Asset{MinTrade: decimal.NewFromInt(10)}
	result := sizePosition(decimal.NewFromInt(100000), decimal.NewFromFloat(0.5), 1.0, 100, 10, &asset, decimal.NewFromInt(500))

	assert.False(t, result.BelowMinimum)
	assert.True(t, result.Notional.Equal(decimal.NewFromInt(500)))
}

func TestSizePositionRejectsBelowMinimum(t *testing.T) {
	asset := domain.Asset{MinTrade: decimal.NewFromInt(1000)}
	result := sizePosition(decimal.NewFromInt(1000), decimal.NewFromFloat(0.01), 0.5, 100, 10, &asset, decimal.Zero)

	assert.True(t, result.BelowMinimum)
}

func TestTradingFeeIsFlatBpsOnNotional(t *testing.T) {
	fee := tradingFee(decimal.NewFromInt(1000), 10)
	assert.True(t, fee.Equal(decimal.NewFromFloat(1)))
}
