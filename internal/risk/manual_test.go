package risk

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineltrading/execution-core/internal/domain"
)

func TestSubmitManualPlacesOrderForSelfDirectedBuy(t *testing.T) {
	p, sink, _ := newTestPipeline(t, map[string]domain.Asset{
		"AAPL": {AssetID: "AAPL", Active: true, MinTrade: decimal.NewFromInt(1)},
	})

	order, err := p.SubmitManual(context.Background(), "user-1", "AAPL", domain.SideBuy, domain.OrderTypeMarket, decimal.NewFromInt(5), nil)
	require.NoError(t, err)
	assert.Equal(t, "manual:user-1", order.BotID)
	assert.True(t, order.Qty.Equal(decimal.NewFromInt(5)))
	require.Len(t, sink.orders, 1)
}

func TestSubmitManualRejectsWhenBrakeActive(t *testing.T) {
	p, _, _ := newTestPipeline(t, map[string]domain.Asset{"AAPL": {AssetID: "AAPL", Active: true}})
	p.Brake().Trip()

	_, err := p.SubmitManual(context.Background(), "user-1", "AAPL", domain.SideBuy, domain.OrderTypeMarket, decimal.NewFromInt(5), nil)
	require.Error(t, err)
	assert.Equal(t, domain.ErrBrakeActive, err.(*domain.Error).Code)
}

func TestSubmitManualRejectsBelowMinimumTrade(t *testing.T) {
	p, _, _ := newTestPipeline(t, map[string]domain.Asset{
		"AAPL": {AssetID: "AAPL", Active: true, MinTrade: decimal.NewFromInt(10)},
	})

	_, err := p.SubmitManual(context.Background(), "user-1", "AAPL", domain.SideBuy, domain.OrderTypeMarket, decimal.NewFromInt(1), nil)
	require.Error(t, err)
	assert.Equal(t, domain.ErrBelowMinimum, err.(*domain.Error).Code)
}

func TestSubmitManualRejectsAccreditedOnlyAssetForUnaccreditedUser(t *testing.T) {
	p, _, _ := newTestPipeline(t, map[string]domain.Asset{
		"RWA-1": {AssetID: "RWA-1", Active: true, AccreditedOnly: true, MinTrade: decimal.NewFromInt(1)},
	})

	_, err := p.SubmitManual(context.Background(), "user-1", "RWA-1", domain.SideBuy, domain.OrderTypeMarket, decimal.NewFromInt(5), nil)
	require.Error(t, err)
	assert.Equal(t, domain.ErrComplianceDenied, err.(*domain.Error).Code)
}
