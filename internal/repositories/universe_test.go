package repositories

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineltrading/execution-core/internal/database"
	"github.com/sentineltrading/execution-core/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(database.Config{Path: ":memory:", Profile: database.ProfileStandard, Name: "universe"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return New(db, zerolog.Nop())
}

func seedAsset(t *testing.T, s *Store, assetID string) {
	t.Helper()
	_, err := s.db.Exec(`INSERT INTO assets (asset_id, symbol, volume_24h) VALUES (?, ?, '0')`, assetID, assetID)
	require.NoError(t, err)
}

func seedAccount(t *testing.T, s *Store, botID, ownerID, balance string) {
	t.Helper()
	_, err := s.db.Exec(`INSERT INTO accounts (bot_id, owner_id, balance) VALUES (?, ?, ?)`, botID, ownerID, balance)
	require.NoError(t, err)
}

func TestApplyFillOpensPositionOnFirstBuy(t *testing.T) {
	s := newTestStore(t)
	fill := domain.Fill{AssetID: "AAPL", Side: domain.SideBuy, Qty: decimal.NewFromInt(10), Price: 150, Timestamp: time.Now()}

	effect, err := s.ApplyFill("bot-1", fill)
	require.NoError(t, err)
	assert.True(t, effect.Opened)
	assert.True(t, effect.Tokens.Equal(decimal.NewFromInt(10)))

	pos, ok := s.OpenPosition("bot-1", "AAPL")
	require.True(t, ok)
	assert.True(t, pos.Tokens.Equal(decimal.NewFromInt(10)))
}

func TestApplyFillClosesPositionAndChargesPlatformFeeOnProfit(t *testing.T) {
	s := newTestStore(t)
	seedAccount(t, s, "bot-1", "owner-1", "0")

	_, err := s.ApplyFill("bot-1", domain.Fill{AssetID: "AAPL", Side: domain.SideBuy, Qty: decimal.NewFromInt(10), Price: 100, Timestamp: time.Now()})
	require.NoError(t, err)

	effect, err := s.ApplyFill("bot-1", domain.Fill{AssetID: "AAPL", Side: domain.SideSell, Qty: decimal.NewFromInt(10), Price: 150, Timestamp: time.Now()})
	require.NoError(t, err)

	assert.True(t, effect.Closed)
	assert.True(t, effect.RealisedPnL.Equal(decimal.NewFromInt(500)))
	assert.True(t, effect.PlatformFee.Equal(decimal.NewFromInt(50))) // 10% of 500
	_, open := s.OpenPosition("bot-1", "AAPL")
	assert.False(t, open)
}

func TestApplyFillWaivesPlatformFeeForExemptAccount(t *testing.T) {
	s := newTestStore(t)
	seedAccount(t, s, "bot-1", "owner-1", "0")
	_, err := s.db.Exec(`INSERT INTO users (user_id, platform_fee_exempt) VALUES (?, 1)`, "owner-1")
	require.NoError(t, err)

	_, err = s.ApplyFill("bot-1", domain.Fill{AssetID: "AAPL", Side: domain.SideBuy, Qty: decimal.NewFromInt(10), Price: 100, Timestamp: time.Now()})
	require.NoError(t, err)
	effect, err := s.ApplyFill("bot-1", domain.Fill{AssetID: "AAPL", Side: domain.SideSell, Qty: decimal.NewFromInt(10), Price: 150, Timestamp: time.Now()})
	require.NoError(t, err)

	assert.True(t, effect.Closed)
	assert.True(t, effect.PlatformFee.IsZero())
}

func TestApplyFillChargesNoPlatformFeeOnLoss(t *testing.T) {
	s := newTestStore(t)
	seedAccount(t, s, "bot-1", "owner-1", "0")

	_, err := s.ApplyFill("bot-1", domain.Fill{AssetID: "AAPL", Side: domain.SideBuy, Qty: decimal.NewFromInt(10), Price: 150, Timestamp: time.Now()})
	require.NoError(t, err)
	effect, err := s.ApplyFill("bot-1", domain.Fill{AssetID: "AAPL", Side: domain.SideSell, Qty: decimal.NewFromInt(10), Price: 100, Timestamp: time.Now()})
	require.NoError(t, err)

	assert.True(t, effect.Closed)
	assert.True(t, effect.RealisedPnL.IsNegative())
	assert.True(t, effect.PlatformFee.IsZero())
}

func TestApplyTradeUpdatesAssetPriceAndVolume(t *testing.T) {
	s := newTestStore(t)
	seedAsset(t, s, "AAPL")

	s.ApplyTrade("AAPL", 151.5, decimal.NewFromInt(10), domain.SideBuy)

	asset, ok := s.Asset("AAPL")
	require.True(t, ok)
	assert.Equal(t, 151.5, asset.Price)
	assert.True(t, asset.Volume24h.Equal(decimal.NewFromFloat(1515)))
}

func TestHoldersWithTokensOnlyReturnsPositiveBalances(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ApplyFill("bot-1", domain.Fill{AssetID: "REIT1", Side: domain.SideBuy, Qty: decimal.NewFromInt(5), Price: 10, Timestamp: time.Now()})
	require.NoError(t, err)
	_, err = s.ApplyFill("bot-2", domain.Fill{AssetID: "REIT1", Side: domain.SideBuy, Qty: decimal.NewFromInt(5), Price: 10, Timestamp: time.Now()})
	require.NoError(t, err)
	_, err = s.ApplyFill("bot-2", domain.Fill{AssetID: "REIT1", Side: domain.SideSell, Qty: decimal.NewFromInt(5), Price: 10, Timestamp: time.Now()})
	require.NoError(t, err)

	holders := s.HoldersWithTokens("REIT1")
	require.Len(t, holders, 1)
	assert.Equal(t, "bot-1", holders[0].UserID)
}

func TestClearPendingYieldFailsWhenNothingPending(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ClearPendingYield("u1", "REIT1")
	require.Error(t, err)
	domainErr, ok := err.(*domain.Error)
	require.True(t, ok)
	assert.Equal(t, domain.ErrNoYield, domainErr.Code)
}

func TestResetClearsPositionCache(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ApplyFill("bot-1", domain.Fill{AssetID: "AAPL", Side: domain.SideBuy, Qty: decimal.NewFromInt(10), Price: 100, Timestamp: time.Now()})
	require.NoError(t, err)

	s.Reset()

	_, ok := s.OpenPosition("bot-1", "AAPL")
	assert.False(t, ok)
}

func TestListActiveAssetsOnlyReturnsActiveAssets(t *testing.T) {
	s := newTestStore(t)
	seedAsset(t, s, "AAPL")
	_, err := s.db.Exec(`INSERT INTO assets (asset_id, symbol, active, volume_24h) VALUES (?, ?, 0, '0')`, "DELISTED", "DELISTED")
	require.NoError(t, err)

	assets := s.ListActiveAssets()

	var ids []string
	for _, a := range assets {
		ids = append(ids, a.AssetID)
	}
	assert.Contains(t, ids, "AAPL")
	assert.NotContains(t, ids, "DELISTED")
}

func TestPositionsForHolderIncludesPendingYieldOnlyPositions(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.CreditPendingYield("holder-1", "AAPL", decimal.NewFromInt(5)))

	positions := s.PositionsForHolder("holder-1")

	require.Len(t, positions, 1)
	assert.Equal(t, "AAPL", positions[0].AssetID)
	assert.True(t, positions[0].Tokens.IsZero())
	assert.True(t, positions[0].PendingYield.Equal(decimal.NewFromInt(5)))
}

func TestPositionsForHolderExcludesOtherHolders(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ApplyFill("bot-1", domain.Fill{AssetID: "AAPL", Side: domain.SideBuy, Qty: decimal.NewFromInt(10), Price: 100, Timestamp: time.Now()})
	require.NoError(t, err)

	positions := s.PositionsForHolder("bot-2")

	assert.Empty(t, positions)
}

func TestRestoreFillRebuildsPositionWithoutPlatformFeeSideEffect(t *testing.T) {
	s := newTestStore(t)
	seedAccount(t, s, "bot-1", "owner-1", "0")

	s.RestoreFill("bot-1", domain.Fill{AssetID: "AAPL", Side: domain.SideBuy, Qty: decimal.NewFromInt(10), Price: 100, Timestamp: time.Now()})
	s.RestoreFill("bot-1", domain.Fill{AssetID: "AAPL", Side: domain.SideSell, Qty: decimal.NewFromInt(10), Price: 150, Timestamp: time.Now()})

	_, open := s.OpenPosition("bot-1", "AAPL")
	assert.False(t, open)
}
