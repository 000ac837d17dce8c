package book

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineltrading/execution-core/internal/database"
	"github.com/sentineltrading/execution-core/internal/domain"
	"github.com/sentineltrading/execution-core/internal/eventbus"
	"github.com/sentineltrading/execution-core/internal/ledger"
)

type fakePositionBook struct {
	tokens map[string]decimal.Decimal // botID -> tokens held
}

func newFakePositionBook() *fakePositionBook {
	return &fakePositionBook{tokens: map[string]decimal.Decimal{}}
}

func (f *fakePositionBook) ApplyFill(botID string, fill domain.Fill) (PositionEffect, error) {
	held := f.tokens[botID]
	effect := PositionEffect{}
	if fill.Side == domain.SideBuy {
		opened := held.IsZero()
		held = held.Add(fill.Qty)
		effect.Opened = opened
		effect.Tokens = held
	} else {
		held = held.Sub(fill.Qty)
		if held.IsZero() || held.IsNegative() {
			effect.Closed = true
			held = decimal.Zero
		}
		effect.Tokens = held
	}
	f.tokens[botID] = held
	return effect, nil
}

type fakeAssetStats struct{ trades int }

func (f *fakeAssetStats) ApplyTrade(string, float64, decimal.Decimal, domain.Side) { f.trades++ }

func newTestBook(t *testing.T) (*Book, *fakePositionBook, *fakeAssetStats) {
	t.Helper()
	db, err := database.New(database.Config{Path: ":memory:", Profile: database.ProfileStandard, Name: "book"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	led := ledger.New(db, zerolog.Nop())
	t.Cleanup(led.Close)

	positions := newFakePositionBook()
	stats := &fakeAssetStats{}
	bus := eventbus.New(zerolog.Nop())

	b := newBook("AAPL", 10, led, positions, stats, bus, zerolog.Nop())
	t.Cleanup(b.stop)
	return b, positions, stats
}

func limitOrder(id string, side domain.Side, price float64, qty int64) *domain.Order {
	p := price
	return &domain.Order{
		OrderID: id, BotID: "bot-" + id, AssetID: "AAPL", Side: side, Type: domain.OrderTypeLimit,
		Qty: decimal.NewFromInt(qty), LimitPrice: &p, Status: domain.OrderStatusOpen, CreatedAt: time.Now(),
	}
}

func marketOrder(id string, side domain.Side, qty int64) *domain.Order {
	return &domain.Order{
		OrderID: id, BotID: "bot-" + id, AssetID: "AAPL", Side: side, Type: domain.OrderTypeMarket,
		Qty: decimal.NewFromInt(qty), Status: domain.OrderStatusOpen, CreatedAt: time.Now(),
	}
}

func TestLimitBuyRestsWhenNoCross(t *testing.T) {
	b, _, _ := newTestBook(t)
	fills, err := b.Submit(context.Background(), limitOrder("o1", domain.SideBuy, 100, 10))
	require.NoError(t, err)
	assert.Empty(t, fills)

	snap := b.Snapshot()
	assert.Equal(t, 100.0, snap.BestBid)
}

func TestLimitBuyCrossesImmediately(t *testing.T) {
	b, _, stats := newTestBook(t)
	_, err := b.Submit(context.Background(), limitOrder("ask1", domain.SideSell, 100, 10))
	require.NoError(t, err)

	fills, err := b.Submit(context.Background(), limitOrder("bid1", domain.SideBuy, 105, 10))
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, 100.0, fills[0].Price) // matches at the resting maker's price
	assert.Equal(t, 2, stats.trades)       // stats updated for both sides of the cross
}

func TestMarketBuyFullyFillsAgainstRestingAsks(t *testing.T) {
	b, positions, _ := newTestBook(t)
	_, err := b.Submit(context.Background(), limitOrder("ask1", domain.SideSell, 100, 5))
	require.NoError(t, err)
	_, err = b.Submit(context.Background(), limitOrder("ask2", domain.SideSell, 101, 5))
	require.NoError(t, err)

	taker := marketOrder("buy1", domain.SideBuy, 10)
	fills, err := b.Submit(context.Background(), taker)
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, 100.0, fills[0].Price) // cheapest ask consumed first
	assert.Equal(t, 101.0, fills[1].Price)
	assert.True(t, positions.tokens["bot-buy1"].Equal(decimal.NewFromInt(10)))
}

func TestSnapshotRecordsRecentTrades(t *testing.T) {
	b, _, _ := newTestBook(t)
	_, err := b.Submit(context.Background(), limitOrder("ask1", domain.SideSell, 100, 10))
	require.NoError(t, err)
	_, err = b.Submit(context.Background(), limitOrder("bid1", domain.SideBuy, 105, 10))
	require.NoError(t, err)

	snap := b.Snapshot()
	require.Len(t, snap.RecentTrades, 1)
	assert.Equal(t, 100.0, snap.RecentTrades[0].Price)
	assert.Equal(t, domain.SideBuy, snap.RecentTrades[0].Side)
}

func TestMarketBuyRejectsInsufficientLiquidity(t *testing.T) {
	b, _, _ := newTestBook(t)
	_, err := b.Submit(context.Background(), marketOrder("buy1", domain.SideBuy, 10))
	require.Error(t, err)
	assert.Equal(t, domain.ErrInsufficientLiquidity, err.(*domain.Error).Code)
}

func TestFIFOTieBreakAtSamePrice(t *testing.T) {
	b, _, _ := newTestBook(t)
	_, err := b.Submit(context.Background(), limitOrder("ask1", domain.SideSell, 100, 5))
	require.NoError(t, err)
	_, err = b.Submit(context.Background(), limitOrder("ask2", domain.SideSell, 100, 5))
	require.NoError(t, err)

	fills, err := b.Submit(context.Background(), marketOrder("buy1", domain.SideBuy, 5))
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, "ask1", fills[0].OrderID) // earlier arrival at the same price fills first
}

func TestBestBidNeverExceedsBestAskAfterRest(t *testing.T) {
	b, _, _ := newTestBook(t)
	_, err := b.Submit(context.Background(), limitOrder("ask1", domain.SideSell, 110, 5))
	require.NoError(t, err)
	_, err = b.Submit(context.Background(), limitOrder("bid1", domain.SideBuy, 105, 5))
	require.NoError(t, err)

	snap := b.Snapshot()
	assert.LessOrEqual(t, snap.BestBid, snap.BestAsk)
}

func TestStopBuyPromotesOnQualifyingTrade(t *testing.T) {
	b, positions, _ := newTestBook(t)
	stopPrice := 105.0
	stop := &domain.Order{
		OrderID: "stop1", BotID: "bot-stop1", AssetID: "AAPL", Side: domain.SideBuy, Type: domain.OrderTypeStop,
		Qty: decimal.NewFromInt(5), StopPrice: &stopPrice, Status: domain.OrderStatusOpen, CreatedAt: time.Now(),
	}
	_, err := b.Submit(context.Background(), stop)
	require.NoError(t, err)

	_, err = b.Submit(context.Background(), limitOrder("ask1", domain.SideSell, 106, 10))
	require.NoError(t, err)

	// A trade print at 106 (>= stop's trigger of 105) promotes the stop to
	// a market buy, which should immediately cross the resting ask.
	_, err = b.Submit(context.Background(), marketOrder("buy1", domain.SideBuy, 1))
	require.NoError(t, err)

	assert.True(t, positions.tokens["bot-stop1"].Equal(decimal.NewFromInt(5)))
}

func TestCancelRemovesRestingOrder(t *testing.T) {
	b, _, _ := newTestBook(t)
	_, err := b.Submit(context.Background(), limitOrder("bid1", domain.SideBuy, 100, 10))
	require.NoError(t, err)

	require.NoError(t, b.Cancel(context.Background(), "bid1"))
	snap := b.Snapshot()
	assert.Equal(t, 0.0, snap.BestBid)
}

func TestCancelUnknownOrderReturnsNotFound(t *testing.T) {
	b, _, _ := newTestBook(t)
	err := b.Cancel(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, domain.ErrOrderNotFound, err.(*domain.Error).Code)
}

func TestLimitOrderExpiresAfterSweep(t *testing.T) {
	b, _, _ := newTestBook(t)
	past := time.Now().Add(-8 * 24 * time.Hour)
	p := 100.0
	order := &domain.Order{
		OrderID: "old1", BotID: "bot-old1", AssetID: "AAPL", Side: domain.SideBuy, Type: domain.OrderTypeLimit,
		Qty: decimal.NewFromInt(5), LimitPrice: &p, Status: domain.OrderStatusOpen,
		CreatedAt: past, ExpiresAt: past.Add(7 * 24 * time.Hour),
	}
	_, err := b.Submit(context.Background(), order)
	require.NoError(t, err)

	b.forceSweep(time.Now())
	snap := b.Snapshot()
	assert.Equal(t, 0.0, snap.BestBid)
}
