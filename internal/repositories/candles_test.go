package repositories

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineltrading/execution-core/internal/database"
	"github.com/sentineltrading/execution-core/internal/domain"
)

func newTestCandleHistoryStore(t *testing.T) *CandleHistoryStore {
	t.Helper()
	db, err := database.New(database.Config{Path: ":memory:", Profile: database.ProfileStandard, Name: "history"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return NewCandleHistoryStore(db, zerolog.Nop())
}

func TestCandleHistoryRecentReturnsOldestFirst(t *testing.T) {
	s := newTestCandleHistoryStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Record(domain.Candle{
			Symbol: "AAPL", Timeframe: "1m", OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open: 100, High: 101, Low: 99, Close: 100 + float64(i), Volume: 10,
		}))
	}

	candles, err := s.Recent("AAPL", "1m", 10)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.True(t, candles[0].OpenTime.Before(candles[1].OpenTime))
	assert.True(t, candles[1].OpenTime.Before(candles[2].OpenTime))
	assert.Equal(t, 102.0, candles[2].Close)
}

func TestCandleHistoryRecordUpsertsSameBar(t *testing.T) {
	s := newTestCandleHistoryStore(t)
	openTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(domain.Candle{Symbol: "AAPL", Timeframe: "1m", OpenTime: openTime, Close: 100}))
	require.NoError(t, s.Record(domain.Candle{Symbol: "AAPL", Timeframe: "1m", OpenTime: openTime, Close: 105}))

	candles, err := s.Recent("AAPL", "1m", 10)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, 105.0, candles[0].Close)
}
