package repositories

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/sentineltrading/execution-core/internal/database"
	"github.com/sentineltrading/execution-core/internal/domain"
)

func unixToTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

// CandleHistoryStore persists closed candles so the indicator cache can be
// backfilled after a restart instead of rebuilding every series from a
// cold start against the live feed. It is not part of the ledger replay
// path: a missed or duplicated candle here affects indicator warm-up time,
// never money, so it is a plain SQL cache, not an event-sourced one.
type CandleHistoryStore struct {
	base
}

// NewCandleHistoryStore wraps db, which must already have the history
// schema migrated (db.Migrate with Config.Name == "history").
func NewCandleHistoryStore(db *database.DB, log zerolog.Logger) *CandleHistoryStore {
	return &CandleHistoryStore{base: newBase(db.Conn(), log.With().Str("component", "candle_history").Logger())}
}

// Record upserts one closed candle.
func (s *CandleHistoryStore) Record(candle domain.Candle) error {
	_, err := s.db.Exec(`INSERT INTO candles (symbol, timeframe, open_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timeframe, open_time) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume`,
		candle.Symbol, candle.Timeframe, candle.OpenTime.UTC().Unix(),
		candle.Open, candle.High, candle.Low, candle.Close, candle.Volume)
	return err
}

// Recent returns up to limit candles for (symbol, timeframe), oldest
// first, the order Cache.Backfill expects.
func (s *CandleHistoryStore) Recent(symbol, timeframe string, limit int) ([]domain.Candle, error) {
	rows, err := s.db.Query(`SELECT open_time, open, high, low, close, volume FROM candles
		WHERE symbol = ? AND timeframe = ? ORDER BY open_time DESC LIMIT ?`, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Candle
	for rows.Next() {
		var openTime int64
		c := domain.Candle{Symbol: symbol, Timeframe: timeframe}
		if err := rows.Scan(&openTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		c.OpenTime = unixToTime(openTime)
		out = append(out, c)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}
