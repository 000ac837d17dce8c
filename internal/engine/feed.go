package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentineltrading/execution-core/internal/catalog"
	"github.com/sentineltrading/execution-core/internal/indicators"
	"github.com/sentineltrading/execution-core/internal/marketdata"
	"github.com/sentineltrading/execution-core/internal/repositories"
)

const (
	feedPollInterval = 15 * time.Second
	feedBackfillBars = 200
)

type symbolTimeframe struct {
	symbol, timeframe string
}

// candleFeed keeps the indicator cache warm by polling each (symbol,
// timeframe) pair any registered bot trades, bucketing is left to the
// vendor's own candle endpoint rather than built from the raw quote
// stream: nothing else in this codebase aggregates ticks into bars, and a
// 15s poll is well inside every strategy's coarsest timeframe.
type candleFeed struct {
	market   *marketdata.Aggregator
	provider string
	cache    *indicators.Cache
	history  *repositories.CandleHistoryStore
	bots     *catalog.Bots
	log      zerolog.Logger
	seen     map[symbolTimeframe]time.Time
	warmedUp map[symbolTimeframe]bool
}

// newCandleFeed polls provider (the one Engine.registerProviders chose as
// primary) on a fixed interval rather than subscribing to its streaming
// API: the strategy evaluator consumes closed bars, not ticks, and every
// configured timeframe is at least a minute wide.
func newCandleFeed(market *marketdata.Aggregator, provider string, cache *indicators.Cache, history *repositories.CandleHistoryStore, bots *catalog.Bots, log zerolog.Logger) *candleFeed {
	return &candleFeed{
		market:   market,
		provider: provider,
		cache:    cache,
		history:  history,
		bots:     bots,
		log:      log.With().Str("component", "candle_feed").Logger(),
		seen:     make(map[symbolTimeframe]time.Time),
		warmedUp: make(map[symbolTimeframe]bool),
	}
}

// Run polls every tracked (symbol, timeframe) pair on a fixed interval
// until ctx is cancelled. The tracked set is recomputed each tick from the
// currently-registered bots so newly registered bots are picked up
// without a restart.
func (f *candleFeed) Run(ctx context.Context) {
	ticker := time.NewTicker(feedPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.pollAll(ctx)
		}
	}
}

func (f *candleFeed) pollAll(ctx context.Context) {
	for _, pair := range f.trackedPairs() {
		if err := f.pollPair(ctx, pair); err != nil {
			f.log.Warn().Err(err).Str("symbol", pair.symbol).Str("timeframe", pair.timeframe).Msg("candle poll failed")
		}
	}
}

func (f *candleFeed) trackedPairs() []symbolTimeframe {
	seen := make(map[symbolTimeframe]bool)
	var pairs []symbolTimeframe
	for _, bot := range f.bots.All() {
		for _, symbol := range bot.Symbols {
			for _, timeframe := range bot.Timeframes {
				pair := symbolTimeframe{symbol: symbol, timeframe: timeframe}
				if !seen[pair] {
					seen[pair] = true
					pairs = append(pairs, pair)
				}
			}
		}
	}
	return pairs
}

func (f *candleFeed) pollPair(ctx context.Context, pair symbolTimeframe) error {
	if !f.warmedUp[pair] {
		if err := f.backfill(pair); err != nil {
			return err
		}
		f.warmedUp[pair] = true
	}

	candles, err := f.market.GetCandles(ctx, f.provider, pair.symbol, pair.timeframe, 2)
	if err != nil {
		return err
	}
	for _, candle := range candles {
		if !candle.OpenTime.After(f.seen[pair]) {
			continue
		}
		if err := f.cache.OnCandle(candle); err != nil {
			f.log.Warn().Err(err).Str("symbol", pair.symbol).Msg("indicator cache rejected candle")
			continue
		}
		if err := f.history.Record(candle); err != nil {
			f.log.Warn().Err(err).Str("symbol", pair.symbol).Msg("failed to persist candle history")
		}
		f.seen[pair] = candle.OpenTime
	}
	return nil
}

func (f *candleFeed) backfill(pair symbolTimeframe) error {
	candles, err := f.history.Recent(pair.symbol, pair.timeframe, feedBackfillBars)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return nil
	}
	f.cache.Backfill(pair.symbol, pair.timeframe, candles)
	f.seen[pair] = candles[len(candles)-1].OpenTime
	return nil
}
