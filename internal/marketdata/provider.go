// Package marketdata fans quotes and candles in from pluggable providers,
// caches them, and serves both synchronous reads and a push subscription
// feed.
package marketdata

import (
	"context"
	"time"

	"github.com/sentineltrading/execution-core/internal/domain"
)

// Provider is a single market-data vendor. Concrete adapters wrap a REST
// client the way a brokerage adapter would: a thin net/http client with
// context deadlines, no generated SDK.
type Provider interface {
	Name() string
	GetQuote(ctx context.Context, symbol string) (domain.Quote, error)
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error)
	// RequestsPerMinute sizes this provider's token bucket.
	RequestsPerMinute() int
}

// StreamProvider is implemented by providers that can push quotes rather
// than only answering polled reads. Stream returns a channel that the
// caller drains until ctx is cancelled or the provider closes it on a
// connection failure; the aggregator owns reconnect/backoff, not the
// provider.
type StreamProvider interface {
	Provider
	Stream(ctx context.Context, symbols []string) (<-chan domain.Quote, error)
}

// candleSeries is a deterministic in-memory OHLCV series keyed by
// (symbol, timeframe), the backing store for SimulatedProvider.
type candleSeries struct {
	symbol    string
	timeframe string
	candles   []domain.Candle
}

func timeframeDuration(timeframe string) time.Duration {
	switch timeframe {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Minute
	}
}
