package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sentineltrading/execution-core/internal/domain"
)

// SimulatedProvider serves quotes and candles from a deterministic
// in-memory random walk instead of a network call, so the engine can run
// end to end (scheduler, evaluator, risk pipeline, order book) without
// external connectivity — for demos, backtests, and tests.
type SimulatedProvider struct {
	name      string
	basePrice float64
	volPct    float64 // per-candle volatility as a fraction of price

	mu     sync.Mutex
	series map[string]*candleSeries // key: symbol|timeframe
}

// NewSimulatedProvider creates a provider seeded deterministically per
// symbol, so repeated runs produce the same series for the same symbol.
func NewSimulatedProvider(name string, basePrice, volPct float64) *SimulatedProvider {
	return &SimulatedProvider{
		name:      name,
		basePrice: basePrice,
		volPct:    volPct,
		series:    make(map[string]*candleSeries),
	}
}

func (p *SimulatedProvider) Name() string          { return p.name }
func (p *SimulatedProvider) RequestsPerMinute() int { return 600 }

func seedFor(symbol string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	return int64(h.Sum64())
}

func (p *SimulatedProvider) seriesFor(symbol, timeframe string) *candleSeries {
	key := symbol + "|" + timeframe
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.series[key]
	if ok {
		return s
	}

	s = &candleSeries{symbol: symbol, timeframe: timeframe}
	step := timeframeDuration(timeframe)
	rng := rand.New(rand.NewSource(seedFor(key)))
	price := p.basePrice
	now := time.Now().UTC().Truncate(step)
	start := now.Add(-step * 500)

	for i := 0; i < 500; i++ {
		open := price
		move := (rng.Float64()*2 - 1) * p.volPct * price
		close := math.Max(0.01, open+move)
		high := math.Max(open, close) * (1 + rng.Float64()*p.volPct*0.3)
		low := math.Min(open, close) * (1 - rng.Float64()*p.volPct*0.3)
		volume := 1000 + rng.Float64()*9000

		s.candles = append(s.candles, domain.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			OpenTime:  start.Add(time.Duration(i) * step),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
		})
		price = close
	}

	p.series[key] = s
	return s
}

func (p *SimulatedProvider) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	series := p.seriesFor(symbol, "1m")
	last := series.candles[len(series.candles)-1]
	spread := last.Close * 0.0005

	return domain.Quote{
		Symbol:    symbol,
		Provider:  p.name,
		Bid:       last.Close - spread,
		Ask:       last.Close + spread,
		Last:      last.Close,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (p *SimulatedProvider) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	series := p.seriesFor(symbol, timeframe)
	if limit <= 0 || limit > len(series.candles) {
		limit = len(series.candles)
	}
	out := make([]domain.Candle, limit)
	copy(out, series.candles[len(series.candles)-limit:])
	return out, nil
}

// Stream emits a synthetic quote every 1-3s per symbol, matching the
// documented vendor streaming cadence, by advancing each symbol's random
// walk one step per tick.
func (p *SimulatedProvider) Stream(ctx context.Context, symbols []string) (<-chan domain.Quote, error) {
	out := make(chan domain.Quote, len(symbols)*4)

	go func() {
		defer close(out)
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for {
			for _, sym := range symbols {
				select {
				case <-ctx.Done():
					return
				default:
				}

				delay := time.Duration(1000+rng.Intn(2000)) * time.Millisecond
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}

				q, err := p.advance(sym)
				if err != nil {
					continue
				}
				select {
				case out <- q:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (p *SimulatedProvider) advance(symbol string) (domain.Quote, error) {
	series := p.seriesFor(symbol, "1m")

	p.mu.Lock()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	last := series.candles[len(series.candles)-1]
	move := (rng.Float64()*2 - 1) * p.volPct * last.Close
	next := math.Max(0.01, last.Close+move)
	series.candles[len(series.candles)-1].Close = next
	p.mu.Unlock()

	spread := next * 0.0005
	return domain.Quote{
		Symbol:    symbol,
		Provider:  p.name,
		Bid:       next - spread,
		Ask:       next + spread,
		Last:      next,
		Timestamp: time.Now().UTC(),
	}, nil
}
