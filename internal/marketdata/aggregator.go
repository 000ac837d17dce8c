package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sentineltrading/execution-core/internal/domain"
)

const (
	reconnectBaseDelay = 100 * time.Millisecond
	reconnectMaxDelay  = 30 * time.Second
)

// Aggregator fans quotes and candles in from N providers, caches them, and
// serves a push subscription feed over a reconnecting stream.
type Aggregator struct {
	log zerolog.Logger

	mu        sync.RWMutex
	providers map[string]Provider
	limiters  map[string]*rate.Limiter

	quoteCache  *ttlCache[domain.Quote]
	candleCache *ttlCache[[]domain.Candle]

	subMu sync.Mutex
	subs  map[string]context.CancelFunc
}

// New creates an Aggregator with no providers registered; call
// RegisterProvider for each configured vendor.
func New(log zerolog.Logger) *Aggregator {
	return &Aggregator{
		log:         log.With().Str("component", "marketdata").Logger(),
		providers:   make(map[string]Provider),
		limiters:    make(map[string]*rate.Limiter),
		quoteCache:  newTTLCache[domain.Quote](liveQuoteTTL),
		candleCache: newTTLCache[[]domain.Candle](historicalTTL),
		subs:        make(map[string]context.CancelFunc),
	}
}

// RegisterProvider adds a provider and sizes its token bucket to its
// advertised requests-per-minute budget.
func (a *Aggregator) RegisterProvider(p Provider) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rpm := p.RequestsPerMinute()
	if rpm <= 0 {
		rpm = 60
	}
	a.providers[p.Name()] = p
	a.limiters[p.Name()] = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
}

func (a *Aggregator) providerNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.providers))
	for name := range a.providers {
		names = append(names, name)
	}
	return names
}

// GetQuote reads a single provider's quote, blocking on that provider's
// rate limiter until ctx's deadline if the token bucket is exhausted.
func (a *Aggregator) GetQuote(ctx context.Context, symbol, providerName string) (domain.Quote, error) {
	a.mu.RLock()
	provider, ok := a.providers[providerName]
	limiter := a.limiters[providerName]
	a.mu.RUnlock()
	if !ok {
		return domain.Quote{}, domain.NewError(domain.ErrUnknownProvider, fmt.Sprintf("unknown provider %q", providerName), false)
	}

	cacheKey := symbol + "|" + providerName
	if q, ok := a.quoteCache.get(cacheKey); ok {
		return q, nil
	}

	if err := limiter.Wait(ctx); err != nil {
		return domain.Quote{}, fmt.Errorf("marketdata: rate limit wait: %w", err)
	}

	q, err := provider.GetQuote(ctx, symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	a.quoteCache.set(cacheKey, q)
	return q, nil
}

// GetCandles reads a provider's candle series, honoring the historical TTL
// cache and the provider's token bucket.
func (a *Aggregator) GetCandles(ctx context.Context, providerName, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	a.mu.RLock()
	provider, ok := a.providers[providerName]
	limiter := a.limiters[providerName]
	a.mu.RUnlock()
	if !ok {
		return nil, domain.NewError(domain.ErrUnknownProvider, fmt.Sprintf("unknown provider %q", providerName), false)
	}

	cacheKey := fmt.Sprintf("%s|%s|%s|%d", providerName, symbol, timeframe, limit)
	if c, ok := a.candleCache.get(cacheKey); ok {
		return c, nil
	}

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("marketdata: rate limit wait: %w", err)
	}

	candles, err := provider.GetCandles(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	a.candleCache.set(cacheKey, candles)
	return candles, nil
}

// GetAggregated queries every registered provider in parallel and folds
// their quotes into one consensus view: best bid (max), best ask (min),
// average last. Individual provider failures are non-fatal; only a total
// failure across every provider returns NoProviderAvailable.
func (a *Aggregator) GetAggregated(ctx context.Context, symbol string) (domain.AggregatedQuote, error) {
	names := a.providerNames()
	if len(names) == 0 {
		return domain.AggregatedQuote{}, domain.NewError(domain.ErrNoProviderAvailable, "no providers registered", false)
	}

	type result struct {
		quote domain.Quote
		err   error
	}

	results := make(chan result, len(names))
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(providerName string) {
			defer wg.Done()
			q, err := a.GetQuote(ctx, symbol, providerName)
			results <- result{quote: q, err: err}
		}(name)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var (
		bestBid, avgSum float64
		bestAsk         float64
		sources         []string
		count           int
	)
	bestAsk = -1

	for r := range results {
		if r.err != nil {
			a.log.Warn().Err(r.err).Str("symbol", symbol).Msg("provider quote failed")
			continue
		}
		if r.quote.Bid > bestBid {
			bestBid = r.quote.Bid
		}
		if bestAsk < 0 || r.quote.Ask < bestAsk {
			bestAsk = r.quote.Ask
		}
		avgSum += r.quote.Last
		sources = append(sources, r.quote.Provider)
		count++
	}

	if count == 0 {
		return domain.AggregatedQuote{}, domain.NewError(domain.ErrNoProviderAvailable, fmt.Sprintf("all providers failed for %s", symbol), true)
	}

	return domain.AggregatedQuote{
		Symbol:    symbol,
		BestBid:   bestBid,
		BestAsk:   bestAsk,
		AvgLast:   avgSum / float64(count),
		Sources:   sources,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Subscribe starts a push feed for symbols against every registered
// StreamProvider and invokes callback for each quote received, preserving
// FIFO order per (symbol, subscription). A dropped upstream stream is
// transparently reconnected with exponential backoff; the subscriber sees
// a gap, never an error, unless registration itself fails.
func (a *Aggregator) Subscribe(symbols []string, callback func(domain.Quote)) (string, error) {
	var streamers []StreamProvider
	a.mu.RLock()
	for _, p := range a.providers {
		if sp, ok := p.(StreamProvider); ok {
			streamers = append(streamers, sp)
		}
	}
	a.mu.RUnlock()

	if len(streamers) == 0 {
		return "", domain.NewError(domain.ErrNoProviderAvailable, "no streaming provider registered", false)
	}

	subID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	a.subMu.Lock()
	a.subs[subID] = cancel
	a.subMu.Unlock()

	for _, sp := range streamers {
		go a.runStream(ctx, sp, symbols, callback)
	}

	return subID, nil
}

// Unsubscribe stops the push feed registered under subID.
func (a *Aggregator) Unsubscribe(subID string) {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	if cancel, ok := a.subs[subID]; ok {
		cancel()
		delete(a.subs, subID)
	}
}

// runStream drains one provider's stream into callback, reconnecting with
// exponential backoff (100ms to a 30s cap) whenever the provider's channel
// closes before ctx is cancelled.
func (a *Aggregator) runStream(ctx context.Context, sp StreamProvider, symbols []string, callback func(domain.Quote)) {
	delay := reconnectBaseDelay

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ch, err := sp.Stream(ctx, symbols)
		if err != nil {
			a.log.Warn().Err(err).Str("provider", sp.Name()).Msg("stream connect failed, backing off")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = nextBackoff(delay)
			continue
		}

		delay = reconnectBaseDelay
		for q := range ch {
			callback(q)
		}

		select {
		case <-ctx.Done():
			return
		default:
			a.log.Warn().Str("provider", sp.Name()).Msg("stream closed, reconnecting")
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	next := d * 2
	if next > reconnectMaxDelay {
		return reconnectMaxDelay
	}
	return next
}
