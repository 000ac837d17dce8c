// Package indicators maintains per-(symbol, timeframe) ring buffers of
// closed candles and updates a requested set of technical indicators as
// each new candle arrives. SMA, EMA, RSI, ATR and MACD update
// incrementally; Bollinger Bands and ADX are recomputed over the whole
// buffered window on every candle.
package indicators

import (
	"fmt"
	"sync"
	"time"

	talib "github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/sentineltrading/execution-core/internal/domain"
	"github.com/sentineltrading/execution-core/internal/eventbus"
)

// Indicator names the kinds of series the cache can compute.
type Indicator string

const (
	SMA       Indicator = "sma"
	EMA       Indicator = "ema"
	RSI       Indicator = "rsi"
	MACD      Indicator = "macd"
	Bollinger Indicator = "bollinger"
	ATR       Indicator = "atr"
	ADX       Indicator = "adx"
)

// Value is the result of one indicator read: scalar for single-series
// indicators (SMA/EMA/RSI/ATR/ADX), vector for multi-series ones
// (MACD: [macd, signal, histogram]; Bollinger: [upper, middle, lower]).
type Value struct {
	Scalar float64
	Vector []float64
}

type historyPoint struct {
	ts    time.Time
	value Value
}

type series struct {
	mu sync.Mutex

	symbol, timeframe string

	closes, highs, lows, volumes *ringBuffer[float64]
	timestamps                   *ringBuffer[time.Time]

	lastOpenTime time.Time
	stale        bool

	smas map[int]*smaCalc
	emas map[int]*emaCalc
	rsis map[int]*rsiCalc
	atrs map[int]*atrCalc
	macd *macdCalc

	history map[string][]historyPoint
}

func newSeries(symbol, timeframe string) *series {
	const initialCapacity = 60 // 20 (default BB/MACD-adjacent period) x 3
	return &series{
		symbol:     symbol,
		timeframe:  timeframe,
		closes:     newRingBuffer[float64](initialCapacity),
		highs:      newRingBuffer[float64](initialCapacity),
		lows:       newRingBuffer[float64](initialCapacity),
		volumes:    newRingBuffer[float64](initialCapacity),
		timestamps: newRingBuffer[time.Time](initialCapacity),
		smas:       make(map[int]*smaCalc),
		emas:       make(map[int]*emaCalc),
		rsis:       make(map[int]*rsiCalc),
		atrs:       make(map[int]*atrCalc),
		history:    make(map[string][]historyPoint),
	}
}

func historyKey(indicator Indicator, period int) string {
	return fmt.Sprintf("%s:%d", indicator, period)
}

// ensureCapacity grows the series' ring buffers so they can hold
// max(requested period) x 3 candles, enough headroom for warmup windows
// on the longest-period indicator in use.
func (s *series) ensureCapacity(period int) {
	capacity := period * 3
	s.closes.grow(capacity)
	s.highs.grow(capacity)
	s.lows.grow(capacity)
	s.volumes.grow(capacity)
	s.timestamps.grow(capacity)
}

// Cache is the concurrent-safe indicator store. One Cache instance serves
// every symbol/timeframe pair the engine tracks.
type Cache struct {
	log zerolog.Logger
	bus *eventbus.Bus

	mu     sync.RWMutex
	series map[string]*series
}

// New creates an empty indicator cache. bus may be nil, in which case
// indicators_updated events are not published (useful in tests).
func New(bus *eventbus.Bus, log zerolog.Logger) *Cache {
	return &Cache{
		log:    log.With().Str("component", "indicators").Logger(),
		bus:    bus,
		series: make(map[string]*series),
	}
}

func (c *Cache) seriesFor(symbol, timeframe string) *series {
	key := symbol + "|" + timeframe

	c.mu.RLock()
	s, ok := c.series[key]
	c.mu.RUnlock()
	if ok {
		return s
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.series[key]; ok {
		return s
	}
	s = newSeries(symbol, timeframe)
	c.series[key] = s
	return s
}

// OnCandle appends a newly closed candle, recomputes every indicator the
// series has subscribers for, and publishes IndicatorsUpdated. A candle
// that arrives out of order or after a gap larger than one timeframe marks
// the series stale instead of being applied.
func (c *Cache) OnCandle(candle domain.Candle) error {
	s := c.seriesFor(candle.Symbol, candle.Timeframe)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastOpenTime.IsZero() {
		gap := candle.OpenTime.Sub(s.lastOpenTime)
		step := timeframeDuration(candle.Timeframe)
		if gap <= 0 || gap > step {
			s.stale = true
			return domain.NewError(domain.ErrStaleIndicator,
				fmt.Sprintf("%s/%s: candle out of order or gapped, series marked stale", candle.Symbol, candle.Timeframe), false)
		}
	}

	s.closes.push(candle.Close)
	s.highs.push(candle.High)
	s.lows.push(candle.Low)
	s.volumes.push(candle.Volume)
	s.timestamps.push(candle.OpenTime)
	s.lastOpenTime = candle.OpenTime

	c.recompute(s, candle.OpenTime)

	if c.bus != nil {
		c.bus.IndicatorsUpdated.Publish(eventbus.IndicatorsUpdatedEvent{
			Symbol:    candle.Symbol,
			Timeframe: candle.Timeframe,
			Timestamp: candle.OpenTime,
		})
	}
	return nil
}

// recompute updates every already-subscribed incremental calculator plus
// the batch talib-backed ones, recording each result in history. Caller
// holds s.mu.
func (c *Cache) recompute(s *series, ts time.Time) {
	lastClose := mustLast(s.closes)

	for period, calc := range s.smas {
		if v, ready := calc.Update(lastClose); ready {
			s.record(SMA, period, ts, Value{Scalar: v})
		}
	}
	for period, calc := range s.emas {
		if v, ready := calc.Update(lastClose); ready {
			s.record(EMA, period, ts, Value{Scalar: v})
		}
	}
	for period, calc := range s.rsis {
		if v, ready := calc.Update(lastClose); ready {
			s.record(RSI, period, ts, Value{Scalar: v})
		}
	}
	for period, calc := range s.atrs {
		high, low := mustLast(s.highs), mustLast(s.lows)
		if v, ready := calc.Update(high, low, lastClose); ready {
			s.record(ATR, period, ts, Value{Scalar: v})
		}
	}
	if s.macd != nil {
		if v, ready := s.macd.Update(lastClose); ready {
			s.record(MACD, 0, ts, Value{Vector: []float64{v.MACD, v.Signal, v.Histogram}})
		}
	}
	if _, subscribed := s.history[historyKey(Bollinger, 20)]; subscribed {
		c.recomputeBollinger(s, ts)
	}
	if _, subscribed := s.history[historyKey(ADX, 14)]; subscribed {
		c.recomputeADX(s, ts)
	}
}

func (s *series) record(indicator Indicator, period int, ts time.Time, v Value) {
	key := historyKey(indicator, period)
	s.history[key] = append(s.history[key], historyPoint{ts: ts, value: v})
	if len(s.history[key]) > s.closes.capacity {
		s.history[key] = s.history[key][len(s.history[key])-s.closes.capacity:]
	}
}

func (c *Cache) recomputeBollinger(s *series, ts time.Time) {
	closes := s.closes.slice()
	if len(closes) < 20 {
		return
	}
	upper, middle, lower := talib.Bbands(closes, 20, 2, 2, talib.SMA)
	i := len(upper) - 1
	if i < 0 {
		return
	}
	s.record(Bollinger, 20, ts, Value{Vector: []float64{upper[i], middle[i], lower[i]}})
}

func (c *Cache) recomputeADX(s *series, ts time.Time) {
	highs, lows, closes := s.highs.slice(), s.lows.slice(), s.closes.slice()
	if len(closes) < 14*2 {
		return
	}
	adx := talib.Adx(highs, lows, closes, 14)
	i := len(adx) - 1
	if i < 0 {
		return
	}
	s.record(ADX, 14, ts, Value{Scalar: adx[i]})
}

func mustLast(r *ringBuffer[float64]) float64 {
	v, _ := r.last()
	return v
}

// Subscribe registers an (indicator, period) pair so future candles update
// it incrementally. Calling Get for a pair that has never been subscribed
// auto-subscribes it, but the first several candles after that will report
// ErrNotReady until the calculator has enough history.
func (c *Cache) Subscribe(symbol, timeframe string, indicator Indicator, period int) {
	s := c.seriesFor(symbol, timeframe)
	s.mu.Lock()
	defer s.mu.Unlock()
	c.subscribeLocked(s, indicator, period)
}

func (c *Cache) subscribeLocked(s *series, indicator Indicator, period int) {
	switch indicator {
	case SMA:
		if _, ok := s.smas[period]; !ok {
			s.ensureCapacity(period)
			s.smas[period] = newSMACalc(period)
			s.history[historyKey(SMA, period)] = nil
		}
	case EMA:
		if _, ok := s.emas[period]; !ok {
			s.ensureCapacity(period)
			s.emas[period] = newEMACalc(period)
			s.history[historyKey(EMA, period)] = nil
		}
	case RSI:
		if _, ok := s.rsis[period]; !ok {
			s.ensureCapacity(period)
			s.rsis[period] = newRSICalc(period)
			s.history[historyKey(RSI, period)] = nil
		}
	case ATR:
		if _, ok := s.atrs[period]; !ok {
			s.ensureCapacity(period)
			s.atrs[period] = newATRCalc(period)
			s.history[historyKey(ATR, period)] = nil
		}
	case MACD:
		if s.macd == nil {
			s.ensureCapacity(26)
			s.macd = newMACDCalc()
			s.history[historyKey(MACD, 0)] = nil
		}
	case Bollinger:
		s.ensureCapacity(20)
		if _, ok := s.history[historyKey(Bollinger, 20)]; !ok {
			s.history[historyKey(Bollinger, 20)] = nil
		}
	case ADX:
		s.ensureCapacity(14)
		if _, ok := s.history[historyKey(ADX, 14)]; !ok {
			s.history[historyKey(ADX, 14)] = nil
		}
	}
}

// ErrNotReady is returned by Get when an indicator has been subscribed but
// has not yet accumulated enough candles to produce a value.
var ErrNotReady = domain.NewError("indicator_not_ready", "indicator has not accumulated enough candles yet", true)

// Get reads the latest value of indicator(period) for (symbol, timeframe),
// or the value as of atTs if provided. A series marked stale refuses reads
// until Backfill is called.
func (c *Cache) Get(symbol, timeframe string, indicator Indicator, period int, atTs *time.Time) (Value, error) {
	s := c.seriesFor(symbol, timeframe)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stale {
		return Value{}, domain.NewError(domain.ErrStaleIndicator, fmt.Sprintf("%s/%s series is stale", symbol, timeframe), false)
	}

	key := historyKey(indicator, period)
	if _, ok := s.history[key]; !ok {
		c.subscribeLocked(s, indicator, period)
	}

	points := s.history[key]
	if len(points) == 0 {
		return Value{}, ErrNotReady
	}

	if atTs == nil {
		return points[len(points)-1].value, nil
	}

	for i := len(points) - 1; i >= 0; i-- {
		if !points[i].ts.After(*atTs) {
			return points[i].value, nil
		}
	}
	return Value{}, ErrNotReady
}

// Backfill replaces a series' buffers with candles (oldest first) and
// clears its stale flag, the documented recovery path after a gap or
// out-of-order candle.
func (c *Cache) Backfill(symbol, timeframe string, candles []domain.Candle) {
	s := c.seriesFor(symbol, timeframe)

	s.mu.Lock()
	s.closes = newRingBuffer[float64](s.closes.capacity)
	s.highs = newRingBuffer[float64](s.highs.capacity)
	s.lows = newRingBuffer[float64](s.lows.capacity)
	s.volumes = newRingBuffer[float64](s.volumes.capacity)
	s.timestamps = newRingBuffer[time.Time](s.timestamps.capacity)
	s.lastOpenTime = time.Time{}
	s.stale = false
	s.mu.Unlock()

	for _, candle := range candles {
		_ = c.OnCandle(candle)
	}
}

// LastClose returns the most recently closed candle's close price for
// (symbol, timeframe), for leaves that compare price directly against an
// indicator rather than reading a live quote.
func (c *Cache) LastClose(symbol, timeframe string) (float64, error) {
	s := c.seriesFor(symbol, timeframe)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stale {
		return 0, domain.NewError(domain.ErrStaleIndicator, fmt.Sprintf("%s/%s series is stale", symbol, timeframe), false)
	}
	v, ok := s.closes.last()
	if !ok {
		return 0, ErrNotReady
	}
	return v, nil
}

// RecentCloses returns up to the last n closes in chronological order, for
// callers (the regime classifier) that need a window rather than a single
// scalar indicator value.
func (c *Cache) RecentCloses(symbol, timeframe string, n int) []float64 {
	s := c.seriesFor(symbol, timeframe)

	s.mu.Lock()
	defer s.mu.Unlock()

	closes := s.closes.slice()
	if len(closes) <= n {
		out := make([]float64, len(closes))
		copy(out, closes)
		return out
	}
	out := make([]float64, n)
	copy(out, closes[len(closes)-n:])
	return out
}

// VolumeSMA returns the simple average of the last `period` candle volumes
// and the latest candle's own volume, for volume-spike checks. It is
// computed directly from the ring buffer rather than via an incremental
// calculator since callers query it at arbitrary ad-hoc periods.
func (c *Cache) VolumeSMA(symbol, timeframe string, period int) (avg, latest float64, err error) {
	s := c.seriesFor(symbol, timeframe)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stale {
		return 0, 0, domain.NewError(domain.ErrStaleIndicator, fmt.Sprintf("%s/%s series is stale", symbol, timeframe), false)
	}

	volumes := s.volumes.slice()
	if len(volumes) < period {
		return 0, 0, ErrNotReady
	}

	window := volumes[len(volumes)-period:]
	var sum float64
	for _, v := range window {
		sum += v
	}
	return sum / float64(period), volumes[len(volumes)-1], nil
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
