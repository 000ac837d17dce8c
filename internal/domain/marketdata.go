package domain

import "time"

// Quote is a single provider's view of the current best bid/ask/last for a
// symbol.
type Quote struct {
	Symbol    string
	Provider  string
	Bid       float64
	Ask       float64
	Last      float64
	Timestamp time.Time
}

// AggregatedQuote fans multiple providers' quotes into one consensus view:
// best bid (max), best ask (min), average last.
type AggregatedQuote struct {
	Symbol    string
	BestBid   float64
	BestAsk   float64
	AvgLast   float64
	Sources   []string
	Timestamp time.Time
}

// Candle is one OHLCV bar for a (symbol, timeframe).
type Candle struct {
	Symbol    string
	Timeframe string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}
