package strategy

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Regime tags the current market condition for a (symbol, timeframe),
// consulted by the regime_is leaf.
type Regime string

const (
	RegimeTrendingUp   Regime = "trending_up"
	RegimeTrendingDown Regime = "trending_down"
	RegimeRanging      Regime = "ranging"
	RegimeVolatile     Regime = "volatile"
)

// regimeClassifier tags a window of closes plus an ATR/price ratio into a
// discrete regime, blending a trend-slope component (gonum's ordinary
// least squares) with a volatility component into one score over price
// action.
type regimeClassifier struct {
	volatileATRRatio float64 // ATR14/price above this overrides trend, tags volatile
	trendSlopeFloor  float64 // |normalized slope| below this is ranging
}

func newRegimeClassifier() *regimeClassifier {
	return &regimeClassifier{
		volatileATRRatio: 0.02,
		trendSlopeFloor:  0.05,
	}
}

// classify fits a line through closes (x = candle index) and normalizes
// the slope by the series' mean price, so the threshold is scale-free
// across symbols trading at very different price levels.
func (r *regimeClassifier) classify(closes []float64, atrOverPrice float64) Regime {
	if atrOverPrice >= r.volatileATRRatio {
		return RegimeVolatile
	}
	if len(closes) < 2 {
		return RegimeRanging
	}

	xs := make([]float64, len(closes))
	for i := range closes {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, closes, nil, false)

	mean := stat.Mean(closes, nil)
	if mean == 0 {
		return RegimeRanging
	}
	normalized := math.Tanh(slope / mean * float64(len(closes)))

	switch {
	case normalized > r.trendSlopeFloor:
		return RegimeTrendingUp
	case normalized < -r.trendSlopeFloor:
		return RegimeTrendingDown
	default:
		return RegimeRanging
	}
}
