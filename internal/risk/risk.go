// Package risk implements the pre-trade check sequence: every Signal the
// strategy evaluator produces passes through here before it can become an
// Order. Correlation and portfolio VaR are computed with gonum/stat and
// gonum/mat, simplified from a historical-lookback covariance estimator
// to a live ATR-volatility proxy since this engine has no multi-year
// price history store.
package risk

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/sentineltrading/execution-core/internal/indicators"
)

// z99 is the one-tailed 99% normal quantile used for parametric VaR.
const z99 = 2.326

// returnSeries converts a run of closes into simple period returns.
func returnSeries(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (closes[i]-prev)/prev)
	}
	return out
}

// dailySigma estimates a symbol's daily volatility as ATR(14)/price, the
// same annualization-free proxy the volatility_above/below strategy leaf
// uses, so a symbol's VaR contribution is consistent with how its
// strategies reason about volatility regimes.
func dailySigma(cache *indicators.Cache, symbol, timeframe string) (float64, error) {
	price, err := cache.LastClose(symbol, timeframe)
	if err != nil || price == 0 {
		return 0, err
	}
	atr, err := cache.Get(symbol, timeframe, indicators.ATR, 14, nil)
	if err != nil {
		return 0, err
	}
	return atr.Scalar / price, nil
}

// correlationMatrix computes the pairwise Pearson correlation of each
// symbol's return series against every other, using gonum/stat.Correlation
// directly: Ledoit-Wolf shrinkage needs a multi-year history store this
// engine doesn't have, so a raw sample correlation over the live candle
// window stands in for it.
func correlationMatrix(cache *indicators.Cache, symbols []string, timeframe string, lookback int) *mat.Dense {
	n := len(symbols)
	returns := make([][]float64, n)
	for i, s := range symbols {
		returns[i] = returnSeries(cache.RecentCloses(s, timeframe, lookback))
	}

	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var rho float64
			switch {
			case i == j:
				rho = 1
			case len(returns[i]) < 2 || len(returns[j]) < 2 || len(returns[i]) != len(returns[j]):
				rho = 0
			default:
				rho = stat.Correlation(returns[i], returns[j], nil)
				if math.IsNaN(rho) {
					rho = 0
				}
			}
			data[i*n+j] = rho
			data[j*n+i] = rho
		}
	}
	return mat.NewDense(n, n, data)
}

// maxAbsCorrelation returns the largest-magnitude correlation between
// symbol (at index target) and every other symbol in the set.
func maxAbsCorrelation(corr *mat.Dense, target int, n int) float64 {
	if n <= 1 {
		return 0
	}
	max := 0.0
	for j := 0; j < n; j++ {
		if j == target {
			continue
		}
		if v := math.Abs(corr.At(target, j)); v > max {
			max = v
		}
	}
	return max
}

// portfolioVaR aggregates per-symbol dollar VaR contributions through the
// correlation matrix: v_i = position_value_i * sigma_i * z99 is each
// symbol's standalone VaR; the portfolio total is sqrt(v^T R v), a
// mat.Dense-based quadratic form over a covariance-by-correlation
// reconstruction.
func portfolioVaR(corr *mat.Dense, standaloneVaR []float64) float64 {
	n := len(standaloneVaR)
	if n == 0 {
		return 0
	}
	v := mat.NewVecDense(n, standaloneVaR)
	tmp := mat.NewVecDense(n, nil)
	tmp.MulVec(corr, v)
	sum := mat.Dot(v, tmp)
	if sum <= 0 {
		return 0
	}
	return math.Sqrt(sum)
}
