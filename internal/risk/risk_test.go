package risk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/sentineltrading/execution-core/internal/domain"
	"github.com/sentineltrading/execution-core/internal/indicators"
)

func feedCandles(cache *indicators.Cache, symbol string, closes []float64) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		_ = cache.OnCandle(domain.Candle{
			Symbol: symbol, Timeframe: "1d",
			OpenTime: base.AddDate(0, 0, i),
			Open: c, High: c * 1.01, Low: c * 0.99, Close: c, Volume: 1000,
		})
	}
}

func TestCorrelationMatrixPerfectlyCorrelatedSeries(t *testing.T) {
	cache := indicators.New(nil, zerolog.Nop())
	closes := []float64{100, 102, 101, 105, 108, 107, 110}
	feedCandles(cache, "AAA", closes)
	feedCandles(cache, "BBB", closes) // identical series: correlation ~1

	corr := correlationMatrix(cache, []string{"AAA", "BBB"}, "1d", 30)
	assert.InDelta(t, 1.0, corr.At(0, 1), 1e-6)
	assert.Equal(t, 1.0, corr.At(0, 0))
}

func TestCorrelationMatrixUncorrelatedDefaultsToZeroWithoutData(t *testing.T) {
	cache := indicators.New(nil, zerolog.Nop())
	corr := correlationMatrix(cache, []string{"AAA", "BBB"}, "1d", 30)
	assert.Equal(t, 0.0, corr.At(0, 1))
}

func TestMaxAbsCorrelationIgnoresSelf(t *testing.T) {
	cache := indicators.New(nil, zerolog.Nop())
	closes := []float64{100, 102, 101, 105, 108}
	feedCandles(cache, "AAA", closes)
	feedCandles(cache, "BBB", closes)
	corr := correlationMatrix(cache, []string{"AAA", "BBB"}, "1d", 30)

	assert.InDelta(t, 1.0, maxAbsCorrelation(corr, 0, 2), 1e-6)
}

func TestDailySigmaUsesATROverPrice(t *testing.T) {
	cache := indicators.New(nil, zerolog.Nop())
	closes := []float64{100, 101, 99, 102, 98, 103, 97, 104, 96, 105, 95, 106, 94, 107, 93}
	feedCandles(cache, "AAA", closes)

	sigma, err := dailySigma(cache, "AAA", "1d")
	require.NoError(t, err)
	assert.Greater(t, sigma, 0.0)
}

func TestPortfolioVaRSingleSymbolEqualsStandalone(t *testing.T) {
	cache := indicators.New(nil, zerolog.Nop())
	corr := correlationMatrix(cache, []string{"AAA"}, "1d", 30)
	v := portfolioVaR(corr, []float64{50})
	assert.InDelta(t, 50, v, 1e-9)
}

func TestPortfolioVaRGrowsWithCorrelation(t *testing.T) {
	cache := indicators.New(nil, zerolog.Nop())
	closes := []float64{100, 102, 101, 105, 108, 107, 110, 112, 111, 115}
	feedCandles(cache, "AAA", closes)
	feedCandles(cache, "BBB", closes)
	corrHigh := correlationMatrix(cache, []string{"AAA", "BBB"}, "1d", 30)

	zeroCorr := mat.NewDense(2, 2, []float64{1, 0, 0, 1})

	standalone := []float64{50, 50}
	vHigh := portfolioVaR(corrHigh, standalone)
	vZero := portfolioVaR(zeroCorr, standalone)

	assert.Greater(t, vHigh, vZero)
}
