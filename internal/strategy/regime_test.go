package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegimeClassifierVolatileOverridesTrend(t *testing.T) {
	c := newRegimeClassifier()
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i) // strong uptrend
	}
	assert.Equal(t, RegimeVolatile, c.classify(closes, 0.05))
}

func TestRegimeClassifierTrendingUp(t *testing.T) {
	c := newRegimeClassifier()
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)*2
	}
	assert.Equal(t, RegimeTrendingUp, c.classify(closes, 0.001))
}

func TestRegimeClassifierTrendingDown(t *testing.T) {
	c := newRegimeClassifier()
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 200 - float64(i)*2
	}
	assert.Equal(t, RegimeTrendingDown, c.classify(closes, 0.001))
}

func TestRegimeClassifierRangingOnFlatSeries(t *testing.T) {
	c := newRegimeClassifier()
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}
	assert.Equal(t, RegimeRanging, c.classify(closes, 0.001))
}

func TestRegimeClassifierRangingOnShortSeries(t *testing.T) {
	c := newRegimeClassifier()
	assert.Equal(t, RegimeRanging, c.classify([]float64{100}, 0.001))
}
