package marketdata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedProviderGetCandlesDeterministic(t *testing.T) {
	p1 := NewSimulatedProvider("sim", 100, 0.01)
	p2 := NewSimulatedProvider("sim", 100, 0.01)

	c1, err := p1.GetCandles(context.Background(), "AAPL", "1m", 10)
	require.NoError(t, err)
	c2, err := p2.GetCandles(context.Background(), "AAPL", "1m", 10)
	require.NoError(t, err)

	assert.Equal(t, c1, c2)
	assert.Len(t, c1, 10)
}

func TestSimulatedProviderGetQuoteBracketsLast(t *testing.T) {
	p := NewSimulatedProvider("sim", 100, 0.01)
	q, err := p.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Less(t, q.Bid, q.Last)
	assert.Greater(t, q.Ask, q.Last)
}

func TestSimulatedProviderGetCandlesLimitClamped(t *testing.T) {
	p := NewSimulatedProvider("sim", 50, 0.02)
	candles, err := p.GetCandles(context.Background(), "MSFT", "1h", 10000)
	require.NoError(t, err)
	assert.Len(t, candles, 500)
}
