package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineltrading/execution-core/internal/domain"
)

type fakeProvider struct {
	name string
	bid  float64
	ask  float64
	last float64
	err  error
}

func (f *fakeProvider) Name() string          { return f.name }
func (f *fakeProvider) RequestsPerMinute() int { return 6000 }

func (f *fakeProvider) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	if f.err != nil {
		return domain.Quote{}, f.err
	}
	return domain.Quote{Symbol: symbol, Provider: f.name, Bid: f.bid, Ask: f.ask, Last: f.last, Timestamp: time.Now()}, nil
}

func (f *fakeProvider) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	return []domain.Candle{{Symbol: symbol, Timeframe: timeframe, Close: f.last}}, nil
}

func TestGetQuoteUsesCache(t *testing.T) {
	calls := 0
	p := &countingProvider{fakeProvider: fakeProvider{name: "p1", bid: 10, ask: 11, last: 10.5}, calls: &calls}

	agg := New(zerolog.Nop())
	agg.RegisterProvider(p)

	q1, err := agg.GetQuote(context.Background(), "AAPL", "p1")
	require.NoError(t, err)
	q2, err := agg.GetQuote(context.Background(), "AAPL", "p1")
	require.NoError(t, err)

	assert.Equal(t, q1, q2)
	assert.Equal(t, 1, calls)
}

type countingProvider struct {
	fakeProvider
	calls *int
}

func (c *countingProvider) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	*c.calls++
	return c.fakeProvider.GetQuote(ctx, symbol)
}

func TestGetAggregatedComputesConsensus(t *testing.T) {
	agg := New(zerolog.Nop())
	agg.RegisterProvider(&fakeProvider{name: "a", bid: 10, ask: 11, last: 10.5})
	agg.RegisterProvider(&fakeProvider{name: "b", bid: 9, ask: 12, last: 10.0})

	got, err := agg.GetAggregated(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, 10.0, got.BestBid)
	assert.Equal(t, 11.0, got.BestAsk)
	assert.InDelta(t, 10.25, got.AvgLast, 1e-9)
	assert.Len(t, got.Sources, 2)
}

func TestGetAggregatedIgnoresFailingProviders(t *testing.T) {
	agg := New(zerolog.Nop())
	agg.RegisterProvider(&fakeProvider{name: "good", bid: 10, ask: 11, last: 10.5})
	agg.RegisterProvider(&fakeProvider{name: "bad", err: assert.AnError})

	got, err := agg.GetAggregated(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, got.Sources)
}

func TestGetAggregatedFailsWhenAllProvidersFail(t *testing.T) {
	agg := New(zerolog.Nop())
	agg.RegisterProvider(&fakeProvider{name: "bad", err: assert.AnError})

	_, err := agg.GetAggregated(context.Background(), "AAPL")
	require.Error(t, err)

	var domErr *domain.Error
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, domain.ErrNoProviderAvailable, domErr.Code)
}

func TestGetAggregatedNoProvidersRegistered(t *testing.T) {
	agg := New(zerolog.Nop())
	_, err := agg.GetAggregated(context.Background(), "AAPL")
	require.Error(t, err)
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	agg := New(zerolog.Nop())
	sim := NewSimulatedProvider("sim", 100, 0.01)
	agg.RegisterProvider(sim)

	received := make(chan domain.Quote, 8)
	subID, err := agg.Subscribe([]string{"AAPL"}, func(q domain.Quote) {
		received <- q
	})
	require.NoError(t, err)
	require.NotEmpty(t, subID)

	select {
	case q := <-received:
		assert.Equal(t, "AAPL", q.Symbol)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for streamed quote")
	}

	agg.Unsubscribe(subID)
}

func TestSubscribeFailsWithNoStreamProvider(t *testing.T) {
	agg := New(zerolog.Nop())
	agg.RegisterProvider(&fakeProvider{name: "p1"})

	_, err := agg.Subscribe([]string{"AAPL"}, func(domain.Quote) {})
	require.Error(t, err)
}
