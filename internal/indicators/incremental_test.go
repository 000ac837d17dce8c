package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSMACalcNotReadyUntilWindowFull(t *testing.T) {
	c := newSMACalc(3)
	_, ready := c.Update(1)
	assert.False(t, ready)
	_, ready = c.Update(2)
	assert.False(t, ready)
	v, ready := c.Update(3)
	assert.True(t, ready)
	assert.InDelta(t, 2.0, v, 1e-9)
}

func TestSMACalcSlidesWindow(t *testing.T) {
	c := newSMACalc(2)
	c.Update(10)
	v, ready := c.Update(20)
	assert.True(t, ready)
	assert.InDelta(t, 15.0, v, 1e-9)

	v, ready = c.Update(30)
	assert.True(t, ready)
	assert.InDelta(t, 25.0, v, 1e-9)
}

func TestEMACalcSeedsFromSMA(t *testing.T) {
	c := newEMACalc(3)
	_, ready := c.Update(1)
	assert.False(t, ready)
	_, ready = c.Update(2)
	assert.False(t, ready)
	v, ready := c.Update(3)
	assert.True(t, ready)
	assert.InDelta(t, 2.0, v, 1e-9)
}

func TestRSICalcAllGainsIsHundred(t *testing.T) {
	c := newRSICalc(3)
	values := []float64{1, 2, 3, 4, 5}
	var last float64
	var ready bool
	for _, v := range values {
		last, ready = c.Update(v)
	}
	assert.True(t, ready)
	assert.Equal(t, 100.0, last)
}

func TestMACDCalcRequiresSlowWarmup(t *testing.T) {
	c := newMACDCalc()
	for i := 0; i < 25; i++ {
		_, ready := c.Update(float64(100 + i))
		assert.False(t, ready)
	}
	// enough candles for the 26-period slow EMA plus the 9-period signal seed
	var ready bool
	for i := 0; i < 40; i++ {
		_, ready = c.Update(float64(100 + i))
	}
	assert.True(t, ready)
}

func TestATRCalcWarmsUpThenSmooths(t *testing.T) {
	c := newATRCalc(2)
	_, ready := c.Update(10, 8, 9)
	assert.False(t, ready)
	v, ready := c.Update(11, 9, 10)
	assert.True(t, ready)
	assert.Greater(t, v, 0.0)
}
