package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordOutcomeUpdatesMeanAndModifier(t *testing.T) {
	b := New()

	b.RecordOutcome("RSI_OVERSOLD_BOUNCE", 10)
	b.RecordOutcome("RSI_OVERSOLD_BOUNCE", 20)

	snap := b.Snapshot("RSI_OVERSOLD_BOUNCE")
	assert.Equal(t, 2, snap.Wins)
	assert.Equal(t, 0, snap.Losses)
	assert.InDelta(t, 15.0, snap.Mean, 0.001)
	assert.InDelta(t, 1.15, snap.ConfidenceModifier, 0.001)
}

func TestConfidenceModifierClipped(t *testing.T) {
	b := New()
	for i := 0; i < 5; i++ {
		b.RecordOutcome("BIG_WINNER", 200)
	}
	snap := b.Snapshot("BIG_WINNER")
	assert.Equal(t, 1.5, snap.ConfidenceModifier)

	b2 := New()
	for i := 0; i < 5; i++ {
		b2.RecordOutcome("BIG_LOSER", -200)
	}
	snap2 := b2.Snapshot("BIG_LOSER")
	assert.Equal(t, 0.5, snap2.ConfidenceModifier)
}

func TestSnapshotUnknownPatternIsNeutral(t *testing.T) {
	b := New()
	snap := b.Snapshot("NEVER_SEEN")
	assert.Equal(t, 1.0, snap.ConfidenceModifier)
	assert.Equal(t, 0, snap.Outcomes())
}

func TestRecordOutcomeTracksLosses(t *testing.T) {
	b := New()
	b.RecordOutcome("MACD_BEARISH", -5)
	snap := b.Snapshot("MACD_BEARISH")
	assert.Equal(t, 0, snap.Wins)
	assert.Equal(t, 1, snap.Losses)
}
