// Package knowledge maintains per-pattern running trade outcome statistics
// that the strategy evaluator consults to scale signal confidence.
// Updates arrive only through RecordOutcome, and no engine component
// calls it: neither the ledger nor the order book feeds closed trades in,
// so in a running engine every pattern reads as neutral (modifier 1.0).
// Reads come from the evaluator once per tick via a snapshot, so a
// concurrent update can never race a tick's confidence computation.
package knowledge

import (
	"math"
	"sync"

	"github.com/sentineltrading/execution-core/internal/domain"
)

// Base is the concurrent-safe store of pattern -> running stats.
type Base struct {
	mu       sync.RWMutex
	patterns map[string]*domain.KnowledgePattern
}

// New creates an empty knowledge base.
func New() *Base {
	return &Base{patterns: make(map[string]*domain.KnowledgePattern)}
}

// RecordOutcome folds one closed trade's P&L percentage into its pattern's
// running statistics using Welford's online algorithm: a single pass,
// numerically stable mean/variance update with O(1) memory, the natural
// fit for a value stream with no matrix/vector structure for gonum.stat
// to exploit (see DESIGN.md).
func (b *Base) RecordOutcome(patternKey string, pnlPct float64) {
	if patternKey == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.patterns[patternKey]
	if !ok {
		p = &domain.KnowledgePattern{PatternKey: patternKey, ConfidenceModifier: 1.0}
		b.patterns[patternKey] = p
	}

	if pnlPct >= 0 {
		p.Wins++
	} else {
		p.Losses++
	}

	n := float64(p.Outcomes())
	delta := pnlPct - p.Mean
	p.Mean += delta / n
	delta2 := pnlPct - p.Mean
	p.M2 += delta * delta2

	p.ConfidenceModifier = confidenceModifier(p.Mean)
}

// confidenceModifier clips 1 + mean_pct/100 to [0.5, 1.5].
func confidenceModifier(meanPct float64) float64 {
	m := 1 + meanPct/100
	return math.Max(0.5, math.Min(1.5, m))
}

// Snapshot returns a point-in-time copy of a pattern's stats, or a neutral
// pattern (modifier 1.0, no outcomes) if the key has never been recorded.
// The evaluator calls this once per tick and holds the result for the
// duration of that tick's evaluation, so a concurrent update never
// changes the modifier mid-evaluation.
func (b *Base) Snapshot(patternKey string) domain.KnowledgePattern {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if p, ok := b.patterns[patternKey]; ok {
		return *p
	}
	return domain.KnowledgePattern{PatternKey: patternKey, ConfidenceModifier: 1.0}
}

// Variance returns the current population variance of a pattern's P&L%
// distribution, mostly useful for diagnostics/backtest reporting.
func (b *Base) Variance(patternKey string) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, ok := b.patterns[patternKey]
	if !ok || p.Outcomes() < 2 {
		return 0
	}
	return p.M2 / float64(p.Outcomes())
}
