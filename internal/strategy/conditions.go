package strategy

import (
	"strconv"
	"time"

	"github.com/sentineltrading/execution-core/internal/domain"
	"github.com/sentineltrading/execution-core/internal/indicators"
)

// evalContext carries everything a leaf condition needs to resolve itself
// for one (bot, symbol, timeframe, tick) evaluation.
type evalContext struct {
	cache      *indicators.Cache
	classifier *regimeClassifier
	crosses    *crossTracker

	symbol    string
	timeframe string
	ts        time.Time

	bot      *domain.Bot
	botState *domain.BotState
}

// leafStat tallies how many leaves resolved with real data ("true") versus
// how many defaulted (data unavailable, treated as false) across one tree
// walk, the input to the signal's depth_match confidence term.
type leafStat struct {
	trueCount    int
	defaultCount int
	total        int
}

// evaluateTree walks a condition tree, short-circuiting AND/OR groups, and
// accumulates leaf statistics for depth_match. Returns the tree's boolean
// result.
func evaluateTree(ctx *evalContext, cond domain.Condition, stat *leafStat) bool {
	if cond.Kind == domain.ConditionGroup {
		return evaluateGroup(ctx, cond.Group, stat)
	}
	ok, defaulted := evaluateLeaf(ctx, cond)
	stat.total++
	if defaulted {
		stat.defaultCount++
	} else if ok {
		stat.trueCount++
	}
	return ok
}

func evaluateGroup(ctx *evalContext, g *domain.GroupParams, stat *leafStat) bool {
	if g == nil || len(g.Children) == 0 {
		return false
	}
	switch g.Logic {
	case domain.LogicOr:
		for _, child := range g.Children {
			if evaluateTree(ctx, child, stat) {
				return true
			}
		}
		return false
	default: // domain.LogicAnd
		for _, child := range g.Children {
			if !evaluateTree(ctx, child, stat) {
				return false
			}
		}
		return true
	}
}

// evaluateLeaf resolves one leaf condition. The second return value is
// true when the leaf could not be evaluated against real data (indicator
// not ready, stale series, missing knowledge-base row) and was therefore
// defaulted to false rather than genuinely failing the comparison.
func evaluateLeaf(ctx *evalContext, cond domain.Condition) (result bool, defaulted bool) {
	switch cond.Kind {
	case domain.ConditionPriceAbove, domain.ConditionPriceBelow:
		return ctx.priceCompare(cond.PriceIndicator, cond.Kind == domain.ConditionPriceAbove)

	case domain.ConditionPriceCrossesAbove, domain.ConditionPriceCrossesBelow:
		return ctx.priceCross(cond.PriceIndicator, cond.Kind == domain.ConditionPriceCrossesAbove)

	case domain.ConditionIndicatorAbove, domain.ConditionIndicatorBelow:
		return ctx.indicatorCompare(cond.IndicatorValue, cond.Kind == domain.ConditionIndicatorAbove)

	case domain.ConditionIndicatorCrossAbove, domain.ConditionIndicatorCrossBelow:
		return ctx.indicatorCross(cond.IndicatorPair, cond.Kind == domain.ConditionIndicatorCrossAbove)

	case domain.ConditionVolumeSpike:
		return ctx.volumeSpike(cond.VolumeSpike)

	case domain.ConditionTimeOfDay:
		return ctx.timeOfDay(cond.TimeWindow), false

	case domain.ConditionDayOfWeek:
		return ctx.dayOfWeek(cond.DayOfWeek), false

	case domain.ConditionRegimeIs:
		return ctx.regimeIs(cond.Regime)

	case domain.ConditionVolatilityAbove, domain.ConditionVolatilityBelow:
		return ctx.volatilityCompare(cond.Threshold, cond.Kind == domain.ConditionVolatilityAbove)

	case domain.ConditionDrawdownExceeds:
		return ctx.botState.Drawdown() > cond.Threshold.Value, false

	case domain.ConditionProfitTargetHit:
		target, _ := ctx.bot.Risk.TargetDailyProfit.Float64()
		pnl, _ := ctx.botState.DailyPnL.Float64()
		return target > 0 && pnl >= target, false

	case domain.ConditionConsecutiveLosses:
		return float64(ctx.botState.ConsecutiveLosses) >= cond.Threshold.Value, false

	case domain.ConditionConsecutiveWins:
		return float64(ctx.botState.ConsecutiveWins) >= cond.Threshold.Value, false

	default:
		return false, true
	}
}

func (ctx *evalContext) seriesValue(ref *domain.IndicatorRef) (float64, bool) {
	v, err := ctx.cache.Get(ctx.symbol, ctx.timeframe, indicators.Indicator(ref.Indicator), ref.Period, nil)
	if err != nil {
		return 0, false
	}
	return v.Scalar, true
}

func (ctx *evalContext) priceCompare(ref *domain.IndicatorRef, above bool) (bool, bool) {
	if ref == nil {
		return false, true
	}
	close, err := ctx.cache.LastClose(ctx.symbol, ctx.timeframe)
	if err != nil {
		return false, true
	}
	indicatorVal, ok := ctx.seriesValue(ref)
	if !ok {
		return false, true
	}
	if above {
		return close > indicatorVal, false
	}
	return close < indicatorVal, false
}

func (ctx *evalContext) priceCross(ref *domain.IndicatorRef, above bool) (bool, bool) {
	if ref == nil {
		return false, true
	}
	close, err := ctx.cache.LastClose(ctx.symbol, ctx.timeframe)
	if err != nil {
		return false, true
	}
	indicatorVal, ok := ctx.seriesValue(ref)
	if !ok {
		return false, true
	}
	nowAbove := close > indicatorVal
	key := "price:" + ctx.symbol + ":" + ctx.timeframe + ":" + ref.Indicator + ":" + strconv.Itoa(ref.Period)
	crossed := ctx.crosses.crossed(key, nowAbove, above)
	return crossed, false
}

func (ctx *evalContext) indicatorCompare(p *domain.IndicatorValueParams, above bool) (bool, bool) {
	if p == nil {
		return false, true
	}
	v, ok := ctx.seriesValue(&p.IndicatorRef)
	if !ok {
		return false, true
	}
	if above {
		return v > p.Value, false
	}
	return v < p.Value, false
}

func (ctx *evalContext) indicatorCross(p *domain.IndicatorPairParams, above bool) (bool, bool) {
	if p == nil {
		return false, true
	}
	a, okA := ctx.seriesValue(&p.A)
	b, okB := ctx.seriesValue(&p.B)
	if !okA || !okB {
		return false, true
	}
	nowAbove := a > b
	key := "pair:" + ctx.symbol + ":" + ctx.timeframe + ":" + p.A.Indicator + strconv.Itoa(p.A.Period) + ":" + p.B.Indicator + strconv.Itoa(p.B.Period)
	crossed := ctx.crosses.crossed(key, nowAbove, above)
	return crossed, false
}

func (ctx *evalContext) volumeSpike(p *domain.VolumeSpikeParams) (bool, bool) {
	if p == nil {
		return false, true
	}
	avg, latest, err := ctx.cache.VolumeSMA(ctx.symbol, ctx.timeframe, 20)
	if err != nil {
		return false, true
	}
	return latest >= p.Factor*avg, false
}

func (ctx *evalContext) timeOfDay(p *domain.TimeWindowParams) bool {
	if p == nil {
		return false
	}
	start, okS := parseHHMM(p.Start)
	end, okE := parseHHMM(p.End)
	if !okS || !okE {
		return false
	}
	cur := ctx.ts.UTC().Hour()*60 + ctx.ts.UTC().Minute()
	if start <= end {
		return cur >= start && cur <= end
	}
	// window wraps midnight
	return cur >= start || cur <= end
}

func (ctx *evalContext) dayOfWeek(p *domain.DayOfWeekParams) bool {
	if p == nil {
		return false
	}
	today := ctx.ts.UTC().Weekday()
	for _, d := range p.Days {
		if d == today {
			return true
		}
	}
	return false
}

func (ctx *evalContext) regimeIs(p *domain.RegimeParams) (bool, bool) {
	if p == nil {
		return false, true
	}
	closes, atrOverPrice, ok := ctx.regimeInputs()
	if !ok {
		return false, true
	}
	tag := ctx.classifier.classify(closes, atrOverPrice)
	return string(tag) == p.Tag, false
}

func (ctx *evalContext) volatilityCompare(p *domain.ThresholdParams, above bool) (bool, bool) {
	if p == nil {
		return false, true
	}
	_, atrOverPrice, ok := ctx.regimeInputs()
	if !ok {
		return false, true
	}
	if above {
		return atrOverPrice > p.Value, false
	}
	return atrOverPrice < p.Value, false
}

// regimeInputs gathers the ATR(14)/price ratio and a recent close window,
// the two ingredients the regime classifier and volatility leaves share.
func (ctx *evalContext) regimeInputs() (closes []float64, atrOverPrice float64, ok bool) {
	close, err := ctx.cache.LastClose(ctx.symbol, ctx.timeframe)
	if err != nil || close == 0 {
		return nil, 0, false
	}
	atrVal, err := ctx.cache.Get(ctx.symbol, ctx.timeframe, indicators.ATR, 14, nil)
	if err != nil {
		return nil, 0, false
	}
	return ctx.cache.RecentCloses(ctx.symbol, ctx.timeframe, 20), atrVal.Scalar / close, true
}

// crossTracker remembers the previous tick's "is A above B" state per
// condition signature, since a cross is only true on the tick where that
// state flips the requested direction.
type crossTracker struct {
	prev map[string]bool
	seen map[string]bool
}

func newCrossTracker() *crossTracker {
	return &crossTracker{prev: make(map[string]bool), seen: make(map[string]bool)}
}

func (t *crossTracker) crossed(key string, nowAbove, wantAbove bool) bool {
	was, seen := t.prev[key]
	t.prev[key] = nowAbove
	t.seen[key] = true
	if !seen {
		return false
	}
	if wantAbove {
		return !was && nowAbove
	}
	return was && !nowAbove
}

func parseHHMM(s string) (int, bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, false
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

