package domain

import "time"

// LogicOp is the boolean combinator for a condition group.
type LogicOp string

const (
	LogicAnd LogicOp = "and"
	LogicOr  LogicOp = "or"
)

// ConditionKind names one leaf or group shape in a condition tree. Each
// kind owns exactly one non-nil params field on Condition — the "duck
// typed condition object with optional fields" from the source system is
// replaced here with a tagged union, so invalid field combinations are
// impossible to construct.
type ConditionKind string

const (
	ConditionGroup               ConditionKind = "group"
	ConditionPriceAbove          ConditionKind = "price_above"
	ConditionPriceBelow          ConditionKind = "price_below"
	ConditionPriceCrossesAbove   ConditionKind = "price_crosses_above"
	ConditionPriceCrossesBelow   ConditionKind = "price_crosses_below"
	ConditionIndicatorAbove      ConditionKind = "indicator_above"
	ConditionIndicatorBelow      ConditionKind = "indicator_below"
	ConditionIndicatorCrossAbove ConditionKind = "indicator_crosses_above"
	ConditionIndicatorCrossBelow ConditionKind = "indicator_crosses_below"
	ConditionVolumeSpike         ConditionKind = "volume_spike"
	ConditionTimeOfDay           ConditionKind = "time_of_day"
	ConditionDayOfWeek           ConditionKind = "day_of_week"
	ConditionRegimeIs            ConditionKind = "regime_is"
	ConditionVolatilityAbove     ConditionKind = "volatility_above"
	ConditionVolatilityBelow     ConditionKind = "volatility_below"
	ConditionDrawdownExceeds     ConditionKind = "drawdown_exceeds"
	ConditionProfitTargetHit     ConditionKind = "profit_target_hit"
	ConditionConsecutiveLosses   ConditionKind = "consecutive_losses"
	ConditionConsecutiveWins     ConditionKind = "consecutive_wins"
)

// GroupParams holds a group node's combinator and children.
type GroupParams struct {
	Logic    LogicOp
	Children []Condition
}

// IndicatorRef identifies one indicator series by name and period. Name
// matches an indicators.Indicator value (kept as a string here so domain
// does not import the indicators package).
type IndicatorRef struct {
	Indicator string
	Period    int
}

// IndicatorValueParams backs indicator_above/below: compare the series to
// a fixed threshold.
type IndicatorValueParams struct {
	IndicatorRef
	Value float64
}

// IndicatorPairParams backs indicator_crosses_above/below: compare two
// series against each other.
type IndicatorPairParams struct {
	A IndicatorRef
	B IndicatorRef
}

// VolumeSpikeParams backs volume_spike(factor): current volume >= factor
// x SMA(20, volume).
type VolumeSpikeParams struct {
	Factor float64
}

// TimeWindowParams backs time_of_day(start, end), both "HH:MM" in the
// engine's UTC wall clock.
type TimeWindowParams struct {
	Start string
	End   string
}

// DayOfWeekParams backs day_of_week(set).
type DayOfWeekParams struct {
	Days []time.Weekday
}

// RegimeParams backs regime_is(tag).
type RegimeParams struct {
	Tag string
}

// ThresholdParams backs the single-float leaves: volatility_above/below,
// drawdown_exceeds, profit_target_hit, consecutive_losses/wins.
type ThresholdParams struct {
	Value float64
}

// Condition is one node of a strategy's condition tree: a tagged union
// keyed by Kind, with exactly one of the params fields populated per kind.
type Condition struct {
	Kind ConditionKind

	Group          *GroupParams
	PriceIndicator *IndicatorRef
	IndicatorValue *IndicatorValueParams
	IndicatorPair  *IndicatorPairParams
	VolumeSpike    *VolumeSpikeParams
	TimeWindow     *TimeWindowParams
	DayOfWeek      *DayOfWeekParams
	Regime         *RegimeParams
	Threshold      *ThresholdParams
}

// Rule is one entry or exit rule: a condition tree plus the action it
// gates and its cooldown/cap bookkeeping keys.
type Rule struct {
	RuleID              string
	Tree                Condition
	Side                Side
	CooldownMinutes     int
	MaxExecutionsPerDay int
}

// Strategy is a declarative entry/exit rule set plus the symbols/
// timeframes it is meant to run against.
type Strategy struct {
	StrategyID string
	Name       string
	EntryRules []Rule
	ExitRules  []Rule
}

// RuleState tracks one (bot, rule) pair's cooldown timestamp and daily
// fire count, the mutable part of cooldown/cap enforcement that cannot
// live on the shared, immutable Strategy.
type RuleState struct {
	LastFiredAt time.Time
	FiresToday  int
	FireDay     string // YYYY-MM-DD, for the daily counter reset
}
