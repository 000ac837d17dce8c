package domain

import "fmt"

// Error is the stable, user-facing rejection shape: every rejected order
// or signal carries a code, a message, and whether retrying might succeed.
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a domain error with the given stable code.
func NewError(code, message string, retryable bool) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable}
}

// Known rejection codes referenced by the risk pipeline, order book, and
// yield engine. Keeping them as constants rather than ad hoc strings at
// each call site makes the taxonomy greppable.
const (
	ErrBrakeActive          = "brake_active"
	ErrBotNotEnabled        = "bot_not_enabled"
	ErrDailyCapReached      = "daily_cap_reached"
	ErrAssetNotActive       = "asset_not_active"
	ErrComplianceDenied     = "compliance_denied"
	ErrDuplicatePosition    = "duplicate_position"
	ErrCorrelationCapped    = "correlation_cap"
	ErrVaRCapped            = "var_cap"
	ErrBelowMinimum         = "below_minimum"
	ErrInsufficientLiquidity = "insufficient_liquidity"
	ErrUnknownSymbol        = "unknown_symbol"
	ErrUnknownStrategy      = "unknown_strategy"
	ErrUnknownBot           = "unknown_bot"
	ErrUnknownProvider      = "unknown_provider"
	ErrNoProviderAvailable  = "no_provider_available"
	ErrStaleIndicator       = "stale"
	ErrNoYield              = "no_yield"
	ErrDuplicateSignal      = "duplicate_signal" // informational: idempotent replay, not a rejection
	ErrOrderNotFound        = "order_not_found"
)
