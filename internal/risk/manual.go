package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sentineltrading/execution-core/internal/domain"
	"github.com/sentineltrading/execution-core/internal/ledger"
)

// manualBotID namespaces a user's self-directed orders in the accounts
// and positions tables, which are keyed by bot id everywhere else in the
// codebase. A manual trader is, to the rest of the engine, a bot with no
// strategy and no scheduler cycle.
func manualBotID(userID string) string {
	return "manual:" + userID
}

// SubmitManual runs a user-initiated buy or sell through the same engine
// state, asset, and compliance checks Submit applies to scheduled bots,
// skipping the bot-specific checks (daily cap, correlation/VaR, sizing
// from account risk percentage) that only make sense for an autonomous
// strategy. qty is the caller's desired trade size directly; unlike
// Submit, SubmitManual never derives it from account balance.
func (p *Pipeline) SubmitManual(ctx context.Context, userID, assetID string, side domain.Side, orderType domain.OrderType, qty decimal.Decimal, limitPrice *float64) (*domain.Order, error) {
	if p.brake.Active() {
		return nil, domain.NewError(domain.ErrBrakeActive, "emergency brake is active", true)
	}
	if !qty.IsPositive() {
		return nil, domain.NewError(domain.ErrBelowMinimum, "quantity must be positive", false)
	}

	asset, ok := p.assets.Asset(assetID)
	if !ok {
		return nil, domain.NewError(domain.ErrUnknownSymbol, fmt.Sprintf("unknown asset %s", assetID), false)
	}
	if !asset.Active {
		return nil, domain.NewError(domain.ErrAssetNotActive, fmt.Sprintf("asset %s is not active", assetID), false)
	}
	if asset.AccreditedOnly && !p.compliance.IsAccredited(userID) {
		return nil, domain.NewError(domain.ErrComplianceDenied, "asset requires accredited status", false)
	}
	if asset.MinTrade.IsPositive() && qty.LessThan(asset.MinTrade) {
		return nil, domain.NewError(domain.ErrBelowMinimum, "quantity falls below the asset minimum trade", false)
	}

	botID := manualBotID(userID)
	signalID := uuid.NewString()
	now := time.Now().UTC()
	order := &domain.Order{
		OrderID:    signalID + ":order",
		SignalID:   signalID,
		BotID:      botID,
		AssetID:    assetID,
		Side:       side,
		Type:       orderType,
		Qty:        qty,
		LimitPrice: limitPrice,
		Status:     domain.OrderStatusOpen,
		CreatedAt:  now,
	}

	if err := p.ledger.AppendGroup(
		struct {
			Kind    ledger.EntryKind
			Payload any
		}{
			Kind: ledger.KindSignalEmitted,
			Payload: ledger.SignalEmittedPayload{
				SignalID: signalID, BotID: botID, AssetID: assetID,
				Side: string(side), Confidence: 1, Rationale: "manual order", CreatedAt: order.CreatedAt,
			},
		},
		struct {
			Kind    ledger.EntryKind
			Payload any
		}{
			Kind: ledger.KindOrderPlaced,
			Payload: ledger.OrderPlacedPayload{
				OrderID: order.OrderID, SignalID: signalID, BotID: botID, AssetID: assetID,
				Side: string(side), Type: string(orderType), Qty: qty.String(),
				LimitPrice: limitPrice, CreatedAt: order.CreatedAt,
			},
		},
	); err != nil {
		return nil, fmt.Errorf("risk: ledger append: %w", err)
	}

	p.recordOrder(signalID, order)

	if p.sink != nil {
		if err := p.sink.PlaceOrder(ctx, order); err != nil {
			return order, fmt.Errorf("risk: place order: %w", err)
		}
	}
	return order, nil
}
