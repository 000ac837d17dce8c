package yield

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sentineltrading/execution-core/internal/domain"
	"github.com/sentineltrading/execution-core/internal/eventbus"
	"github.com/sentineltrading/execution-core/internal/ledger"
)

// AssetRegistry resolves which assets are due for a distribution and
// advances their schedule once one runs.
type AssetRegistry interface {
	DueForDistribution(now time.Time) []domain.Asset
	MarkDistributed(assetID string, next time.Time) error
}

// OwnershipStore is the write side of holder accounting the distribution
// scan needs: enumerating holders, crediting pending yield or minted
// tokens, and absorbing the floating-point remainder into the issuer
// account.
type OwnershipStore interface {
	HoldersWithTokens(assetID string) []domain.Position
	TotalSupply(assetID string) decimal.Decimal
	CreditTokens(userID, assetID string, tokens, costBasisDelta decimal.Decimal) error
	CreditPendingYield(userID, assetID string, amount decimal.Decimal) error
	ClearPendingYield(userID, assetID string) (decimal.Decimal, error)
	AbsorbDrift(assetID string, amount decimal.Decimal) error
}

// Engine runs the hourly distribution scan and serves on-demand claims.
type Engine struct {
	cron      *cron.Cron
	log       zerolog.Logger
	assets    AssetRegistry
	ownership OwnershipStore
	ledger    *ledger.Ledger
	bus       *eventbus.Bus
}

// New creates an Engine. Call Start to register the hourly scan.
func New(assets AssetRegistry, ownership OwnershipStore, led *ledger.Ledger, bus *eventbus.Bus, log zerolog.Logger) *Engine {
	return &Engine{
		cron:      cron.New(),
		log:       log.With().Str("component", "yield_engine").Logger(),
		assets:    assets,
		ownership: ownership,
		ledger:    led,
		bus:       bus,
	}
}

// Start registers the hourly distribution scan and starts the cron
// runner.
func (e *Engine) Start() error {
	if _, err := e.cron.AddFunc("@hourly", func() { e.Scan(context.Background()) }); err != nil {
		return err
	}
	e.cron.Start()
	return nil
}

// Stop drains any in-flight scan and stops the cron runner.
func (e *Engine) Stop() {
	ctx := e.cron.Stop()
	<-ctx.Done()
}

// Scan runs one distribution pass immediately, outside the cron
// schedule. Production code relies on the hourly registration; tests call
// this directly.
func (e *Engine) Scan(ctx context.Context) {
	now := time.Now().UTC()
	for _, asset := range e.assets.DueForDistribution(now) {
		e.distribute(asset, now)
	}
}

func (e *Engine) distribute(asset domain.Asset, now time.Time) {
	periodsPerYear := asset.YieldFrequency.PeriodsPerYear()
	marketCap, _ := asset.MarketCap.Float64()
	annualYield, _ := asset.AnnualYieldRate.Float64()
	periodYield := marketCap * annualYield / periodsPerYear

	holders := e.ownership.HoldersWithTokens(asset.AssetID)
	totalSupply := e.ownership.TotalSupply(asset.AssetID)

	if totalSupply.IsPositive() {
		distributed := decimal.Zero
		for _, pos := range holders {
			ownershipPct, _ := pos.Tokens.Div(totalSupply).Float64()
			userYield := decimal.NewFromFloat(periodYield * ownershipPct)
			distributed = distributed.Add(userYield)

			if !pos.Reinvest {
				e.creditPendingYield(pos.UserID, asset.AssetID, userYield, now)
				continue
			}
			e.reinvest(asset, pos, userYield, totalSupply)
		}

		total := decimal.NewFromFloat(periodYield)
		if drift := total.Sub(distributed); !drift.IsZero() {
			if err := e.ownership.AbsorbDrift(asset.AssetID, drift); err != nil {
				e.log.Error().Err(err).Str("asset_id", asset.AssetID).Msg("absorb distribution drift failed")
			}
		}

		if err := e.ledger.Append(ledger.KindDistributionPaid, ledger.DistributionPaidPayload{
			AssetID: asset.AssetID, TotalYield: total.String(), PeriodYield: total.String(), Timestamp: now,
		}); err != nil {
			e.log.Error().Err(err).Str("asset_id", asset.AssetID).Msg("ledger append for distribution failed")
		}
		e.bus.DistributionPaid.Publish(eventbus.DistributionPaidEvent{Event: domain.DistributionEvent{
			AssetID: asset.AssetID, TotalYield: total, PeriodYield: total, Timestamp: now,
		}})
	}

	next := now.Add(periodDuration(periodsPerYear))
	if err := e.assets.MarkDistributed(asset.AssetID, next); err != nil {
		e.log.Error().Err(err).Str("asset_id", asset.AssetID).Msg("advance next distribution failed")
	}
}

// creditPendingYield credits amount to userID's pending yield and records
// a replayable YieldCredited entry; without this entry a crash before the
// balance is otherwise observed (a claim, a later distribution) would
// lose the credit on restart, since pending_yield lives only in memory.
func (e *Engine) creditPendingYield(userID, assetID string, amount decimal.Decimal, now time.Time) {
	if err := e.ownership.CreditPendingYield(userID, assetID, amount); err != nil {
		e.log.Error().Err(err).Str("asset_id", assetID).Str("user_id", userID).Msg("credit pending yield failed")
		return
	}
	if err := e.ledger.Append(ledger.KindYieldCredited, ledger.YieldCreditedPayload{
		UserID: userID, AssetID: assetID, Amount: amount.String(), Timestamp: now,
	}); err != nil {
		e.log.Error().Err(err).Str("asset_id", assetID).Str("user_id", userID).Msg("ledger append for yield credit failed")
	}
}

// reinvest synthesises a primary-market buy fill for as many tokens as
// the asset's ownership cap allows; anything above the cap is credited
// to pending_yield instead, per the resolved Open Question that
// reinvestment is bound by the same maxOwnershipPercent a regular buy is.
func (e *Engine) reinvest(asset domain.Asset, pos domain.Position, userYield, totalSupply decimal.Decimal) {
	now := time.Now().UTC()
	if asset.Price <= 0 {
		e.creditPendingYield(pos.UserID, asset.AssetID, userYield, now)
		return
	}

	tokens := userYield.Div(decimal.NewFromFloat(asset.Price))
	creditTokens := tokens

	if asset.MaxOwnershipPercent.IsPositive() {
		maxTokens := asset.MaxOwnershipPercent.Mul(totalSupply)
		allowed := maxTokens.Sub(pos.Tokens)
		if allowed.IsNegative() {
			allowed = decimal.Zero
		}
		if creditTokens.GreaterThan(allowed) {
			creditTokens = allowed
		}
	}

	if excess := tokens.Sub(creditTokens); excess.IsPositive() {
		excessValue := excess.Mul(decimal.NewFromFloat(asset.Price))
		e.creditPendingYield(pos.UserID, asset.AssetID, excessValue, now)
	}
	if !creditTokens.IsPositive() {
		return
	}

	fill := domain.Fill{
		AssetID: asset.AssetID, Side: domain.SideBuy, Qty: creditTokens, Price: asset.Price,
		Fee: decimal.Zero, Synthetic: true, Timestamp: now,
	}
	costBasisDelta := creditTokens.Mul(decimal.NewFromFloat(asset.Price))
	if err := e.ownership.CreditTokens(pos.UserID, asset.AssetID, creditTokens, costBasisDelta); err != nil {
		e.log.Error().Err(err).Str("asset_id", asset.AssetID).Str("user_id", pos.UserID).Msg("credit reinvestment tokens failed")
		return
	}
	if err := e.ledger.Append(ledger.KindOrderFilled, ledger.OrderFilledPayload{
		UserID: pos.UserID, AssetID: fill.AssetID, Side: string(fill.Side), Qty: fill.Qty.String(), Price: fill.Price,
		Fee: fill.Fee.String(), Synthetic: true, Timestamp: fill.Timestamp,
	}); err != nil {
		e.log.Error().Err(err).Str("asset_id", asset.AssetID).Str("user_id", pos.UserID).Msg("ledger append for reinvest fill failed")
	}
	e.bus.OrderFilled.Publish(eventbus.OrderFilledEvent{Fill: fill})
}

// Claim debits a holder's pending_yield to zero and records a dividend
// ledger entry; fails with domain.ErrNoYield if nothing is pending.
func (e *Engine) Claim(userID, assetID string) (decimal.Decimal, error) {
	amount, err := e.ownership.ClearPendingYield(userID, assetID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := e.ledger.Append(ledger.KindYieldClaimed, ledger.YieldClaimedPayload{
		UserID: userID, AssetID: assetID, Amount: amount.String(), Timestamp: time.Now().UTC(),
	}); err != nil {
		e.log.Error().Err(err).Str("asset_id", assetID).Str("user_id", userID).Msg("ledger append for claim failed")
	}
	return amount, nil
}

func periodDuration(periodsPerYear float64) time.Duration {
	return time.Duration(float64(365*24*time.Hour) / periodsPerYear)
}
