package repositories

import (
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sentineltrading/execution-core/internal/book"
	"github.com/sentineltrading/execution-core/internal/database"
	"github.com/sentineltrading/execution-core/internal/domain"
)

const platformFeeRate = 0.10 // 10% of gross realised profit at position close

// platformHolderID is the synthetic position row absorbed distribution
// rounding drift flows into, one per asset.
const platformHolderID = "platform"

type positionKey struct{ holderID, assetID string }

// Store is the single persistence surface the engine aggregate hands to
// the risk pipeline, order book, and yield engine. It satisfies
// risk.AssetStore, risk.PositionStore, risk.AccountStore,
// risk.ComplianceChecker, book.PositionBook, book.AssetStats,
// yield.AssetRegistry, and yield.OwnershipStore by structural typing —
// none of those packages import this one.
//
// Assets, accounts, and users are reference data and live in the
// universe SQLite database. Positions are not: per the replay invariant
// the ledger's own doc comment states, they are a pure in-memory cache
// rebuilt from the ledger at startup (internal/reliability's job) and
// mutated here thereafter — never read back from disk directly.
type Store struct {
	base

	mu        sync.RWMutex
	positions map[positionKey]domain.Position
}

// New wraps db's connection. db must already have the universe schema
// migrated (db.Migrate with Config.Name == "universe"). Positions start
// empty; internal/reliability rebuilds them through RestoreFill and
// RestorePendingYield before serving traffic when resuming from a prior run.
func New(db *database.DB, log zerolog.Logger) *Store {
	return &Store{
		base:      newBase(db.Conn(), log.With().Str("component", "universe_store").Logger()),
		positions: make(map[positionKey]domain.Position),
	}
}

// --- risk.AssetStore ---

func (s *Store) Asset(assetID string) (domain.Asset, bool) {
	row := s.db.QueryRow(`SELECT asset_id, symbol, accredited_only, active, decimals, price, nav,
		total_supply, min_invest, min_trade, annual_yield_rate, yield_frequency, next_distribution_at,
		market_cap, volume_24h, ath, atl, holders, fee_bps_override, max_ownership_percent
		FROM assets WHERE asset_id = ?`, assetID)
	asset, err := scanAssetFrom(row)
	if err != nil {
		return domain.Asset{}, false
	}
	return asset, true
}

// ListActiveAssets returns every active asset, for the REST surface's
// asset listing endpoint. Filtering (by yield, price, accreditation) is
// left to the caller rather than pushed into SQL: the set is small enough
// that an admin-facing listing endpoint gains nothing from pagination or
// a query builder.
func (s *Store) ListActiveAssets() []domain.Asset {
	rows, err := s.db.Query(`SELECT asset_id, symbol, accredited_only, active, decimals, price, nav,
		total_supply, min_invest, min_trade, annual_yield_rate, yield_frequency, next_distribution_at,
		market_cap, volume_24h, ath, atl, holders, fee_bps_override, max_ownership_percent
		FROM assets WHERE active = 1`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []domain.Asset
	for rows.Next() {
		a, err := scanAssetFrom(rows)
		if err != nil {
			continue
		}
		out = append(out, a)
	}
	return out
}

// --- risk.PositionStore ---

func (s *Store) OpenPosition(botID, assetID string) (domain.Position, bool) {
	pos, ok := s.loadPosition(botID, assetID)
	if !ok || !pos.Tokens.IsPositive() {
		return domain.Position{}, false
	}
	return pos, true
}

func (s *Store) OpenPositions(botID string) []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Position
	for k, pos := range s.positions {
		if k.holderID == botID && pos.Tokens.IsPositive() {
			out = append(out, pos)
		}
	}
	return out
}

// --- risk.AccountStore ---

func (s *Store) Balance(botID string) decimal.Decimal {
	var balance string
	err := s.db.QueryRow(`SELECT balance FROM accounts WHERE bot_id = ?`, botID).Scan(&balance)
	if err != nil {
		return decimal.Zero
	}
	d, _ := decimal.NewFromString(balance)
	return d
}

// --- risk.ComplianceChecker ---

func (s *Store) IsAccredited(userID string) bool {
	var accredited bool
	err := s.db.QueryRow(`SELECT accredited FROM users WHERE user_id = ?`, userID).Scan(&accredited)
	if err != nil {
		return false
	}
	return accredited
}

func (s *Store) isPlatformFeeExempt(userID string) bool {
	var exempt bool
	err := s.db.QueryRow(`SELECT platform_fee_exempt FROM users WHERE user_id = ?`, userID).Scan(&exempt)
	if err != nil {
		return false
	}
	return exempt
}

// --- book.PositionBook ---

// ApplyFill updates holderID's position for a real (non-synthetic) trade
// fill and reports what happened so the book can decide which ledger
// rows accompany it. Platform fee is 10% of gross realised profit at the
// moment a position fully closes, zero on a loss, per the resolved "fee
// during loss periods" question — whitelisted accounts pay none.
func (s *Store) ApplyFill(botID string, fill domain.Fill) (book.PositionEffect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := positionKey{botID, fill.AssetID}
	pos := s.positions[key]
	if pos.AssetID == "" {
		pos = domain.Position{UserID: botID, AssetID: fill.AssetID}
	}
	wasOpen := pos.Tokens.IsPositive()
	effect := book.PositionEffect{}
	price := decimal.NewFromFloat(fill.Price)

	switch fill.Side {
	case domain.SideBuy:
		if !wasOpen {
			effect.Opened = true
		}
		pos.CostBasis = pos.CostBasis.Add(fill.Qty.Mul(price))
		pos.Tokens = pos.Tokens.Add(fill.Qty)
	case domain.SideSell:
		sellQty := decimal.Min(fill.Qty, pos.Tokens)
		avgCost := decimal.Zero
		if pos.Tokens.IsPositive() {
			avgCost = pos.CostBasis.Div(pos.Tokens)
		}
		costOfSold := sellQty.Mul(avgCost)
		realised := sellQty.Mul(price).Sub(costOfSold)
		pos.RealisedPnL = pos.RealisedPnL.Add(realised)
		pos.CostBasis = pos.CostBasis.Sub(costOfSold)
		pos.Tokens = pos.Tokens.Sub(sellQty)
		if pos.Tokens.IsZero() {
			effect.Closed = true
			effect.RealisedPnL = pos.RealisedPnL
			if realised.IsPositive() && !s.isPlatformFeeExempt(s.ownerOf(botID)) {
				effect.PlatformFee = realised.Mul(decimal.NewFromFloat(platformFeeRate))
			}
		}
	}
	pos.LastUpdated = time.Now().UTC()
	effect.Tokens = pos.Tokens
	effect.CostBasis = pos.CostBasis
	s.positions[key] = pos
	return effect, nil
}

func (s *Store) ownerOf(botID string) string {
	var ownerID string
	if err := s.db.QueryRow(`SELECT owner_id FROM accounts WHERE bot_id = ?`, botID).Scan(&ownerID); err != nil {
		return ""
	}
	return ownerID
}

// --- book.AssetStats ---

func (s *Store) ApplyTrade(assetID string, price float64, qty decimal.Decimal, side domain.Side) {
	asset, ok := s.Asset(assetID)
	if !ok {
		return
	}
	notional := qty.Mul(decimal.NewFromFloat(price))
	volume := asset.Volume24h.Add(notional)
	ath := asset.ATH
	if price > ath {
		ath = price
	}
	atl := asset.ATL
	if atl == 0 || price < atl {
		atl = price
	}
	_, _ = s.db.Exec(`UPDATE assets SET price = ?, volume_24h = ?, ath = ?, atl = ? WHERE asset_id = ?`,
		price, volume.String(), ath, atl, assetID)
}

// PositionsForHolder returns every position (open or merely holding
// pending yield) for holderID, for the REST surface's portfolio
// endpoint. Unlike OpenPositions/HoldersWithTokens it does not require
// Tokens to be positive, since a fully-sold position can still carry
// unclaimed yield.
func (s *Store) PositionsForHolder(holderID string) []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Position
	for k, pos := range s.positions {
		if k.holderID == holderID && (pos.Tokens.IsPositive() || pos.PendingYield.IsPositive()) {
			out = append(out, pos)
		}
	}
	return out
}

// --- yield.AssetRegistry ---

func (s *Store) DueForDistribution(now time.Time) []domain.Asset {
	rows, err := s.db.Query(`SELECT asset_id, symbol, accredited_only, active, decimals, price, nav,
		total_supply, min_invest, min_trade, annual_yield_rate, yield_frequency, next_distribution_at,
		market_cap, volume_24h, ath, atl, holders, fee_bps_override, max_ownership_percent
		FROM assets WHERE next_distribution_at != '' AND next_distribution_at <= ?`, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []domain.Asset
	for rows.Next() {
		a, err := scanAssetFrom(rows)
		if err != nil {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (s *Store) MarkDistributed(assetID string, next time.Time) error {
	_, err := s.db.Exec(`UPDATE assets SET next_distribution_at = ? WHERE asset_id = ?`, next.UTC().Format(time.RFC3339), assetID)
	return err
}

// --- yield.OwnershipStore ---

func (s *Store) HoldersWithTokens(assetID string) []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Position
	for k, pos := range s.positions {
		if k.assetID == assetID && pos.Tokens.IsPositive() {
			out = append(out, pos)
		}
	}
	return out
}

func (s *Store) TotalSupply(assetID string) decimal.Decimal {
	asset, ok := s.Asset(assetID)
	if !ok {
		return decimal.Zero
	}
	return asset.TotalSupply
}

func (s *Store) CreditTokens(userID, assetID string, tokens, costBasisDelta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := positionKey{userID, assetID}
	pos := s.positions[key]
	if pos.AssetID == "" {
		pos = domain.Position{UserID: userID, AssetID: assetID}
	}
	pos.Tokens = pos.Tokens.Add(tokens)
	pos.CostBasis = pos.CostBasis.Add(costBasisDelta)
	pos.LastUpdated = time.Now().UTC()
	s.positions[key] = pos
	return nil
}

func (s *Store) CreditPendingYield(userID, assetID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := positionKey{userID, assetID}
	pos := s.positions[key]
	if pos.AssetID == "" {
		pos = domain.Position{UserID: userID, AssetID: assetID}
	}
	pos.PendingYield = pos.PendingYield.Add(amount)
	pos.LastUpdated = time.Now().UTC()
	s.positions[key] = pos
	return nil
}

func (s *Store) ClearPendingYield(userID, assetID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := positionKey{userID, assetID}
	pos, ok := s.positions[key]
	if !ok || !pos.PendingYield.IsPositive() {
		return decimal.Zero, domain.NewError(domain.ErrNoYield, "no pending yield to claim", false)
	}
	amount := pos.PendingYield
	pos.PendingYield = decimal.Zero
	pos.LastUpdated = time.Now().UTC()
	s.positions[key] = pos
	return amount, nil
}

func (s *Store) AbsorbDrift(assetID string, amount decimal.Decimal) error {
	return s.CreditPendingYield(platformHolderID, assetID, amount)
}

// --- reconciliation (internal/reliability drives this at startup) ---

// RestoreFill replays a durable OrderFilled entry back onto the position
// cache. It reuses ApplyFill's exact position math (both a book-settled
// fill and a synthetic reinvestment fill are, from the position's point
// of view, just a buy or sell at a price) without repeating the live
// path's other side effects (ledger append, platform fee computation
// already captured by the original entries), since the caller is
// rebuilding state the ledger already recorded once.
func (s *Store) RestoreFill(holderID string, fill domain.Fill) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := positionKey{holderID, fill.AssetID}
	pos := s.positions[key]
	if pos.AssetID == "" {
		pos = domain.Position{UserID: holderID, AssetID: fill.AssetID}
	}
	price := decimal.NewFromFloat(fill.Price)
	switch fill.Side {
	case domain.SideBuy:
		pos.CostBasis = pos.CostBasis.Add(fill.Qty.Mul(price))
		pos.Tokens = pos.Tokens.Add(fill.Qty)
	case domain.SideSell:
		sellQty := decimal.Min(fill.Qty, pos.Tokens)
		avgCost := decimal.Zero
		if pos.Tokens.IsPositive() {
			avgCost = pos.CostBasis.Div(pos.Tokens)
		}
		costOfSold := sellQty.Mul(avgCost)
		pos.RealisedPnL = pos.RealisedPnL.Add(sellQty.Mul(price).Sub(costOfSold))
		pos.CostBasis = pos.CostBasis.Sub(costOfSold)
		pos.Tokens = pos.Tokens.Sub(sellQty)
	}
	pos.LastUpdated = fill.Timestamp
	s.positions[key] = pos
}

// RestorePendingYield replays a durable pending-yield credit or claim
// onto the position cache. A negative delta models a claim.
func (s *Store) RestorePendingYield(userID, assetID string, delta decimal.Decimal) {
	if delta.IsNegative() {
		s.mu.Lock()
		key := positionKey{userID, assetID}
		pos := s.positions[key]
		pos.PendingYield = pos.PendingYield.Add(delta)
		if pos.PendingYield.IsNegative() {
			pos.PendingYield = decimal.Zero
		}
		s.positions[key] = pos
		s.mu.Unlock()
		return
	}
	_ = s.CreditPendingYield(userID, assetID, delta)
}

// Reset clears the position cache. Only the reconciler should call this,
// immediately before a full ledger replay.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = make(map[positionKey]domain.Position)
}

// --- shared position read ---

func (s *Store) loadPosition(holderID, assetID string) (domain.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[positionKey{holderID, assetID}]
	return pos, ok
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAssetFrom(r scanner) (domain.Asset, error) {
	var (
		a                                                                   domain.Asset
		totalSupply, minInvest, minTrade, annualYield, marketCap, volume24h string
		maxOwnership                                                       string
		yieldFrequency, nextDistribution                                   string
		feeBpsOverride                                                     sql.NullInt64
	)
	if err := r.Scan(&a.AssetID, &a.Symbol, &a.AccreditedOnly, &a.Active, &a.Decimals, &a.Price, &a.NAV,
		&totalSupply, &minInvest, &minTrade, &annualYield, &yieldFrequency, &nextDistribution,
		&marketCap, &volume24h, &a.ATH, &a.ATL, &a.Holders, &feeBpsOverride, &maxOwnership); err != nil {
		return domain.Asset{}, err
	}
	a.TotalSupply, _ = decimal.NewFromString(totalSupply)
	a.MinInvest, _ = decimal.NewFromString(minInvest)
	a.MinTrade, _ = decimal.NewFromString(minTrade)
	a.AnnualYieldRate, _ = decimal.NewFromString(annualYield)
	a.MarketCap, _ = decimal.NewFromString(marketCap)
	a.Volume24h, _ = decimal.NewFromString(volume24h)
	a.MaxOwnershipPercent, _ = decimal.NewFromString(maxOwnership)
	a.YieldFrequency = domain.YieldFrequency(yieldFrequency)
	if nextDistribution != "" {
		a.NextDistributionAt, _ = time.Parse(time.RFC3339, nextDistribution)
	}
	if feeBpsOverride.Valid {
		v := int32(feeBpsOverride.Int64)
		a.FeeBpsOverride = &v
	}
	return a, nil
}
