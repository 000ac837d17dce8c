package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sentineltrading/execution-core/internal/domain"
	"github.com/sentineltrading/execution-core/internal/eventbus"
	"github.com/sentineltrading/execution-core/internal/ledger"
	"github.com/sentineltrading/execution-core/internal/risk"
)

// PositionCache is the in-memory position store a reconciliation run
// rebuilds from scratch. internal/repositories.Store satisfies this.
type PositionCache interface {
	Reset()
	RestoreFill(holderID string, fill domain.Fill)
	RestorePendingYield(userID, assetID string, delta decimal.Decimal)
}

// BotCatalog is the in-memory bot registry a reconciliation run rebuilds
// from scratch. internal/catalog.Bots satisfies this.
type BotCatalog interface {
	Reset()
	RestoreRegistered(p ledger.BotConfigPayload)
	RestoreArchived(botID string)
}

// StrategyCatalog is the in-memory strategy registry a reconciliation run
// rebuilds from scratch. internal/catalog.Strategies satisfies this.
type StrategyCatalog interface {
	Reset()
	RestoreUpserted(strategy domain.Strategy)
}

// OrderSink is where a still-open order goes to rest again. internal/book.Manager
// satisfies this.
type OrderSink interface {
	PlaceOrder(ctx context.Context, order *domain.Order) error
}

// openOrder tracks an OrderPlaced entry through to either a terminal
// state (fully filled or cancelled) or, absent one, a remaining quantity
// that must be re-rested once replay finishes.
type openOrder struct {
	botID, assetID string
	side           domain.Side
	typ            domain.OrderType
	qty            decimal.Decimal
	filled         decimal.Decimal
	limitPrice     *float64
	stopPrice      *float64
	createdAt      time.Time
	expiresAt      time.Time
	terminal       bool
}

// Reconciler rebuilds in-memory positions and resting orders by replaying
// the ledger, the durable source of truth every other in-memory structure
// is a cache of. It holds the emergency brake tripped for the duration so
// no order reaches the book while replay is in flight.
type Reconciler struct {
	ledger     *ledger.Ledger
	positions  PositionCache
	bots       BotCatalog
	strategies StrategyCatalog
	sink       OrderSink
	brake      *risk.Brake
	bus        *eventbus.Bus
	log        zerolog.Logger
}

// New creates a Reconciler. Call Reconcile once, before the engine
// starts accepting new signals.
func New(led *ledger.Ledger, positions PositionCache, bots BotCatalog, strategies StrategyCatalog, sink OrderSink, brake *risk.Brake, bus *eventbus.Bus, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		ledger:     led,
		positions:  positions,
		bots:       bots,
		strategies: strategies,
		sink:       sink,
		brake:      brake,
		bus:        bus,
		log:        log.With().Str("component", "reconciler").Logger(),
	}
}

// Reconcile trips the brake, replays the ledger to rebuild positions, bot
// and strategy catalogs, and pending yield balances, re-rests any order
// left open by the replay, and releases the brake only if every step
// succeeds. On error the brake stays tripped: the engine must not accept
// signals against state it could not reconstruct. The caller is
// responsible for handing the rebuilt bots/strategies to the scheduler
// and evaluator after Reconcile returns; this package only rebuilds the
// catalogs, it does not know about either component.
//
// Bot scheduler counters (missed ticks, daily trade/P&L caps) are not
// rebuilt here: BotStateChanged entries carry a status and a reason, not
// a full BotState snapshot, so they reset to zero-value on restart. That
// is a conservative gap (a bot may under-count a loss streak across a
// restart, never over-count one), unlike position, order, or bot-config
// state, where divergence from the ledger is unacceptable.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	r.brake.Trip()
	r.bus.EmergencyBrake.Publish(eventbus.EmergencyBrakeEvent{Active: true, Reason: "startup reconciliation in progress"})

	r.positions.Reset()
	r.bots.Reset()
	r.strategies.Reset()
	orders := make(map[string]*openOrder)

	err := r.ledger.Replay(ctx, func(entry ledger.Entry) error {
		switch entry.Kind {
		case ledger.KindOrderPlaced:
			var p ledger.OrderPlacedPayload
			if err := entry.Decode(&p); err != nil {
				return fmt.Errorf("reconciler: decode OrderPlaced: %w", err)
			}
			qty, err := decimal.NewFromString(p.Qty)
			if err != nil {
				return fmt.Errorf("reconciler: parse qty for order %s: %w", p.OrderID, err)
			}
			orders[p.OrderID] = &openOrder{
				botID: p.BotID, assetID: p.AssetID, side: domain.Side(p.Side), typ: domain.OrderType(p.Type),
				qty: qty, limitPrice: p.LimitPrice, stopPrice: p.StopPrice, createdAt: p.CreatedAt, expiresAt: p.ExpiresAt,
			}

		case ledger.KindOrderFilled:
			var p ledger.OrderFilledPayload
			if err := entry.Decode(&p); err != nil {
				return fmt.Errorf("reconciler: decode OrderFilled: %w", err)
			}
			qty, err := decimal.NewFromString(p.Qty)
			if err != nil {
				return fmt.Errorf("reconciler: parse qty for fill on order %s: %w", p.OrderID, err)
			}
			holderID := p.UserID
			if o, ok := orders[p.OrderID]; ok {
				holderID = o.botID
				o.filled = o.filled.Add(qty)
				if !o.filled.LessThan(o.qty) {
					o.terminal = true
				}
			}
			r.positions.RestoreFill(holderID, domain.Fill{
				OrderID: p.OrderID, AssetID: p.AssetID, Side: domain.Side(p.Side), Qty: qty, Price: p.Price,
				Fee: decimal.Zero, Synthetic: p.Synthetic, Timestamp: p.Timestamp,
			})

		case ledger.KindOrderCancelled:
			var p ledger.OrderCancelledPayload
			if err := entry.Decode(&p); err != nil {
				return fmt.Errorf("reconciler: decode OrderCancelled: %w", err)
			}
			if o, ok := orders[p.OrderID]; ok {
				o.terminal = true
			}

		case ledger.KindYieldCredited:
			var p ledger.YieldCreditedPayload
			if err := entry.Decode(&p); err != nil {
				return fmt.Errorf("reconciler: decode YieldCredited: %w", err)
			}
			amount, err := decimal.NewFromString(p.Amount)
			if err != nil {
				return fmt.Errorf("reconciler: parse amount for yield credit: %w", err)
			}
			r.positions.RestorePendingYield(p.UserID, p.AssetID, amount)

		case ledger.KindYieldClaimed:
			var p ledger.YieldClaimedPayload
			if err := entry.Decode(&p); err != nil {
				return fmt.Errorf("reconciler: decode YieldClaimed: %w", err)
			}
			amount, err := decimal.NewFromString(p.Amount)
			if err != nil {
				return fmt.Errorf("reconciler: parse amount for yield claim: %w", err)
			}
			r.positions.RestorePendingYield(p.UserID, p.AssetID, amount.Neg())

		case ledger.KindBotRegistered, ledger.KindBotConfigUpdated:
			var p ledger.BotConfigPayload
			if err := entry.Decode(&p); err != nil {
				return fmt.Errorf("reconciler: decode %s: %w", entry.Kind, err)
			}
			r.bots.RestoreRegistered(p)

		case ledger.KindBotArchived:
			var p ledger.BotArchivedPayload
			if err := entry.Decode(&p); err != nil {
				return fmt.Errorf("reconciler: decode BotArchived: %w", err)
			}
			r.bots.RestoreArchived(p.BotID)

		case ledger.KindStrategyUpserted:
			var p ledger.StrategyUpsertedPayload
			if err := entry.Decode(&p); err != nil {
				return fmt.Errorf("reconciler: decode StrategyUpserted: %w", err)
			}
			r.strategies.RestoreUpserted(p.Strategy)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reconciler: replay: %w", err)
	}

	restored := 0
	for orderID, o := range orders {
		if o.terminal {
			continue
		}
		remaining := o.qty.Sub(o.filled)
		if !remaining.IsPositive() {
			continue
		}
		if o.typ != domain.OrderTypeLimit && o.typ != domain.OrderTypeStop {
			continue
		}
		order := &domain.Order{
			OrderID: orderID, BotID: o.botID, AssetID: o.assetID, Side: o.side, Type: o.typ,
			Qty: remaining, LimitPrice: o.limitPrice, StopPrice: o.stopPrice,
			Status: domain.OrderStatusOpen, CreatedAt: o.createdAt, ExpiresAt: o.expiresAt,
		}
		if err := r.sink.PlaceOrder(ctx, order); err != nil {
			return fmt.Errorf("reconciler: re-rest order %s: %w", orderID, err)
		}
		restored++
	}

	r.log.Info().Int("orders_restored", restored).Msg("startup reconciliation complete")
	r.brake.Release()
	r.bus.EmergencyBrake.Publish(eventbus.EmergencyBrakeEvent{Active: false, Reason: "startup reconciliation complete"})
	return nil
}
