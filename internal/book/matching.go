package book

import (
	"container/heap"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sentineltrading/execution-core/internal/domain"
	"github.com/sentineltrading/execution-core/internal/eventbus"
	"github.com/sentineltrading/execution-core/internal/ledger"
)

func tradingFee(notional decimal.Decimal, bps int32) decimal.Decimal {
	return notional.Mul(decimal.NewFromInt32(bps)).Div(decimal.NewFromInt(10000))
}

// matchBuy consumes resting asks at or below the taker's limit (or any
// price, for a market order), cheapest first, FIFO within a price level.
func (b *Book) matchBuy(taker *domain.Order) []domain.Fill {
	var fills []domain.Fill
	for taker.Remaining().IsPositive() && len(b.asks) > 0 {
		top := b.asks[0]
		askPrice := *top.order.LimitPrice
		if taker.Type == domain.OrderTypeLimit && *taker.LimitPrice < askPrice {
			break
		}

		takerFill, makerFill := b.cross(taker, &top.order, askPrice)
		fills = append(fills, takerFill)
		b.settle(taker, takerFill)
		b.settle(&top.order, makerFill)

		if top.order.Remaining().IsZero() {
			heap.Pop(&b.asks)
			delete(b.byOrderID, top.order.OrderID)
		}
	}
	return fills
}

// matchSell consumes resting bids at or above the taker's limit (or any
// price, for a market order), richest first, FIFO within a price level.
func (b *Book) matchSell(taker *domain.Order) []domain.Fill {
	var fills []domain.Fill
	for taker.Remaining().IsPositive() && len(b.bids) > 0 {
		top := b.bids[0]
		bidPrice := *top.order.LimitPrice
		if taker.Type == domain.OrderTypeLimit && *taker.LimitPrice > bidPrice {
			break
		}

		takerFill, makerFill := b.cross(taker, &top.order, bidPrice)
		fills = append(fills, takerFill)
		b.settle(taker, takerFill)
		b.settle(&top.order, makerFill)

		if top.order.Remaining().IsZero() {
			heap.Pop(&b.bids)
			delete(b.byOrderID, top.order.OrderID)
		}
	}
	return fills
}

// cross settles taker against maker at price for min(remaining) quantity
// and returns each side's Fill record. The trading fee is charged to the
// taker only, per the flat-bps-on-notional fee model.
func (b *Book) cross(taker, maker *domain.Order, price float64) (domain.Fill, domain.Fill) {
	qty := decimal.Min(taker.Remaining(), maker.Remaining())
	now := time.Now().UTC()

	applyFillToOrder(taker, qty, price)
	applyFillToOrder(maker, qty, price)

	fee := tradingFee(qty.Mul(decimal.NewFromFloat(price)), b.feeBps)
	b.lastPrice = price

	takerFill := domain.Fill{OrderID: taker.OrderID, AssetID: b.assetID, Side: taker.Side, Qty: qty, Price: price, Fee: fee, Timestamp: now}
	makerFill := domain.Fill{OrderID: maker.OrderID, AssetID: b.assetID, Side: maker.Side, Qty: qty, Price: price, Fee: decimal.Zero, Timestamp: now}
	return takerFill, makerFill
}

func applyFillToOrder(o *domain.Order, qty decimal.Decimal, price float64) {
	prevFilled, _ := o.FilledQty.Float64()
	prevNotional := prevFilled * o.AvgFillPrice
	qf, _ := qty.Float64()
	o.FilledQty = o.FilledQty.Add(qty)
	newFilled, _ := o.FilledQty.Float64()
	if newFilled > 0 {
		o.AvgFillPrice = (prevNotional + qf*price) / newFilled
	}
	if o.Remaining().IsZero() {
		o.Status = domain.OrderStatusFilled
	} else {
		o.Status = domain.OrderStatusPartial
	}
}

// settle applies a fill's position/asset-stat effects and records it in
// the ledger, atomically with any PositionOpened/PositionClosed/
// FeeCharged entries it implies. Order and fill are settled together, in
// the same AppendGroup, the instant the fill is produced.
func (b *Book) settle(order *domain.Order, fill domain.Fill) {
	effect, err := b.positions.ApplyFill(order.BotID, fill)
	if err != nil {
		b.log.Error().Err(err).Str("order_id", order.OrderID).Msg("apply fill to position failed")
	}
	b.stats.ApplyTrade(b.assetID, fill.Price, fill.Qty, fill.Side)

	entries := []struct {
		Kind    ledger.EntryKind
		Payload any
	}{
		{Kind: ledger.KindOrderFilled, Payload: ledger.OrderFilledPayload{
			OrderID: fill.OrderID, AssetID: fill.AssetID, Side: string(fill.Side),
			Qty: fill.Qty.String(), Price: fill.Price, Fee: fill.Fee.String(),
			Synthetic: fill.Synthetic, Timestamp: fill.Timestamp,
		}},
	}
	if effect.Opened {
		entries = append(entries, struct {
			Kind    ledger.EntryKind
			Payload any
		}{Kind: ledger.KindPositionOpened, Payload: ledger.PositionOpenedPayload{
			UserID: order.BotID, AssetID: b.assetID, Tokens: effect.Tokens.String(), CostBasis: effect.CostBasis.String(),
		}})
	}
	if effect.Closed {
		entries = append(entries, struct {
			Kind    ledger.EntryKind
			Payload any
		}{Kind: ledger.KindPositionClosed, Payload: ledger.PositionClosedPayload{
			UserID: order.BotID, AssetID: b.assetID, RealisedPnL: effect.RealisedPnL.String(), PlatformFee: effect.PlatformFee.String(),
		}})
		if effect.PlatformFee.IsPositive() {
			entries = append(entries, struct {
				Kind    ledger.EntryKind
				Payload any
			}{Kind: ledger.KindFeeCharged, Payload: ledger.FeeChargedPayload{
				UserID: order.BotID, AssetID: b.assetID, Kind: "platform", Amount: effect.PlatformFee.String(),
			}})
		}
	}
	if fill.Fee.IsPositive() {
		entries = append(entries, struct {
			Kind    ledger.EntryKind
			Payload any
		}{Kind: ledger.KindFeeCharged, Payload: ledger.FeeChargedPayload{
			UserID: order.BotID, AssetID: b.assetID, Kind: "trading", Amount: fill.Fee.String(),
		}})
	}

	if err := b.ledger.AppendGroup(entries...); err != nil {
		b.log.Error().Err(err).Str("order_id", order.OrderID).Msg("ledger append for fill failed")
	}

	realisedPnL := decimal.Zero
	if effect.Closed {
		realisedPnL = effect.RealisedPnL
	}
	b.bus.OrderFilled.Publish(eventbus.OrderFilledEvent{Fill: fill, Order: *order, RealisedPnL: realisedPnL})
}
