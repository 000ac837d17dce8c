package book

import (
	"container/heap"
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sentineltrading/execution-core/internal/domain"
	"github.com/sentineltrading/execution-core/internal/eventbus"
	"github.com/sentineltrading/execution-core/internal/ledger"
)

const defaultLimitExpiry = 7 * 24 * time.Hour
const recentTradesCap = 50

type cmdSubmit struct {
	order *domain.Order
	reply chan submitResult
}

type cmdCancel struct {
	orderID string
	reply   chan error
}

// cmdSweep forces an expiry sweep outside the hourly ticker; sent only by
// the unexported forceSweep, which tests use.
type cmdSweep struct {
	now   time.Time
	reply chan struct{}
}

type submitResult struct {
	fills []domain.Fill
	err   error
}

// Book is the single-owner order book and matching engine for one asset.
// Every mutation runs on its own goroutine, serialized through cmdCh;
// Snapshot reads an atomically published copy and never contends with it.
type Book struct {
	assetID string
	feeBps  int32
	log     zerolog.Logger

	ledger    *ledger.Ledger
	positions PositionBook
	stats     AssetStats
	bus       *eventbus.Bus

	bids      bidHeap
	asks      askHeap
	stopsBuy  []domain.Order
	stopsSell []domain.Order
	byOrderID map[string]*restingOrder

	arrivalSeq   uint64
	lastPrice    float64
	recentTrades []domain.Fill

	snapshot atomic.Pointer[Snapshot]

	cmdCh chan any
	done  chan struct{}
}

func newBook(assetID string, feeBps int32, led *ledger.Ledger, positions PositionBook, stats AssetStats, bus *eventbus.Bus, log zerolog.Logger) *Book {
	b := &Book{
		assetID:   assetID,
		feeBps:    feeBps,
		log:       log.With().Str("component", "book").Str("asset_id", assetID).Logger(),
		ledger:    led,
		positions: positions,
		stats:     stats,
		bus:       bus,
		byOrderID: make(map[string]*restingOrder),
		cmdCh:     make(chan any, 64),
		done:      make(chan struct{}),
	}
	b.publishSnapshot()
	go b.run()
	return b
}

func (b *Book) run() {
	defer close(b.done)
	sweep := time.NewTicker(time.Hour)
	defer sweep.Stop()
	for {
		select {
		case raw, ok := <-b.cmdCh:
			if !ok {
				return
			}
			switch cmd := raw.(type) {
			case cmdSubmit:
				fills, err := b.processSubmit(cmd.order)
				cmd.reply <- submitResult{fills: fills, err: err}
			case cmdCancel:
				cmd.reply <- b.processCancel(cmd.orderID)
			case cmdSweep:
				b.sweepExpired(cmd.now)
				close(cmd.reply)
			}
			b.publishSnapshot()
		case now := <-sweep.C:
			b.sweepExpired(now)
			b.publishSnapshot()
		}
	}
}

func (b *Book) stop() {
	close(b.cmdCh)
	<-b.done
}

// Submit enqueues order for matching and blocks until it settles (fully
// filled, partially filled and resting, or rejected). It never blocks
// past ctx's deadline.
func (b *Book) Submit(ctx context.Context, order *domain.Order) ([]domain.Fill, error) {
	reply := make(chan submitResult, 1)
	select {
	case b.cmdCh <- cmdSubmit{order: order, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.fills, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel removes a resting or stop order. It is a no-op error
// (ErrOrderNotFound) if the order already filled or was never booked.
func (b *Book) Cancel(ctx context.Context, orderID string) error {
	reply := make(chan error, 1)
	select {
	case b.cmdCh <- cmdCancel{orderID: orderID, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// forceSweep runs an expiry sweep immediately, bypassing the hourly
// ticker. It is unexported: production callers rely on the ticker, this
// exists so tests can exercise expiry deterministically.
func (b *Book) forceSweep(now time.Time) {
	reply := make(chan struct{})
	b.cmdCh <- cmdSweep{now: now, reply: reply}
	<-reply
}

// Snapshot returns the most recently published, consistent view of the
// book. Safe to call from any goroutine without coordinating with the
// writer.
func (b *Book) Snapshot() Snapshot {
	if s := b.snapshot.Load(); s != nil {
		return *s
	}
	return Snapshot{AssetID: b.assetID}
}

func (b *Book) processSubmit(order *domain.Order) ([]domain.Fill, error) {
	b.arrivalSeq++
	order.ArrivalSeq = b.arrivalSeq

	if order.Type == domain.OrderTypeStop {
		b.addStop(*order)
		return nil, nil
	}
	if order.Type == domain.OrderTypeLimit && order.ExpiresAt.IsZero() {
		order.ExpiresAt = order.CreatedAt.Add(defaultLimitExpiry)
	}

	var fills []domain.Fill
	switch order.Side {
	case domain.SideBuy:
		fills = b.matchBuy(order)
	case domain.SideSell:
		fills = b.matchSell(order)
	}

	if order.Type == domain.OrderTypeMarket && order.Remaining().IsPositive() {
		return fills, domain.NewError(domain.ErrInsufficientLiquidity, "insufficient liquidity to fill market order", false)
	}
	if order.Type == domain.OrderTypeLimit && order.Remaining().IsPositive() {
		b.rest(*order)
	}
	if len(fills) > 0 {
		b.promoteStops(fills[len(fills)-1].Price)
		b.recordTrades(fills)
	}
	return fills, nil
}

// recordTrades appends to the recent-trade tape shown on the asset detail
// endpoint, trimming to the last recentTradesCap prints.
func (b *Book) recordTrades(fills []domain.Fill) {
	b.recentTrades = append(b.recentTrades, fills...)
	if over := len(b.recentTrades) - recentTradesCap; over > 0 {
		b.recentTrades = b.recentTrades[over:]
	}
}

func (b *Book) processCancel(orderID string) error {
	if ro, ok := b.byOrderID[orderID]; ok {
		b.removeResting(ro)
		b.appendCancelled(ro.order, "cancelled")
		return nil
	}
	if b.removeStop(orderID) {
		return nil
	}
	return domain.NewError(domain.ErrOrderNotFound, "order not found", false)
}

func (b *Book) rest(order domain.Order) {
	ro := &restingOrder{order: order}
	if order.Side == domain.SideBuy {
		heap.Push(&b.bids, ro)
	} else {
		heap.Push(&b.asks, ro)
	}
	b.byOrderID[order.OrderID] = ro
}

func (b *Book) removeResting(ro *restingOrder) {
	delete(b.byOrderID, ro.order.OrderID)
	if ro.order.Side == domain.SideBuy {
		heap.Remove(&b.bids, ro.index)
	} else {
		heap.Remove(&b.asks, ro.index)
	}
}

func (b *Book) addStop(order domain.Order) {
	if order.Side == domain.SideBuy {
		b.stopsBuy = append(b.stopsBuy, order)
	} else {
		b.stopsSell = append(b.stopsSell, order)
	}
}

func (b *Book) removeStop(orderID string) bool {
	for i, o := range b.stopsBuy {
		if o.OrderID == orderID {
			b.stopsBuy = append(b.stopsBuy[:i], b.stopsBuy[i+1:]...)
			b.appendCancelled(o, "cancelled")
			return true
		}
	}
	for i, o := range b.stopsSell {
		if o.OrderID == orderID {
			b.stopsSell = append(b.stopsSell[:i], b.stopsSell[i+1:]...)
			b.appendCancelled(o, "cancelled")
			return true
		}
	}
	return false
}

// promoteStops checks every resting stop order against the latest trade
// print and converts qualifying ones to market orders, cascading if the
// resulting fills themselves trigger further stops.
func (b *Book) promoteStops(price float64) {
	var triggered []domain.Order

	remainingBuy := b.stopsBuy[:0:0]
	for _, o := range b.stopsBuy {
		if o.StopPrice != nil && price >= *o.StopPrice {
			triggered = append(triggered, o)
		} else {
			remainingBuy = append(remainingBuy, o)
		}
	}
	b.stopsBuy = remainingBuy

	remainingSell := b.stopsSell[:0:0]
	for _, o := range b.stopsSell {
		if o.StopPrice != nil && price <= *o.StopPrice {
			triggered = append(triggered, o)
		} else {
			remainingSell = append(remainingSell, o)
		}
	}
	b.stopsSell = remainingSell

	if len(triggered) == 0 {
		return
	}

	for _, stop := range triggered {
		market := stop
		market.Type = domain.OrderTypeMarket
		market.StopPrice = nil
		market.FilledQty = decimal.Zero

		var fills []domain.Fill
		if market.Side == domain.SideBuy {
			fills = b.matchBuy(&market)
		} else {
			fills = b.matchSell(&market)
		}
		if len(fills) > 0 {
			b.promoteStops(fills[len(fills)-1].Price)
		}
	}
}

func (b *Book) sweepExpired(now time.Time) {
	var expired []*restingOrder
	for _, ro := range b.bids {
		if isExpired(ro.order, now) {
			expired = append(expired, ro)
		}
	}
	for _, ro := range b.asks {
		if isExpired(ro.order, now) {
			expired = append(expired, ro)
		}
	}
	for _, ro := range expired {
		b.removeResting(ro)
		b.appendCancelled(ro.order, "expired")
	}
}

func (b *Book) appendCancelled(order domain.Order, reason string) {
	if err := b.ledger.Append(ledger.KindOrderCancelled, ledger.OrderCancelledPayload{
		OrderID: order.OrderID, AssetID: order.AssetID, Reason: reason,
	}); err != nil {
		b.log.Error().Err(err).Str("order_id", order.OrderID).Msg("ledger append for cancel failed")
	}
}

func (b *Book) publishSnapshot() {
	snap := Snapshot{
		AssetID:      b.assetID,
		BestBid:      topBidPrice(b.bids),
		BestAsk:      topAskPrice(b.asks),
		LastPrice:    b.lastPrice,
		Bids:         aggregateBids(b.bids),
		Asks:         aggregateAsks(b.asks),
		RecentTrades: append([]domain.Fill(nil), b.recentTrades...),
		UpdatedAt:    time.Now().UTC(),
	}
	b.snapshot.Store(&snap)
}

func topBidPrice(h bidHeap) float64 {
	if len(h) == 0 {
		return 0
	}
	return *h[0].order.LimitPrice
}

func topAskPrice(h askHeap) float64 {
	if len(h) == 0 {
		return 0
	}
	return *h[0].order.LimitPrice
}

func aggregateBids(h bidHeap) []Level {
	agg := map[float64]decimal.Decimal{}
	for _, ro := range h {
		p := *ro.order.LimitPrice
		agg[p] = agg[p].Add(ro.order.Remaining())
	}
	levels := make([]Level, 0, len(agg))
	for p, q := range agg {
		levels = append(levels, Level{Price: p, Qty: q})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
	return levels
}

func aggregateAsks(h askHeap) []Level {
	agg := map[float64]decimal.Decimal{}
	for _, ro := range h {
		p := *ro.order.LimitPrice
		agg[p] = agg[p].Add(ro.order.Remaining())
	}
	levels := make([]Level, 0, len(agg))
	for p, q := range agg {
		levels = append(levels, Level{Price: p, Qty: q})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
	return levels
}
