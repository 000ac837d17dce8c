package book

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sentineltrading/execution-core/internal/domain"
	"github.com/sentineltrading/execution-core/internal/eventbus"
	"github.com/sentineltrading/execution-core/internal/ledger"
	"github.com/sentineltrading/execution-core/internal/risk"
)

var _ risk.OrderSink = (*Manager)(nil)

// Manager owns one Book per asset, created lazily on first order. It is
// the concrete risk.OrderSink the risk pipeline dispatches accepted
// orders to.
type Manager struct {
	mu     sync.RWMutex
	books  map[string]*Book
	feeBps int32

	ledger    *ledger.Ledger
	positions PositionBook
	stats     AssetStats
	bus       *eventbus.Bus
	log       zerolog.Logger
}

// NewManager creates an empty Manager; books are spun up on first use of
// an asset so the engine need not enumerate every tradable asset upfront.
func NewManager(feeBps int32, led *ledger.Ledger, positions PositionBook, stats AssetStats, bus *eventbus.Bus, log zerolog.Logger) *Manager {
	return &Manager{
		books:     make(map[string]*Book),
		feeBps:    feeBps,
		ledger:    led,
		positions: positions,
		stats:     stats,
		bus:       bus,
		log:       log.With().Str("component", "book_manager").Logger(),
	}
}

func (m *Manager) bookFor(assetID string) *Book {
	m.mu.RLock()
	b, ok := m.books[assetID]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.books[assetID]; ok {
		return b
	}
	b = newBook(assetID, m.feeBps, m.ledger, m.positions, m.stats, m.bus, m.log)
	m.books[assetID] = b
	return b
}

// PlaceOrder implements risk.OrderSink: it hands order to its asset's
// book and discards the resulting fills. The book has already settled
// them (positions, ledger, event bus) by the time Submit returns; callers
// observe them through the event bus and ledger rather than through this
// call's return value.
func (m *Manager) PlaceOrder(ctx context.Context, order *domain.Order) error {
	_, err := m.bookFor(order.AssetID).Submit(ctx, order)
	return err
}

// Cancel removes a resting or stop order from its asset's book.
func (m *Manager) Cancel(ctx context.Context, assetID, orderID string) error {
	return m.bookFor(assetID).Cancel(ctx, orderID)
}

// Snapshot returns the current book state for assetID, or false if no
// book has been created for it yet (no order has ever touched it).
func (m *Manager) Snapshot(assetID string) (Snapshot, bool) {
	m.mu.RLock()
	b, ok := m.books[assetID]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return b.Snapshot(), true
}

// Stop shuts down every asset book's writer goroutine.
func (m *Manager) Stop() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.books {
		b.stop()
	}
}
