// Package eventbus is the engine's internal pub/sub backbone. The source
// system's event-emitter fan-out (string-keyed, duck-typed payloads) is
// replaced here with a small set of statically-typed, bounded topics:
// every event kind the engine can publish is a named field on Bus, not a
// string key in a map. Subscribers register at startup via the Subscribe*
// methods; nothing subscribes by string at runtime.
package eventbus

import (
	"sync"

	"github.com/rs/zerolog"
)

// topic is a bounded broadcast channel set for one event type. Publish
// never blocks the publisher: a full subscriber channel drops the event
// and increments a counter, because no publisher (matching engine,
// indicator cache, scheduler, yield engine, reconciler) may stall on a
// slow subscriber.
type topic[T any] struct {
	mu      sync.Mutex
	subs    []chan T
	dropped uint64
	log     zerolog.Logger
	name    string
}

func newTopic[T any](name string, log zerolog.Logger) *topic[T] {
	return &topic[T]{log: log, name: name}
}

// Subscribe returns a receive-only channel that will observe every
// subsequent publish. Capacity bounds how many events may queue before
// publish starts dropping for this subscriber.
func (t *topic[T]) Subscribe(capacity int) <-chan T {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan T, capacity)
	t.subs = append(t.subs, ch)
	return ch
}

func (t *topic[T]) Publish(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- v:
		default:
			t.dropped++
			t.log.Warn().Str("topic", t.name).Uint64("dropped_total", t.dropped).Msg("event subscriber full, dropping event")
		}
	}
}

// Bus aggregates every typed topic the engine publishes to. One Bus is
// created at startup and injected into every component that needs to
// publish or subscribe.
type Bus struct {
	IndicatorsUpdated *topic[IndicatorsUpdatedEvent]
	SignalEmitted     *topic[SignalEmittedEvent]
	OrderFilled       *topic[OrderFilledEvent]
	BotStateChanged   *topic[BotStateChangedEvent]
	DistributionPaid  *topic[DistributionPaidEvent]
	EmergencyBrake    *topic[EmergencyBrakeEvent]
}

// New creates a Bus with one topic per event kind and no subscribers.
// Each subscriber chooses its own channel capacity in Subscribe; capacity
// exists only to absorb bursts, not to act as a durable queue.
func New(log zerolog.Logger) *Bus {
	return &Bus{
		IndicatorsUpdated: newTopic[IndicatorsUpdatedEvent]("indicators_updated", log),
		SignalEmitted:     newTopic[SignalEmittedEvent]("signal_emitted", log),
		OrderFilled:       newTopic[OrderFilledEvent]("order_filled", log),
		BotStateChanged:   newTopic[BotStateChangedEvent]("bot_state_changed", log),
		DistributionPaid:  newTopic[DistributionPaidEvent]("distribution_paid", log),
		EmergencyBrake:    newTopic[EmergencyBrakeEvent]("emergency_brake", log),
	}
}
