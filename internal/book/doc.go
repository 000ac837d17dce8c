// Package book implements the per-asset limit order book and matching
// engine. Each asset owns exactly one Book, which runs a single goroutine
// serializing every mutation through a command channel, the same
// single-owner, request/reply shape the ledger's writer goroutine uses.
// Multiple books run concurrently; a book never blocks on another asset,
// and snapshot reads never block the writer.
//
// Priority queues are container/heap (stdlib): matching engines are
// latency-sensitive enough that a hand-rolled heap beats pulling in a
// general-purpose priority queue dependency for the three operations
// (push, pop, peek) a price-time-priority book actually needs.
package book
