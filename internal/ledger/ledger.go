// Package ledger implements the append-only signal/trade audit log.
// It is the durable source of truth: positions, open orders, pending
// yield, and the bot and strategy catalogs are caches rebuilt by
// replaying this log on startup. Bot scheduler counters and knowledge-base
// patterns are not rebuilt from it; they start from zero after a restart.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sentineltrading/execution-core/internal/database"
)

// EntryKind enumerates the kinds of events the ledger records.
type EntryKind string

const (
	KindSignalEmitted    EntryKind = "SignalEmitted"
	KindOrderPlaced      EntryKind = "OrderPlaced"
	KindOrderRejected    EntryKind = "OrderRejected"
	KindOrderFilled      EntryKind = "OrderFilled"
	KindOrderCancelled   EntryKind = "OrderCancelled"
	KindPositionOpened   EntryKind = "PositionOpened"
	KindPositionClosed   EntryKind = "PositionClosed"
	KindDistributionPaid EntryKind = "DistributionPaid"
	KindYieldCredited    EntryKind = "YieldCredited"
	KindYieldClaimed     EntryKind = "YieldClaimed"
	KindFeeCharged       EntryKind = "FeeCharged"
	KindBotStateChanged  EntryKind = "BotStateChanged"
	KindBotRegistered    EntryKind = "BotRegistered"
	KindBotConfigUpdated EntryKind = "BotConfigUpdated"
	KindBotArchived      EntryKind = "BotArchived"
	KindStrategyUpserted EntryKind = "StrategyUpserted"

	groupKind = "__group__"
)

const (
	markerCommit = "commit"
	markerBegin  = "begin"
	markerEntry  = "entry"
)

// Entry is one self-describing row: every id it references is included in
// Payload, so a reader never needs to join against another table to make
// sense of it.
type Entry struct {
	Seq       int64
	Kind      EntryKind
	GroupID   string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Decode unmarshals the entry's payload into v.
func (e Entry) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Ledger is the single-writer append log. Writers enqueue through a
// bounded channel; when the channel is full the caller blocks rather than
// the write being dropped.
type Ledger struct {
	db      *database.DB
	log     zerolog.Logger
	writeCh chan writeRequest
	done    chan struct{}
}

type writeRequest struct {
	rows   []row
	result chan error
}

type row struct {
	kind    EntryKind
	marker  string
	groupID string
	payload []byte
}

// New creates a Ledger backed by db and starts its single writer
// goroutine. Call Close to drain and stop it.
func New(db *database.DB, log zerolog.Logger) *Ledger {
	l := &Ledger{
		db:      db,
		log:     log.With().Str("component", "ledger").Logger(),
		writeCh: make(chan writeRequest, 64),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Ledger) run() {
	defer close(l.done)
	for req := range l.writeCh {
		req.result <- l.writeRows(req.rows)
	}
}

func (l *Ledger) writeRows(rows []row) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range rows {
		if _, err := tx.Exec(
			`INSERT INTO ledger_entries (kind, marker, group_id, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
			string(r.kind), r.marker, r.groupID, string(r.payload), now,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("ledger: insert entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger: commit: %w", err)
	}
	return nil
}

func (l *Ledger) submit(rows []row) error {
	result := make(chan error, 1)
	l.writeCh <- writeRequest{rows: rows, result: result}
	return <-result
}

// Append writes a single, self-contained committed entry and returns
// nothing but the error — callers that need the assigned sequence number
// should read it back through Replay, since sqlite's AUTOINCREMENT is not returned
// by a batched insert path.
func (l *Ledger) Append(kind EntryKind, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ledger: marshal payload: %w", err)
	}
	return l.submit([]row{{kind: kind, marker: markerCommit, payload: body}})
}

// AppendGroup atomically records a multi-entry sequence (e.g. the several
// Fill records a single partially-filled order produces) bracketed by
// begin/commit markers. If the process crashes between the
// begin and commit rows being written, Replay discards the whole group.
func (l *Ledger) AppendGroup(entries ...struct {
	Kind    EntryKind
	Payload any
}) error {
	gid := uuid.NewString()
	rows := make([]row, 0, len(entries)+2)
	rows = append(rows, row{kind: groupKind, marker: markerBegin, groupID: gid, payload: []byte("{}")})

	for _, e := range entries {
		body, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("ledger: marshal group payload: %w", err)
		}
		rows = append(rows, row{kind: e.Kind, marker: markerEntry, groupID: gid, payload: body})
	}
	rows = append(rows, row{kind: groupKind, marker: markerCommit, groupID: gid, payload: []byte("{}")})

	return l.submit(rows)
}

// Close stops accepting new writes and waits for queued writes to drain.
func (l *Ledger) Close() {
	close(l.writeCh)
	<-l.done
}

// Replay scans the ledger from empty state and invokes handler for every
// entry in a committed group, in sequence order, reconstructing in-memory
// state bit-for-bit. A group with a begin marker but no matching commit
// marker (a crash mid-write) is discarded in full.
func (l *Ledger) Replay(ctx context.Context, handler func(Entry) error) error {
	rows, err := l.db.QueryContext(ctx, `SELECT seq, kind, marker, group_id, payload, created_at FROM ledger_entries ORDER BY seq ASC`)
	if err != nil {
		return fmt.Errorf("ledger: query for replay: %w", err)
	}
	defer rows.Close()

	// buffered holds group entries seen before their group's commit marker
	// arrives (entries are always written before the trailing commit row,
	// so in practice buffering is momentary).
	buffered := make(map[string][]Entry)

	for rows.Next() {
		var (
			seq                                int64
			kind, marker, groupID, payload, ts string
		)
		if err := rows.Scan(&seq, &kind, &marker, &groupID, &payload, &ts); err != nil {
			return fmt.Errorf("ledger: scan row: %w", err)
		}
		createdAt, _ := time.Parse(time.RFC3339Nano, ts)

		switch marker {
		case markerCommit:
			if kind == groupKind {
				for _, e := range buffered[groupID] {
					if err := handler(e); err != nil {
						return err
					}
				}
				delete(buffered, groupID)
				continue
			}
			// Ungrouped single-entry append: deliver immediately.
			if err := handler(Entry{Seq: seq, Kind: EntryKind(kind), GroupID: groupID, Payload: json.RawMessage(payload), CreatedAt: createdAt}); err != nil {
				return err
			}
		case markerBegin:
			buffered[groupID] = nil // mark the group as open
		case markerEntry:
			buffered[groupID] = append(buffered[groupID], Entry{Seq: seq, Kind: EntryKind(kind), GroupID: groupID, Payload: json.RawMessage(payload), CreatedAt: createdAt})
		}
	}

	// Any group left in `buffered` never saw its commit row: discard it.
	return rows.Err()
}
