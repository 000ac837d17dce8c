package ledger

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sentineltrading/execution-core/internal/database"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := database.New(database.Config{Path: ":memory:", Profile: database.ProfileStandard, Name: "ledger"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	l := New(db, zerolog.Nop())
	t.Cleanup(l.Close)
	return l
}

func TestAppendAndReplay(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.Append(KindSignalEmitted, SignalEmittedPayload{SignalID: "sig-1", BotID: "bot-1"}))
	require.NoError(t, l.Append(KindOrderPlaced, OrderPlacedPayload{OrderID: "ord-1", SignalID: "sig-1"}))

	var kinds []EntryKind
	err := l.Replay(context.Background(), func(e Entry) error {
		kinds = append(kinds, e.Kind)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []EntryKind{KindSignalEmitted, KindOrderPlaced}, kinds)
}

func TestAppendGroupReplaysAllEntriesTogether(t *testing.T) {
	l := newTestLedger(t)

	err := l.AppendGroup(
		struct {
			Kind    EntryKind
			Payload any
		}{Kind: KindOrderFilled, Payload: OrderFilledPayload{OrderID: "ord-1", Price: 100}},
		struct {
			Kind    EntryKind
			Payload any
		}{Kind: KindOrderFilled, Payload: OrderFilledPayload{OrderID: "ord-1", Price: 101}},
	)
	require.NoError(t, err)

	var fills []OrderFilledPayload
	err = l.Replay(context.Background(), func(e Entry) error {
		if e.Kind != KindOrderFilled {
			return nil
		}
		var p OrderFilledPayload
		if decErr := e.Decode(&p); decErr != nil {
			return decErr
		}
		fills = append(fills, p)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, fills, 2)
	require.Equal(t, 100.0, fills[0].Price)
	require.Equal(t, 101.0, fills[1].Price)
}

func TestReplayDiscardsUncommittedGroup(t *testing.T) {
	l := newTestLedger(t)

	// Simulate a crash mid-write: a begin row with no matching commit.
	require.NoError(t, l.submit([]row{
		{kind: groupKind, marker: markerBegin, groupID: "gid-crash", payload: []byte("{}")},
		{kind: KindOrderFilled, marker: markerEntry, groupID: "gid-crash", payload: []byte(`{"order_id":"ord-x"}`)},
	}))

	var count int
	err := l.Replay(context.Background(), func(e Entry) error {
		count++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestReplayEmptyLedger(t *testing.T) {
	l := newTestLedger(t)
	var count int
	err := l.Replay(context.Background(), func(e Entry) error {
		count++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
