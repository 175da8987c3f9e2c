package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redworker/internal/worker"
)

func writeSession(t *testing.T, s *Store, session string) {
	t.Helper()
	kinds := []worker.EventKind{
		worker.EventSessionStart,
		worker.EventSurfaceCreate,
		worker.EventChannelConnect,
		worker.EventMessageSent,
		worker.EventMessageSent,
		worker.EventChannelDisconnect,
	}
	for i, k := range kinds {
		ev := createTestEvent(session, uint64(i+1), k)
		if k != worker.EventSessionStart && k != worker.EventSurfaceCreate {
			ev.Channel = "ch-1"
		}
		require.NoError(t, s.WriteEvent(t.Context(), ev))
	}
}

func TestReadEvents_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	// written out of order
	for _, seq := range []uint64{3, 1, 2} {
		require.NoError(t, s.WriteEvent(ctx, createTestEvent("s", seq, worker.EventMessageSent)))
	}

	events, err := s.ReadEvents(ctx, "s", EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}
}

func TestReadEvents_Filters(t *testing.T) {
	s := createTestStore(t)
	writeSession(t, s, "s")
	ctx := t.Context()

	tests := []struct {
		name   string
		filter EventFilter
		want   []uint64
	}{
		{"all", EventFilter{}, []uint64{1, 2, 3, 4, 5, 6}},
		{"kind", EventFilter{Kinds: []worker.EventKind{worker.EventMessageSent}}, []uint64{4, 5}},
		{"kinds", EventFilter{Kinds: []worker.EventKind{worker.EventSessionStart, worker.EventChannelDisconnect}}, []uint64{1, 6}},
		{"channel", EventFilter{Channel: "ch-1"}, []uint64{3, 4, 5, 6}},
		{"after", EventFilter{AfterSeq: 4}, []uint64{5, 6}},
		{"limit", EventFilter{Limit: 2}, []uint64{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := s.ReadEvents(ctx, "s", tt.filter)
			require.NoError(t, err)
			var got []uint64
			for _, ev := range events {
				got = append(got, ev.Seq)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadEvents_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	events, err := s.ReadEvents(t.Context(), "missing", EventFilter{})
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)

	sessions, err := s.ReadSessions(t.Context())
	require.NoError(t, err)
	assert.NotNil(t, sessions)
}

func TestReadEvent_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadEvent(t.Context(), "s", 1)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestLatestSession(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	_, err := s.LatestSession(ctx)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	writeSession(t, s, "zz-first")
	writeSession(t, s, "aa-second")

	id, err := s.LatestSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "aa-second", id)
}

func TestDetailHash_StableAcrossKeyOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	a := createTestEvent("a", 1, worker.EventSurfaceCreate)
	a.Detail = map[string]any{"width": int32(64), "height": int32(32), "format": "rgb32"}
	b := createTestEvent("b", 1, worker.EventSurfaceCreate)
	b.Detail = map[string]any{"format": "rgb32", "height": int64(32), "width": int64(64)}
	require.NoError(t, s.WriteEvent(ctx, a))
	require.NoError(t, s.WriteEvent(ctx, b))

	ha, err := s.DetailHash(ctx, "a", 1)
	require.NoError(t, err)
	hb, err := s.DetailHash(ctx, "b", 1)
	require.NoError(t, err)
	assert.NotEmpty(t, ha)
	assert.Equal(t, ha, hb)

	ev, err := s.ReadEvent(ctx, "a", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(64), ev.Detail["width"])
}
