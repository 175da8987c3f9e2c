package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redworker/internal/worker"
)

func TestWriteEvent_CreatesSessionOnFirstEvent(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	start := createTestEvent("sess-1", 1, worker.EventSessionStart)
	start.Detail = map[string]any{"drawables": int64(1000), "streams": int64(50)}
	require.NoError(t, s.WriteEvent(ctx, start))
	require.NoError(t, s.WriteEvent(ctx, createTestEvent("sess-1", 2, worker.EventSurfaceCreate)))

	sessions, err := s.ReadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-1", sessions[0].ID)
	assert.Equal(t, uint64(1), sessions[0].StartedSeq)
	assert.Equal(t, 2, sessions[0].Events)
	assert.Equal(t, map[string]any{"drawables": int64(1000), "streams": int64(50)}, sessions[0].Config)
}

func TestWriteEvent_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	ev := createTestEvent("sess-1", 1, worker.EventSessionStart)
	require.NoError(t, s.WriteEvent(ctx, ev))

	// same (session, seq) with different content is ignored
	dup := ev
	dup.Kind = worker.EventChannelConnect
	require.NoError(t, s.WriteEvent(ctx, dup))

	events, err := s.ReadEvents(ctx, "sess-1", EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, worker.EventSessionStart, events[0].Kind)
}

func TestWriteEvent_Rejects(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name string
		ev   worker.Event
	}{
		{"empty session", createTestEvent("", 1, worker.EventSessionStart)},
		{"zero seq", createTestEvent("s", 0, worker.EventSessionStart)},
		{"float detail", worker.Event{Session: "s", Seq: 1, Kind: worker.EventSessionStart,
			Detail: map[string]any{"ratio": 0.5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, s.WriteEvent(t.Context(), tt.ev))
		})
	}
}

func TestRecord_ImplementsJournal(t *testing.T) {
	s := createTestStore(t)

	var j worker.Journal = s
	ev := createTestEvent("sess-1", 1, worker.EventMessageSent)
	ev.Channel = "ch"
	ev.Serial = 7
	ev.Message = "draw"
	require.NoError(t, j.Record(ev))

	got, err := s.ReadEvent(t.Context(), "sess-1", 1)
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestDeleteSession(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.WriteEvent(ctx, createTestEvent("a", 1, worker.EventSessionStart)))
	require.NoError(t, s.WriteEvent(ctx, createTestEvent("b", 1, worker.EventSessionStart)))

	require.NoError(t, s.DeleteSession(ctx, "a"))

	sessions, err := s.ReadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "b", sessions[0].ID)
	events, err := s.ReadEvents(ctx, "a", EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}
