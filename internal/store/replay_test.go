package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redworker/internal/worker"
)

func TestReplaySession_FoldsJournal(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	events := []worker.Event{
		{Kind: worker.EventSessionStart},
		{Kind: worker.EventSurfaceCreate, Surface: 0},
		{Kind: worker.EventSurfaceCreate, Surface: 3},
		{Kind: worker.EventChannelConnect, Channel: "a", Detail: map[string]any{"kind": "display", "client": "c1"}},
		{Kind: worker.EventChannelConnect, Channel: "b", Detail: map[string]any{"kind": "cursor", "client": "c2"}},
		{Kind: worker.EventMessageSent, Channel: "a", Serial: 1, Message: "surface_create"},
		{Kind: worker.EventMessageSent, Channel: "a", Serial: 2, Message: "draw"},
		{Kind: worker.EventMessageSent, Channel: "a", Serial: 3, Message: "draw"},
		{Kind: worker.EventStreamCreate, Stream: 0},
		{Kind: worker.EventStreamCreate, Stream: 1},
		{Kind: worker.EventStreamStop, Stream: 0},
		{Kind: worker.EventSurfaceDestroy, Surface: 3},
		{Kind: worker.EventChannelDisconnect, Channel: "b", Detail: map[string]any{"reason": "requested"}},
	}
	for i := range events {
		events[i].Session = "s"
		events[i].Seq = uint64(i + 1)
		require.NoError(t, s.WriteEvent(ctx, events[i]))
	}

	sum, err := s.ReplaySession(ctx, "s")
	require.NoError(t, err)

	assert.Equal(t, uint64(13), sum.LastSeq)
	assert.Equal(t, 13, sum.Events)
	assert.Equal(t, []uint32{0}, sum.Surfaces)
	assert.Equal(t, []int{1}, sum.ActiveStreams)
	assert.Equal(t, 2, sum.StreamsCreated)
	assert.Empty(t, sum.Gaps)

	require.Len(t, sum.Channels, 2)
	a, b := sum.Channels[0], sum.Channels[1]
	assert.Equal(t, "display", a.Kind)
	assert.True(t, a.Open)
	assert.Equal(t, map[string]int{"surface_create": 1, "draw": 2}, a.Messages)
	assert.Equal(t, uint64(3), a.LastSerial)
	assert.Equal(t, "c2", b.Client)
	assert.False(t, b.Open)
	assert.Equal(t, "requested", b.Reason)
}

func TestSummarize_ReportsGaps(t *testing.T) {
	events := []worker.Event{
		{Seq: 1, Kind: worker.EventSessionStart},
		{Seq: 2, Kind: worker.EventSurfaceCreate},
		{Seq: 5, Kind: worker.EventSurfaceDestroy},
	}

	sum := Summarize("s", events)
	assert.Equal(t, []uint64{3, 4}, sum.Gaps)
	assert.Empty(t, sum.Surfaces)
}
