package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/redworker/internal/worker"
)

// ChannelSummary folds the journal of one channel.
type ChannelSummary struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	Client   string         `json:"client"`
	Messages map[string]int `json:"messages"`
	// LastSerial is the serial of the last message sent.
	LastSerial uint64 `json:"last_serial"`
	// Open is true when no disconnect was journaled.
	Open   bool   `json:"open"`
	Reason string `json:"reason,omitempty"`
}

// SessionSummary is the state a session's journal describes: which
// surfaces, channels and streams exist at its end.
type SessionSummary struct {
	Session        string
	LastSeq        uint64
	Events         int
	Surfaces       []uint32
	Channels       []ChannelSummary
	ActiveStreams  []int
	StreamsCreated int
	Gaps           []uint64
}

// ReplaySession reads every event of a session and folds it into a summary.
// Missing sequence numbers are reported in Gaps; a journal written by one
// worker has none.
func (s *Store) ReplaySession(ctx context.Context, session string) (SessionSummary, error) {
	events, err := s.ReadEvents(ctx, session, EventFilter{})
	if err != nil {
		return SessionSummary{}, fmt.Errorf("replay session: %w", err)
	}
	return Summarize(session, events), nil
}

// Summarize folds events, which must be in seq order.
func Summarize(session string, events []worker.Event) SessionSummary {
	sum := SessionSummary{Session: session, Events: len(events)}
	surfaces := make(map[uint32]bool)
	streams := make(map[int]bool)
	channels := make(map[string]*ChannelSummary)
	var order []string

	for _, ev := range events {
		for missing := sum.LastSeq + 1; sum.LastSeq > 0 && missing < ev.Seq; missing++ {
			sum.Gaps = append(sum.Gaps, missing)
		}
		sum.LastSeq = ev.Seq

		switch ev.Kind {
		case worker.EventSurfaceCreate:
			surfaces[ev.Surface] = true
		case worker.EventSurfaceDestroy:
			delete(surfaces, ev.Surface)
		case worker.EventStreamCreate:
			streams[ev.Stream] = true
			sum.StreamsCreated++
		case worker.EventStreamStop:
			delete(streams, ev.Stream)
		case worker.EventChannelConnect:
			ch := &ChannelSummary{ID: ev.Channel, Messages: make(map[string]int), Open: true}
			if v, ok := ev.Detail["kind"].(string); ok {
				ch.Kind = v
			}
			if v, ok := ev.Detail["client"].(string); ok {
				ch.Client = v
			}
			channels[ev.Channel] = ch
			order = append(order, ev.Channel)
		case worker.EventChannelDisconnect:
			if ch, ok := channels[ev.Channel]; ok {
				ch.Open = false
				if v, ok := ev.Detail["reason"].(string); ok {
					ch.Reason = v
				}
			}
		case worker.EventMessageSent:
			if ch, ok := channels[ev.Channel]; ok {
				ch.Messages[ev.Message]++
				ch.LastSerial = ev.Serial
			}
		}
	}

	for id := range surfaces {
		sum.Surfaces = append(sum.Surfaces, id)
	}
	slices.Sort(sum.Surfaces)
	for id := range streams {
		sum.ActiveStreams = append(sum.ActiveStreams, id)
	}
	slices.Sort(sum.ActiveStreams)
	for _, id := range order {
		sum.Channels = append(sum.Channels, *channels[id])
	}
	return sum
}
