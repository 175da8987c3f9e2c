package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/redworker/internal/store"
	"github.com/roach88/redworker/internal/worker"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string
	Kinds    []string
	Channel  string
	After    uint64
	Limit    int
	Summary  bool
}

var eventKinds = map[worker.EventKind]bool{
	worker.EventSessionStart:      true,
	worker.EventChannelConnect:    true,
	worker.EventChannelDisconnect: true,
	worker.EventSurfaceCreate:     true,
	worker.EventSurfaceDestroy:    true,
	worker.EventStreamCreate:      true,
	worker.EventStreamStop:        true,
	worker.EventMessageSent:       true,
}

// TraceEventOutput is the JSON shape of one journaled event.
type TraceEventOutput struct {
	Seq     uint64         `json:"seq"`
	Kind    string         `json:"kind"`
	Channel string         `json:"channel,omitempty"`
	Surface uint32         `json:"surface"`
	Stream  int            `json:"stream,omitempty"`
	Serial  uint64         `json:"serial,omitempty"`
	Message string         `json:"message,omitempty"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// TraceResult is the JSON payload of the trace command.
type TraceResult struct {
	Session string             `json:"session"`
	Events  []TraceEventOutput `json:"events,omitempty"`
	Summary *SummaryOutput     `json:"summary,omitempty"`
}

// SummaryOutput is the JSON shape of a folded session.
type SummaryOutput struct {
	LastSeq        uint64                 `json:"last_seq"`
	Events         int                    `json:"events"`
	Surfaces       []uint32               `json:"surfaces"`
	ActiveStreams  []int                  `json:"active_streams"`
	StreamsCreated int                    `json:"streams_created"`
	Channels       []store.ChannelSummary `json:"channels"`
	Gaps           []uint64               `json:"gaps,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show a journaled session",
		Long: `Print the events a worker journaled for one session, or the state
the session ends in with --summary.

Examples:
  redworker trace --db journal.db
  redworker trace --db journal.db --session display_basic-0192...
  redworker trace --db journal.db --kind message_sent --channel 0192...
  redworker trace --db journal.db --summary --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "journal database path (required)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: most recent)")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "only show events of these kinds")
	cmd.Flags().StringVar(&opts.Channel, "channel", "", "only show events of this channel id")
	cmd.Flags().Uint64Var(&opts.After, "after", 0, "only show events after this seq")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events")
	cmd.Flags().BoolVar(&opts.Summary, "summary", false, "fold the session instead of listing events")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTrace(cmd *cobra.Command, opts *TraceOptions) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	filter := store.EventFilter{Channel: opts.Channel, AfterSeq: opts.After, Limit: opts.Limit}
	for _, k := range opts.Kinds {
		kind := worker.EventKind(k)
		if !eventKinds[kind] {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown event kind %q", k))
		}
		filter.Kinds = append(filter.Kinds, kind)
	}

	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	session := opts.Session
	if session == "" {
		session, err = st.LatestSession(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return NewExitError(ExitCommandError, "journal has no sessions")
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find latest session", err)
		}
	}
	out.VerboseLog("session %s", session)

	if opts.Summary {
		sum, err := st.ReplaySession(ctx, session)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to replay session", err)
		}
		if sum.Events == 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("session %q not found", session))
		}
		if opts.Format == "json" {
			return out.JSON(TraceResult{Session: session, Summary: toSummaryOutput(sum)}, "", "")
		}
		printSummary(out, sum)
		return nil
	}

	events, err := st.ReadEvents(ctx, session, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	if opts.Format == "json" {
		result := TraceResult{Session: session, Events: make([]TraceEventOutput, len(events))}
		for i, ev := range events {
			result.Events[i] = TraceEventOutput{
				Seq: ev.Seq, Kind: string(ev.Kind), Channel: ev.Channel, Surface: ev.Surface,
				Stream: ev.Stream, Serial: ev.Serial, Message: ev.Message, Detail: ev.Detail,
			}
		}
		return out.JSON(result, "", "")
	}

	if len(events) == 0 {
		fmt.Fprintf(out.Writer, "No events for session %s.\n", session)
		return nil
	}
	fmt.Fprintf(out.Writer, "Session %s (%d events)\n", session, len(events))
	for _, ev := range events {
		fmt.Fprintf(out.Writer, "  %s\n", formatEvent(ev))
	}
	return nil
}

func formatEvent(ev worker.Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d] %s", ev.Seq, ev.Kind)
	if ev.Message != "" {
		fmt.Fprintf(&sb, " %s", ev.Message)
	}
	if ev.Channel != "" {
		fmt.Fprintf(&sb, " channel=%s", ev.Channel)
	}
	switch ev.Kind {
	case worker.EventSurfaceCreate, worker.EventSurfaceDestroy:
		fmt.Fprintf(&sb, " surface=%d", ev.Surface)
	case worker.EventStreamCreate, worker.EventStreamStop:
		fmt.Fprintf(&sb, " stream=%d", ev.Stream)
	case worker.EventMessageSent:
		fmt.Fprintf(&sb, " serial=%d", ev.Serial)
	}
	if len(ev.Detail) > 0 {
		keys := make([]string, 0, len(ev.Detail))
		for k := range ev.Detail {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%v", k, ev.Detail[k])
		}
	}
	return sb.String()
}

func toSummaryOutput(sum store.SessionSummary) *SummaryOutput {
	out := &SummaryOutput{
		LastSeq:        sum.LastSeq,
		Events:         sum.Events,
		Surfaces:       sum.Surfaces,
		ActiveStreams:  sum.ActiveStreams,
		StreamsCreated: sum.StreamsCreated,
		Channels:       sum.Channels,
		Gaps:           sum.Gaps,
	}
	if out.Surfaces == nil {
		out.Surfaces = []uint32{}
	}
	if out.ActiveStreams == nil {
		out.ActiveStreams = []int{}
	}
	if out.Channels == nil {
		out.Channels = []store.ChannelSummary{}
	}
	return out
}

func printSummary(out *OutputFormatter, sum store.SessionSummary) {
	w := out.Writer
	fmt.Fprintf(w, "Session %s\n", sum.Session)
	fmt.Fprintf(w, "  events:   %d (last seq %d)\n", sum.Events, sum.LastSeq)
	fmt.Fprintf(w, "  surfaces: %v\n", sum.Surfaces)
	fmt.Fprintf(w, "  streams:  %d created, active %v\n", sum.StreamsCreated, sum.ActiveStreams)
	for _, ch := range sum.Channels {
		state := "open"
		if !ch.Open {
			state = "closed: " + ch.Reason
		}
		fmt.Fprintf(w, "  channel %s kind=%s client=%s last_serial=%d (%s)\n", ch.ID, ch.Kind, ch.Client, ch.LastSerial, state)
		names := make([]string, 0, len(ch.Messages))
		for name := range ch.Messages {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "    %-20s %d\n", name, ch.Messages[name])
		}
	}
	if len(sum.Gaps) > 0 {
		fmt.Fprintf(w, "  gaps:     %v\n", sum.Gaps)
	}
}
