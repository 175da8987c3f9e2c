package worker

import (
	"time"

	"github.com/roach88/redworker/internal/codec"
	"github.com/roach88/redworker/internal/dict"
)

// Defaults for Options. The stream constants are not configurable.
const (
	DefaultNumDrawables          = 1000
	DefaultNumSurfaces           = 1024
	DefaultNumStreams            = 50
	DefaultMaxPipeSize           = 50
	DefaultBusyBudget            = 10 * time.Millisecond
	DefaultPollRetries           = 200
	DefaultPollInterval          = 10 * time.Millisecond
	DefaultStreamTimeout         = time.Second
	DefaultStreamDetectionDelta  = 200 * time.Millisecond
	DefaultStreamContinuousDelta = time.Second
	DefaultDetachTimeout         = 15 * time.Second
	DefaultAckWindow             = 20
	DefaultPixmapCacheSize       = 16 << 20
	DefaultGLZDictionarySize     = 16 << 20
)

type options struct {
	numDrawables          int
	numSurfaces           int
	numStreams            int
	maxPipeSize           int
	busyBudget            time.Duration
	pollRetries           int
	pollInterval          time.Duration
	streamTimeout         time.Duration
	streamDetectionDelta  time.Duration
	streamContinuousDelta time.Duration
	detachTimeout         time.Duration
	compression           codec.Mode
	streaming             StreamingMode
	clock                 Clock
	dicts                 *dict.Registry
	journal               Journal
	session               string
}

func defaultOptions() options {
	return options{
		numDrawables:          DefaultNumDrawables,
		numSurfaces:           DefaultNumSurfaces,
		numStreams:            DefaultNumStreams,
		maxPipeSize:           DefaultMaxPipeSize,
		busyBudget:            DefaultBusyBudget,
		pollRetries:           DefaultPollRetries,
		pollInterval:          DefaultPollInterval,
		streamTimeout:         DefaultStreamTimeout,
		streamDetectionDelta:  DefaultStreamDetectionDelta,
		streamContinuousDelta: DefaultStreamContinuousDelta,
		detachTimeout:         DefaultDetachTimeout,
		compression:           codec.ModeAutoGLZ,
		streaming:             StreamingFilter,
	}
}

// Option configures a Worker.
type Option func(*options)

// WithNumDrawables sets the drawable pool capacity.
func WithNumDrawables(n int) Option {
	return func(o *options) { o.numDrawables = n }
}

// WithNumSurfaces sets the number of surface slots.
func WithNumSurfaces(n int) Option {
	return func(o *options) { o.numSurfaces = n }
}

// WithNumStreams sets how many streams may be active at once.
func WithNumStreams(n int) Option {
	return func(o *options) { o.numStreams = n }
}

// WithMaxPipeSize sets the pipe length at which command processing pauses.
func WithMaxPipeSize(n int) Option {
	return func(o *options) { o.maxPipeSize = n }
}

// WithBusyBudget caps one command processing slice.
func WithBusyBudget(d time.Duration) Option {
	return func(o *options) { o.busyBudget = d }
}

// WithPolling sets how often an empty command source is polled again
// before the worker arms a notification.
func WithPolling(retries int, interval time.Duration) Option {
	return func(o *options) {
		o.pollRetries = retries
		o.pollInterval = interval
	}
}

// WithStreamTiming sets the stream timeout and the maximum frame gaps for
// detecting and continuing a stream.
func WithStreamTiming(timeout, detection, continuous time.Duration) Option {
	return func(o *options) {
		o.streamTimeout = timeout
		o.streamDetectionDelta = detection
		o.streamContinuousDelta = continuous
	}
}

// WithDetachTimeout bounds how long a disconnect waits for a blocked send.
func WithDetachTimeout(d time.Duration) Option {
	return func(o *options) { o.detachTimeout = d }
}

// WithCompression sets the initial image compression mode.
func WithCompression(m codec.Mode) Option {
	return func(o *options) { o.compression = m }
}

// WithStreaming sets the initial streaming mode.
func WithStreaming(m StreamingMode) Option {
	return func(o *options) { o.streaming = m }
}

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithDictionaries shares a dictionary registry between workers. Without
// it the worker uses a private registry.
func WithDictionaries(r *dict.Registry) Option {
	return func(o *options) { o.dicts = r }
}

// WithJournal records worker events under session.
func WithJournal(j Journal, session string) Option {
	return func(o *options) {
		o.journal = j
		o.session = session
	}
}
