// Package config loads the worker configuration from TOML and checks it
// against an embedded CUE schema.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/BurntSushi/toml"

	"github.com/roach88/redworker/internal/codec"
	"github.com/roach88/redworker/internal/worker"
)

//go:embed schema.cue
var schemaCUE string

// Duration is a time.Duration written as a string ("10ms") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the worker configuration.
type Config struct {
	NumDrawables          int      `toml:"num_drawables"`
	NumSurfaces           int      `toml:"num_surfaces"`
	NumStreams            int      `toml:"num_streams"`
	MaxPipeSize           int      `toml:"max_pipe_size"`
	BusyBudget            Duration `toml:"busy_budget"`
	PollRetries           int      `toml:"poll_retries"`
	PollInterval          Duration `toml:"poll_interval"`
	StreamTimeout         Duration `toml:"stream_timeout"`
	StreamDetectionDelta  Duration `toml:"stream_detection_delta"`
	StreamContinuousDelta Duration `toml:"stream_continuous_delta"`
	DetachTimeout         Duration `toml:"detach_timeout"`
	ImageCompression      string   `toml:"image_compression"`
	StreamingVideo        string   `toml:"streaming_video"`
	AckWindow             int      `toml:"ack_window"`
	PixmapCacheSize       int64    `toml:"pixmap_cache_size"`
	GLZDictionarySize     int64    `toml:"glz_dictionary_size"`
	// Journal is the SQLite journal path; empty disables journaling.
	Journal  string `toml:"journal"`
	LogLevel string `toml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		NumDrawables:          worker.DefaultNumDrawables,
		NumSurfaces:           worker.DefaultNumSurfaces,
		NumStreams:            worker.DefaultNumStreams,
		MaxPipeSize:           worker.DefaultMaxPipeSize,
		BusyBudget:            Duration{worker.DefaultBusyBudget},
		PollRetries:           worker.DefaultPollRetries,
		PollInterval:          Duration{worker.DefaultPollInterval},
		StreamTimeout:         Duration{worker.DefaultStreamTimeout},
		StreamDetectionDelta:  Duration{worker.DefaultStreamDetectionDelta},
		StreamContinuousDelta: Duration{worker.DefaultStreamContinuousDelta},
		DetachTimeout:         Duration{worker.DefaultDetachTimeout},
		ImageCompression:      codec.ModeAutoGLZ.String(),
		StreamingVideo:        worker.StreamingFilter.String(),
		AckWindow:             worker.DefaultAckWindow,
		PixmapCacheSize:       worker.DefaultPixmapCacheSize,
		GLZDictionarySize:     worker.DefaultGLZDictionarySize,
		LogLevel:              "info",
	}
}

// Load reads a TOML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(string(data))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults and validates the result.
// Keys the configuration does not know are rejected.
func Parse(data string) (Config, error) {
	cfg := Default()
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against the schema.
func Validate(cfg Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(cfg.fields()))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Details: cueerrors.Details(err, nil)}
	}

	// ordering the schema cannot express
	if cfg.StreamDetectionDelta.Duration > cfg.StreamContinuousDelta.Duration {
		return &ValidationError{Details: "stream_detection_delta must not exceed stream_continuous_delta"}
	}
	return nil
}

// ValidationError reports a configuration that does not satisfy the
// schema.
type ValidationError struct {
	Details string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.TrimSpace(e.Details)
}

// fields returns the configuration keyed by TOML names.
func (c Config) fields() map[string]any {
	return map[string]any{
		"num_drawables":           c.NumDrawables,
		"num_surfaces":            c.NumSurfaces,
		"num_streams":             c.NumStreams,
		"max_pipe_size":           c.MaxPipeSize,
		"busy_budget":             c.BusyBudget.String(),
		"poll_retries":            c.PollRetries,
		"poll_interval":           c.PollInterval.String(),
		"stream_timeout":          c.StreamTimeout.String(),
		"stream_detection_delta":  c.StreamDetectionDelta.String(),
		"stream_continuous_delta": c.StreamContinuousDelta.String(),
		"detach_timeout":          c.DetachTimeout.String(),
		"image_compression":       c.ImageCompression,
		"streaming_video":         c.StreamingVideo,
		"ack_window":              c.AckWindow,
		"pixmap_cache_size":       c.PixmapCacheSize,
		"glz_dictionary_size":     c.GLZDictionarySize,
		"journal":                 c.Journal,
		"log_level":               c.LogLevel,
	}
}

// Options converts the configuration into worker options. cfg must have
// passed Validate.
func (c Config) Options() ([]worker.Option, error) {
	mode, err := codec.ParseMode(c.ImageCompression)
	if err != nil {
		return nil, err
	}
	streaming, err := worker.ParseStreamingMode(c.StreamingVideo)
	if err != nil {
		return nil, err
	}
	return []worker.Option{
		worker.WithNumDrawables(c.NumDrawables),
		worker.WithNumSurfaces(c.NumSurfaces),
		worker.WithNumStreams(c.NumStreams),
		worker.WithMaxPipeSize(c.MaxPipeSize),
		worker.WithBusyBudget(c.BusyBudget.Duration),
		worker.WithPolling(c.PollRetries, c.PollInterval.Duration),
		worker.WithStreamTiming(c.StreamTimeout.Duration, c.StreamDetectionDelta.Duration, c.StreamContinuousDelta.Duration),
		worker.WithDetachTimeout(c.DetachTimeout.Duration),
		worker.WithCompression(mode),
		worker.WithStreaming(streaming),
	}, nil
}

// Connect returns a connect control carrying the configured channel
// defaults.
func (c Config) Connect(kind worker.ChannelKind, conn worker.Conn, client string) worker.ConnectChannel {
	return worker.ConnectChannel{
		Kind:              kind,
		Conn:              conn,
		Client:            client,
		AckWindow:         c.AckWindow,
		PixmapCacheSize:   c.PixmapCacheSize,
		GLZDictionarySize: c.GLZDictionarySize,
	}
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
