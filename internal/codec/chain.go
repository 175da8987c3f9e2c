package codec

import (
	"errors"
	"fmt"
	"log/slog"
)

// MinCompressPixels is the smallest image area worth compressing.
const MinCompressPixels = 54

// Mode is the image compression mode negotiated for a worker.
type Mode int

const (
	ModeOff Mode = iota
	ModeAutoGLZ
	ModeAutoLZ
	ModeQuic
	ModeGLZ
	ModeLZ
)

var modeNames = map[Mode]string{
	ModeOff:     "off",
	ModeAutoGLZ: "auto_glz",
	ModeAutoLZ:  "auto_lz",
	ModeQuic:    "quic",
	ModeGLZ:     "glz",
	ModeLZ:      "lz",
}

// String returns the configuration name of the mode.
func (m Mode) String() string {
	if n, ok := modeNames[m]; ok {
		return n
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode maps a configuration name to a Mode.
func ParseMode(s string) (Mode, error) {
	for m, n := range modeNames {
		if n == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown image compression mode %q", s)
}

// Chain holds the encoders available to one channel. GLZ is nil when the
// channel has no shared dictionary.
type Chain struct {
	LZ   Encoder
	Quic Encoder
	GLZ  Encoder
}

// NewChain returns a chain with the lossless encoders and an optional
// dictionary encoder.
func NewChain(glz *GLZ) *Chain {
	c := &Chain{LZ: NewLZ(), Quic: NewQuic()}
	if glz != nil {
		c.GLZ = glz
	}
	return c
}

// Select returns the encoders to try, in order, for an image under mode.
// photographic marks images whose content is smooth enough that the
// delta encoder is expected to win.
func (c *Chain) Select(mode Mode, photographic bool) []Encoder {
	var out []Encoder
	add := func(e Encoder) {
		if e != nil {
			out = append(out, e)
		}
	}
	switch mode {
	case ModeOff:
	case ModeQuic:
		add(c.Quic)
		add(c.LZ)
	case ModeGLZ:
		add(c.GLZ)
		add(c.LZ)
	case ModeLZ:
		add(c.LZ)
	case ModeAutoGLZ, ModeAutoLZ:
		if photographic {
			add(c.Quic)
		}
		if mode == ModeAutoGLZ {
			add(c.GLZ)
		}
		add(c.LZ)
	}
	return out
}

// Encode tries every selected encoder and returns the first success, or
// the raw pixels when all fail. Images below MinCompressPixels always go
// raw.
func (c *Chain) Encode(mode Mode, photographic bool, img *Image) Encoded {
	if img.Width*img.Height < MinCompressPixels {
		return Raw(img)
	}
	for _, e := range c.Select(mode, photographic) {
		enc, err := e.Encode(img)
		if err == nil {
			return enc
		}
		if !errors.Is(err, ErrTooLarge) {
			slog.Warn("image encoder failed, falling back",
				"encoder", e.Kind().String(),
				"image", img.ID,
				"error", err,
			)
		}
	}
	return Raw(img)
}
