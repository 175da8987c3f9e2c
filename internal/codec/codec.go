// Package codec provides the image encoders used when an image has to travel
// as pixels, and the fallback chain that picks one per compression mode.
//
// Every encoder either returns a buffer strictly smaller than the raw
// pixels or fails; the chain then tries the next encoder and ends with raw
// pixels, so an encode attempt never fails as a whole.
package codec

import (
	"errors"
	"fmt"

	"github.com/roach88/redworker/internal/ir"
)

// ErrTooLarge is returned when the encoded output would not be smaller than
// the raw pixels.
var ErrTooLarge = errors.New("codec: encoded output not smaller than input")

// Kind identifies the wire encoding of an image.
type Kind int

const (
	KindRaw Kind = iota
	KindLZ
	KindGLZ
	KindQuic
)

// String returns the encoding name.
func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindLZ:
		return "lz"
	case KindGLZ:
		return "glz"
	case KindQuic:
		return "quic"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Image is the input of an encoder.
type Image struct {
	ID      uint64
	Format  ir.Format
	Width   int
	Height  int
	Stride  int
	TopDown bool
	Pixels  []byte
	// Release is handed to dictionary encoders; it runs once the image
	// leaves the shared dictionary window.
	Release func()
}

// RawSize returns the size of the pixel rows, excluding stride padding.
func (img *Image) RawSize() int {
	return img.Width * img.Height * img.Format.BytesPerPixel()
}

// Encoded is the output of an encoder.
type Encoded struct {
	Kind Kind
	Data []byte
	// Ref is set when a dictionary encoder emitted a back reference to an
	// image already in the window.
	Ref bool
}

// Encoder compresses one image.
type Encoder interface {
	Kind() Kind
	Encode(img *Image) (Encoded, error)
}

// Raw returns the tightly packed pixel rows of img.
func Raw(img *Image) Encoded {
	bpp := img.Format.BytesPerPixel()
	row := img.Width * bpp
	if img.Stride == row {
		return Encoded{Kind: KindRaw, Data: img.Pixels[:row*img.Height]}
	}
	out := make([]byte, 0, row*img.Height)
	for y := 0; y < img.Height; y++ {
		off := y * img.Stride
		out = append(out, img.Pixels[off:off+row]...)
	}
	return Encoded{Kind: KindRaw, Data: out}
}
