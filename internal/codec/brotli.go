package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// LZ is a lossless encoder compressing packed pixel rows with brotli.
type LZ struct {
	// Quality is the brotli quality level, 0..11.
	Quality int
}

// NewLZ returns an LZ encoder at a quality suited to interactive use.
func NewLZ() *LZ {
	return &LZ{Quality: 5}
}

// Kind implements Encoder.
func (e *LZ) Kind() Kind { return KindLZ }

// Encode implements Encoder.
func (e *LZ) Encode(img *Image) (Encoded, error) {
	raw := Raw(img).Data
	data, err := compress(raw, e.Quality)
	if err != nil {
		return Encoded{}, err
	}
	return Encoded{Kind: KindLZ, Data: data}, nil
}

// Quic is a lossless encoder for photographic content: it replaces every
// byte by its difference to the same channel of the left neighbour before
// compressing, which turns smooth gradients into runs.
type Quic struct {
	Quality int
}

// NewQuic returns a Quic encoder.
func NewQuic() *Quic {
	return &Quic{Quality: 4}
}

// Kind implements Encoder.
func (e *Quic) Kind() Kind { return KindQuic }

// Encode implements Encoder.
func (e *Quic) Encode(img *Image) (Encoded, error) {
	raw := Raw(img).Data
	bpp := img.Format.BytesPerPixel()
	row := img.Width * bpp
	filtered := make([]byte, len(raw))
	for y := 0; y < img.Height; y++ {
		line := raw[y*row : (y+1)*row]
		out := filtered[y*row : (y+1)*row]
		for x := range line {
			if x < bpp {
				out[x] = line[x]
				continue
			}
			out[x] = line[x] - line[x-bpp]
		}
	}
	data, err := compress(filtered, e.Quality)
	if err != nil {
		return Encoded{}, err
	}
	return Encoded{Kind: KindQuic, Data: data}, nil
}

// Decode reverses LZ and Quic encodings into packed rows. rowBytes and bpp
// describe the image; they are only used for Quic.
func Decode(enc Encoded, rowBytes, bpp int) ([]byte, error) {
	switch enc.Kind {
	case KindRaw:
		return enc.Data, nil
	case KindLZ, KindGLZ:
		return decompress(enc.Data)
	case KindQuic:
		data, err := decompress(enc.Data)
		if err != nil {
			return nil, err
		}
		if rowBytes <= 0 || len(data)%rowBytes != 0 {
			return nil, fmt.Errorf("codec: quic payload of %d bytes is not a multiple of row size %d", len(data), rowBytes)
		}
		for off := 0; off < len(data); off += rowBytes {
			line := data[off : off+rowBytes]
			for x := bpp; x < len(line); x++ {
				line[x] += line[x-bpp]
			}
		}
		return data, nil
	default:
		return nil, fmt.Errorf("codec: cannot decode %s", enc.Kind)
	}
}

func compress(raw []byte, quality int) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, quality)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("codec: brotli write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("codec: brotli close: %w", err)
	}
	if buf.Len() >= len(raw) {
		return nil, ErrTooLarge
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("codec: brotli read: %w", err)
	}
	return out, nil
}
