package codec

import (
	"encoding/binary"

	"github.com/roach88/redworker/internal/dict"
)

// GLZ is the dictionary encoder: images are recorded in a dictionary shared
// by all display channels of a client, and an image already in the window
// is sent as an 8-byte back reference instead of pixels.
type GLZ struct {
	dict  *dict.Dictionary
	owner *dict.Owner
	lz    LZ
}

// NewGLZ returns a dictionary encoder for one channel.
func NewGLZ(d *dict.Dictionary, owner *dict.Owner) *GLZ {
	return &GLZ{dict: d, owner: owner, lz: LZ{Quality: 6}}
}

// Kind implements Encoder.
func (e *GLZ) Kind() Kind { return KindGLZ }

// Encode implements Encoder. Images without a content id cannot be
// referenced later and are compressed without entering the window.
// img.Release runs only when Encode succeeds with a content id.
func (e *GLZ) Encode(img *Image) (Encoded, error) {
	if img.ID == 0 {
		return e.compress(img)
	}
	var out Encoded
	_, err := e.dict.Encode(e.owner, img.ID, int64(img.RawSize()), img.Release, func(hit bool) error {
		if hit {
			out = Encoded{Kind: KindGLZ, Data: binary.BigEndian.AppendUint64(nil, img.ID), Ref: true}
			return nil
		}
		enc, err := e.compress(img)
		out = enc
		return err
	})
	if err != nil {
		return Encoded{}, err
	}
	return out, nil
}

func (e *GLZ) compress(img *Image) (Encoded, error) {
	enc, err := e.lz.Encode(img)
	if err != nil {
		return Encoded{}, err
	}
	enc.Kind = KindGLZ
	return enc, nil
}
