package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/redworker/internal/region"
)

func validBitmap() *Image {
	return &Image{
		Kind:   ImageBitmap,
		Bitmap: &Bitmap{Format: FormatRGB32, Width: 4, Height: 4, Stride: 16, Data: make([]byte, 64)},
	}
}

func TestDraw_Validate(t *testing.T) {
	tests := []struct {
		name    string
		draw    Draw
		wantErr string
	}{
		{
			name: "fill ok",
			draw: Draw{Type: DrawFill, Effect: EffectOpaque, BBox: region.R(0, 0, 10, 10)},
		},
		{
			name:    "unknown type",
			draw:    Draw{Type: 99, BBox: region.R(0, 0, 1, 1)},
			wantErr: "unknown draw type",
		},
		{
			name:    "unknown effect",
			draw:    Draw{Type: DrawFill, Effect: 42, BBox: region.R(0, 0, 1, 1)},
			wantErr: "unknown effect",
		},
		{
			name:    "inverted bbox",
			draw:    Draw{Type: DrawFill, BBox: region.R(10, 0, 0, 10)},
			wantErr: "malformed bbox",
		},
		{
			name:    "copy without source",
			draw:    Draw{Type: DrawCopy, BBox: region.R(0, 0, 4, 4), SrcArea: region.R(0, 0, 4, 4)},
			wantErr: "without source image",
		},
		{
			name: "too many deps",
			draw: Draw{Type: DrawFill, BBox: region.R(0, 0, 4, 4), Deps: []SurfaceDep{
				{Surface: 1}, {Surface: 2}, {Surface: 3}, {Surface: 4},
			}},
			wantErr: "too many surface dependencies",
		},
		{
			name: "copy ok",
			draw: Draw{Type: DrawCopy, BBox: region.R(0, 0, 4, 4), Src: validBitmap(), SrcArea: region.R(0, 0, 4, 4)},
		},
		{
			name: "short bitmap",
			draw: Draw{Type: DrawCopy, BBox: region.R(0, 0, 4, 4), SrcArea: region.R(0, 0, 4, 4), Src: &Image{
				Kind:   ImageBitmap,
				Bitmap: &Bitmap{Format: FormatRGB32, Width: 4, Height: 4, Stride: 16, Data: make([]byte, 10)},
			}},
			wantErr: "data too short",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.draw.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDraw_ClipRegion(t *testing.T) {
	d := Draw{BBox: region.R(0, 0, 10, 10)}
	assert.Equal(t, int64(100), d.ClipRegion().Area())

	d.Clip = []region.Rect{region.R(5, 5, 20, 20)}
	assert.Equal(t, []region.Rect{region.R(5, 5, 10, 10)}, d.ClipRegion().Rects())
}

func TestDraw_SameOutput(t *testing.T) {
	a := &Draw{Type: DrawFill, Brush: Brush{Color: 0xff0000}, Rop: RopPut}
	b := &Draw{Type: DrawFill, Brush: Brush{Color: 0xff0000}, Rop: RopPut}
	c := &Draw{Type: DrawFill, Brush: Brush{Color: 0x00ff00}, Rop: RopPut}

	assert.True(t, a.SameOutput(b))
	assert.False(t, a.SameOutput(c))
	assert.True(t, (&Draw{Type: DrawInvers}).SameOutput(&Draw{Type: DrawInvers}))
	assert.False(t, (&Draw{Type: DrawCopy}).SameOutput(&Draw{Type: DrawCopy}))
}

func TestNames_RoundTrip(t *testing.T) {
	for typ := DrawFill; typ <= DrawInvers; typ++ {
		got, ok := ParseDrawType(typ.String())
		assert.True(t, ok)
		assert.Equal(t, typ, got)
	}
	e, ok := ParseEffect("revert_on_dup")
	assert.True(t, ok)
	assert.Equal(t, EffectRevertOnDup, e)
	f, ok := ParseFormat("rgb16")
	assert.True(t, ok)
	assert.Equal(t, 2, f.BytesPerPixel())
}
