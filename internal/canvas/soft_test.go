package canvas

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redworker/internal/ir"
	"github.com/roach88/redworker/internal/region"
)

func newSoft(t *testing.T) *Soft {
	t.Helper()
	s := NewSoft()
	require.NoError(t, s.CreateSurface(0, 32, 32, ir.FormatRGB32, nil))
	return s
}

func pixel(t *testing.T, s *Soft, x, y int32) [4]byte {
	t.Helper()
	px, err := s.ReadPixels(0, region.R(x, y, x+1, y+1))
	require.NoError(t, err)
	return [4]byte{px[0], px[1], px[2], px[3]}
}

func TestSoft_CreateSurfaceTwiceFails(t *testing.T) {
	s := newSoft(t)
	assert.Error(t, s.CreateSurface(0, 8, 8, ir.FormatRGB32, nil))
	assert.Error(t, s.CreateSurface(1, 0, 8, ir.FormatRGB32, nil))
}

func TestSoft_FillRespectsClip(t *testing.T) {
	s := newSoft(t)
	err := s.Render(&ir.Draw{
		Surface: 0,
		Type:    ir.DrawFill,
		BBox:    region.R(0, 0, 20, 20),
		Clip:    []region.Rect{region.R(0, 0, 10, 10)},
		Brush:   ir.Brush{Color: 0xff0000},
		Rop:     ir.RopPut,
	})
	require.NoError(t, err)

	assert.Equal(t, [4]byte{0xff, 0, 0, 0xff}, pixel(t, s, 5, 5))
	assert.Equal(t, [4]byte{0, 0, 0, 0}, pixel(t, s, 15, 15))
}

func TestSoft_FillXor(t *testing.T) {
	s := newSoft(t)
	fill := &ir.Draw{Type: ir.DrawFill, BBox: region.R(0, 0, 4, 4), Brush: ir.Brush{Color: 0x0f0f0f}, Rop: ir.RopXor}
	require.NoError(t, s.Render(fill))
	require.NoError(t, s.Render(fill))
	assert.Equal(t, [4]byte{0, 0, 0, 0xff}, pixel(t, s, 1, 1))
}

func TestSoft_CopyBitmap(t *testing.T) {
	s := newSoft(t)
	data := make([]byte, 4*4*4)
	for i := 0; i < len(data); i += 4 {
		data[i], data[i+1], data[i+2] = 0x10, 0x20, 0x30 // B, G, R
	}
	err := s.Render(&ir.Draw{
		Type: ir.DrawCopy,
		BBox: region.R(8, 8, 12, 12),
		Src: &ir.Image{Kind: ir.ImageBitmap, Bitmap: &ir.Bitmap{
			Format: ir.FormatRGB32, Width: 4, Height: 4, Stride: 16, TopDown: true, Data: data,
		}},
		SrcArea: region.R(0, 0, 4, 4),
		Rop:     ir.RopPut,
	})
	require.NoError(t, err)
	assert.Equal(t, [4]byte{0x30, 0x20, 0x10, 0xff}, pixel(t, s, 9, 9))
	assert.Equal(t, [4]byte{0, 0, 0, 0}, pixel(t, s, 7, 7))
}

func TestSoft_CopyBitsMovesPixels(t *testing.T) {
	s := newSoft(t)
	require.NoError(t, s.Render(&ir.Draw{Type: ir.DrawWhiteness, BBox: region.R(0, 0, 4, 4)}))
	require.NoError(t, s.Render(&ir.Draw{
		Type:   ir.DrawCopyBits,
		BBox:   region.R(10, 10, 14, 14),
		SrcPos: ir.Point{X: 0, Y: 0},
	}))
	assert.Equal(t, [4]byte{0xff, 0xff, 0xff, 0xff}, pixel(t, s, 11, 11))
}

func TestSoft_CopyFromSurface(t *testing.T) {
	s := newSoft(t)
	require.NoError(t, s.CreateSurface(1, 8, 8, ir.FormatRGB32, nil))
	require.NoError(t, s.Render(&ir.Draw{Surface: 1, Type: ir.DrawWhiteness, BBox: region.R(0, 0, 8, 8)}))

	require.NoError(t, s.Render(&ir.Draw{
		Type:    ir.DrawCopy,
		BBox:    region.R(0, 0, 16, 16),
		Src:     &ir.Image{Kind: ir.ImageSurface, Surface: 1},
		SrcArea: region.R(0, 0, 8, 8),
		Scale:   ir.ScaleNearest,
	}))
	assert.Equal(t, [4]byte{0xff, 0xff, 0xff, 0xff}, pixel(t, s, 15, 15), "scaled 2x")
}

func TestSoft_InversTwiceRestores(t *testing.T) {
	s := newSoft(t)
	require.NoError(t, s.Render(&ir.Draw{Type: ir.DrawFill, BBox: region.R(0, 0, 8, 8), Brush: ir.Brush{Color: 0x123456}}))
	before := pixel(t, s, 2, 2)
	inv := &ir.Draw{Type: ir.DrawInvers, BBox: region.R(0, 0, 8, 8)}
	require.NoError(t, s.Render(inv))
	assert.NotEqual(t, before, pixel(t, s, 2, 2))
	require.NoError(t, s.Render(inv))
	assert.Equal(t, before, pixel(t, s, 2, 2))
}

func TestSoft_SavePNG(t *testing.T) {
	s := newSoft(t)
	path := filepath.Join(t.TempDir(), "primary.png")
	require.NoError(t, s.SavePNG(0, path))
	assert.FileExists(t, path)
	assert.Error(t, s.SavePNG(9, path))
}

func TestBitmapImage_BottomUp(t *testing.T) {
	b := &ir.Bitmap{Format: ir.FormatRGB24, Width: 1, Height: 2, Stride: 3, Data: []byte{
		0, 0, 0xff, // last row: red
		0xff, 0, 0, // first row: blue
	}}
	img := bitmapImage(b)
	assert.Equal(t, uint8(0xff), img.RGBAAt(0, 0).B)
	assert.Equal(t, uint8(0xff), img.RGBAAt(0, 1).R)
}
