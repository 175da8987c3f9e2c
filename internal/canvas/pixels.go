package canvas

import (
	"image"
	"image/color"

	"github.com/roach88/redworker/internal/ir"
	"github.com/roach88/redworker/internal/region"
)

func toImageRect(r region.Rect) image.Rectangle {
	return image.Rect(int(r.X1), int(r.Y1), int(r.X2), int(r.Y2))
}

func argb(c uint32) color.RGBA {
	return color.RGBA{R: uint8(c >> 16), G: uint8(c >> 8), B: uint8(c), A: 0xff}
}

// bitmapImage converts a guest bitmap to RGBA. Guest pixels are stored
// little-endian BGR(X/A); RGB16 is 5-6-5.
func bitmapImage(b *ir.Bitmap) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, int(b.Width), int(b.Height)))
	bpp := b.Format.BytesPerPixel()
	for y := 0; y < int(b.Height); y++ {
		srcY := y
		if !b.TopDown {
			srcY = int(b.Height) - 1 - y
		}
		row := b.Data[srcY*int(b.Stride):]
		for x := 0; x < int(b.Width); x++ {
			p := row[x*bpp:]
			var c color.RGBA
			switch b.Format {
			case ir.FormatRGB16:
				v := uint16(p[0]) | uint16(p[1])<<8
				c = color.RGBA{
					R: uint8((v >> 11 & 0x1f) << 3),
					G: uint8((v >> 5 & 0x3f) << 2),
					B: uint8((v & 0x1f) << 3),
					A: 0xff,
				}
			case ir.FormatRGB24, ir.FormatRGB32:
				c = color.RGBA{R: p[2], G: p[1], B: p[0], A: 0xff}
			case ir.FormatRGBA:
				c = color.RGBA{R: p[2], G: p[1], B: p[0], A: p[3]}
			}
			out.SetRGBA(x, y, c)
		}
	}
	return out
}

// packRect copies r of img into tightly packed RGBA rows. Pixels outside
// img read as zero.
func packRect(img *image.RGBA, r image.Rectangle) []byte {
	w, h := r.Dx(), r.Dy()
	out := make([]byte, w*h*4)
	inside := r.Intersect(img.Bounds())
	for y := inside.Min.Y; y < inside.Max.Y; y++ {
		src := img.Pix[img.PixOffset(inside.Min.X, y):img.PixOffset(inside.Max.X, y)]
		dst := out[((y-r.Min.Y)*w+(inside.Min.X-r.Min.X))*4:]
		copy(dst, src)
	}
	return out
}
