package canvas

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"

	"github.com/roach88/redworker/internal/ir"
	"github.com/roach88/redworker/internal/region"
)

type softSurface struct {
	img    *image.RGBA
	ctx    *gg.Context
	format ir.Format
}

// Soft is a software Backend keeping every surface as an RGBA image.
// Solid fills go through a gg context bound to the surface; blits go
// through x/image/draw. Not safe for concurrent use; each worker owns one.
type Soft struct {
	surfaces map[uint32]*softSurface
}

// NewSoft returns a backend with no surfaces.
func NewSoft() *Soft {
	return &Soft{surfaces: make(map[uint32]*softSurface)}
}

// CreateSurface implements Backend. Initial pixels are copied from data when
// it holds a full bitmap of the given format.
func (s *Soft) CreateSurface(id uint32, width, height int32, format ir.Format, data []byte) error {
	if _, ok := s.surfaces[id]; ok {
		return fmt.Errorf("canvas: surface %d already exists", id)
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("canvas: surface %d has empty size %dx%d", id, width, height)
	}
	var img *image.RGBA
	stride := width * int32(format.BytesPerPixel())
	if len(data) >= int(stride*height) && stride > 0 {
		img = bitmapImage(&ir.Bitmap{Format: format, Width: width, Height: height, Stride: stride, TopDown: true, Data: data})
	} else {
		img = image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	}
	s.surfaces[id] = &softSurface{img: img, ctx: gg.NewContextForRGBA(img), format: format}
	return nil
}

// DestroySurface implements Backend.
func (s *Soft) DestroySurface(id uint32) {
	delete(s.surfaces, id)
}

// Image returns the pixels of a surface, nil when it does not exist.
func (s *Soft) Image(id uint32) *image.RGBA {
	if surf, ok := s.surfaces[id]; ok {
		return surf.img
	}
	return nil
}

// SavePNG writes the pixels of a surface to path.
func (s *Soft) SavePNG(id uint32, path string) error {
	img := s.Image(id)
	if img == nil {
		return fmt.Errorf("canvas: no surface %d", id)
	}
	return gg.SavePNG(path, img)
}

// ReadPixels implements Backend.
func (s *Soft) ReadPixels(id uint32, r region.Rect) ([]byte, error) {
	surf, ok := s.surfaces[id]
	if !ok {
		return nil, fmt.Errorf("canvas: no surface %d", id)
	}
	return packRect(surf.img, toImageRect(r)), nil
}

// Render implements Backend.
func (s *Soft) Render(d *ir.Draw) error {
	surf, ok := s.surfaces[d.Surface]
	if !ok {
		return fmt.Errorf("canvas: no surface %d", d.Surface)
	}
	clip := d.ClipRegion()
	b := surf.img.Bounds()
	clip.IntersectRect(region.R(int32(b.Min.X), int32(b.Min.Y), int32(b.Max.X), int32(b.Max.Y)))
	if clip.IsEmpty() {
		return nil
	}

	switch d.Type {
	case ir.DrawFill:
		s.fill(surf, clip, argb(d.Brush.Color), d.Rop)
	case ir.DrawBlackness:
		s.fill(surf, clip, color.RGBA{A: 0xff}, ir.RopPut)
	case ir.DrawWhiteness:
		s.fill(surf, clip, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, ir.RopPut)
	case ir.DrawInvers:
		eachPixel(surf.img, clip, func(c color.RGBA) color.RGBA {
			return color.RGBA{R: ^c.R, G: ^c.G, B: ^c.B, A: c.A}
		})
	case ir.DrawCopy, ir.DrawBlend, ir.DrawTransparent, ir.DrawAlphaBlend:
		src, err := s.source(d)
		if err != nil {
			return err
		}
		s.blit(surf, d, clip, src)
	case ir.DrawCopyBits:
		bbox := toImageRect(d.BBox)
		sr := image.Rectangle{Min: image.Pt(int(d.SrcPos.X), int(d.SrcPos.Y))}
		sr.Max = sr.Min.Add(bbox.Size())
		tmp := image.NewRGBA(image.Rectangle{Max: bbox.Size()})
		draw.Draw(tmp, tmp.Bounds(), surf.img, sr.Min, draw.Src)
		composite(surf.img, clip, bbox.Min, tmp, nil, draw.Src)
	default:
		return fmt.Errorf("canvas: cannot render %s", d.Type)
	}
	return nil
}

func (s *Soft) fill(surf *softSurface, clip region.Region, c color.RGBA, rop ir.Rop) {
	if rop == 0 || rop == ir.RopPut {
		surf.ctx.SetColor(c)
		for _, rc := range clip.Rects() {
			surf.ctx.DrawRectangle(float64(rc.X1), float64(rc.Y1), float64(rc.Width()), float64(rc.Height()))
			surf.ctx.Fill()
		}
		return
	}
	eachPixel(surf.img, clip, func(dst color.RGBA) color.RGBA {
		return applyRop(rop, c, dst)
	})
}

func (s *Soft) source(d *ir.Draw) (image.Image, error) {
	switch d.Src.Kind {
	case ir.ImageBitmap:
		return bitmapImage(d.Src.Bitmap), nil
	case ir.ImageSurface:
		src, ok := s.surfaces[d.Src.Surface]
		if !ok {
			return nil, fmt.Errorf("canvas: source surface %d does not exist", d.Src.Surface)
		}
		// copy so a surface reading itself sees the pre-draw pixels
		sr := toImageRect(d.SrcArea)
		tmp := image.NewRGBA(sr)
		draw.Draw(tmp, sr, src.img, sr.Min, draw.Src)
		return tmp, nil
	default:
		return nil, fmt.Errorf("canvas: unknown image kind %d", int(d.Src.Kind))
	}
}

// blit scales the source area into a bbox-sized scratch image and
// composites it through the clip.
func (s *Soft) blit(surf *softSurface, d *ir.Draw, clip region.Region, src image.Image) {
	bbox := toImageRect(d.BBox)
	sr := toImageRect(d.SrcArea)
	tmp := image.NewRGBA(image.Rectangle{Max: bbox.Size()})
	if sr.Size() == bbox.Size() {
		draw.Draw(tmp, tmp.Bounds(), src, sr.Min, draw.Src)
	} else {
		var scaler draw.Scaler = draw.NearestNeighbor
		if d.Scale == ir.ScaleInterpolate {
			scaler = draw.ApproxBiLinear
		}
		scaler.Scale(tmp, tmp.Bounds(), src, sr, draw.Src, nil)
	}

	switch d.Type {
	case ir.DrawCopy:
		if d.Rop&ir.RopInversSrc != 0 {
			invert(tmp)
		}
		composite(surf.img, clip, bbox.Min, tmp, nil, draw.Src)
	case ir.DrawBlend:
		composite(surf.img, clip, bbox.Min, tmp, nil, draw.Over)
	case ir.DrawAlphaBlend:
		composite(surf.img, clip, bbox.Min, tmp, image.NewUniform(color.Alpha{A: d.Alpha}), draw.Over)
	case ir.DrawTransparent:
		key := argb(d.TransparentColor)
		for _, rc := range clip.Rects() {
			for y := rc.Y1; y < rc.Y2; y++ {
				for x := rc.X1; x < rc.X2; x++ {
					c := tmp.RGBAAt(int(x)-bbox.Min.X, int(y)-bbox.Min.Y)
					if c.R == key.R && c.G == key.G && c.B == key.B {
						continue
					}
					surf.img.SetRGBA(int(x), int(y), c)
				}
			}
		}
	}
}

// composite draws src (positioned at origin) through each rectangle of clip.
func composite(dst *image.RGBA, clip region.Region, origin image.Point, src image.Image, mask image.Image, op draw.Op) {
	for _, rc := range clip.Rects() {
		dr := toImageRect(rc)
		draw.DrawMask(dst, dr, src, dr.Min.Sub(origin), mask, image.Point{}, op)
	}
}

func eachPixel(img *image.RGBA, clip region.Region, fn func(color.RGBA) color.RGBA) {
	for _, rc := range clip.Rects() {
		for y := rc.Y1; y < rc.Y2; y++ {
			for x := rc.X1; x < rc.X2; x++ {
				img.SetRGBA(int(x), int(y), fn(img.RGBAAt(int(x), int(y))))
			}
		}
	}
}

func invert(img *image.RGBA) {
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = ^img.Pix[i]
		img.Pix[i+1] = ^img.Pix[i+1]
		img.Pix[i+2] = ^img.Pix[i+2]
	}
}

func applyRop(rop ir.Rop, src, dst color.RGBA) color.RGBA {
	if rop&ir.RopInversBrush != 0 {
		src = color.RGBA{R: ^src.R, G: ^src.G, B: ^src.B, A: src.A}
	}
	if rop&ir.RopInversDest != 0 {
		dst = color.RGBA{R: ^dst.R, G: ^dst.G, B: ^dst.B, A: dst.A}
	}
	op := func(a, b uint8) uint8 { return a }
	switch {
	case rop&ir.RopOr != 0:
		op = func(a, b uint8) uint8 { return a | b }
	case rop&ir.RopAnd != 0:
		op = func(a, b uint8) uint8 { return a & b }
	case rop&ir.RopXor != 0:
		op = func(a, b uint8) uint8 { return a ^ b }
	}
	return color.RGBA{R: op(src.R, dst.R), G: op(src.G, dst.G), B: op(src.B, dst.B), A: 0xff}
}
