package harness

import (
	"github.com/roach88/redworker/internal/ir"
	"github.com/roach88/redworker/internal/region"
)

var rops = map[string]ir.Rop{
	"":    ir.RopPut,
	"put": ir.RopPut,
	"or":  ir.RopOr,
	"and": ir.RopAnd,
	"xor": ir.RopXor,
}

func (r Rect) rect() region.Rect {
	return region.R(r[0], r[1], r[2], r[3])
}

// buildDraw converts a draw step into a draw command payload. The step
// was validated by ParseScenario.
func buildDraw(d *DrawStep) *ir.Draw {
	typ := ir.DrawFill
	if d.Type != "" {
		typ, _ = ir.ParseDrawType(d.Type)
	}
	effect := ir.EffectOpaque
	if d.Effect != "" {
		effect, _ = ir.ParseEffect(d.Effect)
	}

	out := &ir.Draw{
		Surface: d.Surface,
		Type:    typ,
		Effect:  effect,
		BBox:    d.BBox.rect(),
		Brush:   ir.Brush{Color: d.Color},
		Rop:     rops[d.Rop],
		Alpha:   d.Alpha,
	}
	for _, c := range d.Clip {
		out.Clip = append(out.Clip, c.rect())
	}
	if d.Key != nil {
		out.TransparentColor = *d.Key
	}
	if d.Self != nil {
		out.SelfBitmap = true
		out.SelfArea = d.Self.rect()
	}
	if len(d.SrcPos) == 2 {
		out.SrcPos = ir.Point{X: d.SrcPos[0], Y: d.SrcPos[1]}
	}

	switch {
	case d.Image != nil:
		b := buildBitmap(d.Image)
		out.Src = &ir.Image{Kind: ir.ImageBitmap, ID: d.Image.ID, CacheMe: d.Image.Cache, Bitmap: b}
		out.SrcArea = region.R(0, 0, b.Width, b.Height)
	case d.Source != nil:
		out.Src = &ir.Image{Kind: ir.ImageSurface, Surface: *d.Source}
		out.Deps = []ir.SurfaceDep{{Surface: *d.Source, Rect: out.BBox}}
	}
	if d.SrcArea != nil {
		out.SrcArea = d.SrcArea.rect()
		if d.Source != nil {
			out.Deps[0].Rect = out.SrcArea
		}
	}
	return out
}

// buildBitmap generates a top-down rgb32 bitmap. Gradients score as smooth
// content, checkers as sharp.
func buildBitmap(img *ImageStep) *ir.Bitmap {
	w, h := img.Width, img.Height
	b := &ir.Bitmap{Format: ir.FormatRGB32, Width: w, Height: h, Stride: w * 4, TopDown: true}
	b.Data = make([]byte, int(b.Stride)*int(h))
	for y := 0; y < int(h); y++ {
		for x := 0; x < int(w); x++ {
			p := b.Data[y*int(b.Stride)+x*4:]
			switch img.Pattern {
			case "gradient":
				p[0], p[1], p[2] = byte(x), byte(x), byte(y)
			case "checker":
				if (x+y)%2 == 0 {
					p[0], p[1], p[2] = 0xff, 0xff, 0xff
				}
			default:
				p[0], p[1], p[2] = byte(img.Color), byte(img.Color>>8), byte(img.Color>>16)
			}
			p[3] = 0xff
		}
	}
	return b
}

// buildCursor converts a cursor step into a cursor command payload.
func buildCursor(c *CursorStep) *ir.CursorCmd {
	pos := ir.Point{X: c.X, Y: c.Y}
	switch c.Op {
	case "set":
		shape := &ir.CursorShape{Width: c.Width, Height: c.Height}
		shape.Data = make([]byte, int(c.Width)*int(c.Height)*4)
		for i := 3; i < len(shape.Data); i += 4 {
			shape.Data[i] = 0xff
		}
		shape.ID = c.Shape
		if shape.ID == 0 {
			shape.ID = ir.CursorID(shape)
		}
		return &ir.CursorCmd{Op: ir.CursorSet, Pos: pos, Visible: true, Shape: shape}
	case "move":
		return &ir.CursorCmd{Op: ir.CursorMove, Pos: pos}
	case "hide":
		return &ir.CursorCmd{Op: ir.CursorHide}
	default:
		return &ir.CursorCmd{Op: ir.CursorTrail, TrailLength: c.Length, TrailFrequency: c.Freq}
	}
}
