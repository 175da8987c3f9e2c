package ir

import (
	"fmt"

	"github.com/roach88/redworker/internal/region"
)

// MaxDeps is the number of source-surface slots a draw may carry.
const MaxDeps = 3

// DrawType is the rendering operation of a Draw.
type DrawType int

const (
	DrawFill DrawType = iota + 1
	DrawCopy
	DrawBlend
	DrawTransparent
	DrawAlphaBlend
	DrawCopyBits
	DrawBlackness
	DrawWhiteness
	DrawInvers
)

var drawTypeNames = map[DrawType]string{
	DrawFill:        "fill",
	DrawCopy:        "copy",
	DrawBlend:       "blend",
	DrawTransparent: "transparent",
	DrawAlphaBlend:  "alpha_blend",
	DrawCopyBits:    "copy_bits",
	DrawBlackness:   "blackness",
	DrawWhiteness:   "whiteness",
	DrawInvers:      "invers",
}

// String returns the draw type name.
func (t DrawType) String() string {
	if n, ok := drawTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("draw(%d)", int(t))
}

// ParseDrawType maps a name produced by String back to a DrawType.
func ParseDrawType(s string) (DrawType, bool) {
	for t, n := range drawTypeNames {
		if n == s {
			return t, true
		}
	}
	return 0, false
}

// Effect describes how a draw interacts with what lies under it.
type Effect int

const (
	// EffectBlend output depends on the destination pixels.
	EffectBlend Effect = iota
	// EffectOpaque output fully replaces the destination pixels.
	EffectOpaque
	// EffectRevertOnDup draws twice in a row cancel each other.
	EffectRevertOnDup
	// EffectNopOnDup draws twice in a row equal drawing once.
	EffectNopOnDup
	// EffectOpaqueBrush is a brush fill that replaces same-geometry fills.
	EffectOpaqueBrush
)

var effectNames = map[Effect]string{
	EffectBlend:       "blend",
	EffectOpaque:      "opaque",
	EffectRevertOnDup: "revert_on_dup",
	EffectNopOnDup:    "nop_on_dup",
	EffectOpaqueBrush: "opaque_brush",
}

// String returns the effect name.
func (e Effect) String() string {
	if n, ok := effectNames[e]; ok {
		return n
	}
	return fmt.Sprintf("effect(%d)", int(e))
}

// ParseEffect maps a name produced by String back to an Effect.
func ParseEffect(s string) (Effect, bool) {
	for e, n := range effectNames {
		if n == s {
			return e, true
		}
	}
	return 0, false
}

// Rop is a raster-operation descriptor (bit set).
type Rop uint16

const (
	RopInversSrc   Rop = 1 << 0
	RopInversBrush Rop = 1 << 1
	RopInversDest  Rop = 1 << 2
	RopPut         Rop = 1 << 3
	RopOr          Rop = 1 << 4
	RopAnd         Rop = 1 << 5
	RopXor         Rop = 1 << 6
)

// ScaleMode selects the filter of scaled copies.
type ScaleMode int

const (
	ScaleNearest ScaleMode = iota
	ScaleInterpolate
)

// Brush is a solid fill color (0xAARRGGBB).
type Brush struct {
	Color uint32
}

// SurfaceDep records that a draw reads Rect of another surface.
type SurfaceDep struct {
	Surface uint32
	Rect    region.Rect
}

// Draw is one rendering command targeting a surface.
type Draw struct {
	Surface uint32
	Type    DrawType
	Effect  Effect
	BBox    region.Rect
	// Clip restricts the output. Nil means no clip beyond BBox.
	Clip []region.Rect
	// Deps lists the other surfaces this draw reads, at most MaxDeps.
	Deps []SurfaceDep
	// SelfBitmap asks the worker to capture SelfArea of the target before
	// the draw is rendered; the capture rides along with the draw.
	SelfBitmap bool
	SelfArea   region.Rect

	Brush Brush
	Rop   Rop

	// Src is the source image of Copy, Blend, Transparent and AlphaBlend.
	Src     *Image
	SrcArea region.Rect
	Scale   ScaleMode
	// TransparentColor is the color keyed out by Transparent.
	TransparentColor uint32
	// Alpha is the constant alpha of AlphaBlend.
	Alpha uint8

	// SrcPos is the source origin of CopyBits.
	SrcPos Point
}

// Validate checks the geometry and vocabulary of d. Surface existence and
// bounds are checked by the worker.
func (d *Draw) Validate() error {
	if _, ok := drawTypeNames[d.Type]; !ok {
		return fmt.Errorf("unknown draw type %d", int(d.Type))
	}
	if _, ok := effectNames[d.Effect]; !ok {
		return fmt.Errorf("unknown effect %d", int(d.Effect))
	}
	if d.BBox.X1 > d.BBox.X2 || d.BBox.Y1 > d.BBox.Y2 {
		return fmt.Errorf("malformed bbox %v", d.BBox)
	}
	if len(d.Deps) > MaxDeps {
		return fmt.Errorf("too many surface dependencies (%d > %d)", len(d.Deps), MaxDeps)
	}
	switch d.Type {
	case DrawCopy, DrawBlend, DrawTransparent, DrawAlphaBlend:
		if d.Src == nil {
			return fmt.Errorf("%s draw without source image", d.Type)
		}
		if err := d.Src.Validate(); err != nil {
			return fmt.Errorf("%s source: %w", d.Type, err)
		}
		if d.SrcArea.Empty() {
			return fmt.Errorf("%s draw with empty source area", d.Type)
		}
	}
	return nil
}

// ClipRegion returns the region the draw may touch: its bbox intersected
// with the clip rectangles when present.
func (d *Draw) ClipRegion() region.Region {
	r := region.FromRect(d.BBox)
	if d.Clip != nil {
		r.Intersect(region.FromRects(d.Clip...))
	}
	return r
}

// SameOutput reports whether drawing d twice at the same place yields the
// same pixels as drawing other there. Used to collapse duplicate draws.
func (d *Draw) SameOutput(other *Draw) bool {
	if d.Type != other.Type {
		return false
	}
	switch d.Type {
	case DrawFill:
		return d.Brush == other.Brush && d.Rop == other.Rop
	case DrawBlackness, DrawWhiteness, DrawInvers:
		return true
	default:
		return false
	}
}

// SourceImageArea returns the area of the source image, zero when the draw
// has none.
func (d *Draw) SourceImageArea() int64 {
	return d.SrcArea.Area()
}
