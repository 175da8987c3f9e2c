// Package canvas executes draw commands against surface pixels.
//
// The worker only needs pixels in two situations: when a drawable leaves the
// scene tree without being sent (it is rendered so the surface stays
// current) and when pixels are read back for self-bitmaps, stream upgrades
// and flush-before-read. Backend is the seam for those calls.
package canvas

import (
	"github.com/roach88/redworker/internal/ir"
	"github.com/roach88/redworker/internal/region"
)

// Backend renders draws into surfaces and reads pixels back.
type Backend interface {
	CreateSurface(id uint32, width, height int32, format ir.Format, data []byte) error
	DestroySurface(id uint32)
	Render(d *ir.Draw) error
	// ReadPixels returns the packed RGBA rows of r.
	ReadPixels(id uint32, r region.Rect) ([]byte, error)
}
