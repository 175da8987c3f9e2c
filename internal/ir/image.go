package ir

import "fmt"

// Format is a pixel format.
type Format int

const (
	FormatRGB16 Format = iota + 1
	FormatRGB24
	FormatRGB32
	FormatRGBA
)

var formatNames = map[Format]string{
	FormatRGB16: "rgb16",
	FormatRGB24: "rgb24",
	FormatRGB32: "rgb32",
	FormatRGBA:  "rgba",
}

// String returns the format name.
func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// ParseFormat maps a name produced by String back to a Format.
func ParseFormat(s string) (Format, bool) {
	for f, n := range formatNames {
		if n == s {
			return f, true
		}
	}
	return 0, false
}

// BytesPerPixel returns the pixel size, zero for unknown formats.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatRGB16:
		return 2
	case FormatRGB24:
		return 3
	case FormatRGB32, FormatRGBA:
		return 4
	default:
		return 0
	}
}

// Depth returns the surface depth in bits, zero for unknown formats.
func (f Format) Depth() int {
	switch f {
	case FormatRGB16:
		return 16
	case FormatRGB24:
		return 24
	case FormatRGB32, FormatRGBA:
		return 32
	default:
		return 0
	}
}

// ImageKind distinguishes inline bitmaps from surface references.
type ImageKind int

const (
	ImageBitmap ImageKind = iota + 1
	ImageSurface
)

// Bitmap is an inline pixel buffer.
type Bitmap struct {
	Format  Format
	Width   int32
	Height  int32
	Stride  int32
	TopDown bool
	Data    []byte
}

// Image is the source of a copy-like draw.
type Image struct {
	Kind ImageKind
	// ID is the content id; zero means the image is never cached.
	ID      uint64
	CacheMe bool
	Bitmap  *Bitmap
	// Surface is the source surface of an ImageSurface.
	Surface uint32
}

// Validate checks that the image payload is consistent.
func (img *Image) Validate() error {
	switch img.Kind {
	case ImageSurface:
		return nil
	case ImageBitmap:
		b := img.Bitmap
		if b == nil {
			return fmt.Errorf("bitmap image without bitmap")
		}
		bpp := b.Format.BytesPerPixel()
		if bpp == 0 {
			return fmt.Errorf("bitmap with unknown format %d", int(b.Format))
		}
		if b.Width <= 0 || b.Height <= 0 {
			return fmt.Errorf("bitmap with empty size %dx%d", b.Width, b.Height)
		}
		if int(b.Stride) < int(b.Width)*bpp {
			return fmt.Errorf("bitmap stride %d too small for width %d", b.Stride, b.Width)
		}
		if len(b.Data) < int(b.Stride)*int(b.Height) {
			return fmt.Errorf("bitmap data too short (%d < %d)", len(b.Data), int(b.Stride)*int(b.Height))
		}
		return nil
	default:
		return fmt.Errorf("unknown image kind %d", int(img.Kind))
	}
}

// Width returns the image width when known.
func (img *Image) Width() int32 {
	if img.Bitmap != nil {
		return img.Bitmap.Width
	}
	return 0
}

// Height returns the image height when known.
func (img *Image) Height() int32 {
	if img.Bitmap != nil {
		return img.Bitmap.Height
	}
	return 0
}
