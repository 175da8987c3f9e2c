package worker

import "github.com/roach88/redworker/internal/ir"

// Graduality classifies how smooth an image is. Smooth content is
// photographic and suited to lossy or delta coding; sharp content is text
// or UI.
type Graduality uint8

const (
	GradualityUnknown Graduality = iota
	GradualityNotAvailable
	GradualityLow
	GradualityMedium
	GradualityHigh
)

func (g Graduality) String() string {
	switch g {
	case GradualityNotAvailable:
		return "n/a"
	case GradualityLow:
		return "low"
	case GradualityMedium:
		return "medium"
	case GradualityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Thresholds on the graduality score; lower scores are smoother.
const (
	gradualHighRGB24   = -0.03
	gradualMediumRGB24 = 0.002
	gradualHighRGB16   = 0.0
	gradualMediumRGB16 = 0.001

	gradualSampleRows   = 16
	gradualSmoothMaxGap = 16
)

// measureGraduality samples rows of a bitmap and scores neighbouring pixel
// differences: equal pixels are neutral, small steps count as smooth and
// large steps as sharp.
func measureGraduality(b *ir.Bitmap) Graduality {
	if b == nil || b.Width < 2 || b.Height < 1 {
		return GradualityNotAvailable
	}
	bpp := b.Format.BytesPerPixel()
	if bpp == 0 || len(b.Data) < int(b.Stride)*int(b.Height-1)+int(b.Width)*bpp {
		return GradualityNotAvailable
	}
	step := int(b.Height) / gradualSampleRows
	if step < 1 {
		step = 1
	}
	var score float64
	var samples int
	for y := 0; y < int(b.Height); y += step {
		row := b.Data[y*int(b.Stride):]
		prev := pixelAt(row, 0, b.Format)
		for x := 1; x < int(b.Width); x++ {
			cur := pixelAt(row, x, b.Format)
			switch gap := channelGap(prev, cur); {
			case gap == 0:
			case gap <= gradualSmoothMaxGap:
				score--
			default:
				score++
			}
			samples++
			prev = cur
		}
	}
	if samples == 0 {
		return GradualityNotAvailable
	}
	score /= float64(samples)

	high, medium := gradualHighRGB24, gradualMediumRGB24
	if b.Format == ir.FormatRGB16 {
		high, medium = gradualHighRGB16, gradualMediumRGB16
	}
	switch {
	case score < high:
		return GradualityHigh
	case score < medium:
		return GradualityMedium
	default:
		return GradualityLow
	}
}

func pixelAt(row []byte, x int, f ir.Format) [3]uint8 {
	switch f {
	case ir.FormatRGB16:
		v := uint16(row[x*2]) | uint16(row[x*2+1])<<8
		return [3]uint8{uint8(v>>11&0x1f) << 3, uint8(v>>5&0x3f) << 2, uint8(v&0x1f) << 3}
	default:
		p := row[x*f.BytesPerPixel():]
		return [3]uint8{p[2], p[1], p[0]}
	}
}

func channelGap(a, b [3]uint8) int {
	m := 0
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		if d > m {
			m = d
		}
	}
	return m
}
