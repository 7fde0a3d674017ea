package gpu

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Resampler selects the interpolation kernel used by Blit.
type Resampler int

// Supported resampling kernels.
const (
	Bilinear Resampler = iota
	NearestNeighbor
	ApproxBilinear
	CatmullRom
)

// ParseResampler parses a kernel name as used in configuration files.
func ParseResampler(name string) (Resampler, error) {
	switch name {
	case "", "bilinear":
		return Bilinear, nil
	case "nearest":
		return NearestNeighbor, nil
	case "approx-bilinear":
		return ApproxBilinear, nil
	case "catmull-rom":
		return CatmullRom, nil
	default:
		return 0, fmt.Errorf("gpu: unknown resampler %q", name)
	}
}

// String returns the configuration name of the kernel.
func (r Resampler) String() string {
	switch r {
	case Bilinear:
		return "bilinear"
	case NearestNeighbor:
		return "nearest"
	case ApproxBilinear:
		return "approx-bilinear"
	case CatmullRom:
		return "catmull-rom"
	default:
		return "unknown"
	}
}

func (r Resampler) interpolator() draw.Interpolator {
	switch r {
	case NearestNeighbor:
		return draw.NearestNeighbor
	case ApproxBilinear:
		return draw.ApproxBiLinear
	case CatmullRom:
		return draw.CatmullRom
	default:
		return draw.BiLinear
	}
}

// resampleInto draws src over the whole of dst. Same-sized sources are copied.
func (r Resampler) resampleInto(dst *image.RGBA, src image.Image) {
	sb := src.Bounds()
	db := dst.Bounds()
	if sb.Dx() == db.Dx() && sb.Dy() == db.Dy() {
		draw.Draw(dst, db, src, sb.Min, draw.Src)
		return
	}
	r.interpolator().Scale(dst, db, src, sb, draw.Src, nil)
}

// rgbaView wraps pix as an RGBA image of the given size without copying.
func rgbaView(pix []byte, width, height int) *image.RGBA {
	return &image.RGBA{
		Pix:    pix,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}
}
