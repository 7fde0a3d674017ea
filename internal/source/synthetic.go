package source

import (
	"image"
	"image/color"
)

// Pattern selects what a Synthetic source draws.
type Pattern int

const (
	// Solid fills the frame with one color.
	Solid Pattern = iota
	// Gradient ramps intensity left to right and scrolls one pixel per frame.
	Gradient
)

// Synthetic generates test frames without a camera.
type Synthetic struct {
	width   int
	height  int
	pattern Pattern
	color   color.RGBA
	frame   int
}

// NewSolid creates a source of solid frames.
func NewSolid(width, height int, c color.RGBA) *Synthetic {
	return &Synthetic{width: width, height: height, pattern: Solid, color: c}
}

// NewGradient creates a source of horizontally scrolling gray ramps.
func NewGradient(width, height int) *Synthetic {
	return &Synthetic{width: width, height: height, pattern: Gradient}
}

// Gray returns an opaque gray level.
func Gray(v uint8) color.RGBA {
	return color.RGBA{R: v, G: v, B: v, A: 255}
}

// CurrentFrame renders the next frame.
func (s *Synthetic) CurrentFrame() image.Image {
	if s.width <= 0 || s.height <= 0 {
		return nil
	}
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))

	switch s.pattern {
	case Gradient:
		for x := 0; x < s.width; x++ {
			pos := (x + s.frame) % s.width
			c := Gray(uint8(pos * 255 / max(s.width-1, 1))) //nolint:gosec // pos < width, so the value is at most 255
			for y := 0; y < s.height; y++ {
				img.SetRGBA(x, y, c)
			}
		}
	default:
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i+0] = s.color.R
			img.Pix[i+1] = s.color.G
			img.Pix[i+2] = s.color.B
			img.Pix[i+3] = s.color.A
		}
	}

	s.frame++
	return img
}
