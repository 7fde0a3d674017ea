package depthstats

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Grayscale renders width*height depth values as a 16-bit image, mapping
// the frame's minimum to black and its maximum to white. NaN pixels and
// frames with a zero range render black.
func Grayscale(values []float32, width, height int) (*image.Gray16, Extents, error) {
	if len(values) != width*height {
		return nil, Extents{}, fmt.Errorf("depthstats: %d values for %dx%d", len(values), width, height)
	}
	ext, err := ScanValues(values)
	if err != nil {
		return nil, Extents{}, err
	}

	img := image.NewGray16(image.Rect(0, 0, width, height))
	span := ext.Range()
	if span <= 0 {
		return img, ext, nil
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := values[y*width+x]
			if math.IsNaN(float64(v)) {
				continue
			}
			n := (v - ext.Min) / span
			img.SetGray16(x, y, color.Gray16{Y: uint16(math.Round(float64(n) * math.MaxUint16))})
		}
	}
	return img, ext, nil
}
