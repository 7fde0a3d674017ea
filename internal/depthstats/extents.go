// Package depthstats computes per-frame statistics over raw network output.
package depthstats

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/livedepth/internal/tensor"
)

// ErrNoValues is returned when a tensor is empty or holds only NaN.
var ErrNoValues = errors.New("depthstats: no values besides NaN")

// Extents is the depth range observed in one frame.
type Extents struct {
	Min float32
	Max float32
}

// Range returns Max - Min.
func (e Extents) Range() float32 {
	return e.Max - e.Min
}

// Scan scans every value of a float32 tensor and returns its minimum and
// maximum. NaN values are skipped.
func Scan(t *tensor.RawTensor) (Extents, error) {
	if t == nil {
		return Extents{}, fmt.Errorf("depthstats: nil tensor")
	}
	if t.DType() != tensor.Float32 {
		return Extents{}, fmt.Errorf("depthstats: dtype %s, want float32", t.DType())
	}
	return ScanValues(t.AsFloat32())
}

// ScanValues is Scan over a plain slice.
func ScanValues(values []float32) (Extents, error) {
	lo, hi := float32(math.Inf(1)), float32(math.Inf(-1))
	found := false
	for _, v := range values {
		if math.IsNaN(float64(v)) {
			continue
		}
		found = true
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if !found {
		return Extents{}, ErrNoValues
	}
	return Extents{Min: lo, Max: hi}, nil
}
