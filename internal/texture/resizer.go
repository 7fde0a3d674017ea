// Package texture normalizes camera frames of any size into a fixed-size
// color buffer.
package texture

import (
	"errors"
	"fmt"
	"image"

	"github.com/born-ml/livedepth/internal/gpu"
)

// ErrNoFrame is returned when the source had no frame for this tick.
// It is a skip signal, not a failure.
var ErrNoFrame = errors.New("texture: no source frame")

// Resizer resamples frames into a reused ColorRGBA8 buffer.
type Resizer struct {
	device gpu.Device
	slot   *gpu.Slot
}

// NewResizer creates a resizer that allocates from device.
func NewResizer(device gpu.Device) *Resizer {
	return &Resizer{
		device: device,
		slot:   gpu.NewSlot(device, gpu.ColorRGBA8),
	}
}

// Resize resamples frame to width x height and returns the target buffer.
// The buffer is reused while the dimensions stay the same.
//
// A nil or empty frame returns the previous buffer (possibly nil or stale)
// together with ErrNoFrame.
func (r *Resizer) Resize(frame image.Image, width, height int) (*gpu.Buffer, error) {
	if frame == nil || frame.Bounds().Empty() {
		return r.slot.Buffer(), ErrNoFrame
	}

	buf, err := r.Ensure(width, height)
	if err != nil {
		return nil, err
	}
	if err := r.device.Blit(frame, buf); err != nil {
		return nil, fmt.Errorf("texture: blit: %w", err)
	}
	return buf, nil
}

// Ensure allocates the target buffer ahead of the first frame.
func (r *Resizer) Ensure(width, height int) (*gpu.Buffer, error) {
	buf, err := r.slot.Ensure(width, height)
	if err != nil {
		return nil, fmt.Errorf("texture: allocate %dx%d: %w", width, height, err)
	}
	return buf, nil
}

// Buffer returns the current target buffer, or nil before the first resize.
func (r *Resizer) Buffer() *gpu.Buffer {
	return r.slot.Buffer()
}

// Allocations returns how many target buffers have been allocated.
func (r *Resizer) Allocations() int {
	return r.slot.Allocations()
}

// Release frees the target buffer. Safe to call repeatedly.
func (r *Resizer) Release() {
	r.slot.Release()
}
