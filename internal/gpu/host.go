package gpu

import (
	"fmt"
	"image"
)

// Host is a Device backed by ordinary host memory. It is always available
// and is the reference implementation used in tests.
type Host struct {
	resampler Resampler
	tracker   tracker
}

// NewHost creates a host-memory device.
func NewHost(r Resampler) *Host {
	return &Host{resampler: r}
}

// Name returns the device name.
func (h *Host) Name() string {
	return fmt.Sprintf("host (%s)", h.resampler)
}

// Allocate creates a zeroed buffer.
func (h *Host) Allocate(width, height int, format Format) (*Buffer, error) {
	if err := checkExtent(width, height); err != nil {
		return nil, err
	}
	size := width * height * format.BytesPerPixel()
	b := &Buffer{
		width:  width,
		height: height,
		format: format,
		handle: make([]byte, size),
		free: func(b *Buffer) {
			h.tracker.released(b.ByteSize())
		},
	}
	b.id = h.tracker.allocated(size)
	return b, nil
}

// Blit resamples src into dst.
func (h *Host) Blit(src image.Image, dst *Buffer) error {
	if src == nil {
		return ErrNilSource
	}
	pix, err := h.pixels(dst)
	if err != nil {
		return err
	}
	if dst.format != ColorRGBA8 {
		return fmt.Errorf("%w: blit into %s", ErrFormat, dst.format)
	}
	h.resampler.resampleInto(rgbaView(pix, dst.width, dst.height), src)
	h.tracker.blitted()
	return nil
}

// WriteFloat32 copies values into a DepthF32 buffer.
func (h *Host) WriteFloat32(dst *Buffer, values []float32) error {
	pix, err := h.pixels(dst)
	if err != nil {
		return err
	}
	if dst.format != DepthF32 {
		return fmt.Errorf("%w: write float32 into %s", ErrFormat, dst.format)
	}
	if len(values) != dst.width*dst.height {
		return fmt.Errorf("gpu: %d values for %dx%d buffer", len(values), dst.width, dst.height)
	}
	copy(pix, encodeFloat32(values))
	return nil
}

// Read returns a copy of the buffer contents.
func (h *Host) Read(src *Buffer) ([]byte, error) {
	pix, err := h.pixels(src)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(pix))
	copy(out, pix)
	return out, nil
}

// Stats returns allocation statistics.
func (h *Host) Stats() MemoryStats {
	return h.tracker.snapshot()
}

// Close is a no-op for host memory.
func (h *Host) Close() {}

func (h *Host) pixels(b *Buffer) ([]byte, error) {
	if err := checkUsable(b); err != nil {
		return nil, err
	}
	pix, ok := b.handle.([]byte)
	if !ok {
		return nil, fmt.Errorf("gpu: buffer %v does not belong to the host device", b)
	}
	return pix, nil
}
