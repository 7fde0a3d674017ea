// Package gpu abstracts the GPU-resident buffers the depth pipeline works on.
//
// A Device allocates fixed-size two-dimensional buffers in one of two formats,
// resamples host images into them (Blit) and moves float data in and out.
// Buffers are released explicitly; a Slot owns one buffer and guarantees the
// previous allocation is released before a differently sized one replaces it.
//
// Two devices are provided: a host-memory device that works everywhere and a
// WebGPU device (go-webgpu) that keeps buffers in GPU memory.
package gpu

import "fmt"

// Format is the pixel format of a Buffer.
type Format int

// Supported buffer formats.
const (
	ColorRGBA8 Format = iota // 4 x uint8 per pixel
	DepthF32                 // 1 x float32 per pixel
)

// BytesPerPixel returns the storage size of a single pixel.
func (f Format) BytesPerPixel() int {
	switch f {
	case ColorRGBA8, DepthF32:
		return 4
	default:
		panic(fmt.Sprintf("gpu: unknown format %d", int(f)))
	}
}

// String returns a human-readable format name.
func (f Format) String() string {
	switch f {
	case ColorRGBA8:
		return "rgba8"
	case DepthF32:
		return "depth-f32"
	default:
		return "unknown"
	}
}
