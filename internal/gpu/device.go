package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
)

// Errors returned by devices.
var (
	ErrUnavailable   = errors.New("gpu: device not available")
	ErrReleased      = errors.New("gpu: buffer already released")
	ErrNilSource     = errors.New("gpu: nil source image")
	ErrFormat        = errors.New("gpu: buffer format mismatch")
	ErrInvalidExtent = errors.New("gpu: invalid buffer dimensions")
)

// Device allocates buffers and moves pixel data between host and device memory.
type Device interface {
	// Name returns a human-readable device description.
	Name() string

	// Allocate creates a zeroed buffer of the given size and format.
	Allocate(width, height int, format Format) (*Buffer, error)

	// Blit resamples src to the full extent of dst, overwriting its contents.
	// dst must be ColorRGBA8.
	Blit(src image.Image, dst *Buffer) error

	// WriteFloat32 uploads width*height values into a DepthF32 buffer.
	WriteFloat32(dst *Buffer, values []float32) error

	// Read copies the buffer contents back to host memory.
	Read(src *Buffer) ([]byte, error)

	// Stats returns allocation statistics.
	Stats() MemoryStats

	// Close releases the device. Buffers must not be used afterwards.
	Close()
}

// Open creates a device by name ("host" or "webgpu").
func Open(kind string, r Resampler) (Device, error) {
	switch kind {
	case "", "host":
		return NewHost(r), nil
	case "webgpu":
		return NewWebGPU(r)
	default:
		return nil, fmt.Errorf("gpu: unknown device %q", kind)
	}
}

// ReadFloat32 reads a DepthF32 buffer as float32 values.
func ReadFloat32(dev Device, src *Buffer) ([]float32, error) {
	if src.Format() != DepthF32 {
		return nil, fmt.Errorf("%w: read float32 from %s", ErrFormat, src.Format())
	}
	raw, err := dev.Read(src)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

// MemoryStats represents buffer usage statistics for a device.
type MemoryStats struct {
	// Allocations is the number of buffers ever allocated.
	Allocations uint64
	// Releases is the number of buffers returned to the device.
	Releases uint64
	// ActiveBuffers is the number of buffers currently alive.
	ActiveBuffers int64
	// LiveBytes is the size of all live buffers.
	LiveBytes uint64
	// PeakBytes is the largest LiveBytes value observed.
	PeakBytes uint64
	// Blits counts resample uploads.
	Blits uint64
}

// tracker records allocations for MemoryStats. Shared by all devices.
type tracker struct {
	mu     sync.Mutex
	nextID uint64
	stats  MemoryStats
}

func (t *tracker) allocated(size int) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	t.stats.Allocations++
	t.stats.ActiveBuffers++
	t.stats.LiveBytes += uint64(size)
	if t.stats.LiveBytes > t.stats.PeakBytes {
		t.stats.PeakBytes = t.stats.LiveBytes
	}
	return t.nextID
}

func (t *tracker) released(size int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Releases++
	t.stats.ActiveBuffers--
	if t.stats.LiveBytes >= uint64(size) {
		t.stats.LiveBytes -= uint64(size)
	}
}

func (t *tracker) blitted() {
	t.mu.Lock()
	t.stats.Blits++
	t.mu.Unlock()
}

func (t *tracker) snapshot() MemoryStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func checkExtent(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidExtent, width, height)
	}
	return nil
}

func checkUsable(b *Buffer) error {
	if b.Released() {
		return ErrReleased
	}
	return nil
}

func encodeFloat32(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}
