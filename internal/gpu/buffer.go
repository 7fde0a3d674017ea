package gpu

import "fmt"

// Buffer is an opaque handle to a width x height pixel buffer owned by a Device.
type Buffer struct {
	id       uint64
	width    int
	height   int
	format   Format
	handle   any // device specific storage
	free     func(*Buffer)
	released bool
}

// ID returns a device-unique identifier, stable for the buffer's lifetime.
func (b *Buffer) ID() uint64 { return b.id }

// Width returns the buffer width in pixels.
func (b *Buffer) Width() int { return b.width }

// Height returns the buffer height in pixels.
func (b *Buffer) Height() int { return b.height }

// Format returns the pixel format.
func (b *Buffer) Format() Format { return b.format }

// ByteSize returns the size of the buffer contents in bytes.
func (b *Buffer) ByteSize() int {
	return b.width * b.height * b.format.BytesPerPixel()
}

// Released reports whether the buffer has been returned to its device.
func (b *Buffer) Released() bool {
	return b == nil || b.released
}

// Release returns the buffer to its device. It is idempotent and safe on nil.
func (b *Buffer) Release() {
	if b == nil || b.released {
		return
	}
	b.released = true
	if b.free != nil {
		b.free(b)
	}
	b.handle = nil
}

// String implements fmt.Stringer.
func (b *Buffer) String() string {
	if b == nil {
		return "Buffer(nil)"
	}
	return fmt.Sprintf("Buffer(#%d %dx%d %s)", b.id, b.width, b.height, b.format)
}
