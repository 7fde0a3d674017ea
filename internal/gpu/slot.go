package gpu

// Slot owns at most one buffer of a fixed format and reallocates it when the
// requested dimensions change. The previous buffer is always released before
// its replacement is allocated.
type Slot struct {
	device      Device
	format      Format
	buf         *Buffer
	allocations int
}

// NewSlot creates an empty slot.
func NewSlot(device Device, format Format) *Slot {
	return &Slot{device: device, format: format}
}

// Ensure returns a buffer of exactly width x height, reusing the current one
// when it already matches.
func (s *Slot) Ensure(width, height int) (*Buffer, error) {
	if s.buf != nil && !s.buf.Released() && s.buf.width == width && s.buf.height == height {
		return s.buf, nil
	}

	s.Release()

	buf, err := s.device.Allocate(width, height, s.format)
	if err != nil {
		return nil, err
	}
	s.buf = buf
	s.allocations++
	return buf, nil
}

// Buffer returns the current buffer, or nil.
func (s *Slot) Buffer() *Buffer {
	return s.buf
}

// Allocations returns how many buffers the slot has allocated.
func (s *Slot) Allocations() int {
	return s.allocations
}

// Release frees the current buffer. Safe to call repeatedly.
func (s *Slot) Release() {
	if s.buf != nil {
		s.buf.Release()
		s.buf = nil
	}
}
