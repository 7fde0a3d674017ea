package tensor

// Scope collects tensors so they can be released together, typically with
// defer. The zero value is ready to use.
//
//	var s tensor.Scope
//	defer s.Release()
//	x := s.Track(t)
type Scope struct {
	tracked []*RawTensor
}

// Track registers t for release and returns it.
func (s *Scope) Track(t *RawTensor) *RawTensor {
	if t != nil {
		s.tracked = append(s.tracked, t)
	}
	return t
}

// Release releases every tracked tensor. The scope can be reused afterwards.
func (s *Scope) Release() {
	for _, t := range s.tracked {
		t.Release()
	}
	s.tracked = s.tracked[:0]
}

// Len returns the number of tensors currently tracked.
func (s *Scope) Len() int {
	return len(s.tracked)
}
