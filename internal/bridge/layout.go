// Package bridge converts between GPU buffers and network tensors.
//
// Forward, a ColorRGBA8 buffer becomes a float32 image tensor in the
// channel order the network expects. Backward, the network output is
// interpreted according to a Layout and written into a DepthF32 buffer.
package bridge

import (
	"errors"
	"fmt"
	"strings"
)

// Layout is the convention by which a network output encodes the depth map.
// It is resolved once when the model is loaded and never changes afterwards.
type Layout int

const (
	// LayoutAuto asks DetectLayout to pick a layout from the output shape.
	LayoutAuto Layout = iota
	// LayoutDirect means the output is already (1, a, b, channels) with
	// a*b = width*height; channel 0 holds depth.
	LayoutDirect
	// LayoutReshape means the output is flat or mis-shaped and is
	// reinterpreted as (1, width, height, 1).
	LayoutReshape
)

// ErrAmbiguousLayout is returned when the output shape does not identify a layout.
var ErrAmbiguousLayout = errors.New("bridge: cannot determine output layout")

// ParseLayout parses "auto", "direct" or "reshape".
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return LayoutAuto, nil
	case "direct":
		return LayoutDirect, nil
	case "reshape":
		return LayoutReshape, nil
	default:
		return LayoutAuto, fmt.Errorf("bridge: unknown layout %q", s)
	}
}

func (l Layout) String() string {
	switch l {
	case LayoutAuto:
		return "auto"
	case LayoutDirect:
		return "direct"
	case LayoutReshape:
		return "reshape"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Layout) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Layout) UnmarshalText(text []byte) error {
	v, err := ParseLayout(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Resolve returns l unless it is LayoutAuto, in which case the layout is
// detected from the declared output shape.
func (l Layout) Resolve(outputShape []int64, width, height int) (Layout, error) {
	if l != LayoutAuto {
		return l, nil
	}
	return DetectLayout(outputShape, width, height)
}

// DetectLayout inspects a declared output shape (-1 for symbolic dims).
//
//	(1, H, W, 1) or (1, W, H, 1) -> LayoutDirect
//	(1, H, W), (1, 1, H, W), (H*W) ... -> LayoutReshape
//
// Anything else, including shapes with unknown dimensions that are not
// resolvable, returns ErrAmbiguousLayout.
func DetectLayout(outputShape []int64, width, height int) (Layout, error) {
	w, h := int64(width), int64(height)

	if len(outputShape) == 4 && batchDim(outputShape[0]) && outputShape[3] == 1 &&
		((outputShape[1] == w && outputShape[2] == h) || (outputShape[1] == h && outputShape[2] == w)) {
		return LayoutDirect, nil
	}

	n := int64(1)
	for i, d := range outputShape {
		switch {
		case d > 0:
			n *= d
		case i == 0 && len(outputShape) > 1:
			// symbolic batch, assumed 1
		default:
			return LayoutAuto, fmt.Errorf("%w: shape %v has unknown dimension %d", ErrAmbiguousLayout, outputShape, i)
		}
	}
	if len(outputShape) > 0 && n == w*h {
		return LayoutReshape, nil
	}
	return LayoutAuto, fmt.Errorf("%w: shape %v for %dx%d", ErrAmbiguousLayout, outputShape, width, height)
}

func batchDim(d int64) bool {
	return d == 1 || d < 0
}
