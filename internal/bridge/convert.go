package bridge

import (
	"fmt"

	"github.com/born-ml/livedepth/internal/gpu"
	"github.com/born-ml/livedepth/internal/parallel"
	"github.com/born-ml/livedepth/internal/tensor"
)

// Spec describes the network's image input.
type Spec struct {
	Width  int
	Height int
	Order  InputOrder

	// Mean and Std normalize each channel after scaling to [0, 1]:
	// v = (v - Mean[c]) / Std[c]. A zero Std leaves the channel unscaled.
	Mean [Channels]float32
	Std  [Channels]float32

	// Parallel splits the conversion across goroutines by rows. The zero
	// value converts on the calling goroutine.
	Parallel parallel.Config
}

// Shape returns the input tensor shape for the spec.
func (s Spec) Shape() tensor.Shape {
	if s.Order == OrderNCHW {
		return tensor.Shape{1, Channels, s.Height, s.Width}
	}
	return tensor.Shape{1, s.Height, s.Width, Channels}
}

// ToTensor reads a ColorRGBA8 buffer and converts it into a float32 input
// tensor. The caller owns the returned tensor; prefer WithTensor, which
// releases it on every path.
func ToTensor(dev gpu.Device, buf *gpu.Buffer, spec Spec) (*tensor.RawTensor, error) {
	if buf == nil {
		return nil, fmt.Errorf("bridge: nil color buffer")
	}
	if buf.Format() != gpu.ColorRGBA8 {
		return nil, fmt.Errorf("%w: input from %s", gpu.ErrFormat, buf.Format())
	}
	if buf.Width() != spec.Width || buf.Height() != spec.Height {
		return nil, fmt.Errorf("bridge: buffer is %dx%d, network expects %dx%d",
			buf.Width(), buf.Height(), spec.Width, spec.Height)
	}
	if spec.Order == OrderAuto {
		return nil, fmt.Errorf("bridge: input order is not resolved")
	}

	pix, err := dev.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("bridge: read color buffer: %w", err)
	}

	t, err := tensor.NewRaw(spec.Shape(), tensor.Float32)
	if err != nil {
		return nil, err
	}

	var scale, offset [Channels]float32
	for c := 0; c < Channels; c++ {
		std := spec.Std[c]
		if std == 0 {
			std = 1
		}
		scale[c] = 1 / (255 * std)
		offset[c] = spec.Mean[c] / std
	}

	dst := t.AsFloat32()
	plane := spec.Width * spec.Height
	parallel.Range(spec.Height, spec.Parallel, func(y0, y1 int) {
		for p := y0 * spec.Width; p < y1*spec.Width; p++ {
			for c := 0; c < Channels; c++ {
				v := float32(pix[4*p+c])*scale[c] - offset[c]
				if spec.Order == OrderNCHW {
					dst[c*plane+p] = v
				} else {
					dst[p*Channels+c] = v
				}
			}
		}
	})
	return t, nil
}

// WithTensor converts buf to an input tensor, passes it to fn and releases
// it afterwards, including when fn fails or panics.
func WithTensor(dev gpu.Device, buf *gpu.Buffer, spec Spec, fn func(*tensor.RawTensor) error) error {
	t, err := ToTensor(dev, buf, spec)
	if err != nil {
		return err
	}
	defer t.Release()
	return fn(t)
}

// ToDepth interprets a network output according to layout and returns
// width*height depth values, pixel (x, y) at index y*width+x.
//
// LayoutReshape requires exactly width*height elements. LayoutDirect
// requires a (1, a, b, c) output with a*b = width*height and takes channel 0.
// For a single-channel output both layouts yield the same values.
func ToDepth(out *tensor.RawTensor, layout Layout, width, height int) ([]float32, error) {
	if out == nil {
		return nil, fmt.Errorf("bridge: nil output tensor")
	}
	if out.DType() != tensor.Float32 {
		return nil, fmt.Errorf("bridge: output dtype %s, want float32", out.DType())
	}
	n := width * height

	switch layout {
	case LayoutReshape:
		view, err := tensor.Reshape(out, tensor.Shape{1, width, height, 1})
		if err != nil {
			return nil, fmt.Errorf("bridge: reshape output %v to (1, %d, %d, 1): %w", out.Shape(), width, height, err)
		}
		defer view.Release()
		depth := make([]float32, n)
		copy(depth, view.AsFloat32())
		return depth, nil

	case LayoutDirect:
		shape := out.Shape()
		if len(shape) != 4 || shape[0] != 1 || shape[1]*shape[2] != n {
			return nil, fmt.Errorf("bridge: direct output shape %v does not match %dx%d", shape, width, height)
		}
		channels := shape[3]
		src := out.AsFloat32()
		depth := make([]float32, n)
		for k := range depth {
			depth[k] = src[k*channels]
		}
		return depth, nil

	default:
		return nil, fmt.Errorf("bridge: layout %s is not resolved", layout)
	}
}

// WriteDepth uploads depth values into the slot's DepthF32 buffer,
// (re)allocating it to width x height first when needed.
func WriteDepth(dev gpu.Device, slot *gpu.Slot, values []float32, width, height int) (*gpu.Buffer, error) {
	buf, err := slot.Ensure(width, height)
	if err != nil {
		return nil, fmt.Errorf("bridge: allocate depth buffer: %w", err)
	}
	if err := dev.WriteFloat32(buf, values); err != nil {
		return nil, fmt.Errorf("bridge: write depth: %w", err)
	}
	return buf, nil
}
