package tensor

import "fmt"

// Reshape returns a new handle with the given shape sharing x's data.
// A single -1 dimension is inferred from the element count.
func Reshape(x *RawTensor, newShape Shape) (*RawTensor, error) {
	if x == nil {
		return nil, fmt.Errorf("reshape: input tensor is nil")
	}

	total := x.NumElements()
	inferIdx := -1
	product := 1
	for i, dim := range newShape {
		switch {
		case dim == -1:
			if inferIdx >= 0 {
				return nil, fmt.Errorf("reshape: can only have one -1 dimension")
			}
			inferIdx = i
		case dim <= 0:
			return nil, fmt.Errorf("reshape: dimensions must be positive, got %d", dim)
		default:
			product *= dim
		}
	}

	actual := newShape.Clone()
	if inferIdx >= 0 {
		if total%product != 0 {
			return nil, fmt.Errorf("reshape: cannot infer dimension for shape %v from %d elements", newShape, total)
		}
		actual[inferIdx] = total / product
	}

	if actual.NumElements() != total {
		return nil, fmt.Errorf("reshape: cannot reshape %d elements to shape %v (%d elements)",
			total, actual, actual.NumElements())
	}

	result := x.Clone()
	result.shape = actual
	return result, nil
}

// TransposeAxes permutes dimensions into a freshly allocated tensor.
// With no axes the dimensions are reversed.
func TransposeAxes(x *RawTensor, axes ...int) (*RawTensor, error) {
	if x == nil {
		return nil, fmt.Errorf("transpose: input tensor is nil")
	}

	ndim := len(x.shape)
	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		return nil, fmt.Errorf("transpose: axes length %d must match tensor dimensions %d", len(axes), ndim)
	}

	newShape := make(Shape, ndim)
	for i, ax := range axes {
		if ax < 0 || ax >= ndim {
			return nil, fmt.Errorf("transpose: axis %d out of range [0, %d)", ax, ndim)
		}
		newShape[i] = x.shape[ax]
	}

	result, err := NewRaw(newShape, x.dtype)
	if err != nil {
		return nil, fmt.Errorf("transpose: %w", err)
	}

	switch x.dtype {
	case Float32:
		transpose(x.AsFloat32(), result.AsFloat32(), x.shape, newShape, axes)
	case Int32:
		transpose(x.AsInt32(), result.AsInt32(), x.shape, newShape, axes)
	case Int64:
		transpose(x.AsInt64(), result.AsInt64(), x.shape, newShape, axes)
	default:
		result.Release()
		return nil, fmt.Errorf("transpose: unsupported dtype %v", x.dtype)
	}
	return result, nil
}

func transpose[T float32 | int32 | int64](in, out []T, oldShape, newShape Shape, axes []int) {
	ndim := len(oldShape)
	oldStrides := oldShape.ComputeStrides()

	idx := make([]int, ndim)
	for i := range out {
		tmp := i
		for j := ndim - 1; j >= 0; j-- {
			idx[j] = tmp % newShape[j]
			tmp /= newShape[j]
		}

		oldFlat := 0
		for j := 0; j < ndim; j++ {
			oldFlat += idx[j] * oldStrides[axes[j]]
		}
		out[i] = in[oldFlat]
	}
}
