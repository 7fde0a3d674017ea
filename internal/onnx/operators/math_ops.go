package operators

import (
	"fmt"

	"github.com/born-ml/livedepth/internal/tensor"
)

// registerMathOps adds element-wise arithmetic operators to the registry.
func (r *Registry) registerMathOps() {
	r.Register("Add", binaryHandler("add", func(a, b float32) float32 { return a + b }, func(a, b int64) int64 { return a + b }))
	r.Register("Sub", binaryHandler("sub", func(a, b float32) float32 { return a - b }, func(a, b int64) int64 { return a - b }))
	r.Register("Mul", binaryHandler("mul", func(a, b float32) float32 { return a * b }, func(a, b int64) int64 { return a * b }))
	r.Register("Div", binaryHandler("div", func(a, b float32) float32 { return a / b }, divInt64))
}

func divInt64(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// binaryHandler builds a broadcasting element-wise handler for float32 and
// int64 operands. Int64 arithmetic appears in exported shape subgraphs.
func binaryHandler(name string, f func(a, b float32) float32, i func(a, b int64) int64) OpHandler {
	return func(_ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if err := requireInputs(name, inputs, 2); err != nil {
			return nil, err
		}
		a, b := inputs[0], inputs[1]
		if a.DType() != b.DType() {
			return nil, fmt.Errorf("%s: dtype mismatch %s vs %s", name, a.DType(), b.DType())
		}

		outShape, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out, err := tensor.NewRaw(outShape, a.DType())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		switch a.DType() {
		case tensor.Float32:
			broadcast(a.AsFloat32(), b.AsFloat32(), out.AsFloat32(), a.Shape(), b.Shape(), outShape, f)
		case tensor.Int64:
			broadcast(a.AsInt64(), b.AsInt64(), out.AsInt64(), a.Shape(), b.Shape(), outShape, i)
		default:
			out.Release()
			return nil, fmt.Errorf("%s: unsupported dtype %s", name, a.DType())
		}
		return single(out), nil
	}
}

func broadcast[T float32 | int64](a, b, out []T, aShape, bShape, outShape tensor.Shape, op func(T, T) T) {
	if aShape.Equal(bShape) {
		for k := range out {
			out[k] = op(a[k], b[k])
		}
		return
	}
	for k := range out {
		out[k] = op(a[tensor.BroadcastIndex(k, outShape, aShape)], b[tensor.BroadcastIndex(k, outShape, bShape)])
	}
}
