package operators

import (
	"fmt"
	"math"

	"github.com/born-ml/livedepth/internal/tensor"
)

// registerReduceOps adds reductions to the registry.
func (r *Registry) registerReduceOps() {
	r.Register("ReduceMean", reduceHandler("reduce_mean", 0, func(acc, x float32) float32 { return acc + x }, true))
	r.Register("ReduceSum", reduceHandler("reduce_sum", 0, func(acc, x float32) float32 { return acc + x }, false))
	r.Register("ReduceMax", reduceHandler("reduce_max", float32(math.Inf(-1)), func(acc, x float32) float32 { return max(acc, x) }, false))
	r.Register("ReduceMin", reduceHandler("reduce_min", float32(math.Inf(1)), func(acc, x float32) float32 { return min(acc, x) }, false))
}

// reduceHandler builds a float32 reduction over the axes given by the
// "axes" attribute or the second input (opset 18). Empty axes reduce over
// every dimension. keepdims defaults to 1.
func reduceHandler(name string, init float32, step func(acc, x float32) float32, mean bool) OpHandler {
	return func(node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if err := requireInputs(name, inputs, 1); err != nil {
			return nil, err
		}
		x := inputs[0]
		if x.DType() != tensor.Float32 {
			return nil, fmt.Errorf("%s: unsupported dtype %s", name, x.DType())
		}

		shape := x.Shape()
		reduced := make([]bool, len(shape))
		axes := axesInput(node, inputs, 1)
		if len(axes) == 0 {
			for i := range reduced {
				reduced[i] = true
			}
		}
		for _, ax := range axes {
			a, err := normalizeAxis(ax, len(shape))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			reduced[a] = true
		}

		keepDims := GetAttrInt(node, "keepdims", 1) != 0
		kept := make(tensor.Shape, len(shape))
		outShape := make(tensor.Shape, 0, len(shape))
		for i, d := range shape {
			kept[i] = d
			if reduced[i] {
				kept[i] = 1
				if keepDims {
					outShape = append(outShape, 1)
				}
				continue
			}
			outShape = append(outShape, d)
		}

		out, err := tensor.NewRaw(outShape, tensor.Float32)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		dst := out.AsFloat32()
		for i := range dst {
			dst[i] = init
		}

		// Each input element folds into the output cell obtained by zeroing
		// its reduced coordinates.
		src := x.AsFloat32()
		keptStrides := kept.ComputeStrides()
		coords := make([]int, len(shape))
		for flat, v := range src {
			rem := flat
			for d := len(shape) - 1; d >= 0; d-- {
				coords[d] = rem % shape[d]
				rem /= shape[d]
			}
			idx := 0
			for d := range shape {
				if !reduced[d] {
					idx += coords[d] * keptStrides[d]
				}
			}
			dst[idx] = step(dst[idx], v)
		}

		if mean {
			count := float32(x.NumElements() / kept.NumElements())
			for i := range dst {
				dst[i] /= count
			}
		}
		return single(out), nil
	}
}
