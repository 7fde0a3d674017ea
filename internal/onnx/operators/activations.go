package operators

import (
	"fmt"
	"math"

	"github.com/born-ml/livedepth/internal/tensor"
)

// registerActivations adds activation functions to the registry.
func (r *Registry) registerActivations() {
	r.Register("Relu", unaryHandler("relu", func(x float32) float32 { return max(x, 0) }))
	r.Register("Sigmoid", unaryHandler("sigmoid", func(x float32) float32 {
		return float32(1 / (1 + math.Exp(-float64(x))))
	}))
	r.Register("Clip", handleClip)
}

func unaryHandler(name string, f func(float32) float32) OpHandler {
	return func(_ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if err := requireInputs(name, inputs, 1); err != nil {
			return nil, err
		}
		out, err := mapFloat32(inputs[0], f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return single(out), nil
	}
}

func mapFloat32(x *tensor.RawTensor, f func(float32) float32) (*tensor.RawTensor, error) {
	if x.DType() != tensor.Float32 {
		return nil, fmt.Errorf("unsupported dtype %s", x.DType())
	}
	out, err := tensor.NewRaw(x.Shape(), tensor.Float32)
	if err != nil {
		return nil, err
	}
	src, dst := x.AsFloat32(), out.AsFloat32()
	for i, v := range src {
		dst[i] = f(v)
	}
	return out, nil
}

// handleClip clamps values. Bounds come from inputs 1 and 2 (opset 11+) or
// from the min/max attributes.
func handleClip(node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("clip", inputs, 1); err != nil {
		return nil, err
	}

	lo := GetAttrFloat(node, "min", float32(math.Inf(-1)))
	hi := GetAttrFloat(node, "max", float32(math.Inf(1)))
	if len(inputs) > 1 && inputs[1] != nil {
		lo = inputs[1].AsFloat32()[0]
	}
	if len(inputs) > 2 && inputs[2] != nil {
		hi = inputs[2].AsFloat32()[0]
	}

	out, err := mapFloat32(inputs[0], func(x float32) float32 { return min(max(x, lo), hi) })
	if err != nil {
		return nil, fmt.Errorf("clip: %w", err)
	}
	return single(out), nil
}
