package operators

import (
	"fmt"
	"sort"

	"github.com/born-ml/livedepth/internal/tensor"
)

// registerShapeOps adds shape manipulation operators to the registry.
func (r *Registry) registerShapeOps() {
	r.Register("Reshape", handleReshape)
	r.Register("Transpose", handleTranspose)
	r.Register("Squeeze", handleSqueeze)
	r.Register("Unsqueeze", handleUnsqueeze)
	r.Register("Flatten", handleFlatten)
	r.Register("Shape", handleShape)
}

func handleReshape(node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("reshape", inputs, 2); err != nil {
		return nil, err
	}

	x := inputs[0]
	allowZero := GetAttrInt(node, "allowzero", 0) != 0
	shapeData := inputs[1].AsInt64()
	newShape := make(tensor.Shape, len(shapeData))
	for i, v := range shapeData {
		newShape[i] = int(v)
		// A zero copies the corresponding input dimension.
		if v == 0 && !allowZero {
			if i >= len(x.Shape()) {
				return nil, fmt.Errorf("reshape: zero dimension %d has no input counterpart", i)
			}
			newShape[i] = x.Shape()[i]
		}
	}

	result, err := tensor.Reshape(x, newShape)
	if err != nil {
		return nil, fmt.Errorf("reshape: %w", err)
	}
	return single(result), nil
}

func handleTranspose(node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("transpose", inputs, 1); err != nil {
		return nil, err
	}

	perm := GetAttrInts(node, "perm")
	axes := make([]int, len(perm))
	for i, v := range perm {
		axes[i] = int(v)
	}

	result, err := tensor.TransposeAxes(inputs[0], axes...)
	if err != nil {
		return nil, fmt.Errorf("transpose: %w", err)
	}
	return single(result), nil
}

func handleSqueeze(node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("squeeze", inputs, 1); err != nil {
		return nil, err
	}

	x := inputs[0]
	shape := x.Shape()
	drop := make(map[int]bool)
	axes := axesInput(node, inputs, 1)
	if len(axes) == 0 {
		for i, d := range shape {
			if d == 1 {
				drop[i] = true
			}
		}
	}
	for _, ax := range axes {
		a, err := normalizeAxis(ax, len(shape))
		if err != nil {
			return nil, fmt.Errorf("squeeze: %w", err)
		}
		if shape[a] != 1 {
			return nil, fmt.Errorf("squeeze: dimension %d has size %d, not 1", a, shape[a])
		}
		drop[a] = true
	}

	newShape := make(tensor.Shape, 0, len(shape))
	for i, d := range shape {
		if !drop[i] {
			newShape = append(newShape, d)
		}
	}

	result, err := tensor.Reshape(x, newShape)
	if err != nil {
		return nil, fmt.Errorf("squeeze: %w", err)
	}
	return single(result), nil
}

func handleUnsqueeze(node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("unsqueeze", inputs, 1); err != nil {
		return nil, err
	}

	x := inputs[0]
	axes := axesInput(node, inputs, 1)
	if len(axes) == 0 {
		return nil, fmt.Errorf("unsqueeze requires axes")
	}

	rank := len(x.Shape()) + len(axes)
	positions := make([]int, len(axes))
	for i, ax := range axes {
		a, err := normalizeAxis(ax, rank)
		if err != nil {
			return nil, fmt.Errorf("unsqueeze: %w", err)
		}
		positions[i] = a
	}
	sort.Ints(positions)

	newShape := make(tensor.Shape, 0, rank)
	src := x.Shape()
	next := 0
	for i := 0; i < rank; i++ {
		if len(positions) > 0 && positions[0] == i {
			newShape = append(newShape, 1)
			positions = positions[1:]
			continue
		}
		newShape = append(newShape, src[next])
		next++
	}

	result, err := tensor.Reshape(x, newShape)
	if err != nil {
		return nil, fmt.Errorf("unsqueeze: %w", err)
	}
	return single(result), nil
}

func handleFlatten(node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("flatten", inputs, 1); err != nil {
		return nil, err
	}

	x := inputs[0]
	shape := x.Shape()
	axis := int(GetAttrInt(node, "axis", 1))
	if axis < 0 {
		axis += len(shape)
	}
	if axis < 0 || axis > len(shape) {
		return nil, fmt.Errorf("flatten: axis %d out of range for rank %d", axis, len(shape))
	}

	outer := tensor.Shape(shape[:axis]).NumElements()
	result, err := tensor.Reshape(x, tensor.Shape{outer, x.NumElements() / outer})
	if err != nil {
		return nil, fmt.Errorf("flatten: %w", err)
	}
	return single(result), nil
}

func handleShape(_ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("shape", inputs, 1); err != nil {
		return nil, err
	}

	shape := inputs[0].Shape()
	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}
	result, err := tensor.FromInt64(tensor.Shape{len(dims)}, dims)
	if err != nil {
		return nil, fmt.Errorf("shape: %w", err)
	}
	return single(result), nil
}
