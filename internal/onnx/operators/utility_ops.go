package operators

import (
	"fmt"

	"github.com/born-ml/livedepth/internal/tensor"
)

// registerUtilityOps adds pass-through and constant operators.
func (r *Registry) registerUtilityOps() {
	r.Register("Identity", handleIdentity)
	r.Register("Dropout", handleIdentity) // inference mode
	r.Register("Constant", handleConstant)
}

func handleIdentity(_ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("identity", inputs, 1); err != nil {
		return nil, err
	}
	return single(inputs[0].Clone()), nil
}

func handleConstant(node *Node, _ []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if a := node.attr("value"); a != nil && a.T != nil {
		return single(a.T.Clone()), nil
	}
	if a := node.attr("value_float"); a != nil {
		t, err := tensor.FromFloat32(tensor.Shape{}, []float32{a.F})
		return single(t), err
	}
	if a := node.attr("value_floats"); a != nil {
		t, err := tensor.FromFloat32(tensor.Shape{len(a.Floats)}, a.Floats)
		return single(t), err
	}
	if a := node.attr("value_int"); a != nil {
		t, err := tensor.FromInt64(tensor.Shape{}, []int64{a.I})
		return single(t), err
	}
	if a := node.attr("value_ints"); a != nil {
		t, err := tensor.FromInt64(tensor.Shape{len(a.Ints)}, a.Ints)
		return single(t), err
	}
	return nil, fmt.Errorf("constant: no supported value attribute")
}
