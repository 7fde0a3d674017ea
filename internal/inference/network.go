package inference

import (
	"fmt"

	"github.com/born-ml/livedepth/internal/onnx"
	"github.com/born-ml/livedepth/internal/tensor"
)

// Network is a forward-pass engine with a single image input and a single
// depth output.
type Network interface {
	// InputShape returns the declared input shape, -1 for symbolic dims.
	InputShape() []int64
	// OutputShape returns the declared output shape, or nil if unknown.
	OutputShape() []int64
	// Forward runs one inference. The returned tensor is owned by the caller.
	Forward(input *tensor.RawTensor) (*tensor.RawTensor, error)
	// Release frees the network's resources.
	Release()
}

// onnxNetwork adapts an onnx.Model with one input and one output.
type onnxNetwork struct {
	model  *onnx.Model
	input  string
	output string
}

func newONNXNetwork(model *onnx.Model) (*onnxNetwork, error) {
	inputs, outputs := model.InputNames(), model.OutputNames()
	if len(inputs) != 1 {
		return nil, fmt.Errorf("model has %d inputs, want 1", len(inputs))
	}
	if len(outputs) < 1 {
		return nil, fmt.Errorf("model has no outputs")
	}
	return &onnxNetwork{model: model, input: inputs[0], output: outputs[0]}, nil
}

func (n *onnxNetwork) InputShape() []int64 {
	shape, _ := n.model.InputShape(n.input)
	return shape
}

func (n *onnxNetwork) OutputShape() []int64 {
	shape, _ := n.model.OutputShape(n.output)
	return shape
}

// Forward runs the graph and keeps only the first output.
func (n *onnxNetwork) Forward(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	outputs, err := n.model.ForwardNamed(map[string]*tensor.RawTensor{n.input: input})
	if err != nil {
		return nil, err
	}
	for name, t := range outputs {
		if name != n.output {
			t.Release()
		}
	}
	return outputs[n.output], nil
}

func (n *onnxNetwork) Release() {
	n.model.Release()
}
