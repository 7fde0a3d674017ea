package onnx

import "github.com/born-ml/livedepth/internal/tensor"

// Model represents a loaded ONNX model ready for inference.
//
// Inputs are borrowed; every returned tensor is owned by the caller and
// must be released. Release frees the model's weights.
type Model interface {
	// Forward runs inference on a model with exactly one input and one output.
	Forward(input *tensor.RawTensor) (*tensor.RawTensor, error)

	// ForwardNamed runs inference with named inputs and returns every
	// graph output by name.
	ForwardNamed(inputs map[string]*tensor.RawTensor) (map[string]*tensor.RawTensor, error)

	// InputNames returns the names of model inputs, excluding initializers.
	InputNames() []string

	// OutputNames returns the names of model outputs.
	OutputNames() []string

	// InputShape returns the declared shape of an input; symbolic
	// dimensions are -1.
	InputShape(name string) ([]int64, bool)

	// OutputShape returns the declared shape of an output.
	OutputShape(name string) ([]int64, bool)

	// OpsetVersion returns the default-domain opset the model targets.
	OpsetVersion() int64

	// Metadata returns producer information and metadata_props.
	Metadata() map[string]string

	// Release frees the model's weights. It is safe to call more than once.
	Release()
}
