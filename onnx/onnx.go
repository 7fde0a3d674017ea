// Package onnx loads ONNX depth models and runs them on host tensors.
//
// Only the operator subset used by depth estimation graphs is supported;
// use [ListSupportedOps] to see it and [GetModelInfo] to check a file
// before loading it.
//
// # Example Usage
//
//	model, err := onnx.Load("midas_small.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer model.Release()
//
//	output, err := model.Forward(input)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer output.Release()
//
// # Supported Operators
//
//   - Arithmetic: Add, Sub, Mul, Div
//   - Activation: Relu, Sigmoid, Clip
//   - Shape: Reshape, Transpose, Squeeze, Unsqueeze, Flatten, Shape
//   - Reduction: ReduceMean, ReduceSum, ReduceMax, ReduceMin
//   - Other: Constant, Identity, Dropout
package onnx

import (
	internalonnx "github.com/born-ml/livedepth/internal/onnx"
)

// LoadOptions configures ONNX model loading behavior.
type LoadOptions = internalonnx.LoadOptions

// DefaultLoadOptions returns the default options for loading ONNX models.
// Strict mode is enabled: unsupported operators fail the load.
func DefaultLoadOptions() LoadOptions {
	return internalonnx.DefaultLoadOptions()
}

// UnsupportedOpsError lists operators a strict load could not resolve.
type UnsupportedOpsError = internalonnx.UnsupportedOpsError

// Load loads an ONNX model from a file path.
func Load(path string, opts ...LoadOptions) (Model, error) {
	m, err := internalonnx.Load(path, opts...)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// LoadFromBytes loads an ONNX model from raw bytes, for example one
// embedded in the binary.
func LoadFromBytes(data []byte, opts ...LoadOptions) (Model, error) {
	m, err := internalonnx.LoadFromBytes(data, opts...)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ModelInfo contains metadata about an ONNX model without loading weights.
type ModelInfo = internalonnx.ModelInfo

// ValueInfo describes one graph input or output.
type ValueInfo = internalonnx.ValueInfo

// GetModelInfo extracts metadata from an ONNX file without compiling it.
//
//	info, err := onnx.GetModelInfo("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Opset: %d\n", info.OpsetVersion)
//	fmt.Printf("Inputs: %v\n", info.Inputs)
func GetModelInfo(path string) (*ModelInfo, error) {
	return internalonnx.GetModelInfo(path)
}

// ListSupportedOps returns the supported ONNX operators, sorted.
func ListSupportedOps() []string {
	return internalonnx.ListSupportedOps()
}
