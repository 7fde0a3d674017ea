// Package operators implements the ONNX operators needed by depth
// estimation graphs on host float32/int64 tensors.
//
// Every handler returns fresh tensor handles (new allocations or Clone of
// an input) so the executor can release all intermediates uniformly.
package operators
