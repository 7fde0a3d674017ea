// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/livedepth/internal/tensor"
)

// RawTensor is a shaped, typed, reference-counted host buffer.
type RawTensor = tensor.RawTensor

// Shape lists tensor dimensions, outermost first.
type Shape = tensor.Shape

// DataType identifies the element type of a tensor.
type DataType = tensor.DataType

// Supported element types.
const (
	Float32 = tensor.Float32
	Int32   = tensor.Int32
	Int64   = tensor.Int64
	Uint8   = tensor.Uint8
	Bool    = tensor.Bool
)

// New allocates a zeroed tensor.
func New(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype)
}

// FromFloat32 copies data into a new float32 tensor of the given shape.
func FromFloat32(shape Shape, data []float32) (*RawTensor, error) {
	return tensor.FromFloat32(shape, data)
}

// FromInt64 copies data into a new int64 tensor of the given shape.
func FromInt64(shape Shape, data []int64) (*RawTensor, error) {
	return tensor.FromInt64(shape, data)
}

// Reshape returns a view of x with a new shape and the same element count.
// The view holds its own reference and must be released.
func Reshape(x *RawTensor, shape Shape) (*RawTensor, error) {
	return tensor.Reshape(x, shape)
}
