package onnx

import (
	"encoding/binary"
	"math"
)

// Helpers for assembling small models in code.

// FloatTensor returns a float32 initializer stored as raw little-endian data.
func FloatTensor(name string, dims []int64, data []float32) TensorProto {
	raw := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	return TensorProto{Name: name, DataType: TensorProtoFloat, Dims: dims, RawData: raw}
}

// Int64Tensor returns an int64 initializer stored in the int64_data field.
func Int64Tensor(name string, dims []int64, data []int64) TensorProto {
	return TensorProto{Name: name, DataType: TensorProtoInt64, Dims: dims, Int64Data: data}
}

// TensorValue describes a tensor graph input or output. A negative dim is
// written as the symbolic dimension "N".
func TensorValue(name string, elemType int32, dims ...int64) ValueInfoProto {
	shape := &TensorShapeProto{Dims: make([]DimensionProto, len(dims))}
	for i, d := range dims {
		if d < 0 {
			shape.Dims[i].DimParam = "N"
			continue
		}
		shape.Dims[i].DimValue = d
	}
	return ValueInfoProto{
		Name: name,
		Type: &TypeProto{TensorType: &TensorTypeProto{ElemType: elemType, Shape: shape}},
	}
}

// IntAttr returns an INT attribute.
func IntAttr(name string, v int64) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoInt, I: v}
}

// IntsAttr returns an INTS attribute.
func IntsAttr(name string, v ...int64) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoInts, Ints: v}
}

// FloatAttr returns a FLOAT attribute.
func FloatAttr(name string, v float32) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoFloat, F: v}
}

// TensorAttr returns a TENSOR attribute.
func TensorAttr(name string, t TensorProto) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoTensor, T: &t}
}

// NewModel wraps a graph into a model importing the default opset.
func NewModel(graph *GraphProto, opset int64) *ModelProto {
	return &ModelProto{
		IRVersion:       8,
		OpsetImport:     []OperatorSetID{{Version: opset}},
		ProducerName:    "livedepth",
		ProducerVersion: "0.1.0",
		Graph:           graph,
	}
}
