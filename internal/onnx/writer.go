package onnx

import (
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal encodes a model in the ONNX protobuf wire format.
// Only the fields represented by the structs in this package are written.
func Marshal(model *ModelProto) ([]byte, error) {
	if model == nil || model.Graph == nil {
		return nil, fmt.Errorf("model has no graph")
	}
	return model.appendTo(nil), nil
}

// WriteFile encodes a model and writes it to path.
func WriteFile(path string, model *ModelProto) error {
	data, err := Marshal(model)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	return nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendPackedInt64s(b []byte, num protowire.Number, vals []int64) []byte {
	if len(vals) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vals {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	return appendMessage(b, num, packed)
}

func appendPackedFloats(b []byte, num protowire.Number, vals []float32) []byte {
	if len(vals) == 0 {
		return b
	}
	packed := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	return appendMessage(b, num, packed)
}

func (m *ModelProto) appendTo(b []byte) []byte {
	b = appendVarint(b, 1, m.IRVersion)
	b = appendString(b, 2, m.ProducerName)
	b = appendString(b, 3, m.ProducerVersion)
	b = appendString(b, 4, m.Domain)
	b = appendVarint(b, 5, m.ModelVersion)
	b = appendString(b, 6, m.DocString)
	if m.Graph != nil {
		b = appendMessage(b, 7, m.Graph.appendTo(nil))
	}
	for i := range m.OpsetImport {
		b = appendMessage(b, 8, m.OpsetImport[i].appendTo(nil))
	}
	for i := range m.MetadataProps {
		b = appendMessage(b, 14, m.MetadataProps[i].appendTo(nil))
	}
	return b
}

func (g *GraphProto) appendTo(b []byte) []byte {
	for i := range g.Nodes {
		b = appendMessage(b, 1, g.Nodes[i].appendTo(nil))
	}
	b = appendString(b, 2, g.Name)
	for i := range g.Initializers {
		b = appendMessage(b, 5, g.Initializers[i].appendTo(nil))
	}
	b = appendString(b, 10, g.DocString)
	for i := range g.Inputs {
		b = appendMessage(b, 11, g.Inputs[i].appendTo(nil))
	}
	for i := range g.Outputs {
		b = appendMessage(b, 12, g.Outputs[i].appendTo(nil))
	}
	for i := range g.ValueInfo {
		b = appendMessage(b, 13, g.ValueInfo[i].appendTo(nil))
	}
	return b
}

func (node *NodeProto) appendTo(b []byte) []byte {
	// Empty names mark omitted optional inputs and must be kept.
	for _, in := range node.Inputs {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, in)
	}
	for _, out := range node.Outputs {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, out)
	}
	b = appendString(b, 3, node.Name)
	b = appendString(b, 4, node.OpType)
	for i := range node.Attributes {
		b = appendMessage(b, 5, node.Attributes[i].appendTo(nil))
	}
	b = appendString(b, 6, node.DocString)
	b = appendString(b, 7, node.Domain)
	return b
}

func (t *TensorProto) appendTo(b []byte) []byte {
	b = appendPackedInt64s(b, 1, t.Dims)
	b = appendVarint(b, 2, int64(t.DataType))
	b = appendPackedFloats(b, 4, t.FloatData)
	if len(t.Int32Data) > 0 {
		wide := make([]int64, len(t.Int32Data))
		for i, v := range t.Int32Data {
			wide[i] = int64(v)
		}
		b = appendPackedInt64s(b, 5, wide)
	}
	b = appendPackedInt64s(b, 7, t.Int64Data)
	b = appendString(b, 8, t.Name)
	if len(t.RawData) > 0 {
		b = appendMessage(b, 9, t.RawData)
	}
	b = appendString(b, 12, t.DocString)
	return b
}

func (v *ValueInfoProto) appendTo(b []byte) []byte {
	b = appendString(b, 1, v.Name)
	if v.Type != nil && v.Type.TensorType != nil {
		tt := v.Type.TensorType
		var inner []byte
		inner = appendVarint(inner, 1, int64(tt.ElemType))
		if tt.Shape != nil {
			var shape []byte
			for _, d := range tt.Shape.Dims {
				var dim []byte
				if d.DimParam != "" {
					dim = appendString(dim, 2, d.DimParam)
				} else {
					dim = protowire.AppendTag(dim, 1, protowire.VarintType)
					dim = protowire.AppendVarint(dim, uint64(d.DimValue))
				}
				shape = appendMessage(shape, 1, dim)
			}
			inner = appendMessage(inner, 2, shape)
		}
		b = appendMessage(b, 2, appendMessage(nil, 1, inner))
	}
	b = appendString(b, 3, v.DocString)
	return b
}

func (a *AttributeProto) appendTo(b []byte) []byte {
	b = appendString(b, 1, a.Name)
	switch a.Type {
	case AttributeProtoFloat:
		b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(a.F))
	case AttributeProtoInt:
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.I))
	case AttributeProtoString:
		b = appendMessage(b, 4, a.S)
	case AttributeProtoTensor:
		if a.T != nil {
			b = appendMessage(b, 5, a.T.appendTo(nil))
		}
	case AttributeProtoFloats:
		b = appendPackedFloats(b, 7, a.Floats)
	case AttributeProtoInts:
		b = appendPackedInt64s(b, 8, a.Ints)
	case AttributeProtoStrings:
		for _, s := range a.Strings {
			b = appendMessage(b, 9, s)
		}
	}
	b = appendVarint(b, 20, int64(a.Type))
	return b
}

func (o *OperatorSetID) appendTo(b []byte) []byte {
	b = appendString(b, 1, o.Domain)
	b = appendVarint(b, 2, o.Version)
	return b
}

func (e *StringStringEntry) appendTo(b []byte) []byte {
	b = appendString(b, 1, e.Key)
	b = appendString(b, 2, e.Value)
	return b
}
