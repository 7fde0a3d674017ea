package onnx

import (
	"errors"
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// maxModelSize bounds the size of a model file accepted by ParseFile.
const maxModelSize = 2 << 30

// errSkip tells walk to skip the current field.
var errSkip = errors.New("skip field")

// ParseFile reads and parses an ONNX model file.
func ParseFile(path string) (*ModelProto, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() > maxModelSize {
		return nil, fmt.Errorf("model file too large: %d bytes", info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes an ONNX model from its protobuf encoding.
func Parse(data []byte) (*ModelProto, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty model data")
	}

	model := &ModelProto{}
	if err := model.unmarshal(data); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	if model.Graph == nil {
		return nil, fmt.Errorf("model has no graph")
	}
	return model, nil
}

// fieldFunc decodes a single field and returns the number of bytes consumed.
// Returning errSkip leaves the field to the generic skipper.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// walk iterates over the fields of one encoded message.
func walk(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n, err := fn(num, typ, b)
		if errors.Is(err, errSkip) {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
		} else if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		b = b[n:]
	}
	return nil
}

func wantType(got, want protowire.Type) error {
	if got != want {
		return fmt.Errorf("wire type %d, want %d", got, want)
	}
	return nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if err := wantType(typ, protowire.BytesType); err != nil {
		return nil, 0, err
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeString(typ protowire.Type, b []byte, dst *string) (int, error) {
	v, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}
	*dst = string(v)
	return n, nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if err := wantType(typ, protowire.VarintType); err != nil {
		return 0, 0, err
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeInt64(typ protowire.Type, b []byte, dst *int64) (int, error) {
	v, n, err := consumeVarint(typ, b)
	*dst = int64(v)
	return n, err
}

func consumeInt32(typ protowire.Type, b []byte, dst *int32) (int, error) {
	v, n, err := consumeVarint(typ, b)
	*dst = int32(v) //nolint:gosec // proto int32 fields are varint-encoded
	return n, err
}

// consumeInt64s appends a repeated int64 field, packed or not.
func consumeInt64s(typ protowire.Type, b []byte, dst *[]int64) (int, error) {
	if typ == protowire.VarintType {
		var v int64
		n, err := consumeInt64(typ, b, &v)
		*dst = append(*dst, v)
		return n, err
	}

	packed, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}
	for len(packed) > 0 {
		v, m := protowire.ConsumeVarint(packed)
		if m < 0 {
			return 0, protowire.ParseError(m)
		}
		*dst = append(*dst, int64(v))
		packed = packed[m:]
	}
	return n, nil
}

func consumeInt32s(typ protowire.Type, b []byte, dst *[]int32) (int, error) {
	var wide []int64
	n, err := consumeInt64s(typ, b, &wide)
	for _, v := range wide {
		*dst = append(*dst, int32(v)) //nolint:gosec // proto int32 fields are varint-encoded
	}
	return n, err
}

func consumeFloat(typ protowire.Type, b []byte, dst *float32) (int, error) {
	if err := wantType(typ, protowire.Fixed32Type); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeFixed32(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = math.Float32frombits(v)
	return n, nil
}

// consumeFloats appends a repeated float field, packed or not.
func consumeFloats(typ protowire.Type, b []byte, dst *[]float32) (int, error) {
	if typ == protowire.Fixed32Type {
		var v float32
		n, err := consumeFloat(typ, b, &v)
		*dst = append(*dst, v)
		return n, err
	}

	packed, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}
	if len(packed)%4 != 0 {
		return 0, fmt.Errorf("packed float length %d not a multiple of 4", len(packed))
	}
	for len(packed) > 0 {
		v, m := protowire.ConsumeFixed32(packed)
		if m < 0 {
			return 0, protowire.ParseError(m)
		}
		*dst = append(*dst, math.Float32frombits(v))
		packed = packed[m:]
	}
	return n, nil
}

// consumeMessage decodes a nested message with the given unmarshal func.
func consumeMessage(typ protowire.Type, b []byte, unmarshal func([]byte) error) (int, error) {
	v, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}
	if err := unmarshal(v); err != nil {
		return 0, err
	}
	return n, nil
}

func (m *ModelProto) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1: // ir_version
			return consumeInt64(typ, b, &m.IRVersion)
		case 2: // producer_name
			return consumeString(typ, b, &m.ProducerName)
		case 3: // producer_version
			return consumeString(typ, b, &m.ProducerVersion)
		case 4: // domain
			return consumeString(typ, b, &m.Domain)
		case 5: // model_version
			return consumeInt64(typ, b, &m.ModelVersion)
		case 6: // doc_string
			return consumeString(typ, b, &m.DocString)
		case 7: // graph
			m.Graph = &GraphProto{}
			return consumeMessage(typ, b, m.Graph.unmarshal)
		case 8: // opset_import
			var opset OperatorSetID
			n, err := consumeMessage(typ, b, opset.unmarshal)
			m.OpsetImport = append(m.OpsetImport, opset)
			return n, err
		case 14: // metadata_props
			var entry StringStringEntry
			n, err := consumeMessage(typ, b, entry.unmarshal)
			m.MetadataProps = append(m.MetadataProps, entry)
			return n, err
		}
		return 0, errSkip
	})
}

func (g *GraphProto) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1: // node
			var node NodeProto
			n, err := consumeMessage(typ, b, node.unmarshal)
			g.Nodes = append(g.Nodes, node)
			return n, err
		case 2: // name
			return consumeString(typ, b, &g.Name)
		case 5: // initializer
			var init TensorProto
			n, err := consumeMessage(typ, b, init.unmarshal)
			g.Initializers = append(g.Initializers, init)
			return n, err
		case 10: // doc_string
			return consumeString(typ, b, &g.DocString)
		case 11, 12, 13: // input, output, value_info
			var vi ValueInfoProto
			n, err := consumeMessage(typ, b, vi.unmarshal)
			switch num {
			case 11:
				g.Inputs = append(g.Inputs, vi)
			case 12:
				g.Outputs = append(g.Outputs, vi)
			default:
				g.ValueInfo = append(g.ValueInfo, vi)
			}
			return n, err
		}
		return 0, errSkip
	})
}

func (node *NodeProto) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1, 2: // input, output
			var name string
			n, err := consumeString(typ, b, &name)
			if num == 1 {
				node.Inputs = append(node.Inputs, name)
			} else {
				node.Outputs = append(node.Outputs, name)
			}
			return n, err
		case 3: // name
			return consumeString(typ, b, &node.Name)
		case 4: // op_type
			return consumeString(typ, b, &node.OpType)
		case 5: // attribute
			var attr AttributeProto
			n, err := consumeMessage(typ, b, attr.unmarshal)
			node.Attributes = append(node.Attributes, attr)
			return n, err
		case 6: // doc_string
			return consumeString(typ, b, &node.DocString)
		case 7: // domain
			return consumeString(typ, b, &node.Domain)
		}
		return 0, errSkip
	})
}

func (t *TensorProto) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1: // dims
			return consumeInt64s(typ, b, &t.Dims)
		case 2: // data_type
			return consumeInt32(typ, b, &t.DataType)
		case 4: // float_data
			return consumeFloats(typ, b, &t.FloatData)
		case 5: // int32_data
			return consumeInt32s(typ, b, &t.Int32Data)
		case 7: // int64_data
			return consumeInt64s(typ, b, &t.Int64Data)
		case 8: // name
			return consumeString(typ, b, &t.Name)
		case 9: // raw_data
			v, n, err := consumeBytes(typ, b)
			t.RawData = append([]byte(nil), v...)
			return n, err
		case 12: // doc_string
			return consumeString(typ, b, &t.DocString)
		}
		return 0, errSkip
	})
}

func (v *ValueInfoProto) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1: // name
			return consumeString(typ, b, &v.Name)
		case 2: // type
			v.Type = &TypeProto{}
			return consumeMessage(typ, b, v.Type.unmarshal)
		case 3: // doc_string
			return consumeString(typ, b, &v.DocString)
		}
		return 0, errSkip
	})
}

func (tp *TypeProto) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 { // tensor_type
			tp.TensorType = &TensorTypeProto{}
			return consumeMessage(typ, b, tp.TensorType.unmarshal)
		}
		return 0, errSkip
	})
}

func (tt *TensorTypeProto) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1: // elem_type
			return consumeInt32(typ, b, &tt.ElemType)
		case 2: // shape
			tt.Shape = &TensorShapeProto{}
			return consumeMessage(typ, b, tt.Shape.unmarshal)
		}
		return 0, errSkip
	})
}

func (s *TensorShapeProto) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 { // dim
			var dim DimensionProto
			n, err := consumeMessage(typ, b, dim.unmarshal)
			s.Dims = append(s.Dims, dim)
			return n, err
		}
		return 0, errSkip
	})
}

func (d *DimensionProto) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1: // dim_value
			return consumeInt64(typ, b, &d.DimValue)
		case 2: // dim_param
			return consumeString(typ, b, &d.DimParam)
		}
		return 0, errSkip
	})
}

func (a *AttributeProto) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1: // name
			return consumeString(typ, b, &a.Name)
		case 2: // f
			return consumeFloat(typ, b, &a.F)
		case 3: // i
			return consumeInt64(typ, b, &a.I)
		case 4: // s
			v, n, err := consumeBytes(typ, b)
			a.S = append([]byte(nil), v...)
			return n, err
		case 5: // t
			a.T = &TensorProto{}
			return consumeMessage(typ, b, a.T.unmarshal)
		case 7: // floats
			return consumeFloats(typ, b, &a.Floats)
		case 8: // ints
			return consumeInt64s(typ, b, &a.Ints)
		case 9: // strings
			v, n, err := consumeBytes(typ, b)
			a.Strings = append(a.Strings, append([]byte(nil), v...))
			return n, err
		case 20: // type
			return consumeInt32(typ, b, &a.Type)
		}
		return 0, errSkip
	})
}

func (o *OperatorSetID) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1: // domain
			return consumeString(typ, b, &o.Domain)
		case 2: // version
			return consumeInt64(typ, b, &o.Version)
		}
		return 0, errSkip
	})
}

func (e *StringStringEntry) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1: // key
			return consumeString(typ, b, &e.Key)
		case 2: // value
			return consumeString(typ, b, &e.Value)
		}
		return 0, errSkip
	})
}
