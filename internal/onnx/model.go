package onnx

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/born-ml/livedepth/internal/onnx/operators"
	"github.com/born-ml/livedepth/internal/tensor"
)

// Model represents a loaded ONNX model ready for inference.
type Model struct {
	proto        *ModelProto
	registry     *operators.Registry
	weights      map[string]*tensor.RawTensor
	inputs       []ValueInfoProto
	outputs      []ValueInfoProto
	sortedNodes  []NodeProto
	opsetVersion int64
}

// InputNames returns the names of model inputs (initializers excluded).
func (m *Model) InputNames() []string {
	return valueNames(m.inputs)
}

// OutputNames returns the names of model outputs.
func (m *Model) OutputNames() []string {
	return valueNames(m.outputs)
}

// InputShape returns the declared shape of the named input, with -1 for
// symbolic dimensions.
func (m *Model) InputShape(name string) ([]int64, bool) {
	return lookupShape(m.inputs, name)
}

// OutputShape returns the declared shape of the named output.
func (m *Model) OutputShape(name string) ([]int64, bool) {
	return lookupShape(m.outputs, name)
}

// OpsetVersion returns the ONNX opset version.
func (m *Model) OpsetVersion() int64 {
	return m.opsetVersion
}

// Metadata returns model metadata as key-value pairs.
func (m *Model) Metadata() map[string]string {
	meta := make(map[string]string)
	for _, prop := range m.proto.MetadataProps {
		meta[prop.Key] = prop.Value
	}
	meta["producer_name"] = m.proto.ProducerName
	meta["producer_version"] = m.proto.ProducerVersion
	meta["domain"] = m.proto.Domain
	return meta
}

// Release frees the model weights. The model must not be used afterwards.
func (m *Model) Release() {
	for name, w := range m.weights {
		w.Release()
		delete(m.weights, name)
	}
}

// Forward runs inference with a single input tensor.
// For models with multiple inputs or outputs, use ForwardNamed.
func (m *Model) Forward(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	if len(m.inputs) != 1 {
		return nil, fmt.Errorf("model has %d inputs, use ForwardNamed", len(m.inputs))
	}
	if len(m.outputs) != 1 {
		return nil, fmt.Errorf("model has %d outputs, use ForwardNamed", len(m.outputs))
	}

	outputs, err := m.ForwardNamed(map[string]*tensor.RawTensor{
		m.inputs[0].Name: input,
	})
	if err != nil {
		return nil, err
	}
	return outputs[m.outputs[0].Name], nil
}

// ForwardNamed runs inference with named inputs and returns the graph
// outputs by name. Every returned tensor is a fresh handle owned by the
// caller; intermediates are released before returning.
func (m *Model) ForwardNamed(inputs map[string]*tensor.RawTensor) (map[string]*tensor.RawTensor, error) {
	tensors := make(map[string]*tensor.RawTensor, len(m.weights)+len(inputs))
	for name, t := range m.weights {
		tensors[name] = t
	}
	for name, t := range inputs {
		tensors[name] = t
	}

	for i := range m.inputs {
		if _, ok := tensors[m.inputs[i].Name]; !ok {
			return nil, fmt.Errorf("missing input: %s", m.inputs[i].Name)
		}
	}

	var scope tensor.Scope
	defer scope.Release()

	for nodeIdx := range m.sortedNodes {
		node := &m.sortedNodes[nodeIdx]

		nodeInputs := make([]*tensor.RawTensor, len(node.Inputs))
		for i, inputName := range node.Inputs {
			if inputName == "" {
				continue // optional input not provided
			}
			t, ok := tensors[inputName]
			if !ok {
				return nil, fmt.Errorf("node %s: missing input %s", node.Name, inputName)
			}
			nodeInputs[i] = t
		}

		opNode, err := nodeProtoToOperatorNode(node)
		if err != nil {
			return nil, fmt.Errorf("node %s (%s): %w", node.Name, node.OpType, err)
		}
		outputs, err := m.registry.Execute(opNode.Node, nodeInputs)
		opNode.release()
		if err != nil {
			return nil, fmt.Errorf("node %s (%s): %w", node.Name, node.OpType, err)
		}

		for i, out := range outputs {
			scope.Track(out)
			if i < len(node.Outputs) {
				tensors[node.Outputs[i]] = out
			}
		}
	}

	result := make(map[string]*tensor.RawTensor, len(m.outputs))
	for i := range m.outputs {
		name := m.outputs[i].Name
		t, ok := tensors[name]
		if !ok {
			for _, r := range result {
				r.Release()
			}
			return nil, fmt.Errorf("missing output: %s", name)
		}
		result[name] = t.Clone()
	}
	return result, nil
}

// compile prepares the model for inference.
func (m *Model) compile() error {
	graph := m.proto.Graph
	if graph == nil {
		return fmt.Errorf("model has no graph")
	}

	m.weights = make(map[string]*tensor.RawTensor, len(graph.Initializers))
	for i := range graph.Initializers {
		init := &graph.Initializers[i]
		t, err := tensorFromProto(init)
		if err != nil {
			m.Release()
			return fmt.Errorf("failed to load initializer %s: %w", init.Name, err)
		}
		m.weights[init.Name] = t
	}

	// Inputs are graph inputs minus initializers.
	for i := range graph.Inputs {
		if _, isWeight := m.weights[graph.Inputs[i].Name]; !isWeight {
			m.inputs = append(m.inputs, graph.Inputs[i])
		}
	}
	m.outputs = append(m.outputs, graph.Outputs...)

	m.sortedNodes = topologicalSort(graph.Nodes)
	m.opsetVersion = defaultOpset(m.proto)
	return nil
}

func defaultOpset(proto *ModelProto) int64 {
	for _, opset := range proto.OpsetImport {
		if opset.Domain == "" || opset.Domain == "ai.onnx" {
			return opset.Version
		}
	}
	return 0
}

// tensorFromProto converts TensorProto to RawTensor.
func tensorFromProto(proto *TensorProto) (*tensor.RawTensor, error) {
	shape := make(tensor.Shape, len(proto.Dims))
	for i, dim := range proto.Dims {
		shape[i] = int(dim)
	}

	dtype, err := protoTypeToTensorType(proto.DataType)
	if err != nil {
		return nil, err
	}

	if proto.DataType == TensorProtoDouble {
		return doubleTensorFromProto(proto, shape)
	}

	t, err := tensor.NewRaw(shape, dtype)
	if err != nil {
		return nil, err
	}

	switch {
	case len(proto.RawData) > 0:
		if len(proto.RawData) != t.ByteSize() {
			t.Release()
			return nil, fmt.Errorf("raw data is %d bytes, want %d", len(proto.RawData), t.ByteSize())
		}
		copy(t.Data(), proto.RawData)
	case len(proto.FloatData) > 0 && dtype == tensor.Float32:
		copy(t.AsFloat32(), proto.FloatData)
	case len(proto.Int64Data) > 0 && dtype == tensor.Int64:
		copy(t.AsInt64(), proto.Int64Data)
	case len(proto.Int32Data) > 0 && dtype == tensor.Int32:
		copy(t.AsInt32(), proto.Int32Data)
	case len(proto.Int32Data) > 0 && (dtype == tensor.Uint8 || dtype == tensor.Bool):
		dst := t.AsUint8()
		for i, v := range proto.Int32Data {
			dst[i] = uint8(v) //nolint:gosec // uint8/bool payloads live in int32_data
		}
	}

	return t, nil
}

// doubleTensorFromProto narrows a float64 initializer to float32.
func doubleTensorFromProto(proto *TensorProto, shape tensor.Shape) (*tensor.RawTensor, error) {
	t, err := tensor.NewRaw(shape, tensor.Float32)
	if err != nil {
		return nil, err
	}
	dst := t.AsFloat32()
	if len(proto.RawData) != 8*len(dst) {
		t.Release()
		return nil, fmt.Errorf("raw data is %d bytes, want %d", len(proto.RawData), 8*len(dst))
	}
	for i := range dst {
		dst[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(proto.RawData[8*i:])))
	}
	return t, nil
}

// protoTypeToTensorType converts ONNX data type to tensor.DataType.
func protoTypeToTensorType(onnxType int32) (tensor.DataType, error) {
	switch onnxType {
	case TensorProtoFloat, TensorProtoDouble:
		return tensor.Float32, nil
	case TensorProtoInt32:
		return tensor.Int32, nil
	case TensorProtoInt64:
		return tensor.Int64, nil
	case TensorProtoUint8:
		return tensor.Uint8, nil
	case TensorProtoBool:
		return tensor.Bool, nil
	default:
		return 0, fmt.Errorf("unsupported tensor data type %d", onnxType)
	}
}

// operatorNode pairs an operators.Node with the tensors decoded from its
// TENSOR attributes so they can be released after execution.
type operatorNode struct {
	*operators.Node
	owned []*tensor.RawTensor
}

func (n *operatorNode) release() {
	for _, t := range n.owned {
		t.Release()
	}
}

// nodeProtoToOperatorNode converts NodeProto to operators.Node.
func nodeProtoToOperatorNode(proto *NodeProto) (*operatorNode, error) {
	out := &operatorNode{}
	attrs := make([]operators.Attribute, len(proto.Attributes))
	for i := range proto.Attributes {
		attr := &proto.Attributes[i]
		attrs[i] = operators.Attribute{
			Name:    attr.Name,
			Type:    attr.Type,
			F:       attr.F,
			I:       attr.I,
			S:       attr.S,
			Floats:  attr.Floats,
			Ints:    attr.Ints,
			Strings: attr.Strings,
		}
		if attr.T != nil {
			t, err := tensorFromProto(attr.T)
			if err != nil {
				out.release()
				return nil, fmt.Errorf("attribute %s: %w", attr.Name, err)
			}
			attrs[i].T = t
			out.owned = append(out.owned, t)
		}
	}
	out.Node = &operators.Node{
		Name:       proto.Name,
		OpType:     proto.OpType,
		Inputs:     proto.Inputs,
		Outputs:    proto.Outputs,
		Attributes: attrs,
		Domain:     proto.Domain,
	}
	return out, nil
}

// topologicalSort sorts nodes in execution order.
// Ensures dependencies are executed before dependents.
func topologicalSort(nodes []NodeProto) []NodeProto {
	outputToNode := make(map[string]int)
	for i := range nodes {
		for _, output := range nodes[i].Outputs {
			outputToNode[output] = i
		}
	}

	visited := make([]bool, len(nodes))
	result := make([]NodeProto, 0, len(nodes))

	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true

		for _, input := range nodes[i].Inputs {
			if depIdx, ok := outputToNode[input]; ok {
				visit(depIdx)
			}
		}
		result = append(result, nodes[i])
	}

	for i := range nodes {
		visit(i)
	}
	return result
}

func valueNames(values []ValueInfoProto) []string {
	names := make([]string, len(values))
	for i := range values {
		names[i] = values[i].Name
	}
	return names
}

func lookupShape(values []ValueInfoProto, name string) ([]int64, bool) {
	for i := range values {
		if values[i].Name == name {
			shape := values[i].Shape()
			return shape, shape != nil
		}
	}
	return nil, false
}
