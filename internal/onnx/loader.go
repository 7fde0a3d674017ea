package onnx

import (
	"fmt"
	"sort"

	"github.com/born-ml/livedepth/internal/onnx/operators"
)

// LoadOptions configures model loading behavior.
type LoadOptions struct {
	// StrictMode fails at load time on unsupported operators
	// (default: false = fail when the node is first executed).
	StrictMode bool

	// CustomOps provides custom operator handlers.
	CustomOps map[string]operators.OpHandler
}

// DefaultLoadOptions returns default loading options.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		StrictMode: true,
		CustomOps:  nil,
	}
}

// Load loads an ONNX model from file and prepares it for inference.
func Load(path string, opts ...LoadOptions) (*Model, error) {
	opt := DefaultLoadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	proto, err := ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ONNX file: %w", err)
	}
	return LoadFromProto(proto, opt)
}

// LoadFromBytes loads an ONNX model from bytes.
func LoadFromBytes(data []byte, opts ...LoadOptions) (*Model, error) {
	opt := DefaultLoadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	proto, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ONNX data: %w", err)
	}
	return LoadFromProto(proto, opt)
}

// LoadFromProto loads a model from parsed ModelProto.
func LoadFromProto(proto *ModelProto, opt LoadOptions) (*Model, error) {
	registry := operators.NewRegistry()
	for opType, handler := range opt.CustomOps {
		registry.Register(opType, handler)
	}

	if opt.StrictMode {
		if err := validateOperators(proto.Graph, registry); err != nil {
			return nil, err
		}
	}

	model := &Model{
		proto:    proto,
		registry: registry,
	}
	if err := model.compile(); err != nil {
		return nil, fmt.Errorf("failed to compile model: %w", err)
	}
	return model, nil
}

// UnsupportedOpsError lists operators that have no registered handler.
type UnsupportedOpsError struct {
	Ops []string
}

func (e *UnsupportedOpsError) Error() string {
	return fmt.Sprintf("unsupported operators: %v", e.Ops)
}

// validateOperators checks that all operators are supported.
func validateOperators(graph *GraphProto, registry *operators.Registry) error {
	if graph == nil {
		return fmt.Errorf("model has no graph")
	}

	seen := make(map[string]bool)
	for i := range graph.Nodes {
		op := graph.Nodes[i].OpType
		if _, ok := registry.Get(op); !ok {
			seen[op] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}

	unsupported := make([]string, 0, len(seen))
	for op := range seen {
		unsupported = append(unsupported, op)
	}
	sort.Strings(unsupported)
	return &UnsupportedOpsError{Ops: unsupported}
}

// ValueInfo summarizes a graph input or output.
type ValueInfo struct {
	Name     string
	ElemType int32
	Shape    []int64 // -1 marks symbolic dimensions
}

// ModelInfo contains basic information about an ONNX model without fully loading it.
type ModelInfo struct {
	IRVersion       int64
	OpsetVersion    int64
	ProducerName    string
	ProducerVersion string
	Inputs          []ValueInfo
	Outputs         []ValueInfo
	NodeCount       int
	WeightCount     int
	OpCounts        map[string]int
	Metadata        map[string]string
}

// GetModelInfo extracts basic info from an ONNX file.
func GetModelInfo(path string) (*ModelInfo, error) {
	proto, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return InfoFromProto(proto), nil
}

// InfoFromProto summarizes a parsed model.
func InfoFromProto(proto *ModelProto) *ModelInfo {
	info := &ModelInfo{
		IRVersion:       proto.IRVersion,
		OpsetVersion:    defaultOpset(proto),
		ProducerName:    proto.ProducerName,
		ProducerVersion: proto.ProducerVersion,
		OpCounts:        make(map[string]int),
		Metadata:        make(map[string]string),
	}
	for _, prop := range proto.MetadataProps {
		info.Metadata[prop.Key] = prop.Value
	}

	graph := proto.Graph
	if graph == nil {
		return info
	}

	initNames := make(map[string]bool)
	for i := range graph.Initializers {
		initNames[graph.Initializers[i].Name] = true
	}
	for i := range graph.Inputs {
		if !initNames[graph.Inputs[i].Name] {
			info.Inputs = append(info.Inputs, summarize(&graph.Inputs[i]))
		}
	}
	for i := range graph.Outputs {
		info.Outputs = append(info.Outputs, summarize(&graph.Outputs[i]))
	}
	for i := range graph.Nodes {
		info.OpCounts[graph.Nodes[i].OpType]++
	}
	info.NodeCount = len(graph.Nodes)
	info.WeightCount = len(graph.Initializers)
	return info
}

func summarize(v *ValueInfoProto) ValueInfo {
	vi := ValueInfo{Name: v.Name, Shape: v.Shape()}
	if v.Type != nil && v.Type.TensorType != nil {
		vi.ElemType = v.Type.TensorType.ElemType
	}
	return vi
}

// ListSupportedOps returns all supported ONNX operators.
func ListSupportedOps() []string {
	return operators.NewRegistry().SupportedOps()
}
