package onnx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/livedepth/internal/onnx/operators"
	"github.com/born-ml/livedepth/internal/tensor"
)

func TestListSupportedOps(t *testing.T) {
	ops := ListSupportedOps()
	for _, op := range []string{"ReduceMean", "Reshape", "Transpose", "Div", "Constant"} {
		assert.Contains(t, ops, op)
	}
}

func TestTopologicalSort(t *testing.T) {
	// A -> B -> C
	//      B -> D
	nodes := []NodeProto{
		{Name: "C", Inputs: []string{"b_out"}, Outputs: []string{"c_out"}},
		{Name: "A", Inputs: []string{"input"}, Outputs: []string{"a_out"}},
		{Name: "D", Inputs: []string{"b_out"}, Outputs: []string{"d_out"}},
		{Name: "B", Inputs: []string{"a_out"}, Outputs: []string{"b_out"}},
	}

	sorted := topologicalSort(nodes)

	positions := make(map[string]int)
	for i, node := range sorted {
		positions[node.Name] = i
	}
	assert.Less(t, positions["A"], positions["B"])
	assert.Less(t, positions["B"], positions["C"])
	assert.Less(t, positions["B"], positions["D"])
}

func TestTensorFromProto(t *testing.T) {
	proto := FloatTensor("w", []int64{2, 2}, []float32{1, 2, 3, 4})
	x, err := tensorFromProto(&proto)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2}, x.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4}, x.AsFloat32())

	legacy := &TensorProto{DataType: TensorProtoFloat, Dims: []int64{3}, FloatData: []float32{7, 8, 9}}
	x, err = tensorFromProto(legacy)
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 8, 9}, x.AsFloat32())

	short := &TensorProto{DataType: TensorProtoFloat, Dims: []int64{3}, RawData: []byte{0, 0, 0, 0}}
	_, err = tensorFromProto(short)
	assert.Error(t, err)

	_, err = tensorFromProto(&TensorProto{DataType: TensorProtoFloat16, Dims: []int64{1}})
	assert.Error(t, err)
}

func TestForwardMeanDepth(t *testing.T) {
	model, err := LoadFromProto(meanDepthModel(2, 2), DefaultLoadOptions())
	require.NoError(t, err)
	defer model.Release()

	assert.Equal(t, []string{"image"}, model.InputNames())
	assert.Equal(t, []string{"depth"}, model.OutputNames())
	assert.Equal(t, int64(13), model.OpsetVersion())
	assert.Equal(t, "depth", model.Metadata()["task"])

	shape, ok := model.InputShape("image")
	require.True(t, ok)
	assert.Equal(t, []int64{1, 2, 2, 3}, shape)

	input, err := tensor.FromFloat32(tensor.Shape{1, 2, 2, 3}, []float32{
		0, 0, 0, 3, 3, 3,
		1, 2, 3, 0.5, 0.5, 0.5,
	})
	require.NoError(t, err)
	defer input.Release()

	out, err := model.Forward(input)
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, tensor.Shape{1, 2, 2, 1}, out.Shape())
	assert.InDeltaSlice(t, []float32{0, 3, 2, 0.5}, out.AsFloat32(), 1e-6)
	assert.False(t, input.Released())
}

func TestForwardChainWithWeightsAndConstant(t *testing.T) {
	// depth = Reshape(Transpose(image) * scale + bias, [1, -1])
	graph := &GraphProto{
		Name: "chain",
		Nodes: []NodeProto{
			{Name: "t", OpType: "Transpose", Inputs: []string{"image"}, Outputs: []string{"chw"},
				Attributes: []AttributeProto{IntsAttr("perm", 0, 3, 1, 2)}},
			{Name: "bias", OpType: "Constant", Outputs: []string{"bias"},
				Attributes: []AttributeProto{TensorAttr("value", FloatTensor("", nil, []float32{1}))}},
			{Name: "flat", OpType: "Reshape", Inputs: []string{"biased", "shape"}, Outputs: []string{"depth"}},
			{Name: "add", OpType: "Add", Inputs: []string{"scaled", "bias"}, Outputs: []string{"biased"}},
			{Name: "mul", OpType: "Mul", Inputs: []string{"chw", "scale"}, Outputs: []string{"scaled"}},
		},
		Initializers: []TensorProto{
			FloatTensor("scale", []int64{1}, []float32{2}),
			Int64Tensor("shape", []int64{2}, []int64{1, -1}),
		},
		Inputs: []ValueInfoProto{
			TensorValue("image", TensorProtoFloat, 1, 1, 2, 1),
			TensorValue("scale", TensorProtoFloat, 1),
		},
		Outputs: []ValueInfoProto{TensorValue("depth", TensorProtoFloat, 1, 2)},
	}

	data, err := Marshal(NewModel(graph, 13))
	require.NoError(t, err)
	model, err := LoadFromBytes(data)
	require.NoError(t, err)
	defer model.Release()

	// Initializers listed as graph inputs are not model inputs.
	assert.Equal(t, []string{"image"}, model.InputNames())

	input, err := tensor.FromFloat32(tensor.Shape{1, 1, 2, 1}, []float32{3, 4})
	require.NoError(t, err)

	out, err := model.Forward(input)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2}, out.Shape())
	assert.Equal(t, []float32{7, 9}, out.AsFloat32())

	// Repeated runs reuse weights without releasing them.
	again, err := model.Forward(input)
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 9}, again.AsFloat32())
}

func TestForwardMissingInput(t *testing.T) {
	model, err := LoadFromProto(meanDepthModel(2, 2), DefaultLoadOptions())
	require.NoError(t, err)

	_, err = model.ForwardNamed(map[string]*tensor.RawTensor{})
	assert.ErrorContains(t, err, "missing input")
}

func TestForwardNodeErrorWrapsName(t *testing.T) {
	model, err := LoadFromProto(meanDepthModel(2, 2), DefaultLoadOptions())
	require.NoError(t, err)

	wrong, err := tensor.FromInt64(tensor.Shape{4}, []int64{1, 2, 3, 4})
	require.NoError(t, err)
	_, err = model.Forward(wrong)
	assert.ErrorContains(t, err, "node reduce (ReduceMean)")
}

func TestStrictModeRejectsUnsupported(t *testing.T) {
	proto := meanDepthModel(2, 2)
	proto.Graph.Nodes = append(proto.Graph.Nodes,
		NodeProto{Name: "c", OpType: "Conv", Inputs: []string{"depth"}, Outputs: []string{"y"}},
		NodeProto{Name: "r", OpType: "Resize", Inputs: []string{"y"}, Outputs: []string{"z"}},
		NodeProto{Name: "c2", OpType: "Conv", Inputs: []string{"z"}, Outputs: []string{"w"}},
	)

	_, err := LoadFromProto(proto, DefaultLoadOptions())
	var unsupported *UnsupportedOpsError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, []string{"Conv", "Resize"}, unsupported.Ops)

	// Lenient mode loads and fails on execution instead.
	model, err := LoadFromProto(proto, LoadOptions{})
	require.NoError(t, err)
	assert.NotNil(t, model)
}

func TestCustomOps(t *testing.T) {
	proto := meanDepthModel(1, 1)
	proto.Graph.Nodes[0].OpType = "InvertDepth"

	called := false
	model, err := LoadFromProto(proto, LoadOptions{
		StrictMode: true,
		CustomOps: map[string]operators.OpHandler{
			"InvertDepth": func(_ *operators.Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
				called = true
				return []*tensor.RawTensor{inputs[0].Clone()}, nil
			},
		},
	})
	require.NoError(t, err)

	input, err := tensor.FromFloat32(tensor.Shape{1, 1, 1, 3}, []float32{1, 2, 3})
	require.NoError(t, err)
	_, err = model.Forward(input)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestInfoFromProto(t *testing.T) {
	proto := meanDepthModel(256, 256)
	proto.Graph.Initializers = []TensorProto{FloatTensor("unused", []int64{1}, []float32{0})}

	info := InfoFromProto(proto)
	assert.Equal(t, int64(13), info.OpsetVersion)
	assert.Equal(t, 1, info.NodeCount)
	assert.Equal(t, 1, info.WeightCount)
	assert.Equal(t, map[string]int{"ReduceMean": 1}, info.OpCounts)
	require.Len(t, info.Inputs, 1)
	assert.Equal(t, ValueInfo{Name: "image", ElemType: TensorProtoFloat, Shape: []int64{1, 256, 256, 3}}, info.Inputs[0])
	assert.Equal(t, "depth", info.Metadata["task"])
}
