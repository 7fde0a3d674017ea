package onnx_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/livedepth/internal/bridge"
	"github.com/born-ml/livedepth/internal/inference"
	internalonnx "github.com/born-ml/livedepth/internal/onnx"
	"github.com/born-ml/livedepth/onnx"
	"github.com/born-ml/livedepth/tensor"
)

func writeSynthetic(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "depth.onnx")
	require.NoError(t, internalonnx.WriteFile(path, inference.SyntheticModel(2, 2, bridge.OrderNHWC)))
	return path
}

func TestLoadAndForward(t *testing.T) {
	model, err := onnx.Load(writeSynthetic(t))
	require.NoError(t, err)
	defer model.Release()

	assert.Equal(t, []string{"image"}, model.InputNames())
	assert.Equal(t, []string{"depth"}, model.OutputNames())
	shape, ok := model.InputShape("image")
	require.True(t, ok)
	assert.Equal(t, []int64{1, 2, 2, 3}, shape)

	x, err := tensor.FromFloat32(tensor.Shape{1, 2, 2, 3}, []float32{
		0, 0, 0, 3, 3, 3,
		1, 2, 3, 6, 0, 0,
	})
	require.NoError(t, err)
	defer x.Release()

	y, err := model.Forward(x)
	require.NoError(t, err)
	defer y.Release()
	assert.Equal(t, tensor.Shape{1, 2, 2, 1}, y.Shape())
	assert.InDeltaSlice(t, []float32{0, 3, 2, 2}, y.AsFloat32(), 1e-6)
}

func TestLoadFromBytesStrict(t *testing.T) {
	graph := &internalonnx.GraphProto{
		Name: "unsupported",
		Nodes: []internalonnx.NodeProto{{
			OpType: "Conv", Inputs: []string{"x"}, Outputs: []string{"y"},
		}},
		Inputs:  []internalonnx.ValueInfoProto{internalonnx.TensorValue("x", internalonnx.TensorProtoFloat, 1)},
		Outputs: []internalonnx.ValueInfoProto{internalonnx.TensorValue("y", internalonnx.TensorProtoFloat, 1)},
	}
	data, err := internalonnx.Marshal(internalonnx.NewModel(graph, 13))
	require.NoError(t, err)

	_, err = onnx.LoadFromBytes(data)
	var unsupported *onnx.UnsupportedOpsError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, []string{"Conv"}, unsupported.Ops)

	lenient := onnx.DefaultLoadOptions()
	lenient.StrictMode = false
	model, err := onnx.LoadFromBytes(data, lenient)
	require.NoError(t, err)
	model.Release()
}

func TestGetModelInfo(t *testing.T) {
	info, err := onnx.GetModelInfo(writeSynthetic(t))
	require.NoError(t, err)
	assert.Equal(t, 1, info.NodeCount)
	assert.Equal(t, "livedepth", info.ProducerName)
	require.Len(t, info.Outputs, 1)
	assert.Equal(t, []int64{1, 2, 2, 1}, info.Outputs[0].Shape)
}

func TestListSupportedOps(t *testing.T) {
	ops := onnx.ListSupportedOps()
	assert.Contains(t, ops, "ReduceMean")
	assert.Contains(t, ops, "Reshape")
	assert.IsIncreasing(t, ops)
}
