package inference

import (
	"github.com/born-ml/livedepth/internal/bridge"
	"github.com/born-ml/livedepth/internal/onnx"
)

// SyntheticModel builds a tiny depth model whose output is the per-pixel
// mean of the color channels, so a uniform gray frame maps to a uniform
// depth equal to its normalized intensity.
//
// Channels-last models emit (1, H, W, 1) and resolve to LayoutDirect;
// channels-first models emit (1, H, W) and resolve to LayoutReshape.
func SyntheticModel(width, height int, order bridge.InputOrder) *onnx.ModelProto {
	w, h := int64(width), int64(height)

	var (
		input  onnx.ValueInfoProto
		output onnx.ValueInfoProto
		attrs  []onnx.AttributeProto
	)
	if order != bridge.OrderNCHW {
		order = bridge.OrderNHWC
	}
	if order == bridge.OrderNCHW {
		input = onnx.TensorValue("image", onnx.TensorProtoFloat, 1, bridge.Channels, h, w)
		output = onnx.TensorValue("depth", onnx.TensorProtoFloat, 1, h, w)
		attrs = []onnx.AttributeProto{onnx.IntsAttr("axes", 1), onnx.IntAttr("keepdims", 0)}
	} else {
		input = onnx.TensorValue("image", onnx.TensorProtoFloat, 1, h, w, bridge.Channels)
		output = onnx.TensorValue("depth", onnx.TensorProtoFloat, 1, h, w, 1)
		attrs = []onnx.AttributeProto{onnx.IntsAttr("axes", 3), onnx.IntAttr("keepdims", 1)}
	}

	graph := &onnx.GraphProto{
		Name: "synthetic_depth",
		Nodes: []onnx.NodeProto{{
			Name:       "channel_mean",
			OpType:     "ReduceMean",
			Inputs:     []string{"image"},
			Outputs:    []string{"depth"},
			Attributes: attrs,
		}},
		Inputs:  []onnx.ValueInfoProto{input},
		Outputs: []onnx.ValueInfoProto{output},
	}

	model := onnx.NewModel(graph, 13)
	model.DocString = "synthetic channel-mean depth model"
	model.MetadataProps = []onnx.StringStringEntry{{Key: "input_order", Value: order.String()}}
	return model
}

// SyntheticAsset encodes SyntheticModel as an in-memory asset.
func SyntheticAsset(width, height int, order bridge.InputOrder) (Asset, error) {
	data, err := onnx.Marshal(SyntheticModel(width, height, order))
	if err != nil {
		return Asset{}, err
	}
	return BytesAsset("synthetic", data), nil
}
