// Package onnx loads ONNX models and runs them on host tensors.
//
// The protobuf wire format is decoded with google.golang.org/protobuf's
// protowire package into a small set of hand-written message structs
// (ModelProto, GraphProto, NodeProto, TensorProto, ValueInfoProto, ...).
// Only the fields needed for inference and shape introspection are kept;
// unknown fields are skipped.
//
// The executor sorts the graph topologically and dispatches every node to
// the operators registry. Intermediate tensors are released as soon as the
// forward pass completes; only the requested outputs survive.
//
//	model, err := onnx.Load("midas_small.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer model.Release()
//
//	out, err := model.Forward(input)
//
// Marshal writes a ModelProto back to the wire format, which is used to
// generate small synthetic models.
package onnx
