package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/born-ml/livedepth/internal/depthstats"
	"github.com/born-ml/livedepth/internal/pipeline"
)

// CBOR tags from RFC 8746.
const (
	tagMultiDimArray = 40
	tagFloat32LE     = 85
)

const frameType = "depth"

// Frame is one depth map as sent to stream clients.
// Depth holds Width*Height values, pixel (x, y) at y*Width+x.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Min       float32
	Max       float32
	Depth     []float32
}

// FrameFromEvent builds a frame from a solved depth event, filling the
// extents from the values.
func FrameFromEvent(ev pipeline.DepthEvent) Frame {
	f := Frame{
		Seq:       ev.Seq,
		Timestamp: ev.Timestamp,
		Width:     ev.Width,
		Height:    ev.Height,
		Depth:     ev.Values,
	}
	if ext, err := depthstats.ScanValues(ev.Values); err == nil {
		f.Min, f.Max = ext.Min, ext.Max
	}
	return f
}

type wireFrame struct {
	Type      string   `cbor:"type"`
	Seq       uint64   `cbor:"seq"`
	Timestamp int64    `cbor:"ts_ns"`
	Width     int      `cbor:"width"`
	Height    int      `cbor:"height"`
	Min       float32  `cbor:"min"`
	Max       float32  `cbor:"max"`
	Depth     cbor.Tag `cbor:"depth"`
}

// EncodeFrame serializes f as a CBOR map. The depth values are a row-major
// multi-dimensional array (tag 40) of shape [Height, Width] wrapping a
// little-endian float32 typed array (tag 85).
func EncodeFrame(f Frame) ([]byte, error) {
	if len(f.Depth) != f.Width*f.Height {
		return nil, fmt.Errorf("stream: frame has %d values, want %dx%d", len(f.Depth), f.Width, f.Height)
	}

	raw := make([]byte, 4*len(f.Depth))
	for i, v := range f.Depth {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}

	w := wireFrame{
		Type:   frameType,
		Seq:    f.Seq,
		Width:  f.Width,
		Height: f.Height,
		Min:    f.Min,
		Max:    f.Max,
		Depth: cbor.Tag{
			Number: tagMultiDimArray,
			Content: []any{
				[]any{f.Height, f.Width},
				cbor.Tag{Number: tagFloat32LE, Content: raw},
			},
		},
	}
	if !f.Timestamp.IsZero() {
		w.Timestamp = f.Timestamp.UnixNano()
	}
	return cbor.Marshal(w)
}

// DecodeFrame parses a message produced by EncodeFrame.
func DecodeFrame(data []byte) (Frame, error) {
	var w wireFrame
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Frame{}, fmt.Errorf("stream: decode frame: %w", err)
	}
	if w.Type != frameType {
		return Frame{}, fmt.Errorf("stream: unexpected message type %q", w.Type)
	}

	rows, cols, values, err := decodeDepth(w.Depth)
	if err != nil {
		return Frame{}, err
	}
	if rows != w.Height || cols != w.Width {
		return Frame{}, fmt.Errorf("stream: depth is %dx%d, header says %dx%d", cols, rows, w.Width, w.Height)
	}

	f := Frame{
		Seq:    w.Seq,
		Width:  w.Width,
		Height: w.Height,
		Min:    w.Min,
		Max:    w.Max,
		Depth:  values,
	}
	if w.Timestamp != 0 {
		f.Timestamp = time.Unix(0, w.Timestamp)
	}
	return f, nil
}

func decodeDepth(tag cbor.Tag) (rows, cols int, values []float32, err error) {
	if tag.Number != tagMultiDimArray {
		return 0, 0, nil, fmt.Errorf("stream: expected multidim tag 40, got %d", tag.Number)
	}
	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return 0, 0, nil, errors.New("stream: invalid multidim array content")
	}
	dims, ok := items[0].([]any)
	if !ok || len(dims) != 2 {
		return 0, 0, nil, errors.New("stream: invalid multidim dimensions")
	}
	if rows, err = toInt(dims[0]); err != nil {
		return 0, 0, nil, err
	}
	if cols, err = toInt(dims[1]); err != nil {
		return 0, 0, nil, err
	}

	typed, ok := items[1].(cbor.Tag)
	if !ok || typed.Number != tagFloat32LE {
		return 0, 0, nil, errors.New("stream: expected float32 typed array tag 85")
	}
	raw, ok := typed.Content.([]byte)
	if !ok || len(raw)%4 != 0 {
		return 0, 0, nil, errors.New("stream: invalid float32 typed array payload")
	}
	if len(raw)/4 != rows*cols {
		return 0, 0, nil, errors.New("stream: dimension mismatch")
	}

	values = make([]float32, len(raw)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return rows, cols, values, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case uint64:
		return int(n), nil
	case int64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("stream: unexpected dimension type %T", v)
	}
}
