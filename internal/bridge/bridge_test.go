package bridge

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/livedepth/internal/gpu"
	"github.com/born-ml/livedepth/internal/parallel"
	"github.com/born-ml/livedepth/internal/tensor"
)

func TestParseLayout(t *testing.T) {
	tests := []struct {
		in   string
		want Layout
	}{
		{"", LayoutAuto},
		{"auto", LayoutAuto},
		{"Direct", LayoutDirect},
		{" reshape ", LayoutReshape},
	}
	for _, tt := range tests {
		got, err := ParseLayout(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLayout("swap")
	assert.Error(t, err)
}

func TestLayoutText(t *testing.T) {
	var l Layout
	require.NoError(t, l.UnmarshalText([]byte("reshape")))
	assert.Equal(t, LayoutReshape, l)

	text, err := LayoutDirect.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "direct", string(text))
}

func TestDetectLayout(t *testing.T) {
	tests := []struct {
		name  string
		shape []int64
		want  Layout
	}{
		{"nhwc single channel", []int64{1, 240, 320, 1}, LayoutDirect},
		{"width first", []int64{1, 320, 240, 1}, LayoutDirect},
		{"symbolic batch direct", []int64{-1, 240, 320, 1}, LayoutDirect},
		{"midas 3d", []int64{1, 240, 320}, LayoutReshape},
		{"nchw single channel", []int64{1, 1, 240, 320}, LayoutReshape},
		{"flat", []int64{76800}, LayoutReshape},
		{"symbolic batch flat", []int64{-1, 240, 320}, LayoutReshape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectLayout(tt.shape, 320, 240)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectLayoutAmbiguous(t *testing.T) {
	for _, shape := range [][]int64{
		{1, 100, 100, 1},
		{1, -1, -1, 1},
		{1, 240, 320, 2},
		{-1},
		{},
	} {
		_, err := DetectLayout(shape, 320, 240)
		assert.ErrorIs(t, err, ErrAmbiguousLayout, "shape %v", shape)
	}
}

func TestResolveOverrideWins(t *testing.T) {
	// An explicit choice is never second-guessed, even for odd shapes.
	got, err := LayoutReshape.Resolve([]int64{1, 240, 320, 1}, 320, 240)
	require.NoError(t, err)
	assert.Equal(t, LayoutReshape, got)

	got, err = LayoutAuto.Resolve([]int64{1, 240, 320, 1}, 320, 240)
	require.NoError(t, err)
	assert.Equal(t, LayoutDirect, got)
}

func TestDetectInputOrder(t *testing.T) {
	order, err := DetectInputOrder([]int64{1, 3, 256, 256})
	require.NoError(t, err)
	assert.Equal(t, OrderNCHW, order)

	order, err = DetectInputOrder([]int64{1, 256, 256, 3})
	require.NoError(t, err)
	assert.Equal(t, OrderNHWC, order)

	// 3x3 images are ambiguous; channels-last wins.
	order, err = DetectInputOrder([]int64{1, 3, 3, 3})
	require.NoError(t, err)
	assert.Equal(t, OrderNHWC, order)

	_, err = DetectInputOrder([]int64{1, 256, 256, 4})
	assert.Error(t, err)
	_, err = DetectInputOrder([]int64{256, 256, 3})
	assert.Error(t, err)
}

func TestInputSize(t *testing.T) {
	w, h, err := InputSize([]int64{1, 3, 240, 320}, OrderNCHW)
	require.NoError(t, err)
	assert.Equal(t, [2]int{320, 240}, [2]int{w, h})

	w, h, err = InputSize([]int64{1, 240, 320, 3}, OrderNHWC)
	require.NoError(t, err)
	assert.Equal(t, [2]int{320, 240}, [2]int{w, h})

	_, _, err = InputSize([]int64{1, 240, 320, 3}, OrderAuto)
	assert.Error(t, err)
}

// colorBuffer allocates a 2x2 buffer with distinct pixels:
// (0,0) red, (1,0) green, (0,1) blue, (1,1) white.
func colorBuffer(t *testing.T, dev gpu.Device) *gpu.Buffer {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	img.SetRGBA(1, 0, color.RGBA{G: 255, A: 255})
	img.SetRGBA(0, 1, color.RGBA{B: 255, A: 255})
	img.SetRGBA(1, 1, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	buf, err := dev.Allocate(2, 2, gpu.ColorRGBA8)
	require.NoError(t, err)
	require.NoError(t, dev.Blit(img, buf))
	return buf
}

func TestToTensorNHWC(t *testing.T) {
	dev := gpu.NewHost(gpu.NearestNeighbor)
	buf := colorBuffer(t, dev)

	x, err := ToTensor(dev, buf, Spec{Width: 2, Height: 2, Order: OrderNHWC})
	require.NoError(t, err)
	defer x.Release()

	assert.Equal(t, tensor.Shape{1, 2, 2, 3}, x.Shape())
	want := []float32{
		1, 0, 0, 0, 1, 0,
		0, 0, 1, 1, 1, 1,
	}
	if diff := cmp.Diff(want, x.AsFloat32()); diff != "" {
		t.Errorf("NHWC tensor mismatch (-want +got):\n%s", diff)
	}
}

func TestToTensorNCHW(t *testing.T) {
	dev := gpu.NewHost(gpu.NearestNeighbor)
	buf := colorBuffer(t, dev)

	x, err := ToTensor(dev, buf, Spec{Width: 2, Height: 2, Order: OrderNCHW})
	require.NoError(t, err)
	defer x.Release()

	assert.Equal(t, tensor.Shape{1, 3, 2, 2}, x.Shape())
	want := []float32{
		1, 0, 0, 1, // R plane
		0, 1, 0, 1, // G plane
		0, 0, 1, 1, // B plane
	}
	if diff := cmp.Diff(want, x.AsFloat32()); diff != "" {
		t.Errorf("NCHW tensor mismatch (-want +got):\n%s", diff)
	}
}

func TestToTensorNormalizes(t *testing.T) {
	dev := gpu.NewHost(gpu.NearestNeighbor)
	buf := colorBuffer(t, dev)

	spec := Spec{
		Width: 2, Height: 2, Order: OrderNHWC,
		Mean: [3]float32{0.5, 0.5, 0.5},
		Std:  [3]float32{0.5, 0.5, 0.5},
	}
	x, err := ToTensor(dev, buf, spec)
	require.NoError(t, err)
	defer x.Release()

	// Red pixel: (1-0.5)/0.5, (0-0.5)/0.5, (0-0.5)/0.5
	assert.InDeltaSlice(t, []float32{1, -1, -1}, x.AsFloat32()[:3], 1e-6)
}

func TestToTensorErrors(t *testing.T) {
	dev := gpu.NewHost(gpu.NearestNeighbor)
	buf := colorBuffer(t, dev)

	_, err := ToTensor(dev, buf, Spec{Width: 4, Height: 4, Order: OrderNHWC})
	assert.Error(t, err)

	_, err = ToTensor(dev, buf, Spec{Width: 2, Height: 2})
	assert.Error(t, err)

	depth, err := dev.Allocate(2, 2, gpu.DepthF32)
	require.NoError(t, err)
	_, err = ToTensor(dev, depth, Spec{Width: 2, Height: 2, Order: OrderNHWC})
	assert.ErrorIs(t, err, gpu.ErrFormat)

	buf.Release()
	_, err = ToTensor(dev, buf, Spec{Width: 2, Height: 2, Order: OrderNHWC})
	assert.ErrorIs(t, err, gpu.ErrReleased)
}

func TestWithTensorReleasesOnEveryPath(t *testing.T) {
	dev := gpu.NewHost(gpu.NearestNeighbor)
	buf := colorBuffer(t, dev)
	spec := Spec{Width: 2, Height: 2, Order: OrderNHWC}

	var seen *tensor.RawTensor
	require.NoError(t, WithTensor(dev, buf, spec, func(x *tensor.RawTensor) error {
		seen = x
		assert.False(t, x.Released())
		return nil
	}))
	assert.True(t, seen.Released())

	boom := errors.New("inference failed")
	err := WithTensor(dev, buf, spec, func(x *tensor.RawTensor) error {
		seen = x
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, seen.Released())

	assert.Panics(t, func() {
		_ = WithTensor(dev, buf, spec, func(x *tensor.RawTensor) error {
			seen = x
			panic("engine crashed")
		})
	})
	assert.True(t, seen.Released())
}

func TestLayoutRoundTrip(t *testing.T) {
	const width, height = 4, 3
	values := make([]float32, width*height)
	for i := range values {
		values[i] = float32(i) * 0.25
	}

	// Same values presented the way each exporter convention shapes them.
	flat, err := tensor.FromFloat32(tensor.Shape{1, height, width}, values)
	require.NoError(t, err)
	direct, err := tensor.FromFloat32(tensor.Shape{1, height, width, 1}, values)
	require.NoError(t, err)

	fromReshape, err := ToDepth(flat, LayoutReshape, width, height)
	require.NoError(t, err)
	fromDirect, err := ToDepth(direct, LayoutDirect, width, height)
	require.NoError(t, err)

	if diff := cmp.Diff(values, fromReshape); diff != "" {
		t.Errorf("reshape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(fromReshape, fromDirect); diff != "" {
		t.Errorf("layouts disagree (-reshape +direct):\n%s", diff)
	}

	// Pixel (x=3, y=2) is at y*width+x.
	assert.Equal(t, values[2*width+3], fromDirect[11])

	// The reshape view must not consume the caller's handle.
	assert.False(t, flat.Released())
	assert.Equal(t, values, flat.AsFloat32())

	dev := gpu.NewHost(gpu.Bilinear)
	slot := gpu.NewSlot(dev, gpu.DepthF32)
	defer slot.Release()
	buf, err := WriteDepth(dev, slot, fromDirect, width, height)
	require.NoError(t, err)
	got, err := gpu.ReadFloat32(dev, buf)
	require.NoError(t, err)
	assert.Equal(t, values, got)
}

func TestDirectTakesChannelZero(t *testing.T) {
	out, err := tensor.FromFloat32(tensor.Shape{1, 1, 2, 2}, []float32{5, -1, 7, -1})
	require.NoError(t, err)

	depth, err := ToDepth(out, LayoutDirect, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 7}, depth)
}

func TestToDepthErrors(t *testing.T) {
	wrong, err := tensor.FromFloat32(tensor.Shape{1, 10}, make([]float32, 10))
	require.NoError(t, err)

	_, err = ToDepth(wrong, LayoutReshape, 4, 3)
	assert.Error(t, err)
	_, err = ToDepth(wrong, LayoutDirect, 2, 5)
	assert.Error(t, err)
	_, err = ToDepth(wrong, LayoutAuto, 2, 5)
	assert.Error(t, err)
	_, err = ToDepth(nil, LayoutReshape, 2, 5)
	assert.Error(t, err)

	ints, err := tensor.FromInt64(tensor.Shape{10}, make([]int64, 10))
	require.NoError(t, err)
	_, err = ToDepth(ints, LayoutReshape, 2, 5)
	assert.Error(t, err)
}

func TestToTensorParallelMatchesSequential(t *testing.T) {
	dev := gpu.NewHost(gpu.NearestNeighbor)
	const w, h = 48, 96
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 5), G: uint8(y * 2), B: uint8(x + y), A: 255})
		}
	}
	buf, err := dev.Allocate(w, h, gpu.ColorRGBA8)
	require.NoError(t, err)
	defer buf.Release()
	require.NoError(t, dev.Blit(img, buf))

	for _, order := range []InputOrder{OrderNHWC, OrderNCHW} {
		t.Run(order.String(), func(t *testing.T) {
			spec := Spec{Width: w, Height: h, Order: order}
			seq, err := ToTensor(dev, buf, spec)
			require.NoError(t, err)
			defer seq.Release()

			spec.Parallel = parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 8}
			par, err := ToTensor(dev, buf, spec)
			require.NoError(t, err)
			defer par.Release()

			if diff := cmp.Diff(seq.AsFloat32(), par.AsFloat32()); diff != "" {
				t.Errorf("parallel conversion differs (-seq +par):\n%s", diff)
			}
		})
	}
}
