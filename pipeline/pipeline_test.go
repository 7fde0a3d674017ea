// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package pipeline_test

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/livedepth/internal/bridge"
	"github.com/born-ml/livedepth/internal/inference"
	internalonnx "github.com/born-ml/livedepth/internal/onnx"
	"github.com/born-ml/livedepth/pipeline"
)

func grayFrame(w, h int, v uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
	}
	return img
}

func TestPublicPipeline(t *testing.T) {
	dev, err := pipeline.OpenDevice("host", pipeline.Bilinear)
	require.NoError(t, err)
	defer dev.Close()

	data, err := internalonnx.Marshal(inference.SyntheticModel(64, 64, bridge.OrderNCHW))
	require.NoError(t, err)

	p := pipeline.New(dev, pipeline.Options{CalculateExtents: true})
	defer p.Dispose()
	require.NoError(t, p.Init(pipeline.ModelBytes("synthetic", data)))
	assert.Equal(t, pipeline.Ready, p.State())

	depths := make(chan pipeline.DepthEvent, 1)
	require.NoError(t, p.Events().DepthSolved.Subscribe("test", depths))

	res, err := p.Tick(grayFrame(100, 80, 204))
	require.NoError(t, err)
	assert.InDelta(t, 1.25, res.AspectRatio, 1e-9)

	values, err := pipeline.ReadDepth(dev, res.Depth)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, values[0], 1e-5)
	assert.InDelta(t, 0.8, res.Extents.Min, 1e-5)

	ev := <-depths
	assert.Equal(t, 64, ev.Width)
	assert.Len(t, ev.Values, 64*64)
}

func TestPublicConfig(t *testing.T) {
	c := pipeline.DefaultConfig()
	c.Width, c.Height = 8, 8
	opts := pipeline.OptionsFromConfig(c)
	assert.Equal(t, pipeline.LayoutAuto, opts.Layout)

	dev, err := pipeline.OpenDevice(c.Device, c.Resampler())
	require.NoError(t, err)
	p := pipeline.New(dev, opts)
	assert.Equal(t, pipeline.Uninitialized, p.State())
	p.Dispose()
	assert.Equal(t, pipeline.Disposed, p.State())
}

func TestPublicMissingModel(t *testing.T) {
	dev, err := pipeline.OpenDevice("", pipeline.NearestNeighbor)
	require.NoError(t, err)

	p := pipeline.New(dev, pipeline.Options{Width: 4, Height: 4})
	defer p.Dispose()
	require.NoError(t, p.Init(pipeline.NoModel()))

	_, err = p.Tick(grayFrame(4, 4, 1))
	assert.ErrorIs(t, err, pipeline.ErrModelMissing)

	err = p.LoadModel(pipeline.ModelFile("does-not-exist.onnx"))
	var mle *pipeline.ModelLoadError
	assert.ErrorAs(t, err, &mle)
}
