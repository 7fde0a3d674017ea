// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"github.com/born-ml/livedepth/internal/bridge"
	"github.com/born-ml/livedepth/internal/config"
	"github.com/born-ml/livedepth/internal/depthstats"
	"github.com/born-ml/livedepth/internal/gpu"
	"github.com/born-ml/livedepth/internal/inference"
	"github.com/born-ml/livedepth/internal/pipeline"
)

// Pipeline owns the depth network, the frame buffers and the event topics.
type Pipeline = pipeline.Pipeline

// Options configures a Pipeline.
type Options = pipeline.Options

// Result is the outcome of one tick.
type Result = pipeline.Result

// State is the lifecycle stage of a Pipeline.
type State = pipeline.State

// Lifecycle states.
const (
	Uninitialized = pipeline.Uninitialized
	Ready         = pipeline.Ready
	Running       = pipeline.Running
	Disposed      = pipeline.Disposed
)

// Errors returned by Init and Tick.
var (
	ErrNotReady          = pipeline.ErrNotReady
	ErrAlreadyReady      = pipeline.ErrAlreadyReady
	ErrDisposed          = pipeline.ErrDisposed
	ErrModelMissing      = pipeline.ErrModelMissing
	ErrPersistentFailure = pipeline.ErrPersistentFailure
	ErrNoFrame           = pipeline.ErrNoFrame
)

// FrameSource supplies one color frame per tick.
type FrameSource = pipeline.FrameSource

// MeshReceiver is notified with the color buffer after each solved tick.
type MeshReceiver = pipeline.MeshReceiver

// Event types and topics.
type (
	Events       = pipeline.Events
	ColorEvent   = pipeline.ColorEvent
	ResizeEvent  = pipeline.ResizeEvent
	DepthEvent   = pipeline.DepthEvent
	ExtentsEvent = pipeline.ExtentsEvent
	TopicStats   = pipeline.TopicStats
	LatencyStats = pipeline.LatencyStats
	Extents      = depthstats.Extents
)

// Output layouts.
type Layout = bridge.Layout

const (
	LayoutAuto    = bridge.LayoutAuto
	LayoutDirect  = bridge.LayoutDirect
	LayoutReshape = bridge.LayoutReshape
)

// InputOrder is the channel order of the network input.
type InputOrder = bridge.InputOrder

const (
	OrderAuto = bridge.OrderAuto
	OrderNHWC = bridge.OrderNHWC
	OrderNCHW = bridge.OrderNCHW
)

// Device allocates frame buffers.
type Device = gpu.Device

// Buffer is a device-resident image.
type Buffer = gpu.Buffer

// Resampler selects the kernel used to resize frames.
type Resampler = gpu.Resampler

const (
	NearestNeighbor = gpu.NearestNeighbor
	ApproxBilinear  = gpu.ApproxBilinear
	Bilinear        = gpu.Bilinear
	CatmullRom      = gpu.CatmullRom
)

// Model is a serialized ONNX depth model.
type Model = inference.Asset

// ModelLoadError reports a malformed or incompatible model.
type ModelLoadError = inference.ModelLoadError

// Config is the JSON configuration file format.
type Config = config.Config

// New creates an uninitialized pipeline allocating from dev.
func New(dev Device, opts Options) *Pipeline {
	return pipeline.New(dev, opts)
}

// OpenDevice opens "host" or "webgpu".
func OpenDevice(kind string, r Resampler) (Device, error) {
	return gpu.Open(kind, r)
}

// ModelFile refers to an ONNX file on disk.
func ModelFile(path string) Model {
	return inference.FileAsset(path)
}

// ModelBytes wraps an in-memory ONNX model.
func ModelBytes(name string, data []byte) Model {
	return inference.BytesAsset(name, data)
}

// NoModel makes Init succeed without a network; ticks then publish color only.
func NoModel() Model {
	return inference.Asset{}
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig reads a JSON configuration file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// OptionsFromConfig maps a configuration onto Options.
func OptionsFromConfig(c *Config) Options {
	return pipeline.OptionsFromConfig(c)
}

// ReadDepth copies a depth buffer back to host memory, pixel (x, y) at y*width+x.
func ReadDepth(dev Device, buf *Buffer) ([]float32, error) {
	return gpu.ReadFloat32(dev, buf)
}
