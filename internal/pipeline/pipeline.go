// Package pipeline drives the per-frame depth estimation loop.
//
// A Pipeline moves through Uninitialized -> Ready -> Running -> Disposed.
// Each Tick resizes the frame, publishes it, runs the network, writes the
// depth buffer and notifies consumers. Per-tick failures are logged and
// returned but never change the state; the next good tick recovers.
//
//	p := pipeline.New(gpu.NewHost(gpu.Bilinear), opts)
//	defer p.Dispose()
//	if err := p.Init(inference.FileAsset("midas_small.onnx")); err != nil {
//	    return err
//	}
//	for {
//	    res, err := p.Tick(camera.CurrentFrame())
//	    ...
//	}
package pipeline

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/born-ml/livedepth/internal/bridge"
	"github.com/born-ml/livedepth/internal/config"
	"github.com/born-ml/livedepth/internal/depthstats"
	"github.com/born-ml/livedepth/internal/gpu"
	"github.com/born-ml/livedepth/internal/inference"
	"github.com/born-ml/livedepth/internal/parallel"
	"github.com/born-ml/livedepth/internal/tensor"
	"github.com/born-ml/livedepth/internal/texture"
)

// Errors returned by Init and Tick.
var (
	ErrNotReady          = errors.New("pipeline: not initialized")
	ErrAlreadyReady      = errors.New("pipeline: already initialized")
	ErrDisposed          = errors.New("pipeline: disposed")
	ErrModelMissing      = errors.New("pipeline: no network loaded")
	ErrPersistentFailure = errors.New("pipeline: persistent failure")
)

// ErrNoFrame is returned by Tick when the source had no frame.
var ErrNoFrame = texture.ErrNoFrame

// State is the lifecycle stage of a Pipeline.
type State int

const (
	Uninitialized State = iota
	Ready
	Running
	Disposed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Disposed:
		return "disposed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FrameSource supplies the current color frame; nil means none this tick.
type FrameSource interface {
	CurrentFrame() image.Image
}

// MeshReceiver is the mesh generation collaborator. OnColorReceived is
// called synchronously once per successful tick, after depth is solved.
type MeshReceiver interface {
	OnColorReceived(color *gpu.Buffer)
}

// Options configures a Pipeline.
type Options struct {
	// Width and Height are the fixed network input size. Zero takes the
	// size declared by the model.
	Width  int
	Height int

	Layout bridge.Layout
	Order  bridge.InputOrder
	Mean   [bridge.Channels]float32
	Std    [bridge.Channels]float32

	// CalculateExtents enables the per-tick min/max scan.
	CalculateExtents bool

	// FrameBudget logs ticks that take longer; zero disables the check.
	FrameBudget time.Duration

	// MaxConsecutiveSkips wraps tick errors in ErrPersistentFailure once
	// that many ticks in a row were skipped or failed; zero disables it.
	MaxConsecutiveSkips int

	// ParallelConvert splits tensor conversion across CPU cores. Ticks stay
	// synchronous either way.
	ParallelConvert bool

	// Mesh receives the color buffer of every successful tick.
	Mesh MeshReceiver

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// OptionsFromConfig maps a validated configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	mean, std := cfg.Normalization()
	return Options{
		Width:               cfg.Width,
		Height:              cfg.Height,
		Layout:              cfg.LayoutMode(),
		Order:               cfg.Order(),
		Mean:                mean,
		Std:                 std,
		CalculateExtents:    cfg.CalculateExtents,
		FrameBudget:         cfg.Budget(),
		MaxConsecutiveSkips: cfg.MaxConsecutiveSkips,
		ParallelConvert:     cfg.ParallelConvert,
	}
}

// Result is the outcome of one tick. Buffers are owned by the pipeline and
// stay valid until the next tick or Dispose.
type Result struct {
	Seq         uint64
	Color       *gpu.Buffer
	Depth       *gpu.Buffer
	AspectRatio float64
	Extents     *depthstats.Extents
	Latency     time.Duration
}

// Pipeline owns the network, the color and depth buffers and the event topics.
type Pipeline struct {
	mu      sync.Mutex
	opts    Options
	log     *slog.Logger
	device  gpu.Device
	resizer *texture.Resizer
	depth   *gpu.Slot
	network *inference.Handle
	spec    bridge.Spec
	layout  bridge.Layout
	width   int
	height  int
	state   State
	seq     uint64

	skips     int
	escalated bool

	events  Events
	latency *LatencyTracker
}

// New creates an uninitialized pipeline allocating from device.
func New(device gpu.Device, opts Options) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		opts:    opts,
		log:     log,
		device:  device,
		resizer: texture.NewResizer(device),
		depth:   gpu.NewSlot(device, gpu.DepthF32),
		width:   opts.Width,
		height:  opts.Height,
		latency: NewLatencyTracker(0, opts.FrameBudget),
	}
}

// Init loads the network from asset and allocates the frame buffers. An
// empty asset makes the pipeline Ready without a network; ticks then
// publish color only. Load failures are returned as *inference.ModelLoadError
// and leave the pipeline Uninitialized.
func (p *Pipeline) Init(asset inference.Asset) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case Disposed:
		return ErrDisposed
	case Ready, Running:
		return ErrAlreadyReady
	}

	if !asset.Empty() {
		if err := p.loadLocked(asset); err != nil {
			return err
		}
	}
	if p.width <= 0 || p.height <= 0 {
		return fmt.Errorf("pipeline: input size unknown without a model (%dx%d)", p.width, p.height)
	}

	if _, err := p.resizer.Ensure(p.width, p.height); err != nil {
		p.releaseLocked()
		return fmt.Errorf("pipeline: allocate color buffer: %w", err)
	}
	if _, err := p.depth.Ensure(p.width, p.height); err != nil {
		p.releaseLocked()
		return fmt.Errorf("pipeline: allocate depth buffer: %w", err)
	}

	p.state = Ready
	p.log.Info("pipeline: ready",
		"device", p.device.Name(),
		"width", p.width,
		"height", p.height,
		"model", p.network != nil,
		"layout", p.layout,
	)
	return nil
}

// LoadModel replaces the network. The current network is disposed before
// the new one is loaded, so at most one is alive; if loading fails the
// pipeline keeps running without a network.
func (p *Pipeline) LoadModel(asset inference.Asset) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Disposed {
		return ErrDisposed
	}
	return p.loadLocked(asset)
}

func (p *Pipeline) loadLocked(asset inference.Asset) error {
	if p.network != nil {
		p.network.Dispose()
		p.network = nil
	}

	h, err := inference.Load(asset, inference.Options{
		Width:  p.width,
		Height: p.height,
		Layout: p.opts.Layout,
		Order:  p.opts.Order,
	})
	if err != nil {
		p.log.Error("pipeline: model load failed", "asset", asset.String(), "error", err)
		return err
	}

	info := h.Info()
	p.network = h
	p.width, p.height = info.Width, info.Height
	p.layout = info.Layout
	p.spec = info.Spec()
	p.spec.Mean, p.spec.Std = p.opts.Mean, p.opts.Std
	if p.opts.ParallelConvert {
		p.spec.Parallel = parallel.DefaultConfig()
	}

	p.log.Info("pipeline: model loaded",
		"asset", asset.String(),
		"input", fmt.Sprintf("%v", info.InputShape),
		"output", fmt.Sprintf("%v", info.OutputShape),
		"order", info.Order,
		"layout", info.Layout,
	)
	return nil
}

// Tick processes one frame. See the package documentation for the order
// of side effects. A nil frame returns ErrNoFrame; a tick without a
// network publishes color and aspect ratio and returns ErrModelMissing.
func (p *Pipeline) Tick(frame image.Image) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case Uninitialized:
		return Result{}, ErrNotReady
	case Disposed:
		return Result{}, ErrDisposed
	}

	start := time.Now()
	res, err := p.tick(frame)
	res.Latency = time.Since(start)

	if p.latency.Observe(res.Latency) {
		p.log.Warn("pipeline: frame budget exceeded",
			"seq", res.Seq,
			"latency", res.Latency,
			"budget", p.latency.Budget(),
		)
	}
	return res, p.account(res.Seq, err)
}

// Step ticks with the source's current frame.
func (p *Pipeline) Step(src FrameSource) (Result, error) {
	return p.Tick(src.CurrentFrame())
}

func (p *Pipeline) tick(frame image.Image) (Result, error) {
	// (1) resize
	color, err := p.resizer.Resize(frame, p.width, p.height)
	if err != nil {
		return Result{}, err
	}
	p.state = Running
	p.seq++
	now := time.Now()
	res := Result{Seq: p.seq, Color: color, AspectRatio: aspectRatio(frame)}

	// (2) color ready
	p.events.ColorReady.Publish(ColorEvent{Seq: res.Seq, Timestamp: now, Buffer: color})

	resized := ResizeEvent{
		Seq:          res.Seq,
		AspectRatio:  res.AspectRatio,
		SourceWidth:  frame.Bounds().Dx(),
		SourceHeight: frame.Bounds().Dy(),
	}

	// (3) nothing more to do without a network
	if p.network == nil {
		p.events.ImageResized.Publish(resized)
		return res, ErrModelMissing
	}

	// (4) inference; the input tensor is released inside WithTensor
	var out *tensor.RawTensor
	err = bridge.WithTensor(p.device, color, p.spec, func(in *tensor.RawTensor) error {
		var execErr error
		out, execErr = p.network.Execute(in)
		return execErr
	})
	if err != nil {
		return res, fmt.Errorf("pipeline: inference: %w", err)
	}
	defer out.Release()

	values, err := bridge.ToDepth(out, p.layout, p.width, p.height)
	if err != nil {
		return res, fmt.Errorf("pipeline: %w", err)
	}
	depth, err := bridge.WriteDepth(p.device, p.depth, values, p.width, p.height)
	if err != nil {
		return res, fmt.Errorf("pipeline: %w", err)
	}
	res.Depth = depth

	// (5) aspect ratio
	p.events.ImageResized.Publish(resized)

	// (6) depth, then extents
	p.events.DepthSolved.Publish(DepthEvent{
		Seq:       res.Seq,
		Timestamp: now,
		Buffer:    depth,
		Values:    values,
		Width:     p.width,
		Height:    p.height,
	})
	if p.opts.CalculateExtents {
		ext, err := depthstats.Scan(out)
		if err != nil {
			p.log.Warn("pipeline: extents unavailable", "seq", res.Seq, "error", err)
		} else {
			res.Extents = &ext
			p.events.DepthExtents.Publish(ExtentsEvent{Seq: res.Seq, Extents: ext})
		}
	}

	// (7) mesh collaborator
	if p.opts.Mesh != nil {
		p.opts.Mesh.OnColorReceived(color)
	}
	return res, nil
}

// account tracks consecutive skipped ticks and escalates once the
// configured limit is reached.
func (p *Pipeline) account(seq uint64, err error) error {
	if err == nil {
		if p.escalated {
			p.log.Info("pipeline: recovered", "seq", seq, "skipped", p.skips)
		}
		p.skips = 0
		p.escalated = false
		return nil
	}

	p.skips++
	switch {
	case errors.Is(err, ErrNoFrame), errors.Is(err, ErrModelMissing):
		p.log.Debug("pipeline: tick skipped", "seq", seq, "reason", err)
	default:
		p.log.Warn("pipeline: tick failed", "seq", seq, "error", err)
	}

	limit := p.opts.MaxConsecutiveSkips
	if limit <= 0 || p.skips < limit {
		return err
	}
	if !p.escalated {
		p.escalated = true
		p.log.Error("pipeline: persistent failure", "consecutive", p.skips, "error", err)
	}
	return fmt.Errorf("%w after %d consecutive ticks: %w", ErrPersistentFailure, p.skips, err)
}

// aspectRatio returns width/height of the source frame.
func aspectRatio(frame image.Image) float64 {
	b := frame.Bounds()
	return float64(b.Dx()) / float64(b.Dy())
}

// Dispose releases the network and all buffers exactly once and closes
// the event topics. It is safe to call at any time, repeatedly.
func (p *Pipeline) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Disposed {
		return
	}
	prev := p.state
	p.state = Disposed
	p.releaseLocked()
	p.events.close()
	p.log.Info("pipeline: disposed", "from", prev, "ticks", p.seq)
}

func (p *Pipeline) releaseLocked() {
	p.network.Dispose()
	p.network = nil
	p.resizer.Release()
	p.depth.Release()
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Events returns the notification topics.
func (p *Pipeline) Events() *Events {
	return &p.events
}

// ColorBuffer returns the normalized color buffer, or nil.
func (p *Pipeline) ColorBuffer() *gpu.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resizer.Buffer()
}

// DepthBuffer returns the depth buffer, or nil.
func (p *Pipeline) DepthBuffer() *gpu.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.depth.Buffer()
}

// Size returns the fixed input size.
func (p *Pipeline) Size() (width, height int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.width, p.height
}

// Network returns the loaded network description and whether one is loaded.
func (p *Pipeline) Network() (inference.Info, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.network == nil {
		return inference.Info{}, false
	}
	return p.network.Info(), true
}

// Latency returns tick latency statistics.
func (p *Pipeline) Latency() LatencyStats {
	return p.latency.Stats()
}

// Device returns the device buffers are allocated from.
func (p *Pipeline) Device() gpu.Device {
	return p.device
}
