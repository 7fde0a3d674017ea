// Package inference owns the depth network: loading a model asset,
// resolving its input and output conventions once, running synchronous
// forward passes and disposing of it exactly once.
package inference

import (
	"errors"
	"fmt"
	"sync"

	"github.com/born-ml/livedepth/internal/bridge"
	"github.com/born-ml/livedepth/internal/onnx"
	"github.com/born-ml/livedepth/internal/tensor"
)

// Options controls how a model's conventions are resolved at load time.
type Options struct {
	// Width and Height are the desired input size. Zero means take the
	// size declared by the model; otherwise it must agree with any static
	// size the model declares.
	Width  int
	Height int

	// Layout overrides output layout detection unless LayoutAuto.
	Layout bridge.Layout

	// Order overrides input channel order detection unless OrderAuto.
	Order bridge.InputOrder

	// Lenient loads graphs with unsupported operators; they fail on first execution.
	Lenient bool
}

// Info describes a loaded network.
type Info struct {
	Width       int
	Height      int
	Channels    int
	Order       bridge.InputOrder
	InputShape  []int64
	OutputShape []int64
	Layout      bridge.Layout
}

// Spec returns the bridge input spec for the network.
func (i Info) Spec() bridge.Spec {
	return bridge.Spec{Width: i.Width, Height: i.Height, Order: i.Order}
}

// Handle is a loaded network ready for inference.
// Dispose is safe to call concurrently with itself; Execute is not meant
// to race with Dispose.
type Handle struct {
	mu       sync.Mutex
	network  Network
	info     Info
	disposed bool
}

// Load parses an ONNX asset and resolves its conventions.
// All failures are returned as *ModelLoadError.
func Load(asset Asset, opts Options) (*Handle, error) {
	proto, err := asset.parse()
	if err != nil {
		return nil, loadError(asset, err)
	}

	model, err := onnx.LoadFromProto(proto, onnx.LoadOptions{StrictMode: !opts.Lenient})
	if err != nil {
		return nil, loadError(asset, err)
	}

	network, err := newONNXNetwork(model)
	if err != nil {
		model.Release()
		return nil, loadError(asset, err)
	}

	h, err := New(network, opts)
	if err != nil {
		network.Release()
		var mle *ModelLoadError
		if errors.As(err, &mle) {
			mle.Asset = asset.String()
		}
		return nil, err
	}
	return h, nil
}

// New wraps an already constructed network. The handle takes ownership of
// network and releases it on Dispose; on error the caller keeps ownership.
func New(network Network, opts Options) (*Handle, error) {
	if network == nil {
		return nil, &ModelLoadError{Asset: "<nil>", Err: errors.New("nil network")}
	}
	info, err := resolve(network, opts)
	if err != nil {
		return nil, &ModelLoadError{Asset: "<network>", Err: err}
	}
	return &Handle{network: network, info: info}, nil
}

func resolve(network Network, opts Options) (Info, error) {
	info := Info{
		Channels:    bridge.Channels,
		InputShape:  network.InputShape(),
		OutputShape: network.OutputShape(),
	}

	order := opts.Order
	if order == bridge.OrderAuto {
		detected, err := bridge.DetectInputOrder(info.InputShape)
		if err != nil {
			return info, err
		}
		order = detected
	}
	info.Order = order

	width, height, err := bridge.InputSize(info.InputShape, order)
	if err != nil {
		return info, err
	}
	if width, err = pickDim("width", width, opts.Width); err != nil {
		return info, err
	}
	if height, err = pickDim("height", height, opts.Height); err != nil {
		return info, err
	}
	info.Width, info.Height = width, height

	layout, err := opts.Layout.Resolve(info.OutputShape, width, height)
	if err != nil {
		return info, err
	}
	info.Layout = layout
	return info, nil
}

// pickDim reconciles a declared dimension (-1 if symbolic) with a desired one (0 if unset).
func pickDim(name string, declared, desired int) (int, error) {
	switch {
	case declared > 0 && desired > 0 && declared != desired:
		return 0, fmt.Errorf("model input %s is %d, configured %d", name, declared, desired)
	case declared > 0:
		return declared, nil
	case desired > 0:
		return desired, nil
	default:
		return 0, fmt.Errorf("model input %s is symbolic and none is configured", name)
	}
}

// Info returns the resolved network description.
func (h *Handle) Info() Info {
	return h.info
}

// Execute runs one synchronous forward pass. The caller owns the result.
func (h *Handle) Execute(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.disposed {
		return nil, ErrDisposed
	}
	if input == nil {
		return nil, fmt.Errorf("inference: nil input")
	}
	out, err := h.network.Forward(input)
	if err != nil {
		return nil, fmt.Errorf("inference: forward: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("inference: network returned no output")
	}
	return out, nil
}

// Dispose releases the network. It is a no-op on a nil or already
// disposed handle.
func (h *Handle) Dispose() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.disposed {
		return
	}
	h.disposed = true
	h.network.Release()
	h.network = nil
}

// Disposed reports whether Dispose has been called.
func (h *Handle) Disposed() bool {
	if h == nil {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disposed
}
