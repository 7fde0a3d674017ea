package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/born-ml/livedepth/internal/bridge"
	"github.com/born-ml/livedepth/internal/config"
	"github.com/born-ml/livedepth/internal/gpu"
	"github.com/born-ml/livedepth/internal/inference"
	"github.com/born-ml/livedepth/internal/pipeline"
	"github.com/born-ml/livedepth/internal/source"
)

// syntheticModel selects the built-in channel-mean model instead of a file.
const syntheticModel = "synthetic"

// sourceOptions selects where frames come from.
type sourceOptions struct {
	Image     string
	Dir       string
	Synthetic string
	Loop      bool
	Width     int
	Height    int
	Gray      uint8
}

func (o *sourceOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Image, "image", "", "still image to process every tick")
	cmd.Flags().StringVar(&o.Dir, "dir", "", "directory of frames, played in name order")
	cmd.Flags().StringVar(&o.Synthetic, "synthetic", "", "generated frames: solid or gradient")
	cmd.Flags().BoolVar(&o.Loop, "loop", false, "restart --dir playback at the end")
	cmd.Flags().IntVar(&o.Width, "source-width", 640, "width of synthetic frames")
	cmd.Flags().IntVar(&o.Height, "source-height", 480, "height of synthetic frames")
	cmd.Flags().Uint8Var(&o.Gray, "gray", 128, "gray level of solid synthetic frames")
	cmd.MarkFlagsMutuallyExclusive("image", "dir", "synthetic")
}

// open returns the selected frame source. Without a selection it yields no frames.
func (o *sourceOptions) open() (pipeline.FrameSource, error) {
	switch {
	case o.Image != "":
		still, err := source.OpenStill(o.Image)
		if err != nil {
			return nil, err
		}
		return still, nil
	case o.Dir != "":
		seq, err := source.OpenSequence(o.Dir, o.Loop)
		if err != nil {
			return nil, err
		}
		return seq, nil
	case o.Synthetic != "":
		switch strings.ToLower(o.Synthetic) {
		case "solid":
			return source.NewSolid(o.Width, o.Height, source.Gray(o.Gray)), nil
		case "gradient":
			return source.NewGradient(o.Width, o.Height), nil
		default:
			return nil, fmt.Errorf("unknown synthetic pattern %q (want solid or gradient)", o.Synthetic)
		}
	default:
		return source.None{}, nil
	}
}

// modelAsset resolves a model path, falling back to the configured one.
// The name "synthetic" builds the channel-mean model at the configured size.
func modelAsset(c *config.Config, path string) (inference.Asset, error) {
	digest := ""
	if path == "" {
		path, digest = c.ModelPath, c.ModelSHA256
	}
	switch path {
	case "":
		return inference.Asset{}, nil
	case syntheticModel:
		order := c.Order()
		if order == bridge.OrderAuto {
			order = bridge.OrderNHWC
		}
		return inference.SyntheticAsset(c.Width, c.Height, order)
	default:
		return inference.FileAsset(path).WithSHA256(digest), nil
	}
}

// startPipeline opens the configured device and initializes a pipeline on it.
// The caller must call the returned stop function.
func startPipeline(c *config.Config, modelPath string, mesh pipeline.MeshReceiver) (*pipeline.Pipeline, func(), error) {
	dev, err := gpu.Open(c.Device, c.Resampler())
	if err != nil {
		return nil, nil, err
	}

	opts := pipeline.OptionsFromConfig(c)
	opts.Mesh = mesh
	opts.Logger = slog.Default()
	p := pipeline.New(dev, opts)
	stop := func() {
		p.Dispose()
		dev.Close()
	}

	asset, err := modelAsset(c, modelPath)
	if err != nil {
		stop()
		return nil, nil, err
	}
	if err := p.Init(asset); err != nil {
		stop()
		return nil, nil, err
	}
	if asset.Empty() {
		slog.Warn("pipeline: no model configured, depth will not be solved")
	}
	return p, stop, nil
}

// fatalTick reports whether a tick error should end a run.
func fatalTick(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, pipeline.ErrPersistentFailure), errors.Is(err, pipeline.ErrDisposed):
		return true
	default:
		return false
	}
}
