package main

import (
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/born-ml/livedepth/internal/depthstats"
	"github.com/born-ml/livedepth/internal/gpu"
	"github.com/born-ml/livedepth/internal/pipeline"
	"github.com/born-ml/livedepth/internal/source"
)

type runOptions struct {
	Model  string
	Frames int
	FPS    float64
	Out    string
	Quiet  bool
	Source sourceOptions
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Estimate depth for a fixed number of frames",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFrames(cmd.Context(), runOpts)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.Model, "model", "m", "", `ONNX depth model, or "synthetic" (default: model_path from config)`)
	runCmd.Flags().IntVarP(&runOpts.Frames, "frames", "n", 0, "number of ticks (default: length of --dir, else 100)")
	runCmd.Flags().Float64Var(&runOpts.FPS, "fps", 0, "tick rate; 0 runs as fast as possible")
	runCmd.Flags().StringVarP(&runOpts.Out, "out", "o", "", "write the last depth map as a 16-bit PNG")
	runCmd.Flags().BoolVarP(&runOpts.Quiet, "quiet", "q", false, "hide the progress bar")
	runOpts.Source.register(runCmd)
	rootCmd.AddCommand(runCmd)
}

// runSummary counts tick outcomes.
type runSummary struct {
	Ticks   int
	Solved  int
	Skipped int
	Last    pipeline.Result
}

func runFrames(ctx context.Context, opts runOptions) error {
	src, err := opts.Source.open()
	if err != nil {
		return err
	}
	frames := opts.Frames
	if frames <= 0 {
		frames = 100
		if seq, ok := src.(*source.Sequence); ok && !opts.Source.Loop {
			frames = seq.Len()
		}
	}

	p, stop, err := startPipeline(cfg, opts.Model, nil)
	if err != nil {
		return err
	}
	defer stop()

	var bar *progressbar.ProgressBar
	if !opts.Quiet {
		bar = progressbar.NewOptions(frames,
			progressbar.OptionSetDescription("depth"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	summary, err := tickLoop(ctx, p, src, frames, opts.FPS, func() {
		if bar != nil {
			_ = bar.Add(1)
		}
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}

	lat := p.Latency()
	slog.Info("run: finished",
		"ticks", summary.Ticks,
		"solved", summary.Solved,
		"skipped", summary.Skipped,
		"mean", lat.Mean,
		"p95", lat.P95,
		"max", lat.Max,
		"overruns", lat.Overruns,
	)
	if seq, ok := src.(*source.Sequence); ok && seq.Err() != nil {
		slog.Warn("run: some frames could not be decoded", "error", seq.Err())
	}

	if opts.Out != "" {
		if summary.Last.Depth == nil {
			return fmt.Errorf("no depth map was solved, %s not written", opts.Out)
		}
		if err := writeDepthPNG(p.Device(), summary.Last.Depth, opts.Out); err != nil {
			return err
		}
		slog.Info("run: depth map written", "path", opts.Out)
	}
	return nil
}

// tickLoop steps p frames times, pacing to fps when positive.
func tickLoop(ctx context.Context, p *pipeline.Pipeline, src pipeline.FrameSource, frames int, fps float64, onTick func()) (runSummary, error) {
	var summary runSummary

	var pace <-chan time.Time
	if fps > 0 {
		ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
		defer ticker.Stop()
		pace = ticker.C
	}

	for summary.Ticks < frames {
		if pace != nil {
			select {
			case <-ctx.Done():
				return summary, nil
			case <-pace:
			}
		} else if ctx.Err() != nil {
			return summary, nil
		}

		res, err := p.Step(src)
		summary.Ticks++
		onTick()
		if fatalTick(err) {
			return summary, err
		}
		if err != nil || res.Depth == nil {
			summary.Skipped++
			continue
		}
		summary.Solved++
		summary.Last = res
	}
	return summary, nil
}

func writeDepthPNG(dev gpu.Device, buf *gpu.Buffer, path string) error {
	values, err := gpu.ReadFloat32(dev, buf)
	if err != nil {
		return err
	}
	img, ext, err := depthstats.Grayscale(values, buf.Width(), buf.Height())
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	slog.Debug("run: depth range", "min", ext.Min, "max", ext.Max)
	return f.Close()
}
