package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/born-ml/livedepth/internal/pipeline"
	"github.com/born-ml/livedepth/internal/stream"
)

type serveOptions struct {
	Model  string
	Addr   string
	FPS    float64
	Source sourceOptions
}

var serveOpts serveOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline continuously and stream depth maps over websocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), serveOpts)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveOpts.Model, "model", "m", "", `ONNX depth model, or "synthetic" (default: model_path from config)`)
	serveCmd.Flags().StringVar(&serveOpts.Addr, "addr", "", "listen address (default: listen_addr from config)")
	serveCmd.Flags().Float64Var(&serveOpts.FPS, "fps", 30, "tick rate")
	serveOpts.Source.register(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, opts serveOptions) error {
	if opts.FPS <= 0 {
		return errors.New("--fps must be positive")
	}
	src, err := opts.Source.open()
	if err != nil {
		return err
	}
	p, stop, err := startPipeline(cfg, opts.Model, nil)
	if err != nil {
		return err
	}
	defer stop()

	addr := opts.Addr
	if addr == "" {
		addr = cfg.ListenAddr
	}

	srv := stream.NewServer(stream.Options{
		SendBuffer: cfg.EventBuffer,
		Status:     func() map[string]any { return pipelineStatus(p) },
		Hello: func() map[string]any {
			w, h := p.Size()
			return map[string]any{"width": w, "height": h}
		},
	})

	depths := make(chan pipeline.DepthEvent, max(cfg.EventBuffer, 1))
	if err := p.Events().DepthSolved.Subscribe("stream", depths); err != nil {
		return err
	}
	defer func() { _ = p.Events().DepthSolved.Unsubscribe("stream") }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go srv.Pump(ctx, depths)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe(ctx, addr)
	}()

	loopErr := make(chan error, 1)
	go func() {
		_, err := tickLoop(ctx, p, src, int(^uint(0)>>1), opts.FPS, func() {})
		loopErr <- err
	}()

	select {
	case err = <-serveErr:
		cancel()
		<-loopErr
	case err = <-loopErr:
		cancel()
		<-serveErr
	}
	if err != nil {
		return err
	}
	slog.Info("serve: stopped", "stream", srv.Stats())
	return nil
}

// pipelineStatus is the pipeline part of the /status document.
func pipelineStatus(p *pipeline.Pipeline) map[string]any {
	w, h := p.Size()
	status := map[string]any{
		"state":   p.State().String(),
		"width":   w,
		"height":  h,
		"latency": p.Latency(),
		"events": map[string]pipeline.TopicStats{
			"color_ready":   p.Events().ColorReady.Stats(),
			"image_resized": p.Events().ImageResized.Stats(),
			"depth_solved":  p.Events().DepthSolved.Stats(),
			"depth_extents": p.Events().DepthExtents.Stats(),
		},
	}
	if info, ok := p.Network(); ok {
		status["model"] = map[string]any{
			"order":        info.Order.String(),
			"layout":       info.Layout.String(),
			"input_shape":  info.InputShape,
			"output_shape": info.OutputShape,
		}
	}
	return status
}
