package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/born-ml/livedepth/internal/bridge"
	"github.com/born-ml/livedepth/internal/inference"
	"github.com/born-ml/livedepth/internal/onnx"
)

type genModelOptions struct {
	Out    string
	Order  string
	Width  int
	Height int
}

var genModelOpts genModelOptions

var genModelCmd = &cobra.Command{
	Use:   "gen-model",
	Short: "Write the synthetic channel-mean depth model as ONNX",
	Long: "gen-model writes a one-node ONNX model whose depth output is the mean of the\n" +
		"three color channels. It exercises the full pipeline without a trained network.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return genModel(genModelOpts)
	},
}

func init() {
	genModelCmd.Flags().StringVarP(&genModelOpts.Out, "out", "o", "", `output path, "-" for stdout`)
	genModelCmd.Flags().StringVar(&genModelOpts.Order, "order", "nhwc", "input channel order: nhwc or nchw")
	genModelCmd.Flags().IntVar(&genModelOpts.Width, "width", 0, "input width (default: width from config)")
	genModelCmd.Flags().IntVar(&genModelOpts.Height, "height", 0, "input height (default: height from config)")
	_ = genModelCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(genModelCmd)
}

func genModel(opts genModelOptions) error {
	order, err := bridge.ParseInputOrder(opts.Order)
	if err != nil {
		return err
	}
	if order == bridge.OrderAuto {
		return errors.New("--order must be nhwc or nchw")
	}
	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = cfg.Width
	}
	if height <= 0 {
		height = cfg.Height
	}

	model := inference.SyntheticModel(width, height, order)
	if opts.Out == "-" {
		if !stdoutIsFile() {
			return errors.New("refusing to write a binary model to a terminal")
		}
		data, err := onnx.Marshal(model)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	if err := onnx.WriteFile(opts.Out, model); err != nil {
		return err
	}
	slog.Info("gen-model: written", "path", opts.Out, "width", width, "height", height, "order", order)
	return nil
}

// stdoutIsFile reports whether stdout is redirected away from a terminal.
func stdoutIsFile() bool {
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice == 0
}
