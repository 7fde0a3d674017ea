package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/born-ml/livedepth/internal/inference"
	"github.com/born-ml/livedepth/internal/onnx"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect MODEL.onnx",
	Short: "Describe an ONNX model and how the pipeline would read it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := inspectModel(args[0])
		if err != nil {
			return err
		}
		if inspectJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		return report.write(cmd.OutOrStdout())
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(inspectCmd)
}

// modelReport is the output of inspect.
type modelReport struct {
	Path        string          `json:"path"`
	Info        *onnx.ModelInfo `json:"info"`
	Unsupported []string        `json:"unsupported_ops,omitempty"`
	Resolved    *inference.Info `json:"resolved,omitempty"`
	ResolveErr  string          `json:"resolve_error,omitempty"`
}

func inspectModel(path string) (*modelReport, error) {
	info, err := onnx.GetModelInfo(path)
	if err != nil {
		return nil, err
	}
	report := &modelReport{Path: path, Info: info}

	supported := make(map[string]bool)
	for _, op := range onnx.ListSupportedOps() {
		supported[op] = true
	}
	for op := range info.OpCounts {
		if !supported[op] {
			report.Unsupported = append(report.Unsupported, op)
		}
	}
	sort.Strings(report.Unsupported)

	h, err := inference.Load(inference.FileAsset(path), inference.Options{
		Layout:  cfg.LayoutMode(),
		Order:   cfg.Order(),
		Lenient: true,
	})
	if err != nil {
		report.ResolveErr = err.Error()
		return report, nil
	}
	defer h.Dispose()
	resolved := h.Info()
	report.Resolved = &resolved
	return report, nil
}

func (r *modelReport) write(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "model\t%s\n", r.Path)
	fmt.Fprintf(w, "producer\t%s %s\n", r.Info.ProducerName, r.Info.ProducerVersion)
	fmt.Fprintf(w, "ir / opset\t%d / %d\n", r.Info.IRVersion, r.Info.OpsetVersion)
	fmt.Fprintf(w, "nodes / weights\t%d / %d\n", r.Info.NodeCount, r.Info.WeightCount)
	for _, in := range r.Info.Inputs {
		fmt.Fprintf(w, "input\t%s %v\n", in.Name, in.Shape)
	}
	for _, out := range r.Info.Outputs {
		fmt.Fprintf(w, "output\t%s %v\n", out.Name, out.Shape)
	}

	ops := make([]string, 0, len(r.Info.OpCounts))
	for op := range r.Info.OpCounts {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		fmt.Fprintf(w, "op\t%s x%d\n", op, r.Info.OpCounts[op])
	}
	if len(r.Unsupported) > 0 {
		fmt.Fprintf(w, "unsupported\t%v\n", r.Unsupported)
	}

	if r.Resolved != nil {
		fmt.Fprintf(w, "input size\t%dx%d\n", r.Resolved.Width, r.Resolved.Height)
		fmt.Fprintf(w, "input order\t%s\n", r.Resolved.Order)
		fmt.Fprintf(w, "output layout\t%s\n", r.Resolved.Layout)
	} else {
		fmt.Fprintf(w, "resolve\t%s\n", r.ResolveErr)
	}
	return w.Flush()
}
