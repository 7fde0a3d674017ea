package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/livedepth/internal/stream"
)

var watchCount int

var watchCmd = &cobra.Command{
	Use:   "watch ws://HOST:PORT/ws",
	Short: "Print the depth frames published by a running serve",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		seen := 0
		err := stream.Watch(cmd.Context(), args[0],
			func(h stream.Hello) {
				fmt.Fprintf(out, "connected as %s\n", h.ID)
			},
			func(f stream.Frame) error {
				fmt.Fprintf(out, "seq=%d size=%dx%d min=%.4f max=%.4f\n", f.Seq, f.Width, f.Height, f.Min, f.Max)
				seen++
				if watchCount > 0 && seen >= watchCount {
					return errWatchDone
				}
				return nil
			},
		)
		if errors.Is(err, errWatchDone) {
			return nil
		}
		return err
	},
}

var errWatchDone = errors.New("watch: frame limit reached")

func init() {
	watchCmd.Flags().IntVarP(&watchCount, "count", "n", 0, "exit after this many frames; 0 watches until interrupted")
	rootCmd.AddCommand(watchCmd)
}
