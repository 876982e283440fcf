package main

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orneryd/fistulosum/pkg/compute"
	"github.com/orneryd/fistulosum/pkg/config"
	"github.com/orneryd/fistulosum/pkg/gpu"
)

func newDevicesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available compute devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.resolve(cmd.Flags())
			if err != nil {
				return withCode(exitUsage, err)
			}
			return listDevices(cmd.OutOrStdout(), cfg)
		},
	}
}

// listDevices prints one "index: name" line per device, then the CPU.
func listDevices(w io.Writer, cfg *config.Config) error {
	ac := cfg.AcceleratorConfig()
	ac.Enabled = true
	accel, err := gpu.NewAccelerator(ac)
	if err != nil {
		return withCode(exitDevice, err)
	}
	defer accel.Release()

	if len(accel.Devices()) == 0 {
		fmt.Fprintln(w, "no compute devices")
	}
	for _, line := range gpu.List(accel.Platform()) {
		fmt.Fprintln(w, line)
	}

	features := compute.CPUFeatures()
	if len(features) == 0 {
		features = []string{"none"}
	}
	fmt.Fprintf(w, "cpu: %d threads (%s; %s)\n", runtime.NumCPU(), runtime.GOARCH, strings.Join(features, " "))
	return nil
}
