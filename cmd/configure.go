// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/Thermoquad/obscura/pkg/ov2640"
	"github.com/spf13/cobra"
)

var (
	configureResolution string
	configureVerbose    bool
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Reset the sensor and load a JPEG mode",
	Long: `Reset the sensor, load the JPEG pipeline and select an output mode, then
apply the adjustments from the rig configuration.

Every register write is read back. Mismatches are listed; they are expected
for the indirect data ports (0x7D, 0x91, 0x93, 0x97), which do not read back.

Resolutions: 160x120 176x144 320x240 352x288 640x480 800x600 1024x768 1280x960`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
	configureCmd.Flags().StringVarP(&configureResolution, "resolution", "r", "", "Output mode (default from config, else 320x240)")
	configureCmd.Flags().BoolVar(&configureVerbose, "mismatches", false, "List every read-back mismatch")
}

// resolveResolution picks the flag value over the configured mode
func resolveResolution(flag string) (ov2640.Resolution, error) {
	if flag == "" {
		return rigCfg.GetResolution(), nil
	}
	return ov2640.ParseResolution(flag)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	res, err := resolveResolution(configureResolution)
	if err != nil {
		return err
	}

	r, err := openRig(logger)
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Obscura - Configure\n")
	fmt.Printf("Rig: %s\n", r.info)
	fmt.Printf("Mode: %s\n\n", res)

	reports, err := configureSensor(ctx, r, res)
	if err != nil {
		return err
	}
	printReports(reports, configureVerbose)

	if r.model != nil {
		w, h := r.model.OutputSize()
		fmt.Printf("\nSimulated output size: %dx%d\n", w, h)
	}
	if reportsFailed(reports) {
		return fmt.Errorf("sensor configuration incomplete")
	}
	return nil
}

func printReports(reports []ov2640.ApplyReport, mismatches bool) {
	for _, rep := range reports {
		status := "\033[1;32mOK\033[0m"
		switch {
		case len(rep.TransportErrors) > 0 || rep.Err != nil:
			status = "\033[1;31mFAILED\033[0m"
		case !rep.OK():
			status = "\033[1;33mUNVERIFIED\033[0m"
		}
		fmt.Printf("[%s] %s\n", status, rep)

		for _, f := range rep.TransportErrors {
			fmt.Printf("  %s 0x%02X: %v\n", f.Op, f.Address, f.Err)
		}
		if mismatches {
			for _, m := range rep.Mismatches {
				fmt.Printf("  0x%02X: wrote 0x%02X, read 0x%02X\n", m.Address, m.Expected, m.Observed)
			}
		}
	}
}
