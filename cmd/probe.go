// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/Thermoquad/obscura/pkg/sccb"
	"github.com/spf13/cobra"
)

var probeReset bool

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that an OV2640 answers on the control bus",
	Long: `Read the product and version ID registers over SCCB.

Exit codes:
  0 - OV2640 found (PID 0x26, VER 0x42)
  1 - Another device answered
  2 - Bus error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().BoolVar(&probeReset, "reset", false, "Soft reset the sensor after probing")
}

func runProbe(cmd *cobra.Command, args []string) error {
	r, err := openRig(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Rig error: %v\n", err)
		os.Exit(2)
	}
	defer r.Close()

	fmt.Printf("Obscura - Sensor Probe\n")
	fmt.Printf("Rig: %s\n\n", r.info)

	pid, ver, err := r.bus.Probe()
	switch {
	case errors.Is(err, sccb.ErrUnknownDevice):
		fmt.Printf("UNKNOWN DEVICE: PID 0x%02X VER 0x%02X\n", pid, ver)
		os.Exit(1)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Bus error: %v\n", err)
		os.Exit(2)
	}
	fmt.Printf("FOUND: OV2640 (PID 0x%02X, VER 0x%02X)\n", pid, ver)

	if probeReset {
		if err := r.bus.Reset(); err != nil {
			return fmt.Errorf("soft reset: %w", err)
		}
		fmt.Printf("Soft reset issued\n")
	}
	return nil
}
