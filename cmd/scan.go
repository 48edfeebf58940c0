// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/Thermoquad/obscura/pkg/jpegscan"
	"github.com/spf13/cobra"
)

var (
	scanLimit int
	scanOut   string
)

var scanCmd = &cobra.Command{
	Use:   "scan <buffer-dump>",
	Short: "Find the JPEG frame in a raw capture buffer dump",
	Long: `Scan a raw frame buffer dump for the SOI (FF D8) and EOI (FF D9) markers
and report the frame length the capture pipeline would deliver.

Use --out to write the trimmed frame.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().IntVar(&scanLimit, "limit", -1, "Scan capacity in bytes, 0 for the whole file (default from config)")
	scanCmd.Flags().StringVarP(&scanOut, "out", "o", "", "Write the trimmed frame to this file")
}

func runScan(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	limit := scanLimit
	if limit < 0 {
		limit = rigCfg.GetScanLimit()
	}

	fmt.Printf("Buffer: %s (%d bytes)\n", args[0], len(data))
	if first := jpegscan.FirstNonZero(data); first >= 0 {
		fmt.Printf("First non-zero byte: %d\n", first)
	} else {
		fmt.Printf("Buffer is empty (all zero)\n")
	}

	n, err := jpegscan.Scan(data, limit)
	if err != nil {
		return fmt.Errorf("no frame within %d bytes: %w", effectiveLimit(limit, len(data)), err)
	}
	fmt.Printf("Frame length: %d bytes\n", n)

	if scanOut != "" {
		if err := os.WriteFile(scanOut, data[:n], 0o644); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", scanOut)
	}
	return nil
}

func effectiveLimit(limit, size int) int {
	if limit <= 0 || limit > size {
		return size
	}
	return limit
}
