// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Obscura - OV2640 camera rig tool
//
// Configures the sensor over SCCB, captures JPEG snapshots and moves them
// over a serial or WebSocket link.

package main

import (
	"os"

	"github.com/Thermoquad/obscura/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
