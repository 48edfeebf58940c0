// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import "fmt"

// State is a capture controller state
type State int

// Controller states
const (
	Idle State = iota
	Armed
	Capturing
	Settling
	Scanning
	Delivered
	Aborted
)

var stateNames = [...]string{
	Idle:      "IDLE",
	Armed:     "ARMED",
	Capturing: "CAPTURING",
	Settling:  "SETTLING",
	Scanning:  "SCANNING",
	Delivered: "DELIVERED",
	Aborted:   "ABORTED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}
