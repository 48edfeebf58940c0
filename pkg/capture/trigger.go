// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

// TriggerSource reports whether the capture trigger is currently pressed
type TriggerSource interface {
	Active() bool
}

// EdgeDetector turns a level-sampled trigger into single events. It fires on
// the release that follows a press, so holding the trigger fires once.
type EdgeDetector struct {
	pressed bool
}

// Update records a sample and reports whether it completes a press-release
func (d *EdgeDetector) Update(active bool) bool {
	fire := d.pressed && !active
	d.pressed = active
	return fire
}

// Pressed reports the last sampled level
func (d *EdgeDetector) Pressed() bool {
	return d.pressed
}

// PinTrigger reads a push button on a GPIO input
type PinTrigger struct {
	pin       gpio.PinIn
	activeLow bool
}

// NewPinTrigger configures pin as an input with a pull toward the inactive level
func NewPinTrigger(pin gpio.PinIn, activeLow bool) (*PinTrigger, error) {
	pull := gpio.PullDown
	if activeLow {
		pull = gpio.PullUp
	}
	if err := pin.In(pull, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure trigger pin %s: %w", pin, err)
	}
	return &PinTrigger{pin: pin, activeLow: activeLow}, nil
}

// Active implements TriggerSource
func (t *PinTrigger) Active() bool {
	return (t.pin.Read() == gpio.High) != t.activeLow
}
