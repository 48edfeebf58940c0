// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ov2640

import (
	"fmt"
	"strings"
)

// Resolution is a supported JPEG output mode
type Resolution int

// Supported output modes
const (
	Res160x120 Resolution = iota
	Res320x240
	Res640x480
	Res800x600
	Res1024x768
	Res1280x960
)

// DefaultResolution is used for unknown legacy codes
const DefaultResolution = Res320x240

type modeInfo struct {
	width, height int
	code          uint16
	program       *Program
}

var modes = [...]modeInfo{
	Res160x120:  {160, 120, 15533, &mode160x120},
	Res320x240:  {320, 240, 15534, &mode320x240},
	Res640x480:  {640, 480, 15535, &mode640x480},
	Res800x600:  {800, 600, 25535, &mode800x600},
	Res1024x768: {1024, 768, 45535, &mode1024x768},
	Res1280x960: {1280, 960, 65535, &mode1280x960},
}

// Resolutions lists every supported mode, smallest first
func Resolutions() []Resolution {
	out := make([]Resolution, len(modes))
	for i := range modes {
		out[i] = Resolution(i)
	}
	return out
}

// Valid reports whether r is a supported mode
func (r Resolution) Valid() bool {
	return r >= 0 && int(r) < len(modes)
}

// Width in pixels
func (r Resolution) Width() int {
	if !r.Valid() {
		return 0
	}
	return modes[r].width
}

// Height in pixels
func (r Resolution) Height() int {
	if !r.Valid() {
		return 0
	}
	return modes[r].height
}

// Code returns the legacy numeric selector for r
func (r Resolution) Code() uint16 {
	if !r.Valid() {
		return modes[DefaultResolution].code
	}
	return modes[r].code
}

// Program returns the mode-specific register program
func (r Resolution) Program() Program {
	if !r.Valid() {
		return *modes[DefaultResolution].program
	}
	return *modes[r].program
}

func (r Resolution) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Resolution(%d)", int(r))
	}
	return fmt.Sprintf("%dx%d", modes[r].width, modes[r].height)
}

// ResolutionFromCode maps a legacy selector to a mode; unknown codes select 320x240
func ResolutionFromCode(code uint16) Resolution {
	for i, m := range modes {
		if m.code == code {
			return Resolution(i)
		}
	}
	return DefaultResolution
}

// ParseResolution parses "WIDTHxHEIGHT"
func ParseResolution(s string) (Resolution, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, m := range modes {
		if s == fmt.Sprintf("%dx%d", m.width, m.height) {
			return Resolution(i), nil
		}
	}
	return DefaultResolution, fmt.Errorf("unsupported resolution %q", s)
}

// SpecialEffect is a digital colour effect
type SpecialEffect int

// Special effects, in legacy selector order
const (
	EffectAntique SpecialEffect = iota
	EffectBluish
	EffectGreenish
	EffectReddish
	EffectBlackWhite
	EffectNegative
	EffectBlackWhiteNegative
	EffectNormal
)

var effectNames = map[SpecialEffect]string{
	EffectAntique:            "antique",
	EffectBluish:             "bluish",
	EffectGreenish:           "greenish",
	EffectReddish:            "reddish",
	EffectBlackWhite:         "black-white",
	EffectNegative:           "negative",
	EffectBlackWhiteNegative: "black-white-negative",
	EffectNormal:             "normal",
}

func (e SpecialEffect) String() string {
	if name, ok := effectNames[e]; ok {
		return name
	}
	return fmt.Sprintf("SpecialEffect(%d)", int(e))
}

// ParseSpecialEffect parses an effect name such as "negative"
func ParseSpecialEffect(s string) (SpecialEffect, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for e, name := range effectNames {
		if name == s {
			return e, nil
		}
	}
	return EffectNormal, fmt.Errorf("unknown special effect %q", s)
}

// LightMode is a white balance preset
type LightMode int

// Light modes, in legacy selector order
const (
	LightAuto LightMode = iota
	LightSunny
	LightCloudy
	LightOffice
	LightHome
)

var lightModeNames = map[LightMode]string{
	LightAuto:   "auto",
	LightSunny:  "sunny",
	LightCloudy: "cloudy",
	LightOffice: "office",
	LightHome:   "home",
}

func (m LightMode) String() string {
	if name, ok := lightModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("LightMode(%d)", int(m))
}

// ParseLightMode parses a light mode name such as "cloudy"
func ParseLightMode(s string) (LightMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range lightModeNames {
		if name == s {
			return m, nil
		}
	}
	return LightAuto, fmt.Errorf("unknown light mode %q", s)
}
