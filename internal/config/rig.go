// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the optional JSON rig configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Thermoquad/obscura/pkg/capture"
	"github.com/Thermoquad/obscura/pkg/jpegscan"
	"github.com/Thermoquad/obscura/pkg/ov2640"
	"github.com/Thermoquad/obscura/pkg/sccb"
)

// RigConfig describes the sensor setup and capture behaviour of one rig.
// Omitted fields fall back to the Get* defaults, so partial files are safe.
type RigConfig struct {
	// Sensor mode
	Resolution     *string `json:"resolution,omitempty"`      // "640x480"
	ResolutionCode *int    `json:"resolution_code,omitempty"` // legacy numeric code, e.g. 640
	Brightness     *int    `json:"brightness,omitempty"`
	Contrast       *int    `json:"contrast,omitempty"`
	Saturation     *int    `json:"saturation,omitempty"`
	SpecialEffect  *string `json:"special_effect,omitempty"`
	LightMode      *string `json:"light_mode,omitempty"`

	// Timing
	RegisterSettle *string `json:"register_settle,omitempty"` // duration string like "10ms"
	CaptureSettle  *string `json:"capture_settle,omitempty"`
	BusTimeout     *string `json:"bus_timeout,omitempty"`

	// Capture
	ScanLimit  *int `json:"scan_limit,omitempty"`
	BufferSize *int `json:"buffer_size,omitempty"`

	// Output
	OutputDir *string `json:"output_dir,omitempty"`
	Database  *string `json:"database,omitempty"`

	// Hardware
	I2CBus     *string `json:"i2c_bus,omitempty"`
	TriggerPin *string `json:"trigger_pin,omitempty"`
	ResetPin   *string `json:"reset_pin,omitempty"`
	ReplayDir  *string `json:"replay_dir,omitempty"`
}

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Load reads a RigConfig from a JSON file and validates it
func Load(path string) (*RigConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &RigConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that every set field holds a usable value
func (c *RigConfig) Validate() error {
	if c.Resolution != nil && c.ResolutionCode != nil {
		return fmt.Errorf("resolution and resolution_code are mutually exclusive")
	}
	if c.Resolution != nil {
		if _, err := ov2640.ParseResolution(*c.Resolution); err != nil {
			return err
		}
	}

	for name, level := range map[string]*int{
		"brightness": c.Brightness,
		"contrast":   c.Contrast,
		"saturation": c.Saturation,
	} {
		if level != nil && (*level < -2 || *level > 2) {
			return fmt.Errorf("%s must be between -2 and 2, got %d", name, *level)
		}
	}

	if c.SpecialEffect != nil {
		if _, err := ov2640.ParseSpecialEffect(*c.SpecialEffect); err != nil {
			return err
		}
	}
	if c.LightMode != nil {
		if _, err := ov2640.ParseLightMode(*c.LightMode); err != nil {
			return err
		}
	}

	for name, d := range map[string]*string{
		"register_settle": c.RegisterSettle,
		"capture_settle":  c.CaptureSettle,
		"bus_timeout":     c.BusTimeout,
	} {
		if d == nil || *d == "" {
			continue
		}
		v, err := time.ParseDuration(*d)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *d, err)
		}
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, v)
		}
	}

	if c.ScanLimit != nil && *c.ScanLimit < 0 {
		return fmt.Errorf("scan_limit must be non-negative, got %d", *c.ScanLimit)
	}
	if c.BufferSize != nil && *c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive, got %d", *c.BufferSize)
	}
	return nil
}

// GetResolution returns the configured sensor mode or the default.
// A legacy code that names no mode falls back to the default, as the sensor does.
func (c *RigConfig) GetResolution() ov2640.Resolution {
	if c.Resolution != nil {
		if r, err := ov2640.ParseResolution(*c.Resolution); err == nil {
			return r
		}
	}
	if c.ResolutionCode != nil {
		return ov2640.ResolutionFromCode(uint16(*c.ResolutionCode))
	}
	return ov2640.DefaultResolution
}

// GetSpecialEffect returns the configured effect, if any
func (c *RigConfig) GetSpecialEffect() (ov2640.SpecialEffect, bool) {
	if c.SpecialEffect == nil {
		return 0, false
	}
	e, err := ov2640.ParseSpecialEffect(*c.SpecialEffect)
	return e, err == nil
}

// GetLightMode returns the configured light mode, if any
func (c *RigConfig) GetLightMode() (ov2640.LightMode, bool) {
	if c.LightMode == nil {
		return 0, false
	}
	m, err := ov2640.ParseLightMode(*c.LightMode)
	return m, err == nil
}

// GetRegisterSettle returns the delay between register write and read-back
func (c *RigConfig) GetRegisterSettle() time.Duration {
	return duration(c.RegisterSettle, ov2640.DefaultSettleDelay)
}

// GetCaptureSettle returns the wait between starting and stopping capture
func (c *RigConfig) GetCaptureSettle() time.Duration {
	return duration(c.CaptureSettle, capture.DefaultSettleDelay)
}

// GetBusTimeout returns the SCCB transaction timeout
func (c *RigConfig) GetBusTimeout() time.Duration {
	return duration(c.BusTimeout, sccb.DefaultTimeout)
}

// GetScanLimit returns the frame scan capacity; zero scans the whole buffer
func (c *RigConfig) GetScanLimit() int {
	if c.ScanLimit == nil {
		return jpegscan.DefaultCapacity
	}
	return *c.ScanLimit
}

// GetBufferSize returns the frame buffer size for res
func (c *RigConfig) GetBufferSize(res ov2640.Resolution) int {
	if c.BufferSize == nil {
		return capture.BufferSizeFor(res)
	}
	return *c.BufferSize
}

// GetOutputDir returns the directory captured frames are written to
func (c *RigConfig) GetOutputDir() string {
	return str(c.OutputDir, ".")
}

// GetDatabase returns the frame database path, empty when disabled
func (c *RigConfig) GetDatabase() string {
	return str(c.Database, "")
}

// GetI2CBus returns the I2C bus name; empty selects the first bus
func (c *RigConfig) GetI2CBus() string {
	return str(c.I2CBus, "")
}

// GetTriggerPin returns the trigger GPIO name, empty when unused
func (c *RigConfig) GetTriggerPin() string {
	return str(c.TriggerPin, "")
}

// GetResetPin returns the reset GPIO name, empty when unused
func (c *RigConfig) GetResetPin() string {
	return str(c.ResetPin, "")
}

// GetReplayDir returns the directory of recorded frames used as capture hardware
func (c *RigConfig) GetReplayDir() string {
	return str(c.ReplayDir, "")
}

func duration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

func str(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}
