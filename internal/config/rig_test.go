// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/obscura/pkg/capture"
	"github.com/Thermoquad/obscura/pkg/jpegscan"
	"github.com/Thermoquad/obscura/pkg/ov2640"
	"github.com/Thermoquad/obscura/pkg/sccb"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, "rig.json", `{
		"resolution": "800x600",
		"brightness": 1,
		"contrast": -2,
		"special_effect": "negative",
		"light_mode": "cloudy",
		"register_settle": "5ms",
		"capture_settle": "1.5s",
		"bus_timeout": "250ms",
		"scan_limit": 0,
		"output_dir": "/tmp/frames",
		"database": "frames.db",
		"trigger_pin": "GPIO17"
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := cfg.GetResolution(); got != ov2640.Res800x600 {
		t.Errorf("resolution = %v, want 800x600", got)
	}
	if e, ok := cfg.GetSpecialEffect(); !ok || e != ov2640.EffectNegative {
		t.Errorf("special effect = %v %v", e, ok)
	}
	if m, ok := cfg.GetLightMode(); !ok || m != ov2640.LightCloudy {
		t.Errorf("light mode = %v %v", m, ok)
	}
	if got := cfg.GetRegisterSettle(); got != 5*time.Millisecond {
		t.Errorf("register settle = %v", got)
	}
	if got := cfg.GetCaptureSettle(); got != 1500*time.Millisecond {
		t.Errorf("capture settle = %v", got)
	}
	if got := cfg.GetBusTimeout(); got != 250*time.Millisecond {
		t.Errorf("bus timeout = %v", got)
	}
	if got := cfg.GetScanLimit(); got != 0 {
		t.Errorf("scan limit = %d, want 0", got)
	}
	if cfg.GetOutputDir() != "/tmp/frames" || cfg.GetDatabase() != "frames.db" || cfg.GetTriggerPin() != "GPIO17" {
		t.Errorf("unexpected paths: %+v", cfg)
	}
}

func TestDefaults(t *testing.T) {
	cfg := &RigConfig{}

	if got := cfg.GetResolution(); got != ov2640.DefaultResolution {
		t.Errorf("resolution = %v", got)
	}
	if _, ok := cfg.GetSpecialEffect(); ok {
		t.Error("special effect should be unset")
	}
	if got := cfg.GetRegisterSettle(); got != ov2640.DefaultSettleDelay {
		t.Errorf("register settle = %v", got)
	}
	if got := cfg.GetCaptureSettle(); got != capture.DefaultSettleDelay {
		t.Errorf("capture settle = %v", got)
	}
	if got := cfg.GetBusTimeout(); got != sccb.DefaultTimeout {
		t.Errorf("bus timeout = %v", got)
	}
	if got := cfg.GetScanLimit(); got != jpegscan.DefaultCapacity {
		t.Errorf("scan limit = %d", got)
	}
	if got := cfg.GetBufferSize(ov2640.Res640x480); got != capture.BufferSizeFor(ov2640.Res640x480) {
		t.Errorf("buffer size = %d", got)
	}
	if cfg.GetOutputDir() != "." || cfg.GetDatabase() != "" {
		t.Errorf("unexpected output defaults")
	}
}

func TestResolutionCode(t *testing.T) {
	tests := []struct {
		code int
		want ov2640.Resolution
	}{
		{160, ov2640.Res160x120},
		{1280, ov2640.Res1280x960},
		{999, ov2640.DefaultResolution},
	}

	for _, tt := range tests {
		code := tt.code
		cfg := &RigConfig{ResolutionCode: &code}
		if got := cfg.GetResolution(); got != tt.want {
			t.Errorf("code %d: got %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad resolution", `{"resolution": "123x45"}`, "123x45"},
		{"both resolutions", `{"resolution": "640x480", "resolution_code": 640}`, "mutually exclusive"},
		{"brightness", `{"brightness": 3}`, "brightness"},
		{"saturation", `{"saturation": -3}`, "saturation"},
		{"effect", `{"special_effect": "sepia"}`, "sepia"},
		{"light mode", `{"light_mode": "disco"}`, "disco"},
		{"duration", `{"capture_settle": "soon"}`, "capture_settle"},
		{"negative duration", `{"bus_timeout": "-1s"}`, "bus_timeout"},
		{"scan limit", `{"scan_limit": -1}`, "scan_limit"},
		{"buffer", `{"buffer_size": 0}`, "buffer_size"},
		{"json", `{"resolution": `, "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "rig.json", tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_FileChecks(t *testing.T) {
	if _, err := Load(writeConfig(t, "rig.yaml", `{}`)); err == nil {
		t.Error("expected extension error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected stat error")
	}

	big := `{"output_dir": "` + strings.Repeat("a", maxFileSize) + `"}`
	if _, err := Load(writeConfig(t, "big.json", big)); err == nil {
		t.Error("expected size error")
	}
}
