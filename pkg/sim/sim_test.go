// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Thermoquad/obscura/pkg/capture"
	"github.com/Thermoquad/obscura/pkg/jpegscan"
	"github.com/Thermoquad/obscura/pkg/ov2640"
	"github.com/Thermoquad/obscura/pkg/sccb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func newRig(t *testing.T) (*Sensor, *ov2640.Sensor) {
	t.Helper()
	dev := NewSensor()
	bus := sccb.New(dev)
	engine := ov2640.NewEngine(ov2640.WithSleep(noSleep))
	return dev, ov2640.NewSensor(bus, ov2640.WithEngine(engine), ov2640.WithResetSleep(noSleep))
}

// ============================================================
// Sensor Model Tests
// ============================================================

func TestSensor_ProbeAndReset(t *testing.T) {
	dev := NewSensor()
	bus := sccb.New(dev)

	pid, ver, err := bus.Probe()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x26), pid)
	assert.Equal(t, uint8(0x42), ver)

	require.NoError(t, bus.WriteRegister(0x13, 0xE5))
	require.NoError(t, bus.Reset())
	assert.Equal(t, 2, dev.Resets())
	assert.Equal(t, uint8(0), dev.Register(BankSensor, 0x13))
}

func TestSensor_Banks(t *testing.T) {
	dev := NewSensor()
	bus := sccb.New(dev)

	require.NoError(t, bus.WriteRegister(0xFF, 0x00))
	require.NoError(t, bus.WriteRegister(0x5A, 0x11))
	require.NoError(t, bus.WriteRegister(0xFF, 0x01))
	require.NoError(t, bus.WriteRegister(0x5A, 0x22))

	assert.Equal(t, uint8(0x11), dev.Register(BankDSP, 0x5A))
	assert.Equal(t, uint8(0x22), dev.Register(BankSensor, 0x5A))
	got, err := bus.ReadRegister(0xFF)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x01), got)
}

func TestSensor_Nack(t *testing.T) {
	bus := sccb.New(NewSensor(), sccb.WithAddress(0x21))
	err := bus.WriteRegister(0x00, 0x00)
	assert.ErrorIs(t, err, ErrNack)
}

func TestSensor_Fault(t *testing.T) {
	dev, sensor := newRig(t)
	dev.SetFault(errors.New("SDA stuck low"))
	report := sensor.SetBrightness(context.Background(), 1)
	assert.False(t, report.OK())
	assert.NotEmpty(t, report.TransportErrors)
	assert.Empty(t, report.Mismatches)
}

func TestSensor_StuckRegister(t *testing.T) {
	dev, sensor := newRig(t)
	dev.SetStuck(BankDSP, 0xC7, 0x10)
	report := sensor.AdvancedWhiteBalance(context.Background())
	require.Len(t, report.Mismatches, 1)
	assert.Equal(t, ov2640.Mismatch{Address: 0xC7, Expected: 0x00, Observed: 0x10}, report.Mismatches[0])
}

func TestSelectMode_OutputSize(t *testing.T) {
	tests := []struct {
		res  ov2640.Resolution
		w, h int
	}{
		{ov2640.Res320x240, 320, 240},
		{ov2640.Res640x480, 640, 480},
		{ov2640.Res800x600, 800, 600},
		{ov2640.Res1024x768, 1024, 768},
		{ov2640.Res1280x960, 1280, 960},
	}

	for _, tt := range tests {
		t.Run(tt.res.String(), func(t *testing.T) {
			dev, sensor := newRig(t)
			report := sensor.SelectMode(context.Background(), tt.res)

			// indirect data ports never read back
			assert.Empty(t, report.TransportErrors)
			for _, m := range report.Mismatches {
				assert.Contains(t, []uint8{0x7D, 0x91, 0x93, 0x97}, m.Address)
			}

			w, h := dev.OutputSize()
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
		})
	}
}

func TestSensorInit(t *testing.T) {
	dev, sensor := newRig(t)
	cam := NewCamera(dev)
	require.NoError(t, sensor.Init(context.Background(), cam))
	assert.Equal(t, 2, dev.Resets())
}

// ============================================================
// Camera Tests
// ============================================================

func TestCamera_EndToEnd(t *testing.T) {
	dev, sensor := newRig(t)
	sensor.SelectMode(context.Background(), ov2640.Res320x240)

	cam := NewCamera(dev, WithFrameDelay(time.Millisecond))
	fb := capture.NewFrameBuffer(capture.BufferSizeFor(ov2640.Res320x240))
	var out bytes.Buffer
	ctrl := capture.NewController(cam, fb,
		capture.WithSleep(untilTransferred(cam)),
		capture.WithScanCapacity(0),
		capture.WithTransport(rawWriter{&out}))

	s, err := ctrl.Capture(context.Background())
	require.NoError(t, err)
	require.Equal(t, capture.Delivered, s.Outcome, "abort reason: %v", s.Err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 240, cfg.Height)
	assert.Equal(t, s.Length, out.Len())
}

func TestCamera_DroppedEOIAborts(t *testing.T) {
	dev, sensor := newRig(t)
	sensor.SelectMode(context.Background(), ov2640.Res320x240)

	cam := NewCamera(dev, WithFrameDelay(time.Millisecond), WithDroppedEOI(true))
	ctrl := capture.NewController(cam, capture.NewFrameBuffer(capture.BufferSizeFor(ov2640.Res320x240)),
		capture.WithSleep(untilTransferred(cam)), capture.WithScanCapacity(0))

	s, err := ctrl.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, capture.Aborted, s.Outcome)
	assert.ErrorIs(t, s.Err, jpegscan.ErrOverrun)
}

func TestCamera_StoppedBeforeFrame(t *testing.T) {
	dev, sensor := newRig(t)
	sensor.SelectMode(context.Background(), ov2640.Res320x240)

	cam := NewCamera(dev, WithFrameDelay(time.Hour))
	buf := make([]byte, 1024)
	require.NoError(t, cam.Start(buf))
	require.NoError(t, cam.Suspend())
	require.NoError(t, cam.Stop())
	assert.Equal(t, -1, jpegscan.FirstNonZero(buf))
	assert.Zero(t, cam.Transfers())
}

func TestCamera_Overrun(t *testing.T) {
	dev, sensor := newRig(t)
	sensor.SelectMode(context.Background(), ov2640.Res640x480)

	cam := NewCamera(dev, WithFrameDelay(0))
	buf := make([]byte, 512)
	require.NoError(t, cam.Start(buf))
	require.Eventually(t, func() bool { return cam.Transfers() == 1 }, 5*time.Second, time.Millisecond)
	require.NoError(t, cam.Suspend())
	require.NoError(t, cam.Stop())
	assert.ErrorIs(t, cam.Err(), ErrDMAOverrun)
	assert.NoError(t, cam.Err(), "error is cleared once read")
}

func TestCamera_Unconfigured(t *testing.T) {
	cam := NewCamera(NewSensor(), WithFrameDelay(0))
	buf := make([]byte, 64)
	require.NoError(t, cam.Start(buf))
	require.Eventually(t, func() bool { return cam.Transfers() == 1 }, 5*time.Second, time.Millisecond)
	require.NoError(t, cam.Stop())
	assert.Error(t, cam.Err())
}

// ============================================================
// Replay Tests
// ============================================================

func TestReplay(t *testing.T) {
	dir := t.TempDir()
	a, err := TestPattern(32, 24, 0, 75)
	require.NoError(t, err)
	b, err := TestPattern(32, 24, 1, 75)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), a, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.JPEG"), b, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	r, err := NewReplay(dir)
	require.NoError(t, err)

	for _, want := range [][]byte{a, b, a} {
		buf := make([]byte, 4096)
		require.NoError(t, r.Start(buf))
		n, err := jpegscan.Scan(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, want, buf[:n])
	}

	_, err = NewReplay(t.TempDir())
	assert.Error(t, err)
}

// untilTransferred settles until the camera has written its frame
func untilTransferred(cam *Camera) func(time.Duration) {
	return func(time.Duration) {
		deadline := time.Now().Add(5 * time.Second)
		for cam.Transfers() == 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}
}

type rawWriter struct{ w *bytes.Buffer }

func (r rawWriter) Send(p []byte) error {
	_, err := r.w.Write(p)
	return err
}
