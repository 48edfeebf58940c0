// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Thermoquad/obscura/pkg/capture"
	"github.com/Thermoquad/obscura/pkg/ov2640"
	"github.com/Thermoquad/obscura/pkg/sccb"
	"github.com/Thermoquad/obscura/pkg/sim"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// rig is an opened sensor with its capture hardware
type rig struct {
	info    string
	bus     *sccb.Bus
	sensor  *ov2640.Sensor
	hw      capture.Hardware
	trigger capture.TriggerSource
	model   *sim.Sensor // set for simulated rigs
	closers []func() error
}

func (r *rig) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// openRig opens the simulated or hardware rig selected by the flags
func openRig(log *zap.SugaredLogger) (*rig, error) {
	busOpts := []sccb.Option{
		sccb.WithTimeout(rigCfg.GetBusTimeout()),
		sccb.WithLogger(log.Named("sccb")),
	}
	engine := ov2640.NewEngine(
		ov2640.WithSettleDelay(rigCfg.GetRegisterSettle()),
		ov2640.WithEngineLogger(log.Named("engine")),
	)

	if useSim {
		model := sim.NewSensor()
		bus := sccb.New(model, busOpts...)
		return &rig{
			info:   "simulated OV2640",
			bus:    bus,
			sensor: ov2640.NewSensor(bus, ov2640.WithEngine(engine), ov2640.WithLogger(log.Named("sensor"))),
			hw:     sim.NewCamera(model),
			model:  model,
		}, nil
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialise host drivers: %w", err)
	}
	i2cBus, err := i2creg.Open(i2cName)
	if err != nil {
		return nil, fmt.Errorf("open I2C bus %q: %w", i2cName, err)
	}
	r := &rig{
		info:    fmt.Sprintf("OV2640 on %s", i2cBus),
		closers: []func() error{i2cBus.Close},
	}
	r.bus = sccb.New(i2cBus, busOpts...)

	sensorOpts := []ov2640.SensorOption{ov2640.WithEngine(engine), ov2640.WithLogger(log.Named("sensor"))}
	if resetPin != "" {
		pin := gpioreg.ByName(resetPin)
		if pin == nil {
			r.Close()
			return nil, fmt.Errorf("unknown reset pin %q", resetPin)
		}
		sensorOpts = append(sensorOpts, ov2640.WithResetPin(pin))
	}
	r.sensor = ov2640.NewSensor(r.bus, sensorOpts...)

	if triggerPin != "" {
		name, activeLow := strings.CutPrefix(triggerPin, "!")
		pin := gpioreg.ByName(name)
		if pin == nil {
			r.Close()
			return nil, fmt.Errorf("unknown trigger pin %q", name)
		}
		t, err := capture.NewPinTrigger(pin, activeLow)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.trigger = t
	}

	if replayDir == "" {
		r.Close()
		return nil, fmt.Errorf("no capture hardware: pass --replay with recorded frames or use --sim")
	}
	replay, err := sim.NewReplay(replayDir)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.hw = replay
	r.info += fmt.Sprintf(", frames from %s", replayDir)
	return r, nil
}

// configureSensor resets the sensor and applies the configured mode and adjustments
func configureSensor(ctx context.Context, r *rig, res ov2640.Resolution) ([]ov2640.ApplyReport, error) {
	if err := r.sensor.Init(ctx, r.hw); err != nil {
		return nil, fmt.Errorf("sensor init: %w", err)
	}

	reports := []ov2640.ApplyReport{r.sensor.SelectMode(ctx, res)}
	if rigCfg.Brightness != nil {
		reports = append(reports, r.sensor.SetBrightness(ctx, *rigCfg.Brightness))
	}
	if rigCfg.Contrast != nil {
		reports = append(reports, r.sensor.SetContrast(ctx, *rigCfg.Contrast))
	}
	if rigCfg.Saturation != nil {
		reports = append(reports, r.sensor.SetSaturation(ctx, *rigCfg.Saturation))
	}
	if e, ok := rigCfg.GetSpecialEffect(); ok {
		reports = append(reports, r.sensor.SetSpecialEffect(ctx, e))
	}
	if m, ok := rigCfg.GetLightMode(); ok {
		reports = append(reports, r.sensor.SetLightMode(ctx, m))
	}
	return reports, ctx.Err()
}

// reportsFailed reports whether any program hit a transport fault
func reportsFailed(reports []ov2640.ApplyReport) bool {
	for _, r := range reports {
		if len(r.TransportErrors) > 0 || r.Err != nil {
			return true
		}
	}
	return false
}
