// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ov2640

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/obscura/pkg/sccb"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
)

// ResetDelay is the wait around each reset step during Init
const ResetDelay = 100 * time.Millisecond

// ResetPin drives the active-low sensor reset line. periph.io gpio.PinOut
// satisfies it.
type ResetPin interface {
	Out(l gpio.Level) error
}

// Stopper halts the capture hardware
type Stopper interface {
	Stop() error
}

// Sensor composes register programs into sensor modes and adjustments
type Sensor struct {
	mu         sync.Mutex
	bus        RegisterBus
	engine     *Engine
	resetPin   ResetPin
	logger     *zap.SugaredLogger
	resolution Resolution
	sleep      func(ctx context.Context, d time.Duration) error
}

// SensorOption configures a Sensor
type SensorOption func(*Sensor)

// WithEngine replaces the default program engine
func WithEngine(e *Engine) SensorOption {
	return func(s *Sensor) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithResetPin enables the hardware reset pulse during Init
func WithResetPin(p ResetPin) SensorOption {
	return func(s *Sensor) {
		s.resetPin = p
	}
}

// WithLogger sets the sensor logger
func WithLogger(l *zap.SugaredLogger) SensorOption {
	return func(s *Sensor) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithResetSleep replaces the Init reset waits, mainly for tests
func WithResetSleep(sleep func(ctx context.Context, d time.Duration) error) SensorOption {
	return func(s *Sensor) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// NewSensor creates a Sensor on bus
func NewSensor(bus RegisterBus, opts ...SensorOption) *Sensor {
	s := &Sensor{
		bus:        bus,
		logger:     zap.NewNop().Sugar(),
		resolution: DefaultResolution,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = NewEngine(WithEngineLogger(s.logger))
	}
	return s
}

// Init resets the sensor, logs its ID registers and stops the capture hardware
func (s *Sensor) Init(ctx context.Context, hw Stopper) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resetPin != nil {
		if err := s.resetPin.Out(gpio.Low); err != nil {
			return fmt.Errorf("assert reset: %w", err)
		}
		if err := s.sleep(ctx, ResetDelay); err != nil {
			return err
		}
		if err := s.resetPin.Out(gpio.High); err != nil {
			return fmt.Errorf("release reset: %w", err)
		}
		if err := s.sleep(ctx, ResetDelay); err != nil {
			return err
		}
	}

	if err := s.bus.WriteRegister(sccb.RegBankSelect, sccb.BankSensor); err != nil {
		return fmt.Errorf("select sensor bank: %w", err)
	}
	if err := s.bus.WriteRegister(sccb.RegCOM7, 0x80); err != nil {
		return fmt.Errorf("soft reset: %w", err)
	}
	if err := s.sleep(ctx, ResetDelay); err != nil {
		return err
	}

	pid, pidErr := s.bus.ReadRegister(sccb.RegPID)
	ver, verErr := s.bus.ReadRegister(sccb.RegVER)
	switch {
	case pidErr != nil || verErr != nil:
		s.logger.Warnw("sensor ID read failed", "pid_error", pidErr, "ver_error", verErr)
	case pid != sccb.ExpectedPID || ver != sccb.ExpectedVER:
		s.logger.Warnw("unexpected sensor ID", "pid", hex(pid), "ver", hex(ver))
	default:
		s.logger.Infow("sensor detected", "pid", hex(pid), "ver", hex(ver))
	}

	if hw != nil {
		if err := hw.Stop(); err != nil {
			return fmt.Errorf("stop capture hardware: %w", err)
		}
	}
	return nil
}

// Resolution returns the last selected mode
func (s *Sensor) Resolution() Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolution
}

// SelectMode applies the JPEG baseline followed by the program for mode.
// Invalid modes fall back to 320x240.
func (s *Sensor) SelectMode(ctx context.Context, mode Resolution) ApplyReport {
	if !mode.Valid() {
		mode = DefaultResolution
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Infow("selecting resolution", "resolution", mode.String())
	var report ApplyReport
	for _, p := range []Program{JPEGInit, YUV422, JPEGEnable, BankReset, mode.Program()} {
		report = report.Merge(s.engine.Apply(ctx, p, s.bus))
		if report.Err != nil {
			break
		}
	}
	s.resolution = mode
	s.logReport(report)
	return report
}

// SelectModeFromCode selects the mode for a legacy numeric code
func (s *Sensor) SelectModeFromCode(ctx context.Context, code uint16) ApplyReport {
	return s.SelectMode(ctx, ResolutionFromCode(code))
}

// SetBrightness applies brightness level -2..+2; other levels are ignored
func (s *Sensor) SetBrightness(ctx context.Context, level int) ApplyReport {
	return s.applyLevel(ctx, brightnessPrograms, level)
}

// SetContrast applies contrast level -2..+2; other levels are ignored
func (s *Sensor) SetContrast(ctx context.Context, level int) ApplyReport {
	return s.applyLevel(ctx, contrastPrograms, level)
}

// SetSaturation applies saturation level -2..+2; other levels are ignored
func (s *Sensor) SetSaturation(ctx context.Context, level int) ApplyReport {
	return s.applyLevel(ctx, saturationPrograms, level)
}

// SetSpecialEffect applies a colour effect; unknown effects are ignored
func (s *Sensor) SetSpecialEffect(ctx context.Context, effect SpecialEffect) ApplyReport {
	p, ok := effectPrograms[effect]
	if !ok {
		return ApplyReport{}
	}
	return s.apply(ctx, p)
}

// SetLightMode applies a white balance preset; LightAuto enables advanced AWB
func (s *Sensor) SetLightMode(ctx context.Context, mode LightMode) ApplyReport {
	p, ok := lightModePrograms[mode]
	if !ok {
		return ApplyReport{}
	}
	return s.apply(ctx, p)
}

// SimpleWhiteBalance switches AWB to the simple algorithm
func (s *Sensor) SimpleWhiteBalance(ctx context.Context) ApplyReport {
	return s.apply(ctx, simpleWhiteBalance)
}

// AdvancedWhiteBalance switches AWB to the advanced algorithm
func (s *Sensor) AdvancedWhiteBalance(ctx context.Context) ApplyReport {
	return s.apply(ctx, advancedWhiteBalance)
}

func (s *Sensor) applyLevel(ctx context.Context, table map[int]Program, level int) ApplyReport {
	p, ok := table[level]
	if !ok {
		s.logger.Debugw("level out of range, ignored", "level", level)
		return ApplyReport{}
	}
	return s.apply(ctx, p)
}

func (s *Sensor) apply(ctx context.Context, p Program) ApplyReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	report := s.engine.Apply(ctx, p, s.bus)
	s.logReport(report)
	return report
}

func (s *Sensor) logReport(r ApplyReport) {
	if r.OK() {
		s.logger.Debugw("program applied", "program", r.Program, "applied", r.Applied)
		return
	}
	s.logger.Warnw("program applied with faults", "program", r.Program, "applied", r.Applied,
		"mismatches", len(r.Mismatches), "transport_errors", len(r.TransportErrors),
		"unterminated", r.Unterminated, "error", r.Err)
}
