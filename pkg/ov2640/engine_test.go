// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ov2640

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// ============================================================
// Test Helpers
// ============================================================

// fakeBus is a flat register file that records every write
type fakeBus struct {
	regs      map[uint8]uint8
	writes    []RegisterTransaction
	readOnly  map[uint8]uint8 // register -> value always read back
	failWrite map[uint8]bool
	failRead  map[uint8]bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		regs:      make(map[uint8]uint8),
		readOnly:  make(map[uint8]uint8),
		failWrite: make(map[uint8]bool),
		failRead:  make(map[uint8]bool),
	}
}

var errBusFault = errors.New("bus fault")

func (b *fakeBus) WriteRegister(reg, value uint8) error {
	if b.failWrite[reg] {
		return errBusFault
	}
	b.writes = append(b.writes, RegisterTransaction{reg, value})
	b.regs[reg] = value
	return nil
}

func (b *fakeBus) ReadRegister(reg uint8) (uint8, error) {
	if b.failRead[reg] {
		return 0, errBusFault
	}
	if v, ok := b.readOnly[reg]; ok {
		return v, nil
	}
	return b.regs[reg], nil
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func testEngine() *Engine {
	return NewEngine(WithSleep(noSleep))
}

var reportCmp = cmpopts.EquateErrors()

// ============================================================
// Engine Tests
// ============================================================

func TestApply_StopsAtSentinel(t *testing.T) {
	bus := newFakeBus()
	p := Program{Name: "poison", Regs: []RegisterTransaction{
		{0x10, 0x01}, {0x11, 0x02}, Sentinel, {0x12, 0x03}, {0x13, 0x04},
	}}

	report := testEngine().Apply(context.Background(), p, bus)

	want := []RegisterTransaction{{0x10, 0x01}, {0x11, 0x02}}
	if diff := cmp.Diff(want, bus.writes); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
	if _, ok := bus.regs[0x12]; ok {
		t.Error("transaction after sentinel was applied")
	}
	if !report.OK() || report.Applied != 2 {
		t.Errorf("unexpected report: %s", report)
	}
}

func TestApply_BankSelectIsNotSentinel(t *testing.T) {
	bus := newFakeBus()
	p := Program{Name: "banks", Regs: []RegisterTransaction{
		{0xFF, 0x00}, {0x44, 0x0C}, {0xFF, 0x01}, {0x12, 0x40}, Sentinel,
	}}

	report := testEngine().Apply(context.Background(), p, bus)
	if report.Applied != 4 {
		t.Errorf("expected 4 applied, got %d", report.Applied)
	}
}

func TestApply_Unterminated(t *testing.T) {
	bus := newFakeBus()
	p := Program{Name: "open", Regs: []RegisterTransaction{{0x10, 0x01}, {0x11, 0x02}}}

	report := testEngine().Apply(context.Background(), p, bus)
	if !report.Unterminated {
		t.Error("expected Unterminated")
	}
	if report.Applied != 2 {
		t.Errorf("expected program applied to its end, got %d", report.Applied)
	}
	if report.OK() {
		t.Error("unterminated report should not be OK")
	}
}

func TestApply_MismatchContinues(t *testing.T) {
	bus := newFakeBus()
	bus.readOnly[0x7D] = 0x00
	p := Program{Name: "sde", Regs: []RegisterTransaction{
		{0x7C, 0x00}, {0x7D, 0x04}, {0x7C, 0x09}, {0x7D, 0x40}, Sentinel,
	}}

	report := testEngine().Apply(context.Background(), p, bus)

	want := ApplyReport{
		Program: "sde",
		Applied: 4,
		Mismatches: []Mismatch{
			{Address: 0x7D, Expected: 0x04, Observed: 0x00},
			{Address: 0x7D, Expected: 0x40, Observed: 0x00},
		},
	}
	if diff := cmp.Diff(want, report, reportCmp); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_TransportFaultsContinue(t *testing.T) {
	bus := newFakeBus()
	bus.failWrite[0x11] = true
	bus.failRead[0x12] = true
	p := Program{Name: "faulty", Regs: []RegisterTransaction{
		{0x10, 0x01}, {0x11, 0x02}, {0x12, 0x03}, {0x13, 0x04}, Sentinel,
	}}

	report := testEngine().Apply(context.Background(), p, bus)

	want := []TransportFault{
		{Address: 0x11, Op: "write", Err: errBusFault},
		{Address: 0x12, Op: "read", Err: errBusFault},
	}
	if diff := cmp.Diff(want, report.TransportErrors, reportCmp); diff != "" {
		t.Errorf("transport errors mismatch (-want +got):\n%s", diff)
	}
	if len(report.Mismatches) != 0 {
		t.Errorf("transport faults must not be recorded as mismatches: %v", report.Mismatches)
	}
	if bus.regs[0x13] != 0x04 {
		t.Error("program did not continue past transport faults")
	}
}

func TestApply_Idempotent(t *testing.T) {
	bus := newFakeBus()
	ctx := context.Background()
	engine := testEngine()

	first := engine.Apply(ctx, mode640x480, bus)
	state := make(map[uint8]uint8, len(bus.regs))
	for k, v := range bus.regs {
		state[k] = v
	}
	second := engine.Apply(ctx, mode640x480, bus)

	if diff := cmp.Diff(state, bus.regs); diff != "" {
		t.Errorf("register state changed on replay (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first, second, reportCmp); diff != "" {
		t.Errorf("report changed on replay (-first +second):\n%s", diff)
	}
}

func TestApply_ContextCanceled(t *testing.T) {
	bus := newFakeBus()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	engine := NewEngine(WithSleep(func(ctx context.Context, d time.Duration) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return nil
	}))

	report := engine.Apply(ctx, JPEGInit, bus)
	if !errors.Is(report.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", report.Err)
	}
	if report.Applied != 2 {
		t.Errorf("expected 2 applied before cancel, got %d", report.Applied)
	}
}

func TestApply_SettleDelay(t *testing.T) {
	var delays []time.Duration
	engine := NewEngine(WithSettleDelay(3*time.Millisecond), WithSleep(func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}))

	engine.Apply(context.Background(), BankReset, newFakeBus())
	if diff := cmp.Diff([]time.Duration{3 * time.Millisecond, 3 * time.Millisecond}, delays); diff != "" {
		t.Errorf("settle delays mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_PreRead(t *testing.T) {
	bus := newFakeBus()
	engine := NewEngine(WithSleep(noSleep), WithPreRead(true))
	report := engine.Apply(context.Background(), BankReset, bus)
	if !report.OK() {
		t.Errorf("pre-read should not change the outcome: %s", report)
	}
}

// ============================================================
// Report Tests
// ============================================================

func TestApplyReport_Merge(t *testing.T) {
	a := ApplyReport{Program: "a", Applied: 2, Mismatches: []Mismatch{{0x01, 0x02, 0x03}}}
	b := ApplyReport{Program: "b", Applied: 3, Unterminated: true}

	got := ApplyReport{}.Merge(a).Merge(b)
	want := ApplyReport{
		Program:      "a+b",
		Applied:      5,
		Mismatches:   []Mismatch{{0x01, 0x02, 0x03}},
		Unterminated: true,
	}
	if diff := cmp.Diff(want, got, reportCmp); diff != "" {
		t.Errorf("merge mismatch (-want +got):\n%s", diff)
	}
	if got.String() != "a+b: 5 applied, 1 mismatches, unterminated" {
		t.Errorf("unexpected String(): %q", got.String())
	}
}

// ============================================================
// Table Tests
// ============================================================

func TestBuiltinPrograms_Terminated(t *testing.T) {
	programs := []Program{JPEGInit, YUV422, JPEGEnable, BankReset, simpleWhiteBalance, advancedWhiteBalance}
	for _, r := range Resolutions() {
		programs = append(programs, r.Program())
	}
	for _, table := range []map[int]Program{brightnessPrograms, contrastPrograms, saturationPrograms} {
		for _, p := range table {
			programs = append(programs, p)
		}
	}
	for _, p := range effectPrograms {
		programs = append(programs, p)
	}
	for _, p := range lightModePrograms {
		programs = append(programs, p)
	}

	for _, p := range programs {
		t.Run(p.Name, func(t *testing.T) {
			if err := Validate(p); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		regs    []RegisterTransaction
		wantErr bool
	}{
		{"terminated", []RegisterTransaction{{0x10, 0x01}, Sentinel}, false},
		{"empty", nil, true},
		{"missing sentinel", []RegisterTransaction{{0x10, 0x01}}, true},
		{"early sentinel", []RegisterTransaction{Sentinel, {0x10, 0x01}, Sentinel}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(Program{Name: tt.name, Regs: tt.regs})
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
