// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ov2640 configures an OV2640 image sensor by replaying register
// programs over its control bus.
//
// A Program is an ordered list of register writes ending with the sentinel
// {0xFF, 0xFF}. Address 0xFF with any other value selects a register bank
// (0x00 DSP, 0x01 sensor) and is a normal write. Every write is read back and
// compared; disagreements are recorded and the program keeps going.
package ov2640

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Sentinel marks the end of a program
var Sentinel = RegisterTransaction{Address: 0xFF, Value: 0xFF}

// DefaultSettleDelay is the wait between a write and its read-back
const DefaultSettleDelay = 10 * time.Millisecond

// RegisterTransaction is one register write
type RegisterTransaction struct {
	Address uint8
	Value   uint8
}

// IsSentinel reports whether t terminates a program
func (t RegisterTransaction) IsSentinel() bool {
	return t == Sentinel
}

// Program is a named, sentinel-terminated register sequence
type Program struct {
	Name string
	Regs []RegisterTransaction
}

// RegisterBus is the register-level view of the control bus
type RegisterBus interface {
	WriteRegister(reg, value uint8) error
	ReadRegister(reg uint8) (uint8, error)
}

// Mismatch is a register whose read-back differs from the written value
type Mismatch struct {
	Address  uint8
	Expected uint8
	Observed uint8
}

// TransportFault is a failed bus operation during a program
type TransportFault struct {
	Address uint8
	Op      string
	Err     error
}

// ApplyReport summarizes one or more program applications
type ApplyReport struct {
	Program         string
	Applied         int
	Mismatches      []Mismatch
	TransportErrors []TransportFault
	Unterminated    bool
	Err             error // context cancellation
}

// OK reports whether every transaction was written and verified
func (r ApplyReport) OK() bool {
	return len(r.Mismatches) == 0 && len(r.TransportErrors) == 0 && !r.Unterminated && r.Err == nil
}

// Merge appends other to r
func (r ApplyReport) Merge(other ApplyReport) ApplyReport {
	switch {
	case r.Program == "":
		r.Program = other.Program
	case other.Program != "":
		r.Program += "+" + other.Program
	}
	r.Applied += other.Applied
	r.Mismatches = append(r.Mismatches, other.Mismatches...)
	r.TransportErrors = append(r.TransportErrors, other.TransportErrors...)
	r.Unterminated = r.Unterminated || other.Unterminated
	if r.Err == nil {
		r.Err = other.Err
	}
	return r
}

func (r ApplyReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d applied", r.Program, r.Applied)
	if len(r.Mismatches) > 0 {
		fmt.Fprintf(&sb, ", %d mismatches", len(r.Mismatches))
	}
	if len(r.TransportErrors) > 0 {
		fmt.Fprintf(&sb, ", %d transport errors", len(r.TransportErrors))
	}
	if r.Unterminated {
		sb.WriteString(", unterminated")
	}
	if r.Err != nil {
		fmt.Fprintf(&sb, ", stopped: %v", r.Err)
	}
	return sb.String()
}

// Engine replays programs with read-back verification
type Engine struct {
	settle  time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	preRead bool
	logger  *zap.SugaredLogger
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithSettleDelay sets the wait between write and read-back
func WithSettleDelay(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.settle = d
	}
}

// WithSleep replaces the settle wait, mainly for tests
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// WithPreRead reads each register before writing it and logs the old value
func WithPreRead(enabled bool) EngineOption {
	return func(e *Engine) {
		e.preRead = enabled
	}
}

// WithEngineLogger sets the engine logger
func WithEngineLogger(l *zap.SugaredLogger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine with a 10ms settle delay
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		settle: DefaultSettleDelay,
		sleep:  sleepContext,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply writes program to bus with the default engine
func Apply(ctx context.Context, program Program, bus RegisterBus) ApplyReport {
	return NewEngine().Apply(ctx, program, bus)
}

// Apply writes every transaction up to the sentinel, reading each one back
// after the settle delay. Failures never stop the program; ctx is checked
// between transactions.
func (e *Engine) Apply(ctx context.Context, program Program, bus RegisterBus) ApplyReport {
	report := ApplyReport{Program: program.Name, Unterminated: true}

	for _, tx := range program.Regs {
		if tx.IsSentinel() {
			report.Unterminated = false
			break
		}
		if err := ctx.Err(); err != nil {
			report.Unterminated = false
			report.Err = err
			return report
		}

		if e.preRead {
			if old, err := bus.ReadRegister(tx.Address); err == nil {
				e.logger.Debugw("register before write", "reg", hex(tx.Address), "value", hex(old))
			}
		}

		if err := bus.WriteRegister(tx.Address, tx.Value); err != nil {
			e.logger.Warnw("register write failed", "program", program.Name, "reg", hex(tx.Address), "error", err)
			report.TransportErrors = append(report.TransportErrors, TransportFault{Address: tx.Address, Op: "write", Err: err})
			continue
		}
		report.Applied++

		if err := e.sleep(ctx, e.settle); err != nil {
			report.Unterminated = false
			report.Err = err
			return report
		}

		got, err := bus.ReadRegister(tx.Address)
		if err != nil {
			e.logger.Warnw("register read-back failed", "program", program.Name, "reg", hex(tx.Address), "error", err)
			report.TransportErrors = append(report.TransportErrors, TransportFault{Address: tx.Address, Op: "read", Err: err})
			continue
		}
		if got != tx.Value {
			e.logger.Debugw("register mismatch", "program", program.Name, "reg", hex(tx.Address),
				"expected", hex(tx.Value), "observed", hex(got))
			report.Mismatches = append(report.Mismatches, Mismatch{Address: tx.Address, Expected: tx.Value, Observed: got})
		}
	}

	if report.Unterminated {
		e.logger.Warnw("program has no sentinel", "program", program.Name)
	}
	return report
}

// Validate checks that program has exactly one sentinel, in last position
func Validate(program Program) error {
	if len(program.Regs) == 0 {
		return fmt.Errorf("program %q is empty", program.Name)
	}
	for i, tx := range program.Regs {
		if tx.IsSentinel() && i != len(program.Regs)-1 {
			return fmt.Errorf("program %q: sentinel at %d before end (%d entries)", program.Name, i, len(program.Regs))
		}
	}
	if !program.Regs[len(program.Regs)-1].IsSentinel() {
		return fmt.Errorf("program %q: missing sentinel", program.Name)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func hex(v uint8) string {
	return fmt.Sprintf("0x%02X", v)
}
