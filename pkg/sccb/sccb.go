// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sccb implements the OV2640 serial camera control bus on top of any
// I2C-compatible bus.
//
// SCCB transactions are 8-bit register address / 8-bit value pairs sent to a
// fixed device address. A register read is two bus transactions (address
// phase, then a one byte read) which must not be interleaved with other bus
// users, so every transaction holds the bus exclusively.
package sccb

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/drivers"
)

// DeviceAddress is the 7-bit OV2640 address (0x60 write / 0x61 read on the wire)
const DeviceAddress uint16 = 0x30

// DefaultTimeout bounds a single bus transaction
const DefaultTimeout = 100 * time.Millisecond

// Identification registers (sensor bank)
const (
	RegBankSelect = 0xFF
	RegCOM7       = 0x12
	RegPID        = 0x0A
	RegVER        = 0x0B

	BankDSP    = 0x00
	BankSensor = 0x01

	com7SoftReset = 0x80

	ExpectedPID = 0x26
	ExpectedVER = 0x42
)

// ErrTimeout is wrapped by a TransportError when a transaction does not finish in time
var ErrTimeout = errors.New("sccb: transaction timeout")

// ErrUnknownDevice is returned by Probe when the ID registers do not match an OV2640
var ErrUnknownDevice = errors.New("sccb: unknown device")

// TransportError describes a failed bus transaction
type TransportError struct {
	Op      string // "write" or "read"
	Address uint8  // register address
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("sccb %s 0x%02X: timeout", e.Op, e.Address)
	}
	return fmt.Sprintf("sccb %s 0x%02X: %v", e.Op, e.Address, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Bus performs register transactions against one device
type Bus struct {
	sem     chan struct{} // one transaction at a time
	i2c     drivers.I2C
	addr    uint16
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// Option configures a Bus
type Option func(*Bus)

// WithTimeout sets the per-transaction timeout
func WithTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithAddress overrides the 7-bit device address
func WithAddress(addr uint16) Option {
	return func(b *Bus) {
		b.addr = addr
	}
}

// WithLogger sets the logger used for transaction tracing
func WithLogger(l *zap.SugaredLogger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// New wraps an I2C bus. Both machine.I2C (TinyGo) and periph.io i2c buses
// satisfy drivers.I2C.
func New(bus drivers.I2C, opts ...Option) *Bus {
	b := &Bus{
		sem:     make(chan struct{}, 1),
		i2c:     bus,
		addr:    DeviceAddress,
		timeout: DefaultTimeout,
		logger:  zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WriteRegister writes one register value
func (b *Bus) WriteRegister(reg, value uint8) error {
	return b.transact("write", reg, func() error {
		return b.i2c.Tx(b.addr, []byte{reg, value}, nil)
	})
}

// ReadRegister reads one register value
func (b *Bus) ReadRegister(reg uint8) (uint8, error) {
	var value uint8
	err := b.transact("read", reg, func() error {
		if err := b.i2c.Tx(b.addr, []byte{reg}, nil); err != nil {
			return err
		}
		buf := make([]byte, 1)
		if err := b.i2c.Tx(b.addr, nil, buf); err != nil {
			return err
		}
		value = buf[0]
		return nil
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

// transact runs fn with exclusive use of the bus. The deadline covers both
// waiting for the bus and the transaction itself. A timed-out transaction keeps
// the bus until it returns, so later callers time out instead of interleaving.
func (b *Bus) transact(op string, reg uint8, fn func() error) error {
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case b.sem <- struct{}{}:
	case <-timer.C:
		b.logger.Warnw("sccb bus busy", "op", op, "reg", fmt.Sprintf("0x%02X", reg), "timeout", b.timeout)
		return &TransportError{Op: op, Address: reg, Timeout: true, Err: ErrTimeout}
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-b.sem }()
		done <- fn()
	}()

	select {
	case err := <-done:
		if err != nil {
			b.logger.Debugw("sccb transaction failed", "op", op, "reg", fmt.Sprintf("0x%02X", reg), "error", err)
			return &TransportError{Op: op, Address: reg, Err: err}
		}
		return nil
	case <-timer.C:
		b.logger.Warnw("sccb transaction timed out", "op", op, "reg", fmt.Sprintf("0x%02X", reg), "timeout", b.timeout)
		return &TransportError{Op: op, Address: reg, Timeout: true, Err: ErrTimeout}
	}
}

// Probe selects the sensor bank and reads the product and version IDs
func (b *Bus) Probe() (pid, ver uint8, err error) {
	if err := b.WriteRegister(RegBankSelect, BankSensor); err != nil {
		return 0, 0, fmt.Errorf("select sensor bank: %w", err)
	}
	if pid, err = b.ReadRegister(RegPID); err != nil {
		return 0, 0, fmt.Errorf("read PID: %w", err)
	}
	if ver, err = b.ReadRegister(RegVER); err != nil {
		return 0, 0, fmt.Errorf("read VER: %w", err)
	}
	if pid != ExpectedPID || ver != ExpectedVER {
		return pid, ver, fmt.Errorf("%w: PID 0x%02X VER 0x%02X", ErrUnknownDevice, pid, ver)
	}
	return pid, ver, nil
}

// Reset issues a soft reset through COM7
func (b *Bus) Reset() error {
	if err := b.WriteRegister(RegBankSelect, BankSensor); err != nil {
		return fmt.Errorf("select sensor bank: %w", err)
	}
	if err := b.WriteRegister(RegCOM7, com7SoftReset); err != nil {
		return fmt.Errorf("soft reset: %w", err)
	}
	return nil
}
