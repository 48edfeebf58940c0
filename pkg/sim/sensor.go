// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sim provides a simulated OV2640 rig: a register-level sensor model
// that answers on an I2C bus and capture hardware that writes real JPEG
// frames into the frame buffer.
package sim

import (
	"errors"
	"sync"

	"github.com/Thermoquad/obscura/pkg/sccb"
)

// Register banks
const (
	BankDSP    = 0
	BankSensor = 1
)

// DSP output size registers (ZMOW, ZMOH, ZMHH)
const (
	regZMOW = 0x5A
	regZMOH = 0x5B
	regZMHH = 0x5C
)

// ErrNack is returned for transactions to another device address
var ErrNack = errors.New("sim: no device at address")

type regKey struct {
	bank uint8
	reg  uint8
}

// Sensor models the OV2640 register file behind an I2C bus.
//
// Indirect data ports (SDE 0x7D, gamma 0x91/0x93/0x97 in the DSP bank) do not
// read back what was written, as on the real part.
type Sensor struct {
	mu        sync.Mutex
	addr      uint16
	bank      uint8
	pointer   uint8
	regs      [2][256]uint8
	readOnly  map[regKey]uint8
	writeOnly map[regKey]bool
	stuck     map[regKey]uint8
	fault     error
	resets    int
	writes    int
}

// NewSensor creates a sensor at the default SCCB address in its reset state
func NewSensor() *Sensor {
	s := &Sensor{
		addr: sccb.DeviceAddress,
		readOnly: map[regKey]uint8{
			{BankSensor, sccb.RegPID}: sccb.ExpectedPID,
			{BankSensor, sccb.RegVER}: sccb.ExpectedVER,
			{BankSensor, 0x1C}:        0x7F, // MIDH
			{BankSensor, 0x1D}:        0xA2, // MIDL
		},
		writeOnly: map[regKey]bool{
			{BankDSP, 0x7D}: true,
			{BankDSP, 0x91}: true,
			{BankDSP, 0x93}: true,
			{BankDSP, 0x97}: true,
		},
		stuck: make(map[regKey]uint8),
	}
	s.reset()
	return s
}

func (s *Sensor) reset() {
	s.regs = [2][256]uint8{}
	s.bank = BankDSP
	s.resets++
}

// Tx implements drivers.I2C: a two byte write sets a register, a one byte
// write sets the read pointer, and a read returns the register at the pointer.
func (s *Sensor) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fault != nil {
		return s.fault
	}
	if addr != s.addr {
		return ErrNack
	}

	switch len(w) {
	case 0:
	case 1:
		s.pointer = w[0]
	case 2:
		s.write(w[0], w[1])
	default:
		return errors.New("sim: write longer than one register")
	}

	if len(r) > 0 {
		r[0] = s.read(s.pointer)
		for i := 1; i < len(r); i++ {
			r[i] = 0
		}
	}
	return nil
}

func (s *Sensor) write(reg, value uint8) {
	s.writes++
	if reg == sccb.RegBankSelect {
		s.bank = value & 0x01
		return
	}
	key := regKey{s.bank, reg}
	if _, ok := s.readOnly[key]; ok {
		return
	}
	if s.bank == BankSensor && reg == sccb.RegCOM7 && value&0x80 != 0 {
		s.reset()
		s.bank = BankSensor
		return
	}
	s.regs[s.bank][reg] = value
}

func (s *Sensor) read(reg uint8) uint8 {
	if reg == sccb.RegBankSelect {
		return s.bank
	}
	key := regKey{s.bank, reg}
	if v, ok := s.stuck[key]; ok {
		return v
	}
	if v, ok := s.readOnly[key]; ok {
		return v
	}
	if s.writeOnly[key] {
		return 0
	}
	return s.regs[s.bank][reg]
}

// SetStuck makes a register read back value regardless of writes
func (s *Sensor) SetStuck(bank, reg, value uint8) {
	s.mu.Lock()
	s.stuck[regKey{bank & 0x01, reg}] = value
	s.mu.Unlock()
}

// SetFault makes every transaction fail with err; nil clears it
func (s *Sensor) SetFault(err error) {
	s.mu.Lock()
	s.fault = err
	s.mu.Unlock()
}

// Register returns the stored value of a register
func (s *Sensor) Register(bank, reg uint8) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[bank&0x01][reg]
}

// Resets returns how many soft resets (including power-on) have occurred
func (s *Sensor) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Writes returns the number of register writes received
func (s *Sensor) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// OutputSize returns the DSP output size in pixels, or 0x0 when unconfigured
func (s *Sensor) OutputSize() (width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dsp := s.regs[BankDSP]
	width = (int(dsp[regZMOW]) | int(dsp[regZMHH]&0x03)<<8) * 4
	height = (int(dsp[regZMOH]) | int(dsp[regZMHH]>>2&0x01)<<8) * 4
	return width, height
}
