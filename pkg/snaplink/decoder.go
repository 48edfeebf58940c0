// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package snaplink

import (
	"errors"
	"fmt"
	"time"
)

// ErrCRCMismatch is wrapped by decode errors for corrupted packets
var ErrCRCMismatch = errors.New("CRC mismatch")

// Decoder implements the snaplink packet decoder state machine
type Decoder struct {
	state       int
	buffer      []byte
	bufferIndex int
	escapeNext  bool
	addrBytes   int
	packet      *Packet
	rawBuffer   []byte // raw bytes including framing
}

// NewDecoder creates a new packet decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:     stateIdle,
		buffer:    make([]byte, MaxPacketSize),
		rawBuffer: make([]byte, 0, MaxPacketSize*2),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.bufferIndex = 0
	d.addrBytes = 0
	d.escapeNext = false
	d.packet = nil
	d.rawBuffer = d.rawBuffer[:0]
}

// GetRawBytes returns the raw bytes accumulated for the current packet
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed packet, or nil if the packet is incomplete.
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	if d.state == stateIdle && b != StartByte {
		return nil, nil
	}
	d.rawBuffer = append(d.rawBuffer, b)

	if d.escapeNext {
		d.escapeNext = false
		return d.accept(b ^ EscXor)
	}

	switch b {
	case EscByte:
		d.escapeNext = true
		return nil, nil

	case StartByte:
		d.Reset()
		d.rawBuffer = append(d.rawBuffer, b)
		d.state = stateLength1
		return nil, nil

	case EndByte:
		if d.state != stateEnd {
			state := d.state
			d.Reset()
			return nil, fmt.Errorf("unexpected END byte in state %d", state)
		}
		packet := d.packet
		calculated := CalculateCRC(d.buffer[:d.bufferIndex])
		d.Reset()
		if packet.crc != calculated {
			return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRCMismatch, calculated, packet.crc)
		}
		packet.timestamp = time.Now()
		return packet, nil
	}

	return d.accept(b)
}

// accept feeds one unstuffed data byte
func (d *Decoder) accept(b byte) (*Packet, error) {
	switch d.state {
	case stateIdle:
		return nil, nil

	case stateLength1:
		d.packet = &Packet{length: uint16(b) << 8}
		d.store(b)
		d.state = stateLength2
		return nil, nil

	case stateLength2:
		d.packet.length |= uint16(b)
		if d.packet.length > MaxPayloadSize {
			length := d.packet.length
			d.Reset()
			return nil, fmt.Errorf("invalid length: %d (max %d)", length, MaxPayloadSize)
		}
		d.packet.cborPayload = make([]byte, 0, d.packet.length)
		d.store(b)
		d.addrBytes = 0
		d.state = stateAddress
		return nil, nil

	case stateAddress:
		d.packet.address |= uint64(b) << (d.addrBytes * 8)
		d.store(b)
		d.addrBytes++
		if d.addrBytes >= AddressSize {
			if d.packet.length == 0 {
				d.state = stateCRC1
			} else {
				d.state = statePayload
			}
		}
		return nil, nil

	case statePayload:
		if d.bufferIndex >= MaxPacketSize-CRCSize {
			d.Reset()
			return nil, fmt.Errorf("buffer overflow: packet exceeds max size")
		}
		d.packet.cborPayload = append(d.packet.cborPayload, b)
		d.store(b)
		if len(d.packet.cborPayload) >= int(d.packet.length) {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.packet.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.packet.crc |= uint16(b)
		d.state = stateEnd
		return nil, nil

	default:
		state := d.state
		d.Reset()
		return nil, fmt.Errorf("unexpected data byte 0x%02X in state %d", b, state)
	}
}

func (d *Decoder) store(b byte) {
	d.buffer[d.bufferIndex] = b
	d.bufferIndex++
}
