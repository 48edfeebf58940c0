// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package snaplink

import (
	"encoding/binary"
	"fmt"
)

// Encoder encodes snaplink packets for transmission.
// Handles CBOR encoding, byte stuffing, and CRC calculation.
type Encoder struct{}

// NewEncoder creates a new packet encoder
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode encodes a Packet to wire format
func (e *Encoder) Encode(p *Packet) ([]byte, error) {
	return EncodePacketFromValues(p.Address(), p.Type(), p.PayloadMap())
}

// EncodePacketFromValues creates a complete wire-formatted packet, including
// framing and byte stuffing.
func EncodePacketFromValues(address uint64, msgType uint8, payloadMap map[int]interface{}) ([]byte, error) {
	cborPayload, err := encodeCBORPayload(msgType, payloadMap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR payload: %w", err)
	}

	if len(cborPayload) > MaxPayloadSize {
		return nil, fmt.Errorf("CBOR payload too large: %d bytes (max %d)", len(cborPayload), MaxPayloadSize)
	}

	// length (big-endian) + address (little-endian) + CBOR payload
	data := make([]byte, LengthSize+AddressSize+len(cborPayload), LengthSize+AddressSize+len(cborPayload)+CRCSize)
	binary.BigEndian.PutUint16(data[0:2], uint16(len(cborPayload)))
	binary.LittleEndian.PutUint64(data[2:10], address)
	copy(data[10:], cborPayload)

	crc := CalculateCRC(data)
	data = append(data, byte(crc>>8), byte(crc&0xFF))

	stuffed := stuffBytes(data)

	packet := make([]byte, 0, len(stuffed)+2)
	packet = append(packet, StartByte)
	packet = append(packet, stuffed...)
	packet = append(packet, EndByte)

	return packet, nil
}

// stuffBytes replaces START, END and ESC with ESC + (byte XOR EscXor)
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)+len(data)/8)
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}
	return result
}

// UnstuffBytes removes byte stuffing from escaped data
func UnstuffBytes(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))
	escapeNext := false

	for _, b := range data {
		if escapeNext {
			result = append(result, b^EscXor)
			escapeNext = false
		} else if b == EscByte {
			escapeNext = true
		} else {
			result = append(result, b)
		}
	}

	if escapeNext {
		return nil, fmt.Errorf("incomplete escape sequence at end of data")
	}

	return result, nil
}
