// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package snaplink

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message builder functions create Packet structs ready for encoding.

// FrameBegin announces a frame transfer
type FrameBegin struct {
	FrameID    uuid.UUID
	Resolution string
	Length     int
	Chunks     int
	Captured   time.Time
	CRC        uint16
}

// FrameChunk carries one slice of frame data
type FrameChunk struct {
	FrameID uuid.UUID
	Index   int
	Data    []byte
}

// FrameEnd closes a frame transfer
type FrameEnd struct {
	FrameID uuid.UUID
	Chunks  int
}

// CaptureAborted reports a capture that produced no frame
type CaptureAborted struct {
	SessionID uuid.UUID
	Reason    string
}

// NewFrameBeginPacket creates a FRAME_BEGIN packet (0x40)
func NewFrameBeginPacket(address uint64, m FrameBegin) *Packet {
	payload := map[int]interface{}{
		keyBeginFrameID:    m.FrameID[:],
		keyBeginResolution: m.Resolution,
		keyBeginLength:     uint64(m.Length),
		keyBeginChunks:     uint64(m.Chunks),
		keyBeginCaptured:   uint64(m.Captured.UnixMilli()),
		keyBeginCRC:        uint64(m.CRC),
	}
	return NewPacketWithPayload(address, MsgFrameBegin, payload)
}

// NewFrameChunkPacket creates a FRAME_CHUNK packet (0x41)
func NewFrameChunkPacket(address uint64, m FrameChunk) *Packet {
	payload := map[int]interface{}{
		keyChunkFrameID: m.FrameID[:],
		keyChunkIndex:   uint64(m.Index),
		keyChunkData:    m.Data,
	}
	return NewPacketWithPayload(address, MsgFrameChunk, payload)
}

// NewFrameEndPacket creates a FRAME_END packet (0x42)
func NewFrameEndPacket(address uint64, m FrameEnd) *Packet {
	payload := map[int]interface{}{
		keyEndFrameID: m.FrameID[:],
		keyEndChunks:  uint64(m.Chunks),
	}
	return NewPacketWithPayload(address, MsgFrameEnd, payload)
}

// NewCaptureAbortedPacket creates a CAPTURE_ABORTED packet (0x43)
func NewCaptureAbortedPacket(address uint64, m CaptureAborted) *Packet {
	payload := map[int]interface{}{
		keyAbortID:     m.SessionID[:],
		keyAbortReason: m.Reason,
	}
	return NewPacketWithPayload(address, MsgCaptureAborted, payload)
}

func getMapUUID(m map[int]interface{}, key int) (uuid.UUID, error) {
	b, ok := GetMapBytes(m, key)
	if !ok {
		return uuid.Nil, fmt.Errorf("missing id at key %d", key)
	}
	id, err := uuid.FromBytes(b)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id at key %d: %w", key, err)
	}
	return id, nil
}

// ParseFrameBegin extracts a FRAME_BEGIN payload
func ParseFrameBegin(p *Packet) (FrameBegin, error) {
	var m FrameBegin
	if p.Type() != MsgFrameBegin {
		return m, fmt.Errorf("not a FRAME_BEGIN packet: 0x%02X", p.Type())
	}
	payload := p.PayloadMap()
	id, err := getMapUUID(payload, keyBeginFrameID)
	if err != nil {
		return m, err
	}
	m.FrameID = id
	m.Resolution, _ = GetMapString(payload, keyBeginResolution)
	length, ok1 := GetMapUint(payload, keyBeginLength)
	chunks, ok2 := GetMapUint(payload, keyBeginChunks)
	crc, ok3 := GetMapUint(payload, keyBeginCRC)
	if !ok1 || !ok2 || !ok3 {
		return m, fmt.Errorf("FRAME_BEGIN missing length, chunk count or CRC")
	}
	if length > MaxFrameSize {
		return m, fmt.Errorf("%w: FRAME_BEGIN length %d exceeds %d", ErrFrameTooLarge, length, MaxFrameSize)
	}
	if chunks > length || chunks*ChunkSize < length {
		return m, fmt.Errorf("FRAME_BEGIN chunk count %d does not fit length %d", chunks, length)
	}
	m.Length = int(length)
	m.Chunks = int(chunks)
	m.CRC = uint16(crc)
	if ms, ok := GetMapUint(payload, keyBeginCaptured); ok {
		m.Captured = time.UnixMilli(int64(ms))
	}
	return m, nil
}

// ParseFrameChunk extracts a FRAME_CHUNK payload
func ParseFrameChunk(p *Packet) (FrameChunk, error) {
	var m FrameChunk
	if p.Type() != MsgFrameChunk {
		return m, fmt.Errorf("not a FRAME_CHUNK packet: 0x%02X", p.Type())
	}
	payload := p.PayloadMap()
	id, err := getMapUUID(payload, keyChunkFrameID)
	if err != nil {
		return m, err
	}
	index, ok := GetMapUint(payload, keyChunkIndex)
	if !ok {
		return m, fmt.Errorf("FRAME_CHUNK missing index")
	}
	data, ok := GetMapBytes(payload, keyChunkData)
	if !ok {
		return m, fmt.Errorf("FRAME_CHUNK missing data")
	}
	return FrameChunk{FrameID: id, Index: int(index), Data: data}, nil
}

// ParseFrameEnd extracts a FRAME_END payload
func ParseFrameEnd(p *Packet) (FrameEnd, error) {
	var m FrameEnd
	if p.Type() != MsgFrameEnd {
		return m, fmt.Errorf("not a FRAME_END packet: 0x%02X", p.Type())
	}
	id, err := getMapUUID(p.PayloadMap(), keyEndFrameID)
	if err != nil {
		return m, err
	}
	chunks, _ := GetMapUint(p.PayloadMap(), keyEndChunks)
	return FrameEnd{FrameID: id, Chunks: int(chunks)}, nil
}

// ParseCaptureAborted extracts a CAPTURE_ABORTED payload
func ParseCaptureAborted(p *Packet) (CaptureAborted, error) {
	var m CaptureAborted
	if p.Type() != MsgCaptureAborted {
		return m, fmt.Errorf("not a CAPTURE_ABORTED packet: 0x%02X", p.Type())
	}
	id, err := getMapUUID(p.PayloadMap(), keyAbortID)
	if err != nil {
		return m, err
	}
	reason, _ := GetMapString(p.PayloadMap(), keyAbortReason)
	return CaptureAborted{SessionID: id, Reason: reason}, nil
}
