// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package snaplink implements the framed serial link that carries captured
// JPEG frames from a camera node to a host.
//
// Each packet is START, then the byte-stuffed data section (2-byte length,
// 8-byte camera address, CBOR payload [msgType, payloadMap], CRC-16-CCITT),
// then END. A frame travels as FRAME_BEGIN, a run of FRAME_CHUNK packets and
// FRAME_END.
package snaplink

// Protocol framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Packet size limits
const (
	LengthSize     = 2
	AddressSize    = 8
	CRCSize        = 2
	MaxPayloadSize = 1024
	MaxPacketSize  = LengthSize + AddressSize + MaxPayloadSize + CRCSize
	ChunkSize      = 768 // frame bytes per FRAME_CHUNK, leaves room for CBOR overhead
	MaxFrameSize   = 4 << 20
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// AddressBroadcast addresses every host on the link
const AddressBroadcast = 0x0000000000000000

// Message types - Frame transfer (Camera → Host) 0x40-0x4F
const (
	MsgFrameBegin     = 0x40
	MsgFrameChunk     = 0x41
	MsgFrameEnd       = 0x42
	MsgCaptureAborted = 0x43
)

// FRAME_BEGIN payload keys
const (
	keyBeginFrameID    = 0
	keyBeginResolution = 1
	keyBeginLength     = 2
	keyBeginChunks     = 3
	keyBeginCaptured   = 4
	keyBeginCRC        = 5
)

// FRAME_CHUNK payload keys
const (
	keyChunkFrameID = 0
	keyChunkIndex   = 1
	keyChunkData    = 2
)

// FRAME_END / CAPTURE_ABORTED payload keys
const (
	keyEndFrameID  = 0
	keyEndChunks   = 1
	keyAbortID     = 0
	keyAbortReason = 1
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateLength1
	stateLength2
	stateAddress
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)
