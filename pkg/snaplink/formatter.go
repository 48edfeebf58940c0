// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package snaplink

import (
	"fmt"
	"time"
)

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")
	msgType := FormatMessageType(p.Type())

	result := fmt.Sprintf("[%s] %s (0x%02X) addr=%016X len=%d\n", timestamp, msgType, p.Type(), p.address, p.length)
	if err := p.ParseError(); err != nil {
		return result + fmt.Sprintf("  (unparseable payload: %v)\n", err)
	}
	return result + FormatPayloadMap(p)
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	case MsgFrameBegin:
		return "FRAME_BEGIN"
	case MsgFrameChunk:
		return "FRAME_CHUNK"
	case MsgFrameEnd:
		return "FRAME_END"
	case MsgCaptureAborted:
		return "CAPTURE_ABORTED"
	default:
		return "UNKNOWN"
	}
}

// FormatPayloadMap formats the payload based on message type
func FormatPayloadMap(p *Packet) string {
	switch p.Type() {
	case MsgFrameBegin:
		m, err := ParseFrameBegin(p)
		if err != nil {
			return fmt.Sprintf("  (invalid: %v)\n", err)
		}
		return fmt.Sprintf("  Frame: %s, Resolution: %s, Length: %d, Chunks: %d, CRC: 0x%04X, Captured: %s\n",
			m.FrameID, orDash(m.Resolution), m.Length, m.Chunks, m.CRC, m.Captured.Format(time.RFC3339Nano))

	case MsgFrameChunk:
		m, err := ParseFrameChunk(p)
		if err != nil {
			return fmt.Sprintf("  (invalid: %v)\n", err)
		}
		return fmt.Sprintf("  Frame: %s, Chunk: %d, Bytes: %d\n", m.FrameID, m.Index, len(m.Data))

	case MsgFrameEnd:
		m, err := ParseFrameEnd(p)
		if err != nil {
			return fmt.Sprintf("  (invalid: %v)\n", err)
		}
		return fmt.Sprintf("  Frame: %s, Chunks: %d\n", m.FrameID, m.Chunks)

	case MsgCaptureAborted:
		m, err := ParseCaptureAborted(p)
		if err != nil {
			return fmt.Sprintf("  (invalid: %v)\n", err)
		}
		return fmt.Sprintf("  Session: %s, Reason: %s\n", m.SessionID, orDash(m.Reason))
	}

	if p.PayloadMap() == nil {
		return "  (no payload)\n"
	}
	return fmt.Sprintf("  %v\n", p.PayloadMap())
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
