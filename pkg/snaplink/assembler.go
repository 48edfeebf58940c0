// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package snaplink

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/obscura/pkg/jpegscan"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Assembly errors
var (
	ErrUnexpectedChunk = errors.New("chunk outside a frame transfer")
	ErrIncompleteFrame = errors.New("incomplete frame")
	ErrFrameCRC        = errors.New("frame CRC mismatch")
	ErrNoJPEG          = errors.New("frame holds no complete JPEG")
	ErrCaptureAborted  = errors.New("capture aborted on camera")
	ErrFrameTooLarge   = errors.New("frame too large")
)

// Frame is a reassembled JPEG frame
type Frame struct {
	ID         uuid.UUID
	Address    uint64
	Resolution string
	Captured   time.Time
	Received   time.Time
	Data       []byte
}

type pendingFrame struct {
	begin FrameBegin
	next  int
	data  []byte
}

// Assembler rebuilds frames from packets, one transfer per camera address
type Assembler struct {
	pending map[uint64]*pendingFrame
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// NewAssembler creates an empty assembler
func NewAssembler(logger *zap.SugaredLogger) *Assembler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Assembler{
		pending: make(map[uint64]*pendingFrame),
		logger:  logger,
		now:     time.Now,
	}
}

// Pending reports how many transfers are in progress
func (a *Assembler) Pending() int {
	return len(a.pending)
}

// Feed consumes one packet. It returns a frame when a transfer completes and
// verifies, or an error describing why a transfer was dropped.
func (a *Assembler) Feed(p *Packet) (*Frame, error) {
	if err := p.ParseError(); err != nil {
		return nil, err
	}

	switch p.Type() {
	case MsgFrameBegin:
		begin, err := ParseFrameBegin(p)
		if err != nil {
			return nil, err
		}
		var dropped error
		if prev, ok := a.pending[p.Address()]; ok {
			dropped = fmt.Errorf("%w: %s superseded after %d/%d chunks",
				ErrIncompleteFrame, prev.begin.FrameID, prev.next, prev.begin.Chunks)
		}
		a.pending[p.Address()] = &pendingFrame{begin: begin, data: make([]byte, 0, begin.Length)}
		return nil, dropped

	case MsgFrameChunk:
		chunk, err := ParseFrameChunk(p)
		if err != nil {
			return nil, err
		}
		pf, ok := a.pending[p.Address()]
		if !ok || pf.begin.FrameID != chunk.FrameID {
			return nil, fmt.Errorf("%w: frame %s chunk %d", ErrUnexpectedChunk, chunk.FrameID, chunk.Index)
		}
		if chunk.Index != pf.next {
			delete(a.pending, p.Address())
			return nil, fmt.Errorf("%w: frame %s expected chunk %d, got %d",
				ErrIncompleteFrame, chunk.FrameID, pf.next, chunk.Index)
		}
		if len(pf.data)+len(chunk.Data) > pf.begin.Length {
			delete(a.pending, p.Address())
			return nil, fmt.Errorf("%w: frame %s longer than announced %d bytes",
				ErrIncompleteFrame, chunk.FrameID, pf.begin.Length)
		}
		pf.data = append(pf.data, chunk.Data...)
		pf.next++
		return nil, nil

	case MsgFrameEnd:
		end, err := ParseFrameEnd(p)
		if err != nil {
			return nil, err
		}
		pf, ok := a.pending[p.Address()]
		if !ok || pf.begin.FrameID != end.FrameID {
			return nil, fmt.Errorf("%w: FRAME_END for %s", ErrUnexpectedChunk, end.FrameID)
		}
		delete(a.pending, p.Address())
		return a.complete(p.Address(), pf)

	case MsgCaptureAborted:
		ab, err := ParseCaptureAborted(p)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: session %s: %s", ErrCaptureAborted, ab.SessionID, ab.Reason)
	}

	a.logger.Debugw("ignoring packet", "type", FormatMessageType(p.Type()))
	return nil, nil
}

func (a *Assembler) complete(addr uint64, pf *pendingFrame) (*Frame, error) {
	id := pf.begin.FrameID
	if pf.next != pf.begin.Chunks || len(pf.data) != pf.begin.Length {
		return nil, fmt.Errorf("%w: frame %s has %d/%d chunks, %d/%d bytes",
			ErrIncompleteFrame, id, pf.next, pf.begin.Chunks, len(pf.data), pf.begin.Length)
	}
	if crc := CalculateCRC(pf.data); crc != pf.begin.CRC {
		return nil, fmt.Errorf("%w: frame %s expected 0x%04X, got 0x%04X", ErrFrameCRC, id, pf.begin.CRC, crc)
	}
	n, err := jpegscan.Scan(pf.data, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: frame %s: %v", ErrNoJPEG, id, err)
	}
	if n != len(pf.data) {
		a.logger.Warnw("frame has trailing bytes after EOI", "frame", id.String(), "length", len(pf.data), "jpeg", n)
	}

	return &Frame{
		ID:         id,
		Address:    addr,
		Resolution: pf.begin.Resolution,
		Captured:   pf.begin.Captured,
		Received:   a.now(),
		Data:       pf.data[:n],
	}, nil
}
