// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package snaplink

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sender writes captured frames to a link as FRAME_BEGIN / FRAME_CHUNK /
// FRAME_END packet runs
type Sender struct {
	mu         sync.Mutex
	w          io.Writer
	address    uint64
	resolution string
	chunkSize  int
	now        func() time.Time
	logger     *zap.SugaredLogger
}

// SenderOption configures a Sender
type SenderOption func(*Sender)

// WithAddress sets the camera address stamped on every packet
func WithAddress(addr uint64) SenderOption {
	return func(s *Sender) {
		s.address = addr
	}
}

// WithChunkSize sets the frame bytes per chunk (1..ChunkSize)
func WithChunkSize(n int) SenderOption {
	return func(s *Sender) {
		if n > 0 && n <= ChunkSize {
			s.chunkSize = n
		}
	}
}

// WithSenderLogger sets the sender logger
func WithSenderLogger(l *zap.SugaredLogger) SenderOption {
	return func(s *Sender) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSender creates a sender writing to w
func NewSender(w io.Writer, opts ...SenderOption) *Sender {
	s := &Sender{
		w:         w,
		chunkSize: ChunkSize,
		now:       time.Now,
		logger:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetResolution sets the resolution label sent with following frames
func (s *Sender) SetResolution(res string) {
	s.mu.Lock()
	s.resolution = res
	s.mu.Unlock()
}

// Send transmits one frame. It satisfies capture.Transport.
func (s *Sender) Send(p []byte) error {
	if len(p) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(p))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	chunks := (len(p) + s.chunkSize - 1) / s.chunkSize

	begin := FrameBegin{
		FrameID:    id,
		Resolution: s.resolution,
		Length:     len(p),
		Chunks:     chunks,
		Captured:   s.now(),
		CRC:        CalculateCRC(p),
	}
	if err := s.write(NewFrameBeginPacket(s.address, begin)); err != nil {
		return fmt.Errorf("send FRAME_BEGIN: %w", err)
	}

	for i := 0; i < chunks; i++ {
		start := i * s.chunkSize
		end := min(start+s.chunkSize, len(p))
		chunk := FrameChunk{FrameID: id, Index: i, Data: p[start:end]}
		if err := s.write(NewFrameChunkPacket(s.address, chunk)); err != nil {
			return fmt.Errorf("send FRAME_CHUNK %d/%d: %w", i, chunks, err)
		}
	}

	if err := s.write(NewFrameEndPacket(s.address, FrameEnd{FrameID: id, Chunks: chunks})); err != nil {
		return fmt.Errorf("send FRAME_END: %w", err)
	}

	s.logger.Debugw("frame sent", "frame", id.String(), "length", len(p), "chunks", chunks)
	return nil
}

// Aborted tells the host that a capture produced no frame
func (s *Sender) Aborted(session uuid.UUID, reason error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	return s.write(NewCaptureAbortedPacket(s.address, CaptureAborted{SessionID: session, Reason: msg}))
}

func (s *Sender) write(p *Packet) error {
	data, err := EncodePacketFromValues(p.Address(), p.Type(), p.PayloadMap())
	if err != nil {
		return err
	}
	_, err = s.w.Write(data)
	return err
}

// RawSink writes bare JPEG bytes with no framing
type RawSink struct {
	w io.Writer
}

// NewRawSink creates a raw sink on w
func NewRawSink(w io.Writer) *RawSink {
	return &RawSink{w: w}
}

// Send writes p as-is
func (r *RawSink) Send(p []byte) error {
	_, err := r.w.Write(p)
	return err
}
