// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Thermoquad/obscura/pkg/ov2640"
)

// ErrBufferLeased is returned by Lend while a previous lease is outstanding
var ErrBufferLeased = errors.New("capture: frame buffer already leased")

// BufferSizeFor returns the raw-sized (w*h*3) buffer capacity for res
func BufferSizeFor(res ov2640.Resolution) int {
	return res.Width() * res.Height() * 3
}

// FrameBuffer is the fixed-size capture target. While leased, only the
// hardware may touch its bytes.
type FrameBuffer struct {
	mu     sync.Mutex
	buf    []byte
	leased bool
}

// NewFrameBuffer allocates a buffer of size bytes
func NewFrameBuffer(size int) *FrameBuffer {
	return &FrameBuffer{buf: make([]byte, size)}
}

// Cap returns the buffer capacity in bytes
func (fb *FrameBuffer) Cap() int {
	return len(fb.buf)
}

// Lend zero-fills the buffer and hands it to a new Lease
func (fb *FrameBuffer) Lend() (*Lease, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.leased {
		return nil, ErrBufferLeased
	}
	clear(fb.buf)
	fb.leased = true
	return &Lease{fb: fb}, nil
}

func (fb *FrameBuffer) giveBack() {
	fb.mu.Lock()
	fb.leased = false
	fb.mu.Unlock()
}

// Lease is the hardware's ownership of a FrameBuffer. The bytes are only
// reachable through the Frame returned by Stop.
type Lease struct {
	fb      *FrameBuffer
	started bool
	stopped bool
}

// Start passes the buffer to hw as its single-shot capture target
func (l *Lease) Start(hw Hardware) error {
	if l.started {
		return errors.New("capture: lease already started")
	}
	l.started = true
	return hw.Start(l.fb.buf)
}

// Stop suspends and stops hw, then returns the frame view. A suspend error is
// reported but does not prevent the stop. If Stop fails the buffer stays on
// loan, since the hardware may still write to it.
func (l *Lease) Stop(hw Hardware) (*Frame, error) {
	if l.stopped {
		return nil, errors.New("capture: lease already stopped")
	}
	suspendErr := hw.Suspend()
	if err := hw.Stop(); err != nil {
		return nil, fmt.Errorf("stop capture hardware: %w", errors.Join(err, suspendErr))
	}
	l.stopped = true
	frame := &Frame{fb: l.fb}
	if suspendErr != nil {
		return frame, fmt.Errorf("suspend capture hardware: %w", suspendErr)
	}
	return frame, nil
}

// Frame is the read view of a stopped capture
type Frame struct {
	fb       *FrameBuffer
	released bool
}

// Bytes returns the whole buffer. The slice is invalid after Release.
func (f *Frame) Bytes() []byte {
	if f.released {
		return nil
	}
	return f.fb.buf
}

// Discard zero-fills the buffer
func (f *Frame) Discard() {
	if !f.released {
		clear(f.fb.buf)
	}
}

// Release returns the buffer for the next lease
func (f *Frame) Release() {
	if f.released {
		return
	}
	f.released = true
	f.fb.giveBack()
}
