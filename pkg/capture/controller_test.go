// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/obscura/pkg/jpegscan"
	"github.com/Thermoquad/obscura/pkg/ov2640"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Test Helpers
// ============================================================

var testFrame = []byte{0x00, 0x00, 0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}

// fakeHardware writes payload into the buffer when started
type fakeHardware struct {
	mu       sync.Mutex
	payload  []byte
	starts   int
	suspends int
	stops    int
	calls    []string
	startErr error
	stopErrs []error // returned by successive Stop calls
	latched  error
	buf      []byte
}

func (h *fakeHardware) Start(buf []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts++
	h.calls = append(h.calls, "start")
	if h.startErr != nil {
		return h.startErr
	}
	h.buf = buf
	copy(buf, h.payload)
	return nil
}

func (h *fakeHardware) Suspend() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.suspends++
	h.calls = append(h.calls, "suspend")
	return nil
}

func (h *fakeHardware) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
	h.calls = append(h.calls, "stop")
	if len(h.stopErrs) > 0 {
		err := h.stopErrs[0]
		h.stopErrs = h.stopErrs[1:]
		return err
	}
	return nil
}

func (h *fakeHardware) Err() error {
	return h.latched
}

type recordingSink struct {
	frames [][]byte
	draws  [][2]int
	err    error
}

func (s *recordingSink) Send(p []byte) error {
	s.frames = append(s.frames, append([]byte(nil), p...))
	return s.err
}

func (s *recordingSink) Draw(x, y int, p []byte) error {
	s.draws = append(s.draws, [2]int{x, y})
	s.frames = append(s.frames, append([]byte(nil), p...))
	return s.err
}

// scriptedTrigger returns one sample per poll
type scriptedTrigger struct {
	samples []bool
	i       int
}

func (t *scriptedTrigger) Active() bool {
	if t.i >= len(t.samples) {
		return false
	}
	v := t.samples[t.i]
	t.i++
	return v
}

func newTestController(hw Hardware, opts ...Option) *Controller {
	opts = append([]Option{WithSleep(func(time.Duration) {})}, opts...)
	return NewController(hw, NewFrameBuffer(64), opts...)
}

// ============================================================
// Capture Flow Tests
// ============================================================

func TestCapture_Delivered(t *testing.T) {
	hw := &fakeHardware{payload: testFrame}
	transport := &recordingSink{}
	display := &recordingSink{}
	c := newTestController(hw, WithTransport(transport), WithDisplay(display, 0, 0))

	var transitions []State
	c.OnTransition(func(from, to State) { transitions = append(transitions, to) })

	s, err := c.Capture(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, Delivered, s.Outcome)
	assert.Equal(t, 9, s.Length)
	assert.Equal(t, 2, s.FirstNonZero)
	assert.NoError(t, s.Err)
	assert.Equal(t, []State{Armed, Capturing, Settling, Scanning, Delivered, Idle}, transitions)
	assert.Equal(t, []string{"start", "suspend", "stop"}, hw.calls)

	require.Len(t, transport.frames, 1)
	assert.Equal(t, testFrame, transport.frames[0])
	require.Len(t, display.draws, 1)
	assert.Equal(t, Idle, c.State())

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Delivered)
	assert.Equal(t, uint64(9), stats.BytesDelivered)
}

func TestCapture_DisplayOrigin(t *testing.T) {
	display := &recordingSink{}
	c := newTestController(&fakeHardware{payload: testFrame}, WithDisplay(display, 100, 60))

	_, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{100, 60}}, display.draws)
}

func TestCapture_AbortedOnOverrun(t *testing.T) {
	hw := &fakeHardware{payload: []byte{0xFF, 0xD8, 0x10, 0x20}}
	transport := &recordingSink{}
	c := newTestController(hw, WithTransport(transport))

	var transitions []State
	c.OnTransition(func(from, to State) { transitions = append(transitions, to) })

	s, err := c.Capture(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Aborted, s.Outcome)
	assert.ErrorIs(t, s.Err, jpegscan.ErrOverrun)
	assert.Empty(t, transport.frames)
	assert.Equal(t, []State{Armed, Capturing, Settling, Scanning, Aborted, Idle}, transitions)
	assert.Equal(t, uint64(1), c.Stats().Overruns)

	// discarded frame is zero-filled
	assert.Equal(t, -1, jpegscan.FirstNonZero(hw.buf))
}

func TestCapture_AbortedOnStartError(t *testing.T) {
	hw := &fakeHardware{startErr: errors.New("dma busy")}
	c := newTestController(hw)

	s, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Aborted, s.Outcome)
	assert.ErrorIs(t, s.Err, hw.startErr)
	assert.Equal(t, 1, hw.stops, "hardware must be stopped after a failed start")

	// buffer is usable again
	hw.startErr = nil
	hw.payload = testFrame
	s, err = c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Delivered, s.Outcome)
}

func TestCapture_RecoversAfterStopFailure(t *testing.T) {
	stopErr := errors.New("stop timed out")
	hw := &fakeHardware{payload: testFrame, stopErrs: []error{stopErr}}
	sink := &recordingSink{}
	c := newTestController(hw, WithTransport(sink))

	s, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Aborted, s.Outcome)
	assert.ErrorIs(t, s.Err, stopErr)
	assert.Equal(t, Idle, c.State())

	s, err = c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Delivered, s.Outcome, "session error: %v", s.Err)
	assert.Equal(t, 2, hw.starts)
	require.Len(t, sink.frames, 1)
	assert.Equal(t, testFrame, sink.frames[0])
}

func TestCapture_StopStillFailing(t *testing.T) {
	stopErr := errors.New("stop timed out")
	hw := &fakeHardware{payload: testFrame, stopErrs: []error{stopErr, stopErr}}
	c := newTestController(hw)

	_, err := c.Capture(context.Background())
	require.NoError(t, err)

	// the reclaim attempt fails, so the hardware is not started again
	s, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Aborted, s.Outcome)
	assert.ErrorIs(t, s.Err, stopErr)
	assert.Equal(t, 1, hw.starts)

	s, err = c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Delivered, s.Outcome)
	assert.Equal(t, 2, hw.starts)
}

func TestCapture_HardwareErrorIsInformational(t *testing.T) {
	hw := &fakeHardware{payload: testFrame, latched: errors.New("dcmi overrun")}
	c := newTestController(hw)

	s, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Delivered, s.Outcome)
	assert.ErrorIs(t, s.HardwareErr, hw.latched)
	assert.Equal(t, uint64(1), c.Stats().HardwareErrors)
}

func TestCapture_DeliveryErrorsDoNotAbort(t *testing.T) {
	failing := &recordingSink{err: errors.New("link down")}
	healthy := &recordingSink{}
	c := newTestController(&fakeHardware{payload: testFrame}, WithTransport(failing), WithTransport(healthy))

	s, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Delivered, s.Outcome)
	assert.Len(t, s.DeliveryErrs, 1)
	assert.Len(t, healthy.frames, 1)
}

func TestCapture_SettleDelay(t *testing.T) {
	var slept []time.Duration
	c := NewController(&fakeHardware{payload: testFrame}, NewFrameBuffer(32),
		WithSettleDelay(50*time.Millisecond),
		WithSleep(func(d time.Duration) { slept = append(slept, d) }))

	_, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{50 * time.Millisecond}, slept)
}

func TestCapture_ScanCapacity(t *testing.T) {
	payload := make([]byte, 40)
	copy(payload, []byte{0xFF, 0xD8})
	copy(payload[30:], []byte{0xFF, 0xD9})
	c := newTestController(&fakeHardware{payload: payload}, WithScanCapacity(16))

	s, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Aborted, s.Outcome)
	assert.ErrorIs(t, s.Err, jpegscan.ErrOverrun)
}

// ============================================================
// Exclusivity Tests
// ============================================================

func TestArm_NoOpWhenNotIdle(t *testing.T) {
	hw := &fakeHardware{payload: testFrame}
	c := newTestController(hw)

	assert.True(t, c.Arm())
	assert.False(t, c.Arm())
	assert.Equal(t, Armed, c.State())

	s, err := c.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)

	s, err = c.Poll(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, 1, hw.starts, "exactly one hardware start per session")
}

func TestArm_DuringCapture(t *testing.T) {
	hw := &fakeHardware{payload: testFrame}
	c := newTestController(hw)

	var rearmed []bool
	c.OnTransition(func(from, to State) {
		if to == Settling {
			rearmed = append(rearmed, c.Arm())
		}
	})

	_, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, rearmed)
	assert.Equal(t, 1, hw.starts)
}

func TestArm_Concurrent(t *testing.T) {
	hw := &fakeHardware{payload: testFrame}
	c := newTestController(hw)

	var wg sync.WaitGroup
	var mu sync.Mutex
	armed := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Arm() {
				mu.Lock()
				armed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, armed)
}

func TestCapture_NotIdle(t *testing.T) {
	c := newTestController(&fakeHardware{payload: testFrame})
	require.True(t, c.Arm())
	_, err := c.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNotIdle)
}

// ============================================================
// Trigger Tests
// ============================================================

func TestPoll_ArmsOnReleaseAfterPress(t *testing.T) {
	hw := &fakeHardware{payload: testFrame}
	trigger := &scriptedTrigger{samples: []bool{false, true, true, true, true, false, false, false}}
	c := newTestController(hw, WithTrigger(trigger))

	var sessions []int
	for i := range trigger.samples {
		s, err := c.Poll(context.Background())
		require.NoError(t, err)
		if s != nil {
			sessions = append(sessions, i)
		}
	}

	assert.Equal(t, []int{5}, sessions, "capture runs exactly once, on the release")
	assert.Equal(t, 1, hw.starts)
}

func TestPoll_Canceled(t *testing.T) {
	c := newTestController(&fakeHardware{payload: testFrame})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.True(t, c.Arm())

	_, err := c.Poll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Armed, c.State())
}

func TestEdgeDetector(t *testing.T) {
	var d EdgeDetector
	samples := []bool{false, true, false, false, true, true, false, true}
	want := []bool{false, false, true, false, false, false, true, false}
	for i, s := range samples {
		assert.Equal(t, want[i], d.Update(s), "sample %d", i)
	}
	assert.True(t, d.Pressed())
}

// ============================================================
// Buffer Tests
// ============================================================

func TestFrameBuffer_LeaseLifecycle(t *testing.T) {
	fb := NewFrameBuffer(8)
	hw := &fakeHardware{payload: []byte{1, 2, 3}}

	lease, err := fb.Lend()
	require.NoError(t, err)

	_, err = fb.Lend()
	assert.ErrorIs(t, err, ErrBufferLeased)

	require.NoError(t, lease.Start(hw))
	assert.Error(t, lease.Start(hw))

	frame, err := lease.Stop(hw)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 0, 0, 0, 0, 0}, frame.Bytes())

	frame.Release()
	assert.Nil(t, frame.Bytes())

	// next lease starts zeroed
	lease, err = fb.Lend()
	require.NoError(t, err)
	hw.payload = nil
	require.NoError(t, lease.Start(hw))
	frame, err = lease.Stop(hw)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 8), frame.Bytes())
}

func TestBufferSizeFor(t *testing.T) {
	assert.Equal(t, 160*120*3, BufferSizeFor(ov2640.Res160x120))
	assert.Equal(t, 640*480*3, BufferSizeFor(ov2640.Res640x480))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "SETTLING", Settling.String())
	assert.Equal(t, "UNKNOWN(99)", State(99).String())
}

type notifyingSink struct {
	recordingSink
	aborted []uuid.UUID
}

func (s *notifyingSink) Aborted(id uuid.UUID, reason error) error {
	s.aborted = append(s.aborted, id)
	return nil
}

func TestCapture_AbortNotified(t *testing.T) {
	sink := &notifyingSink{}
	c := newTestController(&fakeHardware{}, WithTransport(sink))

	s, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Aborted, s.Outcome)
	assert.Equal(t, []uuid.UUID{s.ID}, sink.aborted)
	assert.Empty(t, sink.frames)
}
