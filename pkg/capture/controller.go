// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture runs single-shot JPEG captures: arm on a trigger, start the
// capture hardware into a zeroed frame buffer, wait for the frame to settle,
// stop the hardware, find the real frame length and hand the frame to the
// configured sinks.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/obscura/pkg/jpegscan"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSettleDelay is how long the hardware runs before it is stopped
const DefaultSettleDelay = 2 * time.Second

// ErrNotIdle is returned by Capture when a session is already running
var ErrNotIdle = errors.New("capture: controller not idle")

// Hardware is the capture peripheral (DCMI with DMA on the original board)
type Hardware interface {
	// Start begins a single-shot capture into buf
	Start(buf []byte) error
	// Suspend pauses the transfer
	Suspend() error
	// Stop halts the transfer; no writes to buf may happen after it returns
	Stop() error
}

// ErrorReporter is implemented by hardware that latches transfer errors
type ErrorReporter interface {
	Err() error
}

// Transport receives delivered frames. p aliases the frame buffer and is only
// valid during the call.
type Transport interface {
	Send(p []byte) error
}

// AbortNotifier is implemented by transports that report failed captures
type AbortNotifier interface {
	Aborted(session uuid.UUID, reason error) error
}

// Display draws delivered frames at a fixed origin. p aliases the frame
// buffer and is only valid during the call.
type Display interface {
	Draw(x, y int, p []byte) error
}

// Session summarizes one capture
type Session struct {
	ID           uuid.UUID
	Started      time.Time
	Finished     time.Time
	Outcome      State // Delivered or Aborted
	Length       int
	FirstNonZero int
	Err          error // reason for abort
	HardwareErr  error // latched hardware error, informational
	DeliveryErrs []error
}

// Stats counts controller activity
type Stats struct {
	Captures       uint64
	Delivered      uint64
	Aborted        uint64
	Overruns       uint64
	HardwareErrors uint64
	DeliveryErrors uint64
	BytesDelivered uint64
}

// Controller is the capture state machine
type Controller struct {
	hw         Hardware
	fb         *FrameBuffer
	trigger    TriggerSource
	edge       EdgeDetector
	transports []Transport
	display    Display
	displayX   int
	displayY   int
	settle     time.Duration
	capacity   int
	sleep      func(time.Duration)
	now        func() time.Time
	logger     *zap.SugaredLogger

	runMu   sync.Mutex // one capture at a time
	pending *Lease     // lease whose hardware failed to stop
	mu      sync.Mutex
	state   State
	session *Session
	stats   Stats
	onTrans func(from, to State)
}

// Option configures a Controller
type Option func(*Controller)

// WithTrigger sets the polled trigger source
func WithTrigger(t TriggerSource) Option {
	return func(c *Controller) {
		c.trigger = t
	}
}

// WithTransport adds a frame transport
func WithTransport(t Transport) Option {
	return func(c *Controller) {
		if t != nil {
			c.transports = append(c.transports, t)
		}
	}
}

// WithDisplay sets the display sink and the frame origin on it
func WithDisplay(d Display, x, y int) Option {
	return func(c *Controller) {
		c.display = d
		c.displayX = x
		c.displayY = y
	}
}

// WithSettleDelay sets how long the hardware runs before it is stopped
func WithSettleDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.settle = d
		}
	}
}

// WithScanCapacity bounds the frame scan; zero scans the whole buffer
func WithScanCapacity(n int) Option {
	return func(c *Controller) {
		c.capacity = n
	}
}

// WithSleep replaces the settle wait, mainly for tests
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Controller) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithClock replaces time.Now for session timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the controller logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewController creates an idle controller capturing into fb
func NewController(hw Hardware, fb *FrameBuffer, opts ...Option) *Controller {
	c := &Controller{
		hw:       hw,
		fb:       fb,
		settle:   DefaultSettleDelay,
		capacity: jpegscan.DefaultCapacity,
		sleep:    time.Sleep,
		now:      time.Now,
		logger:   zap.NewNop().Sugar(),
		state:    Idle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnTransition registers a hook called after every state change
func (c *Controller) OnTransition(fn func(from, to State)) {
	c.mu.Lock()
	c.onTrans = fn
	c.mu.Unlock()
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the last finished session, or nil
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// Stats returns a snapshot of the counters
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Arm requests a capture. It only has an effect in Idle and reports whether
// the controller was armed.
func (c *Controller) Arm() bool {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return false
	}
	hook := c.setState(Armed)
	c.mu.Unlock()
	hook()
	return true
}

// Poll samples the trigger while idle and runs an armed capture to
// completion. It returns the finished session, or nil if nothing ran.
func (c *Controller) Poll(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.trigger != nil && c.State() == Idle && c.edge.Update(c.trigger.Active()) {
		c.logger.Debug("trigger released, arming")
		c.Arm()
	}
	if c.State() != Armed {
		return nil, nil
	}
	return c.run(), nil
}

// Capture arms and runs one capture immediately
func (c *Controller) Capture(ctx context.Context) (*Session, error) {
	if !c.Arm() {
		return nil, ErrNotIdle
	}
	s, err := c.Poll(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		// another poller picked up the armed capture
		return c.Session(), nil
	}
	return s, nil
}

func (c *Controller) run() *Session {
	s := &Session{ID: uuid.New(), Started: c.now(), FirstNonZero: -1}
	log := c.logger.With("session", s.ID.String())
	c.count(func(st *Stats) { st.Captures++ })

	if err := c.reclaim(log); err != nil {
		return c.abort(log, s, nil, err)
	}

	lease, err := c.fb.Lend()
	if err != nil {
		return c.abort(log, s, nil, err)
	}

	c.transition(Capturing)
	log.Infow("capture started", "buffer", c.fb.Cap())
	if err := lease.Start(c.hw); err != nil {
		frame, stopErr := lease.Stop(c.hw)
		if frame == nil {
			c.pending = lease
		}
		return c.abort(log, s, frame, errors.Join(err, stopErr))
	}

	c.transition(Settling)
	c.sleep(c.settle)

	frame, err := lease.Stop(c.hw)
	if frame == nil {
		c.pending = lease
		return c.abort(log, s, nil, err)
	}
	if err != nil {
		c.hardwareError(log, s, err)
	}
	if rep, ok := c.hw.(ErrorReporter); ok {
		if herr := rep.Err(); herr != nil {
			c.hardwareError(log, s, herr)
		}
	}

	c.transition(Scanning)
	n, err := jpegscan.Scan(frame.Bytes(), c.capacity)
	if err != nil {
		if errors.Is(err, jpegscan.ErrOverrun) {
			c.count(func(st *Stats) { st.Overruns++ })
		}
		return c.abort(log, s, frame, err)
	}

	s.Length = n
	data := frame.Bytes()[:n]
	for _, t := range c.transports {
		if err := t.Send(data); err != nil {
			log.Warnw("frame transport failed", "error", err)
			s.DeliveryErrs = append(s.DeliveryErrs, err)
		}
	}
	if c.display != nil {
		if err := c.display.Draw(c.displayX, c.displayY, data); err != nil {
			log.Warnw("frame display failed", "error", err)
			s.DeliveryErrs = append(s.DeliveryErrs, err)
		}
	}
	s.FirstNonZero = jpegscan.FirstNonZero(frame.Bytes())
	frame.Release()

	s.Outcome = Delivered
	s.Finished = c.now()
	log.Infow("frame delivered", "length", n, "first_non_zero", s.FirstNonZero,
		"elapsed", s.Finished.Sub(s.Started))
	c.count(func(st *Stats) {
		st.Delivered++
		st.BytesDelivered += uint64(n)
		st.DeliveryErrors += uint64(len(s.DeliveryErrs))
	})
	c.finish(s, Delivered)
	return s
}

// reclaim stops the hardware of a lease left over from a failed stop and
// returns its buffer
func (c *Controller) reclaim(log *zap.SugaredLogger) error {
	if c.pending == nil {
		return nil
	}
	frame, err := c.pending.Stop(c.hw)
	if frame == nil {
		return fmt.Errorf("reclaim frame buffer: %w", err)
	}
	if err != nil {
		log.Warnw("reclaimed frame buffer", "error", err)
	}
	frame.Discard()
	frame.Release()
	c.pending = nil
	return nil
}

func (c *Controller) abort(log *zap.SugaredLogger, s *Session, frame *Frame, reason error) *Session {
	if frame != nil {
		frame.Discard()
		frame.Release()
	}
	s.Outcome = Aborted
	s.Err = reason
	s.Finished = c.now()
	log.Warnw("capture aborted", "error", reason)
	for _, t := range c.transports {
		if n, ok := t.(AbortNotifier); ok {
			if err := n.Aborted(s.ID, reason); err != nil {
				log.Warnw("abort notification failed", "error", err)
			}
		}
	}
	c.count(func(st *Stats) { st.Aborted++ })
	c.finish(s, Aborted)
	return s
}

func (c *Controller) hardwareError(log *zap.SugaredLogger, s *Session, err error) {
	log.Warnw("capture hardware error", "error", err)
	s.HardwareErr = errors.Join(s.HardwareErr, err)
	c.count(func(st *Stats) { st.HardwareErrors++ })
}

func (c *Controller) finish(s *Session, end State) {
	c.transition(end)
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	c.transition(Idle)
}

func (c *Controller) count(fn func(*Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}

func (c *Controller) transition(to State) {
	c.mu.Lock()
	hook := c.setState(to)
	c.mu.Unlock()
	hook()
}

// setState must be called with c.mu held; the returned hook runs unlocked
func (c *Controller) setState(to State) func() {
	from := c.state
	c.state = to
	fn := c.onTrans
	return func() {
		if fn != nil {
			fn(from, to)
		}
	}
}
