// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"
)

// DefaultFrameDelay is how long after Start the simulated frame lands in the buffer
const DefaultFrameDelay = 40 * time.Millisecond

// ErrDMAOverrun is latched when a frame does not fit the buffer
var ErrDMAOverrun = errors.New("sim: frame larger than capture buffer")

// Camera simulates DCMI snapshot capture with DMA into the frame buffer
type Camera struct {
	sensor     *Sensor
	frameDelay time.Duration
	quality    int
	dropEOI    bool

	mu        sync.Mutex
	running   bool
	suspended bool
	stop      chan struct{}
	done      chan struct{}
	latched   error
	frames    int
	transfers int
}

// CameraOption configures a Camera
type CameraOption func(*Camera)

// WithFrameDelay sets the delay between Start and the frame write
func WithFrameDelay(d time.Duration) CameraOption {
	return func(c *Camera) {
		c.frameDelay = d
	}
}

// WithQuality sets the JPEG quality (1-100)
func WithQuality(q int) CameraOption {
	return func(c *Camera) {
		if q >= 1 && q <= 100 {
			c.quality = q
		}
	}
}

// WithDroppedEOI truncates every frame before its end marker
func WithDroppedEOI(drop bool) CameraOption {
	return func(c *Camera) {
		c.dropEOI = drop
	}
}

// NewCamera creates capture hardware that images at sensor's output size
func NewCamera(sensor *Sensor, opts ...CameraOption) *Camera {
	c := &Camera{
		sensor:     sensor,
		frameDelay: DefaultFrameDelay,
		quality:    75,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins a single-shot capture into buf
func (c *Camera) Start(buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("sim: capture already running")
	}
	c.running = true
	c.suspended = false
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.frames++
	go c.transfer(buf, c.frames, c.stop, c.done)
	return nil
}

func (c *Camera) transfer(buf []byte, seq int, stop, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(c.frameDelay)
	defer timer.Stop()
	select {
	case <-stop:
		return
	case <-timer.C:
	}
	defer c.countTransfer()

	c.mu.Lock()
	suspended := c.suspended
	c.mu.Unlock()
	if suspended {
		return
	}

	w, h := c.sensor.OutputSize()
	if w == 0 || h == 0 {
		c.latch(errors.New("sim: sensor output size not configured"))
		return
	}
	frame, err := TestPattern(w, h, seq, c.quality)
	if err != nil {
		c.latch(err)
		return
	}
	if c.dropEOI {
		frame = frame[:len(frame)-2]
	}
	if len(frame) > len(buf) {
		c.latch(fmt.Errorf("%w: %d > %d bytes", ErrDMAOverrun, len(frame), len(buf)))
	}
	copy(buf, frame)
}

func (c *Camera) countTransfer() {
	c.mu.Lock()
	c.transfers++
	c.mu.Unlock()
}

// Transfers returns how many started captures reached the frame write point
func (c *Camera) Transfers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transfers
}

func (c *Camera) latch(err error) {
	c.mu.Lock()
	c.latched = errors.Join(c.latched, err)
	c.mu.Unlock()
}

// Suspend pauses the transfer; a frame not yet written is lost
func (c *Camera) Suspend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suspended = true
	return nil
}

// Stop halts the transfer and waits until no more buffer writes can happen
func (c *Camera) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	stop, done := c.stop, c.done
	c.mu.Unlock()

	close(stop)
	<-done
	return nil
}

// Err returns and clears the latched transfer error
func (c *Camera) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.latched
	c.latched = nil
	return err
}

// TestPattern encodes a colour-bar frame with a band that moves with seq
func TestPattern(width, height, seq, quality int) ([]byte, error) {
	bars := []color.RGBA{
		{0xC0, 0xC0, 0xC0, 0xFF}, {0xC0, 0xC0, 0x00, 0xFF}, {0x00, 0xC0, 0xC0, 0xFF},
		{0x00, 0xC0, 0x00, 0xFF}, {0xC0, 0x00, 0xC0, 0xFF}, {0xC0, 0x00, 0x00, 0xFF},
		{0x00, 0x00, 0xC0, 0xFF},
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	band := (seq * 8) % height
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if y >= band && y < band+height/10 {
				img.SetRGBA(x, y, color.RGBA{0xFF, 0xFF, 0xFF, 0xFF})
				continue
			}
			img.SetRGBA(x, y, bars[x*len(bars)/width])
		}
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode test pattern: %w", err)
	}
	return out.Bytes(), nil
}
