// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package jpegscan finds the encoded length of a JPEG frame inside a larger,
// zero-filled capture buffer.
//
// The scan walks every adjacent byte pair once. A start-of-image marker
// (FF D8) arms the scanner; the first end-of-image marker (FF D9) after that
// ends the frame. Pairs are matched at any offset, so entropy-coded data that
// happens to contain FF D9 ends the frame early, exactly as the capture
// firmware did.
package jpegscan

import "errors"

// JPEG markers
const (
	MarkerPrefix = 0xFF
	MarkerSOI    = 0xD8
	MarkerEOI    = 0xD9
)

// DefaultCapacity is the scan bound used by the capture firmware
const DefaultCapacity = 65535

// ErrOverrun means no complete frame was found within the scan bound
var ErrOverrun = errors.New("jpegscan: no frame end within capacity")

// Scanner holds the state of one scan
type Scanner struct {
	pos         int
	headerFound bool
}

// Reset clears the scanner for a new buffer
func (s *Scanner) Reset() {
	s.pos = 0
	s.headerFound = false
}

// Pos returns the index of the next pair to examine
func (s *Scanner) Pos() int {
	return s.pos
}

// HeaderFound reports whether a start marker has been seen
func (s *Scanner) HeaderFound() bool {
	return s.headerFound
}

// Scan returns the frame length (index just past FF D9) within the first
// capacity bytes of buf. capacity is clamped to len(buf); zero or less scans
// the whole buffer. A found frame end clears the start marker, so a second
// Scan on the same buffer needs a new FF D8.
func (s *Scanner) Scan(buf []byte, capacity int) (int, error) {
	if capacity > len(buf) || capacity <= 0 {
		capacity = len(buf)
	}

	for ; s.pos+1 < capacity; s.pos++ {
		if buf[s.pos] != MarkerPrefix {
			continue
		}
		switch buf[s.pos+1] {
		case MarkerSOI:
			s.headerFound = true
		case MarkerEOI:
			if s.headerFound {
				n := s.pos + 2
				s.pos = n
				s.headerFound = false
				return n, nil
			}
		}
	}
	return 0, ErrOverrun
}

// Scan is a one-shot scan of buf
func Scan(buf []byte, capacity int) (int, error) {
	var s Scanner
	return s.Scan(buf, capacity)
}

// FirstNonZero returns the index of the first non-zero byte, or -1
func FirstNonZero(buf []byte) int {
	for i, b := range buf {
		if b != 0 {
			return i
		}
	}
	return -1
}
