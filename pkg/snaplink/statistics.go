// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package snaplink

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Statistics tracks link packet and frame statistics
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Packet counters
	TotalPackets uint64
	ValidPackets uint64
	CRCErrors    uint64
	DecodeErrors uint64

	// Frame counters
	FramesReceived  uint64
	FramesDropped   uint64
	FrameCRCErrors  uint64
	CapturesAborted uint64
	FrameBytes      uint64

	frameSizes []float64

	// Rates (calculated)
	PacketRate float64 // packets/sec
	FrameRate  float64 // frames/sec
	ErrorRate  float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records one decoded packet or decode failure
func (s *Statistics) Update(packet *Packet, decodeErr error) {
	s.TotalPackets++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrCRCMismatch) {
			s.CRCErrors++
		} else {
			s.DecodeErrors++
		}
		return
	}
	if packet != nil && packet.ParseError() != nil {
		s.DecodeErrors++
		return
	}
	s.ValidPackets++
}

// RecordFrame records a completed frame
func (s *Statistics) RecordFrame(f *Frame) {
	s.FramesReceived++
	s.FrameBytes += uint64(len(f.Data))
	s.frameSizes = append(s.frameSizes, float64(len(f.Data)))
}

// RecordFrameError records a dropped transfer or a camera-side abort
func (s *Statistics) RecordFrameError(err error) {
	switch {
	case errors.Is(err, ErrCaptureAborted):
		s.CapturesAborted++
	case errors.Is(err, ErrFrameCRC):
		s.FrameCRCErrors++
		s.FramesDropped++
	default:
		s.FramesDropped++
	}
}

// FrameSize returns the mean and standard deviation of received frame sizes
func (s *Statistics) FrameSize() (mean, stddev float64) {
	if len(s.frameSizes) == 0 {
		return 0, 0
	}
	if len(s.frameSizes) == 1 {
		return s.frameSizes[0], 0
	}
	return stat.MeanStdDev(s.frameSizes, nil)
}

// CalculateRates calculates packet, frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PacketRate = float64(s.TotalPackets) / elapsed
		s.FrameRate = float64(s.FramesReceived) / elapsed
		s.ErrorRate = float64(s.CRCErrors+s.DecodeErrors+s.FramesDropped) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, crcErrorPercent, decodeErrorPercent float64
	if s.TotalPackets > 0 {
		validPercent = float64(s.ValidPackets) * 100.0 / float64(s.TotalPackets)
		crcErrorPercent = float64(s.CRCErrors) * 100.0 / float64(s.TotalPackets)
		decodeErrorPercent = float64(s.DecodeErrors) * 100.0 / float64(s.TotalPackets)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Packets:   %8d\n", s.TotalPackets)
	result += fmt.Sprintf("Valid Packets:   %8d (%.1f%%)\n", s.ValidPackets, validPercent)
	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, crcErrorPercent)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, decodeErrorPercent)
	}

	result += fmt.Sprintf("Frames:          %8d\n", s.FramesReceived)
	if s.FramesDropped > 0 {
		result += fmt.Sprintf("Frames Dropped:  %8d\n", s.FramesDropped)
		if s.FrameCRCErrors > 0 {
			result += fmt.Sprintf("  Frame CRC:        %5d\n", s.FrameCRCErrors)
		}
	}
	if s.CapturesAborted > 0 {
		result += fmt.Sprintf("Camera Aborts:   %8d\n", s.CapturesAborted)
	}
	if s.FramesReceived > 0 {
		mean, stddev := s.FrameSize()
		result += fmt.Sprintf("Frame Size:      %8.0f bytes (sd %.0f)\n", mean, stddev)
	}

	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", s.PacketRate)
	result += fmt.Sprintf("Frame Rate:      %8.2f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
