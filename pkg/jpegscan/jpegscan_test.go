// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jpegscan

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// ============================================================
// Scan Tests
// ============================================================

func TestScan(t *testing.T) {
	tests := []struct {
		name     string
		buf      []byte
		capacity int
		want     int
		wantErr  error
	}{
		{
			name:     "complete frame",
			buf:      []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9, 0x00, 0x00},
			capacity: 9,
			want:     7,
		},
		{
			name:     "minimal frame",
			buf:      []byte{0xFF, 0xD8, 0xFF, 0xD9},
			capacity: 4,
			want:     4,
		},
		{
			name:     "leading zeros",
			buf:      []byte{0x00, 0x00, 0xFF, 0xD8, 0xAA, 0xFF, 0xD9, 0x00},
			capacity: DefaultCapacity,
			want:     7,
		},
		{
			name:     "end before start is ignored",
			buf:      []byte{0xFF, 0xD9, 0xFF, 0xD8, 0x10, 0xFF, 0xD9},
			capacity: 7,
			want:     7,
		},
		{
			name:     "unaligned pair inside payload ends frame",
			buf:      []byte{0xFF, 0xD8, 0x12, 0xFF, 0xD9, 0x34, 0xFF, 0xD9},
			capacity: 8,
			want:     5,
		},
		{
			name:     "no start marker",
			buf:      make([]byte, 1024),
			capacity: DefaultCapacity,
			wantErr:  ErrOverrun,
		},
		{
			name:     "start without end",
			buf:      append([]byte{0xFF, 0xD8}, make([]byte, 100)...),
			capacity: 100,
			wantErr:  ErrOverrun,
		},
		{
			name:     "end beyond capacity",
			buf:      []byte{0xFF, 0xD8, 0x00, 0x00, 0x00, 0xFF, 0xD9},
			capacity: 5,
			wantErr:  ErrOverrun,
		},
		{
			name:    "empty buffer",
			buf:     nil,
			wantErr: ErrOverrun,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := append([]byte(nil), tt.buf...)
			got, err := Scan(tt.buf, tt.capacity)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Scan() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Scan() = %d, want %d", got, tt.want)
			}
			if !bytes.Equal(before, tt.buf) {
				t.Error("Scan mutated the buffer")
			}
		})
	}
}

func TestScanner_Reset(t *testing.T) {
	var s Scanner
	if _, err := s.Scan([]byte{0xFF, 0xD8, 0x00}, 3); !errors.Is(err, ErrOverrun) {
		t.Fatalf("expected overrun, got %v", err)
	}
	if !s.HeaderFound() {
		t.Error("expected header found")
	}

	s.Reset()
	if s.HeaderFound() || s.Pos() != 0 {
		t.Errorf("Reset left state behind: pos=%d header=%v", s.Pos(), s.HeaderFound())
	}
	n, err := s.Scan([]byte{0xFF, 0xD8, 0xFF, 0xD9}, 4)
	if err != nil || n != 4 {
		t.Errorf("Scan after Reset = %d, %v", n, err)
	}
}

func TestScanner_EndClearsHeader(t *testing.T) {
	buf := []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9, 0x00, 0x00, 0xFF, 0xD9, 0x00}

	var s Scanner
	n, err := s.Scan(buf, len(buf))
	if err != nil || n != 5 {
		t.Fatalf("first Scan = %d, %v, want 5", n, err)
	}
	if s.HeaderFound() {
		t.Error("header still set after frame end")
	}

	// no second start marker: the trailing FF D9 is not a frame
	if n, err := s.Scan(buf, len(buf)); !errors.Is(err, ErrOverrun) {
		t.Errorf("second Scan = %d, %v, want overrun", n, err)
	}

	s.Reset()
	if n, err := s.Scan(buf, len(buf)); err != nil || n != 5 {
		t.Errorf("Scan after Reset = %d, %v, want 5", n, err)
	}
}

func TestScan_EncodedImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 5), 0x80, 0xFF})
		}
	}
	var enc bytes.Buffer
	if err := jpeg.Encode(&enc, img, &jpeg.Options{Quality: 75}); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 64*48*3)
	copy(buf, enc.Bytes())

	n, err := Scan(buf, DefaultCapacity)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if n > enc.Len() {
		t.Fatalf("frame length %d beyond encoded length %d", n, enc.Len())
	}
	if !bytes.Equal(buf[n-2:n], []byte{0xFF, 0xD9}) {
		t.Errorf("frame does not end with EOI: % X", buf[n-2:n])
	}
}

func TestFirstNonZero(t *testing.T) {
	if got := FirstNonZero(make([]byte, 16)); got != -1 {
		t.Errorf("expected -1 for zero buffer, got %d", got)
	}
	if got := FirstNonZero([]byte{0, 0, 0, 7, 0}); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}

// ============================================================
// Fuzz Tests
// ============================================================

func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// TestFuzz_ScanBounds checks the result against the definition on random buffers
func TestFuzz_ScanBounds(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		buf := make([]byte, rng.Intn(256))
		for j := range buf {
			// bias toward marker bytes
			switch rng.Intn(4) {
			case 0:
				buf[j] = 0xFF
			case 1:
				buf[j] = byte(0xD8 + rng.Intn(2))
			default:
				buf[j] = byte(rng.Intn(256))
			}
		}
		capacity := rng.Intn(300)

		n, err := Scan(buf, capacity)
		if err != nil {
			continue
		}
		limit := capacity
		if limit <= 0 || limit > len(buf) {
			limit = len(buf)
		}
		if n < 4 || n > limit {
			t.Fatalf("round %d: length %d outside [4, %d]", i, n, limit)
		}
		if buf[n-2] != 0xFF || buf[n-1] != 0xD9 {
			t.Fatalf("round %d: frame does not end with EOI", i)
		}
		if !bytes.Contains(buf[:n-2], []byte{0xFF, 0xD8}) {
			t.Fatalf("round %d: frame without SOI", i)
		}
	}
}
