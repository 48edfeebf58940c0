// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/Thermoquad/obscura/pkg/snaplink"
	"github.com/google/uuid"
)

// ============================================================
// Test Helpers
// ============================================================

// linkPackets sends frame through a Sender and decodes the link bytes
func linkPackets(t *testing.T, send func(*snaplink.Sender) error) []*snaplink.Packet {
	t.Helper()
	var link bytes.Buffer
	s := snaplink.NewSender(&link, snaplink.WithAddress(3), snaplink.WithChunkSize(4))
	s.SetResolution("320x240")
	if err := send(s); err != nil {
		t.Fatal(err)
	}

	d := snaplink.NewDecoder()
	var packets []*snaplink.Packet
	for _, b := range link.Bytes() {
		p, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if p != nil {
			packets = append(packets, p)
		}
	}
	return packets
}

var logFrame = []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0xFF, 0xD9}

// ============================================================
// Transfer Log Tests
// ============================================================

func TestTransferLog_FrameSummary(t *testing.T) {
	packets := linkPackets(t, func(s *snaplink.Sender) error { return s.Send(logFrame) })

	l := newTransferLog(false)
	var out strings.Builder
	for _, p := range packets {
		out.WriteString(l.log(p))
	}

	got := out.String()
	if !strings.Contains(got, "complete: 320x240, 10 bytes in 3 chunks") {
		t.Errorf("missing frame summary in:\n%s", got)
	}
	if strings.Count(got, "=>") != 1 {
		t.Errorf("expected one summary line in:\n%s", got)
	}
}

func TestTransferLog_ChunksHidden(t *testing.T) {
	packets := linkPackets(t, func(s *snaplink.Sender) error { return s.Send(logFrame) })

	for _, show := range []bool{false, true} {
		l := newTransferLog(show)
		chunkLines := 0
		for _, p := range packets {
			text := l.log(p)
			if p.Type() == snaplink.MsgFrameChunk && text != "" {
				chunkLines++
			}
		}
		want := 0
		if show {
			want = 3
		}
		if chunkLines != want {
			t.Errorf("showChunks=%v: %d chunk packets printed, want %d", show, chunkLines, want)
		}
	}
}

func TestTransferLog_DroppedTransfer(t *testing.T) {
	packets := linkPackets(t, func(s *snaplink.Sender) error { return s.Send(logFrame) })

	l := newTransferLog(false)
	var out strings.Builder
	// skip the second chunk
	for i, p := range packets {
		if i == 2 {
			continue
		}
		out.WriteString(l.log(p))
	}

	got := out.String()
	if !strings.Contains(got, "transfer dropped after 2 chunks") {
		t.Errorf("missing dropped transfer in:\n%s", got)
	}
	if strings.Contains(got, "complete:") {
		t.Errorf("broken transfer reported as complete:\n%s", got)
	}
}

func TestTransferLog_CaptureAborted(t *testing.T) {
	packets := linkPackets(t, func(s *snaplink.Sender) error {
		return s.Aborted(uuid.New(), errors.New("no frame end"))
	})

	l := newTransferLog(false)
	var out strings.Builder
	for _, p := range packets {
		out.WriteString(l.log(p))
	}
	if !strings.Contains(out.String(), "no frame end") {
		t.Errorf("abort reason missing in:\n%s", out.String())
	}
}
