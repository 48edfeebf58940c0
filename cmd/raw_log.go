// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/obscura/pkg/snaplink"
	"github.com/spf13/cobra"
)

var rawLogChunks bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display the link packet log in human-readable format",
	Long: `Continuously decode and display snaplink packets as they arrive.

Each packet is shown with timestamp, message type, camera address and decoded
payload fields. FRAME_CHUNK packets are counted rather than printed unless
--chunks is set. Every finished transfer gets a summary line with the frame ID,
resolution, size and chunk count, or the reason it was dropped.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogChunks, "chunks", false, "Print every FRAME_CHUNK packet")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Obscura - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := snaplink.NewDecoder()
	transfers := newTransferLog(rawLogChunks)
	buf := make([]byte, 512)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if err == ErrConnectionClosed {
				logger.Infow("connection closed")
				return nil
			}
			logger.Warnw("read error", "error", err)
			continue
		}

		for i := 0; i < n; i++ {
			packet, err := decoder.DecodeByte(buf[i])
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if packet != nil {
				fmt.Print(transfers.log(packet))
			}
		}
	}
}

// transferLog formats packets and follows frame transfers through an Assembler
type transferLog struct {
	asm        *snaplink.Assembler
	showChunks bool
	chunks     map[uint64]int // chunks seen per camera address
}

func newTransferLog(showChunks bool) *transferLog {
	return &transferLog{
		asm:        snaplink.NewAssembler(nil),
		showChunks: showChunks,
		chunks:     make(map[uint64]int),
	}
}

// log returns the text printed for one packet
func (l *transferLog) log(p *snaplink.Packet) string {
	addr := p.Address()
	seen := l.chunks[addr]

	var out string
	switch p.Type() {
	case snaplink.MsgFrameBegin:
		l.chunks[addr] = 0
		out = snaplink.FormatPacket(p)
	case snaplink.MsgFrameChunk:
		seen++
		l.chunks[addr] = seen
		if l.showChunks {
			out = snaplink.FormatPacket(p)
		}
	default:
		out = snaplink.FormatPacket(p)
	}

	frame, err := l.asm.Feed(p)
	switch {
	case err != nil:
		out += fmt.Sprintf("  => transfer dropped after %d chunks: %v\n", seen, err)
		if p.Type() != snaplink.MsgFrameBegin {
			delete(l.chunks, addr)
		}
	case frame != nil:
		out += fmt.Sprintf("  => frame %s complete: %s, %d bytes in %d chunks\n",
			frame.ID, orUnknown(frame.Resolution), len(frame.Data), seen)
		delete(l.chunks, addr)
	}
	return out
}
