// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/obscura/pkg/snaplink"
	"github.com/spf13/cobra"
)

var (
	packetTestTimeout int
	packetTestFrame   bool
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test a camera link by waiting for a valid packet",
	Long: `Wait for a valid snaplink packet on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any valid
snaplink packet. It ignores invalid bytes and waits for a complete, valid
packet (passing CRC check).

With --frame it instead waits for a whole frame transfer: FRAME_BEGIN, every
FRAME_CHUNK and FRAME_END, with the frame CRC and JPEG markers verified.
Dropped transfers and aborted captures are reported and the wait continues.

Exit codes:
  0 - Packet received before timeout
  1 - Timeout reached without receiving a valid packet (or frame)
  2 - Connection error

Useful for checking the wiring between a camera rig and the host.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a packet")
	packetTestCmd.Flags().BoolVar(&packetTestFrame, "frame", false, "Wait for a complete verified frame instead of any packet")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Obscura - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	if packetTestFrame {
		fmt.Printf("Waiting for a complete frame...\n\n")
	} else {
		fmt.Printf("Waiting for valid snaplink packet...\n\n")
	}

	decoder := snaplink.NewDecoder()
	assembler := snaplink.NewAssembler(nil)
	buf := make([]byte, 128)

	// Channel for packet reception
	packetChan := make(chan *snaplink.Packet, 1)
	frameChan := make(chan *snaplink.Frame, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		invalidBytes := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				packet, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr != nil {
					// Ignore decode errors, just count invalid bytes
					invalidBytes++
					continue
				}
				if packet == nil {
					continue
				}
				if invalidBytes > 0 {
					fmt.Printf("(skipped %d invalid bytes before sync)\n", invalidBytes)
					invalidBytes = 0
				}
				if !packetTestFrame {
					packetChan <- packet
					return
				}
				frame, err := assembler.Feed(packet)
				if err != nil {
					fmt.Printf("(%v)\n", err)
					continue
				}
				if frame != nil {
					frameChan <- frame
					return
				}
			}
		}
	}()

	// Wait for packet or timeout
	select {
	case packet := <-packetChan:
		fmt.Printf("SUCCESS: Received valid packet\n")
		fmt.Printf("  Type: %s (0x%02X)\n", snaplink.FormatMessageType(packet.Type()), packet.Type())
		fmt.Printf("  Address: 0x%016X\n", packet.Address())
		fmt.Printf("  Length: %d bytes\n", packet.Length())
		fmt.Printf("  CRC: 0x%04X\n", packet.CRC())
		os.Exit(0)

	case frame := <-frameChan:
		fmt.Printf("SUCCESS: Received complete frame\n")
		fmt.Printf("  Frame: %s\n", frame.ID)
		fmt.Printf("  Address: 0x%016X\n", frame.Address)
		fmt.Printf("  Resolution: %s\n", orUnknown(frame.Resolution))
		fmt.Printf("  Size: %d bytes\n", len(frame.Data))
		if !frame.Captured.IsZero() {
			fmt.Printf("  Latency: %s\n", frame.Received.Sub(frame.Captured).Round(time.Millisecond))
		}
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid packet received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}
