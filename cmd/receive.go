// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Thermoquad/obscura/pkg/framestore"
	"github.com/Thermoquad/obscura/pkg/snaplink"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	receiveOutDir   string
	receiveDatabase string
	showAll         bool
	statsInterval   int
	useTUI          bool
)

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Receive frames from a camera link",
	Long: `Decode snaplink packets from a serial or WebSocket link, reassemble frames
and save them.

Each frame is checked against the length, chunk count and CRC announced in
FRAME_BEGIN and must hold a complete JPEG (FF D8 ... FF D9). Dropped transfers,
camera-side aborts, CRC errors and decode failures are counted and reported.

By default only errors and completed frames are displayed. Use --show-all to
display every packet.`,
	RunE: runReceive,
}

func init() {
	rootCmd.AddCommand(receiveCmd)
	receiveCmd.Flags().StringVarP(&receiveOutDir, "out", "o", "", "Write received frames to this directory")
	receiveCmd.Flags().StringVar(&receiveDatabase, "db", "", "Store received frames in this SQLite database")
	receiveCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all packets (not just errors and frames)")
	receiveCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	receiveCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

// linkEvent is one result of feeding link bytes through the decoder and assembler
type linkEvent struct {
	packet    *snaplink.Packet
	decodeErr error
	frame     *snaplink.Frame
	frameErr  error
	saved     string
}

// frameSaver writes reassembled frames to a directory and/or a frame store
type frameSaver struct {
	dir   string
	store *framestore.Store
}

func (s *frameSaver) save(f *snaplink.Frame) (string, error) {
	var where string
	if s.dir != "" {
		name := filepath.Join(s.dir, fmt.Sprintf("%016X_%s.jpg", f.Address, f.ID))
		if err := os.WriteFile(name, f.Data, 0o644); err != nil {
			return "", err
		}
		where = name
	}
	if s.store != nil {
		err := s.store.Save(context.Background(), framestore.Record{
			ID:         f.ID,
			CapturedAt: f.Captured,
			Resolution: f.Resolution,
			Source:     fmt.Sprintf("link:%016X", f.Address),
			Data:       f.Data,
		})
		if err != nil {
			return where, err
		}
		if where == "" {
			where = "frame store"
		}
	}
	return where, nil
}

// linkReader decodes a connection into link events until the connection fails
type linkReader struct {
	conn      Connection
	decoder   *snaplink.Decoder
	assembler *snaplink.Assembler
	saver     *frameSaver
	logger    *zap.SugaredLogger
}

func newLinkReader(conn Connection, saver *frameSaver, log *zap.SugaredLogger) *linkReader {
	return &linkReader{
		conn:      conn,
		decoder:   snaplink.NewDecoder(),
		assembler: snaplink.NewAssembler(log),
		saver:     saver,
		logger:    log,
	}
}

// run reads until the connection closes, calling emit for each event.
// Decode errors before the first valid packet are only counted; onSync
// reports how many bytes were skipped.
func (lr *linkReader) run(emit func(linkEvent), onSync func(skipped int)) error {
	buf := make([]byte, 512)
	synchronized := false
	invalidBytesBeforeSync := 0

	for {
		n, err := lr.conn.Read(buf)
		if err != nil {
			if err == ErrConnectionClosed {
				return nil
			}
			lr.logger.Debugw("read error", "error", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		for i := 0; i < n; i++ {
			packet, decodeErr := lr.decoder.DecodeByte(buf[i])
			if decodeErr != nil {
				if synchronized {
					emit(linkEvent{decodeErr: decodeErr})
				} else {
					invalidBytesBeforeSync++
				}
				continue
			}
			if packet == nil {
				continue
			}
			if !synchronized {
				synchronized = true
				onSync(invalidBytesBeforeSync)
			}

			ev := linkEvent{packet: packet}
			ev.frame, ev.frameErr = lr.assembler.Feed(packet)
			if ev.frame != nil && lr.saver != nil {
				ev.saved, ev.frameErr = lr.saver.save(ev.frame)
			}
			emit(ev)
		}
	}
}

func runReceive(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	saver := &frameSaver{dir: receiveOutDir}
	if saver.dir != "" {
		if err := os.MkdirAll(saver.dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if receiveDatabase != "" {
		store, err := framestore.Open(receiveDatabase)
		if err != nil {
			return err
		}
		defer store.Close()
		saver.store = store
	}

	if useTUI {
		return runMonitorTUI(conn, connInfo, saver)
	}
	return runReceiveText(conn, connInfo, saver)
}

// printLinkEvent prints one event in text mode
func printLinkEvent(ev linkEvent, stats *snaplink.Statistics) {
	timestamp := time.Now().Format("15:04:05.000")

	if ev.decodeErr != nil {
		stats.Update(nil, ev.decodeErr)
		fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n\n", timestamp, ev.decodeErr)
		return
	}

	stats.Update(ev.packet, nil)
	if showAll {
		fmt.Print(snaplink.FormatPacket(ev.packet))
	}

	switch {
	case ev.frame != nil && ev.frameErr == nil:
		stats.RecordFrame(ev.frame)
		fmt.Printf("[%s] \033[1;32mFRAME:\033[0m %s %s %d bytes from %016X",
			timestamp, ev.frame.ID, orUnknown(ev.frame.Resolution), len(ev.frame.Data), ev.frame.Address)
		if ev.saved != "" {
			fmt.Printf(" -> %s", ev.saved)
		}
		fmt.Printf("\n\n")

	case ev.frame != nil:
		stats.RecordFrame(ev.frame)
		fmt.Printf("[%s] \033[1;33mSAVE FAILED:\033[0m %s: %v\n\n", timestamp, ev.frame.ID, ev.frameErr)

	case ev.frameErr != nil:
		stats.RecordFrameError(ev.frameErr)
		fmt.Printf("[%s] \033[1;33mFRAME DROPPED:\033[0m %v\n\n", timestamp, ev.frameErr)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "?x?"
	}
	return s
}

// runReceiveText runs the receiver in text mode
func runReceiveText(conn Connection, connInfo string, saver *frameSaver) error {
	fmt.Printf("Obscura - Receive\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All packets\n")
	} else {
		fmt.Printf("Mode: Frames and errors\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := snaplink.NewStatistics()
	events := make(chan linkEvent, 64)
	done := make(chan error, 1)

	reader := newLinkReader(conn, saver, logger.Named("link"))
	go func() {
		done <- reader.run(
			func(ev linkEvent) { events <- ev },
			func(skipped int) {
				if skipped > 0 {
					fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", skipped)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}
			})
	}()

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case ev := <-events:
			printLinkEvent(ev, stats)

		case err := <-done:
			// drain what the reader queued before it stopped
			for len(events) > 0 {
				printLinkEvent(<-events, stats)
			}
			fmt.Printf("Connection closed\n\n")
			fmt.Print(stats.String())
			return err

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}

// runMonitorTUI runs the receiver with the terminal UI
func runMonitorTUI(conn Connection, connInfo string, saver *frameSaver) error {
	m := initialMonitorModel(connInfo, showAll)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// the TUI owns the terminal; reader logs are dropped
	reader := newLinkReader(conn, saver, zap.NewNop().Sugar())
	go func() {
		_ = reader.run(
			func(ev linkEvent) { p.Send(linkEventMsg(ev)) },
			func(skipped int) { p.Send(syncMsg{invalidBytes: skipped}) })
		p.Send(connectionLostMsg{})
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
