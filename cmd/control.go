// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/obscura/pkg/capture"
	"github.com/Thermoquad/obscura/pkg/ov2640"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for operating a camera rig",
	Long: `Operate a camera rig from an interactive terminal UI.

Features:
  - Output mode selection from the supported resolutions
  - Brightness, contrast, saturation, effect and light mode adjustment
  - Manual captures, plus the trigger button when --trigger-pin is set
  - Live capture state, session results and statistics
  - Event log

Frames go to the same sinks as the capture command (--out, --db, --link,
--preview).`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().StringVarP(&captureOutDir, "out", "o", "", "Write frames to this directory (default from config)")
	controlCmd.Flags().StringVar(&captureDatabase, "db", "", "Store frames in this SQLite database (default from config)")
	controlCmd.Flags().BoolVar(&captureLink, "link", false, "Send frames over the serial or WebSocket link")
	controlCmd.Flags().BoolVar(&captureRaw, "raw", false, "Send bare JPEG bytes instead of snaplink packets")
	controlCmd.Flags().Uint64Var(&captureAddress, "address", 1, "Camera address on the link")
	controlCmd.Flags().StringVar(&capturePreview, "preview", "", "Keep the latest frame in this file")
}

// rigRequest is work for the rig goroutine
type rigRequest struct {
	label   string
	apply   func(ctx context.Context) ov2640.ApplyReport
	mode    *ov2640.Resolution
	capture bool
}

// rigManager owns the rig and runs every sensor and capture operation on one goroutine
type rigManager struct {
	rig      *rig
	ctrl     *capture.Controller
	sinks    *sinkSet
	p        *tea.Program
	requests chan rigRequest
	done     chan struct{}
}

func runControl(cmd *cobra.Command, args []string) error {
	// the TUI owns the terminal
	quiet := zap.NewNop().Sugar()
	logger = quiet

	r, err := openRig(quiet)
	if err != nil {
		return err
	}
	defer r.Close()

	res := rigCfg.GetResolution()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reports, err := configureSensor(ctx, r, res)
	if err != nil {
		return err
	}

	// size the buffer for the largest mode so any mode can be selected
	largest := ov2640.Resolutions()[len(ov2640.Resolutions())-1]
	ctrl, sinks, err := buildController(cmd, r, res, largest)
	defer sinks.Close()
	if err != nil {
		return err
	}

	rm := &rigManager{
		rig:      r,
		ctrl:     ctrl,
		sinks:    sinks,
		requests: make(chan rigRequest, 8),
		done:     make(chan struct{}),
	}

	m := initialControlModel(rm, r, res, reports)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	rm.p = p

	ctrl.OnTransition(func(from, to capture.State) {
		p.Send(stateMsg{from: from, to: to})
	})

	go rm.loop(ctx)

	_, err = p.Run()
	close(rm.done)
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// submit queues a request without blocking the UI
func (rm *rigManager) submit(req rigRequest) bool {
	select {
	case rm.requests <- req:
		return true
	default:
		return false
	}
}

// loop serves requests and polls the trigger until the TUI exits
func (rm *rigManager) loop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-rm.done:
			return

		case req := <-rm.requests:
			rm.serve(ctx, req)

		case <-ticker.C:
			if rm.rig.trigger == nil {
				continue
			}
			s, err := rm.ctrl.Poll(ctx)
			if err != nil || s != nil {
				rm.p.Send(sessionMsg{session: s, err: err, stats: rm.ctrl.Stats(), triggered: true})
			}
		}
	}
}

func (rm *rigManager) serve(ctx context.Context, req rigRequest) {
	switch {
	case req.capture:
		s, err := rm.ctrl.Capture(ctx)
		rm.p.Send(sessionMsg{session: s, err: err, stats: rm.ctrl.Stats()})

	case req.mode != nil:
		report := rm.rig.sensor.SelectMode(ctx, *req.mode)
		rm.sinks.SetResolution(*req.mode)
		rm.p.Send(appliedMsg{label: req.label, report: report, mode: req.mode})

	case req.apply != nil:
		rm.p.Send(appliedMsg{label: req.label, report: req.apply(ctx)})
	}
}
