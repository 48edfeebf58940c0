// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/obscura/pkg/capture"
	"github.com/Thermoquad/obscura/pkg/framestore"
	"github.com/Thermoquad/obscura/pkg/ov2640"
	"github.com/Thermoquad/obscura/pkg/snaplink"
	"github.com/spf13/cobra"
)

var (
	captureResolution string
	captureCount      int
	captureInterval   time.Duration
	captureOutDir     string
	captureDatabase   string
	captureLink       bool
	captureRaw        bool
	captureAddress    uint64
	capturePreview    string
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture JPEG snapshots",
	Long: `Configure the sensor and capture JPEG snapshots.

Without a trigger pin each snapshot is taken immediately, --interval apart.
With --trigger-pin the rig waits for the button: a capture starts when the
button is released after a press. Prefix the pin name with ! for an active-low
button (e.g. --trigger-pin !GPIO17).

Delivered frames go to every configured sink:
  --out DIR     one file per frame
  --db FILE     SQLite frame store
  --link        snaplink packets over --port/--url (--raw for bare JPEG bytes)
  --preview F   latest frame kept in one file

A frame whose end marker is not found within the scan limit is discarded and
the capture is reported as aborted.`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().StringVarP(&captureResolution, "resolution", "r", "", "Output mode (default from config, else 320x240)")
	captureCmd.Flags().IntVarP(&captureCount, "count", "n", 1, "Number of captures, 0 to run until interrupted")
	captureCmd.Flags().DurationVar(&captureInterval, "interval", time.Second, "Pause between untriggered captures")
	captureCmd.Flags().StringVarP(&captureOutDir, "out", "o", "", "Write frames to this directory (default from config)")
	captureCmd.Flags().StringVar(&captureDatabase, "db", "", "Store frames in this SQLite database (default from config)")
	captureCmd.Flags().BoolVar(&captureLink, "link", false, "Send frames over the serial or WebSocket link")
	captureCmd.Flags().BoolVar(&captureRaw, "raw", false, "Send bare JPEG bytes instead of snaplink packets")
	captureCmd.Flags().Uint64Var(&captureAddress, "address", 1, "Camera address on the link")
	captureCmd.Flags().StringVar(&capturePreview, "preview", "", "Keep the latest frame in this file")
}

// resolutionSetter is a sink that labels frames with the sensor mode
type resolutionSetter interface {
	SetResolution(res string)
}

// sinkSet holds the open frame sinks of a controller
type sinkSet struct {
	labels  []resolutionSetter
	closers []func() error
}

// SetResolution relabels every sink after a mode change
func (s *sinkSet) SetResolution(res ov2640.Resolution) {
	for _, l := range s.labels {
		l.SetResolution(res.String())
	}
}

func (s *sinkSet) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// buildController wires the rig and sinks into a capture controller whose
// buffer fits frames of bufferRes
func buildController(cmd *cobra.Command, r *rig, res, bufferRes ov2640.Resolution, opts ...capture.Option) (*capture.Controller, *sinkSet, error) {
	sinks := &sinkSet{}

	opts = append([]capture.Option{
		capture.WithSettleDelay(rigCfg.GetCaptureSettle()),
		capture.WithScanCapacity(rigCfg.GetScanLimit()),
		capture.WithLogger(logger.Named("capture")),
	}, opts...)
	if r.trigger != nil {
		opts = append(opts, capture.WithTrigger(r.trigger))
	}

	outDir := captureOutDir
	if !cmd.Flags().Changed("out") && rigCfg.OutputDir != nil {
		outDir = rigCfg.GetOutputDir()
	}
	if outDir != "" {
		sink, err := newDirSink(outDir)
		if err != nil {
			return nil, sinks, err
		}
		opts = append(opts, capture.WithTransport(sink))
	}

	dbPath := captureDatabase
	if dbPath == "" {
		dbPath = rigCfg.GetDatabase()
	}
	if dbPath != "" {
		store, err := framestore.Open(dbPath)
		if err != nil {
			return nil, sinks, err
		}
		sinks.closers = append(sinks.closers, store.Close)
		sink := framestore.NewSink(store, r.info)
		sinks.labels = append(sinks.labels, sink)
		opts = append(opts, capture.WithTransport(sink))
	}

	if captureLink {
		conn, info, err := OpenConnection()
		if err != nil {
			return nil, sinks, err
		}
		sinks.closers = append(sinks.closers, conn.Close)
		logger.Infow("link open", "connection", info)
		if captureRaw {
			opts = append(opts, capture.WithTransport(snaplink.NewRawSink(conn)))
		} else {
			sender := snaplink.NewSender(conn,
				snaplink.WithAddress(captureAddress),
				snaplink.WithSenderLogger(logger.Named("link")))
			sinks.labels = append(sinks.labels, sender)
			opts = append(opts, capture.WithTransport(sender))
		}
	}

	if capturePreview != "" {
		opts = append(opts, capture.WithDisplay(&previewDisplay{path: capturePreview, logger: logger.Named("preview")}, 0, 0))
	}

	sinks.SetResolution(res)
	ctrl := capture.NewController(r.hw, capture.NewFrameBuffer(rigCfg.GetBufferSize(bufferRes)), opts...)
	return ctrl, sinks, nil
}

func runCapture(cmd *cobra.Command, args []string) error {
	res, err := resolveResolution(captureResolution)
	if err != nil {
		return err
	}

	r, err := openRig(logger)
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reports, err := configureSensor(ctx, r, res)
	if err != nil {
		return err
	}
	for _, rep := range reports {
		logger.Infow("program applied", "report", rep.String())
	}
	if reportsFailed(reports) {
		return fmt.Errorf("sensor configuration incomplete")
	}

	ctrl, sinks, err := buildController(cmd, r, res, res)
	defer sinks.Close()
	if err != nil {
		return err
	}

	ctrl.OnTransition(func(from, to capture.State) {
		logger.Debugw("capture state", "from", from.String(), "to", to.String())
	})

	fmt.Printf("Obscura - Capture\n")
	fmt.Printf("Rig: %s\n", r.info)
	fmt.Printf("Mode: %s, buffer %d bytes\n", res, rigCfg.GetBufferSize(res))
	if r.trigger != nil {
		fmt.Printf("Waiting for trigger on %s (Ctrl+C to exit)\n", triggerPin)
	}
	fmt.Println()

	done := 0
	for captureCount == 0 || done < captureCount {
		var s *capture.Session
		if r.trigger != nil {
			s, err = pollTriggered(ctx, ctrl)
		} else {
			s, err = ctrl.Capture(ctx)
		}
		if errors.Is(err, context.Canceled) {
			break
		}
		if err != nil {
			return err
		}
		done++
		printSession(s)

		if r.trigger == nil && (captureCount == 0 || done < captureCount) {
			select {
			case <-ctx.Done():
			case <-time.After(captureInterval):
			}
		}
	}

	fmt.Printf("\n%s\n", formatCaptureStats(ctrl.Stats()))
	return nil
}

// pollTriggered polls the controller until a triggered capture finishes
func pollTriggered(ctx context.Context, ctrl *capture.Controller) (*capture.Session, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		s, err := ctrl.Poll(ctx)
		if err != nil || s != nil {
			return s, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printSession(s *capture.Session) {
	ts := s.Finished.Format("15:04:05.000")
	took := s.Finished.Sub(s.Started).Round(time.Millisecond)
	if s.Outcome == capture.Delivered {
		fmt.Printf("[%s] \033[1;32mDELIVERED\033[0m %d bytes in %s (first data at %d)\n", ts, s.Length, took, s.FirstNonZero)
	} else {
		fmt.Printf("[%s] \033[1;31mABORTED\033[0m after %s: %v\n", ts, took, s.Err)
	}
	if s.HardwareErr != nil {
		fmt.Printf("  hardware: %v\n", s.HardwareErr)
	}
	for _, err := range s.DeliveryErrs {
		fmt.Printf("  delivery: %v\n", err)
	}
}

func formatCaptureStats(st capture.Stats) string {
	return fmt.Sprintf("Captures: %d  Delivered: %d  Aborted: %d (overruns %d)  Hardware errors: %d  Delivery errors: %d  Bytes: %d",
		st.Captures, st.Delivered, st.Aborted, st.Overruns, st.HardwareErrors, st.DeliveryErrors, st.BytesDelivered)
}
