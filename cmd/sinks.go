// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// dirSink writes each delivered frame to its own file
type dirSink struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	seq  int
	last string
}

func newDirSink(dir string) (*dirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &dirSink{dir: dir, now: time.Now}, nil
}

func (d *dirSink) Send(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	name := filepath.Join(d.dir, fmt.Sprintf("frame_%s_%04d.jpg", d.now().Format("20060102_150405"), d.seq))
	if err := os.WriteFile(name, p, 0o644); err != nil {
		return err
	}
	d.last = name
	return nil
}

// previewDisplay keeps the latest frame in one file for an external viewer
type previewDisplay struct {
	path   string
	logger *zap.SugaredLogger
}

func (v *previewDisplay) Draw(x, y int, p []byte) error {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(p))
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	tmp := v.path + ".tmp"
	if err := os.WriteFile(tmp, p, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, v.path); err != nil {
		return err
	}
	v.logger.Debugw("preview updated", "path", v.path, "x", x, "y", y, "width", cfg.Width, "height", cfg.Height)
	return nil
}
