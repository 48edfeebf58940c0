// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Replay is capture hardware that copies recorded JPEG files into the buffer,
// cycling through them in name order. It stands in for the camera interface
// on hosts that only have the control bus wired.
type Replay struct {
	mu      sync.Mutex
	files   []string
	next    int
	latched error
}

// NewReplay loads the list of .jpg/.jpeg files in dir
func NewReplay(dir string) (*Replay, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read replay directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".jpg" || ext == ".jpeg") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no JPEG files in %s", dir)
	}
	sort.Strings(files)
	return &Replay{files: files}, nil
}

// Start copies the next recorded frame into buf
func (r *Replay) Start(buf []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	path := r.files[r.next%len(r.files)]
	r.next++
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("replay %s: %w", path, err)
	}
	if len(data) > len(buf) {
		r.latched = errors.Join(r.latched, fmt.Errorf("%w: %s is %d bytes", ErrDMAOverrun, filepath.Base(path), len(data)))
	}
	copy(buf, data)
	return nil
}

// Suspend is a no-op; replayed frames land synchronously
func (r *Replay) Suspend() error { return nil }

// Stop is a no-op; replayed frames land synchronously
func (r *Replay) Stop() error { return nil }

// Err returns and clears the latched error
func (r *Replay) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.latched
	r.latched = nil
	return err
}
