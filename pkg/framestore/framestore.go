// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package framestore keeps captured JPEG frames in a SQLite database.
package framestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no frame has the requested ID
var ErrNotFound = errors.New("frame not found")

// Record is one stored frame
type Record struct {
	ID         uuid.UUID
	CapturedAt time.Time
	Resolution string
	Source     string
	Data       []byte
}

// Summary describes a stored frame without its data
type Summary struct {
	ID         uuid.UUID
	CapturedAt time.Time
	Resolution string
	Source     string
	Length     int
}

// Store is a frame database
type Store struct {
	*sql.DB
}

// Open opens or creates the database at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS frames (
			frame_id          TEXT PRIMARY KEY,
			captured_at       TIMESTAMP NOT NULL,
			resolution        TEXT,
			source            TEXT,
			length            BIGINT NOT NULL,
			data              BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS frames_captured_at ON frames (captured_at);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialise frame store: %w", err)
	}

	return &Store{db}, nil
}

// Save inserts a frame, replacing any frame with the same ID
func (s *Store) Save(ctx context.Context, r Record) error {
	if r.ID == uuid.Nil {
		return errors.New("frame ID is required")
	}
	if len(r.Data) == 0 {
		return errors.New("frame has no data")
	}
	_, err := s.ExecContext(ctx,
		"INSERT OR REPLACE INTO frames (frame_id, captured_at, resolution, source, length, data) VALUES (?, ?, ?, ?, ?, ?)",
		r.ID.String(), r.CapturedAt.UTC().UnixMicro(), r.Resolution, r.Source, len(r.Data), r.Data)
	if err != nil {
		return fmt.Errorf("save frame %s: %w", r.ID, err)
	}
	return nil
}

// Get loads a frame by ID
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	var (
		r        Record
		captured int64
	)
	err := s.QueryRowContext(ctx,
		"SELECT captured_at, resolution, source, data FROM frames WHERE frame_id = ?", id.String()).
		Scan(&captured, &r.Resolution, &r.Source, &r.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("load frame %s: %w", id, err)
	}
	r.ID = id
	r.CapturedAt = time.UnixMicro(captured).UTC()
	return r, nil
}

// List returns up to limit frames, newest first; limit <= 0 lists all
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.QueryContext(ctx,
		"SELECT frame_id, captured_at, resolution, source, length FROM frames ORDER BY captured_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum      Summary
			id       string
			captured int64
		)
		if err := rows.Scan(&id, &captured, &sum.Resolution, &sum.Source, &sum.Length); err != nil {
			return nil, fmt.Errorf("scan frame row: %w", err)
		}
		if sum.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("frame row has bad id %q: %w", id, err)
		}
		sum.CapturedAt = time.UnixMicro(captured).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes a frame
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.ExecContext(ctx, "DELETE FROM frames WHERE frame_id = ?", id.String())
	if err != nil {
		return fmt.Errorf("delete frame %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Sink stores delivered frames as a capture transport
type Sink struct {
	store  *Store
	source string
	now    func() time.Time

	mu         sync.Mutex
	resolution string
	last       uuid.UUID
}

// NewSink creates a sink that tags frames with source
func NewSink(store *Store, source string) *Sink {
	return &Sink{store: store, source: source, now: time.Now}
}

// SetResolution sets the resolution recorded with subsequent frames
func (k *Sink) SetResolution(res string) {
	k.mu.Lock()
	k.resolution = res
	k.mu.Unlock()
}

// Last returns the ID of the most recently stored frame
func (k *Sink) Last() uuid.UUID {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.last
}

// Send stores a copy of the frame under a new ID
func (k *Sink) Send(p []byte) error {
	k.mu.Lock()
	res := k.resolution
	k.mu.Unlock()

	r := Record{
		ID:         uuid.New(),
		CapturedAt: k.now(),
		Resolution: res,
		Source:     k.source,
		Data:       append([]byte(nil), p...),
	}
	if err := k.store.Save(context.Background(), r); err != nil {
		return err
	}

	k.mu.Lock()
	k.last = r.ID
	k.mu.Unlock()
	return nil
}
