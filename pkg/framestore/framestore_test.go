// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package framestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "frames.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_Pragmas(t *testing.T) {
	s := openTestStore(t)

	var journalMode string
	require.NoError(t, s.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, s.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)
}

func TestSaveGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := Record{
		ID:         uuid.New(),
		CapturedAt: time.Date(2025, 3, 1, 12, 0, 0, 123000, time.UTC),
		Resolution: "320x240",
		Source:     "sim",
		Data:       []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9},
	}
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Get(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSave_Rejects(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.Save(ctx, Record{Data: []byte{1}}))
	assert.Error(t, s.Save(ctx, Record{ID: uuid.New()}))
}

func TestListDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		id := uuid.New()
		ids = append(ids, id)
		require.NoError(t, s.Save(ctx, Record{
			ID:         id,
			CapturedAt: base.Add(time.Duration(i) * time.Minute),
			Data:       make([]byte, 10+i),
		}))
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, 12, all[0].Length)

	two, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)

	require.NoError(t, s.Delete(ctx, ids[0]))
	assert.ErrorIs(t, s.Delete(ctx, ids[0]), ErrNotFound)
	all, err = s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSink(t *testing.T) {
	s := openTestStore(t)
	sink := NewSink(s, "bench")
	sink.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	sink.SetResolution("640x480")

	frame := []byte{0xFF, 0xD8, 0xFF, 0xD9}
	require.NoError(t, sink.Send(frame))
	frame[0] = 0 // the sink must have copied

	got, err := s.Get(context.Background(), sink.Last())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xD9}, got.Data)
	assert.Equal(t, "640x480", got.Resolution)
	assert.Equal(t, "bench", got.Source)
}
