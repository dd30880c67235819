package backup_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkv/capital-works/backup"
	"github.com/rkv/capital-works/store/sqlite"
)

// fileSource writes a small file per snapshot and counts calls.
type fileSource struct {
	calls atomic.Int32
	err   error
}

func (f *fileSource) Snapshot(_ context.Context, path string) error {
	f.calls.Add(1)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(path, []byte("snapshot"), 0o600)
}

func steppingClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestManager_SnapshotAndPrune(t *testing.T) {
	// GIVEN: A manager keeping 2 snapshots
	dir := filepath.Join(t.TempDir(), "backups")
	m := backup.NewManager(&fileSource{}, dir, 2)
	m.Now = steppingClock(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))

	// WHEN: Taking 4 snapshots
	var paths []string
	for i := 0; i < 4; i++ {
		p, err := m.Snapshot(context.Background(), backup.LabelScheduled)
		require.NoError(t, err)
		paths = append(paths, p)
	}

	// THEN: Only the newest two remain
	names, err := m.List()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Base(paths[2]), filepath.Base(paths[3])}, names)
	assert.Equal(t, "2025-07-01T00-00-04.000000000-scheduled.db", names[1])
}

func TestManager_KeepsAllWithoutRetention(t *testing.T) {
	dir := t.TempDir()
	m := backup.NewManager(&fileSource{}, dir, 0)
	m.Now = steppingClock(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		_, err := m.Snapshot(context.Background(), backup.LabelExport)
		require.NoError(t, err)
	}

	names, err := m.List()
	require.NoError(t, err)
	assert.Len(t, names, 3)
}

func TestManager_SourceError(t *testing.T) {
	boom := errors.New("disk full")
	m := backup.NewManager(&fileSource{err: boom}, t.TempDir(), 2)

	_, err := m.Snapshot(context.Background(), backup.LabelExport)
	assert.ErrorIs(t, err, boom)
}

func TestManager_SQLiteSource(t *testing.T) {
	// GIVEN: A real SQLite store
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	// WHEN: Snapshotting through the manager
	m := backup.NewManager(store, t.TempDir(), 5)
	path, err := m.Snapshot(context.Background(), backup.LabelExport)
	require.NoError(t, err)

	// THEN: The snapshot is a usable database
	copied, err := sqlite.New(path)
	require.NoError(t, err)
	defer copied.Close()
	assert.NoError(t, copied.Ping(context.Background()))
}

func TestScheduler_RunsOnStartAndStops(t *testing.T) {
	// GIVEN: A scheduler with a long interval
	src := &fileSource{}
	m := backup.NewManager(src, t.TempDir(), 5)
	s := backup.NewScheduler(m, time.Hour)

	// WHEN: Starting and stopping it
	s.Start()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	s.Stop()

	// THEN: Exactly the immediate snapshot was taken
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestScheduler_Disabled(t *testing.T) {
	src := &fileSource{}
	s := backup.NewScheduler(backup.NewManager(src, t.TempDir(), 5), time.Hour)
	s.Enabled = false

	s.Start()
	s.Stop()
	assert.Equal(t, int32(0), src.calls.Load())
}
