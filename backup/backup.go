/*
backup.go - Database snapshots and the scheduled backup loop

PURPOSE:
  Keeps point-in-time copies of the record store on disk. A scheduler takes
  one snapshot per interval; the export endpoint takes one on demand before
  rendering a workbook.

DESIGN:
  - Snapshots are written as <dir>/<timestamp>-<label>.db
  - Timestamps are fixed-width, so file names sort chronologically
  - After every snapshot, all but the newest Retention files are removed
  - Runs a background goroutine with a configurable interval

CONFIGURATION:
  - Interval:  How often to snapshot (default: 24 hours)
  - Retention: How many snapshots to keep (<= 0 keeps all)
  - Enabled:   Whether the scheduler is active

USAGE:
  mgr := backup.NewManager(store, "./data/backups", 30)
  scheduler := backup.NewScheduler(mgr, 24*time.Hour)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - store/sqlite/sqlite.go: Snapshot (VACUUM INTO)
  - api/admin.go: Export takes a snapshot first
*/
package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Labels for snapshot files.
const (
	LabelScheduled = "scheduled"
	LabelExport    = "export"
)

const timestampLayout = "2006-01-02T15-04-05.000000000"

// Snapshotter writes a consistent copy of a database to a new file.
type Snapshotter interface {
	Snapshot(ctx context.Context, path string) error
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager takes snapshots into a directory and prunes old ones.
type Manager struct {
	Source    Snapshotter
	Dir       string
	Retention int
	Now       func() time.Time

	mu sync.Mutex
}

// NewManager creates a manager writing into dir.
func NewManager(source Snapshotter, dir string, retention int) *Manager {
	return &Manager{
		Source:    source,
		Dir:       dir,
		Retention: retention,
		Now:       time.Now,
	}
}

// Snapshot writes a new snapshot and prunes old ones. It returns the path of
// the new file.
func (m *Manager) Snapshot(ctx context.Context, label string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	name := m.Now().UTC().Format(timestampLayout)
	if label != "" {
		name += "-" + label
	}
	path := filepath.Join(m.Dir, name+".db")

	if err := m.Source.Snapshot(ctx, path); err != nil {
		return "", fmt.Errorf("snapshot %s: %w", path, err)
	}

	if err := m.prune(); err != nil {
		log.Printf("[Backup] Error pruning %s: %v", m.Dir, err)
	}
	return path, nil
}

// List returns snapshot file names, oldest first.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".db") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *Manager) prune() error {
	if m.Retention <= 0 {
		return nil
	}
	names, err := m.List()
	if err != nil {
		return err
	}
	if len(names) <= m.Retention {
		return nil
	}

	for _, name := range names[:len(names)-m.Retention] {
		if err := os.Remove(filepath.Join(m.Dir, name)); err != nil {
			return err
		}
		log.Printf("[Backup] Pruned %s", name)
	}
	return nil
}

// =============================================================================
// SCHEDULER
// =============================================================================

// Scheduler takes a snapshot immediately on start and then every Interval.
type Scheduler struct {
	Manager  *Manager
	Interval time.Duration
	Enabled  bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates an enabled scheduler. A non-positive interval means
// daily.
func NewScheduler(manager *Manager, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		Manager:  manager,
		Interval: interval,
		Enabled:  true,
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		log.Println("[Backup] Disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	log.Printf("[Backup] Started with interval: %v, dir: %s", s.Interval, s.Manager.Dir)
}

// Stop stops the scheduler and waits for an in-flight snapshot.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		log.Println("[Backup] Stopped")
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.snapshot()

	for {
		select {
		case <-s.ticker.C:
			s.snapshot()
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) snapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	path, err := s.Manager.Snapshot(ctx, LabelScheduled)
	if err != nil {
		log.Printf("[Backup] Error: %v", err)
		return
	}
	log.Printf("[Backup] Wrote %s", path)
}
