// Package monitor implements the Change Monitor (C6): a single long-lived
// background loop that detects file adds/removes/modifications per active
// project and triggers an Index Engine refresh.
//
// Grounded on the teacher's internal/scheduler goroutine-per-job pattern,
// generalised here because the monitor's pause-sensitive sleep cadence (5s
// normally, 1s while paused) does not fit the scheduler's fixed-interval
// ticker abstraction. An fsnotify watcher is layered on top purely as a
// "don't skip this project's throttle window" wake hint — it never
// triggers a reindex directly and never changes the governing cadence
// (spec §4.6).
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/emergent-company/specindex/internal/indexengine"
)

// Engine is the subset of indexengine.Engine the monitor needs.
type Engine interface {
	ActiveProjects() []string
	Reindex(root string) (*indexengine.DiagnosticSummary, error)
	SnapshotScanFiles(root string) (map[string]time.Time, error)
	IndexedFilesSnapshot(root string) map[string]time.Time
}

// Monitor drives periodic reindexing of every active project.
type Monitor struct {
	logger *slog.Logger
	engine Engine

	pollInterval     time.Duration
	throttleInterval time.Duration
	pausedSleep      time.Duration
	watchEnabled     bool

	pausedMu sync.RWMutex
	paused   bool

	lastCheckMu sync.Mutex
	lastCheck   map[string]time.Time

	wakeMu sync.Mutex
	wake   map[string]bool

	watcher *fsnotify.Watcher
}

// New creates a Monitor. watchEnabled controls whether an fsnotify watcher
// is attached as a supplementary wake signal; when fsnotify setup fails
// (e.g. unsupported filesystem) the monitor logs a warning and degrades to
// pure polling.
func New(logger *slog.Logger, engine Engine, pollInterval, throttleInterval, pausedSleep time.Duration, watchEnabled bool) *Monitor {
	m := &Monitor{
		logger:           logger,
		engine:           engine,
		pollInterval:     pollInterval,
		throttleInterval: throttleInterval,
		pausedSleep:      pausedSleep,
		watchEnabled:     watchEnabled,
		lastCheck:        map[string]time.Time{},
		wake:             map[string]bool{},
	}
	if watchEnabled {
		if w, err := fsnotify.NewWatcher(); err == nil {
			m.watcher = w
			go m.watchLoop()
		} else {
			logger.Warn("fsnotify watcher unavailable, falling back to pure polling", "error", err)
		}
	}
	return m
}

func (m *Monitor) watchLoop() {
	for {
		select {
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.markWake(ev.Name)
		case _, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (m *Monitor) markWake(path string) {
	m.wakeMu.Lock()
	defer m.wakeMu.Unlock()
	for _, root := range m.engine.ActiveProjects() {
		if len(path) >= len(root) && path[:len(root)] == root {
			m.wake[root] = true
		}
	}
}

// WatchProject attaches a non-recursive watch on root's top-level
// directory; best-effort only, never returns an error to callers.
func (m *Monitor) WatchProject(root string) {
	if m.watcher == nil {
		return
	}
	_ = m.watcher.Add(root)
}

// Pause sets the cooperative pause flag, used by the Facade to freeze the
// monitor during an explicit user-initiated mutating operation.
func (m *Monitor) Pause() {
	m.pausedMu.Lock()
	m.paused = true
	m.pausedMu.Unlock()
}

// Resume clears the pause flag. Guaranteed to be called on all exit paths
// by the Facade, even on error.
func (m *Monitor) Resume() {
	m.pausedMu.Lock()
	m.paused = false
	m.pausedMu.Unlock()
}

func (m *Monitor) isPaused() bool {
	m.pausedMu.RLock()
	defer m.pausedMu.RUnlock()
	return m.paused
}

// Run drives the monitor loop until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	for {
		var sleep time.Duration
		if m.isPaused() {
			sleep = m.pausedSleep
		} else {
			sleep = m.pollInterval
		}

		select {
		case <-ctx.Done():
			if m.watcher != nil {
				_ = m.watcher.Close()
			}
			return
		case <-time.After(sleep):
		}

		if m.isPaused() {
			continue
		}
		m.tick()
	}
}

func (m *Monitor) tick() {
	for _, root := range m.engine.ActiveProjects() {
		if !m.dueForCheck(root) {
			continue
		}
		m.checkProject(root)
	}
}

func (m *Monitor) dueForCheck(root string) bool {
	m.lastCheckMu.Lock()
	defer m.lastCheckMu.Unlock()

	woken := m.consumeWake(root)
	last, ok := m.lastCheck[root]
	if ok && !woken && time.Since(last) < m.throttleInterval {
		return false
	}
	m.lastCheck[root] = time.Now()
	return true
}

func (m *Monitor) consumeWake(root string) bool {
	m.wakeMu.Lock()
	defer m.wakeMu.Unlock()
	if m.wake[root] {
		delete(m.wake, root)
		return true
	}
	return false
}

func (m *Monitor) checkProject(root string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("monitor check panicked", "project", root, "panic", r)
		}
	}()

	current, err := m.engine.SnapshotScanFiles(root)
	if err != nil {
		m.logger.Warn("monitor scan failed", "project", root, "error", err)
		return
	}
	indexed := m.engine.IndexedFilesSnapshot(root)

	if !filesEqual(current, indexed) {
		if _, err := m.engine.Reindex(root); err != nil {
			m.logger.Warn("monitor-triggered reindex failed", "project", root, "error", err)
		}
	}
}

func filesEqual(a, b map[string]time.Time) bool {
	if len(a) != len(b) {
		return false
	}
	for path, mtime := range a {
		other, ok := b[path]
		if !ok || !other.Equal(mtime) {
			return false
		}
	}
	return true
}
