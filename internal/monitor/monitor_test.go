package monitor

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/emergent-company/specindex/internal/indexengine"
)

type fakeEngine struct {
	mu           sync.Mutex
	projects     []string
	scanFiles    map[string]time.Time
	indexedFiles map[string]time.Time
	scanCalls    int
	reindexCount int
}

func (f *fakeEngine) ActiveProjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.projects
}

func (f *fakeEngine) Reindex(root string) (*indexengine.DiagnosticSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reindexCount++
	return &indexengine.DiagnosticSummary{}, nil
}

func (f *fakeEngine) SnapshotScanFiles(root string) (map[string]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanCalls++
	return f.scanFiles, nil
}

func (f *fakeEngine) IndexedFilesSnapshot(root string) map[string]time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indexedFiles
}

func (f *fakeEngine) counts() (scanCalls, reindexCount int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanCalls, f.reindexCount
}

func runMonitor(t *testing.T, m *Monitor) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	t.Cleanup(cancel)
	return cancel
}

func TestTickReindexesWhenFilesDiffer(t *testing.T) {
	eng := &fakeEngine{
		projects:     []string{"/proj"},
		scanFiles:    map[string]time.Time{"a.py": time.Unix(2, 0)},
		indexedFiles: map[string]time.Time{"a.py": time.Unix(1, 0)},
	}
	m := New(slog.Default(), eng, 10*time.Millisecond, time.Millisecond, 5*time.Millisecond, false)
	runMonitor(t, m)

	assert.Eventually(t, func() bool {
		_, reindexed := eng.counts()
		return reindexed > 0
	}, time.Second, 10*time.Millisecond)
}

func TestTickSkipsReindexWhenFilesMatch(t *testing.T) {
	same := map[string]time.Time{"a.py": time.Unix(1, 0)}
	eng := &fakeEngine{
		projects:     []string{"/proj"},
		scanFiles:    same,
		indexedFiles: same,
	}
	m := New(slog.Default(), eng, 10*time.Millisecond, time.Millisecond, 5*time.Millisecond, false)
	runMonitor(t, m)

	// Give several poll cycles a chance to run, then confirm no reindex fired.
	time.Sleep(100 * time.Millisecond)
	_, reindexed := eng.counts()
	assert.Equal(t, 0, reindexed)
}

func TestDueForCheckThrottlesRepeatedScans(t *testing.T) {
	same := map[string]time.Time{"a.py": time.Unix(1, 0)}
	eng := &fakeEngine{
		projects:     []string{"/proj"},
		scanFiles:    same,
		indexedFiles: same,
	}
	// Poll fast but throttle for much longer than the test runs, so only the
	// first tick should ever call through to a scan.
	m := New(slog.Default(), eng, 5*time.Millisecond, time.Hour, 5*time.Millisecond, false)
	runMonitor(t, m)

	assert.Eventually(t, func() bool {
		scans, _ := eng.counts()
		return scans >= 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(80 * time.Millisecond)
	scans, _ := eng.counts()
	assert.Equal(t, 1, scans, "throttle window should suppress further scans")
}

func TestPauseStopsTickingUntilResumed(t *testing.T) {
	eng := &fakeEngine{
		projects:     []string{"/proj"},
		scanFiles:    map[string]time.Time{"a.py": time.Unix(2, 0)},
		indexedFiles: map[string]time.Time{"a.py": time.Unix(1, 0)},
	}
	m := New(slog.Default(), eng, 10*time.Millisecond, time.Millisecond, 5*time.Millisecond, false)
	m.Pause()
	runMonitor(t, m)

	time.Sleep(80 * time.Millisecond)
	_, reindexed := eng.counts()
	assert.Equal(t, 0, reindexed, "a paused monitor must not reindex")

	m.Resume()
	assert.Eventually(t, func() bool {
		_, reindexed := eng.counts()
		return reindexed > 0
	}, time.Second, 10*time.Millisecond)
}

func TestWatchProjectNoopWithoutWatcher(t *testing.T) {
	eng := &fakeEngine{}
	m := New(slog.Default(), eng, time.Second, time.Second, time.Second, false)
	assert.NotPanics(t, func() { m.WatchProject(t.TempDir()) })
}
