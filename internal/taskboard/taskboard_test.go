package taskboard

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/specindex/internal/model"
)

func newTestBoard(t *testing.T) *Board {
	t.Helper()
	b := New(t.TempDir(), slog.Default(), 1, 5*time.Second, 7*24*time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, b.Start(ctx))
	t.Cleanup(func() {
		cancel()
		b.Stop()
	})
	return b
}

func TestSubmitAndCompleteRoundTrip(t *testing.T) {
	b := newTestBoard(t)
	b.RegisterHandler("echo", func(ctx context.Context, task *model.Task, params map[string]any, cancelled <-chan struct{}) (map[string]any, error) {
		return map[string]any{"echoed": params["message"]}, nil
	})

	id, err := b.Submit("echo", map[string]any{"message": "hi"}, model.PriorityHigh, 0)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	var task *model.Task
	require.Eventually(t, func() bool {
		task, _ = b.Status(id)
		return task != nil && task.Status.IsTerminal()
	}, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, model.TaskCompleted, task.Status)

	result, ok := b.Result(id)
	require.True(t, ok)
	assert.Equal(t, "hi", result.Data["echoed"])
}

func TestCancelOnlyAffectsPendingTasks(t *testing.T) {
	b := newTestBoard(t)

	id, err := b.Submit("noop", nil, model.PriorityLow, time.Minute)
	require.NoError(t, err)

	cancelled, err := b.Cancel(id)
	require.NoError(t, err)
	assert.True(t, cancelled)

	task, ok := b.Status(id)
	require.True(t, ok)
	assert.Equal(t, model.TaskCancelled, task.Status)

	cancelledAgain, err := b.Cancel(id)
	require.NoError(t, err)
	assert.False(t, cancelledAgain, "cancelling an already-terminal task has no effect")
}

func TestListFiltersByStatusAndType(t *testing.T) {
	b := newTestBoard(t)
	_, err := b.Submit("file_search", nil, model.PriorityMedium, time.Minute)
	require.NoError(t, err)
	_, err = b.Submit("todo_management", nil, model.PriorityMedium, time.Minute)
	require.NoError(t, err)

	all := b.List("", "", 0)
	assert.Len(t, all, 2)

	onlyFileSearch := b.List("", "file_search", 0)
	require.Len(t, onlyFileSearch, 1)
	assert.Equal(t, "file_search", onlyFileSearch[0].TaskType)

	pending := b.List(model.TaskPending, "", 0)
	assert.Len(t, pending, 2)
}

func TestDetermineMiniLibrariansExplicitOverride(t *testing.T) {
	librarians, mappedFrom := DetermineMiniLibrarians("anything", map[string]any{
		"mini_librarians": []any{"custom-librarian"},
	})
	assert.Equal(t, []string{"custom-librarian"}, librarians)
	assert.Empty(t, mappedFrom)
}

func TestDetermineMiniLibrariansKnownTaskType(t *testing.T) {
	librarians, mappedFrom := DetermineMiniLibrarians("find_usages", nil)
	assert.Equal(t, []string{"file-indexer", "component-analyzer"}, librarians)
	assert.Empty(t, mappedFrom, "an exact table hit records no mapped_from")
}

func TestDetermineMiniLibrariansFallsBackToGeneralAssistant(t *testing.T) {
	librarians, _ := DetermineMiniLibrarians("completely_unknown_task", nil)
	assert.Equal(t, []string{"general-assistant"}, librarians)
}

func TestDetermineMiniLibrariansFilePathForcesFileIndexer(t *testing.T) {
	librarians, _ := DetermineMiniLibrarians("completely_unknown_task", map[string]any{"file": "a.py"})
	assert.Contains(t, librarians, "file-indexer")
}

func TestGenericHandlerReportsFallback(t *testing.T) {
	b := newTestBoard(t)
	id, err := b.Submit("unregistered_task_type", nil, model.PriorityMedium, 0)
	require.NoError(t, err)

	var task *model.Task
	require.Eventually(t, func() bool {
		task, _ = b.Status(id)
		return task != nil && task.Status.IsTerminal()
	}, 3*time.Second, 20*time.Millisecond)

	result, ok := b.Result(id)
	require.True(t, ok)
	assert.Equal(t, true, result.Data["fallback_used"])
}

func TestTaskTimesOutWhenHandlerHangs(t *testing.T) {
	b := New(t.TempDir(), slog.Default(), 1, 50*time.Millisecond, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, b.Start(ctx))
	t.Cleanup(func() {
		cancel()
		b.Stop()
	})

	b.RegisterHandler("slow", func(ctx context.Context, task *model.Task, params map[string]any, cancelled <-chan struct{}) (map[string]any, error) {
		<-cancelled
		return nil, nil
	})

	id, err := b.Submit("slow", nil, model.PriorityHigh, 50*time.Millisecond)
	require.NoError(t, err)

	var task *model.Task
	require.Eventually(t, func() bool {
		task, _ = b.Status(id)
		return task != nil && task.Status.IsTerminal()
	}, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, model.TaskTimeout, task.Status)
}
