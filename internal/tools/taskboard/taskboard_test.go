package taskboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/specindex/internal/facade"
	"github.com/emergent-company/specindex/internal/indexengine"
	"github.com/emergent-company/specindex/internal/monitor"
	"github.com/emergent-company/specindex/internal/state"
	"github.com/emergent-company/specindex/internal/unifiedcontext"
	"github.com/emergent-company/specindex/internal/xref"
)

func newTestFacade(t *testing.T, allowedRoots ...string) *facade.Facade {
	t.Helper()
	roots, err := state.NewAllowedRoots(allowedRoots)
	require.NoError(t, err)
	procState, err := state.LoadProcessState(filepath.Join(t.TempDir(), "process_state.json"))
	require.NoError(t, err)

	logger := slog.Default()
	engine := indexengine.New(logger)
	mon := monitor.New(logger, engine, time.Hour, time.Hour, time.Hour, false)
	xrefBuild := xref.New(logger)
	cache := unifiedcontext.New(300 * time.Second)
	tbConfig := facade.TaskBoardConfig{Workers: 1, DefaultTimeout: 2 * time.Second, Retention: time.Hour}
	return facade.New(logger, roots, procState, engine, mon, xrefBuild, cache, nil, tbConfig)
}

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return payload
}

func TestSubmitGetStatusResultRoundTrip(t *testing.T) {
	root := t.TempDir()
	f := newTestFacade(t, root)

	submit := NewSubmitBackgroundTask(f)
	params, _ := json.Marshal(map[string]any{"project_path": root, "task_type": "unregistered_type"})
	result, err := submit.Execute(context.Background(), params)
	require.NoError(t, err)
	payload := decode(t, result.Content[0].Text)
	taskID, _ := payload["task_id"].(string)
	require.NotEmpty(t, taskID)

	statusTool := NewGetTaskStatus(f)
	var statusPayload map[string]any
	require.Eventually(t, func() bool {
		statusParams, _ := json.Marshal(map[string]string{"project_path": root, "task_id": taskID})
		r, err := statusTool.Execute(context.Background(), statusParams)
		require.NoError(t, err)
		statusPayload = decode(t, r.Content[0].Text)
		status, _ := statusPayload["status"].(string)
		return status == "completed" || status == "failed" || status == "timeout" || status == "cancelled"
	}, 3*time.Second, 20*time.Millisecond)

	resultTool := NewGetTaskResult(f)
	resultParams, _ := json.Marshal(map[string]string{"project_path": root, "task_id": taskID})
	r, err := resultTool.Execute(context.Background(), resultParams)
	require.NoError(t, err)
	resultPayload := decode(t, r.Content[0].Text)
	data, ok := resultPayload["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["fallback_used"])
}

func TestCancelTaskOnlyAffectsPending(t *testing.T) {
	root := t.TempDir()
	f := newTestFacade(t, root)

	submit := NewSubmitBackgroundTask(f)
	params, _ := json.Marshal(map[string]any{"project_path": root, "task_type": "noop", "timeout_seconds": 60})
	result, err := submit.Execute(context.Background(), params)
	require.NoError(t, err)
	taskID := decode(t, result.Content[0].Text)["task_id"].(string)

	cancel := NewCancelTask(f)
	cancelParams, _ := json.Marshal(map[string]string{"project_path": root, "task_id": taskID})
	r, err := cancel.Execute(context.Background(), cancelParams)
	require.NoError(t, err)
	payload := decode(t, r.Content[0].Text)
	assert.Equal(t, true, payload["cancelled"])
}

func TestListTasksFiltersByType(t *testing.T) {
	root := t.TempDir()
	f := newTestFacade(t, root)

	submit := NewSubmitBackgroundTask(f)
	p1, _ := json.Marshal(map[string]any{"project_path": root, "task_type": "file_search", "timeout_seconds": 60})
	_, err := submit.Execute(context.Background(), p1)
	require.NoError(t, err)
	p2, _ := json.Marshal(map[string]any{"project_path": root, "task_type": "todo_management", "timeout_seconds": 60})
	_, err = submit.Execute(context.Background(), p2)
	require.NoError(t, err)

	list := NewListTasks(f)
	listParams, _ := json.Marshal(map[string]any{"project_path": root, "task_type": "file_search"})
	r, err := list.Execute(context.Background(), listParams)
	require.NoError(t, err)
	payload := decode(t, r.Content[0].Text)
	tasks, ok := payload["tasks"].([]any)
	require.True(t, ok)
	assert.Len(t, tasks, 1)
}

func TestGetTaskStatusAccessDenied(t *testing.T) {
	allowed, outside := t.TempDir(), t.TempDir()
	f := newTestFacade(t, allowed)

	tool := NewGetTaskStatus(f)
	params, _ := json.Marshal(map[string]string{"project_path": outside, "task_id": "task-deadbeef"})
	result, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	payload := decode(t, result.Content[0].Text)
	assert.Equal(t, "access_denied", payload["status"])
}
