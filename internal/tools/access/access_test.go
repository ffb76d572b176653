package access

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

func resultStatus(t *testing.T, raw string) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return payload
}

func TestListAllowedDirectoriesReportsConfiguredRoots(t *testing.T) {
	rootA, rootB := t.TempDir(), t.TempDir()
	f := newTestFacade(t, rootA, rootB)
	tool := NewListAllowedDirectories(f)

	result, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)

	payload := resultStatus(t, result.Content[0].Text)
	dirs, ok := payload["allowed_directories"].([]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []any{rootA, rootB}, dirs)
}

func TestCheckProjectAccessInsideRoot(t *testing.T) {
	root := t.TempDir()
	f := newTestFacade(t, root)
	tool := NewCheckProjectAccess(f)

	params, _ := json.Marshal(map[string]string{"project_path": root})
	result, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)

	payload := resultStatus(t, result.Content[0].Text)
	assert.Equal(t, true, payload["allowed"])
}

func TestCheckProjectAccessOutsideRoot(t *testing.T) {
	allowed, outside := t.TempDir(), t.TempDir()
	f := newTestFacade(t, allowed)
	tool := NewCheckProjectAccess(f)

	params, _ := json.Marshal(map[string]string{"project_path": outside})
	result, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)

	payload := resultStatus(t, result.Content[0].Text)
	assert.Equal(t, false, payload["allowed"])
}

func TestCheckProjectAccessRejectsMissingRequiredField(t *testing.T) {
	f := newTestFacade(t, t.TempDir())
	tool := NewCheckProjectAccess(f)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
