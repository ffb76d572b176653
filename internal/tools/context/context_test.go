package contexttools

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
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

func seed(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, "query_handler.py"), []byte("def greet(name):\n    return name\n"), 0o644))
}

func TestGetUnifiedContextReturnsSnapshot(t *testing.T) {
	root := t.TempDir()
	seed(t, root)

	f := newTestFacade(t, root)
	_, err := f.InitializeLibrarian(root)
	require.NoError(t, err)
	_, err = f.InitializeToolIndex(root)
	require.NoError(t, err)

	tool := NewGetUnifiedContext(f)
	params, _ := json.Marshal(map[string]string{"project_path": root})
	result, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)

	payload := decode(t, result.Content[0].Text)
	assert.Contains(t, payload, "components")
	assert.Contains(t, payload, "tools")
}

func TestFindRelatedToolsInferredByCategory(t *testing.T) {
	root := t.TempDir()
	seed(t, root)

	f := newTestFacade(t, root)
	_, err := f.InitializeLibrarian(root)
	require.NoError(t, err)
	_, err = f.InitializeToolIndex(root)
	require.NoError(t, err)

	tool := NewFindRelatedTools(f)
	params, _ := json.Marshal(map[string]string{"project_path": root, "component_name": "greet"})
	result, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)

	payload := decode(t, result.Content[0].Text)
	assert.Equal(t, "ok", payload["status"])
	_, ok := payload["related_tools"].([]any)
	assert.True(t, ok)
}

func TestFindRelatedComponentsAccessDenied(t *testing.T) {
	allowed, outside := t.TempDir(), t.TempDir()
	f := newTestFacade(t, allowed)

	tool := NewFindRelatedComponents(f)
	params, _ := json.Marshal(map[string]string{"project_path": outside, "tool_id": "query"})
	result, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)

	payload := decode(t, result.Content[0].Text)
	assert.Equal(t, "access_denied", payload["status"])
}
