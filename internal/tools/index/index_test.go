package index

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
	"github.com/emergent-company/specindex/internal/mcp"
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
	reg := mcp.NewRegistry()
	tbConfig := facade.TaskBoardConfig{Workers: 1, DefaultTimeout: 2 * time.Second, Retention: time.Hour}
	return facade.New(logger, roots, procState, engine, mon, xrefBuild, cache, reg, tbConfig)
}

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return payload
}

func TestInitializeLibrarianIndexesSourceFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("def greet(name):\n    return name\n"), 0o644))

	f := newTestFacade(t, root)
	tool := NewInitializeLibrarian(f)

	params, _ := json.Marshal(map[string]string{"project_path": root})
	result, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)

	payload := decode(t, result.Content[0].Text)
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, float64(1), payload["files_indexed"])
}

func TestInitializeLibrarianAccessDenied(t *testing.T) {
	allowed, outside := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "a.py"), []byte("def f():\n    pass\n"), 0o644))

	f := newTestFacade(t, allowed)
	tool := NewInitializeLibrarian(f)

	params, _ := json.Marshal(map[string]string{"project_path": outside})
	result, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)

	payload := decode(t, result.Content[0].Text)
	assert.Equal(t, "access_denied", payload["status"])
}

func TestQueryComponentRoundTrip(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("def greet(name):\n    return name\n"), 0o644))

	f := newTestFacade(t, root)
	_, err := f.InitializeLibrarian(root)
	require.NoError(t, err)

	tool := NewQueryComponent(f)
	params, _ := json.Marshal(map[string]string{"project_path": root, "name": "greet"})
	result, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)

	payload := decode(t, result.Content[0].Text)
	hits, ok := payload["hits"].([]any)
	require.True(t, ok)
	require.Len(t, hits, 1)
}

func TestFindRelatedFilesReturnsFunctionCallsCategory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("def greet(name):\n    return name\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.py"), []byte("from a import greet\n\ndef main():\n    greet(\"x\")\n"), 0o644))

	f := newTestFacade(t, root)
	_, err := f.InitializeLibrarian(root)
	require.NoError(t, err)

	tool := NewFindRelatedFiles(f)
	params, _ := json.Marshal(map[string]string{"project_path": root, "file_path": "b.py"})
	result, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)

	payload := decode(t, result.Content[0].Text)
	related, ok := payload["related"].(map[string]any)
	require.True(t, ok)
	calls, ok := related["function_calls"].([]any)
	require.True(t, ok)
	require.Len(t, calls, 1)
	entry := calls[0].(map[string]any)
	assert.Equal(t, "greet", entry["function_name"])
}

func TestInitializeToolIndexSeedsFromRegisteredTools(t *testing.T) {
	root := t.TempDir()
	f := newTestFacade(t, root)
	// The facade was constructed with an empty registry and this tool is not
	// registered on it, so the seed finds no tools.
	tool := NewInitializeToolIndex(f)

	params, _ := json.Marshal(map[string]string{"project_path": root})
	result, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)

	payload := decode(t, result.Content[0].Text)
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, float64(0), payload["tool_count"], "no tools were registered on this facade's empty registry")
}
