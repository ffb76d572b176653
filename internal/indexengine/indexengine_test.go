package indexengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/specindex/internal/indexstore"
	"github.com/emergent-company/specindex/internal/model"
)

func writeProjectFile(t *testing.T, root, relPath, contents string) {
	t.Helper()
	path := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestInitialiseReportsComponentsAndFilesIndexed(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "a.py", "def greet(name):\n    return \"hi \" + name\n")
	writeProjectFile(t, root, "b.py", "from a import greet\n\ndef main():\n    greet(\"world\")\n")

	e := New(nil)
	summary, err := e.Initialise(root)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.FilesIndexed)
	assert.Equal(t, "2 components identified, 2 files indexed", summary.Message)
}

func TestQueryComponentFindsDefinition(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "a.py", "def greet(name):\n    return \"hi \" + name\n")

	e := New(nil)
	_, err := e.Initialise(root)
	require.NoError(t, err)

	hits, err := e.QueryComponent(root, "greet")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a.py", hits[0].File)
	assert.Equal(t, model.KindFunction, hits[0].Kind)
	assert.Contains(t, hits[0].Source, "def greet")
}

func TestQueryComponentUnknownNameReturnsNotFound(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "a.py", "def greet(name):\n    return name\n")

	e := New(nil)
	_, err := e.Initialise(root)
	require.NoError(t, err)

	_, err = e.QueryComponent(root, "nonexistent_component")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindRelatedFilesGroupsFunctionCalls(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "a.py", "def greet(name):\n    return \"hi \" + name\n")
	writeProjectFile(t, root, "b.py", "from a import greet\n\ndef main():\n    greet(\"world\")\n")

	e := New(nil)
	_, err := e.Initialise(root)
	require.NoError(t, err)

	related, err := e.FindRelatedFiles(root, "b.py")
	require.NoError(t, err)

	calls, ok := related["function_calls"]
	require.True(t, ok, "expected a function_calls category")
	require.Len(t, calls, 1)
	assert.Equal(t, "a.py", calls[0].File)
	assert.Equal(t, "greet", calls[0].ComponentName)
}

func TestFindImplementationReturnsSurroundingContext(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "a.py", "line one\nline two\nneedle here\nline four\nline five\n")

	e := New(nil)
	_, err := e.Initialise(root)
	require.NoError(t, err)

	matches, err := e.FindImplementation(root, "needle", "")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a.py", matches[0].File)
	assert.Contains(t, matches[0].MatchLine, "needle here")
	assert.Equal(t, []string{"line one", "line two"}, matches[0].Before)
	assert.Equal(t, []string{"line four", "line five", ""}, matches[0].After)
}

func TestReindexPicksUpNewFile(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "a.py", "def greet(name):\n    return name\n")

	e := New(nil)
	_, err := e.Initialise(root)
	require.NoError(t, err)

	writeProjectFile(t, root, "b.py", "def farewell(name):\n    return name\n")
	summary, err := e.Reindex(root)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.FilesIndexed)
}

func TestDiagnosticsFlagsMissingInverseCrossReference(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "a.py", "def greet(name):\n    return name\n")

	e := New(nil)
	_, err := e.Initialise(root)
	require.NoError(t, err)

	store := indexstore.New(root)
	require.NoError(t, store.SaveBidirectionalRefs(&model.BidirectionalRefs{
		Version: model.BidirectionalRefsVersion,
		ComponentToTool: map[string]model.EdgeList{
			"greet": {{ComponentName: "greet", ToolID: "query_component", Type: model.RelReference, Strength: model.StrengthMedium}},
		},
		ToolToComponent: map[string]model.EdgeList{},
	}))

	report, err := e.Diagnostics(root)
	require.NoError(t, err)
	assert.Contains(t, report, `"greet" -> "query_component" has no inverse tool_to_component edge`)
}
