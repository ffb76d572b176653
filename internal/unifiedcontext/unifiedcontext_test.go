package unifiedcontext

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/specindex/internal/indexstore"
	"github.com/emergent-company/specindex/internal/model"
	"github.com/emergent-company/specindex/internal/toolregistry"
)

func seedProject(t *testing.T, root string) {
	t.Helper()
	aiStore := indexstore.New(root)
	require.NoError(t, aiStore.InitSkeleton())
	reg, err := aiStore.LoadRegistry()
	require.NoError(t, err)
	reg.Components["greet"] = model.Component{Name: "greet", Kind: model.KindFunction, File: "query_handler.py"}
	require.NoError(t, aiStore.SaveRegistry(reg))

	toolStore := toolregistry.New(root)
	require.NoError(t, toolStore.InitSkeleton())
	doc, err := toolStore.LoadRegistry()
	require.NoError(t, err)
	doc.Tools["query"] = model.Tool{ID: "query", Category: "query"}
	require.NoError(t, toolStore.SaveRegistry(doc))
}

func TestGetBuildsFromDiskOnFirstCall(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root)

	c := New(300 * time.Second)
	ctx, err := c.Get(root)
	require.NoError(t, err)

	assert.Contains(t, ctx.Components, "greet")
	assert.Contains(t, ctx.Tools, "query")
	assert.Contains(t, ctx.SystemsAvailable, "index_store")
	assert.Contains(t, ctx.SystemsAvailable, "tool_registry_store")
	assert.NotContains(t, ctx.SystemsAvailable, "cross_reference_builder", "no bidirectional_refs.json was ever written")
}

func TestGetIsCachedWithinTTL(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root)

	c := New(300 * time.Second)
	first, err := c.Get(root)
	require.NoError(t, err)

	aiStore := indexstore.New(root)
	reg, err := aiStore.LoadRegistry()
	require.NoError(t, err)
	reg.Components["late_addition"] = model.Component{Name: "late_addition", Kind: model.KindFunction, File: "b.py"}
	require.NoError(t, aiStore.SaveRegistry(reg))

	second, err := c.Get(root)
	require.NoError(t, err)
	assert.Same(t, first, second, "within TTL the cached snapshot must be returned unchanged")
	assert.NotContains(t, second.Components, "late_addition")
}

func TestGetRebuildsAfterTTLExpiry(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root)

	c := New(time.Millisecond)
	_, err := c.Get(root)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	aiStore := indexstore.New(root)
	reg, err := aiStore.LoadRegistry()
	require.NoError(t, err)
	reg.Components["late_addition"] = model.Component{Name: "late_addition", Kind: model.KindFunction, File: "b.py"}
	require.NoError(t, aiStore.SaveRegistry(reg))

	second, err := c.Get(root)
	require.NoError(t, err)
	assert.Contains(t, second.Components, "late_addition")
}

func TestInvalidateForcesRebuild(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root)

	c := New(300 * time.Second)
	_, err := c.Get(root)
	require.NoError(t, err)

	aiStore := indexstore.New(root)
	reg, err := aiStore.LoadRegistry()
	require.NoError(t, err)
	reg.Components["late_addition"] = model.Component{Name: "late_addition", Kind: model.KindFunction, File: "b.py"}
	require.NoError(t, aiStore.SaveRegistry(reg))

	c.Invalidate(root)
	second, err := c.Get(root)
	require.NoError(t, err)
	assert.Contains(t, second.Components, "late_addition")
}

func TestRelatedToolsDirectEdgeThenInference(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root)

	aiStore := indexstore.New(root)
	toolStore := toolregistry.New(root)
	refs := &model.BidirectionalRefs{
		ComponentToTool: map[string]model.EdgeList{
			"greet": {model.CrossReference{ComponentName: "greet", ToolID: "query", Type: model.RelUsage}},
		},
		ToolToComponent: map[string]model.EdgeList{
			"query": {model.CrossReference{ComponentName: "greet", ToolID: "query", Type: model.RelUsage}},
		},
	}
	require.NoError(t, aiStore.SaveBidirectionalRefs(refs))
	require.NoError(t, toolStore.SaveBidirectionalRefs(refs))

	c := New(300 * time.Second)
	related, err := c.RelatedTools(root, "greet")
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, "direct", related[0].Origin)
	assert.Equal(t, model.RelUsage, related[0].Type)
}

func TestRelatedToolsFallsBackToCategoryInference(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root) // greet lives in query_handler.py, tool "query" has category "query"

	c := New(300 * time.Second)
	related, err := c.RelatedTools(root, "greet")
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, "inferred", related[0].Origin)
	assert.Equal(t, "query", related[0].Tool.ID)
}

func TestRelatedComponentsSymmetricToRelatedTools(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root)

	c := New(300 * time.Second)
	related, err := c.RelatedComponents(root, "query")
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, "greet", related[0].Component.Name)
	assert.Equal(t, "inferred", related[0].Origin)
}
