package toolregistry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/specindex/internal/model"
)

func TestInitSkeletonCreatesCanonicalDir(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	require.NoError(t, s.InitSkeleton())

	assert.True(t, s.Exists())
	assert.Equal(t, filepath.Join(root, ".tool_reference"), s.Dir())

	doc, err := s.LoadRegistry()
	require.NoError(t, err)
	assert.Empty(t, doc.Tools)
}

func TestLoadRegistryRejectsUnsupportedMajorVersion(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	require.NoError(t, s.InitSkeleton())

	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), registryFile),
		[]byte(`{"version":"99.0.0","tools":{}}`), 0o644))

	_, err := s.LoadRegistry()
	assert.Error(t, err)
}

func TestDirPrefersExistingPluralAlias(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".tool_references"), 0o755))

	s := New(root)
	assert.Equal(t, filepath.Join(root, ".tool_references"), s.Dir())
}

func TestSaveRegistryMirrorsToPluralAliasOnceInPlay(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".tool_references"), 0o755))

	s := New(root)
	doc := &model.ToolRegistryDoc{Tools: map[string]model.Tool{"query": {ID: "query"}}}
	require.NoError(t, s.SaveRegistry(doc))

	mirrored := filepath.Join(root, ".tool_reference", "registry.json")
	_, err := os.Stat(mirrored)
	assert.NoError(t, err, "saving while the plural alias is authoritative must mirror onto the canonical dir")
}

func TestLoadProfileMissingReturnsFallback(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	require.NoError(t, s.InitSkeleton())

	profile, err := s.LoadProfile("nonexistent-tool")
	require.NoError(t, err)
	assert.True(t, profile.FallbackProfile)
	assert.Equal(t, "nonexistent-tool", profile.ID)
}

func TestSaveAndLoadProfileRoundTrip(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	require.NoError(t, s.InitSkeleton())

	require.NoError(t, s.SaveProfile(&model.ToolProfile{ID: "query", Purpose: "locate components"}))

	profile, err := s.LoadProfile("query")
	require.NoError(t, err)
	assert.False(t, profile.FallbackProfile)
	assert.Equal(t, "locate components", profile.Purpose)

	ids, err := s.ListProfileIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"query"}, ids)
}

func TestCategoriesRoundTrip(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	require.NoError(t, s.InitSkeleton())

	require.NoError(t, s.SaveCategories(map[string][]string{"query": {"query_component", "find_implementation"}}))

	cats, err := s.LoadCategories()
	require.NoError(t, err)
	assert.Equal(t, []string{"query_component", "find_implementation"}, cats["query"])
}

func TestLoadCategoriesMissingReturnsEmptyMap(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	require.NoError(t, s.InitSkeleton())

	cats, err := s.LoadCategories()
	require.NoError(t, err)
	assert.Empty(t, cats)
}

func TestBidirectionalRefsRoundTrip(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	require.NoError(t, s.InitSkeleton())

	refs := &model.BidirectionalRefs{ToolsCount: 1, ToolToComponent: map[string]model.EdgeList{}}
	require.NoError(t, s.SaveBidirectionalRefs(refs))

	loaded, ok, err := s.LoadBidirectionalRefs()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, loaded.ToolsCount)
}
