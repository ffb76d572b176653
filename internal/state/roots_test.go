package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowedRootsAllowed(t *testing.T) {
	dir := t.TempDir()
	roots, err := NewAllowedRoots([]string{dir})
	require.NoError(t, err)

	assert.True(t, roots.Allowed(dir))
	assert.True(t, roots.Allowed(filepath.Join(dir, "sub", "file.go")))
	assert.False(t, roots.Allowed(filepath.Join(filepath.Dir(dir), "elsewhere")))
}

func TestAllowedRootsRejectsPrefixCollision(t *testing.T) {
	dir := t.TempDir()
	roots, err := NewAllowedRoots([]string{dir})
	require.NoError(t, err)

	// A sibling directory that merely shares dir as a string prefix (not a
	// path-separated prefix) must not be treated as contained.
	assert.False(t, roots.Allowed(dir+"-sibling"))
}

func TestAllowedRootsList(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	roots, err := NewAllowedRoots([]string{a, b})
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, roots.List())
}

func TestProcessStateLoadMissingFileReturnsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	ps, err := LoadProcessState(path)
	require.NoError(t, err)
	assert.Empty(t, ps.ActiveProjects)
}

func TestProcessStateTouchPersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "process_state.json")
	ps, err := LoadProcessState(path)
	require.NoError(t, err)

	require.NoError(t, ps.Touch("/projects/a"))
	require.NoError(t, ps.Touch("/projects/b"))
	require.NoError(t, ps.Touch("/projects/a")) // idempotent, should not duplicate

	assert.ElementsMatch(t, []string{"/projects/a", "/projects/b"}, ps.ActiveProjects)

	reloaded, err := LoadProcessState(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/projects/a", "/projects/b"}, reloaded.ActiveProjects)
}

func TestProcessStateLoadCorruptFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "process_state.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	ps, err := LoadProcessState(path)
	require.NoError(t, err)
	assert.Empty(t, ps.ActiveProjects)
}
