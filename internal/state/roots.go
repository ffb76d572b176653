// Package state holds process-wide, cross-component state: the allowed-roots
// policy and the persisted active-projects file, replacing the Python
// original's single global librarian_context with an explicit struct.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// AllowedRoots is a process-level immutable list of absolute directory
// paths. It is the only access-control mechanism in the system.
type AllowedRoots struct {
	roots []string
}

// NewAllowedRoots normalises and stores the given roots. Relative paths are
// made absolute against the current working directory.
func NewAllowedRoots(paths []string) (*AllowedRoots, error) {
	ar := &AllowedRoots{}
	for _, p := range paths {
		abs, err := normalize(p)
		if err != nil {
			return nil, fmt.Errorf("resolving root %q: %w", p, err)
		}
		ar.roots = append(ar.roots, abs)
	}
	return ar, nil
}

func normalize(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// List returns the allowed roots in the order they were registered.
func (ar *AllowedRoots) List() []string {
	out := make([]string, len(ar.roots))
	copy(out, ar.roots)
	return out
}

// Allowed reports whether path is lexically contained within one of the
// allowed roots, after normalisation. A root always contains itself.
func (ar *AllowedRoots) Allowed(path string) bool {
	abs, err := normalize(path)
	if err != nil {
		return false
	}
	for _, root := range ar.roots {
		if abs == root {
			return true
		}
		if strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// ProcessState is the persisted process-level state file: which projects
// were actively monitored, and when each was last updated.
type ProcessState struct {
	mu             sync.Mutex
	path           string
	ActiveProjects []string         `json:"active_projects"`
	LastUpdate     map[string]int64 `json:"last_update"` // project -> unix epoch seconds
}

// LoadProcessState reads the state file at path, or returns an empty state
// if the file does not exist.
func LoadProcessState(path string) (*ProcessState, error) {
	ps := &ProcessState{path: path, LastUpdate: map[string]int64{}}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ps, nil
		}
		return nil, err
	}
	var doc struct {
		ActiveProjects []string         `json:"active_projects"`
		LastUpdate     map[string]int64 `json:"last_update"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return ps, nil // corrupt state file: start fresh rather than fail startup
	}
	ps.ActiveProjects = doc.ActiveProjects
	if doc.LastUpdate != nil {
		ps.LastUpdate = doc.LastUpdate
	}
	return ps, nil
}

// Touch records that project was just updated, adding it to ActiveProjects
// if not already present, and persists the state file.
func (ps *ProcessState) Touch(project string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	found := false
	for _, p := range ps.ActiveProjects {
		if p == project {
			found = true
			break
		}
	}
	if !found {
		ps.ActiveProjects = append(ps.ActiveProjects, project)
	}
	ps.LastUpdate[project] = time.Now().Unix()
	return ps.save()
}

func (ps *ProcessState) save() error {
	if ps.path == "" {
		return nil
	}
	b, err := json.MarshalIndent(struct {
		ActiveProjects []string         `json:"active_projects"`
		LastUpdate     map[string]int64 `json:"last_update"`
	}{ps.ActiveProjects, ps.LastUpdate}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(ps.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(ps.path, b, 0o644)
}
