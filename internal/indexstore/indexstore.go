// Package indexstore implements the Index Store (C3): read/write access to
// the on-disk AI Reference layout under <project>/.ai_reference/.
//
// Grounded on original_source/aitoolkit/librarian/server.py's
// generate_script_index / generate_component_registry /
// generate_mini_librarian for document shape, and on spec §4.3's advisory
// per-file locking requirement, served here by gofrs/flock.
package indexstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/emergent-company/specindex/internal/model"
)

const (
	dirName          = ".ai_reference"
	scriptsDir       = "scripts"
	diagnosticsDir   = "diagnostics"
	editBookmarksDir = "edit_bookmarks"
	toolRefsDir      = "tool_references"

	componentRegistryFile = "component_registry.json"
	scriptIndexFile       = "script_index.json"
	bidirectionalRefsFile = "bidirectional_refs.json"
	readmeFile            = "README.md"
)

// Store is the on-disk AI Reference for one project.
type Store struct {
	ProjectRoot string
}

// New returns a Store rooted at projectRoot.
func New(projectRoot string) *Store {
	return &Store{ProjectRoot: projectRoot}
}

// Dir returns the absolute path of .ai_reference/ for this project.
func (s *Store) Dir() string { return filepath.Join(s.ProjectRoot, dirName) }

// Exists reports whether .ai_reference/ has already been initialised.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.Dir())
	return err == nil && info.IsDir()
}

// InitSkeleton creates the .ai_reference/ directory tree if absent, writing
// a human-readable README and empty top-level documents. Idempotent.
func (s *Store) InitSkeleton() error {
	dirs := []string{s.Dir(), filepath.Join(s.Dir(), scriptsDir), filepath.Join(s.Dir(), diagnosticsDir),
		filepath.Join(s.Dir(), editBookmarksDir), filepath.Join(s.Dir(), toolRefsDir)}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", d, err)
		}
	}

	readmePath := filepath.Join(s.Dir(), readmeFile)
	if _, err := os.Stat(readmePath); os.IsNotExist(err) {
		const readme = "# AI Reference\n\nGenerated index of project components. See component_registry.json and script_index.json.\n"
		if err := os.WriteFile(readmePath, []byte(readme), 0o644); err != nil {
			return err
		}
	}

	if !s.registryExists() {
		if err := s.SaveRegistry(&model.ComponentRegistry{
			Version:    model.ComponentRegistryVersion,
			Components: map[string]model.Component{},
		}); err != nil {
			return err
		}
	}
	if !s.scriptIndexExists() {
		if err := s.SaveScriptIndex(&model.ScriptIndex{
			Version: model.ScriptIndexVersion,
			Files:   map[string]model.ScriptFileEntry{},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) registryExists() bool {
	_, err := os.Stat(filepath.Join(s.Dir(), componentRegistryFile))
	return err == nil
}

func (s *Store) scriptIndexExists() bool {
	_, err := os.Stat(filepath.Join(s.Dir(), scriptIndexFile))
	return err == nil
}

// LoadRegistry reads component_registry.json. A missing, unparseable or
// version-less document yields a fresh empty registry rather than an error —
// readers tolerate a missing index as a cache miss. A document on an
// unsupported major version is refused with an error.
func (s *Store) LoadRegistry() (*model.ComponentRegistry, error) {
	var reg model.ComponentRegistry
	ok, err := readJSON(filepath.Join(s.Dir(), componentRegistryFile), &reg)
	if err != nil {
		return nil, err
	}
	if !ok || reg.Version == "" {
		return &model.ComponentRegistry{Version: model.ComponentRegistryVersion, Components: map[string]model.Component{}}, nil
	}
	if model.MajorVersion(reg.Version) != model.MajorVersion(model.ComponentRegistryVersion) {
		return nil, fmt.Errorf("component_registry.json: unsupported major version %q", reg.Version)
	}
	if reg.Components == nil {
		reg.Components = map[string]model.Component{}
	}
	return &reg, nil
}

// SaveRegistry writes component_registry.json under an advisory lock.
func (s *Store) SaveRegistry(reg *model.ComponentRegistry) error {
	if reg.Version == "" {
		reg.Version = model.ComponentRegistryVersion
	}
	return writeJSONLocked(filepath.Join(s.Dir(), componentRegistryFile), reg)
}

// LoadScriptIndex reads script_index.json.
func (s *Store) LoadScriptIndex() (*model.ScriptIndex, error) {
	var idx model.ScriptIndex
	ok, err := readJSON(filepath.Join(s.Dir(), scriptIndexFile), &idx)
	if err != nil {
		return nil, err
	}
	if !ok || idx.Version == "" {
		return &model.ScriptIndex{Version: model.ScriptIndexVersion, Files: map[string]model.ScriptFileEntry{}}, nil
	}
	if model.MajorVersion(idx.Version) != model.MajorVersion(model.ScriptIndexVersion) {
		return nil, fmt.Errorf("script_index.json: unsupported major version %q", idx.Version)
	}
	if idx.Files == nil {
		idx.Files = map[string]model.ScriptFileEntry{}
	}
	return &idx, nil
}

// SaveScriptIndex writes script_index.json under an advisory lock.
func (s *Store) SaveScriptIndex(idx *model.ScriptIndex) error {
	if idx.Version == "" {
		idx.Version = model.ScriptIndexVersion
	}
	return writeJSONLocked(filepath.Join(s.Dir(), scriptIndexFile), idx)
}

// MiniRecordFileName derives a flattened file name for a mini-record from a
// project-relative path, mirroring the Python original's path-separator/dot
// replacement scheme. Separators and dots both become "_", so distinct paths
// such as "a/b.py" and "a_b.py" map to the same name.
func MiniRecordFileName(relPath string) string {
	flat := strings.ReplaceAll(relPath, string(filepath.Separator), "_")
	flat = strings.ReplaceAll(flat, "/", "_")
	flat = strings.ReplaceAll(flat, ".", "_")
	return flat + ".json"
}

// SaveMiniRecord writes one per-file mini-record under scripts/.
func (s *Store) SaveMiniRecord(rec *model.MiniRecord) error {
	path := filepath.Join(s.Dir(), scriptsDir, MiniRecordFileName(rec.Path))
	return writeJSONLocked(path, rec)
}

// LoadMiniRecord reads one mini-record by project-relative path. A missing
// or half-written record is reported as a cache miss (ok=false), never an
// error.
func (s *Store) LoadMiniRecord(relPath string) (rec *model.MiniRecord, ok bool, err error) {
	path := filepath.Join(s.Dir(), scriptsDir, MiniRecordFileName(relPath))
	var r model.MiniRecord
	found, rerr := readJSON(path, &r)
	if rerr != nil {
		return nil, false, nil // half-written / corrupt: treat as miss, not error
	}
	if !found {
		return nil, false, nil
	}
	return &r, true, nil
}

// DeleteMiniRecord removes a file's mini-record. Missing file is not an
// error.
func (s *Store) DeleteMiniRecord(relPath string) error {
	path := filepath.Join(s.Dir(), scriptsDir, MiniRecordFileName(relPath))
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SaveDiagnostic persists a timestamped diagnostic report.
func (s *Store) SaveDiagnostic(name string, report string) error {
	dir := filepath.Join(s.Dir(), diagnosticsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	ts := time.Now().UTC().Format("20060102T150405Z")
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.md", ts, name))
	return os.WriteFile(path, []byte(report), 0o644)
}

// BidirectionalRefsPath returns the path of this project's copy of the
// unified edge map.
func (s *Store) BidirectionalRefsPath() string {
	return filepath.Join(s.Dir(), bidirectionalRefsFile)
}

// SaveBidirectionalRefs writes the unified edge map.
func (s *Store) SaveBidirectionalRefs(refs *model.BidirectionalRefs) error {
	return writeJSONLocked(s.BidirectionalRefsPath(), refs)
}

// LoadBidirectionalRefs reads the unified edge map, if present.
func (s *Store) LoadBidirectionalRefs() (*model.BidirectionalRefs, bool, error) {
	var refs model.BidirectionalRefs
	ok, err := readJSON(s.BidirectionalRefsPath(), &refs)
	if err != nil || !ok {
		return nil, false, err
	}
	return &refs, true, nil
}

// readJSON decodes path into v. ok=false (no error) means the file does not
// exist or could not be parsed — callers treat this as a cache miss per
// spec §4.3.
func readJSON(path string, v any) (ok bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, nil
	}
	if jsonErr := json.Unmarshal(b, v); jsonErr != nil {
		return false, nil
	}
	return true, nil
}

// writeJSONLocked marshals v and writes it to path, holding an advisory
// file lock (gofrs/flock) for the duration so concurrent writers (including
// other processes) serialise on the same file, per spec §4.3.
func writeJSONLocked(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	lockPath := path + ".lock"
	fl := flock.New(lockPath)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", lockPath, err)
	}
	defer fl.Unlock()

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
