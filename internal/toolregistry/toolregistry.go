// Package toolregistry implements the Tool Registry Store (C4): read/write
// access to the on-disk Tool Reference layout under
// <project>/.tool_reference/.
//
// Grounded on spec §4.4's layout description and on the teacher's
// internal/mcp.Registry for what a "tool" looks like in this codebase: every
// tool registered with the transport (C0) is introspected here to seed the
// on-disk registry.
package toolregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/emergent-company/specindex/internal/model"
)

const (
	canonicalDirName = ".tool_reference"
	pluralDirName    = ".tool_references" // legacy alias, mirrored per spec §9(ii)

	registryFile          = "registry.json"
	categoriesFile        = "categories.json"
	toolProfilesDir       = "tool_profiles"
	decisionTreesDir      = "decision_trees"
	aiReferencesDir       = "ai_references"
	bidirectionalRefsFile = "bidirectional_refs.json"
)

// Store is the on-disk Tool Reference for one project.
type Store struct {
	ProjectRoot string
}

// New returns a Store rooted at projectRoot.
func New(projectRoot string) *Store {
	return &Store{ProjectRoot: projectRoot}
}

// Dir returns the canonical singular directory, unless only the plural
// alias exists — per spec §9(ii), the plural is then authoritative and the
// singular is made to mirror it on the next save.
func (s *Store) Dir() string {
	canonical := filepath.Join(s.ProjectRoot, canonicalDirName)
	if _, err := os.Stat(canonical); err == nil {
		return canonical
	}
	plural := filepath.Join(s.ProjectRoot, pluralDirName)
	if _, err := os.Stat(plural); err == nil {
		return plural
	}
	return canonical
}

func (s *Store) mirrorDir() string {
	if s.Dir() == filepath.Join(s.ProjectRoot, pluralDirName) {
		return filepath.Join(s.ProjectRoot, canonicalDirName)
	}
	return filepath.Join(s.ProjectRoot, pluralDirName)
}

// Exists reports whether either the canonical or plural directory exists.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.Dir())
	return err == nil && info.IsDir()
}

// InitSkeleton creates the canonical .tool_reference/ tree if neither form
// exists yet.
func (s *Store) InitSkeleton() error {
	dir := s.Dir()
	dirs := []string{dir, filepath.Join(dir, toolProfilesDir), filepath.Join(dir, decisionTreesDir), filepath.Join(dir, aiReferencesDir)}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", d, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, registryFile)); os.IsNotExist(err) {
		if err := s.SaveRegistry(&model.ToolRegistryDoc{Version: model.ToolRegistryVersion, Tools: map[string]model.Tool{}}); err != nil {
			return err
		}
	}
	return nil
}

// LoadRegistry reads registry.json. A missing, unparseable or version-less
// document yields a fresh empty registry rather than an error — readers
// tolerate a missing index as a cache miss — but a document on a different
// major version is refused, matching indexstore.Store.LoadRegistry's
// discipline.
func (s *Store) LoadRegistry() (*model.ToolRegistryDoc, error) {
	var doc model.ToolRegistryDoc
	ok, err := readJSON(filepath.Join(s.Dir(), registryFile), &doc)
	if err != nil {
		return nil, err
	}
	if !ok || doc.Version == "" {
		return &model.ToolRegistryDoc{Version: model.ToolRegistryVersion, Tools: map[string]model.Tool{}}, nil
	}
	if model.MajorVersion(doc.Version) != model.MajorVersion(model.ToolRegistryVersion) {
		return nil, fmt.Errorf("registry.json: unsupported major version %q", doc.Version)
	}
	if doc.Tools == nil {
		doc.Tools = map[string]model.Tool{}
	}
	return &doc, nil
}

// SaveRegistry writes registry.json to Dir() and mirrors it to the other
// form of the directory (singular or plural), per the Open Question
// decision in DESIGN.md.
func (s *Store) SaveRegistry(doc *model.ToolRegistryDoc) error {
	if doc.Version == "" {
		doc.Version = model.ToolRegistryVersion
	}
	if err := writeJSON(filepath.Join(s.Dir(), registryFile), doc); err != nil {
		return err
	}
	return s.mirrorIfNeeded(registryFile, doc)
}

// SaveCategories writes categories.json (category -> tool IDs).
func (s *Store) SaveCategories(cats map[string][]string) error {
	return writeJSON(filepath.Join(s.Dir(), categoriesFile), cats)
}

// LoadCategories reads categories.json.
func (s *Store) LoadCategories() (map[string][]string, error) {
	var cats map[string][]string
	ok, err := readJSON(filepath.Join(s.Dir(), categoriesFile), &cats)
	if err != nil || !ok {
		return map[string][]string{}, nil
	}
	return cats, nil
}

// SaveProfile writes a tool's detailed profile.
func (s *Store) SaveProfile(profile *model.ToolProfile) error {
	path := filepath.Join(s.Dir(), toolProfilesDir, profile.ID+".json")
	return writeJSON(path, profile)
}

// LoadProfile reads a tool's profile. If the file is missing, a minimal
// fallback profile flagged _fallback_profile is synthesised rather than
// failing, per spec §4.4.
func (s *Store) LoadProfile(toolID string) (*model.ToolProfile, error) {
	path := filepath.Join(s.Dir(), toolProfilesDir, toolID+".json")
	var p model.ToolProfile
	ok, err := readJSON(path, &p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &model.ToolProfile{ID: toolID, FallbackProfile: true}, nil
	}
	return &p, nil
}

// ListProfileIDs lists every tool ID with a profile file on disk.
func (s *Store) ListProfileIDs() ([]string, error) {
	dir := filepath.Join(s.Dir(), toolProfilesDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) == ".json" {
			ids = append(ids, name[:len(name)-len(".json")])
		}
	}
	return ids, nil
}

// BidirectionalRefsPath returns the path of this project's tool-side copy
// of the unified edge map.
func (s *Store) BidirectionalRefsPath() string {
	return filepath.Join(s.Dir(), bidirectionalRefsFile)
}

// SaveBidirectionalRefs writes the unified edge map, mirrored to the plural
// alias if one is in play.
func (s *Store) SaveBidirectionalRefs(refs *model.BidirectionalRefs) error {
	if err := writeJSON(s.BidirectionalRefsPath(), refs); err != nil {
		return err
	}
	return s.mirrorIfNeeded(bidirectionalRefsFile, refs)
}

// LoadBidirectionalRefs reads this project's tool-side copy of the unified
// edge map, if present.
func (s *Store) LoadBidirectionalRefs() (*model.BidirectionalRefs, bool, error) {
	var refs model.BidirectionalRefs
	ok, err := readJSON(s.BidirectionalRefsPath(), &refs)
	if err != nil || !ok {
		return nil, false, err
	}
	return &refs, true, nil
}

func (s *Store) mirrorIfNeeded(file string, v any) error {
	mirror := s.mirrorDir()
	if _, err := os.Stat(mirror); err != nil {
		// Mirror dir doesn't exist yet: it is created below regardless, so
		// the first save of a mirrored file brings both forms into being.
		// Only registry.json and bidirectional_refs.json are mirrored.
	}
	if err := os.MkdirAll(mirror, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(mirror, file), v)
}

func readJSON(path string, v any) (ok bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return false, nil
	}
	if jsonErr := json.Unmarshal(b, v); jsonErr != nil {
		return false, nil
	}
	return true, nil
}

func writeJSON(path string, v any) error {
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
