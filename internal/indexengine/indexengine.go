// Package indexengine implements the Index Engine (C5): owns in-memory
// per-project state, orchestrates the Source Parser (C1) and Project
// Scanner (C2) to build and refresh the AI Reference via the Index Store
// (C3), and answers component/text queries.
//
// Grounded on original_source/aitoolkit/librarian/server.py's
// initialize_librarian / query_component / find_implementation, and on the
// teacher's per-factory locking idiom generalised here to a per-project
// sync.RWMutex registry.
package indexengine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emergent-company/specindex/internal/indexstore"
	"github.com/emergent-company/specindex/internal/model"
	"github.com/emergent-company/specindex/internal/parser"
	"github.com/emergent-company/specindex/internal/scanner"
)

// ErrNotFound is returned by QueryComponent when no file defines the named
// component.
var ErrNotFound = fmt.Errorf("not found")

// projectState is the in-memory state the engine owns for one project.
type projectState struct {
	mu           sync.RWMutex
	root         string
	store        *indexstore.Store
	indexedFiles map[string]time.Time // absolute path -> mtime, as of last reindex
	lastUpdate   time.Time
}

// Engine owns the set of actively-monitored projects.
type Engine struct {
	logger *slog.Logger

	stateMu  sync.RWMutex // guards the projects map itself
	projects map[string]*projectState
}

// New creates an empty Engine.
func New(logger *slog.Logger) *Engine {
	return &Engine{logger: logger, projects: map[string]*projectState{}}
}

func (e *Engine) getOrCreate(root string) *projectState {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if p, ok := e.projects[root]; ok {
		return p
	}
	p := &projectState{root: root, store: indexstore.New(root), indexedFiles: map[string]time.Time{}}
	e.projects[root] = p
	return p
}

// ActiveProjects lists every project root currently tracked in memory.
func (e *Engine) ActiveProjects() []string {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	out := make([]string, 0, len(e.projects))
	for root := range e.projects {
		out = append(out, root)
	}
	sort.Strings(out)
	return out
}

// IsActive reports whether root is in the active project set.
func (e *Engine) IsActive(root string) bool {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	_, ok := e.projects[root]
	return ok
}

// DiagnosticSummary is the human-readable result of Initialise.
type DiagnosticSummary struct {
	FilesIndexed     int
	ComponentsFound  int
	Message          string
}

// Initialise creates the .ai_reference/ skeleton, performs a full reindex,
// and registers the project for monitoring.
func (e *Engine) Initialise(root string) (*DiagnosticSummary, error) {
	ps := e.getOrCreate(root)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if err := ps.store.InitSkeleton(); err != nil {
		return nil, fmt.Errorf("initialising .ai_reference: %w", err)
	}

	summary, err := e.reindexLocked(ps)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// Reindex reruns the scanner and reparses any file whose mtime changed.
func (e *Engine) Reindex(root string) (*DiagnosticSummary, error) {
	ps := e.getOrCreate(root)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return e.reindexLocked(ps)
}

func (e *Engine) reindexLocked(ps *projectState) (*DiagnosticSummary, error) {
	entries, err := scanner.Scan(ps.root, nil)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", ps.root, err)
	}

	seen := map[string]bool{}
	for _, ent := range entries {
		rel, err := filepath.Rel(ps.root, ent.AbsPath)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		seen[rel] = true

		prevMtime, known := ps.indexedFiles[ent.AbsPath]
		if known && prevMtime.Equal(ent.ModTime) {
			continue // unchanged since last index: leave mini-record/registry entry as-is
		}

		src, err := os.ReadFile(ent.AbsPath)
		if err != nil {
			e.logf("warn", "reading file for reindex", "path", ent.AbsPath, "error", err)
			continue
		}
		result := parser.Parse(e.logger, ent.AbsPath, src)

		rec := &model.MiniRecord{
			Path:      rel,
			Classes:   result.Classes,
			Functions: result.Functions,
			Imports:   result.Imports,
		}
		if err := ps.store.SaveMiniRecord(rec); err != nil {
			e.logf("warn", "saving mini record", "path", rel, "error", err)
			continue
		}
		ps.indexedFiles[ent.AbsPath] = ent.ModTime
	}

	// Purge mini-records/index entries for files no longer seen.
	idx, err := ps.store.LoadScriptIndex()
	if err != nil {
		return nil, err
	}
	for relPath := range idx.Files {
		if !seen[relPath] {
			_ = ps.store.DeleteMiniRecord(relPath)
		}
	}
	for abs := range ps.indexedFiles {
		rel, _ := filepath.Rel(ps.root, abs)
		rel = filepath.ToSlash(rel)
		if !seen[rel] {
			delete(ps.indexedFiles, abs)
		}
	}

	// Rebuild ScriptIndex and ComponentRegistry from the union of all
	// mini-records currently on disk (never mutated in place, per §3).
	newIdx := &model.ScriptIndex{Version: model.ScriptIndexVersion, Files: map[string]model.ScriptFileEntry{}}
	newReg := &model.ComponentRegistry{Version: model.ComponentRegistryVersion, Components: map[string]model.Component{}}

	var relPaths []string
	for rel := range seen {
		relPaths = append(relPaths, rel)
	}
	sort.Strings(relPaths)

	componentCount := 0
	for _, rel := range relPaths {
		rec, ok, err := ps.store.LoadMiniRecord(rel)
		if err != nil || !ok {
			continue
		}
		newIdx.Files[rel] = model.ScriptFileEntry{
			Path:          rel,
			Classes:       rec.Classes,
			Functions:     rec.Functions,
			MiniLibrarian: indexstore.MiniRecordFileName(rel),
		}
		for _, name := range rec.Classes {
			newReg.Components[name] = model.Component{Name: name, Kind: model.KindClass, File: rel}
			componentCount++
		}
		for _, name := range rec.Functions {
			newReg.Components[name] = model.Component{Name: name, Kind: model.KindFunction, File: rel}
			componentCount++
		}
	}

	if err := ps.store.SaveScriptIndex(newIdx); err != nil {
		return nil, err
	}
	if err := ps.store.SaveRegistry(newReg); err != nil {
		return nil, err
	}

	ps.lastUpdate = time.Now()

	return &DiagnosticSummary{
		FilesIndexed:    len(relPaths),
		ComponentsFound: componentCount,
		Message:         fmt.Sprintf("%d components identified, %d files indexed", componentCount, len(relPaths)),
	}, nil
}

// ComponentHit is one match from QueryComponent.
type ComponentHit struct {
	File      string
	Kind      model.ComponentKind
	LineRange string
	Source    string
}

// QueryComponent locates every file whose classes or functions list
// contains name, reopens and reparses each hit to find the exact line
// range, and returns the source slice.
func (e *Engine) QueryComponent(root, name string) ([]ComponentHit, error) {
	ps := e.getOrCreate(root)
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	idx, err := ps.store.LoadScriptIndex()
	if err != nil {
		return nil, err
	}

	var hits []ComponentHit
	var relPaths []string
	for rel := range idx.Files {
		relPaths = append(relPaths, rel)
	}
	sort.Strings(relPaths)

	for _, rel := range relPaths {
		entry := idx.Files[rel]
		kind, found := "", false
		for _, c := range entry.Classes {
			if c == name {
				kind, found = string(model.KindClass), true
			}
		}
		for _, f := range entry.Functions {
			if f == name {
				kind, found = string(model.KindFunction), true
			}
		}
		if !found {
			continue
		}

		abs := filepath.Join(ps.root, filepath.FromSlash(rel))
		src, err := os.ReadFile(abs)
		if err != nil {
			continue
		}
		start, end, slice := locateDefinition(string(src), name, model.ComponentKind(kind))
		hits = append(hits, ComponentHit{
			File:      rel,
			Kind:      model.ComponentKind(kind),
			LineRange: fmt.Sprintf("%d-%d", start, end),
			Source:    slice,
		})
	}

	if len(hits) == 0 {
		return nil, ErrNotFound
	}
	return hits, nil
}

// locateDefinition re-scans src textually for the def/class line naming
// name, returning its 1-based start/end line and the source text spanned.
// For a single-line definition start==end.
func locateDefinition(src, name string, kind model.ComponentKind) (start, end int, slice string) {
	lines := strings.Split(src, "\n")
	var keyword string
	if kind == model.KindClass {
		keyword = "class"
	} else {
		keyword = "def"
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		prefixed := strings.HasPrefix(trimmed, keyword+" "+name) ||
			strings.HasPrefix(trimmed, "func "+name) ||
			strings.Contains(trimmed, "func "+name+"(") ||
			strings.HasPrefix(trimmed, "type "+name+" struct")
		if !prefixed {
			continue
		}
		indent := leadingWhitespace(line)
		lineNo := i + 1
		endLine := lineNo
		for j := i + 1; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == "" {
				continue
			}
			if leadingWhitespace(lines[j]) <= indent && strings.TrimSpace(lines[j]) != "" {
				break
			}
			endLine = j + 1
		}
		slice = strings.Join(lines[lineNo-1:endLine], "\n")
		return lineNo, endLine, slice
	}
	return 1, 1, ""
}

func leadingWhitespace(s string) int {
	n := 0
	for _, r := range s {
		if r == ' ' || r == '\t' {
			n++
			continue
		}
		break
	}
	return n
}

// MatchContext is one matching line plus surrounding context, for
// find_implementation.
type MatchContext struct {
	File      string
	LineNo    int
	Before    []string
	MatchLine string
	After     []string
}

// FindImplementation performs a case-insensitive substring search across
// in-scope files (respecting the same exclusions as the Scanner, plus
// filePattern if given), returning three lines of context on each side of
// every matching line.
func (e *Engine) FindImplementation(root, text, filePattern string) ([]MatchContext, error) {
	entries, err := scanner.Scan(root, nil)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(text)
	var results []MatchContext

	for _, ent := range entries {
		rel, err := filepath.Rel(root, ent.AbsPath)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		if filePattern != "" {
			matched, _ := filepath.Match(filePattern, filepath.Base(rel))
			if !matched {
				continue
			}
		}

		src, err := os.ReadFile(ent.AbsPath)
		if err != nil {
			continue
		}
		lines := strings.Split(string(src), "\n")
		for i, line := range lines {
			if !strings.Contains(strings.ToLower(line), needle) {
				continue
			}
			before := contextSlice(lines, i-3, i)
			after := contextSlice(lines, i+1, i+4)
			results = append(results, MatchContext{
				File:      rel,
				LineNo:    i + 1,
				Before:    before,
				MatchLine: line,
				After:     after,
			})
		}
	}
	return results, nil
}

func contextSlice(lines []string, from, to int) []string {
	if from < 0 {
		from = 0
	}
	if to > len(lines) {
		to = len(lines)
	}
	if from >= to {
		return nil
	}
	out := make([]string, to-from)
	copy(out, lines[from:to])
	return out
}

// RelatedFileEdge is one hit from FindRelatedFiles: a component defined in
// another file that the queried file appears to call or reference.
type RelatedFileEdge struct {
	File          string
	ComponentName string
	Kind          model.ComponentKind
}

// FindRelatedFiles loads the named file's source and, for every component
// registered elsewhere, tests whether the file's text contains a call-site
// pattern "name(" (function_calls) or a bare-reference pattern for classes
// (class_references). Returns edges grouped by category.
func (e *Engine) FindRelatedFiles(root, relFile string) (map[string][]RelatedFileEdge, error) {
	ps := e.getOrCreate(root)
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	relFile = filepath.ToSlash(relFile)
	abs := filepath.Join(ps.root, filepath.FromSlash(relFile))
	src, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", relFile, err)
	}
	text := string(src)

	reg, err := ps.store.LoadRegistry()
	if err != nil {
		return nil, err
	}

	out := map[string][]RelatedFileEdge{}
	var names []string
	for name := range reg.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		comp := reg.Components[name]
		if comp.File == relFile {
			continue
		}
		switch comp.Kind {
		case model.KindFunction:
			if strings.Contains(text, name+"(") {
				out["function_calls"] = append(out["function_calls"], RelatedFileEdge{
					File: comp.File, ComponentName: name, Kind: comp.Kind,
				})
			}
		case model.KindClass:
			if strings.Contains(text, name) {
				out["class_references"] = append(out["class_references"], RelatedFileEdge{
					File: comp.File, ComponentName: name, Kind: comp.Kind,
				})
			}
		}
	}

	return out, nil
}

// Diagnostics validates the four on-disk invariants from spec §3 hold and
// returns a human-readable report, persisting it under diagnostics/.
func (e *Engine) Diagnostics(root string) (string, error) {
	ps := e.getOrCreate(root)
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	idx, err := ps.store.LoadScriptIndex()
	if err != nil {
		return "", err
	}
	reg, err := ps.store.LoadRegistry()
	if err != nil {
		return "", err
	}

	var problems []string

	// I1: registry-script consistency.
	for name, comp := range reg.Components {
		entry, ok := idx.Files[comp.File]
		if !ok {
			problems = append(problems, fmt.Sprintf("component %q: file %q not in script index", name, comp.File))
			continue
		}
		in := false
		for _, c := range entry.Classes {
			if c == name {
				in = true
			}
		}
		for _, f := range entry.Functions {
			if f == name {
				in = true
			}
		}
		if !in {
			problems = append(problems, fmt.Sprintf("component %q: file %q does not declare it", name, comp.File))
		}
	}

	// I2: mini-record coverage.
	for rel := range idx.Files {
		if _, ok, _ := ps.store.LoadMiniRecord(rel); !ok {
			problems = append(problems, fmt.Sprintf("script index entry %q has no mini-record", rel))
		}
	}

	// I3: CrossReference bidirectionality — every component_to_tool edge
	// must have a matching inverse tool_to_component edge.
	if refs, ok, err := ps.store.LoadBidirectionalRefs(); err != nil {
		return "", err
	} else if ok {
		for component, edges := range refs.ComponentToTool {
			for _, edge := range edges {
				if !hasInverseEdge(refs.ToolToComponent[edge.ToolID], component) {
					problems = append(problems, fmt.Sprintf(
						"cross-reference %q -> %q has no inverse tool_to_component edge", component, edge.ToolID))
				}
			}
		}
	}

	active := e.IsActive(root)
	if !active {
		problems = append(problems, "project is not in the active monitoring set")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Diagnostics for %s\n\n", root)
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))
	if len(problems) == 0 {
		b.WriteString("No invariant violations found.\n")
	} else {
		fmt.Fprintf(&b, "%d invariant violation(s):\n\n", len(problems))
		for _, p := range problems {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}

	report := b.String()
	_ = ps.store.SaveDiagnostic("diagnostics", report)
	return report, nil
}

// hasInverseEdge reports whether edges contains one referencing component.
func hasInverseEdge(edges model.EdgeList, component string) bool {
	for _, e := range edges {
		if e.ComponentName == component {
			return true
		}
	}
	return false
}

// SnapshotScanFiles returns the current (absPath -> mtime) observed by the
// scanner, used by the Change Monitor to detect drift without mutating
// engine state.
func (e *Engine) SnapshotScanFiles(root string) (map[string]time.Time, error) {
	entries, err := scanner.Scan(root, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		out[e.AbsPath] = e.ModTime
	}
	return out, nil
}

// IndexedFilesSnapshot returns a copy of the last-reindex mtime map for
// root, used by the Change Monitor to decide whether a reindex is due.
func (e *Engine) IndexedFilesSnapshot(root string) map[string]time.Time {
	ps := e.getOrCreate(root)
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make(map[string]time.Time, len(ps.indexedFiles))
	for k, v := range ps.indexedFiles {
		out[k] = v
	}
	return out
}

func (e *Engine) logf(level, msg string, args ...any) {
	if e.logger == nil {
		return
	}
	switch level {
	case "warn":
		e.logger.Warn(msg, args...)
	case "error":
		e.logger.Error(msg, args...)
	default:
		e.logger.Info(msg, args...)
	}
}
