// Package xref implements the Cross-Reference Builder (C7): one full pass
// deriving typed, strength-weighted component<->tool relations and
// persisting them into both reference directories.
//
// Grounded almost line-for-line in algorithm shape on
// original_source/aitoolkit/librarian/bidirectional_refs.py
// (BidirectionalReferenceSystem.build_references /
// _build_component_to_tool_references / _enhance_references_with_semantics
// / save_references), rendered via the teacher's janitor.go
// accumulate-and-continue pattern: any single bad file or profile is
// skipped with a warning, the pass never aborts.
package xref

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emergent-company/specindex/internal/indexstore"
	"github.com/emergent-company/specindex/internal/model"
	"github.com/emergent-company/specindex/internal/toolregistry"
)

// Builder derives the cross-reference graph for one project.
type Builder struct {
	logger *slog.Logger
}

// New creates a Builder.
func New(logger *slog.Logger) *Builder {
	return &Builder{logger: logger}
}

// Summary is the edge-count result of a successful Build.
type Summary struct {
	ComponentToToolEdges int
	ToolToComponentEdges int
}

// filePattern is one regex + relationship assigned when it matches a tool
// ID's occurrence in a file, per spec §4.7 step 1.
type filePattern struct {
	build    func(toolID string) *regexp.Regexp
	relType  model.RelationshipType
	strength model.Strength
}

func patternsFor(ext string) []filePattern {
	quoted := func(id string) *regexp.Regexp {
		return regexp.MustCompile(`"` + regexp.QuoteMeta(id) + `"|'` + regexp.QuoteMeta(id) + `'`)
	}
	callSite := func(id string) *regexp.Regexp {
		return regexp.MustCompile(regexp.QuoteMeta(id) + `\s*\(`)
	}
	comment := func(prefix string) func(string) *regexp.Regexp {
		return func(id string) *regexp.Regexp {
			return regexp.MustCompile(prefix + `.*` + regexp.QuoteMeta(id))
		}
	}

	switch ext {
	case ".py":
		return []filePattern{
			{func(id string) *regexp.Regexp { return regexp.MustCompile(`def\s+` + regexp.QuoteMeta(id) + `\s*\(`) }, model.RelImplementation, model.StrengthVeryStrong},
			{func(id string) *regexp.Regexp { return regexp.MustCompile(`@mcp\.tool\(\)\s*\n\s*def\s+` + regexp.QuoteMeta(id)) }, model.RelImplementation, model.StrengthVeryStrong},
			{callSite, model.RelUsage, model.StrengthStrong},
			{quoted, model.RelReference, model.StrengthMedium},
			{comment("#"), model.RelDocumentation, model.StrengthMedium},
		}
	case ".md", ".txt":
		return []filePattern{
			{func(id string) *regexp.Regexp { return regexp.MustCompile(`(?m)^#.*` + regexp.QuoteMeta(id)) }, model.RelDocumentation, model.StrengthStrong},
			{func(id string) *regexp.Regexp { return regexp.MustCompile("`" + regexp.QuoteMeta(id) + "`") }, model.RelDocumentation, model.StrengthStrong},
			{func(id string) *regexp.Regexp { return regexp.MustCompile(regexp.QuoteMeta(id)) }, model.RelDocumentation, model.StrengthMedium},
		}
	default:
		return []filePattern{
			{func(id string) *regexp.Regexp { return regexp.MustCompile(regexp.QuoteMeta(id)) }, model.RelReference, model.StrengthMedium},
		}
	}
}

// Build runs one full cross-reference pass for root and persists the
// result. On any structural failure (missing reference directories) it
// falls back to writing an empty unified map rather than raising, per
// spec §4.7's failure semantics.
func (b *Builder) Build(root string) (*Summary, error) {
	aiStore := indexstore.New(root)
	toolStore := toolregistry.New(root)

	if !aiStore.Exists() {
		_ = aiStore.InitSkeleton()
	}
	if !toolStore.Exists() {
		_ = toolStore.InitSkeleton()
	}

	reg, err := aiStore.LoadRegistry()
	if err != nil {
		b.logger.Warn("xref: loading component registry failed, writing empty map", "project", root, "error", err)
		return b.writeEmpty(aiStore, toolStore)
	}
	toolDoc, err := toolStore.LoadRegistry()
	if err != nil {
		b.logger.Warn("xref: loading tool registry failed, writing empty map", "project", root, "error", err)
		return b.writeEmpty(aiStore, toolStore)
	}

	profiles := map[string]*model.ToolProfile{}
	for toolID := range toolDoc.Tools {
		p, err := toolStore.LoadProfile(toolID)
		if err != nil {
			b.logger.Warn("xref: loading tool profile failed, skipping", "tool", toolID, "error", err)
			continue
		}
		profiles[toolID] = p
	}

	componentToTool := map[string]model.EdgeList{}
	toolToComponent := map[string]model.EdgeList{}

	add := func(comp, tool string, typ model.RelationshipType, strength model.Strength, reason string, lines []int, contexts []string, meta map[string]string) {
		upsert := func(m map[string]model.EdgeList, key string) {
			for i, e := range m[key] {
				if e.ComponentName == comp && e.ToolID == tool {
					merged := model.MaxStrength(e.Strength, strength)
					m[key][i].Strength = merged
					if merged == strength {
						m[key][i].Type = typ
						m[key][i].Reason = reason
					}
					if len(lines) > 0 {
						m[key][i].Lines = mergeInts(m[key][i].Lines, lines, 5)
					}
					if len(contexts) > 0 {
						m[key][i].Contexts = mergeStrings(m[key][i].Contexts, contexts, 3)
					}
					return
				}
			}
			m[key] = append(m[key], model.CrossReference{
				ComponentName: comp, ToolID: tool, Type: typ, Strength: strength, Reason: reason,
				Lines: lines, Contexts: contexts, Metadata: meta,
			})
		}
		upsert(componentToTool, comp)
		upsert(toolToComponent, tool)
	}

	// Step 1: scan each component's defining file for tool ID occurrences.
	for compName, comp := range reg.Components {
		abs := filepath.Join(root, filepath.FromSlash(comp.File))
		src, err := os.ReadFile(abs)
		if err != nil {
			continue
		}
		if isBinary(src) {
			continue
		}
		text := string(src)
		lines := strings.Split(text, "\n")
		ext := filepath.Ext(comp.File)

		for toolID := range toolDoc.Tools {
			best := struct {
				found    bool
				typ      model.RelationshipType
				strength model.Strength
			}{}
			var matchLines []int
			var matchContexts []string

			for _, pat := range patternsFor(ext) {
				re := pat.build(toolID)
				for i, line := range lines {
					if !re.MatchString(line) {
						continue
					}
					if !best.found || pat.strength.Rank() > best.strength.Rank() {
						best.found = true
						best.typ = pat.relType
						best.strength = pat.strength
					}
					if len(matchLines) < 5 {
						matchLines = append(matchLines, i+1)
					}
					if len(matchContexts) < 3 {
						start, end := i-1, i+2
						if start < 0 {
							start = 0
						}
						if end > len(lines) {
							end = len(lines)
						}
						matchContexts = append(matchContexts, strings.Join(lines[start:end], "\n"))
					}
				}
			}
			if best.found {
				add(compName, toolID, best.typ, best.strength, "textual match in defining file", matchLines, matchContexts, nil)
			}
		}
	}

	// Step 2: name-similarity pass.
	for compName := range reg.Components {
		lowerComp := strings.ToLower(compName)
		for toolID := range toolDoc.Tools {
			lowerTool := strings.ToLower(toolID)
			if strings.Contains(lowerComp, lowerTool) || strings.Contains(lowerTool, lowerComp) {
				add(compName, toolID, model.RelNameSimilarity, model.StrengthMedium, "name similarity", nil, nil, nil)
			}
		}
	}

	// Step 3: self-implementation pass (function component same name as tool).
	for compName, comp := range reg.Components {
		if comp.Kind != model.KindFunction {
			continue
		}
		if _, ok := toolDoc.Tools[compName]; ok {
			add(compName, compName, model.RelImplementation, model.StrengthVeryStrong, "function name matches tool id", nil, nil, nil)
		}
	}

	// Step 4: profile_reference pass.
	for toolID, profile := range profiles {
		for compName := range reg.Components {
			if profileMentions(profile, compName) {
				add(compName, toolID, model.RelProfileReference, model.StrengthMedium, "tool profile mentions component", nil, nil, nil)
			}
		}
	}

	// Step 5: semantic_category pass.
	for toolID, tool := range toolDoc.Tools {
		if tool.Category == "" {
			continue
		}
		catLower := strings.ToLower(tool.Category)
		for compName, comp := range reg.Components {
			if strings.Contains(strings.ToLower(comp.File), catLower) {
				add(compName, toolID, model.RelSemanticCategory, model.StrengthStrong, "category heuristic", nil, nil,
					map[string]string{"category": tool.Category})
			}
		}
	}

	// Step 6: symmetry pass — ensure every edge has an explicit inverse.
	for comp, edges := range componentToTool {
		for _, e := range edges {
			inv := toolToComponent[e.ToolID]
			found := false
			for _, ie := range inv {
				if ie.ComponentName == comp {
					found = true
					break
				}
			}
			if !found {
				toolToComponent[e.ToolID] = append(toolToComponent[e.ToolID], model.CrossReference{
					ComponentName: comp, ToolID: e.ToolID, Type: e.Type, Strength: e.Strength,
					Reason: "bidirectional reference consistency", Lines: e.Lines, Contexts: e.Contexts,
				})
			}
		}
	}
	for tool, edges := range toolToComponent {
		for _, e := range edges {
			fwd := componentToTool[e.ComponentName]
			found := false
			for _, fe := range fwd {
				if fe.ToolID == tool {
					found = true
					break
				}
			}
			if !found {
				componentToTool[e.ComponentName] = append(componentToTool[e.ComponentName], model.CrossReference{
					ComponentName: e.ComponentName, ToolID: tool, Type: e.Type, Strength: e.Strength,
					Reason: "bidirectional reference consistency", Lines: e.Lines, Contexts: e.Contexts,
				})
			}
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)

	// Write edges back onto each owning Component / ToolProfile.
	for name, comp := range reg.Components {
		edges := componentToTool[name]
		comp.ToolReferences = edges
		comp.ToolReferencesSummary = summarize(edges, now)
		reg.Components[name] = comp
	}
	if err := aiStore.SaveRegistry(reg); err != nil {
		return nil, fmt.Errorf("saving component registry: %w", err)
	}

	for toolID, profile := range profiles {
		edges := toolToComponent[toolID]
		profile.ComponentReferences = edges
		profile.ComponentReferencesSummary = summarize(edges, now)
		if err := toolStore.SaveProfile(profile); err != nil {
			b.logger.Warn("xref: saving tool profile failed", "tool", toolID, "error", err)
		}
	}

	refs := &model.BidirectionalRefs{
		Version:         model.BidirectionalRefsVersion,
		Description:     "unified component <-> tool cross-reference map",
		ComponentToTool: componentToTool,
		ToolToComponent: toolToComponent,
		ComponentsCount: len(reg.Components),
		ToolsCount:      len(toolDoc.Tools),
		LastUpdated:     now,
	}
	if err := aiStore.SaveBidirectionalRefs(refs); err != nil {
		return nil, fmt.Errorf("saving unified refs (ai side): %w", err)
	}
	if err := toolStore.SaveBidirectionalRefs(refs); err != nil {
		return nil, fmt.Errorf("saving unified refs (tool side): %w", err)
	}

	return &Summary{ComponentToToolEdges: countEdges(componentToTool), ToolToComponentEdges: countEdges(toolToComponent)}, nil
}

func (b *Builder) writeEmpty(aiStore *indexstore.Store, toolStore *toolregistry.Store) (*Summary, error) {
	refs := &model.BidirectionalRefs{
		Version:         model.BidirectionalRefsVersion,
		Description:     "unified component <-> tool cross-reference map (empty: reference directories missing or unreadable)",
		ComponentToTool: map[string]model.EdgeList{},
		ToolToComponent: map[string]model.EdgeList{},
		LastUpdated:     time.Now().UTC().Format(time.RFC3339),
	}
	_ = aiStore.SaveBidirectionalRefs(refs)
	_ = toolStore.SaveBidirectionalRefs(refs)
	return &Summary{}, nil
}

func profileMentions(p *model.ToolProfile, componentName string) bool {
	if p == nil || componentName == "" {
		return false
	}
	haystack := strings.ToLower(p.Purpose + " " + strings.Join(p.Responsibilities, " "))
	return strings.Contains(haystack, strings.ToLower(componentName))
}

func summarize(edges model.EdgeList, now string) *model.EdgeSummary {
	types := map[string]int{}
	strengths := map[string]int{}
	for _, e := range edges {
		types[string(e.Type)]++
		strengths[string(e.Strength)]++
	}
	return &model.EdgeSummary{
		Count:                 len(edges),
		RelationshipTypes:     types,
		RelationshipStrengths: strengths,
		LastUpdated:           now,
	}
}

func countEdges(m map[string]model.EdgeList) int {
	n := 0
	for _, v := range m {
		n += len(v)
	}
	return n
}

// isBinary probes for a null byte in the first 8KB and checks the sample is
// valid UTF-8, mirroring the Python original's _is_binary_file.
func isBinary(src []byte) bool {
	probe := src
	if len(probe) > 8192 {
		probe = probe[:8192]
	}
	for _, b := range probe {
		if b == 0 {
			return true
		}
	}
	return !utf8.Valid(probe)
}

func mergeInts(existing, extra []int, limit int) []int {
	out := append([]int{}, existing...)
	for _, v := range extra {
		if len(out) >= limit {
			break
		}
		dup := false
		for _, o := range out {
			if o == v {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

func mergeStrings(existing, extra []string, limit int) []string {
	out := append([]string{}, existing...)
	for _, v := range extra {
		if len(out) >= limit {
			break
		}
		out = append(out, v)
	}
	return out
}
