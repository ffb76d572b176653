// Package unifiedcontext implements the Unified Context Cache (C8): a
// per-project, TTL-bounded materialised view combining the Index Store,
// Tool Registry Store, and Cross-Reference Builder outputs, plus the
// related-tools/related-components navigation queries.
//
// Grounded on original_source/aitoolkit/librarian/bidirectional_refs.py's
// unified-map shape. The TTL is checked lazily when Get is called; no
// background job refreshes snapshots on the TTL cadence.
package unifiedcontext

import (
	"strings"
	"sync"
	"time"

	"github.com/emergent-company/specindex/internal/indexstore"
	"github.com/emergent-company/specindex/internal/model"
	"github.com/emergent-company/specindex/internal/toolregistry"
)

// Cache holds one UnifiedContext snapshot per project. A snapshot is rebuilt
// on the first Get after TTL expiry or after Invalidate (which the Facade
// calls after every Cross-Reference Builder pass).
type Cache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	ctx       *model.UnifiedContext
	builtAt   time.Time
}

// New creates a Cache with the given TTL (spec default 300s).
func New(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, entries: map[string]*entry{}}
}

// Invalidate drops the cached snapshot for root, forcing the next Get to
// rebuild. Called by the Cross-Reference Builder's caller after every
// successful build, satisfying I9 (TTL freshness).
func (c *Cache) Invalidate(root string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, root)
}

// Get returns the cached snapshot for root if fresh, else rebuilds it from
// disk.
func (c *Cache) Get(root string) (*model.UnifiedContext, error) {
	c.mu.Lock()
	e, ok := c.entries[root]
	c.mu.Unlock()

	if ok && time.Since(e.builtAt) < c.ttl {
		return e.ctx, nil
	}

	ctx, err := c.build(root)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[root] = &entry{ctx: ctx, builtAt: time.Now()}
	c.mu.Unlock()

	return ctx, nil
}

func (c *Cache) build(root string) (*model.UnifiedContext, error) {
	aiStore := indexstore.New(root)
	toolStore := toolregistry.New(root)

	reg, err := aiStore.LoadRegistry()
	if err != nil {
		return nil, err
	}
	toolDoc, err := toolStore.LoadRegistry()
	if err != nil {
		return nil, err
	}
	refs, ok, err := aiStore.LoadBidirectionalRefs()
	if err != nil {
		return nil, err
	}
	if !ok {
		refs = &model.BidirectionalRefs{
			ComponentToTool: map[string]model.EdgeList{},
			ToolToComponent: map[string]model.EdgeList{},
		}
	}

	systems := []string{"index_store", "tool_registry_store"}
	if ok {
		systems = append(systems, "cross_reference_builder")
	}

	return &model.UnifiedContext{
		Components:       reg.Components,
		Tools:            toolDoc.Tools,
		Relationships:    nil,
		DecisionTrees:    nil,
		CrossReferences:  refs,
		LastUpdated:      time.Now().UTC(),
		SystemsAvailable: systems,
	}, nil
}

// RelatedTool is one query result from RelatedTools: a tool plus whether
// the relation was found directly in the cross-reference graph or inferred
// heuristically.
type RelatedTool struct {
	Tool   model.Tool
	Type   model.RelationshipType
	Origin string // "direct" or "inferred"
}

// RelatedTools returns every tool related to component, direct edges first,
// falling back to heuristics (category string in file path, substring ID
// match, and the inverse) when no direct edge exists.
func (c *Cache) RelatedTools(root, componentName string) ([]RelatedTool, error) {
	ctx, err := c.Get(root)
	if err != nil {
		return nil, err
	}

	var out []RelatedTool
	seen := map[string]bool{}

	if ctx.CrossReferences != nil {
		for _, e := range ctx.CrossReferences.ComponentToTool[componentName] {
			if tool, ok := ctx.Tools[e.ToolID]; ok {
				out = append(out, RelatedTool{Tool: tool, Type: e.Type, Origin: "direct"})
				seen[e.ToolID] = true
			}
		}
	}

	comp, ok := ctx.Components[componentName]
	if ok {
		lowerName := strings.ToLower(componentName)
		for id, tool := range ctx.Tools {
			if seen[id] {
				continue
			}
			lowerID := strings.ToLower(id)
			if (tool.Category != "" && strings.Contains(strings.ToLower(comp.File), strings.ToLower(tool.Category))) ||
				strings.Contains(lowerName, lowerID) || strings.Contains(lowerID, lowerName) {
				out = append(out, RelatedTool{Tool: tool, Type: model.RelReference, Origin: "inferred"})
				seen[id] = true
			}
		}
	}

	return out, nil
}

// RelatedComponent is the symmetric inverse of RelatedTool.
type RelatedComponent struct {
	Component model.Component
	Type      model.RelationshipType
	Origin    string
}

// RelatedComponents returns every component related to toolID, symmetric to
// RelatedTools.
func (c *Cache) RelatedComponents(root, toolID string) ([]RelatedComponent, error) {
	ctx, err := c.Get(root)
	if err != nil {
		return nil, err
	}

	var out []RelatedComponent
	seen := map[string]bool{}

	if ctx.CrossReferences != nil {
		for _, e := range ctx.CrossReferences.ToolToComponent[toolID] {
			if comp, ok := ctx.Components[e.ComponentName]; ok {
				out = append(out, RelatedComponent{Component: comp, Type: e.Type, Origin: "direct"})
				seen[e.ComponentName] = true
			}
		}
	}

	tool, ok := ctx.Tools[toolID]
	if ok {
		lowerID := strings.ToLower(toolID)
		for name, comp := range ctx.Components {
			if seen[name] {
				continue
			}
			lowerName := strings.ToLower(name)
			if (tool.Category != "" && strings.Contains(strings.ToLower(comp.File), strings.ToLower(tool.Category))) ||
				strings.Contains(lowerName, lowerID) || strings.Contains(lowerID, lowerName) {
				out = append(out, RelatedComponent{Component: comp, Type: model.RelReference, Origin: "inferred"})
				seen[name] = true
			}
		}
	}

	return out, nil
}
