// Package contexttools implements the Unified Context Cache-facing tools:
// get_unified_context, find_related_tools, and find_related_components.
package contexttools

import (
	"context"
	"encoding/json"

	"github.com/emergent-company/specindex/internal/facade"
	"github.com/emergent-company/specindex/internal/mcp"
)

// --- get_unified_context ---

type projectPathParams struct {
	ProjectPath string `json:"project_path"`
}

// GetUnifiedContext returns the cached (or freshly built) unified context
// snapshot for a project.
type GetUnifiedContext struct {
	facade *facade.Facade
}

func NewGetUnifiedContext(f *facade.Facade) *GetUnifiedContext {
	return &GetUnifiedContext{facade: f}
}

func (t *GetUnifiedContext) Name() string { return "get_unified_context" }
func (t *GetUnifiedContext) Description() string {
	return "Return the materialised view combining component registry, tool registry, and cross-reference data for a project."
}
func (t *GetUnifiedContext) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_path": {"type": "string", "description": "Absolute path to the project root"}
  },
  "required": ["project_path"]
}`)
}

func (t *GetUnifiedContext) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p projectPathParams
	if err := unmarshalValidated(t.InputSchema(), params, &p); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	snapshot, err := t.facade.GetUnifiedContext(p.ProjectPath)
	if err != nil {
		return facade.ResultError(err)
	}
	return mcp.JSONResult(snapshot)
}

// --- find_related_tools ---

type relatedToolsParams struct {
	ProjectPath   string `json:"project_path"`
	ComponentName string `json:"component_name"`
}

// FindRelatedTools returns every tool related to a component, direct edges
// first then heuristic ones.
type FindRelatedTools struct {
	facade *facade.Facade
}

func NewFindRelatedTools(f *facade.Facade) *FindRelatedTools {
	return &FindRelatedTools{facade: f}
}

func (t *FindRelatedTools) Name() string { return "find_related_tools" }
func (t *FindRelatedTools) Description() string {
	return "Find every tool related to a named component, via direct cross-reference edges or category/name heuristics."
}
func (t *FindRelatedTools) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_path": {"type": "string", "description": "Absolute path to the project root"},
    "component_name": {"type": "string", "description": "Name of the component to look up"}
  },
  "required": ["project_path", "component_name"]
}`)
}

func (t *FindRelatedTools) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p relatedToolsParams
	if err := unmarshalValidated(t.InputSchema(), params, &p); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	related, err := t.facade.FindRelatedTools(p.ProjectPath, p.ComponentName)
	if err != nil {
		return facade.ResultError(err)
	}
	results := make([]map[string]any, 0, len(related))
	for _, r := range related {
		results = append(results, map[string]any{
			"tool":              r.Tool,
			"relationship_type": string(r.Type),
			"origin":            r.Origin,
		})
	}
	return mcp.JSONResult(map[string]any{"status": "ok", "related_tools": results})
}

// --- find_related_components ---

type relatedComponentsParams struct {
	ProjectPath string `json:"project_path"`
	ToolID      string `json:"tool_id"`
}

// FindRelatedComponents is the symmetric inverse of FindRelatedTools.
type FindRelatedComponents struct {
	facade *facade.Facade
}

func NewFindRelatedComponents(f *facade.Facade) *FindRelatedComponents {
	return &FindRelatedComponents{facade: f}
}

func (t *FindRelatedComponents) Name() string { return "find_related_components" }
func (t *FindRelatedComponents) Description() string {
	return "Find every component related to a named tool, via direct cross-reference edges or category/name heuristics."
}
func (t *FindRelatedComponents) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_path": {"type": "string", "description": "Absolute path to the project root"},
    "tool_id": {"type": "string", "description": "ID of the tool to look up"}
  },
  "required": ["project_path", "tool_id"]
}`)
}

func (t *FindRelatedComponents) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p relatedComponentsParams
	if err := unmarshalValidated(t.InputSchema(), params, &p); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	related, err := t.facade.FindRelatedComponents(p.ProjectPath, p.ToolID)
	if err != nil {
		return facade.ResultError(err)
	}
	results := make([]map[string]any, 0, len(related))
	for _, r := range related {
		results = append(results, map[string]any{
			"component":         r.Component,
			"relationship_type": string(r.Type),
			"origin":            r.Origin,
		})
	}
	return mcp.JSONResult(map[string]any{"status": "ok", "related_components": results})
}

func unmarshalValidated(schema, params json.RawMessage, dest any) error {
	if err := facade.ValidateArguments(schema, params); err != nil {
		return err
	}
	return json.Unmarshal(params, dest)
}
