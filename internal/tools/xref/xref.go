// Package xref implements the build_cross_references tool, the only
// externally callable entry point into the Cross-Reference Builder (C7).
package xref

import (
	"context"
	"encoding/json"

	"github.com/emergent-company/specindex/internal/facade"
	"github.com/emergent-company/specindex/internal/mcp"
)

type buildCrossReferencesParams struct {
	ProjectPath string `json:"project_path"`
}

// BuildCrossReferences runs one full cross-reference pass and returns the
// resulting edge counts.
type BuildCrossReferences struct {
	facade *facade.Facade
}

func NewBuildCrossReferences(f *facade.Facade) *BuildCrossReferences {
	return &BuildCrossReferences{facade: f}
}

func (t *BuildCrossReferences) Name() string { return "build_cross_references" }
func (t *BuildCrossReferences) Description() string {
	return "Run one full pass deriving typed, strength-weighted relations between components and tools, persisting them to both reference directories."
}
func (t *BuildCrossReferences) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_path": {"type": "string", "description": "Absolute path to the project root"}
  },
  "required": ["project_path"]
}`)
}

func (t *BuildCrossReferences) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	if err := facade.ValidateArguments(t.InputSchema(), params); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	var p buildCrossReferencesParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}

	summary, err := t.facade.BuildCrossReferences(p.ProjectPath)
	if err != nil {
		return facade.ResultError(err)
	}
	return mcp.JSONResult(map[string]any{
		"status":                  "ok",
		"component_to_tool_edges": summary.ComponentToToolEdges,
		"tool_to_component_edges": summary.ToolToComponentEdges,
	})
}
