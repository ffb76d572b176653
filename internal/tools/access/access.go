// Package access implements the two Facade-mediated access tools:
// list_allowed_directories and check_project_access.
package access

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/emergent-company/specindex/internal/facade"
	"github.com/emergent-company/specindex/internal/mcp"
)

// --- list_allowed_directories ---

// ListAllowedDirectories reports every configured allowed root.
type ListAllowedDirectories struct {
	facade *facade.Facade
}

func NewListAllowedDirectories(f *facade.Facade) *ListAllowedDirectories {
	return &ListAllowedDirectories{facade: f}
}

func (t *ListAllowedDirectories) Name() string { return "list_allowed_directories" }
func (t *ListAllowedDirectories) Description() string {
	return "List every absolute directory path this server is configured to operate within."
}
func (t *ListAllowedDirectories) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *ListAllowedDirectories) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	return mcp.JSONResult(map[string]any{"allowed_directories": t.facade.ListAllowedDirectories()})
}

// --- check_project_access ---

type checkProjectAccessParams struct {
	ProjectPath string `json:"project_path"`
}

// CheckProjectAccess reports whether a given path is inside an allowed root.
type CheckProjectAccess struct {
	facade *facade.Facade
}

func NewCheckProjectAccess(f *facade.Facade) *CheckProjectAccess {
	return &CheckProjectAccess{facade: f}
}

func (t *CheckProjectAccess) Name() string { return "check_project_access" }
func (t *CheckProjectAccess) Description() string {
	return "Check whether a project path is inside one of this server's allowed roots."
}
func (t *CheckProjectAccess) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_path": {"type": "string", "description": "Absolute path to the project root to check"}
  },
  "required": ["project_path"]
}`)
}

func (t *CheckProjectAccess) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	if err := facade.ValidateArguments(t.InputSchema(), params); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	var p checkProjectAccessParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	allowed, message := t.facade.CheckProjectAccess(p.ProjectPath)
	return mcp.JSONResult(map[string]any{"allowed": allowed, "message": message})
}
