// Package index implements the Index Engine-facing tools: initialising and
// refreshing a project's AI Reference, and the component/text/file queries
// that read it back.
package index

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/emergent-company/specindex/internal/facade"
	"github.com/emergent-company/specindex/internal/mcp"
)

// --- initialize_librarian ---

type projectPathParams struct {
	ProjectPath string `json:"project_path"`
}

// InitializeLibrarian performs first-time setup: skeleton, full index, and
// registration for monitoring.
type InitializeLibrarian struct {
	facade *facade.Facade
}

func NewInitializeLibrarian(f *facade.Facade) *InitializeLibrarian {
	return &InitializeLibrarian{facade: f}
}

func (t *InitializeLibrarian) Name() string { return "initialize_librarian" }
func (t *InitializeLibrarian) Description() string {
	return "Initialise the AI Reference for a project: scan source files, build the component registry and script index, and register the project for background monitoring."
}
func (t *InitializeLibrarian) InputSchema() json.RawMessage {
	return projectPathSchema("Absolute path to the project root to initialise")
}

func (t *InitializeLibrarian) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p projectPathParams
	if err := unmarshalValidated(t.InputSchema(), params, &p); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	summary, err := t.facade.InitializeLibrarian(p.ProjectPath)
	if err != nil {
		return facade.ResultError(err)
	}
	return mcp.JSONResult(map[string]any{
		"status":           "ok",
		"message":          summary.Message,
		"files_indexed":    summary.FilesIndexed,
		"components_found": summary.ComponentsFound,
	})
}

// --- generate_librarian ---

// GenerateLibrarian re-runs a reindex on an already-initialised project.
type GenerateLibrarian struct {
	facade *facade.Facade
}

func NewGenerateLibrarian(f *facade.Facade) *GenerateLibrarian {
	return &GenerateLibrarian{facade: f}
}

func (t *GenerateLibrarian) Name() string { return "generate_librarian" }
func (t *GenerateLibrarian) Description() string {
	return "Refresh a previously initialised project's AI Reference: re-scan changed files and rebuild the component registry."
}
func (t *GenerateLibrarian) InputSchema() json.RawMessage {
	return projectPathSchema("Absolute path to the project root to refresh")
}

func (t *GenerateLibrarian) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p projectPathParams
	if err := unmarshalValidated(t.InputSchema(), params, &p); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	summary, err := t.facade.GenerateLibrarian(p.ProjectPath)
	if err != nil {
		return facade.ResultError(err)
	}
	return mcp.JSONResult(map[string]any{
		"status":           "ok",
		"message":          summary.Message,
		"files_indexed":    summary.FilesIndexed,
		"components_found": summary.ComponentsFound,
	})
}

// --- query_component ---

type queryComponentParams struct {
	ProjectPath string `json:"project_path"`
	Name        string `json:"name"`
}

// QueryComponent locates every definition of a named class or function.
type QueryComponent struct {
	facade *facade.Facade
}

func NewQueryComponent(f *facade.Facade) *QueryComponent {
	return &QueryComponent{facade: f}
}

func (t *QueryComponent) Name() string { return "query_component" }
func (t *QueryComponent) Description() string {
	return "Find every file that defines the named class or function, and return its exact line range and source."
}
func (t *QueryComponent) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_path": {"type": "string", "description": "Absolute path to the project root"},
    "name": {"type": "string", "description": "Class or function name to locate"}
  },
  "required": ["project_path", "name"]
}`)
}

func (t *QueryComponent) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p queryComponentParams
	if err := unmarshalValidated(t.InputSchema(), params, &p); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	hits, err := t.facade.QueryComponent(p.ProjectPath, p.Name)
	if err != nil {
		return facade.ResultError(err)
	}
	results := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		results = append(results, map[string]any{
			"file":         h.File,
			"kind":         string(h.Kind),
			"line_range":   h.LineRange,
			"source_slice": h.Source,
		})
	}
	return mcp.JSONResult(map[string]any{"status": "ok", "hits": results})
}

// --- find_implementation ---

type findImplementationParams struct {
	ProjectPath string `json:"project_path"`
	Text        string `json:"text"`
	FilePattern string `json:"file_pattern,omitempty"`
}

// FindImplementation performs a case-insensitive substring search with
// context across in-scope project files.
type FindImplementation struct {
	facade *facade.Facade
}

func NewFindImplementation(f *facade.Facade) *FindImplementation {
	return &FindImplementation{facade: f}
}

func (t *FindImplementation) Name() string { return "find_implementation" }
func (t *FindImplementation) Description() string {
	return "Search project files for a case-insensitive text match and return each hit with three lines of surrounding context."
}
func (t *FindImplementation) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_path": {"type": "string", "description": "Absolute path to the project root"},
    "text": {"type": "string", "description": "Text to search for"},
    "file_pattern": {"type": "string", "description": "Optional glob to restrict the search to matching file names"}
  },
  "required": ["project_path", "text"]
}`)
}

func (t *FindImplementation) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p findImplementationParams
	if err := unmarshalValidated(t.InputSchema(), params, &p); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	matches, err := t.facade.FindImplementation(p.ProjectPath, p.Text, p.FilePattern)
	if err != nil {
		return facade.ResultError(err)
	}
	results := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		results = append(results, map[string]any{
			"file":       m.File,
			"line":       m.LineNo,
			"before":     m.Before,
			"match_line": m.MatchLine,
			"after":      m.After,
		})
	}
	return mcp.JSONResult(map[string]any{"status": "ok", "matches": results})
}

// --- find_related_files ---

type findRelatedFilesParams struct {
	ProjectPath string `json:"project_path"`
	FilePath    string `json:"file_path"`
}

// FindRelatedFiles groups components referenced from a file's source by
// category (e.g. function_calls, class_references).
type FindRelatedFiles struct {
	facade *facade.Facade
}

func NewFindRelatedFiles(f *facade.Facade) *FindRelatedFiles {
	return &FindRelatedFiles{facade: f}
}

func (t *FindRelatedFiles) Name() string { return "find_related_files" }
func (t *FindRelatedFiles) Description() string {
	return "List the other project files whose functions or classes appear to be called or referenced from the given file, grouped by category."
}
func (t *FindRelatedFiles) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_path": {"type": "string", "description": "Absolute path to the project root"},
    "file_path": {"type": "string", "description": "Project-relative path of the file to inspect"}
  },
  "required": ["project_path", "file_path"]
}`)
}

func (t *FindRelatedFiles) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p findRelatedFilesParams
	if err := unmarshalValidated(t.InputSchema(), params, &p); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	byCategory, err := t.facade.FindRelatedFiles(p.ProjectPath, p.FilePath)
	if err != nil {
		return facade.ResultError(err)
	}
	out := map[string]any{}
	for category, edges := range byCategory {
		entries := make([]map[string]any, 0, len(edges))
		for _, e := range edges {
			entries = append(entries, map[string]any{
				"file":           e.File,
				"function_name":  e.ComponentName,
				"component_kind": string(e.Kind),
			})
		}
		out[category] = entries
	}
	return mcp.JSONResult(map[string]any{"status": "ok", "related": out})
}

// --- initialize_tool_index ---

// InitializeToolIndex seeds the Tool Registry Store from this server's own
// tool table.
type InitializeToolIndex struct {
	facade *facade.Facade
}

func NewInitializeToolIndex(f *facade.Facade) *InitializeToolIndex {
	return &InitializeToolIndex{facade: f}
}

func (t *InitializeToolIndex) Name() string { return "initialize_tool_index" }
func (t *InitializeToolIndex) Description() string {
	return "Initialise the Tool Reference for a project, seeded from this server's own registered tools."
}
func (t *InitializeToolIndex) InputSchema() json.RawMessage {
	return projectPathSchema("Absolute path to the project root to initialise")
}

func (t *InitializeToolIndex) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p projectPathParams
	if err := unmarshalValidated(t.InputSchema(), params, &p); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	count, err := t.facade.InitializeToolIndex(p.ProjectPath)
	if err != nil {
		return facade.ResultError(err)
	}
	return mcp.JSONResult(map[string]any{"status": "ok", "tool_count": count})
}

// --- initialize_ai_dev_toolkit ---

// InitializeAIDevToolkit runs both initialisers and reports a combined
// summary.
type InitializeAIDevToolkit struct {
	facade *facade.Facade
}

func NewInitializeAIDevToolkit(f *facade.Facade) *InitializeAIDevToolkit {
	return &InitializeAIDevToolkit{facade: f}
}

func (t *InitializeAIDevToolkit) Name() string { return "initialize_ai_dev_toolkit" }
func (t *InitializeAIDevToolkit) Description() string {
	return "Initialise both the AI Reference and the Tool Reference for a project in one call."
}
func (t *InitializeAIDevToolkit) InputSchema() json.RawMessage {
	return projectPathSchema("Absolute path to the project root to initialise")
}

func (t *InitializeAIDevToolkit) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p projectPathParams
	if err := unmarshalValidated(t.InputSchema(), params, &p); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	report, err := t.facade.InitializeAIDevToolkit(p.ProjectPath)
	if err != nil {
		return facade.ResultError(err)
	}
	report["status"] = "ok"
	return mcp.JSONResult(report)
}

func projectPathSchema(description string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "project_path": {"type": "string", "description": %q}
  },
  "required": ["project_path"]
}`, description))
}

// unmarshalValidated validates raw arguments against schema, then unmarshals
// them into dest. Every tool wrapper in this module follows this sequence.
func unmarshalValidated(schema, params json.RawMessage, dest any) error {
	if err := facade.ValidateArguments(schema, params); err != nil {
		return err
	}
	return json.Unmarshal(params, dest)
}
