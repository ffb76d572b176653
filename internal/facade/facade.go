// Package facade implements the Core Facade (C11): the single choke point
// every externally callable operation passes through. It enforces the
// allowed-roots policy (I8), freezes the Change Monitor around
// user-initiated mutating calls, normalises errors to a uniform shape, and
// validates tool arguments against their declared JSON Schema before
// dispatch.
//
// Grounded on original_source/aitoolkit/librarian/server.py's top-level MCP
// tool functions, which is exactly this layer's shape: validate access, call
// into one subsystem, shape the response, never let a panic escape.
package facade

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/emergent-company/specindex/internal/indexengine"
	"github.com/emergent-company/specindex/internal/mcp"
	"github.com/emergent-company/specindex/internal/model"
	"github.com/emergent-company/specindex/internal/monitor"
	"github.com/emergent-company/specindex/internal/state"
	"github.com/emergent-company/specindex/internal/taskboard"
	"github.com/emergent-company/specindex/internal/toolregistry"
	"github.com/emergent-company/specindex/internal/tracer"
	"github.com/emergent-company/specindex/internal/unifiedcontext"
	"github.com/emergent-company/specindex/internal/xref"
)

// ResultError maps any error this package or indexengine returns into the
// uniform {status: "error", message} tool result shape every tool wrapper
// uses, so callers never leak a Go error string format to the client.
func ResultError(err error) (*mcp.ToolsCallResult, error) {
	status := "error"
	switch err.(type) {
	case *ErrAccessDenied:
		status = "access_denied"
	}
	if err == indexengine.ErrNotFound {
		status = "not_found"
	}
	return mcp.JSONResult(map[string]any{"status": status, "message": err.Error()})
}

// ErrAccessDenied is returned when a path argument is outside every allowed
// root. Per I8, callers must mutate nothing when this is returned.
type ErrAccessDenied struct {
	Path string
}

func (e *ErrAccessDenied) Error() string {
	return fmt.Sprintf("access_denied: %q is not inside any allowed root", e.Path)
}

// TaskBoardConfig configures every per-project Task Board this facade
// creates lazily.
type TaskBoardConfig struct {
	Workers        int
	DefaultTimeout time.Duration
	Retention      time.Duration
}

// Facade wires together every subsystem and is the only type the tool
// layer (internal/tools/...) depends on.
type Facade struct {
	logger *slog.Logger

	roots     *state.AllowedRoots
	procState *state.ProcessState
	engine    *indexengine.Engine
	monitor   *monitor.Monitor
	xrefBuild *xref.Builder
	cache     *unifiedcontext.Cache
	mcpReg    *mcp.Registry
	tbConfig  TaskBoardConfig

	boardsMu sync.Mutex
	boards   map[string]*taskboard.Board
}

// New creates a Facade. mcpRegistry may be nil in tests that don't exercise
// initialize_tool_index.
func New(logger *slog.Logger, roots *state.AllowedRoots, procState *state.ProcessState, engine *indexengine.Engine,
	mon *monitor.Monitor, xrefBuild *xref.Builder, cache *unifiedcontext.Cache, mcpRegistry *mcp.Registry, tbConfig TaskBoardConfig) *Facade {
	return &Facade{
		logger:    logger,
		roots:     roots,
		procState: procState,
		engine:    engine,
		monitor:   mon,
		xrefBuild: xrefBuild,
		cache:     cache,
		mcpReg:    mcpRegistry,
		tbConfig:  tbConfig,
		boards:    map[string]*taskboard.Board{},
	}
}

// requireAccess is the guard every path-taking operation calls first.
func (f *Facade) requireAccess(path string) error {
	if f.roots.Allowed(path) {
		return nil
	}
	return &ErrAccessDenied{Path: path}
}

// traceOp records one synchronous Facade entry point to the Execution
// Tracer (C10), mirroring the Task Board's tracer.ForProject(...).
// RecordOperation call. Call via defer with a named error return so both
// success and error paths are recorded. An access_denied outcome is logged
// instead of traced to disk: per I8, a rejected projectPath must cause no
// filesystem mutation under that path, and tracer.ForProject(projectPath)
// would create exactly that path's diagnostics directory.
func (f *Facade) traceOp(projectPath, operation string, params map[string]any, start time.Time, err *error) {
	if err != nil && *err != nil {
		if _, denied := (*err).(*ErrAccessDenied); denied {
			f.logger.Warn("access denied", "operation", operation, "project_path", projectPath)
			return
		}
		tracer.ForProject(projectPath).RecordOperation(operation, params, "error", time.Since(start).Milliseconds(), (*err).Error(), nil)
		return
	}
	tracer.ForProject(projectPath).RecordOperation(operation, params, "ok", time.Since(start).Milliseconds(), "", nil)
}

// withMonitorPaused freezes the Change Monitor for the duration of fn,
// guaranteeing Resume is called even if fn panics or errors.
func (f *Facade) withMonitorPaused(fn func() error) error {
	if f.monitor != nil {
		f.monitor.Pause()
		defer f.monitor.Resume()
	}
	return fn()
}

// ListAllowedDirectories returns every configured allowed root.
func (f *Facade) ListAllowedDirectories() []string {
	return f.roots.List()
}

// CheckProjectAccess reports whether projectPath is inside an allowed root.
func (f *Facade) CheckProjectAccess(projectPath string) (allowed bool, message string) {
	start := time.Now()
	allowed = f.roots.Allowed(projectPath)
	if !allowed {
		f.logger.Warn("access denied", "operation", "check_project_access", "project_path", projectPath)
		return false, fmt.Sprintf("%q is not inside any allowed root", projectPath)
	}
	tracer.ForProject(projectPath).RecordOperation("check_project_access",
		map[string]any{"project_path": projectPath}, "ok", time.Since(start).Milliseconds(), "",
		map[string]any{"allowed": allowed})
	return true, "project path is inside an allowed root"
}

// InitializeLibrarian wraps indexengine.Initialise: verify access, create
// the skeleton, reindex, register the project for monitoring and
// persistence.
func (f *Facade) InitializeLibrarian(projectPath string) (summary *indexengine.DiagnosticSummary, err error) {
	start := time.Now()
	defer func() { f.traceOp(projectPath, "initialize_librarian", map[string]any{"project_path": projectPath}, start, &err) }()

	if err = f.requireAccess(projectPath); err != nil {
		return nil, err
	}

	err = f.withMonitorPaused(func() error {
		var innerErr error
		summary, innerErr = f.engine.Initialise(projectPath)
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	if f.monitor != nil {
		f.monitor.WatchProject(projectPath)
	}
	if f.procState != nil {
		_ = f.procState.Touch(projectPath)
	}
	return summary, nil
}

// GenerateLibrarian reruns a reindex on an already-initialised project.
func (f *Facade) GenerateLibrarian(projectPath string) (summary *indexengine.DiagnosticSummary, err error) {
	start := time.Now()
	defer func() { f.traceOp(projectPath, "generate_librarian", map[string]any{"project_path": projectPath}, start, &err) }()

	if err = f.requireAccess(projectPath); err != nil {
		return nil, err
	}
	err = f.withMonitorPaused(func() error {
		var innerErr error
		summary, innerErr = f.engine.Reindex(projectPath)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	if f.procState != nil {
		_ = f.procState.Touch(projectPath)
	}
	return summary, nil
}

// QueryComponent locates a named component's definition.
func (f *Facade) QueryComponent(projectPath, name string) (hits []indexengine.ComponentHit, err error) {
	start := time.Now()
	defer func() {
		f.traceOp(projectPath, "query_component", map[string]any{"project_path": projectPath, "name": name}, start, &err)
	}()

	if err = f.requireAccess(projectPath); err != nil {
		return nil, err
	}
	hits, err = f.engine.QueryComponent(projectPath, name)
	return hits, err
}

// FindImplementation performs the substring/context search.
func (f *Facade) FindImplementation(projectPath, text, filePattern string) (matches []indexengine.MatchContext, err error) {
	start := time.Now()
	defer func() {
		f.traceOp(projectPath, "find_implementation",
			map[string]any{"project_path": projectPath, "text": text, "file_pattern": filePattern}, start, &err)
	}()

	if err = f.requireAccess(projectPath); err != nil {
		return nil, err
	}
	matches, err = f.engine.FindImplementation(projectPath, text, filePattern)
	return matches, err
}

// FindRelatedFiles categorises components referenced from the named file.
func (f *Facade) FindRelatedFiles(projectPath, filePath string) (related map[string][]indexengine.RelatedFileEdge, err error) {
	start := time.Now()
	defer func() {
		f.traceOp(projectPath, "find_related_files", map[string]any{"project_path": projectPath, "file_path": filePath}, start, &err)
	}()

	if err = f.requireAccess(projectPath); err != nil {
		return nil, err
	}
	related, err = f.engine.FindRelatedFiles(projectPath, filePath)
	return related, err
}

// InitializeToolIndex initialises the Tool Reference skeleton, then seeds
// the Tool Registry Store from the transport's own tool table (plus any
// tools already on disk).
func (f *Facade) InitializeToolIndex(projectPath string) (count int, err error) {
	start := time.Now()
	defer func() { f.traceOp(projectPath, "initialize_tool_index", map[string]any{"project_path": projectPath}, start, &err) }()

	if err = f.requireAccess(projectPath); err != nil {
		return 0, err
	}

	toolStore := toolregistry.New(projectPath)
	err = f.withMonitorPaused(func() error {
		if err := toolStore.InitSkeleton(); err != nil {
			return err
		}
		doc, err := toolStore.LoadRegistry()
		if err != nil {
			return err
		}
		if f.mcpReg != nil {
			for _, def := range f.mcpReg.List() {
				doc.Tools[def.Name] = model.Tool{
					ID:          def.Name,
					Category:    "specindex",
					Description: def.Description,
					Params:      schemaToParams(def.InputSchema),
					ReturnType:  "object",
				}
			}
		}
		count = len(doc.Tools)
		return toolStore.SaveRegistry(doc)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// InitializeAIDevToolkit runs InitializeLibrarian and InitializeToolIndex
// together and reports both outcomes in one combined summary.
func (f *Facade) InitializeAIDevToolkit(projectPath string) (result map[string]any, err error) {
	start := time.Now()
	defer func() { f.traceOp(projectPath, "initialize_ai_dev_toolkit", map[string]any{"project_path": projectPath}, start, &err) }()

	if err = f.requireAccess(projectPath); err != nil {
		return nil, err
	}

	librarianSummary, err := f.InitializeLibrarian(projectPath)
	if err != nil {
		return nil, err
	}
	toolCount, err := f.InitializeToolIndex(projectPath)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"librarian": librarianSummary,
		"tool_count": toolCount,
	}, nil
}

// BuildCrossReferences runs one Cross-Reference Builder pass and
// invalidates the Unified Context Cache so the next read reflects it
// immediately (I9).
func (f *Facade) BuildCrossReferences(projectPath string) (summary *xref.Summary, err error) {
	start := time.Now()
	defer func() { f.traceOp(projectPath, "build_cross_references", map[string]any{"project_path": projectPath}, start, &err) }()

	if err = f.requireAccess(projectPath); err != nil {
		return nil, err
	}
	err = f.withMonitorPaused(func() error {
		var innerErr error
		summary, innerErr = f.xrefBuild.Build(projectPath)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	f.cache.Invalidate(projectPath)
	return summary, nil
}

// GetUnifiedContext returns the cached (or freshly built) unified context.
func (f *Facade) GetUnifiedContext(projectPath string) (uc *model.UnifiedContext, err error) {
	start := time.Now()
	defer func() { f.traceOp(projectPath, "get_unified_context", map[string]any{"project_path": projectPath}, start, &err) }()

	if err = f.requireAccess(projectPath); err != nil {
		return nil, err
	}
	uc, err = f.cache.Get(projectPath)
	return uc, err
}

// FindRelatedTools answers the related_tools navigation query.
func (f *Facade) FindRelatedTools(projectPath, componentName string) (related []unifiedcontext.RelatedTool, err error) {
	start := time.Now()
	defer func() {
		f.traceOp(projectPath, "find_related_tools", map[string]any{"project_path": projectPath, "component_name": componentName}, start, &err)
	}()

	if err = f.requireAccess(projectPath); err != nil {
		return nil, err
	}
	related, err = f.cache.RelatedTools(projectPath, componentName)
	return related, err
}

// FindRelatedComponents answers the related_components navigation query.
func (f *Facade) FindRelatedComponents(projectPath, toolID string) (related []unifiedcontext.RelatedComponent, err error) {
	start := time.Now()
	defer func() {
		f.traceOp(projectPath, "find_related_components", map[string]any{"project_path": projectPath, "tool_id": toolID}, start, &err)
	}()

	if err = f.requireAccess(projectPath); err != nil {
		return nil, err
	}
	related, err = f.cache.RelatedComponents(projectPath, toolID)
	return related, err
}

// board returns (creating and starting if necessary) the Task Board for
// projectPath.
func (f *Facade) board(projectPath string) (*taskboard.Board, error) {
	f.boardsMu.Lock()
	defer f.boardsMu.Unlock()

	if b, ok := f.boards[projectPath]; ok {
		return b, nil
	}

	b := taskboard.New(projectPath, f.logger, f.tbConfig.Workers, f.tbConfig.DefaultTimeout, f.tbConfig.Retention)
	registerBuiltinHandlers(b, f.engine)
	if err := b.Start(context.Background()); err != nil {
		return nil, err
	}
	f.boards[projectPath] = b
	return b, nil
}

// SubmitBackgroundTask enqueues a task and returns its ID.
func (f *Facade) SubmitBackgroundTask(projectPath, taskType string, params map[string]any, priority model.TaskPriority, timeout time.Duration) (id string, err error) {
	start := time.Now()
	defer func() {
		f.traceOp(projectPath, "submit_background_task", map[string]any{"project_path": projectPath, "task_type": taskType}, start, &err)
	}()

	if err = f.requireAccess(projectPath); err != nil {
		return "", err
	}
	b, err := f.board(projectPath)
	if err != nil {
		return "", err
	}
	id, err = b.Submit(taskType, params, priority, timeout)
	return id, err
}

// GetTaskStatus returns the task record for id.
func (f *Facade) GetTaskStatus(projectPath, taskID string) (task *model.Task, err error) {
	start := time.Now()
	defer func() {
		f.traceOp(projectPath, "get_task_status", map[string]any{"project_path": projectPath, "task_id": taskID}, start, &err)
	}()

	if err = f.requireAccess(projectPath); err != nil {
		return nil, err
	}
	b, err := f.board(projectPath)
	if err != nil {
		return nil, err
	}
	t, ok := b.Status(taskID)
	if !ok {
		err = fmt.Errorf("not_found: task %q", taskID)
		return nil, err
	}
	return t, nil
}

// GetTaskResult returns the result of a terminal task.
func (f *Facade) GetTaskResult(projectPath, taskID string) (result *model.TaskResult, err error) {
	start := time.Now()
	defer func() {
		f.traceOp(projectPath, "get_task_result", map[string]any{"project_path": projectPath, "task_id": taskID}, start, &err)
	}()

	if err = f.requireAccess(projectPath); err != nil {
		return nil, err
	}
	b, err := f.board(projectPath)
	if err != nil {
		return nil, err
	}
	result, ok := b.Result(taskID)
	if !ok {
		err = fmt.Errorf("not_found: task %q has no terminal result yet", taskID)
		return nil, err
	}
	return result, nil
}

// CancelTask cancels a still-pending task.
func (f *Facade) CancelTask(projectPath, taskID string) (cancelled bool, err error) {
	start := time.Now()
	defer func() {
		f.traceOp(projectPath, "cancel_task", map[string]any{"project_path": projectPath, "task_id": taskID}, start, &err)
	}()

	if err = f.requireAccess(projectPath); err != nil {
		return false, err
	}
	b, err := f.board(projectPath)
	if err != nil {
		return false, err
	}
	cancelled, err = b.Cancel(taskID)
	return cancelled, err
}

// ListTasks lists tasks matching the given optional filters.
func (f *Facade) ListTasks(projectPath string, status model.TaskStatus, taskType string, limit int) (tasks []*model.Task, err error) {
	start := time.Now()
	defer func() {
		f.traceOp(projectPath, "list_tasks", map[string]any{"project_path": projectPath, "task_type": taskType}, start, &err)
	}()

	if err = f.requireAccess(projectPath); err != nil {
		return nil, err
	}
	b, err := f.board(projectPath)
	if err != nil {
		return nil, err
	}
	return b.List(status, taskType, limit), nil
}

// Diagnostics validates the four on-disk invariants and returns a report.
func (f *Facade) Diagnostics(projectPath string) (report string, err error) {
	start := time.Now()
	defer func() { f.traceOp(projectPath, "diagnostics", map[string]any{"project_path": projectPath}, start, &err) }()

	if err = f.requireAccess(projectPath); err != nil {
		return "", err
	}
	report, err = f.engine.Diagnostics(projectPath)
	return report, err
}

// ResumeMonitoring re-registers every project persisted in process state as
// active and starts a fresh reindex pass on each, restoring the monitor to
// its pre-restart coverage (I6, scenario 6).
func (f *Facade) ResumeMonitoring() {
	if f.procState == nil {
		return
	}
	for _, root := range f.procState.ActiveProjects {
		if !f.roots.Allowed(root) {
			continue
		}
		if _, err := f.engine.Reindex(root); err != nil {
			f.logger.Warn("resume: reindex failed", "project", root, "error", err)
			continue
		}
		if _, err := f.board(root); err != nil {
			f.logger.Warn("resume: starting task board failed", "project", root, "error", err)
		}
		if f.monitor != nil {
			f.monitor.WatchProject(root)
		}
	}
}

// ValidateArguments validates raw JSON arguments against a tool's declared
// JSON Schema, used by every tool wrapper before it calls into the facade.
func ValidateArguments(schema, arguments json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	var schemaDoc any
	if err := json.Unmarshal(schema, &schemaDoc); err != nil {
		return fmt.Errorf("invalid tool schema: %w", err)
	}
	if err := compiler.AddResource("schema.json", schemaDoc); err != nil {
		return fmt.Errorf("loading tool schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compiling tool schema: %w", err)
	}

	var argsDoc any
	if len(arguments) == 0 {
		argsDoc = map[string]any{}
	} else if err := json.Unmarshal(arguments, &argsDoc); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := compiled.Validate(argsDoc); err != nil {
		return fmt.Errorf("invalid_params: %w", err)
	}
	return nil
}

// schemaToParams extracts a flat ParamSpec list from a JSON Schema object
// document, best-effort: unrecognised shapes simply yield no params rather
// than failing tool-index initialisation.
func schemaToParams(schema json.RawMessage) []model.ParamSpec {
	var doc struct {
		Properties map[string]struct {
			Type    string `json:"type"`
			Default any    `json:"default"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schema, &doc); err != nil {
		return nil
	}
	required := map[string]bool{}
	for _, r := range doc.Required {
		required[r] = true
	}
	var params []model.ParamSpec
	for name, p := range doc.Properties {
		params = append(params, model.ParamSpec{
			Name:     name,
			Type:     p.Type,
			Required: required[name],
			Default:  p.Default,
		})
	}
	return params
}

// registerBuiltinHandlers registers the two built-in task-type handlers:
// find_usages queries the Index Engine's FindRelatedFiles, and
// tool_reference runs a Cross-Reference Builder pass. Every other task type
// falls through to taskboard.GenericHandler.
func registerBuiltinHandlers(b *taskboard.Board, engine *indexengine.Engine) {
	b.RegisterHandler("find_usages", func(ctx context.Context, t *model.Task, params map[string]any, cancelled <-chan struct{}) (map[string]any, error) {
		file, _ := params["file"].(string)
		librarians, _ := params["mini_librarians"].([]string)
		out := map[string]any{"mini_librarians_used": librarians}
		if file != "" {
			related, err := engine.FindRelatedFiles(b.Root(), file)
			if err == nil {
				out["related_files"] = related
			}
		}
		return out, nil
	})

	b.RegisterHandler("tool_reference", func(ctx context.Context, t *model.Task, params map[string]any, cancelled <-chan struct{}) (map[string]any, error) {
		librarians, _ := params["mini_librarians"].([]string)
		builder := xref.New(slog.Default())
		summary, err := builder.Build(b.Root())
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"mini_librarians_used":    librarians,
			"component_to_tool_edges": summary.ComponentToToolEdges,
			"tool_to_component_edges": summary.ToolToComponentEdges,
		}, nil
	})
}
