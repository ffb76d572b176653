// Package taskboard implements the five Task Board-facing tools:
// submit_background_task, get_task_status, get_task_result, cancel_task,
// and list_tasks.
package taskboard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/emergent-company/specindex/internal/facade"
	"github.com/emergent-company/specindex/internal/mcp"
	"github.com/emergent-company/specindex/internal/model"
)

// --- submit_background_task ---

type submitParams struct {
	ProjectPath string         `json:"project_path"`
	TaskType    string         `json:"task_type"`
	Params      map[string]any `json:"params,omitempty"`
	Priority    string         `json:"priority,omitempty"`
	TimeoutSec  int            `json:"timeout_seconds,omitempty"`
}

// SubmitBackgroundTask enqueues a task on the project's Task Board.
type SubmitBackgroundTask struct {
	facade *facade.Facade
}

func NewSubmitBackgroundTask(f *facade.Facade) *SubmitBackgroundTask {
	return &SubmitBackgroundTask{facade: f}
}

func (t *SubmitBackgroundTask) Name() string { return "submit_background_task" }
func (t *SubmitBackgroundTask) Description() string {
	return "Submit a long-running task to the project's background worker pool and return its task ID immediately."
}
func (t *SubmitBackgroundTask) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_path": {"type": "string", "description": "Absolute path to the project root"},
    "task_type": {"type": "string", "description": "Selects which handler set services this task"},
    "params": {"type": "object", "description": "Arbitrary task parameters"},
    "priority": {"type": "string", "enum": ["high", "medium", "low"], "default": "medium"},
    "timeout_seconds": {"type": "integer", "description": "Overrides the default per-task timeout"}
  },
  "required": ["project_path", "task_type"]
}`)
}

func (t *SubmitBackgroundTask) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p submitParams
	if err := unmarshalValidated(t.InputSchema(), params, &p); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	priority := model.TaskPriority(p.Priority)
	if priority == "" {
		priority = model.PriorityMedium
	}
	var timeout time.Duration
	if p.TimeoutSec > 0 {
		timeout = time.Duration(p.TimeoutSec) * time.Second
	}

	id, err := t.facade.SubmitBackgroundTask(p.ProjectPath, p.TaskType, p.Params, priority, timeout)
	if err != nil {
		return facade.ResultError(err)
	}
	return mcp.JSONResult(map[string]any{"status": "ok", "task_id": id})
}

// --- get_task_status ---

type taskIDParams struct {
	ProjectPath string `json:"project_path"`
	TaskID      string `json:"task_id"`
}

// GetTaskStatus returns a task's current status record.
type GetTaskStatus struct {
	facade *facade.Facade
}

func NewGetTaskStatus(f *facade.Facade) *GetTaskStatus {
	return &GetTaskStatus{facade: f}
}

func (t *GetTaskStatus) Name() string { return "get_task_status" }
func (t *GetTaskStatus) Description() string {
	return "Return the current status record for a background task."
}
func (t *GetTaskStatus) InputSchema() json.RawMessage { return taskIDSchema }

func (t *GetTaskStatus) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p taskIDParams
	if err := unmarshalValidated(t.InputSchema(), params, &p); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	task, err := t.facade.GetTaskStatus(p.ProjectPath, p.TaskID)
	if err != nil {
		return facade.ResultError(err)
	}
	return mcp.JSONResult(task)
}

// --- get_task_result ---

// GetTaskResult returns a terminal task's result record.
type GetTaskResult struct {
	facade *facade.Facade
}

func NewGetTaskResult(f *facade.Facade) *GetTaskResult {
	return &GetTaskResult{facade: f}
}

func (t *GetTaskResult) Name() string { return "get_task_result" }
func (t *GetTaskResult) Description() string {
	return "Return the result of a completed, failed, timed-out, or cancelled background task. Errors if the task has not yet reached a terminal state."
}
func (t *GetTaskResult) InputSchema() json.RawMessage { return taskIDSchema }

func (t *GetTaskResult) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p taskIDParams
	if err := unmarshalValidated(t.InputSchema(), params, &p); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	result, err := t.facade.GetTaskResult(p.ProjectPath, p.TaskID)
	if err != nil {
		return facade.ResultError(err)
	}
	return mcp.JSONResult(result)
}

// --- cancel_task ---

// CancelTask cancels a still-pending task.
type CancelTask struct {
	facade *facade.Facade
}

func NewCancelTask(f *facade.Facade) *CancelTask {
	return &CancelTask{facade: f}
}

func (t *CancelTask) Name() string { return "cancel_task" }
func (t *CancelTask) Description() string {
	return "Cancel a still-pending background task. Has no effect on a task that has already started running."
}
func (t *CancelTask) InputSchema() json.RawMessage { return taskIDSchema }

func (t *CancelTask) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p taskIDParams
	if err := unmarshalValidated(t.InputSchema(), params, &p); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	cancelled, err := t.facade.CancelTask(p.ProjectPath, p.TaskID)
	if err != nil {
		return facade.ResultError(err)
	}
	return mcp.JSONResult(map[string]any{"status": "ok", "cancelled": cancelled})
}

// --- list_tasks ---

type listTasksParams struct {
	ProjectPath string `json:"project_path"`
	Status      string `json:"status,omitempty"`
	TaskType    string `json:"task_type,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// ListTasks lists tasks matching optional status/task_type filters.
type ListTasks struct {
	facade *facade.Facade
}

func NewListTasks(f *facade.Facade) *ListTasks {
	return &ListTasks{facade: f}
}

func (t *ListTasks) Name() string { return "list_tasks" }
func (t *ListTasks) Description() string {
	return "List background tasks for a project, optionally filtered by status and task_type."
}
func (t *ListTasks) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_path": {"type": "string", "description": "Absolute path to the project root"},
    "status": {"type": "string", "enum": ["pending", "running", "completed", "failed", "timeout", "cancelled"]},
    "task_type": {"type": "string"},
    "limit": {"type": "integer", "default": 100}
  },
  "required": ["project_path"]
}`)
}

func (t *ListTasks) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p listTasksParams
	if err := unmarshalValidated(t.InputSchema(), params, &p); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	tasks, err := t.facade.ListTasks(p.ProjectPath, model.TaskStatus(p.Status), p.TaskType, p.Limit)
	if err != nil {
		return facade.ResultError(err)
	}
	return mcp.JSONResult(map[string]any{"status": "ok", "tasks": tasks})
}

var taskIDSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_path": {"type": "string", "description": "Absolute path to the project root"},
    "task_id": {"type": "string", "description": "ID returned by submit_background_task"}
  },
  "required": ["project_path", "task_id"]
}`)

func unmarshalValidated(schema, params json.RawMessage, dest any) error {
	if err := facade.ValidateArguments(schema, params); err != nil {
		return err
	}
	return json.Unmarshal(params, dest)
}
