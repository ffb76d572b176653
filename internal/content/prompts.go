// Package content provides MCP prompts and resources for the specindex
// server.
package content

import "github.com/emergent-company/specindex/internal/mcp"

// --- get-started prompt ---

// GetStartedPrompt walks an LLM through onboarding a new project: granting
// access, initialising the AI Reference and Tool Reference, and building
// cross-references.
type GetStartedPrompt struct{}

func (p *GetStartedPrompt) Definition() mcp.PromptDefinition {
	return mcp.PromptDefinition{
		Name:        "get-started",
		Description: "Interactive guide for bringing a new project under specindex: checking access, initialising the librarian, and building cross-references.",
		Arguments: []mcp.PromptArgument{
			{Name: "project_path", Description: "Absolute path to the project root", Required: false},
		},
	}
}

func (p *GetStartedPrompt) Get(arguments map[string]string) (*mcp.PromptsGetResult, error) {
	return &mcp.PromptsGetResult{
		Description: "Guide for onboarding a project",
		Messages: []mcp.PromptMessage{
			{
				Role:    "user",
				Content: mcp.TextContent(getStartedGuide),
			},
		},
	}, nil
}

const getStartedGuide = `# Get Started with specindex

specindex maintains a live, queryable index of a codebase's components and
the tools available to work on them. Bring a new project under management
in four steps.

## Step 1: Check access

Call ` + "`check_project_access`" + ` with the project's absolute path. If it
reports ` + "`allowed: false`" + `, the path is outside every configured
root — call ` + "`list_allowed_directories`" + ` to see what is available and
stop here.

## Step 2: Initialize

Call ` + "`initialize_ai_dev_toolkit`" + ` with the project path. This scans
every source file, builds the component registry, seeds the tool registry
from this server's own tool table, and registers the project for background
monitoring. It returns a diagnostic message of the form
"N components identified, M files indexed".

If you only need one half of this (e.g. re-running after the Tool Reference
is already seeded), call ` + "`initialize_librarian`" + ` or
` + "`initialize_tool_index`" + ` directly instead.

## Step 3: Build cross-references

Call ` + "`build_cross_references`" + ` to derive typed, strength-weighted
relationships between components and tools. This is required before
` + "`find_related_tools`" + ` or ` + "`find_related_components`" + ` return
anything beyond heuristic matches.

## Step 4: Query

With the project initialised, use:
- ` + "`query_component`" + ` to locate a class or function's definition
- ` + "`find_implementation`" + ` to text-search across project files
- ` + "`find_related_files`" + ` to see what a file calls or references
- ` + "`get_unified_context`" + ` for the full materialised view
- ` + "`submit_background_task`" + ` for anything that might run long,
  then poll with ` + "`get_task_status`" + ` and collect with
  ` + "`get_task_result`" + `

The index refreshes itself in the background once a project is
initialised; ` + "`generate_librarian`" + ` forces an immediate rescan.
`

// --- background-task prompt ---

// BackgroundTaskPrompt guides an LLM through submitting and collecting a
// background task.
type BackgroundTaskPrompt struct{}

func (p *BackgroundTaskPrompt) Definition() mcp.PromptDefinition {
	return mcp.PromptDefinition{
		Name:        "background-task",
		Description: "Guide for submitting a long-running task to the Task Board and collecting its result.",
		Arguments:   []mcp.PromptArgument{},
	}
}

func (p *BackgroundTaskPrompt) Get(arguments map[string]string) (*mcp.PromptsGetResult, error) {
	return &mcp.PromptsGetResult{
		Description: "Guide for background task submission",
		Messages: []mcp.PromptMessage{
			{
				Role:    "user",
				Content: mcp.TextContent(backgroundTaskGuide),
			},
		},
	}, nil
}

const backgroundTaskGuide = `# Submitting a Background Task

Use the Task Board for work that might outlast a single tool call: wide
usage searches, multi-file modifications, or anything you'd rather not
block on.

## Submit

Call ` + "`submit_background_task`" + ` with:
- ` + "`project_path`" + ` — the project root
- ` + "`task_type`" + ` — selects the handler and, indirectly, which mini
  librarians are consulted (e.g. ` + "`find_usages`" + `,
  ` + "`component_analysis`" + `, ` + "`code_modification`" + `,
  ` + "`file_search`" + `, ` + "`todo_management`" + `). Unrecognised types
  fall back to a general-purpose handler.
- ` + "`params`" + ` — arbitrary parameters for the handler
- ` + "`priority`" + ` — ` + "`high`" + `, ` + "`medium`" + `, or
  ` + "`low`" + ` (default medium)

This returns a task ID immediately; the task itself runs asynchronously.

## Poll

Call ` + "`get_task_status`" + ` with the task ID. Status moves through
` + "`pending`" + ` → ` + "`running`" + ` → one of
` + "`completed`" + `/` + "`failed`" + `/` + "`timeout`" + `/` + "`cancelled`" + `.
Once terminal, call ` + "`get_task_result`" + ` to collect the result.

## Cancel

` + "`cancel_task`" + ` only has effect while a task is still
` + "`pending`" + `; it is a no-op once the task has started running.

## List

` + "`list_tasks`" + ` lists a project's tasks, optionally filtered by
status or task type.
`
