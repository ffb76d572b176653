package content

import "github.com/emergent-company/specindex/internal/mcp"

// --- specindex://domain-model resource ---

// DomainModelResource exposes the component/tool/task data model as a
// reference resource. LLMs can read this to understand the shapes returned
// by the query tools.
type DomainModelResource struct{}

func (r *DomainModelResource) Definition() mcp.ResourceDefinition {
	return mcp.ResourceDefinition{
		URI:         "specindex://domain-model",
		Name:        "specindex Domain Model",
		Description: "Reference of the component registry, tool registry, cross-reference, and task data shapes used by specindex",
		MimeType:    "text/markdown",
	}
}

func (r *DomainModelResource) Read() (*mcp.ResourcesReadResult, error) {
	return &mcp.ResourcesReadResult{
		Contents: []mcp.ResourceContent{
			{
				URI:      "specindex://domain-model",
				MimeType: "text/markdown",
				Text:     domainModelContent,
			},
		},
	}, nil
}

const domainModelContent = `# specindex Domain Model

## Component

A unit the Index Engine discovered while scanning project source: a class or
a function. Registry fields: ` + "`name`" + `, ` + "`type`" + ` (` + "`class`" + ` or
` + "`function`" + `), ` + "`file`" + `, ` + "`references`" + `. A name may have
multiple definitions across files; ` + "`query_component`" + ` returns every
hit as ` + "`file`" + `, ` + "`kind`" + `, ` + "`line_range`" + `, ` + "`source_slice`" + `.

## Tool

An entry in a project's tool registry: ` + "`id`" + `, ` + "`category`" + `,
` + "`description`" + `, ` + "`parameters`" + ` (name/type/required/default),
` + "`return_type`" + `.

## CrossReference

A typed, strength-weighted edge between one component and one tool. Fields:
` + "`component_name`" + `, ` + "`tool_id`" + `, ` + "`relationship_type`" + ` (one of
` + "`implementation`" + `, ` + "`usage`" + `, ` + "`reference`" + `, ` + "`documentation`" + `,
` + "`name_similarity`" + `, ` + "`semantic_category`" + `, ` + "`profile_reference`" + `,
` + "`bidirectional`" + `), ` + "`strength`" + ` (` + "`very_weak`" + ` through
` + "`very_strong`" + `), ` + "`match_reason`" + ` (free text explaining the edge).
When several pieces of evidence connect the same pair, they merge into one
edge carrying the strongest strength.

## UnifiedContext

The materialised view combining the component registry, tool registry, and
cross-references for a project, cached for a short TTL and invalidated
whenever cross-references are rebuilt.

## Task

A unit of work submitted to a project's Task Board. Fields: ` + "`id`" + `,
` + "`task_type`" + `, ` + "`params`" + `, ` + "`priority`" + ` (` + "`high`" + `,
` + "`medium`" + `, ` + "`low`" + `), ` + "`status`" + ` (` + "`pending`" + `,
` + "`running`" + `, then one of ` + "`completed`" + `/` + "`failed`" + `/
` + "`timeout`" + `/` + "`cancelled`" + `), timestamps for each transition, and
a result once terminal. Task results record which mini librarians were
consulted to service the task.
`

// --- specindex://access-policy resource ---

// AccessPolicyResource documents how allowed-roots access control works.
type AccessPolicyResource struct{}

func (r *AccessPolicyResource) Definition() mcp.ResourceDefinition {
	return mcp.ResourceDefinition{
		URI:         "specindex://access-policy",
		Name:        "specindex Access Policy",
		Description: "Reference of how allowed roots gate every project-scoped operation",
		MimeType:    "text/markdown",
	}
}

func (r *AccessPolicyResource) Read() (*mcp.ResourcesReadResult, error) {
	return &mcp.ResourcesReadResult{
		Contents: []mcp.ResourceContent{
			{
				URI:      "specindex://access-policy",
				MimeType: "text/markdown",
				Text:     accessPolicyContent,
			},
		},
	}, nil
}

const accessPolicyContent = `# specindex Access Policy

The server is configured with a fixed set of allowed root directories
(` + "`roots.allowed`" + ` in config, plus any positional command-line
arguments). Every project-scoped tool call resolves its ` + "`project_path`" + `
argument to an absolute path and checks it against those roots before doing
anything else.

A path outside every allowed root fails closed: the call returns an
` + "`access_denied`" + ` status and the server makes no filesystem changes
and records no state for that path. This holds even for read-only
operations such as ` + "`query_component`" + `.

` + "`list_allowed_directories`" + ` reports the full set of configured
roots. ` + "`check_project_access`" + ` reports whether a specific path would
be allowed, without performing any other operation, so it is safe to call
speculatively before ` + "`initialize_librarian`" + `.
`

// --- specindex://tool-reference resource ---

// ToolReferenceResource exposes a quick-reference card for all registered
// tools.
type ToolReferenceResource struct{}

func (r *ToolReferenceResource) Definition() mcp.ResourceDefinition {
	return mcp.ResourceDefinition{
		URI:         "specindex://tool-reference",
		Name:        "specindex Tool Reference",
		Description: "Quick-reference card summarising every tool this server exposes",
		MimeType:    "text/markdown",
	}
}

func (r *ToolReferenceResource) Read() (*mcp.ResourcesReadResult, error) {
	return &mcp.ResourcesReadResult{
		Contents: []mcp.ResourceContent{
			{
				URI:      "specindex://tool-reference",
				MimeType: "text/markdown",
				Text:     toolReferenceContent,
			},
		},
	}, nil
}

const toolReferenceContent = `# specindex Tool Reference

## Access
- ` + "`list_allowed_directories`" + ` — list configured allowed roots
- ` + "`check_project_access`" + ` — check whether a path is in scope

## AI Reference (Index Engine)
- ` + "`initialize_librarian`" + ` — first-time scan, registry build, and
  monitoring registration
- ` + "`generate_librarian`" + ` — force an immediate rescan
- ` + "`query_component`" + ` — locate a class/function's definition(s)
- ` + "`find_implementation`" + ` — text search with surrounding context
- ` + "`find_related_files`" + ` — group a file's calls/references by
  category

## Tool Reference
- ` + "`initialize_tool_index`" + ` — seed the tool registry from this
  server's own tools
- ` + "`initialize_ai_dev_toolkit`" + ` — run both initialisers at once

## Cross-References
- ` + "`build_cross_references`" + ` — derive component/tool relationships
- ` + "`get_unified_context`" + ` — fetch the cached materialised view
- ` + "`find_related_tools`" + ` — tools related to a named component
- ` + "`find_related_components`" + ` — components related to a named tool

## Task Board
- ` + "`submit_background_task`" + ` — enqueue a long-running task
- ` + "`get_task_status`" + `, ` + "`get_task_result`" + `,
  ` + "`cancel_task`" + `, ` + "`list_tasks`" + ` — track and manage tasks
`
