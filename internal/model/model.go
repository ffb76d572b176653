// Package model defines the data types shared by every component of the
// index server: components, mini-records, tools, cross-references, unified
// context snapshots, and background tasks.
package model

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	ComponentRegistryVersion = "1.0.0"
	ScriptIndexVersion       = "1.0.0"
	ToolRegistryVersion      = "1.0.0"
	BidirectionalRefsVersion = "1.0.0"
)

// MajorVersion returns the leading dot-separated component of a version
// string, used by every on-disk document's version guard to decide
// compatibility without requiring an exact match.
func MajorVersion(v string) string {
	return strings.SplitN(v, ".", 2)[0]
}

// ComponentKind distinguishes a class from a function/method.
type ComponentKind string

const (
	KindClass    ComponentKind = "class"
	KindFunction ComponentKind = "function"
)

// Component is the unit of code knowledge: a class or function extracted
// from project source.
type Component struct {
	Name       string        `json:"name"`
	Kind       ComponentKind `json:"type"`
	File       string        `json:"file"`       // project-relative
	References []string      `json:"references"` // other files mentioning it

	// ToolReferences holds cross-reference edges from this component to
	// tools, populated by the Cross-Reference Builder (C7). May contain
	// legacy plain-string entries on read; always normalised to edges by
	// the time callers see it.
	ToolReferences        EdgeList     `json:"tool_references,omitempty"`
	ToolReferencesSummary *EdgeSummary `json:"tool_references_summary,omitempty"`
}

// ComponentRegistry is the on-disk component_registry.json document.
type ComponentRegistry struct {
	Version    string               `json:"version"`
	Components map[string]Component `json:"components"`
}

// MiniRecord is the per-file extracted index document.
type MiniRecord struct {
	Path        string   `json:"path"` // project-relative
	Classes     []string `json:"classes"`
	Functions   []string `json:"functions"`
	Imports     []string `json:"imports"`
	Description string   `json:"description"`
}

// ScriptFileEntry is one value in ScriptIndex.Files.
type ScriptFileEntry struct {
	Path          string   `json:"path"`
	Classes       []string `json:"classes"`
	Functions     []string `json:"functions"`
	MiniLibrarian string   `json:"mini_librarian"` // relative path under scripts/
}

// ScriptIndex is the on-disk script_index.json document.
type ScriptIndex struct {
	Version string                     `json:"version"`
	Files   map[string]ScriptFileEntry `json:"files"`
}

// ParamSpec describes one tool parameter.
type ParamSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Default  any    `json:"default,omitempty"`
}

// Tool is one entry in the Tool Registry (C4).
type Tool struct {
	ID          string      `json:"id"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"parameters"`
	ReturnType  string      `json:"return_type"`
	Examples    []string    `json:"examples,omitempty"`

	// ProfilePath, when non-empty, points at a ToolProfile document under
	// tool_profiles/. A missing target is tolerated: the consumer
	// synthesises a fallback profile.
	ProfilePath string `json:"profile_path,omitempty"`
}

// ToolRegistryDoc is the on-disk registry.json document.
type ToolRegistryDoc struct {
	Version string          `json:"version"`
	Tools   map[string]Tool `json:"tools"`
}

// ToolProfile is the optional detailed per-tool profile.
type ToolProfile struct {
	ID               string   `json:"id"`
	Purpose          string   `json:"purpose"`
	AlwaysUse        []string `json:"always_use,omitempty"`
	NeverUse         []string `json:"never_use,omitempty"`
	Responsibilities []string `json:"responsibilities,omitempty"`
	FallbackProfile  bool     `json:"_fallback_profile,omitempty"`

	ComponentReferences        EdgeList     `json:"component_references,omitempty"`
	ComponentReferencesSummary *EdgeSummary `json:"component_references_summary,omitempty"`
}

// RelationshipGroup groups related tool IDs and common call sequences.
type RelationshipGroup struct {
	Name      string     `json:"name"`
	ToolIDs   []string   `json:"tool_ids"`
	Sequences [][]string `json:"common_sequences,omitempty"`
}

// DecisionTreeNode is one node in a tool-selection decision tree.
type DecisionTreeNode struct {
	Question string                      `json:"question,omitempty"`
	ToolID   string                      `json:"tool_id,omitempty"`
	Branches map[string]*DecisionTreeNode `json:"branches,omitempty"`
}

// DecisionTree is a node graph for tool selection, rooted at Root.
type DecisionTree struct {
	ID   string            `json:"id"`
	Root *DecisionTreeNode `json:"root"`
}

// RelationshipType enumerates cross-reference edge kinds.
type RelationshipType string

const (
	RelImplementation   RelationshipType = "implementation"
	RelUsage            RelationshipType = "usage"
	RelReference        RelationshipType = "reference"
	RelDocumentation    RelationshipType = "documentation"
	RelNameSimilarity   RelationshipType = "name_similarity"
	RelSemanticCategory RelationshipType = "semantic_category"
	RelProfileReference RelationshipType = "profile_reference"
	RelBidirectional    RelationshipType = "bidirectional"
)

// Strength enumerates the relative strength of an observed relation. The
// ordering below (weakest to strongest) is authoritative for max-merge.
type Strength string

const (
	StrengthVeryWeak   Strength = "very_weak"
	StrengthWeak       Strength = "weak"
	StrengthMedium     Strength = "medium"
	StrengthStrong     Strength = "strong"
	StrengthVeryStrong Strength = "very_strong"
)

var strengthRank = map[Strength]int{
	StrengthVeryWeak:   0,
	StrengthWeak:       1,
	StrengthMedium:     2,
	StrengthStrong:     3,
	StrengthVeryStrong: 4,
}

// Rank returns the ordinal rank of a strength value (higher is stronger).
// Unknown values rank below very_weak.
func (s Strength) Rank() int {
	if r, ok := strengthRank[s]; ok {
		return r
	}
	return -1
}

// MaxStrength returns whichever of a, b ranks higher.
func MaxStrength(a, b Strength) Strength {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// CrossReference is a typed, strength-weighted edge between one component
// and one tool.
type CrossReference struct {
	ComponentName string            `json:"component_name"`
	ToolID        string            `json:"tool_id"`
	Type          RelationshipType  `json:"relationship_type"`
	Strength      Strength          `json:"strength"`
	Reason        string            `json:"match_reason"`
	Lines         []int             `json:"match_lines,omitempty"`
	Contexts      []string          `json:"match_contexts,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// EdgeList is a list of cross-reference edges that tolerates a legacy
// on-disk shape: some older documents store a bare ID string in place of a
// structured edge object in the same list. Per the resolved Open Question
// (i) in DESIGN.md, legacy plain-string entries are upgraded to structured
// edges (type reference, strength medium) on read; nothing is ever written
// back out in string form.
type EdgeList []CrossReference

// UnmarshalJSON accepts a JSON array whose elements are either edge objects
// or bare strings, normalising strings to a minimal CrossReference.
func (el *EdgeList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(EdgeList, 0, len(raw))
	for _, item := range raw {
		var edge CrossReference
		if err := json.Unmarshal(item, &edge); err == nil && (edge.ToolID != "" || edge.ComponentName != "") {
			out = append(out, edge)
			continue
		}
		var legacyID string
		if err := json.Unmarshal(item, &legacyID); err == nil && legacyID != "" {
			out = append(out, CrossReference{
				ToolID:   legacyID,
				Type:     RelReference,
				Strength: StrengthMedium,
				Reason:   "upgraded from legacy plain-string reference",
			})
			continue
		}
	}
	*el = out
	return nil
}

// EdgeSummary is the counts-by-type/strength block stored alongside a
// component's or tool's edge list.
type EdgeSummary struct {
	Count              int            `json:"count"`
	RelationshipTypes  map[string]int `json:"relationship_types"`
	RelationshipStrengths map[string]int `json:"relationship_strengths"`
	LastUpdated        string         `json:"last_updated"`
}

// BidirectionalRefs is the unified edge map written to bidirectional_refs.json
// in both reference directories.
type BidirectionalRefs struct {
	Version         string              `json:"version"`
	Description     string              `json:"description"`
	ComponentToTool map[string]EdgeList `json:"component_to_tool"`
	ToolToComponent map[string]EdgeList `json:"tool_to_component"`
	ComponentsCount int                 `json:"components_count"`
	ToolsCount      int                 `json:"tools_count"`
	LastUpdated     string              `json:"last_updated"`
}

// UnifiedContext is the derived snapshot combining all indices.
type UnifiedContext struct {
	Components         map[string]Component        `json:"components"`
	Tools              map[string]Tool             `json:"tools"`
	Relationships       []RelationshipGroup         `json:"relationships"`
	DecisionTrees       map[string]*DecisionTree    `json:"decision_trees"`
	CrossReferences     *BidirectionalRefs          `json:"cross_references"`
	LastUpdated         time.Time                   `json:"last_updated"`
	SystemsAvailable    []string                    `json:"systems_available"`
}

// TaskStatus enumerates the lifecycle states of a Task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskTimeout   TaskStatus = "timeout"
	TaskCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether a status is one of the four terminal states.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskTimeout, TaskCancelled:
		return true
	default:
		return false
	}
}

// TaskPriority enumerates scheduling priority. Lower numeric Value is
// serviced first.
type TaskPriority string

const (
	PriorityHigh   TaskPriority = "high"
	PriorityMedium TaskPriority = "medium"
	PriorityLow    TaskPriority = "low"
)

// Value returns the numeric ordering used by the priority queue: smaller
// values are serviced first.
func (p TaskPriority) Value() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// TaskResult is the outcome record attached to a terminal task.
type TaskResult struct {
	Success       bool           `json:"success"`
	Data          map[string]any `json:"data,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	ExecutionMS   int64          `json:"execution_time_ms"`
}

// Task is one unit of work on the Task Board.
type Task struct {
	ID          string         `json:"id"`
	TaskType    string         `json:"task_type"`
	Params      map[string]any `json:"parameters"`
	Priority    TaskPriority   `json:"priority"`
	Status      TaskStatus     `json:"status"`
	TimeoutSec  int            `json:"timeout_seconds"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	TimeoutAt   *time.Time `json:"timeout_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	Result *TaskResult `json:"result,omitempty"`
}
