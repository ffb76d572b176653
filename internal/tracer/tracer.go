// Package tracer implements the Execution Tracer (C10): one append-only log
// of every task dispatch and synchronous Facade entry point, per project.
//
// Grounded on original_source/aitoolkit/librarian/task_board.py's
// get_tracer(project_path).record_operation(...) calls and spec §4.10.
package tracer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one tracer record.
type Entry struct {
	Timestamp    time.Time      `json:"timestamp"`
	Operation    string         `json:"operation"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Status       string         `json:"status"`
	ExecutionMS  int64          `json:"execution_time_ms"`
	Error        string         `json:"error,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Tracer is a singleton per project: an append-only file under
// .ai_reference/diagnostics/.
type Tracer struct {
	mu   sync.Mutex
	path string
}

var (
	registryMu sync.Mutex
	registry   = map[string]*Tracer{}
)

// ForProject returns the singleton Tracer for projectRoot, creating one on
// first use.
func ForProject(projectRoot string) *Tracer {
	registryMu.Lock()
	defer registryMu.Unlock()
	if t, ok := registry[projectRoot]; ok {
		return t
	}
	t := &Tracer{path: filepath.Join(projectRoot, ".ai_reference", "diagnostics", "execution_trace.jsonl")}
	registry[projectRoot] = t
	return t
}

// redactKeys lists parameter keys never written verbatim to the trace.
var redactKeys = map[string]bool{
	"token": true, "password": true, "secret": true, "api_key": true, "authorization": true,
}

// RecordOperation appends one trace entry. Redacts sensitive parameter
// values before writing. Never returns an error to the caller's hot path —
// write failures are silently dropped, nothing is logged, so tracer
// failures never block dispatch.
func (t *Tracer) RecordOperation(operation string, parameters map[string]any, status string, executionMS int64, errMsg string, metadata map[string]any) {
	redacted := make(map[string]any, len(parameters))
	for k, v := range parameters {
		if redactKeys[k] {
			redacted[k] = "[redacted]"
			continue
		}
		redacted[k] = v
	}

	entry := Entry{
		Timestamp:   time.Now().UTC(),
		Operation:   operation,
		Parameters:  redacted,
		Status:      status,
		ExecutionMS: executionMS,
		Error:       errMsg,
		Metadata:    metadata,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	b, err := json.Marshal(entry)
	if err != nil {
		return
	}
	b = append(b, '\n')
	_, _ = f.Write(b)
}
