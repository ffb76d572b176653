// Package taskboard implements the Task Board (C9): a priority queue,
// timeout-bounded worker pool, and persisted task records that dispatch
// tasks by type to named "mini-librarian" handler sets.
//
// Grounded directly on original_source/aitoolkit/librarian/task_board.py:
// same TaskStatus/TaskPriority shape, same submit/worker-loop/dispatch
// structure, same 7-day opportunistic cleanup, same restart-requeue
// behaviour (I6). Task IDs use google/uuid as the entropy source behind the
// "task-<8 hex>" format the Python original derives from
// uuid.uuid4().hex[:8].
package taskboard

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emergent-company/specindex/internal/model"
	"github.com/emergent-company/specindex/internal/tracer"
)

// Handler services one task type. cancelled is closed if the caller wants
// cooperative cancellation; handlers that do more than a few seconds of
// CPU-bound work must poll it (spec §9 "expensive handlers cannot be
// preempted").
type Handler func(ctx context.Context, task *model.Task, params map[string]any, cancelled <-chan struct{}) (map[string]any, error)

// queueItem is one entry in the priority queue.
type queueItem struct {
	priorityValue int
	id            string
	submittedAt   time.Time
	index         int
}

type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priorityValue != pq[j].priorityValue {
		return pq[i].priorityValue < pq[j].priorityValue
	}
	return pq[i].submittedAt.Before(pq[j].submittedAt)
}
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *priorityQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

// Board is the Task Board for one project.
type Board struct {
	root       string
	logger     *slog.Logger
	maxWorkers int
	defaultTimeout time.Duration
	retention  time.Duration

	mu    sync.Mutex
	tasks map[string]*model.Task
	queue priorityQueue

	handlers map[string]Handler

	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Task Board rooted at project root. It does not start
// workers or load persisted tasks — call Start for that.
func New(root string, logger *slog.Logger, maxWorkers int, defaultTimeout time.Duration, retention time.Duration) *Board {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Board{
		root:           root,
		logger:         logger,
		maxWorkers:     maxWorkers,
		defaultTimeout: defaultTimeout,
		retention:      retention,
		tasks:          map[string]*model.Task{},
		handlers:       map[string]Handler{},
		stopCh:         make(chan struct{}),
	}
}

// RegisterHandler wires a built-in handler for an exact task_type, the
// first-level lookup in §4.9.1's resolver.
func (b *Board) RegisterHandler(taskType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[taskType] = h
}

// Root returns the project root this board serves.
func (b *Board) Root() string {
	return b.root
}

func (b *Board) tasksDir() string {
	return filepath.Join(b.root, ".ai_reference", "task_board", "tasks")
}

// Start loads persisted tasks (requeuing anything still pending, per I6)
// and spawns the worker pool.
func (b *Board) Start(ctx context.Context) error {
	if err := b.loadPersisted(); err != nil {
		return err
	}
	for i := 0; i < b.maxWorkers; i++ {
		b.wg.Add(1)
		go b.workerLoop(ctx, i)
	}
	return nil
}

// Stop signals all workers to exit and waits for them, with a bounded
// grace period matching the Python original's 1s join timeout per worker.
func (b *Board) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	close(b.stopCh)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() { b.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Duration(b.maxWorkers) * time.Second):
	}
}

// Submit enqueues a new task and returns its ID immediately.
func (b *Board) Submit(taskType string, params map[string]any, priority model.TaskPriority, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = b.defaultTimeout
	}
	id := "task-" + uuid.New().String()[:8]

	task := &model.Task{
		ID:         id,
		TaskType:   taskType,
		Params:     params,
		Priority:   priority,
		Status:     model.TaskPending,
		TimeoutSec: int(timeout.Seconds()),
		CreatedAt:  time.Now().UTC(),
	}

	b.mu.Lock()
	b.tasks[id] = task
	heap.Push(&b.queue, &queueItem{priorityValue: priority.Value(), id: id, submittedAt: time.Now()})
	b.mu.Unlock()

	if err := b.persist(task); err != nil {
		return "", fmt.Errorf("persisting task: %w", err)
	}
	return id, nil
}

// Status returns the current status of id.
func (b *Board) Status(id string) (*model.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tasks[id]
	return t, ok
}

// Result returns the result record for id, only if the task is terminal.
func (b *Board) Result(id string) (*model.TaskResult, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tasks[id]
	if !ok || !t.Status.IsTerminal() {
		return nil, false
	}
	return t.Result, true
}

// Cancel marks a still-pending task cancelled. Returns false if the task is
// not pending (already picked up or already terminal).
func (b *Board) Cancel(id string) (bool, error) {
	b.mu.Lock()
	t, ok := b.tasks[id]
	if !ok || t.Status != model.TaskPending {
		b.mu.Unlock()
		return false, nil
	}
	now := time.Now().UTC()
	t.Status = model.TaskCancelled
	t.CancelledAt = &now
	b.mu.Unlock()

	return true, b.persist(t)
}

// List returns up to limit tasks, optionally filtered by status/taskType,
// most recently created first.
func (b *Board) List(status model.TaskStatus, taskType string, limit int) []*model.Task {
	if limit <= 0 {
		limit = 100
	}
	b.mu.Lock()
	all := make([]*model.Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		if status != "" && t.Status != status {
			continue
		}
		if taskType != "" && t.TaskType != taskType {
			continue
		}
		all = append(all, t)
	}
	b.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Cleanup removes terminal tasks older than the configured retention
// window, both from memory and from disk, matching the Python original's
// opportunistic 7-day cleanup() call.
func (b *Board) Cleanup() int {
	cutoff := time.Now().Add(-b.retention)

	b.mu.Lock()
	var toRemove []string
	for id, t := range b.tasks {
		if !t.Status.IsTerminal() {
			continue
		}
		ts := terminalTimestamp(t)
		if ts != nil && ts.Before(cutoff) {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		delete(b.tasks, id)
	}
	b.mu.Unlock()

	for _, id := range toRemove {
		_ = os.Remove(filepath.Join(b.tasksDir(), id+".json"))
	}
	return len(toRemove)
}

func terminalTimestamp(t *model.Task) *time.Time {
	switch {
	case t.CompletedAt != nil:
		return t.CompletedAt
	case t.FailedAt != nil:
		return t.FailedAt
	case t.TimeoutAt != nil:
		return t.TimeoutAt
	case t.CancelledAt != nil:
		return t.CancelledAt
	default:
		return nil
	}
}

func (b *Board) persist(t *model.Task) error {
	dir := b.tasksDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, t.ID+".json")
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (b *Board) loadPersisted() error {
	dir := b.tasksDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var t model.Task
		if err := json.Unmarshal(data, &t); err != nil {
			continue
		}
		b.tasks[t.ID] = &t
		if t.Status == model.TaskPending {
			heap.Push(&b.queue, &queueItem{priorityValue: t.Priority.Value(), id: t.ID, submittedAt: t.CreatedAt})
		}
	}
	return nil
}

func (b *Board) workerLoop(ctx context.Context, workerID int) {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}

		for {
			id, ok := b.dequeuePending()
			if !ok {
				break
			}
			b.executeTask(ctx, id)
		}
	}
}

// dequeuePending pops queue items until it finds one still pending
// in-memory (it may have been cancelled after submission), or the queue
// empties.
func (b *Board) dequeuePending() (string, bool) {
	for {
		b.mu.Lock()
		if b.queue.Len() == 0 {
			b.mu.Unlock()
			return "", false
		}
		item := heap.Pop(&b.queue).(*queueItem)
		t, ok := b.tasks[item.id]
		if !ok || t.Status != model.TaskPending {
			b.mu.Unlock()
			continue
		}
		t.Status = model.TaskRunning
		started := time.Now().UTC()
		t.StartedAt = &started
		b.mu.Unlock()

		_ = b.persist(t)
		return item.id, true
	}
}

func (b *Board) executeTask(ctx context.Context, id string) {
	b.mu.Lock()
	t, ok := b.tasks[id]
	b.mu.Unlock()
	if !ok {
		return
	}

	tr := tracer.ForProject(b.root)
	start := time.Now()

	handler, miniLibrarians, mappedFrom := b.resolveHandler(t)
	cancelled := make(chan struct{})
	resultCh := make(chan handlerOutcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- handlerOutcome{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		params := map[string]any{}
		for k, v := range t.Params {
			params[k] = v
		}
		params["mini_librarians"] = miniLibrarians
		if mappedFrom != "" {
			params["mapped_from"] = mappedFrom
		}
		data, err := handler(ctx, t, params, cancelled)
		resultCh <- handlerOutcome{data: data, err: err}
	}()

	timeout := time.Duration(t.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = b.defaultTimeout
	}

	var status model.TaskStatus
	var result *model.TaskResult

	select {
	case out := <-resultCh:
		elapsed := time.Since(start).Milliseconds()
		if out.err != nil {
			status = model.TaskFailed
			result = &model.TaskResult{Success: false, ErrorMessage: out.err.Error(), ExecutionMS: elapsed}
		} else {
			status = model.TaskCompleted
			result = &model.TaskResult{Success: true, Data: out.data, ExecutionMS: elapsed}
		}
	case <-time.After(timeout):
		close(cancelled)
		status = model.TaskTimeout
		result = &model.TaskResult{
			Success:      false,
			ErrorMessage: fmt.Sprintf("Task timed out after %d seconds", int(timeout.Seconds())),
			ExecutionMS:  time.Since(start).Milliseconds(),
		}
		// The handler goroutine is not killed; its eventual result, if any,
		// is simply never read from resultCh again.
	}

	now := time.Now().UTC()
	b.mu.Lock()
	t.Status = status
	switch status {
	case model.TaskCompleted:
		t.CompletedAt = &now
	case model.TaskFailed:
		t.FailedAt = &now
	case model.TaskTimeout:
		t.TimeoutAt = &now
	}
	t.Result = result
	b.mu.Unlock()

	_ = b.persist(t)

	errMsg := ""
	if result != nil && !result.Success {
		errMsg = result.ErrorMessage
	}
	tr.RecordOperation("taskboard_"+t.TaskType, t.Params, string(status), result.ExecutionMS, errMsg,
		map[string]any{"task_id": t.ID})
}

type handlerOutcome struct {
	data map[string]any
	err  error
}

// resolveHandler implements the §4.9.1 mini-librarian resolution ladder.
// It never panics or errors: an unknown task type falls through to
// general-assistant.
func (b *Board) resolveHandler(t *model.Task) (handler Handler, miniLibrarians []string, mappedFrom string) {
	b.mu.Lock()
	h, ok := b.handlers[t.TaskType]
	b.mu.Unlock()

	miniLibrarians, mappedFrom = DetermineMiniLibrarians(t.TaskType, t.Params)

	if ok {
		return h, miniLibrarians, mappedFrom
	}
	return GenericHandler, miniLibrarians, mappedFrom
}

// defaultMiniLibrarianTable is the hard-coded fallback table from §4.9.1
// step 3.
var defaultMiniLibrarianTable = map[string][]string{
	"component_analysis": {"component-analyzer"},
	"find_usages":        {"file-indexer", "component-analyzer"},
	"code_modification":  {"file-indexer", "component-analyzer", "code-modifier"},
	"file_search":        {"file-indexer"},
	"todo_management":    {"todo-manager"},
}

// DetermineMiniLibrarians implements §4.9.1's layered resolver. It is
// exported so tools that submit tasks can preview which mini-librarians a
// task_type would resolve to. The Tool Registry is not consulted: after an
// explicit params["mini_librarians"] list, only the built-in default table
// is used, by exact key and then by substring match (which sets mappedFrom).
func DetermineMiniLibrarians(taskType string, params map[string]any) (librarians []string, mappedFrom string) {
	defer func() {
		if len(librarians) == 0 {
			librarians = []string{"general-assistant"}
		}
	}()

	if params != nil {
		if raw, ok := params["mini_librarians"]; ok {
			if list, ok := raw.([]string); ok && len(list) > 0 {
				return list, ""
			}
			if list, ok := raw.([]any); ok && len(list) > 0 {
				out := make([]string, 0, len(list))
				for _, v := range list {
					if s, ok := v.(string); ok {
						out = append(out, s)
					}
				}
				if len(out) > 0 {
					return out, ""
				}
			}
		}
	}

	if list, ok := defaultMiniLibrarianTable[taskType]; ok {
		librarians = append([]string{}, list...)
	} else {
		for known, list := range defaultMiniLibrarianTable {
			if containsSubstring(known, taskType) || containsSubstring(taskType, known) {
				librarians = append([]string{}, list...)
				mappedFrom = known
				break
			}
		}
	}

	if mentionsFilePath(params) {
		librarians = ensureContains(librarians, "file-indexer")
	}

	return librarians, mappedFrom
}

func containsSubstring(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return len(a) >= len(b) && indexOf(a, b) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func mentionsFilePath(params map[string]any) bool {
	for _, key := range []string{"file", "file_path", "files"} {
		if _, ok := params[key]; ok {
			return true
		}
	}
	return false
}

func ensureContains(list []string, item string) []string {
	for _, v := range list {
		if v == item {
			return list
		}
	}
	return append(list, item)
}

// GenericHandler serves every task type that has no handler registered via
// RegisterHandler, whatever mini-librarians it resolved to. It performs no
// work of its own: it records which mini-librarians were resolved and whether
// the general-assistant fallback was used, and returns that as a structured
// acknowledgement.
func GenericHandler(ctx context.Context, t *model.Task, params map[string]any, cancelled <-chan struct{}) (map[string]any, error) {
	librarians, _ := params["mini_librarians"].([]string)
	return map[string]any{
		"task_type":           t.TaskType,
		"mini_librarians_used": librarians,
		"fallback_used":        t.TaskType == "" || librarians == nil || (len(librarians) == 1 && librarians[0] == "general-assistant"),
	}, nil
}
