package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/weftwork/weft/core/infra/logging"
)

const defaultHistoryLimit = 100

// AsyncRunner layers fire-and-forget execution, cross-request status polling
// and a bounded execution history over an orchestrator. Background runs and
// foreground calls mutate the history concurrently, so it is lock-guarded.
type AsyncRunner struct {
	orch *Orchestrator

	mu      sync.Mutex
	history map[string]*ExecutionContext
	order   []string // insertion order, oldest first
	limit   int
}

// NewAsyncRunner wraps an orchestrator with a bounded history.
func NewAsyncRunner(orch *Orchestrator) *AsyncRunner {
	return &AsyncRunner{
		orch:    orch,
		history: make(map[string]*ExecutionContext),
		limit:   defaultHistoryLimit,
	}
}

// WithHistoryLimit caps how many terminal executions are retained.
func (r *AsyncRunner) WithHistoryLimit(n int) *AsyncRunner {
	if n > 0 {
		r.limit = n
	}
	return r
}

// Execute runs a workflow synchronously and returns its terminal context.
// The context is retained in the history before the run starts, so Status
// resolves the id at every point of the execution's lifetime. Only
// validation failures produce an error.
func (r *AsyncRunner) Execute(ctx context.Context, wf *Workflow, inputs map[string]any) (*ExecutionContext, error) {
	dag, err := r.orch.prepare(wf, inputs)
	if err != nil {
		return nil, fmt.Errorf("workflow execution: %w", err)
	}
	ec := NewExecutionContext(wf.ID, inputs)
	r.orch.registerPending(ec)
	r.retain(ec)
	r.orch.run(ctx, wf, dag, ec, r.orch.timeoutFor(wf))
	return ec, nil
}

// ExecuteAsync validates the workflow, registers a pending context in the
// active set and the history, then runs the workflow in a background
// goroutine. Retaining before the run closes the window between the run's
// deregistration and its completion in which a poll would otherwise find
// the id in neither map. The background run is detached from the caller's
// request lifetime; cancellation goes through Cancel.
func (r *AsyncRunner) ExecuteAsync(wf *Workflow, inputs map[string]any) (string, error) {
	dag, err := r.orch.prepare(wf, inputs)
	if err != nil {
		return "", fmt.Errorf("workflow execution: %w", err)
	}

	ec := NewExecutionContext(wf.ID, inputs)
	r.orch.registerPending(ec)
	r.retain(ec)

	go func() {
		// Re-retain in case the entry was evicted during a long run.
		defer r.retain(ec)
		r.orch.run(context.Background(), wf, dag, ec, r.orch.timeoutFor(wf))
		logging.Info("async-runner", "background execution finished",
			"workflow_id", wf.ID,
			"execution_id", ec.ExecutionID(),
			"status", string(ec.Status()))
	}()

	return ec.ExecutionID(), nil
}

// Status returns the execution with the given id, consulting the active set
// first and then the history.
func (r *AsyncRunner) Status(executionID string) (*ExecutionContext, error) {
	if ec, err := r.orch.Execution(executionID); err == nil {
		return ec, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ec, ok := r.history[executionID]; ok {
		return ec, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
}

// Cancel cancels an active execution. For an id that already finished it is
// a no-op; an id absent from both the active set and the history is an
// ErrExecutionNotFound.
func (r *AsyncRunner) Cancel(executionID string) error {
	if r.orch.CancelExecution(executionID) {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.history[executionID]; ok {
		return nil // already terminal
	}
	if _, err := r.orch.Execution(executionID); err == nil {
		return nil // registered but already terminal
	}
	return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
}

// List returns active and historical executions for a workflow, optionally
// filtered by status, most recent first by start time.
func (r *AsyncRunner) List(workflowID string, statuses ...Status) []*ExecutionContext {
	seen := make(map[string]struct{})
	var out []*ExecutionContext

	for _, ec := range r.orch.ActiveExecutions() {
		if ec.WorkflowID() != workflowID {
			continue
		}
		seen[ec.ExecutionID()] = struct{}{}
		out = append(out, ec)
	}

	r.mu.Lock()
	for _, ec := range r.history {
		if ec.WorkflowID() != workflowID {
			continue
		}
		if _, dup := seen[ec.ExecutionID()]; dup {
			continue
		}
		out = append(out, ec)
	}
	r.mu.Unlock()

	if len(statuses) > 0 {
		filtered := out[:0]
		for _, ec := range out {
			for _, s := range statuses {
				if ec.Status() == s {
					filtered = append(filtered, ec)
					break
				}
			}
		}
		out = filtered
	}

	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].StartTime(), out[j].StartTime()
		switch {
		case ti == nil && tj == nil:
			return out[i].createdOrder().After(out[j].createdOrder())
		case ti == nil:
			return false
		case tj == nil:
			return true
		}
		return ti.After(*tj)
	})
	return out
}

// retain stores a context in the bounded history, evicting the oldest
// entry at capacity. Contexts enter at submission; the history holds the
// same pointer the orchestrator mutates, so history reads always see the
// current status.
func (r *AsyncRunner) retain(ec *ExecutionContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := ec.ExecutionID()
	if _, ok := r.history[id]; !ok {
		r.order = append(r.order, id)
	}
	r.history[id] = ec
	for len(r.order) > r.limit {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.history, oldest)
	}
}
