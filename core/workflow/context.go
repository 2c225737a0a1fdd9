package workflow

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExecutionContext is the mutable record of one workflow run. The owning
// orchestrator is the single writer; status pollers read concurrently, so
// all access goes through the mutex.
type ExecutionContext struct {
	mu sync.RWMutex

	workflowID  string
	executionID string
	inputs      map[string]any

	status      Status
	outputs     map[string]any
	stepResults map[string]any
	errs        []string
	currentStep string
	startTime   *time.Time
	endTime     *time.Time
	metadata    map[string]any
	createdAt   time.Time
}

// NewExecutionContext creates a pending context with a fresh execution id.
func NewExecutionContext(workflowID string, inputs map[string]any) *ExecutionContext {
	return &ExecutionContext{
		workflowID:  workflowID,
		executionID: uuid.NewString(),
		inputs:      copyMap(inputs),
		status:      StatusPending,
		stepResults: make(map[string]any),
		metadata:    make(map[string]any),
		createdAt:   time.Now().UTC(),
	}
}

// WorkflowID returns the id of the workflow this run belongs to.
func (c *ExecutionContext) WorkflowID() string { return c.workflowID }

// ExecutionID returns the globally unique id of this run.
func (c *ExecutionContext) ExecutionID() string { return c.executionID }

// Inputs returns a copy of the caller-provided input snapshot.
func (c *ExecutionContext) Inputs() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyMap(c.inputs)
}

// Status returns the current status.
func (c *ExecutionContext) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Start transitions pending -> running and records the start time.
// It is a no-op from any other state.
func (c *ExecutionContext) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusPending {
		return
	}
	now := time.Now().UTC()
	c.status = StatusRunning
	c.startTime = &now
}

// Complete transitions running -> completed, recording the end time and the
// final outputs. No-op from any other state.
func (c *ExecutionContext) Complete(outputs map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusRunning {
		return
	}
	now := time.Now().UTC()
	c.status = StatusCompleted
	c.endTime = &now
	if outputs != nil {
		c.outputs = copyMap(outputs)
	}
}

// Fail transitions any non-terminal state to failed and appends the error.
func (c *ExecutionContext) Fail(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.IsTerminal() {
		return
	}
	now := time.Now().UTC()
	c.status = StatusFailed
	c.endTime = &now
	c.errs = append(c.errs, msg)
}

// Cancel transitions any non-terminal state to cancelled.
func (c *ExecutionContext) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.IsTerminal() {
		return
	}
	now := time.Now().UTC()
	c.status = StatusCancelled
	c.endTime = &now
}

// Timeout transitions any non-terminal state to timeout.
func (c *ExecutionContext) Timeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.IsTerminal() {
		return
	}
	now := time.Now().UTC()
	c.status = StatusTimeout
	c.endTime = &now
}

// AddStepResult stores a step's result. It never changes the status.
func (c *ExecutionContext) AddStepResult(stepID string, result any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepResults[stepID] = result
}

// AddError appends an error message without changing the status.
func (c *ExecutionContext) AddError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, msg)
}

// SetCurrentStep records the last step that started, for observability.
func (c *ExecutionContext) SetCurrentStep(stepID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentStep = stepID
}

// CurrentStep returns the last step that started.
func (c *ExecutionContext) CurrentStep() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentStep
}

// StepResult returns one step's result and whether it is present.
func (c *ExecutionContext) StepResult(stepID string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.stepResults[stepID]
	return r, ok
}

// StepResults returns a copy of the per-step results.
func (c *ExecutionContext) StepResults() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyMap(c.stepResults)
}

// Outputs returns a copy of the final output mapping, nil until completion.
func (c *ExecutionContext) Outputs() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.outputs == nil {
		return nil
	}
	return copyMap(c.outputs)
}

// Errors returns the accumulated error messages in order.
func (c *ExecutionContext) Errors() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.errs...)
}

// SetMetadata stores a free-form metadata entry.
func (c *ExecutionContext) SetMetadata(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// Duration reports how long the execution has run. The second return is
// false before Start. While running the duration is live; once terminal
// it is frozen at end minus start.
func (c *ExecutionContext) Duration() (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.startTime == nil {
		return 0, false
	}
	if c.endTime != nil {
		return c.endTime.Sub(*c.startTime), true
	}
	return time.Now().UTC().Sub(*c.startTime), true
}

// StartTime returns the start timestamp, nil before Start.
func (c *ExecutionContext) StartTime() *time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyTime(c.startTime)
}

// EndTime returns the end timestamp, nil until a terminal transition.
func (c *ExecutionContext) EndTime() *time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyTime(c.endTime)
}

// Snapshot is a consistent point-in-time copy of an execution's state.
type Snapshot struct {
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id"`
	Status      Status         `json:"status"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	StepResults map[string]any `json:"step_results,omitempty"`
	Errors      []string       `json:"errors,omitempty"`
	CurrentStep string         `json:"current_step,omitempty"`
	StartTime   *time.Time     `json:"start_time,omitempty"`
	EndTime     *time.Time     `json:"end_time,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Snapshot returns a copy of the full execution state under one lock hold.
func (c *ExecutionContext) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		WorkflowID:  c.workflowID,
		ExecutionID: c.executionID,
		Status:      c.status,
		Inputs:      copyMap(c.inputs),
		Outputs:     copyMap(c.outputs),
		StepResults: copyMap(c.stepResults),
		Errors:      append([]string(nil), c.errs...),
		CurrentStep: c.currentStep,
		StartTime:   copyTime(c.startTime),
		EndTime:     copyTime(c.endTime),
		Metadata:    copyMap(c.metadata),
	}
}

func (c *ExecutionContext) createdOrder() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.createdAt
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
