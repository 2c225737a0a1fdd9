package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/weftwork/weft/core/infra/logging"
	"github.com/weftwork/weft/core/infra/metrics"
	"github.com/weftwork/weft/core/infra/schema"
)

// StepExecutor runs one step with its resolved inputs. The return value is
// opaque to the orchestrator and stored verbatim in the step results.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, step *Step, inputs map[string]any) (any, error)
}

// StepExecutorFunc adapts a function to the StepExecutor interface.
type StepExecutorFunc func(ctx context.Context, step *Step, inputs map[string]any) (any, error)

func (f StepExecutorFunc) ExecuteStep(ctx context.Context, step *Step, inputs map[string]any) (any, error) {
	return f(ctx, step, inputs)
}

// Orchestrator drives workflow executions level by level with maximal safe
// parallelism. Step failures and timeouts are reported through the returned
// context's status, never through the error return; the error is reserved
// for precondition violations (invalid workflow, cycle, bad inputs).
type Orchestrator struct {
	executor       StepExecutor
	sink           Sink
	metrics        metrics.WorkflowMetrics
	defaultTimeout time.Duration

	mu     sync.RWMutex
	active map[string]*activeExecution
}

type activeExecution struct {
	ec     *ExecutionContext
	cancel context.CancelFunc
}

// NewOrchestrator creates an orchestrator bound to a step executor and an
// event sink.
func NewOrchestrator(executor StepExecutor, sink Sink) *Orchestrator {
	if sink == nil {
		sink = NoopSink{}
	}
	return &Orchestrator{
		executor: executor,
		sink:     sink,
		metrics:  metrics.Noop{},
		active:   make(map[string]*activeExecution),
	}
}

// WithMetrics sets the workflow metrics recorder.
func (o *Orchestrator) WithMetrics(m metrics.WorkflowMetrics) *Orchestrator {
	if m != nil {
		o.metrics = m
	}
	return o
}

// WithDefaultTimeout sets a deadline applied to workflows that do not
// declare their own. Zero means no deadline.
func (o *Orchestrator) WithDefaultTimeout(d time.Duration) *Orchestrator {
	o.defaultTimeout = d
	return o
}

// ValidateWorkflow checks a workflow's structure without executing it:
// at least one step, referential integrity, and acyclicity.
func ValidateWorkflow(wf *Workflow) error {
	if wf == nil || len(wf.Steps) == 0 {
		return fmt.Errorf("%w: workflow has no steps", ErrInvalidWorkflow)
	}
	return NewDependencyGraph(wf.Steps).Validate()
}

// Execute runs a workflow to a terminal state and returns its execution
// context. The workflow's own timeout (or the orchestrator default) bounds
// the whole run. Validation happens before any context is created or event
// emitted; validation failures return an error and no context.
func (o *Orchestrator) Execute(ctx context.Context, wf *Workflow, inputs map[string]any) (*ExecutionContext, error) {
	return o.ExecuteWithTimeout(ctx, wf, inputs, o.timeoutFor(wf))
}

// ExecuteWithTimeout is Execute with an explicit overall deadline.
// Zero disables the deadline.
func (o *Orchestrator) ExecuteWithTimeout(ctx context.Context, wf *Workflow, inputs map[string]any, timeout time.Duration) (*ExecutionContext, error) {
	dag, err := o.prepare(wf, inputs)
	if err != nil {
		return nil, err
	}
	ec := NewExecutionContext(wf.ID, inputs)
	o.run(ctx, wf, dag, ec, timeout)
	return ec, nil
}

// prepare validates the workflow and its inputs and builds the graph.
func (o *Orchestrator) prepare(wf *Workflow, inputs map[string]any) (*DependencyGraph, error) {
	if wf == nil || len(wf.Steps) == 0 {
		return nil, fmt.Errorf("%w: workflow has no steps", ErrInvalidWorkflow)
	}
	dag := NewDependencyGraph(wf.Steps)
	if err := dag.Validate(); err != nil {
		return nil, err
	}
	if len(wf.InputSchema) > 0 {
		if err := schema.ValidateMap(wf.InputSchema, inputs); err != nil {
			return nil, fmt.Errorf("%w: inputs: %v", ErrInvalidWorkflow, err)
		}
	}
	return dag, nil
}

// run drives a registered execution to a terminal state. The context must be
// pending; it is registered in the active set for the duration of the run.
func (o *Orchestrator) run(ctx context.Context, wf *Workflow, dag *DependencyGraph, ec *ExecutionContext, timeout time.Duration) {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	o.register(ec, cancel)
	defer o.unregister(ec.ExecutionID())

	// A pre-registered execution may have been cancelled before the run
	// started; nothing to do then.
	if ec.Status().IsTerminal() {
		o.finish(wf, ec)
		return
	}

	ec.Start()
	o.emit(runCtx, WorkflowStarted{ExecutionRef: o.ref(ec)})
	o.metrics.IncWorkflowStarted(wf.ID)

	levels, err := dag.ExecutionLevels()
	if err != nil {
		// The graph was validated in prepare; a cycle here means the caller
		// bypassed it.
		ec.Fail(err.Error())
		o.finish(wf, ec)
		return
	}

	var failedStep string
	var stepErr error
	for _, level := range levels {
		if runCtx.Err() != nil {
			break
		}
		failedStep, stepErr = o.runLevel(runCtx, dag, ec, level)
		if stepErr != nil {
			break
		}
	}

	switch {
	case ec.Status() == StatusCancelled:
		// CancelExecution already transitioned the context and emitted the
		// cancellation event.
	case timeout > 0 && runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		ec.Timeout()
		o.emit(context.Background(), WorkflowTimedOut{
			ExecutionRef: o.ref(ec),
			Error:        fmt.Sprintf("workflow %s exceeded timeout %s", wf.ID, timeout),
		})
	case ctx.Err() != nil:
		ec.Cancel()
		o.emit(context.Background(), WorkflowCancelled{ExecutionRef: o.ref(ec)})
	case stepErr != nil:
		msg := fmt.Sprintf("step %s failed: %v", failedStep, stepErr)
		ec.Fail(msg)
		o.emit(context.Background(), WorkflowFailed{ExecutionRef: o.ref(ec), Error: msg})
	default:
		ec.Complete(ec.StepResults())
		o.emit(context.Background(), WorkflowCompleted{ExecutionRef: o.ref(ec), Outputs: ec.Outputs()})
	}

	o.finish(wf, ec)
}

func (o *Orchestrator) finish(wf *Workflow, ec *ExecutionContext) {
	status := ec.Status()
	o.metrics.IncWorkflowCompleted(wf.ID, string(status))
	if d, ok := ec.Duration(); ok {
		o.metrics.ObserveWorkflowDuration(wf.ID, d.Seconds())
	}
	logging.Info("orchestrator", "execution finished",
		"workflow_id", wf.ID,
		"execution_id", ec.ExecutionID(),
		"status", string(status))
}

type stepOutcome struct {
	stepID string
	result any
	err    error
}

// runLevel fans out one goroutine per step and waits for the whole level.
// Every launched step runs to completion even when a sibling fails; results
// of successful steps are merged before the level is judged. Returns the
// first failing step, if any.
func (o *Orchestrator) runLevel(ctx context.Context, dag *DependencyGraph, ec *ExecutionContext, level []string) (string, error) {
	outcomes := make([]stepOutcome, len(level))
	var wg sync.WaitGroup
	for i, stepID := range level {
		step := dag.Step(stepID)
		wg.Add(1)
		go func(i int, step *Step) {
			defer wg.Done()
			ec.SetCurrentStep(step.ID)
			o.emit(ctx, StepStarted{ExecutionRef: o.ref(ec), StepRef: StepRef{StepID: step.ID, Agent: step.Agent}})

			resolved := resolveStepInputs(step, ec.Inputs(), ec.StepResults())
			result, err := o.executor.ExecuteStep(ctx, step, resolved)
			outcomes[i] = stepOutcome{stepID: step.ID, result: result, err: err}

			if err != nil {
				o.metrics.IncStepCompleted(ec.WorkflowID(), string(StatusFailed))
				o.emit(ctx, StepFailed{
					ExecutionRef: o.ref(ec),
					StepRef:      StepRef{StepID: step.ID, Agent: step.Agent},
					Error:        err.Error(),
				})
				return
			}
			o.metrics.IncStepCompleted(ec.WorkflowID(), string(StatusCompleted))
			o.emit(ctx, StepCompleted{ExecutionRef: o.ref(ec), StepRef: StepRef{StepID: step.ID, Agent: step.Agent}})
		}(i, step)
	}
	wg.Wait()

	for _, oc := range outcomes {
		if oc.err == nil {
			ec.AddStepResult(oc.stepID, oc.result)
		}
	}
	for _, oc := range outcomes {
		if oc.err != nil {
			return oc.stepID, oc.err
		}
	}
	return "", nil
}

// ActiveExecutions returns a snapshot of the executions currently in flight.
func (o *Orchestrator) ActiveExecutions() []*ExecutionContext {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*ExecutionContext, 0, len(o.active))
	for _, entry := range o.active {
		out = append(out, entry.ec)
	}
	return out
}

// Execution looks up an in-flight execution by id.
func (o *Orchestrator) Execution(executionID string) (*ExecutionContext, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	entry, ok := o.active[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	return entry.ec, nil
}

// CancelExecution transitions a non-terminal execution to cancelled, emits
// the cancellation event and cancels the execution's context so in-flight
// steps observing it stop early. Returns false for unknown ids and for
// executions already in a terminal state.
func (o *Orchestrator) CancelExecution(executionID string) bool {
	o.mu.RLock()
	entry, ok := o.active[executionID]
	o.mu.RUnlock()
	if !ok || entry.ec.Status().IsTerminal() {
		return false
	}
	entry.ec.Cancel()
	o.emit(context.Background(), WorkflowCancelled{ExecutionRef: o.ref(entry.ec)})
	if entry.cancel != nil {
		entry.cancel()
	}
	return true
}

// registerPending publishes a pending context into the active set before its
// run starts, so immediate status polls succeed. The async runner uses this.
func (o *Orchestrator) registerPending(ec *ExecutionContext) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active[ec.ExecutionID()] = &activeExecution{ec: ec}
}

func (o *Orchestrator) register(ec *ExecutionContext, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active[ec.ExecutionID()] = &activeExecution{ec: ec, cancel: cancel}
}

func (o *Orchestrator) unregister(executionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, executionID)
}

func (o *Orchestrator) timeoutFor(wf *Workflow) time.Duration {
	if wf != nil && wf.TimeoutSec > 0 {
		return time.Duration(wf.TimeoutSec) * time.Second
	}
	return o.defaultTimeout
}

func (o *Orchestrator) ref(ec *ExecutionContext) ExecutionRef {
	return ExecutionRef{
		WorkflowID:  ec.WorkflowID(),
		ExecutionID: ec.ExecutionID(),
		Status:      ec.Status(),
	}
}

func (o *Orchestrator) emit(ctx context.Context, evt Event) {
	if err := o.sink.Publish(ctx, evt); err != nil {
		logging.Error("orchestrator", "event publish failed",
			"event", string(evt.EventType()), "error", err)
	}
}
