package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// captureSink records every published event for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Publish(_ context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *captureSink) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, len(s.events))
	for i, evt := range s.events {
		out[i] = evt.EventType()
	}
	return out
}

func (s *captureSink) count(et EventType) int {
	n := 0
	for _, t := range s.types() {
		if t == et {
			n++
		}
	}
	return n
}

// echoExecutor returns a map echoing the step id and its resolved inputs.
func echoExecutor() StepExecutor {
	return StepExecutorFunc(func(_ context.Context, step *Step, inputs map[string]any) (any, error) {
		return map[string]any{"step": step.ID, "inputs": inputs}, nil
	})
}

func pipeline() *Workflow {
	return &Workflow{
		ID:   "ship",
		Name: "analyze, scan and deploy",
		Steps: []*Step{
			{ID: "analyze", Agent: "analyzer"},
			{ID: "security", Agent: "scanner", DependsOn: []string{"analyze"}, Inputs: map[string]any{"report": "$analyze"}},
			{ID: "deploy", Agent: "deployer", DependsOn: []string{"security"}},
		},
	}
}

func TestExecuteLinearPipeline(t *testing.T) {
	sink := &captureSink{}
	orch := NewOrchestrator(echoExecutor(), sink)

	ec, err := orch.Execute(context.Background(), pipeline(), map[string]any{"target": "prod"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if ec.Status() != StatusCompleted {
		t.Fatalf("status = %s, want completed", ec.Status())
	}
	results := ec.StepResults()
	if len(results) != 3 {
		t.Fatalf("step results = %d, want 3", len(results))
	}
	for _, id := range []string{"analyze", "security", "deploy"} {
		if _, ok := results[id]; !ok {
			t.Fatalf("missing result for %s", id)
		}
	}
	if len(ec.Outputs()) != 3 {
		t.Fatalf("outputs = %d, want all step results", len(ec.Outputs()))
	}
	if ec.EndTime() == nil {
		t.Fatal("end time not set")
	}
}

func TestExecuteResolvesDependencyReferences(t *testing.T) {
	orch := NewOrchestrator(echoExecutor(), nil)
	ec, err := orch.Execute(context.Background(), pipeline(), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	sec, ok := ec.StepResult("security")
	if !ok {
		t.Fatal("security step result missing")
	}
	inputs := sec.(map[string]any)["inputs"].(map[string]any)
	report, ok := inputs["report"].(map[string]any)
	if !ok {
		t.Fatalf("$analyze reference not resolved: %v", inputs["report"])
	}
	if report["step"] != "analyze" {
		t.Fatalf("resolved to wrong result: %v", report)
	}
}

func TestExecuteEmitsLifecycleEvents(t *testing.T) {
	sink := &captureSink{}
	orch := NewOrchestrator(echoExecutor(), sink)
	if _, err := orch.Execute(context.Background(), pipeline(), nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	types := sink.types()
	if types[0] != EventWorkflowStarted {
		t.Fatalf("first event = %s, want %s", types[0], EventWorkflowStarted)
	}
	if types[len(types)-1] != EventWorkflowCompleted {
		t.Fatalf("last event = %s, want %s", types[len(types)-1], EventWorkflowCompleted)
	}
	if n := sink.count(EventStepStarted); n != 3 {
		t.Fatalf("step started events = %d, want 3", n)
	}
	if n := sink.count(EventStepCompleted); n != 3 {
		t.Fatalf("step completed events = %d, want 3", n)
	}
}

func TestExecuteValidationFailureReturnsError(t *testing.T) {
	orch := NewOrchestrator(echoExecutor(), nil)

	if _, err := orch.Execute(context.Background(), &Workflow{ID: "empty"}, nil); !errors.Is(err, ErrInvalidWorkflow) {
		t.Fatalf("empty workflow: %v", err)
	}

	cyclic := &Workflow{ID: "loop", Steps: []*Step{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
	}}
	ec, err := orch.Execute(context.Background(), cyclic, nil)
	if !errors.Is(err, ErrCircularDependency) {
		t.Fatalf("cyclic workflow: %v", err)
	}
	if ec != nil {
		t.Fatal("no context expected for validation failure")
	}
}

func TestExecuteRejectsInputsFailingSchema(t *testing.T) {
	wf := pipeline()
	wf.InputSchema = map[string]any{
		"type":     "object",
		"required": []any{"target"},
	}
	orch := NewOrchestrator(echoExecutor(), nil)
	if _, err := orch.Execute(context.Background(), wf, map[string]any{}); !errors.Is(err, ErrInvalidWorkflow) {
		t.Fatalf("schema violation: %v", err)
	}
	if _, err := orch.Execute(context.Background(), wf, map[string]any{"target": "prod"}); err != nil {
		t.Fatalf("valid inputs rejected: %v", err)
	}
}

func TestExecuteStepFailureFailsContextNotCall(t *testing.T) {
	sink := &captureSink{}
	exec := StepExecutorFunc(func(_ context.Context, step *Step, _ map[string]any) (any, error) {
		if step.ID == "security" {
			return nil, fmt.Errorf("cve found")
		}
		return "ok", nil
	})
	orch := NewOrchestrator(exec, sink)

	ec, err := orch.Execute(context.Background(), pipeline(), nil)
	if err != nil {
		t.Fatalf("step failure must not surface as call error: %v", err)
	}
	if ec.Status() != StatusFailed {
		t.Fatalf("status = %s, want failed", ec.Status())
	}
	if _, ok := ec.StepResult("deploy"); ok {
		t.Fatal("steps after the failing level must not run")
	}
	if _, ok := ec.StepResult("analyze"); !ok {
		t.Fatal("results from earlier levels must be kept")
	}
	if len(ec.Errors()) == 0 {
		t.Fatal("failure message not recorded")
	}
	if sink.count(EventStepFailed) != 1 || sink.count(EventWorkflowFailed) != 1 {
		t.Fatalf("unexpected events: %v", sink.types())
	}
}

func TestExecuteSiblingsFinishWhenOneFails(t *testing.T) {
	wf := &Workflow{ID: "fanout", Steps: []*Step{
		{ID: "bad"},
		{ID: "slow"},
		{ID: "join", DependsOn: []string{"bad", "slow"}},
	}}
	var slowRan bool
	var mu sync.Mutex
	exec := StepExecutorFunc(func(_ context.Context, step *Step, _ map[string]any) (any, error) {
		switch step.ID {
		case "bad":
			return nil, fmt.Errorf("boom")
		case "slow":
			time.Sleep(50 * time.Millisecond)
			mu.Lock()
			slowRan = true
			mu.Unlock()
		}
		return "done", nil
	})

	ec, err := orchRun(t, exec, wf)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if ec.Status() != StatusFailed {
		t.Fatalf("status = %s, want failed", ec.Status())
	}
	mu.Lock()
	defer mu.Unlock()
	if !slowRan {
		t.Fatal("sibling step was abandoned")
	}
	if _, ok := ec.StepResult("slow"); !ok {
		t.Fatal("successful sibling result was dropped")
	}
}

func orchRun(t *testing.T, exec StepExecutor, wf *Workflow) (*ExecutionContext, error) {
	t.Helper()
	return NewOrchestrator(exec, nil).Execute(context.Background(), wf, nil)
}

func TestExecuteWithTimeout(t *testing.T) {
	exec := StepExecutorFunc(func(ctx context.Context, _ *Step, _ map[string]any) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return "done", nil
		}
	})
	orch := NewOrchestrator(exec, nil)
	wf := &Workflow{ID: "stuck", Steps: []*Step{{ID: "wait"}}}

	start := time.Now()
	ec, err := orch.ExecuteWithTimeout(context.Background(), wf, nil, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("timeout must not surface as call error: %v", err)
	}
	if ec.Status() != StatusTimeout {
		t.Fatalf("status = %s, want timeout", ec.Status())
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("run did not stop at the deadline: %s", elapsed)
	}
}

func TestWorkflowTimeoutSecOverridesDefault(t *testing.T) {
	orch := NewOrchestrator(echoExecutor(), nil).WithDefaultTimeout(time.Minute)
	wf := &Workflow{ID: "x", TimeoutSec: 5, Steps: []*Step{{ID: "a"}}}
	if got := orch.timeoutFor(wf); got != 5*time.Second {
		t.Fatalf("timeout = %s, want 5s", got)
	}
	if got := orch.timeoutFor(&Workflow{ID: "y"}); got != time.Minute {
		t.Fatalf("default timeout = %s, want 1m", got)
	}
}

func TestCancelExecution(t *testing.T) {
	release := make(chan struct{})
	exec := StepExecutorFunc(func(ctx context.Context, _ *Step, _ map[string]any) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return "done", nil
		}
	})
	sink := &captureSink{}
	orch := NewOrchestrator(exec, sink)
	wf := &Workflow{ID: "long", Steps: []*Step{{ID: "wait"}}}

	done := make(chan *ExecutionContext, 1)
	go func() {
		ec, _ := orch.Execute(context.Background(), wf, nil)
		done <- ec
	}()

	var execID string
	deadline := time.Now().Add(2 * time.Second)
	for execID == "" {
		if time.Now().After(deadline) {
			t.Fatal("execution never registered")
		}
		if active := orch.ActiveExecutions(); len(active) == 1 {
			execID = active[0].ExecutionID()
		}
		time.Sleep(time.Millisecond)
	}

	if !orch.CancelExecution(execID) {
		t.Fatal("cancel returned false for running execution")
	}
	ec := <-done
	if ec.Status() != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", ec.Status())
	}
	if sink.count(EventWorkflowCancelled) != 1 {
		t.Fatalf("unexpected events: %v", sink.types())
	}
	if orch.CancelExecution(execID) {
		t.Fatal("cancel must be false once the execution left the active set")
	}
	if orch.CancelExecution("nope") {
		t.Fatal("cancel must be false for unknown ids")
	}
	close(release)
}

func TestActiveExecutionsLifecycle(t *testing.T) {
	orch := NewOrchestrator(echoExecutor(), nil)
	if n := len(orch.ActiveExecutions()); n != 0 {
		t.Fatalf("active before run = %d", n)
	}
	ec, err := orch.Execute(context.Background(), pipeline(), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if n := len(orch.ActiveExecutions()); n != 0 {
		t.Fatalf("active after run = %d", n)
	}
	if _, err := orch.Execution(ec.ExecutionID()); !errors.Is(err, ErrExecutionNotFound) {
		t.Fatalf("finished execution still resolvable: %v", err)
	}
}

func TestValidateWorkflow(t *testing.T) {
	if err := ValidateWorkflow(pipeline()); err != nil {
		t.Fatalf("valid workflow rejected: %v", err)
	}
	if err := ValidateWorkflow(nil); !errors.Is(err, ErrInvalidWorkflow) {
		t.Fatalf("nil workflow: %v", err)
	}
	wf := &Workflow{ID: "bad", Steps: []*Step{{ID: "a", DependsOn: []string{"ghost"}}}}
	var mde *MissingDependencyError
	if err := ValidateWorkflow(wf); !errors.As(err, &mde) {
		t.Fatalf("missing dependency: %v", err)
	}
}
