package workflow

import "context"

// EventType identifies a lifecycle event.
type EventType string

const (
	EventWorkflowStarted   EventType = "workflow.started"
	EventWorkflowCompleted EventType = "workflow.completed"
	EventWorkflowFailed    EventType = "workflow.failed"
	EventWorkflowCancelled EventType = "workflow.cancelled"
	EventWorkflowTimeout   EventType = "workflow.timeout"
	EventStepStarted       EventType = "workflow.step.started"
	EventStepCompleted     EventType = "workflow.step.completed"
	EventStepFailed        EventType = "workflow.step.failed"
)

// Event is one lifecycle event. Each known event has its own concrete type
// carrying exactly the fields that event requires.
type Event interface {
	EventType() EventType
	Execution() ExecutionRef
}

// ExecutionRef identifies the execution an event belongs to.
type ExecutionRef struct {
	WorkflowID  string `json:"workflow_id"`
	ExecutionID string `json:"execution_id"`
	Status      Status `json:"status"`
}

// StepRef identifies the step a step-scoped event belongs to.
type StepRef struct {
	StepID string `json:"step_id"`
	Agent  string `json:"agent,omitempty"`
}

// WorkflowStarted signals the execution entered the running state.
type WorkflowStarted struct {
	ExecutionRef
}

func (e WorkflowStarted) EventType() EventType    { return EventWorkflowStarted }
func (e WorkflowStarted) Execution() ExecutionRef { return e.ExecutionRef }

// WorkflowCompleted signals the execution finished successfully.
type WorkflowCompleted struct {
	ExecutionRef
	Outputs map[string]any `json:"outputs,omitempty"`
}

func (e WorkflowCompleted) EventType() EventType    { return EventWorkflowCompleted }
func (e WorkflowCompleted) Execution() ExecutionRef { return e.ExecutionRef }

// WorkflowFailed signals a step failure drove the execution to failed.
type WorkflowFailed struct {
	ExecutionRef
	Error string `json:"error"`
}

func (e WorkflowFailed) EventType() EventType    { return EventWorkflowFailed }
func (e WorkflowFailed) Execution() ExecutionRef { return e.ExecutionRef }

// WorkflowCancelled signals the execution was cancelled.
type WorkflowCancelled struct {
	ExecutionRef
}

func (e WorkflowCancelled) EventType() EventType    { return EventWorkflowCancelled }
func (e WorkflowCancelled) Execution() ExecutionRef { return e.ExecutionRef }

// WorkflowTimedOut signals the overall deadline elapsed.
type WorkflowTimedOut struct {
	ExecutionRef
	Error string `json:"error"`
}

func (e WorkflowTimedOut) EventType() EventType    { return EventWorkflowTimeout }
func (e WorkflowTimedOut) Execution() ExecutionRef { return e.ExecutionRef }

// StepStarted signals one step began executing.
type StepStarted struct {
	ExecutionRef
	StepRef
}

func (e StepStarted) EventType() EventType    { return EventStepStarted }
func (e StepStarted) Execution() ExecutionRef { return e.ExecutionRef }

// StepCompleted signals one step finished successfully.
type StepCompleted struct {
	ExecutionRef
	StepRef
}

func (e StepCompleted) EventType() EventType    { return EventStepCompleted }
func (e StepCompleted) Execution() ExecutionRef { return e.ExecutionRef }

// StepFailed signals one step's executor returned an error.
type StepFailed struct {
	ExecutionRef
	StepRef
	Error string `json:"error"`
}

func (e StepFailed) EventType() EventType    { return EventStepFailed }
func (e StepFailed) Execution() ExecutionRef { return e.ExecutionRef }

// Sink receives lifecycle events. Delivery is best-effort: the orchestrator
// logs publish errors and keeps going.
type Sink interface {
	Publish(ctx context.Context, evt Event) error
}

// NoopSink discards all events.
type NoopSink struct{}

func (NoopSink) Publish(context.Context, Event) error { return nil }
