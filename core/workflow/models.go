package workflow

// Status captures the lifecycle of a workflow execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// IsRunning reports whether the execution is in flight.
func (s Status) IsRunning() bool {
	return s == StatusRunning
}

// Step is a node in the workflow graph. Steps are immutable once a workflow
// is defined; the orchestrator only reads them.
type Step struct {
	ID        string         `json:"id" yaml:"id"`
	Name      string         `json:"name,omitempty" yaml:"name,omitempty"`
	Agent     string         `json:"agent,omitempty" yaml:"agent,omitempty"`
	DependsOn []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Inputs    map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Config    map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Workflow is a named set of inter-dependent steps. Slice order is the
// deterministic tie-break when scheduling; callers must not depend on
// ordering within a level.
type Workflow struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name,omitempty" yaml:"name,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	TimeoutSec  int64             `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty"`
	Steps       []*Step           `json:"steps" yaml:"steps"`
	InputSchema map[string]any    `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// StepByID returns the step with the given id, or nil.
func (w *Workflow) StepByID(id string) *Step {
	if w == nil {
		return nil
	}
	for _, s := range w.Steps {
		if s != nil && s.ID == id {
			return s
		}
	}
	return nil
}
