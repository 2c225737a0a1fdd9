package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidWorkflow indicates a structurally invalid workflow
	// (no steps, duplicate step ids, or a dependency on an unknown step).
	ErrInvalidWorkflow = errors.New("invalid_workflow")
	// ErrCircularDependency indicates the step graph contains a cycle.
	ErrCircularDependency = errors.New("circular_dependency")
	// ErrUnknownStep indicates a lookup for a step id that is not in the graph.
	ErrUnknownStep = errors.New("unknown_step")
	// ErrExecutionNotFound indicates an execution id absent from both the
	// active set and the history. Distinct from a failed execution.
	ErrExecutionNotFound = errors.New("execution_not_found")
)

// MissingDependencyError reports a step depending on an id that is not a
// declared step.
type MissingDependencyError struct {
	StepID  string
	Missing string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("step %q depends on unknown step %q", e.StepID, e.Missing)
}

func (e *MissingDependencyError) Unwrap() error { return ErrInvalidWorkflow }

// CycleError reports a dependency cycle with the step ids on the cycle path.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCircularDependency }
