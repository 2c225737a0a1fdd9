package agent

import (
	"context"
	"time"
)

// Spec describes an agent: which worker to construct and how.
type Spec struct {
	ID       string         `json:"id" yaml:"id"`
	Name     string         `json:"name,omitempty" yaml:"name,omitempty"`
	Model    string         `json:"model,omitempty" yaml:"model,omitempty"`
	Provider string         `json:"provider,omitempty" yaml:"provider,omitempty"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Worker is an opaque, possibly expensive-to-construct instance that
// performs the actual work behind an agent.
type Worker interface {
	Invoke(ctx context.Context, inputs map[string]any) (any, error)
}

// WorkerFunc adapts a function to the Worker interface.
type WorkerFunc func(ctx context.Context, inputs map[string]any) (any, error)

func (f WorkerFunc) Invoke(ctx context.Context, inputs map[string]any) (any, error) {
	return f(ctx, inputs)
}

// Factory constructs worker instances from specs. The coordinator treats
// the returned instances opaquely and caches them by agent id.
type Factory interface {
	Create(ctx context.Context, spec *Spec) (Worker, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, spec *Spec) (Worker, error)

func (f FactoryFunc) Create(ctx context.Context, spec *Spec) (Worker, error) {
	return f(ctx, spec)
}

// Result is the record of one agent execution.
type Result struct {
	AgentID  string            `json:"agent_id"`
	Output   any               `json:"output,omitempty"`
	Elapsed  time.Duration     `json:"elapsed_ns"`
	Success  bool              `json:"success"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Metrics accumulates per-agent execution statistics. AvgExecutionTime is
// derived and recomputed on every update.
type Metrics struct {
	TotalExecutions      int64         `json:"total_executions"`
	SuccessfulExecutions int64         `json:"successful_executions"`
	FailedExecutions     int64         `json:"failed_executions"`
	TotalExecutionTime   time.Duration `json:"total_execution_time_ns"`
	AvgExecutionTime     time.Duration `json:"avg_execution_time_ns"`
}

// CacheStats is a snapshot of the worker cache.
type CacheStats struct {
	Size    int   `json:"size"`
	Cap     int   `json:"cap"`
	Enabled bool  `json:"enabled"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}
