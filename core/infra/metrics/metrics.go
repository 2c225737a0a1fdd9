package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkflowMetrics captures orchestrator-level workflow metrics.
type WorkflowMetrics interface {
	IncWorkflowStarted(workflow string)
	IncWorkflowCompleted(workflow, status string)
	ObserveWorkflowDuration(workflow string, durationSeconds float64)
	IncStepCompleted(workflow, status string)
}

// AgentMetrics captures coordinator-level agent metrics.
type AgentMetrics interface {
	IncAgentExecution(agent, status string)
	ObserveAgentDuration(agent string, durationSeconds float64)
	IncCacheHit(agent string)
	IncCacheMiss(agent string)
}

// Noop implements both interfaces without emitting anything.
type Noop struct{}

func (Noop) IncWorkflowStarted(string)              {}
func (Noop) IncWorkflowCompleted(string, string)    {}
func (Noop) ObserveWorkflowDuration(string, float64) {}
func (Noop) IncStepCompleted(string, string)        {}
func (Noop) IncAgentExecution(string, string)       {}
func (Noop) ObserveAgentDuration(string, float64)   {}
func (Noop) IncCacheHit(string)                     {}
func (Noop) IncCacheMiss(string)                    {}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

type workflowProm struct {
	started   *prometheus.CounterVec
	completed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	steps     *prometheus.CounterVec
	once      sync.Once
}

// NewWorkflowProm constructs a Prometheus-backed WorkflowMetrics.
func NewWorkflowProm(namespace string) WorkflowMetrics {
	w := &workflowProm{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_started_total",
			Help:      "Workflow executions started by workflow id",
		}, []string{"workflow"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_completed_total",
			Help:      "Workflow executions finished by workflow id and terminal status",
		}, []string{"workflow", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Workflow execution duration in seconds by workflow id",
			Buckets:   prometheus.DefBuckets,
		}, []string{"workflow"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_steps_total",
			Help:      "Workflow steps finished by workflow id and status",
		}, []string{"workflow", "status"}),
	}
	w.once.Do(func() {
		prometheus.MustRegister(w.started, w.completed, w.duration, w.steps)
	})
	return w
}

func (w *workflowProm) IncWorkflowStarted(workflow string) {
	w.started.WithLabelValues(workflow).Inc()
}

func (w *workflowProm) IncWorkflowCompleted(workflow, status string) {
	w.completed.WithLabelValues(workflow, status).Inc()
}

func (w *workflowProm) ObserveWorkflowDuration(workflow string, durationSeconds float64) {
	w.duration.WithLabelValues(workflow).Observe(durationSeconds)
}

func (w *workflowProm) IncStepCompleted(workflow, status string) {
	w.steps.WithLabelValues(workflow, status).Inc()
}

type agentProm struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	cacheHits  *prometheus.CounterVec
	cacheMiss  *prometheus.CounterVec
	once       sync.Once
}

// NewAgentProm constructs a Prometheus-backed AgentMetrics.
func NewAgentProm(namespace string) AgentMetrics {
	a := &agentProm{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_executions_total",
			Help:      "Agent executions by agent id and status",
		}, []string{"agent", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_execution_duration_seconds",
			Help:      "Agent execution duration in seconds by agent id",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_cache_hits_total",
			Help:      "Agent cache hits by agent id",
		}, []string{"agent"}),
		cacheMiss: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_cache_misses_total",
			Help:      "Agent cache misses by agent id",
		}, []string{"agent"}),
	}
	a.once.Do(func() {
		prometheus.MustRegister(a.executions, a.duration, a.cacheHits, a.cacheMiss)
	})
	return a
}

func (a *agentProm) IncAgentExecution(agent, status string) {
	a.executions.WithLabelValues(agent, status).Inc()
}

func (a *agentProm) ObserveAgentDuration(agent string, durationSeconds float64) {
	a.duration.WithLabelValues(agent).Observe(durationSeconds)
}

func (a *agentProm) IncCacheHit(agent string) {
	a.cacheHits.WithLabelValues(agent).Inc()
}

func (a *agentProm) IncCacheMiss(agent string) {
	a.cacheMiss.WithLabelValues(agent).Inc()
}
