package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func withTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	origReg := prometheus.DefaultRegisterer
	origGather := prometheus.DefaultGatherer
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGather
	})
	return reg
}

func TestNoopMetrics(t *testing.T) {
	var m Noop
	m.IncWorkflowStarted("wf")
	m.IncWorkflowCompleted("wf", "completed")
	m.ObserveWorkflowDuration("wf", 0.1)
	m.IncStepCompleted("wf", "completed")
	m.IncAgentExecution("a1", "success")
	m.ObserveAgentDuration("a1", 0.1)
	m.IncCacheHit("a1")
	m.IncCacheMiss("a1")
}

func TestWorkflowProm(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewWorkflowProm("weft")
	m.IncWorkflowStarted("wf")
	m.IncWorkflowCompleted("wf", "completed")
	m.ObserveWorkflowDuration("wf", 0.5)
	m.IncStepCompleted("wf", "failed")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasMetric(families, "weft_workflows_started_total", map[string]string{"workflow": "wf"}) {
		t.Fatalf("expected workflows_started metric")
	}
	if !hasMetric(families, "weft_workflows_completed_total", map[string]string{"workflow": "wf", "status": "completed"}) {
		t.Fatalf("expected workflows_completed metric")
	}
	if !hasMetric(families, "weft_workflow_duration_seconds", map[string]string{"workflow": "wf"}) {
		t.Fatalf("expected workflow_duration metric")
	}
	if !hasMetric(families, "weft_workflow_steps_total", map[string]string{"workflow": "wf", "status": "failed"}) {
		t.Fatalf("expected workflow_steps metric")
	}
}

func TestAgentProm(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewAgentProm("weft")
	m.IncAgentExecution("a1", "success")
	m.ObserveAgentDuration("a1", 0.25)
	m.IncCacheHit("a1")
	m.IncCacheMiss("a2")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasMetric(families, "weft_agent_executions_total", map[string]string{"agent": "a1", "status": "success"}) {
		t.Fatalf("expected agent_executions metric")
	}
	if !hasMetric(families, "weft_agent_execution_duration_seconds", map[string]string{"agent": "a1"}) {
		t.Fatalf("expected agent_execution_duration metric")
	}
	if !hasMetric(families, "weft_agent_cache_hits_total", map[string]string{"agent": "a1"}) {
		t.Fatalf("expected agent_cache_hits metric")
	}
	if !hasMetric(families, "weft_agent_cache_misses_total", map[string]string{"agent": "a2"}) {
		t.Fatalf("expected agent_cache_misses metric")
	}
}

func TestHandler(t *testing.T) {
	withTestRegistry(t)
	m := NewWorkflowProm("weft")
	m.IncWorkflowStarted("wf")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected metrics output")
	}
}

func hasMetric(families []*dto.MetricFamily, name string, labels map[string]string) bool {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return true
			}
		}
	}
	return false
}

func matchLabels(pairs []*dto.LabelPair, labels map[string]string) bool {
	if len(labels) == 0 {
		return true
	}
	found := 0
	for _, pair := range pairs {
		if val, ok := labels[pair.GetName()]; ok && pair.GetValue() == val {
			found++
		}
	}
	return found == len(labels)
}
