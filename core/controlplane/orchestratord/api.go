package orchestratord

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/weftwork/weft/core/agent"
	"github.com/weftwork/weft/core/workflow"
)

type server struct {
	runner *workflow.AsyncRunner
	coord  *agent.Coordinator
}

func newServer(runner *workflow.AsyncRunner, coord *agent.Coordinator) *server {
	return &server{runner: runner, coord: coord}
}

func (s *server) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/executions", s.handleSubmit)
	mux.HandleFunc("GET /api/v1/executions", s.handleList)
	mux.HandleFunc("GET /api/v1/executions/{id}", s.handleGet)
	mux.HandleFunc("POST /api/v1/executions/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/v1/workflows/validate", s.handleValidate)
	mux.HandleFunc("GET /api/v1/agents/metrics", s.handleAgentMetrics)
	mux.HandleFunc("GET /api/v1/agents/cache", s.handleAgentCache)
}

type submitRequest struct {
	Workflow *workflow.Workflow `json:"workflow"`
	Inputs   map[string]any     `json:"inputs,omitempty"`
	Async    bool               `json:"async,omitempty"`
}

// handleSubmit runs a workflow. With async true it returns 202 and the
// execution id immediately; otherwise it blocks and returns the terminal
// snapshot.
func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Workflow == nil {
		http.Error(w, "workflow required", http.StatusBadRequest)
		return
	}

	if req.Async {
		id, err := s.runner.ExecuteAsync(req.Workflow, req.Inputs)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"execution_id": id})
		return
	}

	ec, err := s.runner.Execute(r.Context(), req.Workflow, req.Inputs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, ec.Snapshot())
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	ec, err := s.runner.Status(r.PathValue("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, workflow.ErrExecutionNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, ec.Snapshot())
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	workflowID := r.URL.Query().Get("workflow_id")
	if workflowID == "" {
		http.Error(w, "workflow_id query parameter required", http.StatusBadRequest)
		return
	}
	var statuses []workflow.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, workflow.Status(strings.TrimSpace(s)))
		}
	}
	ecs := s.runner.List(workflowID, statuses...)
	out := make([]workflow.Snapshot, len(ecs))
	for i, ec := range ecs {
		out[i] = ec.Snapshot()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.runner.Cancel(id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, workflow.ErrExecutionNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"execution_id": id, "status": "cancel_requested"})
}

func (s *server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var wf workflow.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := workflow.ValidateWorkflow(&wf); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (s *server) handleAgentMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.AllMetrics())
}

func (s *server) handleAgentCache(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":  s.coord.Stats(),
		"agents": s.coord.CachedAgents(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
