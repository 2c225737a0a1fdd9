package orchestratord

import (
	"context"
	"fmt"

	"github.com/weftwork/weft/core/agent"
	"github.com/weftwork/weft/core/workflow"
)

// agentExecutor bridges workflow steps to the agent coordinator. Each step's
// Agent field selects the worker; the step's resolved inputs become the agent
// inputs, and the execution context travels under the coordinator's reserved
// key.
type agentExecutor struct {
	coord *agent.Coordinator
}

func newAgentExecutor(coord *agent.Coordinator) *agentExecutor {
	return &agentExecutor{coord: coord}
}

func (e *agentExecutor) ExecuteStep(ctx context.Context, step *workflow.Step, inputs map[string]any) (any, error) {
	spec := specForStep(step)
	res, err := e.coord.ExecuteAgent(ctx, spec, inputs, map[string]any{
		"step_id": step.ID,
		"agent":   step.Agent,
	})
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", spec.ID, err)
	}
	return res.Output, nil
}

// specForStep derives the agent spec from a step. Steps without an agent run
// the echo agent, which is also the fallback for unregistered agent ids.
func specForStep(step *workflow.Step) *agent.Spec {
	id := step.Agent
	if id == "" {
		id = "echo"
	}
	spec := &agent.Spec{ID: id, Name: id, Config: step.Config}
	if m, ok := step.Config["model"].(string); ok {
		spec.Model = m
	}
	if p, ok := step.Config["provider"].(string); ok {
		spec.Provider = p
	}
	return spec
}

// echoFactory builds workers that report their agent id and echo their
// inputs. It keeps the daemon runnable without any external model backend;
// real deployments swap in their own factory.
func echoFactory() agent.Factory {
	return agent.FactoryFunc(func(_ context.Context, spec *agent.Spec) (agent.Worker, error) {
		id := spec.ID
		return agent.WorkerFunc(func(_ context.Context, inputs map[string]any) (any, error) {
			out := map[string]any{"agent": id}
			for k, v := range inputs {
				if k == agent.ContextKey {
					continue
				}
				out[k] = v
			}
			return out, nil
		}), nil
	})
}
