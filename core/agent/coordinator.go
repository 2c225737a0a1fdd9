package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/weftwork/weft/core/infra/logging"
	"github.com/weftwork/weft/core/infra/metrics"
)

// ContextKey is the reserved input key under which an execution context is
// merged into a worker's inputs.
const ContextKey = "_context"

const defaultCacheSize = 10

var (
	// ErrInputMismatch indicates ExecuteParallel was called with agent and
	// input lists of different lengths.
	ErrInputMismatch = errors.New("agents and inputs length mismatch")
	// ErrNilSpec indicates an agent spec without an id.
	ErrNilSpec = errors.New("agent spec with id required")
)

// Coordinator caches constructed worker instances by agent id, executes one
// or many agents and records per-agent execution metrics.
//
// The cache evicts FIFO by insertion order: when at capacity, the oldest
// inserted entry is removed, regardless of how recently it was used. The
// whole check-then-insert sequence runs under the coordinator mutex.
type Coordinator struct {
	factory Factory
	prom    metrics.AgentMetrics

	mu           sync.Mutex
	cache        map[string]Worker
	cacheOrder   []string // insertion order, oldest first
	cacheSize    int
	cacheEnabled bool
	hits         int64
	misses       int64
	stats        map[string]*Metrics
}

// NewCoordinator creates a coordinator bound to a worker factory.
func NewCoordinator(factory Factory) *Coordinator {
	return &Coordinator{
		factory:      factory,
		prom:         metrics.Noop{},
		cache:        make(map[string]Worker),
		cacheSize:    defaultCacheSize,
		cacheEnabled: true,
		stats:        make(map[string]*Metrics),
	}
}

// WithMetrics sets the agent metrics recorder.
func (c *Coordinator) WithMetrics(m metrics.AgentMetrics) *Coordinator {
	if m != nil {
		c.prom = m
	}
	return c
}

// WithCacheSize caps the worker cache. Zero disables caching entirely.
func (c *Coordinator) WithCacheSize(n int) *Coordinator {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 {
		c.cacheEnabled = false
		c.cacheSize = 0
		return c
	}
	c.cacheSize = n
	return c
}

// ExecuteAgent resolves a worker for the spec, merges the optional execution
// context into the inputs under ContextKey, invokes the worker and records
// metrics. Worker errors are recorded as failures and returned to the
// caller along with the failure record.
func (c *Coordinator) ExecuteAgent(ctx context.Context, spec *Spec, inputs map[string]any, execContext map[string]any) (*Result, error) {
	if spec == nil || spec.ID == "" {
		return nil, ErrNilSpec
	}

	worker, err := c.resolveWorker(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("create worker for agent %s: %w", spec.ID, err)
	}

	merged := make(map[string]any, len(inputs)+1)
	for k, v := range inputs {
		merged[k] = v
	}
	if execContext != nil {
		merged[ContextKey] = execContext
	}

	start := time.Now()
	output, err := worker.Invoke(ctx, merged)
	elapsed := time.Since(start)

	c.record(spec.ID, elapsed, err == nil)
	c.prom.ObserveAgentDuration(spec.ID, elapsed.Seconds())

	result := &Result{
		AgentID: spec.ID,
		Elapsed: elapsed,
		Metadata: map[string]string{
			"name":     spec.Name,
			"model":    spec.Model,
			"provider": spec.Provider,
		},
	}
	if err != nil {
		c.prom.IncAgentExecution(spec.ID, "failure")
		result.Error = err.Error()
		logging.Error("coordinator", "agent execution failed",
			"agent_id", spec.ID, "error", err, "elapsed", elapsed.String())
		return result, err
	}
	c.prom.IncAgentExecution(spec.ID, "success")
	result.Output = output
	result.Success = true
	return result, nil
}

// ExecuteParallel runs one agent per input map concurrently. A failing
// agent never aborts the batch: its slot carries an error record with
// Success false, at the same index as its input.
func (c *Coordinator) ExecuteParallel(ctx context.Context, specs []*Spec, inputs []map[string]any, shared map[string]any) ([]*Result, error) {
	if len(specs) != len(inputs) {
		return nil, fmt.Errorf("%w: %d agents, %d inputs", ErrInputMismatch, len(specs), len(inputs))
	}

	results := make([]*Result, len(specs))
	var wg sync.WaitGroup
	for i := range specs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.ExecuteAgent(ctx, specs[i], inputs[i], shared)
			if err != nil {
				id := ""
				if specs[i] != nil {
					id = specs[i].ID
				}
				if res == nil {
					res = &Result{AgentID: id}
				}
				res.Success = false
				res.Error = err.Error()
			}
			results[i] = res
		}(i)
	}
	wg.Wait()
	return results, nil
}

// resolveWorker returns a cached worker or constructs one via the factory.
// At capacity the oldest inserted cache entry is evicted first.
func (c *Coordinator) resolveWorker(ctx context.Context, spec *Spec) (Worker, error) {
	c.mu.Lock()
	if !c.cacheEnabled {
		c.mu.Unlock()
		return c.factory.Create(ctx, spec)
	}
	if w, ok := c.cache[spec.ID]; ok {
		c.hits++
		c.mu.Unlock()
		c.prom.IncCacheHit(spec.ID)
		return w, nil
	}
	c.misses++
	c.mu.Unlock()
	c.prom.IncCacheMiss(spec.ID)

	w, err := c.factory.Create(ctx, spec)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if cached, ok := c.cache[spec.ID]; ok {
		// Another goroutine built the same worker first; keep its copy.
		c.mu.Unlock()
		return cached, nil
	}
	if len(c.cache) >= c.cacheSize {
		oldest := c.cacheOrder[0]
		c.cacheOrder = c.cacheOrder[1:]
		delete(c.cache, oldest)
		logging.Debug("coordinator", "evicted cached worker", "agent_id", oldest)
	}
	c.cache[spec.ID] = w
	c.cacheOrder = append(c.cacheOrder, spec.ID)
	c.mu.Unlock()
	return w, nil
}

func (c *Coordinator) record(agentID string, elapsed time.Duration, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.stats[agentID]
	if m == nil {
		m = &Metrics{}
		c.stats[agentID] = m
	}
	m.TotalExecutions++
	if success {
		m.SuccessfulExecutions++
	} else {
		m.FailedExecutions++
	}
	m.TotalExecutionTime += elapsed
	m.AvgExecutionTime = m.TotalExecutionTime / time.Duration(m.TotalExecutions)
}

// AgentMetrics returns a copy of one agent's metrics, or false when the
// agent has never executed.
func (c *Coordinator) AgentMetrics(agentID string) (Metrics, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.stats[agentID]
	if !ok {
		return Metrics{}, false
	}
	return *m, true
}

// AllMetrics returns a copy of the metrics for every agent seen so far.
func (c *Coordinator) AllMetrics() map[string]Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Metrics, len(c.stats))
	for id, m := range c.stats {
		out[id] = *m
	}
	return out
}

// ClearCache drops cached workers. With no arguments the whole cache is
// cleared; with ids only those entries are dropped.
func (c *Coordinator) ClearCache(agentIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(agentIDs) == 0 {
		c.cache = make(map[string]Worker)
		c.cacheOrder = nil
		return
	}
	for _, id := range agentIDs {
		if _, ok := c.cache[id]; !ok {
			continue
		}
		delete(c.cache, id)
		for i, cached := range c.cacheOrder {
			if cached == id {
				c.cacheOrder = append(c.cacheOrder[:i], c.cacheOrder[i+1:]...)
				break
			}
		}
	}
}

// Stats returns a snapshot of the cache state.
func (c *Coordinator) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Size:    len(c.cache),
		Cap:     c.cacheSize,
		Enabled: c.cacheEnabled,
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

// CachedAgents returns the ids of cached workers, oldest first.
func (c *Coordinator) CachedAgents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cacheOrder...)
}
