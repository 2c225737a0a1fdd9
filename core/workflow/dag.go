package workflow

import "fmt"

// DependencyGraph holds adjacency maps derived from a workflow's steps.
// It is rebuilt per workflow instance and never mutated after construction.
type DependencyGraph struct {
	order   []string            // step ids in declaration order
	steps   map[string]*Step    // id -> step
	graph   map[string][]string // id -> dependency ids
	reverse map[string][]string // id -> dependent ids
}

// NewDependencyGraph builds the adjacency and reverse-adjacency maps in
// O(steps + edges). No validation happens here; call Validate.
func NewDependencyGraph(steps []*Step) *DependencyGraph {
	g := &DependencyGraph{
		steps:   make(map[string]*Step, len(steps)),
		graph:   make(map[string][]string, len(steps)),
		reverse: make(map[string][]string, len(steps)),
	}
	for _, s := range steps {
		if s == nil {
			continue
		}
		g.order = append(g.order, s.ID)
		g.steps[s.ID] = s
		g.graph[s.ID] = append([]string(nil), s.DependsOn...)
		if _, ok := g.reverse[s.ID]; !ok {
			g.reverse[s.ID] = nil
		}
	}
	for _, s := range steps {
		if s == nil {
			continue
		}
		for _, dep := range s.DependsOn {
			g.reverse[dep] = append(g.reverse[dep], s.ID)
		}
	}
	return g
}

// Validate checks referential integrity and acyclicity. It returns a
// *MissingDependencyError when a dependency names an unknown step and a
// *CycleError when the graph contains a cycle.
func (g *DependencyGraph) Validate() error {
	seen := make(map[string]struct{}, len(g.order))
	for _, id := range g.order {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate step id %q", ErrInvalidWorkflow, id)
		}
		seen[id] = struct{}{}
	}
	for _, id := range g.order {
		for _, dep := range g.graph[id] {
			if _, ok := g.steps[dep]; !ok {
				return &MissingDependencyError{StepID: id, Missing: dep}
			}
		}
	}
	return g.detectCycle()
}

// detectCycle runs DFS with a recursion-stack marker. A node revisited while
// still on the stack indicates a cycle; the path along the stack is reported.
func (g *DependencyGraph) detectCycle() error {
	const (
		white = 0 // unvisited
		grey  = 1 // on the recursion stack
		black = 2 // done
	)
	color := make(map[string]int, len(g.order))
	stack := make([]string, 0, len(g.order))

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = grey
		stack = append(stack, id)
		for _, dep := range g.graph[id] {
			switch color[dep] {
			case grey:
				// Trim the stack down to the first occurrence of dep.
				path := append(cyclePath(stack, dep), dep)
				return &CycleError{Path: path}
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, id := range g.order {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func cyclePath(stack []string, start string) []string {
	for i, id := range stack {
		if id == start {
			return append([]string(nil), stack[i:]...)
		}
	}
	return append([]string(nil), stack...)
}

// TopologicalSort returns all step ids with every dependency preceding its
// dependents, using Kahn's algorithm with declaration-order tie-break.
// A cycle yields a *CycleError instead of a truncated order.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	indegree := make(map[string]int, len(g.order))
	for _, id := range g.order {
		indegree[id] = len(g.graph[id])
	}

	queue := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	sorted := make([]string, 0, len(g.order))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)
		for _, dependent := range g.reverse[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) != len(g.order) {
		remaining := make([]string, 0)
		for _, id := range g.order {
			if indegree[id] > 0 {
				remaining = append(remaining, id)
			}
		}
		return nil, &CycleError{Path: remaining}
	}
	return sorted, nil
}

// ExecutionLevels partitions the step ids into an ordered sequence of levels:
// level 0 holds every step with no dependencies, level k every unplaced step
// whose dependencies all sit in earlier levels. Steps within one level may
// run concurrently; levels run strictly in order.
func (g *DependencyGraph) ExecutionLevels() ([][]string, error) {
	placed := make(map[string]struct{}, len(g.order))
	var levels [][]string
	for len(placed) < len(g.order) {
		var level []string
		for _, id := range g.order {
			if _, done := placed[id]; done {
				continue
			}
			ready := true
			for _, dep := range g.graph[id] {
				if _, ok := placed[dep]; !ok {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			remaining := make([]string, 0)
			for _, id := range g.order {
				if _, done := placed[id]; !done {
					remaining = append(remaining, id)
				}
			}
			return nil, &CycleError{Path: remaining}
		}
		for _, id := range level {
			placed[id] = struct{}{}
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// ReadySteps returns every step not in completed whose dependency set is a
// subset of completed. Draining ready steps repeatedly reproduces the level
// partition.
func (g *DependencyGraph) ReadySteps(completed map[string]struct{}) []string {
	var ready []string
	for _, id := range g.order {
		if _, done := completed[id]; done {
			continue
		}
		ok := true
		for _, dep := range g.graph[id] {
			if _, done := completed[dep]; !done {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	return ready
}

// Dependencies returns the direct dependency ids of a step.
func (g *DependencyGraph) Dependencies(id string) ([]string, error) {
	if _, ok := g.steps[id]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStep, id)
	}
	return append([]string(nil), g.graph[id]...), nil
}

// Dependents returns the ids of steps that depend directly on the given step.
func (g *DependencyGraph) Dependents(id string) ([]string, error) {
	if _, ok := g.steps[id]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStep, id)
	}
	return append([]string(nil), g.reverse[id]...), nil
}

// Step returns the step definition for an id, or nil.
func (g *DependencyGraph) Step(id string) *Step {
	return g.steps[id]
}

// Len returns the number of steps in the graph.
func (g *DependencyGraph) Len() int {
	return len(g.order)
}
