package graph

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StateGraph is a graph whose nodes transform a state of type S.
type StateGraph[S any] struct {
	// nodes is a map of node names to their corresponding Node objects
	nodes map[string]Node[S]

	// edges is a slice of Edge objects representing the connections between nodes
	edges []Edge

	// conditionalEdges contains a map between "From" node, while "To" node is derived based on the condition
	conditionalEdges map[string]func(ctx context.Context, state S) string

	// entryPoint is the name of the entry point node in the graph
	entryPoint string

	recursionLimit int
	retryPolicy    *RetryPolicy
}

// Node is a named state transformation.
type Node[S any] struct {
	Name        string
	Description string
	Function    func(ctx context.Context, state S) (S, error)
}

// NewStateGraph creates an empty graph.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]Node[S]),
		conditionalEdges: make(map[string]func(ctx context.Context, state S) string),
		recursionLimit:   DefaultRecursionLimit,
	}
}

// AddNode adds a new node to the state graph with the given name, description and function.
func (g *StateGraph[S]) AddNode(name string, description string, fn func(ctx context.Context, state S) (S, error)) {
	g.nodes[name] = Node[S]{
		Name:        name,
		Description: description,
		Function:    fn,
	}
}

// AddEdge adds a new edge to the state graph between the "from" and "to" nodes.
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{From: from, To: to})
}

// AddConditionalEdge adds a conditional edge where the target node is
// determined at runtime. It takes precedence over static edges from the
// same node.
func (g *StateGraph[S]) AddConditionalEdge(from string, condition func(ctx context.Context, state S) string) {
	g.conditionalEdges[from] = condition
}

// SetEntryPoint sets the entry point node name for the state graph.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// SetRecursionLimit caps node executions per run; n <= 0 restores the default.
func (g *StateGraph[S]) SetRecursionLimit(n int) {
	if n <= 0 {
		n = DefaultRecursionLimit
	}
	g.recursionLimit = n
}

// SetRetryPolicy sets the retry policy for the graph.
func (g *StateGraph[S]) SetRetryPolicy(policy *RetryPolicy) {
	g.retryPolicy = policy
}

// Nodes returns the registered nodes.
func (g *StateGraph[S]) Nodes() map[string]Node[S] {
	out := make(map[string]Node[S], len(g.nodes))
	for k, v := range g.nodes {
		out[k] = v
	}
	return out
}

// Compile validates the graph and returns a runnable.
func (g *StateGraph[S]) Compile() (*StateRunnable[S], error) {
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("%w: entry point %s", ErrNodeNotFound, g.entryPoint)
	}
	for _, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			return nil, fmt.Errorf("%w: edge source %s", ErrNodeNotFound, e.From)
		}
		if _, ok := g.nodes[e.To]; !ok && e.To != END {
			return nil, fmt.Errorf("%w: edge target %s", ErrNodeNotFound, e.To)
		}
	}
	for from := range g.conditionalEdges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("%w: conditional edge source %s", ErrNodeNotFound, from)
		}
	}
	return &StateRunnable[S]{graph: g}, nil
}

// Listener observes a run. OnStep is called after every node with the
// 1-based step number and the state the node produced.
type Listener[S any] interface {
	OnStep(ctx context.Context, step int, node string, state S)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc[S any] func(ctx context.Context, step int, node string, state S)

func (f ListenerFunc[S]) OnStep(ctx context.Context, step int, node string, state S) {
	f(ctx, step, node, state)
}

// StateRunnable is a compiled graph.
type StateRunnable[S any] struct {
	graph     *StateGraph[S]
	listeners []Listener[S]
}

// AddListener registers l and returns the runnable for chaining.
func (r *StateRunnable[S]) AddListener(l Listener[S]) *StateRunnable[S] {
	r.listeners = append(r.listeners, l)
	return r
}

// Invoke runs the graph from the entry point until END. On error the state
// reached so far is returned with it.
func (r *StateRunnable[S]) Invoke(ctx context.Context, initialState S, listeners ...Listener[S]) (S, error) {
	state := initialState
	current := r.graph.entryPoint
	all := append(append([]Listener[S]{}, r.listeners...), listeners...)

	for step := 1; current != END; step++ {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		if step > r.graph.recursionLimit {
			return state, fmt.Errorf("%w: %d steps", ErrRecursionLimit, r.graph.recursionLimit)
		}

		node, ok := r.graph.nodes[current]
		if !ok {
			return state, fmt.Errorf("%w: %s", ErrNodeNotFound, current)
		}

		next, err := r.runNode(ctx, node, state)
		if err != nil {
			return state, fmt.Errorf("error in node %s: %w", current, err)
		}
		state = next

		for _, l := range all {
			l.OnStep(ctx, step, current, state)
		}

		current, err = r.nextNode(ctx, current, state)
		if err != nil {
			return state, err
		}
	}
	return state, nil
}

func (r *StateRunnable[S]) nextNode(ctx context.Context, from string, state S) (string, error) {
	if cond, ok := r.graph.conditionalEdges[from]; ok {
		to := cond(ctx, state)
		if to == "" {
			return "", fmt.Errorf("%w: conditional edge from %s returned no target", ErrNoOutgoingEdge, from)
		}
		if _, ok := r.graph.nodes[to]; !ok && to != END {
			return "", fmt.Errorf("%w: %s (from %s)", ErrNodeNotFound, to, from)
		}
		return to, nil
	}
	for _, e := range r.graph.edges {
		if e.From == from {
			return e.To, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoOutgoingEdge, from)
}

func (r *StateRunnable[S]) runNode(ctx context.Context, node Node[S], state S) (S, error) {
	policy := r.graph.retryPolicy
	attempts := 1
	if policy != nil {
		attempts += policy.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		out, err := node.Function(ctx, state)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if policy == nil || attempt == attempts-1 || !retryable(policy, err) {
			break
		}
		select {
		case <-time.After(policy.delay(attempt)):
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}
	return state, lastErr
}

func retryable(p *RetryPolicy, err error) bool {
	if len(p.RetryableErrors) == 0 {
		return true
	}
	msg := err.Error()
	for _, pattern := range p.RetryableErrors {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
