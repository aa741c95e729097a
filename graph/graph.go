// Package graph runs typed state machines: nodes transform a state value and
// edges, static or conditional, pick the next node until END is reached.
//
//	g := graph.NewStateGraph[MyState]()
//	g.AddNode("plan", "Create a plan", planFn)
//	g.AddNode("act", "Run one step", actFn)
//	g.SetEntryPoint("plan")
//	g.AddEdge("plan", "act")
//	g.AddConditionalEdge("act", func(ctx context.Context, s MyState) string {
//	    if s.Done {
//	        return graph.END
//	    }
//	    return "act"
//	})
//	app, err := g.Compile()
//	final, err := app.Invoke(ctx, MyState{})
package graph

import (
	"errors"
	"time"
)

// END is a special constant used to represent the end node in the graph.
const END = "END"

// DefaultRecursionLimit bounds the number of node executions per Invoke.
const DefaultRecursionLimit = 50

var (
	// ErrEntryPointNotSet is returned when the entry point of the graph is not set.
	ErrEntryPointNotSet = errors.New("entry point not set")

	// ErrNodeNotFound is returned when a node is not found in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoOutgoingEdge is returned when no outgoing edge is found for a node.
	ErrNoOutgoingEdge = errors.New("no outgoing edge found for node")

	// ErrRecursionLimit is returned when a run executes more nodes than allowed.
	ErrRecursionLimit = errors.New("recursion limit reached")
)

// Edge is a static transition between two nodes.
type Edge struct {
	From string
	To   string
}

// RetryPolicy retries failing nodes whose error matches RetryableErrors
// (all errors when the list is empty).
type RetryPolicy struct {
	MaxRetries      int
	BackoffStrategy BackoffStrategy
	InitialDelay    time.Duration
	RetryableErrors []string
}

// BackoffStrategy defines different backoff strategies
type BackoffStrategy int

const (
	FixedBackoff BackoffStrategy = iota
	ExponentialBackoff
	LinearBackoff
)

func (p *RetryPolicy) delay(attempt int) time.Duration {
	base := p.InitialDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	switch p.BackoffStrategy {
	case ExponentialBackoff:
		return base * time.Duration(1<<attempt)
	case LinearBackoff:
		return base * time.Duration(attempt+1)
	default:
		return base
	}
}
