// Package graph provides a small state-machine engine for agent control
// flow: named nodes, static and conditional edges, a bounded run loop and
// an observer side channel for streaming execution events.
package graph

import (
	"context"
	"errors"
	"fmt"
)

// END is the terminal pseudo-node. Routing to END stops execution.
const END = "END"

var (
	// ErrEntryPointNotSet is returned by Compile when no entry point was set.
	ErrEntryPointNotSet = errors.New("entry point not set")

	// ErrNodeNotFound is returned when execution routes to an unknown node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoOutgoingEdge is returned when a node has neither a static nor a
	// conditional edge.
	ErrNoOutgoingEdge = errors.New("no outgoing edge found for node")

	// ErrMaxStepsExceeded is returned when the run loop executes more node
	// steps than the configured bound. It guards against planner/executor
	// cycles that never converge.
	ErrMaxStepsExceeded = errors.New("maximum graph steps exceeded")
)

// DefaultMaxSteps bounds the run loop when no explicit limit is configured.
const DefaultMaxSteps = 24

// Node is a named unit of work. Its function receives the current state and
// returns the next state.
type Node[S any] struct {
	Name        string
	Description string
	Function    func(ctx context.Context, state S) (S, error)
}

// Edge is a static transition between two nodes.
type Edge struct {
	From string
	To   string
}

// StateGraph builds a graph of nodes over a state type S.
type StateGraph[S any] struct {
	nodes            map[string]Node[S]
	edges            []Edge
	conditionalEdges map[string]func(ctx context.Context, state S) string
	entryPoint       string
	maxSteps         int
}

// NewStateGraph creates an empty state graph.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]Node[S]),
		conditionalEdges: make(map[string]func(ctx context.Context, state S) string),
		maxSteps:         DefaultMaxSteps,
	}
}

// AddNode registers a node under the given name.
func (g *StateGraph[S]) AddNode(name, description string, fn func(ctx context.Context, state S) (S, error)) {
	g.nodes[name] = Node[S]{Name: name, Description: description, Function: fn}
}

// AddEdge adds a static edge from one node to another (or to END).
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{From: from, To: to})
}

// AddConditionalEdge adds an edge whose target is decided at runtime from
// the state. The condition must return a node name or END.
func (g *StateGraph[S]) AddConditionalEdge(from string, condition func(ctx context.Context, state S) string) {
	g.conditionalEdges[from] = condition
}

// SetEntryPoint sets the node execution starts from.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// SetMaxSteps bounds the number of node executions per Invoke. Values <= 0
// restore the default.
func (g *StateGraph[S]) SetMaxSteps(n int) {
	if n <= 0 {
		n = DefaultMaxSteps
	}
	g.maxSteps = n
}

// Compile validates the graph and returns a Runnable.
func (g *StateGraph[S]) Compile() (*Runnable[S], error) {
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, g.entryPoint)
	}
	return &Runnable[S]{graph: g}, nil
}

// Runnable is a compiled graph ready for execution.
type Runnable[S any] struct {
	graph *StateGraph[S]
}

// Invoke runs the graph from its entry point until END and returns the
// terminal state.
func (r *Runnable[S]) Invoke(ctx context.Context, initial S) (S, error) {
	return r.InvokeWithListeners(ctx, initial)
}

// InvokeWithListeners runs the graph and reports node entry/completion and
// any events emitted by node functions to the given listeners. Listener
// calls are a side channel: they never influence transitions.
func (r *Runnable[S]) InvokeWithListeners(ctx context.Context, initial S, listeners ...Listener) (S, error) {
	state := initial
	current := r.graph.entryPoint
	emitter := &emitter{listeners: listeners}
	ctx = withEmitter(ctx, emitter)

	emitter.emit(ctx, Event{Type: EventGraphStart})

	for steps := 0; current != END; steps++ {
		if steps >= r.graph.maxSteps {
			err := fmt.Errorf("%w: %d", ErrMaxStepsExceeded, r.graph.maxSteps)
			emitter.emit(ctx, Event{Type: EventGraphError, Err: err})
			return state, err
		}
		if err := ctx.Err(); err != nil {
			emitter.emit(ctx, Event{Type: EventGraphError, Err: err})
			return state, err
		}

		node, ok := r.graph.nodes[current]
		if !ok {
			err := fmt.Errorf("%w: %s", ErrNodeNotFound, current)
			emitter.emit(ctx, Event{Type: EventGraphError, Err: err})
			return state, err
		}

		emitter.emit(ctx, Event{Type: EventNodeStart, Node: current})
		next, err := node.Function(ctx, state)
		if err != nil {
			err = fmt.Errorf("error in node %s: %w", current, err)
			emitter.emit(ctx, Event{Type: EventGraphError, Node: current, Err: err})
			return state, err
		}
		state = next
		emitter.emit(ctx, Event{Type: EventNodeEnd, Node: current, State: state})

		current, err = r.nextNode(ctx, current, state)
		if err != nil {
			emitter.emit(ctx, Event{Type: EventGraphError, Err: err})
			return state, err
		}
	}

	emitter.emit(ctx, Event{Type: EventGraphEnd, State: state})
	return state, nil
}

// nextNode resolves the outgoing transition for a node. Conditional edges
// take precedence over static ones.
func (r *Runnable[S]) nextNode(ctx context.Context, from string, state S) (string, error) {
	if condition, ok := r.graph.conditionalEdges[from]; ok {
		next := condition(ctx, state)
		if next == "" {
			return "", fmt.Errorf("conditional edge returned empty next node from %s", from)
		}
		return next, nil
	}
	for _, edge := range r.graph.edges {
		if edge.From == from {
			return edge.To, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoOutgoingEdge, from)
}
