package graph

import (
	"context"
	"time"
)

// EventType classifies execution events.
type EventType string

const (
	// EventGraphStart is emitted once when Invoke begins.
	EventGraphStart EventType = "graph_start"
	// EventGraphEnd is emitted once when the graph reaches END.
	EventGraphEnd EventType = "graph_end"
	// EventGraphError is emitted when execution fails.
	EventGraphError EventType = "graph_error"
	// EventNodeStart is emitted before a node function runs.
	EventNodeStart EventType = "node_start"
	// EventNodeEnd is emitted after a node function returns.
	EventNodeEnd EventType = "node_end"
	// EventToolStart is emitted by node functions before invoking a tool.
	EventToolStart EventType = "tool_start"
)

// Event describes one step of graph execution. State is the post-step state
// for node/graph completion events and nil otherwise.
type Event struct {
	Type      EventType
	Node      string
	Tool      string
	State     any
	Err       error
	Timestamp time.Time
}

// Listener observes execution events. Implementations must not block for
// long: listener calls run inline with the graph loop.
type Listener interface {
	OnEvent(ctx context.Context, event Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, event Event)

// OnEvent calls the wrapped function.
func (f ListenerFunc) OnEvent(ctx context.Context, event Event) {
	f(ctx, event)
}

type emitter struct {
	listeners []Listener
}

func (e *emitter) emit(ctx context.Context, event Event) {
	if e == nil || len(e.listeners) == 0 {
		return
	}
	event.Timestamp = time.Now()
	for _, l := range e.listeners {
		l.OnEvent(ctx, event)
	}
}

type emitterKey struct{}

func withEmitter(ctx context.Context, e *emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, e)
}

// Emit publishes an event from inside a node function to the listeners of
// the current invocation. Outside a graph run it is a no-op, which keeps
// node functions testable in isolation.
func Emit(ctx context.Context, event Event) {
	e, _ := ctx.Value(emitterKey{}).(*emitter)
	e.emit(ctx, event)
}
