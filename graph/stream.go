package graph

import "context"

// StreamResult carries the channels of a streaming execution. Events is
// closed after the final Result or Errors delivery.
type StreamResult[S any] struct {
	// Events receives execution events in real time.
	Events <-chan Event

	// Result receives the terminal state on success (buffered, capacity 1).
	Result <-chan S

	// Errors receives the execution error on failure (buffered, capacity 1).
	Errors <-chan error

	// Cancel stops the underlying execution.
	Cancel context.CancelFunc
}

// streamBufferSize is large enough that a slow consumer does not stall the
// graph for typical turn lengths; overflow events are dropped rather than
// blocking the state machine.
const streamBufferSize = 64

// Stream executes the graph in a goroutine and streams events while it
// runs. The caller must drain Events until it is closed.
func (r *Runnable[S]) Stream(ctx context.Context, initial S) *StreamResult[S] {
	events := make(chan Event, streamBufferSize)
	result := make(chan S, 1)
	errs := make(chan error, 1)

	runCtx, cancel := context.WithCancel(ctx)

	listener := ListenerFunc(func(_ context.Context, event Event) {
		select {
		case events <- event:
		default:
		}
	})

	go func() {
		defer close(events)
		final, err := r.InvokeWithListeners(runCtx, initial, listener)
		if err != nil {
			errs <- err
			return
		}
		result <- final
	}()

	return &StreamResult[S]{
		Events: events,
		Result: result,
		Errors: errs,
		Cancel: cancel,
	}
}
