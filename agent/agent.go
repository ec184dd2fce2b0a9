package agent

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/docintel/docintel/graph"
	"github.com/docintel/docintel/log"
	"github.com/docintel/docintel/tool"
)

// Graph node names.
const (
	NodePlanner  = "agent"
	NodeAction   = "action"
	NodeFinalize = "generate_final_response"
)

// Routing labels returned by the planner's conditional edge.
const (
	routeContinue = "continue"
	routeEnd      = "end"
)

// DefaultMaxCycles bounds planner/executor round trips per turn.
const DefaultMaxCycles = 8

// Config assembles an Agent.
type Config struct {
	// PlannerModel decides on tool usage; it is bound to the registry's
	// tool schemas.
	PlannerModel llms.Model

	// FinalModel synthesizes the user-facing answer; it is never bound to
	// tools.
	FinalModel llms.Model

	// SummaryModel digests conversation history. Defaults to PlannerModel.
	SummaryModel llms.Model

	// Registry is the fixed tool set.
	Registry *tool.Registry

	// BaseURL is the public prefix for citation links.
	BaseURL string

	// MaxCycles caps planner/executor round trips per turn. Values <= 0
	// use DefaultMaxCycles.
	MaxCycles int

	Logger log.Logger
}

// Agent is the compiled orchestration graph for one-turn execution over
// session state.
type Agent struct {
	runnable *graph.Runnable[State]
}

// New wires planner, executor and finalizer into the cyclic control-flow
// graph:
//
//	agent -> (tool calls?) -> action -> agent
//	                       -> generate_final_response -> END
func New(cfg Config) (*Agent, error) {
	if cfg.PlannerModel == nil || cfg.FinalModel == nil {
		return nil, fmt.Errorf("planner and final models are required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.SummaryModel == nil {
		cfg.SummaryModel = cfg.PlannerModel
	}
	maxCycles := cfg.MaxCycles
	if maxCycles <= 0 {
		maxCycles = DefaultMaxCycles
	}

	summarizer := NewSummarizer(cfg.SummaryModel)
	planner := NewPlanner(cfg.PlannerModel, cfg.Registry, summarizer, cfg.Logger)
	executor := NewExecutor(cfg.Registry, cfg.Logger)
	finalizer := NewFinalizer(cfg.FinalModel, cfg.BaseURL, cfg.Logger)

	g := graph.NewStateGraph[State]()

	g.AddNode(NodePlanner, "summarize history and decide the next action", func(ctx context.Context, state State) (State, error) {
		msg, err := planner.Plan(ctx, state)
		if err != nil {
			return state, err
		}
		state.Messages = append(state.Messages, msg)
		return state, nil
	})

	g.AddNode(NodeAction, "execute requested tool calls and merge cited sources", func(ctx context.Context, state State) (State, error) {
		last, ok := lastMessage(state.Messages)
		if !ok {
			return state, fmt.Errorf("action node reached with empty history")
		}
		toolMessages, sources, err := executor.Execute(ctx, toolCallsOf(last), state.Sources)
		if err != nil {
			return state, err
		}
		state.Messages = append(state.Messages, toolMessages...)
		state.Sources = sources
		return state, nil
	})

	g.AddNode(NodeFinalize, "synthesize the final answer with citations", func(ctx context.Context, state State) (State, error) {
		msg, err := finalizer.Finalize(ctx, state)
		if err != nil {
			return state, err
		}
		state.Messages = append(state.Messages, msg)
		return state, nil
	})

	g.SetEntryPoint(NodePlanner)
	g.AddConditionalEdge(NodePlanner, func(ctx context.Context, state State) string {
		if shouldContinue(state) == routeContinue {
			return NodeAction
		}
		return NodeFinalize
	})
	g.AddEdge(NodeAction, NodePlanner)
	g.AddEdge(NodeFinalize, graph.END)

	// Each cycle is two node steps, plus the closing planner visit and the
	// finalizer.
	g.SetMaxSteps(maxCycles*2 + 2)

	runnable, err := g.Compile()
	if err != nil {
		return nil, err
	}
	return &Agent{runnable: runnable}, nil
}

// shouldContinue routes to the executor iff the last planner message
// requested tool calls.
func shouldContinue(state State) string {
	last, ok := lastMessage(state.Messages)
	if !ok {
		return routeEnd
	}
	if len(toolCallsOf(last)) > 0 {
		return routeContinue
	}
	return routeEnd
}

// Run executes one turn to completion and returns the terminal state.
func (a *Agent) Run(ctx context.Context, state State) (State, error) {
	return a.runnable.Invoke(ctx, state)
}

// Stream executes one turn while emitting execution events, so the
// transport can forward tool-start status updates to the client.
func (a *Agent) Stream(ctx context.Context, state State) *graph.StreamResult[State] {
	return a.runnable.Stream(ctx, state)
}
