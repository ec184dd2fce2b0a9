package agent

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/docintel/docintel/log"
	"github.com/docintel/docintel/tool"
)

// Planner decides, once per cycle, whether to answer directly or request
// tool calls. It is read-only over state.
type Planner struct {
	model      llms.Model
	registry   *tool.Registry
	summarizer *Summarizer
	logger     log.Logger
}

// NewPlanner creates a planner bound to the tool registry's schemas.
func NewPlanner(model llms.Model, registry *tool.Registry, summarizer *Summarizer, logger log.Logger) *Planner {
	if logger == nil {
		logger = log.Default()
	}
	return &Planner{model: model, registry: registry, summarizer: summarizer, logger: logger}
}

// Plan summarizes the history, builds the contextual instruction and asks
// the model for the next step. The returned assistant message carries
// either direct text or tool-call requests.
func (p *Planner) Plan(ctx context.Context, state State) (llms.MessageContent, error) {
	summary, err := p.summarizer.Summarize(ctx, state.Messages)
	if err != nil {
		return llms.MessageContent{}, err
	}

	instruction := plannerInstruction(summary, state.AdHocContext)

	messages := make([]llms.MessageContent, 0, len(state.Messages)+1)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, instruction))
	messages = append(messages, state.Messages...)

	resp, err := p.model.GenerateContent(ctx, messages, llms.WithTools(p.registry.Definitions()))
	if err != nil {
		return llms.MessageContent{}, fmt.Errorf("planning failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llms.MessageContent{}, fmt.Errorf("planning returned no choices")
	}
	choice := resp.Choices[0]

	msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
	if choice.Content != "" {
		msg.Parts = append(msg.Parts, llms.TextPart(choice.Content))
	}
	for _, tc := range choice.ToolCalls {
		msg.Parts = append(msg.Parts, tc)
	}

	if calls := choice.ToolCalls; len(calls) > 0 {
		p.logger.Debug("planner requested %d tool call(s)", len(calls))
	}
	return msg, nil
}

// plannerInstruction builds the per-cycle system message. The summary is a
// hint layered in front of the full raw history, and any uploaded document
// is injected with an explicit priority instruction.
func plannerInstruction(summary, adHocContext string) string {
	adHoc := ""
	if adHocContext != "" {
		adHoc = fmt.Sprintf(
			"--- User-Uploaded Document ---\n%s\n\n"+
				"The user has uploaded the document above. Use its content to help answer their query.\n\n",
			adHocContext)
	}

	return fmt.Sprintf(
		"You are a helpful document intelligence assistant. "+
			"Here is a summary of the conversation so far. Use it for context "+
			"before answering the user's latest query.\n\n"+
			"--- Conversation Summary ---\n%s\n\n"+
			"%s"+
			"To answer questions, you can use the user-uploaded document (if provided) and your available tools. "+
			"Prioritize the user-uploaded document for context if it is relevant to the query.",
		summary, adHoc)
}
