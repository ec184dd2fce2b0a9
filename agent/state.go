// Package agent implements the conversational orchestration core: a cyclic
// planner / tool-executor / finalizer graph over per-session state, with
// source-citation tracking and per-turn summarization.
package agent

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// SourceRecord is one deduplicated citation unit derived from tool output.
// ID is `{path}_{chunk_number}` with -1 standing in for chunkless records.
type SourceRecord struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// State is the unit of session persistence flowing through the graph.
//
// Messages is append-only and never reordered or truncated. Sources
// accumulates unique records across the whole session. AdHocContext holds
// text from a document uploaded for exactly one turn; the boundary clears
// it before persisting and before every new turn.
type State struct {
	Messages     []llms.MessageContent `json:"messages"`
	Sources      []SourceRecord        `json:"source_documents"`
	AdHocContext string                `json:"-"`
}

// FinalAnswer returns the text of the last message, which after a completed
// turn is the finalizer's output.
func (s State) FinalAnswer() string {
	last, ok := lastMessage(s.Messages)
	if !ok {
		return ""
	}
	return messageText(last)
}

// lastMessage returns the final message of a history.
func lastMessage(messages []llms.MessageContent) (llms.MessageContent, bool) {
	if len(messages) == 0 {
		return llms.MessageContent{}, false
	}
	return messages[len(messages)-1], true
}

// toolCallsOf extracts the tool-call parts of a message, in order.
func toolCallsOf(msg llms.MessageContent) []llms.ToolCall {
	var calls []llms.ToolCall
	for _, part := range msg.Parts {
		if tc, ok := part.(llms.ToolCall); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// messageText concatenates the textual parts of a message, including tool
// responses.
func messageText(msg llms.MessageContent) string {
	var text string
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			text += p.Text
		case llms.ToolCallResponse:
			text += p.Content
		}
	}
	return text
}

// transcript renders a history as "role: content" lines for summarization.
func transcript(messages []llms.MessageContent) string {
	var out string
	for i, msg := range messages {
		if i > 0 {
			out += "\n"
		}
		out += fmt.Sprintf("%s: %s", msg.Role, messageText(msg))
	}
	return out
}
