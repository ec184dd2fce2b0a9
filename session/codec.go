package session

import (
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/docintel/docintel/agent"
)

// Wire form for persisted state. Message parts are flattened into plain
// fields because the part types behind llms.ContentPart do not round-trip
// through encoding/json on their own.
type storedState struct {
	Messages []storedMessage      `json:"messages"`
	Sources  []agent.SourceRecord `json:"source_documents"`
}

type storedMessage struct {
	Role      string           `json:"role"`
	Text      string           `json:"text,omitempty"`
	ToolCalls []storedToolCall `json:"tool_calls,omitempty"`
	ToolReply *storedToolReply `json:"tool_reply,omitempty"`
}

type storedToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type storedToolReply struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// EncodeState serializes durable session state to JSON. Per-turn context
// is never encoded.
func EncodeState(state agent.State) ([]byte, error) {
	stored := storedState{
		Messages: make([]storedMessage, 0, len(state.Messages)),
		Sources:  state.Sources,
	}

	for _, msg := range state.Messages {
		sm := storedMessage{Role: string(msg.Role)}
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				sm.Text += p.Text
			case llms.ToolCall:
				if p.FunctionCall == nil {
					continue
				}
				sm.ToolCalls = append(sm.ToolCalls, storedToolCall{
					ID:        p.ID,
					Name:      p.FunctionCall.Name,
					Arguments: p.FunctionCall.Arguments,
				})
			case llms.ToolCallResponse:
				sm.ToolReply = &storedToolReply{
					CallID:  p.ToolCallID,
					Name:    p.Name,
					Content: p.Content,
				}
			default:
				return nil, fmt.Errorf("unsupported message part %T", part)
			}
		}
		stored.Messages = append(stored.Messages, sm)
	}

	return json.Marshal(stored)
}

// DecodeState deserializes state previously produced by EncodeState.
func DecodeState(data []byte) (agent.State, error) {
	var stored storedState
	if err := json.Unmarshal(data, &stored); err != nil {
		return agent.State{}, fmt.Errorf("decode session state: %w", err)
	}

	state := agent.State{Sources: stored.Sources}
	for _, sm := range stored.Messages {
		msg := llms.MessageContent{Role: llms.ChatMessageType(sm.Role)}
		if sm.Text != "" {
			msg.Parts = append(msg.Parts, llms.TextContent{Text: sm.Text})
		}
		for _, tc := range sm.ToolCalls {
			msg.Parts = append(msg.Parts, llms.ToolCall{
				ID:   tc.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		if sm.ToolReply != nil {
			msg.Parts = append(msg.Parts, llms.ToolCallResponse{
				ToolCallID: sm.ToolReply.CallID,
				Name:       sm.ToolReply.Name,
				Content:    sm.ToolReply.Content,
			})
		}
		state.Messages = append(state.Messages, msg)
	}
	return state, nil
}
