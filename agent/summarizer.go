package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/llms"
)

const summaryPrompt = `Please provide a concise, high-level summary of the following conversation.
Focus on the key questions asked and the main findings. Do not summarize turn-by-turn.

Conversation History:
---
%s
---

High-level Summary:`

// defaultSummaryBudget caps the transcript handed to the summary model, in
// tokens. Older turns are dropped from the front; the summary is a hint,
// not a replacement for history.
const defaultSummaryBudget = 6000

// Summarizer reduces a message history into a short textual digest. It runs
// once per planner visit, so every loop iteration re-summarizes the now
// longer history.
type Summarizer struct {
	model       llms.Model
	tokenBudget int
}

// NewSummarizer creates a summarizer around the given model.
func NewSummarizer(model llms.Model) *Summarizer {
	return &Summarizer{model: model, tokenBudget: defaultSummaryBudget}
}

// SetTokenBudget overrides the transcript token budget. Values <= 0 restore
// the default.
func (s *Summarizer) SetTokenBudget(n int) {
	if n <= 0 {
		n = defaultSummaryBudget
	}
	s.tokenBudget = n
}

// Summarize produces a digest of the history. An empty history yields an
// empty summary without a model call.
func (s *Summarizer) Summarize(ctx context.Context, messages []llms.MessageContent) (string, error) {
	text := transcript(messages)
	if text == "" {
		return "", nil
	}
	text = truncateToTokens(text, s.tokenBudget)

	prompt := fmt.Sprintf(summaryPrompt, text)
	resp, err := s.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return "", fmt.Errorf("summarization failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summarization returned no choices")
	}
	return resp.Choices[0].Content, nil
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// truncateToTokens keeps the trailing `limit` tokens of text. The tail is
// kept because the most recent turns matter most to the digest. Falls back
// to a rune-count heuristic if the encoding is unavailable.
func truncateToTokens(text string, limit int) string {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})

	if encoding == nil {
		// Rough heuristic: ~4 runes per token.
		runes := []rune(text)
		max := limit * 4
		if len(runes) <= max {
			return text
		}
		return string(runes[len(runes)-max:])
	}

	tokens := encoding.Encode(text, nil, nil)
	if len(tokens) <= limit {
		return text
	}
	return encoding.Decode(tokens[len(tokens)-limit:])
}
