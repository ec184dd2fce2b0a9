package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/docintel/docintel/log"
)

// Finalizer synthesizes the user-facing answer once no further tool calls
// are requested. It never calls tools and never mutates the source list.
type Finalizer struct {
	model   llms.Model
	baseURL string
	logger  log.Logger
}

// NewFinalizer creates a finalizer. baseURL is the public prefix citation
// links are built from.
func NewFinalizer(model llms.Model, baseURL string, logger log.Logger) *Finalizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Finalizer{model: model, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// Finalize asks the synthesis model for an answer over the history minus
// its last element (the contentless routing message that triggered
// termination) and appends the citation block.
func (f *Finalizer) Finalize(ctx context.Context, state State) (llms.MessageContent, error) {
	history := state.Messages
	if len(history) > 0 {
		history = history[:len(history)-1]
	}

	resp, err := f.model.GenerateContent(ctx, history)
	if err != nil {
		return llms.MessageContent{}, fmt.Errorf("answer synthesis failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llms.MessageContent{}, fmt.Errorf("answer synthesis returned no choices")
	}

	// Some models over-escape newlines in plain answers.
	answer := strings.ReplaceAll(resp.Choices[0].Content, `\n`, "\n")

	if block := RenderCitations(state.Sources, f.baseURL); block != "" {
		answer += block
	}

	return llms.TextParts(llms.ChatMessageTypeAI, answer), nil
}

// RenderCitations builds the Markdown source block for the answer: one link
// per unique citation URL, in first-encountered order. Records without a
// path are skipped; an empty source list yields an empty string.
func RenderCitations(sources []SourceRecord, baseURL string) string {
	type link struct {
		url      string
		filename string
	}

	var links []link
	seen := make(map[string]bool)
	for _, src := range sources {
		path := metadataString(src.Metadata, "path")
		if path == "" {
			continue
		}
		filename := filepath.Base(path)
		url := baseURL + "/documents/" + filename
		if seen[url] {
			continue
		}
		seen[url] = true
		links = append(links, link{url: url, filename: filename})
	}

	if len(links) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\n---\n**Sources:**\n")
	for _, l := range links {
		fmt.Fprintf(&b, "- [%s](%s)\n", l.filename, l.url)
	}
	return b.String()
}
