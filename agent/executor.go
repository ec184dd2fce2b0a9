package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"github.com/docintel/docintel/graph"
	"github.com/docintel/docintel/log"
	"github.com/docintel/docintel/tool"
)

// Executor runs the tool calls of one planner cycle and merges the cited
// sources into session state.
type Executor struct {
	registry *tool.Registry
	logger   log.Logger
}

// NewExecutor creates a tool executor over the registry.
func NewExecutor(registry *tool.Registry, logger log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{registry: registry, logger: logger}
}

// Execute dispatches every requested call and returns one tool message per
// call, in request order, plus the updated source list. Calls run
// concurrently; a failing call becomes a tool message carrying the error
// text and never aborts its siblings. The source merge is sequential, so
// executing the same batch twice cannot duplicate source ids.
func (e *Executor) Execute(ctx context.Context, calls []llms.ToolCall, sources []SourceRecord) ([]llms.MessageContent, []SourceRecord, error) {
	results := make([]tool.Result, len(calls))
	contents := make([]string, len(calls))

	var wg sync.WaitGroup
	for i, tc := range calls {
		if tc.FunctionCall == nil {
			contents[i] = "Error: tool call without a function payload"
			continue
		}
		graph.Emit(ctx, graph.Event{Type: graph.EventToolStart, Node: NodeAction, Tool: tc.FunctionCall.Name})

		wg.Add(1)
		go func(i int, tc llms.ToolCall) {
			defer wg.Done()
			res, err := e.registry.Dispatch(ctx, tool.Call{
				ID:   tc.ID,
				Name: tc.FunctionCall.Name,
				Args: tc.FunctionCall.Arguments,
			})
			if err != nil {
				e.logger.Warn("tool %s failed: %v", tc.FunctionCall.Name, err)
				contents[i] = fmt.Sprintf("Error: %v", err)
				return
			}
			results[i] = res
			contents[i] = res.Content
		}(i, tc)
	}
	wg.Wait()

	messages := make([]llms.MessageContent, 0, len(calls))
	for i, tc := range calls {
		name := ""
		if tc.FunctionCall != nil {
			name = tc.FunctionCall.Name
		}
		messages = append(messages, llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{
				llms.ToolCallResponse{
					ToolCallID: tc.ID,
					Name:       name,
					Content:    contents[i],
				},
			},
		})
	}

	merged := sources
	for _, res := range results {
		merged = mergeSources(merged, res.Records)
	}
	return messages, merged, nil
}

// mergeSources appends records whose derived id is not yet present.
// Insertion order is preserved and first-seen records win; re-merging the
// same batch is a no-op.
func mergeSources(existing []SourceRecord, records []tool.Record) []SourceRecord {
	if len(records) == 0 {
		return existing
	}

	seen := make(map[string]bool, len(existing))
	for _, src := range existing {
		seen[src.ID] = true
	}

	for _, rec := range records {
		src, ok := sourceFromRecord(rec)
		if !ok || seen[src.ID] {
			continue
		}
		existing = append(existing, src)
		seen[src.ID] = true
	}
	return existing
}

// sourceFromRecord derives a citation unit from a retrieval record. Records
// without any path cannot be cited and are skipped.
func sourceFromRecord(rec tool.Record) (SourceRecord, bool) {
	path := metadataString(rec.Metadata, "path")
	if path == "" {
		path = metadataString(rec.Metadata, "filename")
	}
	if path == "" {
		return SourceRecord{}, false
	}

	chunk := metadataInt(rec.Metadata, "chunk_number", -1)

	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]any{"path": path}
	}

	return SourceRecord{
		ID:       fmt.Sprintf("%s_%d", path, chunk),
		Content:  rec.Content,
		Metadata: metadata,
	}, true
}

func metadataString(metadata map[string]any, key string) string {
	s, _ := metadata[key].(string)
	return s
}

// metadataInt reads an integer that may arrive as int, float64 (JSON) or a
// numeric string.
func metadataInt(metadata map[string]any, key string, fallback int) int {
	switch v := metadata[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}
