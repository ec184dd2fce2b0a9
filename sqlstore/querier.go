package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/docintel/docintel/log"
	"github.com/docintel/docintel/tool"
)

const sqlGenPrompt = `You are a SQLite expert. Given an input question, write a single
syntactically correct SQLite query that answers it. Query only the columns
needed to answer the question, and only columns that exist in the schema
below. Do not modify data.

Only use the following tables:
%s

Question: %s

Respond with ONLY the SQL query.`

// Querier turns natural-language questions into SQL over the structured
// store and executes them. It implements the query interface the tool
// layer expects.
type Querier struct {
	db     *DB
	model  llms.Model
	logger log.Logger
}

// NewQuerier creates a querier using the given model for SQL generation.
func NewQuerier(db *DB, model llms.Model, logger log.Logger) *Querier {
	if logger == nil {
		logger = log.Default()
	}
	return &Querier{db: db, model: model, logger: logger}
}

// GenerateSQL asks the model for a query over the current schema. The
// schema and sample rows are inlined into the prompt so the model sees the
// actual data format.
func (q *Querier) GenerateSQL(ctx context.Context, question string) (string, error) {
	info, err := q.db.TableInfo(ctx)
	if err != nil {
		return "", err
	}
	if info == "" {
		return "", fmt.Errorf("structured store has no tables")
	}

	prompt := fmt.Sprintf(sqlGenPrompt, info, question)
	resp, err := q.model.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)})
	if err != nil {
		return "", fmt.Errorf("SQL generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("SQL generation returned no choices")
	}

	query := StripSQLFences(resp.Choices[0].Content)
	if query == "" {
		return "", fmt.Errorf("SQL generation returned empty query")
	}
	q.logger.Debug("generated SQL: %s", query)
	return query, nil
}

// Run executes the query against the store.
func (q *Querier) Run(ctx context.Context, query string) (string, error) {
	return q.db.Run(ctx, query)
}

// StripSQLFences removes a wrapping markdown code block, which models
// sometimes add despite instructions.
func StripSQLFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```sql") {
		s = strings.TrimPrefix(s, "```sql")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

var _ tool.Querier = (*Querier)(nil)
