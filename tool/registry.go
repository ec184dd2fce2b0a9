// Package tool defines the capabilities the conversational agent can invoke:
// chunk retrieval, full-document retrieval and structured-data querying.
// Each tool is a tagged variant with its own argument shape; dispatch is an
// exhaustive switch over the tag rather than stringly-typed payload probing.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/tmc/langchaingo/llms"

	"github.com/docintel/docintel/log"
)

// Tool names as announced to the model.
const (
	NameRetrieveChunks    = "retrieve_relevant_chunks"
	NameRetrieveDocuments = "retrieve_full_documents"
	NameQueryStructured   = "query_structured_data"
)

// Kind tags the tool variants.
type Kind int

const (
	// KindRetrieveChunks retrieves the most relevant chunks from the vector store.
	KindRetrieveChunks Kind = iota
	// KindRetrieveDocuments retrieves the full text of the most relevant documents.
	KindRetrieveDocuments
	// KindQueryStructured answers factual questions against the relational store.
	KindQueryStructured
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindRetrieveChunks:
		return NameRetrieveChunks
	case KindRetrieveDocuments:
		return NameRetrieveDocuments
	case KindQueryStructured:
		return NameQueryStructured
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Hit is one similarity-search result from the vector store.
type Hit struct {
	Content  string
	Metadata map[string]any
	Score    float64
}

// Searcher is the vector-store capability the retrieval tools consume.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Hit, error)
}

// Querier is the relational-store capability behind the structured tool:
// it turns a natural-language question into SQL and executes it.
type Querier interface {
	GenerateSQL(ctx context.Context, question string) (string, error)
	Run(ctx context.Context, query string) (string, error)
}

// Record is one structured retrieval hit, the unit citations are derived
// from.
type Record struct {
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata"`
	RelevanceScore float64        `json:"relevance_score,omitempty"`
}

// Result is the outcome of one tool dispatch. Content is the text placed in
// the tool message; Records carries structured hits for citation extraction
// and is nil for free-text tools.
type Result struct {
	Content string
	Records []Record
}

// Call is one tool invocation requested by the model.
type Call struct {
	ID   string
	Name string
	Args string
}

// Registry holds the fixed tool set and its backing capabilities.
type Registry struct {
	searcher Searcher
	querier  Querier
	loadText func(path string) string
	logger   log.Logger

	chunkTopK    int
	documentTopK int
}

// Option configures a Registry.
type Option func(*Registry)

// WithChunkTopK sets how many chunks the chunk-retrieval tool returns.
func WithChunkTopK(k int) Option {
	return func(r *Registry) { r.chunkTopK = k }
}

// WithDocumentTopK sets how many full documents the document-retrieval tool
// returns.
func WithDocumentTopK(k int) Option {
	return func(r *Registry) { r.documentTopK = k }
}

// WithLogger sets the registry logger.
func WithLogger(logger log.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates the tool registry. loadText extracts the full text of
// a document by path and must degrade errors to message strings.
func NewRegistry(searcher Searcher, querier Querier, loadText func(path string) string, opts ...Option) *Registry {
	r := &Registry{
		searcher:     searcher,
		querier:      querier,
		loadText:     loadText,
		logger:       log.Default(),
		chunkTopK:    5,
		documentTopK: 2,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps a wire name to its kind.
func (r *Registry) Resolve(name string) (Kind, bool) {
	switch name {
	case NameRetrieveChunks:
		return KindRetrieveChunks, true
	case NameRetrieveDocuments:
		return KindRetrieveDocuments, true
	case NameQueryStructured:
		return KindQueryStructured, true
	default:
		return 0, false
	}
}

// Definitions returns the tool schemas bound to the planning model.
func (r *Registry) Definitions() []llms.Tool {
	queryParams := func(description string) map[string]any {
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": description,
				},
			},
			"required":             []string{"query"},
			"additionalProperties": false,
		}
	}

	return []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name: NameRetrieveChunks,
				Description: "Retrieves the most relevant document chunks from the vector store based on a query. " +
					"Useful for getting specific, targeted information from the documents.",
				Parameters: queryParams("The search query."),
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name: NameRetrieveDocuments,
				Description: "Retrieves the full text of the most relevant documents. " +
					"Useful when a broader context is needed to answer a question.",
				Parameters: queryParams("The search query."),
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name: NameQueryStructured,
				Description: "Accepts a natural language question about factual information, converts it to a SQL query, " +
					"executes it against the structured database, and returns the result. " +
					"Useful for questions about specific numbers, dates, parties, or other structured data.",
				Parameters: queryParams("The natural language question."),
			},
		},
	}
}

// queryArgs is the argument shape shared by all three tools.
type queryArgs struct {
	Query string `json:"query"`
}

// parseQuery decodes the JSON argument payload. A malformed payload falls
// back to treating the raw text as the query so a sloppy model call still
// does something useful.
func parseQuery(raw string) string {
	var args queryArgs
	if err := json.Unmarshal([]byte(raw), &args); err == nil && args.Query != "" {
		return args.Query
	}
	return raw
}

// Dispatch executes one tool call. The returned error marks an
// infrastructure failure of the call itself; domain-level misses (no
// results, failed SQL) are reported as Result content so the model can
// react to them.
func (r *Registry) Dispatch(ctx context.Context, call Call) (Result, error) {
	kind, ok := r.Resolve(call.Name)
	if !ok {
		return Result{}, fmt.Errorf("unknown tool: %s", call.Name)
	}

	query := parseQuery(call.Args)

	switch kind {
	case KindRetrieveChunks:
		return r.retrieveChunks(ctx, query)
	case KindRetrieveDocuments:
		return r.retrieveDocuments(ctx, query)
	case KindQueryStructured:
		return r.queryStructured(ctx, query)
	default:
		return Result{}, fmt.Errorf("unhandled tool kind: %d", kind)
	}
}

func (r *Registry) retrieveChunks(ctx context.Context, query string) (Result, error) {
	hits, err := r.searcher.Search(ctx, query, r.chunkTopK)
	if err != nil {
		return Result{}, fmt.Errorf("chunk retrieval failed: %w", err)
	}

	records := make([]Record, 0, len(hits))
	for _, hit := range hits {
		records = append(records, Record{
			Content:        hit.Content,
			Metadata:       hit.Metadata,
			RelevanceScore: hit.Score,
		})
	}
	return resultFromRecords(records)
}

func (r *Registry) retrieveDocuments(ctx context.Context, query string) (Result, error) {
	// Over-fetch chunks to increase the chance of hitting diverse documents.
	hits, err := r.searcher.Search(ctx, query, r.documentTopK*5)
	if err != nil {
		return Result{}, fmt.Errorf("document retrieval failed: %w", err)
	}

	var paths []string
	seen := make(map[string]bool)
	for _, hit := range hits {
		path, _ := hit.Metadata["path"].(string)
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		paths = append(paths, path)
		if len(paths) >= r.documentTopK {
			break
		}
	}

	if len(paths) == 0 {
		r.logger.Warn("no documents found for query: %q", query)
		return Result{Content: "No relevant documents found."}, nil
	}

	records := make([]Record, 0, len(paths))
	for _, path := range paths {
		filename := filepath.Base(path)
		text := r.loadText(path)
		records = append(records, Record{
			Content: fmt.Sprintf("--- Document: %s ---\n\n%s", filename, text),
			Metadata: map[string]any{
				"path":     path,
				"filename": filename,
			},
		})
	}
	return resultFromRecords(records)
}

func (r *Registry) queryStructured(ctx context.Context, question string) (Result, error) {
	sql, err := r.querier.GenerateSQL(ctx, question)
	if err != nil {
		return Result{}, fmt.Errorf("SQL generation failed: %w", err)
	}
	r.logger.Info("generated SQL query: %s", sql)

	result, err := r.querier.Run(ctx, sql)
	if err != nil {
		r.logger.Error("structured query failed for %q: %v", question, err)
		// Advisory text rather than a failure: the model can rephrase.
		return Result{Content: fmt.Sprintf(
			"An error occurred while querying the database: %v. "+
				"Please check if your question is valid for the available tables "+
				"or try rephrasing your question.", err)}, nil
	}

	return Result{Content: fmt.Sprintf("Executed SQL Query: %s\n\nResult:\n%s", sql, result)}, nil
}

// resultFromRecords renders records to JSON for the tool message while
// keeping the structured form for citation extraction.
func resultFromRecords(records []Record) (Result, error) {
	payload, err := json.Marshal(records)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return Result{Content: string(payload), Records: records}, nil
}
