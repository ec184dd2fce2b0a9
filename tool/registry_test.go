package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docintel/docintel/log"
)

type fakeSearcher struct {
	hits []Hit
	err  error
}

func (f *fakeSearcher) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.hits) {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

type fakeQuerier struct {
	sql      string
	genErr   error
	result   string
	runErr   error
	ranQuery string
}

func (f *fakeQuerier) GenerateSQL(ctx context.Context, question string) (string, error) {
	return f.sql, f.genErr
}

func (f *fakeQuerier) Run(ctx context.Context, query string) (string, error) {
	f.ranQuery = query
	return f.result, f.runErr
}

func testRegistry(searcher Searcher, querier Querier, loadText func(string) string) *Registry {
	if loadText == nil {
		loadText = func(path string) string { return "full text of " + path }
	}
	return NewRegistry(searcher, querier, loadText, WithLogger(log.NoOpLogger{}))
}

func TestResolve(t *testing.T) {
	t.Parallel()

	r := testRegistry(&fakeSearcher{}, &fakeQuerier{}, nil)

	for name, want := range map[string]Kind{
		NameRetrieveChunks:    KindRetrieveChunks,
		NameRetrieveDocuments: KindRetrieveDocuments,
		NameQueryStructured:   KindQueryStructured,
	} {
		kind, ok := r.Resolve(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, kind)
	}

	_, ok := r.Resolve("does_not_exist")
	assert.False(t, ok)
}

func TestDefinitionsMatchRegisteredTools(t *testing.T) {
	t.Parallel()

	r := testRegistry(&fakeSearcher{}, &fakeQuerier{}, nil)
	defs := r.Definitions()
	require.Len(t, defs, 3)
	for _, def := range defs {
		_, ok := r.Resolve(def.Function.Name)
		assert.True(t, ok, "definition %s has no dispatch target", def.Function.Name)
		assert.NotEmpty(t, def.Function.Description)
	}
}

func TestRetrieveChunks(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{hits: []Hit{
		{Content: "rate is 80%", Metadata: map[string]any{"path": "/docs/x.pdf", "chunk_number": 3}, Score: 0.91},
		{Content: "terms", Metadata: map[string]any{"path": "/docs/y.pdf", "chunk_number": 1}, Score: 0.75},
	}}
	r := testRegistry(searcher, &fakeQuerier{}, nil)

	res, err := r.Dispatch(context.Background(), Call{Name: NameRetrieveChunks, Args: `{"query":"reimbursement"}`})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "rate is 80%", res.Records[0].Content)
	assert.Equal(t, 0.91, res.Records[0].RelevanceScore)

	// Content carries the same records as JSON for the model.
	var decoded []Record
	require.NoError(t, json.Unmarshal([]byte(res.Content), &decoded))
	assert.Len(t, decoded, 2)
}

func TestRetrieveChunksSearchError(t *testing.T) {
	t.Parallel()

	r := testRegistry(&fakeSearcher{err: errors.New("store down")}, &fakeQuerier{}, nil)
	_, err := r.Dispatch(context.Background(), Call{Name: NameRetrieveChunks, Args: `{"query":"q"}`})
	assert.ErrorContains(t, err, "store down")
}

func TestRetrieveDocumentsDeduplicatesPaths(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{hits: []Hit{
		{Content: "a1", Metadata: map[string]any{"path": "/docs/a.pdf"}},
		{Content: "a2", Metadata: map[string]any{"path": "/docs/a.pdf"}},
		{Content: "b1", Metadata: map[string]any{"path": "/docs/b.pdf"}},
		{Content: "c1", Metadata: map[string]any{"path": "/docs/c.pdf"}},
	}}
	r := testRegistry(searcher, &fakeQuerier{}, nil)

	res, err := r.Dispatch(context.Background(), Call{Name: NameRetrieveDocuments, Args: `{"query":"q"}`})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "/docs/a.pdf", res.Records[0].Metadata["path"])
	assert.Equal(t, "/docs/b.pdf", res.Records[1].Metadata["path"])
	assert.Contains(t, res.Records[0].Content, "--- Document: a.pdf ---")
	assert.Contains(t, res.Records[0].Content, "full text of /docs/a.pdf")
}

func TestRetrieveDocumentsNoResults(t *testing.T) {
	t.Parallel()

	r := testRegistry(&fakeSearcher{}, &fakeQuerier{}, nil)
	res, err := r.Dispatch(context.Background(), Call{Name: NameRetrieveDocuments, Args: `{"query":"q"}`})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Contains(t, res.Content, "No relevant documents found")
}

func TestQueryStructured(t *testing.T) {
	t.Parallel()

	querier := &fakeQuerier{sql: "SELECT rate FROM contracts", result: "0.8"}
	r := testRegistry(&fakeSearcher{}, querier, nil)

	res, err := r.Dispatch(context.Background(), Call{Name: NameQueryStructured, Args: `{"query":"what is the rate"}`})
	require.NoError(t, err)
	assert.Nil(t, res.Records)
	assert.Contains(t, res.Content, "Executed SQL Query: SELECT rate FROM contracts")
	assert.Contains(t, res.Content, "Result:\n0.8")
	assert.Equal(t, "SELECT rate FROM contracts", querier.ranQuery)
}

func TestQueryStructuredRunErrorBecomesAdvisoryText(t *testing.T) {
	t.Parallel()

	querier := &fakeQuerier{sql: "SELECT 1", runErr: errors.New("no such table")}
	r := testRegistry(&fakeSearcher{}, querier, nil)

	res, err := r.Dispatch(context.Background(), Call{Name: NameQueryStructured, Args: `{"query":"q"}`})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "no such table")
	assert.Contains(t, res.Content, "rephrasing")
}

func TestDispatchUnknownTool(t *testing.T) {
	t.Parallel()

	r := testRegistry(&fakeSearcher{}, &fakeQuerier{}, nil)
	_, err := r.Dispatch(context.Background(), Call{Name: "nope", Args: "{}"})
	assert.ErrorContains(t, err, "unknown tool")
}

func TestParseQueryFallsBackToRawArgs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hello", parseQuery(`{"query":"hello"}`))
	assert.Equal(t, "plain text", parseQuery("plain text"))
	assert.Equal(t, `{"other":"x"}`, parseQuery(`{"other":"x"}`))
}
