package ingest

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/docintel/docintel/log"
	"github.com/docintel/docintel/sqlstore"
	"github.com/docintel/docintel/vector"
)

// routingModel answers each analysis prompt by matching on its fixed
// phrasing, so one fake serves the whole pipeline.
type routingModel struct {
	categories string
	category   string
	schema     string
	record     string
}

func (m *routingModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var prompt string
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt += text.Text
			}
		}
	}

	var reply string
	switch {
	case strings.Contains(prompt, "suggest 3-5 potential high-level"):
		reply = m.categories
	case strings.Contains(prompt, "expert document classifier"):
		reply = m.category
	case strings.Contains(prompt, "expert database administrator"):
		reply = m.schema
	case strings.Contains(prompt, "expert data extraction agent"):
		reply = m.record
	default:
		reply = "{}"
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (m *routingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", nil
}

func testEmbedding() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vec := make([]float32, 4)
		for i, r := range text {
			vec[i%4] += float32(r)
		}
		var norm float32
		for _, v := range vec {
			norm += v * v
		}
		norm = float32(math.Sqrt(float64(norm)))
		if norm == 0 {
			norm = 1
		}
		for i := range vec {
			vec[i] /= norm
		}
		return vec, nil
	}
}

func TestAnalyzerDiscoverCategories(t *testing.T) {
	t.Parallel()

	model := &routingModel{
		categories: "```json\n{\"categories\": [\"Healthcare Service Agreements\", \" Healthcare Service Agreements \", \"Compliance Documents\"]}\n```",
	}
	analyzer := NewAnalyzer(model, nil, log.NoOpLogger{})

	categories, err := analyzer.DiscoverCategories(context.Background(), "corpus text")
	require.NoError(t, err)
	assert.Equal(t, []string{"Compliance Documents", "Healthcare Service Agreements"}, categories)
}

func TestAnalyzerClassifyRejectsUnknownCategory(t *testing.T) {
	t.Parallel()

	model := &routingModel{category: `{"category": "Made Up"}`}
	analyzer := NewAnalyzer(model, nil, log.NoOpLogger{})

	_, err := analyzer.Classify(context.Background(), "doc", []string{"Compliance Documents"})
	assert.ErrorContains(t, err, "unknown category")
}

func TestAnalyzerDesignSchemaValidatesDDL(t *testing.T) {
	t.Parallel()

	model := &routingModel{schema: "here is your schema"}
	analyzer := NewAnalyzer(model, nil, log.NoOpLogger{})

	_, err := analyzer.DesignSchema(context.Background(), "doc", "Compliance Documents")
	assert.ErrorContains(t, err, "CREATE TABLE")
}

func TestAnalyzerExtractRecordDropsPrimaryKey(t *testing.T) {
	t.Parallel()

	model := &routingModel{record: `{"id": 7, "contract_name": "Contract X"}`}
	analyzer := NewAnalyzer(model, nil, log.NoOpLogger{})

	record, err := analyzer.ExtractRecord(context.Background(), "doc", "CREATE TABLE t (id INTEGER)")
	require.NoError(t, err)
	assert.NotContains(t, record, "id")
	assert.Equal(t, "Contract X", record["contract_name"])
}

func TestLoadDocumentTexts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "contract.txt"), []byte("the rate is 80%"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skipped.zip"), []byte("zip"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.txt"), []byte("   "), 0o644))

	texts, err := LoadDocumentTexts(dir, log.NoOpLogger{})
	require.NoError(t, err)
	require.Len(t, texts, 1)
	assert.Equal(t, "the rate is 80%", texts["contract.txt"])
}

func TestPipelineRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	longText := strings.Repeat("The reimbursement rate for inpatient care under Contract X is 80%. ", 40)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "contract.txt"), []byte(longText), 0o644))

	model := &routingModel{
		categories: `{"categories": ["Healthcare Service Agreements"]}`,
		category:   `{"category": "Healthcare Service Agreements"}`,
		schema: "```sql\nCREATE TABLE healthcare_service_agreements (" +
			"id INTEGER PRIMARY KEY, contract_name TEXT, reimbursement_rates TEXT)\n```",
		record: `{"contract_name": "Contract X", "reimbursement_rates": {"inpatient": "80%"}}`,
	}

	db, err := sqlstore.Open(":memory:", log.NoOpLogger{})
	require.NoError(t, err)
	defer db.Close()

	vectors, err := vector.New(vector.Options{Embedding: testEmbedding(), Logger: log.NoOpLogger{}})
	require.NoError(t, err)

	pipeline := NewPipeline(NewAnalyzer(model, nil, log.NoOpLogger{}), db, vectors, log.NoOpLogger{},
		WithChunking(200, 50))

	ctx := context.Background()
	require.NoError(t, pipeline.Run(ctx, dir))

	// Structured record landed in the category table.
	out, err := db.Run(ctx, "SELECT contract_name FROM healthcare_service_agreements")
	require.NoError(t, err)
	assert.Contains(t, out, "Contract X")

	// Chunks landed in the vector index with citation metadata.
	require.Greater(t, vectors.Count(), 1)
	hits, err := vectors.Search(ctx, "reimbursement rate", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, filepath.Join(dir, "contract.txt"), hits[0].Metadata["path"])
	assert.Equal(t, "Healthcare Service Agreements", hits[0].Metadata["category"])
	assert.Equal(t, "contract.txt", hits[0].Metadata["title"])
	assert.NotZero(t, hits[0].Metadata["chunk_number"])
}

func TestPipelineRunEmptyDirFails(t *testing.T) {
	t.Parallel()

	db, err := sqlstore.Open(":memory:", log.NoOpLogger{})
	require.NoError(t, err)
	defer db.Close()

	vectors, err := vector.New(vector.Options{Embedding: testEmbedding(), Logger: log.NoOpLogger{}})
	require.NoError(t, err)

	pipeline := NewPipeline(NewAnalyzer(&routingModel{}, nil, log.NoOpLogger{}), db, vectors, log.NoOpLogger{})
	err = pipeline.Run(context.Background(), t.TempDir())
	assert.ErrorContains(t, err, "no supported documents")
}
