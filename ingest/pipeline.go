// Package ingest builds the retrieval indexes: it loads the document
// corpus, derives categories and per-category table schemas, extracts
// structured records, and chunks text into the vector index.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/docintel/docintel/extract"
	"github.com/docintel/docintel/log"
	"github.com/docintel/docintel/sqlstore"
	"github.com/docintel/docintel/vector"
)

// Chunking defaults, tuned for retrieval granularity.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Pipeline wires the ingestion steps together.
type Pipeline struct {
	analyzer     *Analyzer
	db           *sqlstore.DB
	vectors      *vector.Store
	chunkSize    int
	chunkOverlap int
	logger       log.Logger
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithChunking overrides the chunk size and overlap.
func WithChunking(size, overlap int) PipelineOption {
	return func(p *Pipeline) {
		p.chunkSize = size
		p.chunkOverlap = overlap
	}
}

// NewPipeline creates an ingestion pipeline over the structured store and
// vector index.
func NewPipeline(analyzer *Analyzer, db *sqlstore.DB, vectors *vector.Store, logger log.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	p := &Pipeline{
		analyzer:     analyzer,
		db:           db,
		vectors:      vectors,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run ingests every supported document under docDir: discovers
// categories, designs and creates one table per category, then extracts a
// structured record and indexes text chunks for each document. Documents
// that fail a model step are skipped, not fatal.
func (p *Pipeline) Run(ctx context.Context, docDir string) error {
	texts, err := LoadDocumentTexts(docDir, p.logger)
	if err != nil {
		return err
	}
	if len(texts) == 0 {
		return fmt.Errorf("no supported documents found in %s", docDir)
	}

	filenames := make([]string, 0, len(texts))
	for name := range texts {
		filenames = append(filenames, name)
	}
	sort.Strings(filenames)

	p.logger.Info("discovering categories over %d documents", len(texts))
	combined := make([]string, 0, len(filenames))
	for _, name := range filenames {
		combined = append(combined, texts[name])
	}
	categories, err := p.analyzer.DiscoverCategories(ctx, strings.Join(combined, "\n\n"))
	if err != nil {
		return err
	}
	if len(categories) == 0 {
		return fmt.Errorf("no categories discovered")
	}
	p.logger.Info("discovered categories: %s", strings.Join(categories, ", "))

	// Classify everything up front so schema design can use a document of
	// the right category as its sample.
	docCategories := make(map[string]string, len(texts))
	sampleByCategory := make(map[string]string)
	for _, name := range filenames {
		category, err := p.analyzer.Classify(ctx, texts[name], categories)
		if err != nil {
			p.logger.Warn("could not classify %s: %v", name, err)
			continue
		}
		docCategories[name] = category
		if _, ok := sampleByCategory[category]; !ok {
			sampleByCategory[category] = texts[name]
		}
	}

	schemas := make(map[string]string)
	for category, sample := range sampleByCategory {
		p.logger.Info("designing schema for category %q", category)
		schema, err := p.analyzer.DesignSchema(ctx, sample, category)
		if err != nil {
			p.logger.Warn("schema design failed for %q: %v", category, err)
			continue
		}
		if err := p.db.CreateTableFromSchema(ctx, schema); err != nil {
			p.logger.Warn("table creation failed for %q: %v", category, err)
			continue
		}
		schemas[category] = schema
	}

	for _, name := range filenames {
		if err := p.ingestDocument(ctx, docDir, name, texts[name], docCategories[name], schemas); err != nil {
			p.logger.Warn("skipping %s: %v", name, err)
		}
	}

	p.logger.Info("ingestion complete: %d chunks indexed", p.vectors.Count())
	return nil
}

func (p *Pipeline) ingestDocument(ctx context.Context, docDir, filename, text, category string, schemas map[string]string) error {
	if category == "" {
		return fmt.Errorf("document was not classified")
	}

	if schema, ok := schemas[category]; ok {
		record, err := p.analyzer.ExtractRecord(ctx, text, schema)
		if err != nil {
			p.logger.Warn("record extraction failed for %s: %v", filename, err)
		} else if len(record) > 0 {
			table := sqlstore.SanitizeTableName(category)
			if err := p.db.Insert(ctx, table, record); err != nil {
				p.logger.Warn("record insert failed for %s: %v", filename, err)
			}
		}
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(p.chunkSize),
		textsplitter.WithChunkOverlap(p.chunkOverlap),
	)
	pieces, err := splitter.SplitText(text)
	if err != nil {
		return fmt.Errorf("chunking failed: %w", err)
	}

	path := filepath.Join(docDir, filename)
	chunks := make([]vector.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, vector.Chunk{
			ID:      fmt.Sprintf("%s_%d", path, i+1),
			Content: piece,
			Metadata: map[string]any{
				"title":        filename,
				"path":         path,
				"category":     category,
				"chunk_number": i + 1,
			},
		})
	}

	p.logger.Info("indexing %d chunks from %s", len(chunks), filename)
	return p.vectors.AddChunks(ctx, chunks)
}

// LoadDocumentTexts extracts the text of every supported document in dir,
// keyed by filename. Unreadable documents are skipped with a warning.
func LoadDocumentTexts(dir string, logger log.Logger) (map[string]string, error) {
	if logger == nil {
		logger = log.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read document directory: %w", err)
	}

	texts := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !extract.Supported(entry.Name()) {
			continue
		}
		text := extract.Text(filepath.Join(dir, entry.Name()))
		if strings.TrimSpace(text) == "" {
			logger.Warn("no text extracted from %s", entry.Name())
			continue
		}
		texts[entry.Name()] = text
	}
	logger.Info("loaded %d documents from %s", len(texts), dir)
	return texts, nil
}
