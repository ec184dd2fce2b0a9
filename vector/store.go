// Package vector provides the embedded vector index document chunks are
// retrieved from.
package vector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"

	"github.com/docintel/docintel/log"
	"github.com/docintel/docintel/tool"
)

// DefaultCollection is the collection document chunks are indexed under.
const DefaultCollection = "documents"

// Chunk is one indexable piece of a document.
type Chunk struct {
	ID       string
	Content  string
	Metadata map[string]any
}

// Store wraps a chromem collection behind the retrieval interface the
// tool layer expects. It embeds queries and chunks with the configured
// embedding function and stores vectors in memory, optionally persisted
// to disk.
type Store struct {
	db          *chromem.DB
	collection  *chromem.Collection
	persistPath string
	compress    bool
	logger      log.Logger
}

// Options configures the store.
type Options struct {
	// PersistPath enables file persistence when non-empty. The directory
	// is created if it doesn't exist.
	PersistPath string

	// Compress enables gzip compression for the persisted database.
	Compress bool

	// Collection name, default DefaultCollection.
	Collection string

	// Embedding turns text into vectors. Required.
	Embedding chromem.EmbeddingFunc

	Logger log.Logger
}

// New creates a vector store, loading a previously persisted database when
// one exists at PersistPath.
func New(opts Options) (*Store, error) {
	if opts.Embedding == nil {
		return nil, fmt.Errorf("embedding function is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	var db *chromem.DB
	if opts.PersistPath != "" {
		if err := os.MkdirAll(opts.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}
		dbPath := dbFile(opts.PersistPath, opts.Compress)
		if _, err := os.Stat(dbPath); err == nil {
			loaded, err := chromem.NewPersistentDB(dbPath, opts.Compress)
			if err != nil {
				logger.Warn("failed to load vector database at %s, starting empty: %v", dbPath, err)
				db = chromem.NewDB()
			} else {
				logger.Info("loaded vector database from %s", dbPath)
				db = loaded
			}
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	name := opts.Collection
	if name == "" {
		name = DefaultCollection
	}
	collection, err := db.GetOrCreateCollection(name, nil, opts.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create collection %q: %w", name, err)
	}

	return &Store{
		db:          db,
		collection:  collection,
		persistPath: opts.PersistPath,
		compress:    opts.Compress,
		logger:      logger,
	}, nil
}

func dbFile(persistPath string, compress bool) string {
	name := "vectors.gob"
	if compress {
		name += ".gz"
	}
	return filepath.Join(persistPath, name)
}

// AddChunks embeds and indexes chunks. Chunk metadata values are
// stringified because the underlying index stores string metadata only;
// Search converts chunk_number back.
func (s *Store) AddChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		metadata := make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			metadata[k] = fmt.Sprint(v)
		}
		docs = append(docs, chromem.Document{
			ID:       c.ID,
			Content:  c.Content,
			Metadata: metadata,
		})
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}
	return s.persist()
}

// Search implements tool.Searcher: the k most similar chunks for the
// query text, best first.
func (s *Store) Search(ctx context.Context, query string, k int) ([]tool.Hit, error) {
	if count := s.collection.Count(); k > count {
		k = count
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := s.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	hits := make([]tool.Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, tool.Hit{
			Content:  r.Content,
			Metadata: hitMetadata(r.Metadata),
			Score:    float64(r.Similarity),
		})
	}
	return hits, nil
}

// hitMetadata widens stored string metadata, restoring chunk_number to an
// integer so citation ids come out as path_N rather than path_"N".
func hitMetadata(stored map[string]string) map[string]any {
	metadata := make(map[string]any, len(stored))
	for k, v := range stored {
		if k == "chunk_number" {
			if n, err := strconv.Atoi(v); err == nil {
				metadata[k] = n
				continue
			}
		}
		metadata[k] = v
	}
	return metadata
}

// Count reports the number of indexed chunks.
func (s *Store) Count() int {
	return s.collection.Count()
}

// Close persists the database when persistence is enabled.
func (s *Store) Close() error {
	return s.persist()
}

func (s *Store) persist() error {
	if s.persistPath == "" {
		return nil
	}
	dbPath := dbFile(s.persistPath, s.compress)
	if err := s.db.ExportToFile(dbPath, s.compress, "", s.collection.Name); err != nil {
		return fmt.Errorf("failed to persist vector database: %w", err)
	}
	return nil
}

var _ tool.Searcher = (*Store)(nil)
