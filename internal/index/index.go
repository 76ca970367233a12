// Package index stores chunk embeddings per document and answers top-K
// nearest-neighbour queries by cosine similarity.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/bull/studyflow/internal/study"
)

// ErrDimensionMismatch indicates vectors of different lengths were compared or stored together.
var ErrDimensionMismatch = fmt.Errorf("%w: embedding dimension mismatch", study.ErrInvalidInput)

// Store is a similarity index backend. Index replaces the whole chunk set for a
// document. Search on an unindexed document returns an empty result and no error.
type Store interface {
	Index(ctx context.Context, documentID string, chunks []*study.Chunk) error
	Search(ctx context.Context, documentID string, query []float32, topK int) ([]study.ScoredChunk, error)
	Delete(ctx context.Context, documentID string) error
}

type entry struct {
	chunks    []*study.Chunk
	norms     []float64
	dimension int
}

// Memory is an in-process Store. Entries for different documents are
// independent; each is replaced wholesale on Index.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *slog.Logger
}

// NewMemory creates an empty in-memory index.
func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Index validates that every chunk carries an embedding of one shared
// dimension, then replaces the document's entry. Nothing is stored on error.
func (m *Memory) Index(ctx context.Context, documentID string, chunks []*study.Chunk) error {
	if documentID == "" {
		return fmt.Errorf("%w: empty document id", study.ErrInvalidInput)
	}

	e, err := newEntry(chunks)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.entries[documentID] = e
	m.mu.Unlock()

	m.logger.Debug("indexed document", "document_id", documentID, "chunks", len(chunks), "dimension", e.dimension)
	return nil
}

func newEntry(chunks []*study.Chunk) (*entry, error) {
	e := &entry{
		chunks: make([]*study.Chunk, len(chunks)),
		norms:  make([]float64, len(chunks)),
	}
	for i, c := range chunks {
		if c == nil || len(c.Embedding) == 0 {
			return nil, fmt.Errorf("%w: chunk %d has no embedding", study.ErrInvalidInput, i)
		}
		if i == 0 {
			e.dimension = len(c.Embedding)
		} else if len(c.Embedding) != e.dimension {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(c.Embedding), e.dimension)
		}
		e.chunks[i] = c
	}
	// Search ties resolve by chunk index, so keep entries in index order.
	sort.SliceStable(e.chunks, func(a, b int) bool { return e.chunks[a].Index < e.chunks[b].Index })
	for i, c := range e.chunks {
		e.norms[i] = Norm(c.Embedding)
	}
	return e, nil
}

// Search ranks the document's chunks by descending cosine similarity to query.
func (m *Memory) Search(ctx context.Context, documentID string, query []float32, topK int) ([]study.ScoredChunk, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", study.ErrInvalidInput, topK)
	}

	m.mu.RLock()
	e, ok := m.entries[documentID]
	m.mu.RUnlock()
	if !ok || len(e.chunks) == 0 {
		return []study.ScoredChunk{}, nil
	}
	if len(query) != e.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), e.dimension)
	}

	qNorm := Norm(query)
	scored := make([]study.ScoredChunk, len(e.chunks))
	for i, c := range e.chunks {
		scored[i] = study.ScoredChunk{
			Chunk: c,
			Score: cosine(query, c.Embedding, qNorm, e.norms[i]),
		}
	}
	sort.SliceStable(scored, func(a, b int) bool { return scored[a].Score > scored[b].Score })

	if topK < len(scored) {
		scored = scored[:topK]
	}
	return scored, nil
}

// Query is Search without scores.
func (m *Memory) Query(ctx context.Context, documentID string, query []float32, topK int) ([]*study.Chunk, error) {
	scored, err := m.Search(ctx, documentID, query, topK)
	if err != nil {
		return nil, err
	}
	chunks := make([]*study.Chunk, len(scored))
	for i, s := range scored {
		chunks[i] = s.Chunk
	}
	return chunks, nil
}

// Delete drops the document's entry. Deleting an unknown document is a no-op.
func (m *Memory) Delete(ctx context.Context, documentID string) error {
	m.mu.Lock()
	delete(m.entries, documentID)
	m.mu.Unlock()
	return nil
}

// Len reports how many documents are indexed.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Health always succeeds for the in-memory backend.
func (m *Memory) Health(ctx context.Context) error {
	return ctx.Err()
}
