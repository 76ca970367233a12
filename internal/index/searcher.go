package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/bull/studyflow/internal/study"
)

// QueryEmbedder turns query text into a vector in the same space as the
// indexed chunks.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher answers free-text queries against a Store.
type Searcher struct {
	embedder QueryEmbedder
	store    Store
}

// NewSearcher creates a searcher over store using embedder for queries.
func NewSearcher(embedder QueryEmbedder, store Store) *Searcher {
	return &Searcher{embedder: embedder, store: store}
}

// Search embeds query and returns the topK most similar chunks of the document.
func (s *Searcher) Search(ctx context.Context, documentID, query string, topK int) ([]study.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", study.ErrInvalidInput)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", study.ErrInvalidInput, topK)
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.store.Search(ctx, documentID, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return results, nil
}
