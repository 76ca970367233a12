package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/bull/studyflow/internal/study"
)

// DocumentRepository persists documents together with their chunks and study
// content. Get returns ErrDocumentNotFound for unknown ids.
type DocumentRepository interface {
	Get(ctx context.Context, id string) (*study.Document, error)
	Put(ctx context.Context, doc *study.Document) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*study.Document, error)
}

// MemoryRepository keeps documents in a map. Documents are copied on the way
// in and out so callers never share state with the repository.
type MemoryRepository struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

var _ DocumentRepository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[string][]byte)}
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*study.Document, error) {
	r.mu.RLock()
	data, ok := r.docs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return decodeDocument(data)
}

func (r *MemoryRepository) Put(ctx context.Context, doc *study.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document without id", study.ErrInvalidInput)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshalling document: %w", err)
	}
	r.mu.Lock()
	r.docs[doc.ID] = data
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	delete(r.docs, id)
	return nil
}

// List returns all documents, newest upload first.
func (r *MemoryRepository) List(ctx context.Context) ([]*study.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	docs := make([]*study.Document, 0, len(r.docs))
	for _, data := range r.docs {
		doc, err := decodeDocument(data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	sortNewestFirst(docs)
	return docs, nil
}

func decodeDocument(data []byte) (*study.Document, error) {
	var doc study.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshalling document: %w", err)
	}
	return &doc, nil
}

func sortNewestFirst(docs []*study.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].UploadedAt.Equal(docs[j].UploadedAt) {
			return docs[i].UploadedAt.After(docs[j].UploadedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}
