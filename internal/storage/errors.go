package storage

import (
	"errors"
	"fmt"

	"github.com/bull/studyflow/internal/study"
)

var (
	ErrQdrantUnreachable  = errors.New("qdrant server unreachable")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDocumentNotFound   = fmt.Errorf("document %w", study.ErrNotFound)
)
