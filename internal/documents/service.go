// Package documents stores uploaded document bytes and serves their text to
// the processing pipeline.
package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/bull/studyflow/internal/extract"
	"github.com/bull/studyflow/internal/github"
	"github.com/bull/studyflow/internal/storage"
	"github.com/bull/studyflow/internal/study"
)

// MaxFileSize is the largest accepted upload, 50 MiB.
const MaxFileSize = 50 << 20

// ErrTooLarge is returned for uploads over MaxFileSize.
var ErrTooLarge = fmt.Errorf("%w: document exceeds %d bytes", study.ErrInvalidInput, MaxFileSize)

// IndexDeleter removes a document's chunks from the similarity index.
type IndexDeleter interface {
	Delete(ctx context.Context, documentID string) error
}

// Fetcher retrieves documents from a GitHub repository.
type Fetcher interface {
	Fetch(ctx context.Context, ref github.Ref) ([]*github.FetchedDoc, error)
}

// Options configures a Service.
type Options struct {
	Root   string       // Directory for document bytes; defaults to "documents"
	Index  IndexDeleter // Optional
	Logger *slog.Logger
}

// Service manages uploaded documents.
type Service struct {
	fs        afero.Fs
	root      string
	repo      storage.DocumentRepository
	extractor *extract.Extractor
	index     IndexDeleter
	logger    *slog.Logger
}

// NewService creates a service storing bytes on fsys below opts.Root.
func NewService(fsys afero.Fs, repo storage.DocumentRepository, extractor *extract.Extractor, opts Options) (*Service, error) {
	if opts.Root == "" {
		opts.Root = "documents"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := fsys.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create documents directory: %w", err)
	}
	return &Service{
		fs:        fsys,
		root:      opts.Root,
		repo:      repo,
		extractor: extractor,
		index:     opts.Index,
		logger:    opts.Logger,
	}, nil
}

// Upload stores the bytes read from r as a new document in the Uploaded state.
func (s *Service) Upload(ctx context.Context, name string, r io.Reader) (*study.Document, error) {
	return s.upload(ctx, name, r, "")
}

func (s *Service) upload(ctx context.Context, name string, r io.Reader, source string) (*study.Document, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: file name is required", study.ErrInvalidInput)
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", study.ErrInvalidInput, name)
	}

	doc := study.NewDocument(name, int64(len(data)), extract.DetectContentType(name, data))
	doc.Source = source
	doc.StoragePath = path.Join(s.root, doc.ID+"_"+name)

	if err := afero.WriteFile(s.fs, doc.StoragePath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", doc.StoragePath, err)
	}
	if err := s.repo.Put(ctx, doc); err != nil {
		_ = s.fs.Remove(doc.StoragePath)
		return nil, fmt.Errorf("save document: %w", err)
	}

	s.logger.Info("Document uploaded",
		"document_id", doc.ID,
		"file", name,
		"content_type", doc.ContentType,
		"size", doc.FileSize)
	return doc, nil
}

// ImportFromGitHub uploads every importable file at ref.
func (s *Service) ImportFromGitHub(ctx context.Context, fetcher Fetcher, ref github.Ref) ([]*study.Document, error) {
	fetched, err := fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}
	if len(fetched) == 0 {
		return nil, fmt.Errorf("%w: no importable documents at %s", study.ErrNotFound, ref)
	}

	docs := make([]*study.Document, 0, len(fetched))
	for _, f := range fetched {
		src := ref
		src.Path = f.Path
		if f.SHA != "" {
			src.Ref = f.SHA
		}
		doc, err := s.upload(ctx, f.Name(), bytes.NewReader(f.Content), src.String())
		if err != nil {
			return docs, fmt.Errorf("import %s: %w", f.Path, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Get returns the document with the given id.
func (s *Service) Get(ctx context.Context, id string) (*study.Document, error) {
	return s.repo.Get(ctx, id)
}

// List returns all documents, newest first.
func (s *Service) List(ctx context.Context) ([]*study.Document, error) {
	return s.repo.List(ctx)
}

// Save persists doc.
func (s *Service) Save(ctx context.Context, doc *study.Document) error {
	return s.repo.Put(ctx, doc)
}

// Delete removes a document's bytes, index entries and record.
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.fs.Remove(doc.StoragePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", doc.StoragePath, err)
	}
	if s.index != nil {
		if err := s.index.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete index entries: %w", err)
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Document deleted", "document_id", id)
	return nil
}

// Text returns the extracted text of the document with the given id.
func (s *Service) Text(ctx context.Context, id string) (string, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.DocumentText(ctx, doc)
}

// DocumentText extracts the text of doc and records its outline on it.
// Every extraction failure wraps study.ErrNotAvailable.
func (s *Service) DocumentText(ctx context.Context, doc *study.Document) (string, error) {
	data, err := afero.ReadFile(s.fs, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", study.ErrNotAvailable, doc.StoragePath, err)
	}

	res, err := s.extractor.Extract(ctx, doc.ContentType, data)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, study.ErrNotAvailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", study.ErrNotAvailable, err)
	}

	doc.Outline = res.Outline
	s.logger.Debug("Text extracted",
		"document_id", doc.ID,
		"format", res.Format,
		"chars", len([]rune(res.Text)),
		"headings", len(res.Outline))
	return res.Text, nil
}
