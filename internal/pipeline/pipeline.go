// Package pipeline drives a document from uploaded bytes to indexed chunks
// and generated study content.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bull/studyflow/internal/chunker"
	"github.com/bull/studyflow/internal/index"
	"github.com/bull/studyflow/internal/study"
)

const (
	DefaultConcurrency = 4
	DefaultBatchSize   = 64
)

// TextSource returns the extracted text of a document. It fails with
// study.ErrNotAvailable when no text can be extracted.
type TextSource interface {
	Text(ctx context.Context, documentID string) (string, error)
}

// DocumentTextSource is implemented by text sources that record extraction
// details, such as the outline, on the document itself.
type DocumentTextSource interface {
	DocumentText(ctx context.Context, doc *study.Document) (string, error)
}

// Embedder produces one vector per text. All vectors share a dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder is implemented by embedders that serve many texts per call.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ContentGenerator turns document text into study material.
type ContentGenerator interface {
	ExtractConcepts(ctx context.Context, text string) ([]study.Concept, error)
	GenerateFlashcards(ctx context.Context, concepts []study.Concept, text string) ([]*study.Flashcard, error)
	GenerateMCQs(ctx context.Context, concepts []study.Concept, text string) ([]*study.MultipleChoiceQuestion, error)
	GenerateShortAnswers(ctx context.Context, concepts []study.Concept, text string) ([]*study.ShortAnswerQuestion, error)
}

// Enricher gathers background knowledge for concepts.
type Enricher interface {
	SearchQueries(concepts []study.Concept) []string
	Enrich(ctx context.Context, queries []string) ([]study.EnrichedKnowledge, error)
}

// DocumentSaver persists a document after a run ends.
type DocumentSaver interface {
	Put(ctx context.Context, doc *study.Document) error
}

// ProgressFunc receives checkpoints with a strictly increasing percentage.
type ProgressFunc func(message string, percent int)

// Config holds the collaborators of a Pipeline. Repository is optional.
type Config struct {
	Chunker     *chunker.Chunker
	Text        TextSource
	Embedder    Embedder
	Generator   ContentGenerator
	Enricher    Enricher
	Index       index.Store
	Repository  DocumentSaver
	Concurrency int // Parallel embedding calls, defaults to DefaultConcurrency
	BatchSize   int // Texts per EmbedBatch call, defaults to DefaultBatchSize
	Logger      *slog.Logger
	Now         func() time.Time
}

// Result summarises a completed run.
type Result struct {
	Document        *study.Document
	Content         *study.StudyContent
	Chunks          int
	DroppedSections int
	Duration        time.Duration
}

// Pipeline processes one document per Process call. Runs for different
// documents share no mutable state and may proceed concurrently.
type Pipeline struct {
	chunker     *chunker.Chunker
	text        TextSource
	embedder    Embedder
	generator   ContentGenerator
	enricher    Enricher
	index       index.Store
	repo        DocumentSaver
	concurrency int
	batchSize   int
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a pipeline from cfg.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Chunker == nil:
		return nil, fmt.Errorf("%w: chunker is required", study.ErrInvalidInput)
	case cfg.Text == nil:
		return nil, fmt.Errorf("%w: text source is required", study.ErrInvalidInput)
	case cfg.Embedder == nil:
		return nil, fmt.Errorf("%w: embedder is required", study.ErrInvalidInput)
	case cfg.Generator == nil:
		return nil, fmt.Errorf("%w: content generator is required", study.ErrInvalidInput)
	case cfg.Enricher == nil:
		return nil, fmt.Errorf("%w: enricher is required", study.ErrInvalidInput)
	case cfg.Index == nil:
		return nil, fmt.Errorf("%w: index is required", study.ErrInvalidInput)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		chunker:     cfg.Chunker,
		text:        cfg.Text,
		embedder:    cfg.Embedder,
		generator:   cfg.Generator,
		enricher:    cfg.Enricher,
		index:       cfg.Index,
		repo:        cfg.Repository,
		concurrency: cfg.Concurrency,
		batchSize:   cfg.BatchSize,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}, nil
}

// run carries the state of one Process call.
type run struct {
	p        *Pipeline
	doc      *study.Document
	progress ProgressFunc
	logger   *slog.Logger
}

func (r *run) enter(status study.DocumentStatus, message string, percent int) {
	if status != "" && status != r.doc.Status {
		r.doc.Status = status
		r.logger.Info("Pipeline step", "status", status)
	}
	if r.progress != nil {
		r.progress(message, percent)
	}
}

// Process runs every step for doc, mutating its status, chunks and study
// content. On a step failure the document is marked Failed with the error
// message and the error is returned. On cancellation the document keeps the
// status of the step in progress and the context error is returned.
func (p *Pipeline) Process(ctx context.Context, doc *study.Document, progress ProgressFunc) (*Result, error) {
	if doc == nil || doc.ID == "" {
		return nil, fmt.Errorf("%w: document without id", study.ErrInvalidInput)
	}
	start := time.Now()
	r := &run{
		p:        p,
		doc:      doc,
		progress: progress,
		logger:   p.logger.With("document_id", doc.ID),
	}
	doc.ErrorMessage = ""
	doc.StudyContent = nil

	res, err := r.execute(ctx)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	res.Duration = time.Since(start)

	// Completed is persisted but only reported once the save succeeds.
	doc.Status = study.StatusCompleted
	if err := p.save(ctx, doc); err != nil {
		doc.Status = study.StatusEnriching
		return nil, r.fail(ctx, err)
	}
	r.logger.Info("Pipeline step", "status", doc.Status)
	r.enter("", "Complete!", 100)

	r.logger.Info("Document processed",
		"chunks", res.Chunks,
		"dropped_sections", res.DroppedSections,
		"concepts", len(res.Content.Concepts),
		"flashcards", len(res.Content.Flashcards),
		"mcqs", len(res.Content.MultipleChoiceQuestions),
		"duration", res.Duration,
	)
	return res, nil
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	p, doc := r.p, r.doc
	res := &Result{Document: doc}

	// 1. Extract text
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.enter(study.StatusProcessing, "Processing document...", 10)
	r.enter("", "Extracting text...", 20)
	text, err := r.extractText(ctx)
	if err != nil {
		return nil, err
	}

	// 2. Chunk
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.enter(study.StatusChunking, "Chunking document...", 30)
	split := p.chunker.Split(text)
	for _, c := range split.Chunks {
		c.ID = uuid.New().String()
		c.DocumentID = doc.ID
	}
	doc.Chunks = split.Chunks
	res.Chunks = len(split.Chunks)
	res.DroppedSections = split.DroppedSections
	r.logger.Debug("Chunked document", "chunks", res.Chunks, "dropped_sections", res.DroppedSections)

	// 3. Embed and index
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.enter(study.StatusEmbedding, "Generating embeddings...", 40)
	if err := p.embedChunks(ctx, doc.Chunks); err != nil {
		return nil, err
	}
	if err := checkDimensions(doc.Chunks); err != nil {
		return nil, err
	}
	if err := p.index.Index(ctx, doc.ID, doc.Chunks); err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}

	// 4. Generate study content
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.enter(study.StatusGeneratingContent, "Extracting key concepts...", 50)
	concepts, err := p.generator.ExtractConcepts(ctx, text)
	if err != nil {
		return nil, collaborator("extract concepts", err)
	}
	r.logger.Debug("Extracted concepts", "count", len(concepts))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.enter("", "Generating flashcards...", 60)
	flashcards, err := p.generator.GenerateFlashcards(ctx, concepts, text)
	if err != nil {
		return nil, collaborator("generate flashcards", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.enter("", "Creating multiple choice questions...", 70)
	mcqs, err := p.generator.GenerateMCQs(ctx, concepts, text)
	if err != nil {
		return nil, collaborator("generate multiple choice questions", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.enter("", "Generating practice questions...", 80)
	shortAnswers, err := p.generator.GenerateShortAnswers(ctx, concepts, text)
	if err != nil {
		return nil, collaborator("generate short answer questions", err)
	}

	// 5. Enrich
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.enter(study.StatusEnriching, "Enriching with web knowledge...", 90)
	queries := p.enricher.SearchQueries(concepts)
	knowledge, err := p.enricher.Enrich(ctx, queries)
	if err != nil {
		return nil, collaborator("enrich", err)
	}
	r.logger.Debug("Enriched knowledge", "queries", len(queries), "entries", len(knowledge))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.Content = &study.StudyContent{
		ID:                      uuid.New().String(),
		DocumentID:              doc.ID,
		CreatedAt:               p.now().UTC(),
		Concepts:                orEmpty(concepts),
		Flashcards:              orEmpty(flashcards),
		MultipleChoiceQuestions: orEmpty(mcqs),
		ShortAnswerQuestions:    orEmpty(shortAnswers),
		EnrichedKnowledge:       orEmpty(knowledge),
	}
	doc.StudyContent = res.Content
	return res, nil
}

func (r *run) extractText(ctx context.Context) (string, error) {
	var (
		text string
		err  error
	)
	if src, ok := r.p.text.(DocumentTextSource); ok {
		text, err = src.DocumentText(ctx, r.doc)
	} else {
		text, err = r.p.text.Text(ctx, r.doc.ID)
	}
	if err != nil {
		return "", collaborator("extract text", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: no text could be extracted from %s", study.ErrInvalidInput, r.doc.FileName)
	}
	r.logger.Debug("Extracted text", "chars", len([]rune(text)))
	return text, nil
}

// embedChunks fills in every chunk embedding. Batches run concurrently and
// the first failure cancels the rest.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []*study.Chunk) error {
	batcher, batched := p.embedder.(BatchEmbedder)
	size := 1
	if batched {
		size = p.batchSize
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for start := 0; start < len(chunks); start += size {
		part := chunks[start:min(start+size, len(chunks))]
		g.Go(func() error {
			if !batched {
				vec, err := p.embedder.Embed(gctx, part[0].EmbeddingText())
				if err != nil {
					return collaborator(fmt.Sprintf("embed chunk %d", part[0].Index), err)
				}
				part[0].Embedding = vec
				return nil
			}

			texts := make([]string, len(part))
			for i, c := range part {
				texts[i] = c.EmbeddingText()
			}
			vecs, err := batcher.EmbedBatch(gctx, texts)
			if err != nil {
				return collaborator(fmt.Sprintf("embed chunks %d-%d", part[0].Index, part[len(part)-1].Index), err)
			}
			if len(vecs) != len(part) {
				return fmt.Errorf("%w: embedder returned %d vectors for %d chunks", study.ErrCollaborator, len(vecs), len(part))
			}
			for i, c := range part {
				c.Embedding = vecs[i]
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, c := range chunks {
			c.Embedding = nil
		}
		return err
	}
	return nil
}

func checkDimensions(chunks []*study.Chunk) error {
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %d has no embedding", study.ErrInvalidInput, c.Index)
		}
		if len(c.Embedding) != len(chunks[0].Embedding) {
			return fmt.Errorf("%w: chunk %d has %d dimensions, chunk %d has %d",
				index.ErrDimensionMismatch, c.Index, len(c.Embedding), chunks[0].Index, len(chunks[0].Embedding))
		}
	}
	return nil
}

// fail drops the document's index entry and records err on the document
// unless the run was cancelled.
func (r *run) fail(ctx context.Context, err error) error {
	if delErr := r.p.index.Delete(context.WithoutCancel(ctx), r.doc.ID); delErr != nil {
		r.logger.Warn("Failed to remove index entry", "error", delErr)
	}
	for _, c := range r.doc.Chunks {
		c.Embedding = nil
	}
	r.doc.StudyContent = nil

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		r.logger.Warn("Pipeline cancelled", "status", r.doc.Status, "error", err)
		r.saveDetached(ctx)
		return err
	}

	r.doc.Status = study.StatusFailed
	r.doc.ErrorMessage = err.Error()
	r.logger.Error("Failed to process document", "error", err)
	r.saveDetached(ctx)
	return err
}

func (r *run) saveDetached(ctx context.Context) {
	if err := r.p.save(context.WithoutCancel(ctx), r.doc); err != nil {
		r.logger.Warn("Failed to save document", "error", err)
	}
}

func (p *Pipeline) save(ctx context.Context, doc *study.Document) error {
	if p.repo == nil {
		return nil
	}
	if err := p.repo.Put(ctx, doc); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// collaborator marks err as a collaborator failure, keeping context errors
// and the original cause reachable.
func collaborator(step string, err error) error {
	return fmt.Errorf("%s: %w: %w", step, study.ErrCollaborator, err)
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
