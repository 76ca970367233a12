// Package app wires StudyFlow components together from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/bull/studyflow/internal/chunker"
	"github.com/bull/studyflow/internal/config"
	"github.com/bull/studyflow/internal/documents"
	"github.com/bull/studyflow/internal/embedding"
	"github.com/bull/studyflow/internal/enrichment"
	"github.com/bull/studyflow/internal/extract"
	"github.com/bull/studyflow/internal/generator"
	"github.com/bull/studyflow/internal/github"
	"github.com/bull/studyflow/internal/index"
	"github.com/bull/studyflow/internal/pipeline"
	"github.com/bull/studyflow/internal/review"
	"github.com/bull/studyflow/internal/storage"
	"github.com/bull/studyflow/internal/study"
)

// Embedder is what the app needs from an embedding provider.
type Embedder interface {
	pipeline.Embedder
	Dimension() int
}

// Options overrides collaborators, mainly for tests.
type Options struct {
	Fs     afero.Fs // Document bytes; defaults to the OS filesystem
	Logger *slog.Logger
	Now    func() time.Time
}

// App holds the wired components.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Documents *documents.Service
	Pipeline  *pipeline.Pipeline
	Searcher  *index.Searcher
	Index     index.Store
	Embedder  Embedder
	Scheduler *review.Scheduler
	Tracker   *review.Tracker
	GitHub    *github.Fetcher

	repo    storage.DocumentRepository
	now     func() time.Time
	closers []func() error

	mu       sync.Mutex // Serializes review updates
	sessions map[string]*review.Session
}

// New builds an App. Without an OpenAI key the hash embedder and template
// generator are used, so everything works offline.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	a := &App{
		Config:   cfg,
		Logger:   opts.Logger,
		now:      opts.Now,
		sessions: make(map[string]*review.Session),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err := a.initRepository(); err != nil {
		return nil, err
	}

	embedder, gen, err := a.initModels()
	if err != nil {
		return nil, err
	}
	a.Embedder = embedder

	if err := a.initIndex(ctx); err != nil {
		return nil, err
	}

	a.Documents, err = documents.NewService(opts.Fs, a.repo, extract.New(), documents.Options{
		Root:   filepath.Join(cfg.Storage.DataDir, "documents"),
		Index:  a.Index,
		Logger: a.Logger,
	})
	if err != nil {
		return nil, err
	}

	ch, err := chunker.New(cfg.Chunking.MinSize, cfg.Chunking.MaxSize)
	if err != nil {
		return nil, err
	}

	a.Pipeline, err = pipeline.New(pipeline.Config{
		Chunker:     ch,
		Text:        a.Documents,
		Embedder:    embedder,
		Generator:   gen,
		Enricher:    a.initEnricher(),
		Index:       a.Index,
		Repository:  a.repo,
		Concurrency: cfg.Embedding.Concurrency,
		BatchSize:   cfg.Embedding.BatchSize,
		Logger:      a.Logger,
		Now:         a.now,
	})
	if err != nil {
		return nil, err
	}

	a.Searcher = index.NewSearcher(embedder, a.Index)
	a.Scheduler = review.NewScheduler(a.now)
	a.Tracker = review.NewTracker(a.Scheduler, a.now, a.Logger)

	gh, err := github.NewClient(ctx, github.ClientConfig{Token: cfg.GitHub.Token, BaseURL: cfg.GitHub.BaseURL})
	if err != nil {
		return nil, fmt.Errorf("github client: %w", err)
	}
	a.GitHub = github.NewFetcher(gh)

	return a, nil
}

func (a *App) initRepository() error {
	if a.Config.Storage.Repository == config.RepositoryMemory {
		a.repo = storage.NewMemoryRepository()
		return nil
	}
	repo, err := storage.NewSQLiteRepository(a.Config.Storage.DataDir)
	if err != nil {
		return err
	}
	a.repo = repo
	a.closers = append(a.closers, repo.Close)
	a.Logger.Debug("Opened document repository", "path", repo.Path())
	return nil
}

func (a *App) initModels() (Embedder, pipeline.ContentGenerator, error) {
	cfg := a.Config
	if !cfg.UseOpenAI() {
		a.Logger.Warn("No OpenAI API key configured, using offline hash embedder and template generator")
		return embedding.NewHashEmbedder(cfg.Embedding.Dimension), generator.NewTemplateGenerator(a.now), nil
	}

	client, err := embedding.NewClient(embedding.ClientConfig{APIKey: cfg.OpenAI.APIKey, BaseURL: cfg.OpenAI.BaseURL})
	if err != nil {
		return nil, nil, err
	}
	embedder, err := embedding.NewOpenAIEmbedder(client, embedding.Options{
		Model:     cfg.OpenAI.EmbeddingModel,
		Dimension: cfg.Embedding.Dimension,
		CacheSize: cfg.Embedding.CacheSize,
		Logger:    a.Logger,
	})
	if err != nil {
		return nil, nil, err
	}
	gen := generator.NewOpenAIGenerator(client.Client(), cfg.OpenAI.ChatModel, cfg.OpenAI.MaxTokens, a.Logger)
	return embedder, gen, nil
}

func (a *App) initIndex(ctx context.Context) error {
	cfg := a.Config
	if cfg.Index.Backend == config.IndexQdrant {
		q, err := storage.NewQdrantStorage(ctx, storage.QdrantConfig{
			Host:       cfg.Index.Qdrant.Host,
			Port:       cfg.Index.Qdrant.Port,
			Collection: cfg.Index.Qdrant.Collection,
			Dimension:  a.Embedder.Dimension(),
		}, a.Logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, q.Close)
		if err := q.EnsureCollection(ctx); err != nil {
			return err
		}
		a.Index = q
		return nil
	}

	mem := index.NewMemory(a.Logger)
	a.Index = mem
	return a.hydrate(ctx, mem)
}

// hydrate loads the embeddings of completed documents into the memory index.
func (a *App) hydrate(ctx context.Context, mem *index.Memory) error {
	docs, err := a.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	dim := a.Embedder.Dimension()
	for _, doc := range docs {
		if doc.Status != study.StatusCompleted || len(doc.Chunks) == 0 {
			continue
		}
		if got := len(doc.Chunks[0].Embedding); got != dim {
			a.Logger.Warn("Skipping document embedded with another model",
				"document_id", doc.ID, "dimension", got, "expected", dim)
			continue
		}
		if err := mem.Index(ctx, doc.ID, doc.Chunks); err != nil {
			a.Logger.Warn("Skipping document with invalid embeddings", "document_id", doc.ID, "error", err)
		}
	}
	a.Logger.Debug("Hydrated memory index", "documents", mem.Len())
	return nil
}

func (a *App) initEnricher() pipeline.Enricher {
	cfg := a.Config.Enrichment
	if !a.Config.UseWikipedia() {
		return enrichment.NewTemplateEnricher(cfg.MaxQueries, a.now)
	}
	return enrichment.NewWikipediaEnricher(enrichment.WikipediaConfig{
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
		Retries:    cfg.Retries,
		MaxQueries: cfg.MaxQueries,
		Logger:     a.Logger,
	})
}

// Close releases the repository and index connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Health reports whether the index backend is reachable.
func (a *App) Health(ctx context.Context) error {
	if h, ok := a.Index.(interface{ Health(context.Context) error }); ok {
		return h.Health(ctx)
	}
	return nil
}

// Ingest uploads a document and runs the pipeline over it. The document is
// persisted whatever the outcome.
func (a *App) Ingest(ctx context.Context, name string, r io.Reader, progress pipeline.ProgressFunc) (*pipeline.Result, error) {
	doc, err := a.Documents.Upload(ctx, name, r)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	return a.Pipeline.Process(ctx, doc, progress)
}

// ImportGitHub imports and processes the documents at ref
// ("owner/repo/path[@ref]"). Documents that fail are logged and skipped; their
// errors are joined into the returned error.
func (a *App) ImportGitHub(ctx context.Context, ref string, progress pipeline.ProgressFunc) ([]*pipeline.Result, error) {
	parsed, err := github.ParseRef(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", study.ErrInvalidInput, err)
	}
	docs, err := a.Documents.ImportFromGitHub(ctx, a.GitHub, parsed)
	if err != nil && len(docs) == 0 {
		return nil, err
	}
	errs := []error{err}

	var results []*pipeline.Result
	for _, doc := range docs {
		res, err := a.Pipeline.Process(ctx, doc, progress)
		if err != nil {
			a.Logger.Warn("Failed to process imported document", "document_id", doc.ID, "source", doc.Source, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", doc.Source, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// Search returns the chunks of a document most similar to query.
func (a *App) Search(ctx context.Context, documentID, query string, topK int) ([]study.ScoredChunk, error) {
	if _, err := a.Documents.Get(ctx, documentID); err != nil {
		return nil, err
	}
	return a.Searcher.Search(ctx, documentID, query, topK)
}

func (a *App) studyContent(ctx context.Context, documentID string) (*study.Document, error) {
	doc, err := a.Documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.StudyContent == nil {
		return nil, fmt.Errorf("%w: document %s has no study content (status %s)", study.ErrNotAvailable, documentID, doc.Status)
	}
	return doc, nil
}

// DueFlashcards lists the document's flashcards due now, most overdue first.
func (a *App) DueFlashcards(ctx context.Context, documentID string) ([]*study.Flashcard, error) {
	doc, err := a.studyContent(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return review.DueFlashcards(doc.StudyContent.Flashcards, a.now()), nil
}

// StartSession builds a session of up to n items. A zero seed shuffles
// questions randomly.
func (a *App) StartSession(ctx context.Context, documentID string, n int, seed uint64) (*review.Session, []review.Item, error) {
	doc, err := a.studyContent(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}

	var rng *rand.Rand
	if seed != 0 {
		rng = rand.New(rand.NewPCG(seed, seed))
	}
	items, err := review.NewSessionBuilder(rng, a.now).Build(doc.StudyContent, n)
	if err != nil {
		return nil, nil, err
	}

	session := a.Tracker.Start(documentID)
	a.mu.Lock()
	a.sessions[session.ID] = session
	a.mu.Unlock()

	a.Logger.Debug("Session started", "session_id", session.ID, "document_id", documentID, "items", len(items))
	return session, items, nil
}

// RecordReview records outcome for an item of an open session and persists
// any rescheduled flashcard.
func (a *App) RecordReview(ctx context.Context, sessionID, itemID string, outcome study.ReviewOutcome, spent time.Duration) (*study.ReviewRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	session, ok := a.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", study.ErrNotFound, sessionID)
	}
	doc, err := a.studyContent(ctx, session.DocumentID)
	if err != nil {
		return nil, err
	}
	rec, err := a.Tracker.Record(session, doc.StudyContent, itemID, outcome, spent)
	if err != nil {
		return nil, err
	}
	if err := a.Documents.Save(ctx, doc); err != nil {
		return nil, err
	}
	return rec, nil
}

// CompleteSession closes a session and returns its final statistics.
func (a *App) CompleteSession(sessionID string) (*review.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	session, ok := a.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", study.ErrNotFound, sessionID)
	}
	a.Tracker.Complete(session)
	delete(a.sessions, sessionID)
	return session, nil
}

// ReviewFlashcard reschedules a single card outside any session.
func (a *App) ReviewFlashcard(ctx context.Context, documentID, cardID string, outcome study.ReviewOutcome) (*study.Flashcard, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	doc, err := a.studyContent(ctx, documentID)
	if err != nil {
		return nil, err
	}
	card, ok := doc.StudyContent.Flashcard(cardID)
	if !ok {
		return nil, fmt.Errorf("%w: flashcard %s", study.ErrNotFound, cardID)
	}
	a.Scheduler.Schedule(card, outcome)
	if err := a.Documents.Save(ctx, doc); err != nil {
		return nil, err
	}
	return card, nil
}

// ListDocuments returns all documents, newest first.
func (a *App) ListDocuments(ctx context.Context) ([]*study.Document, error) {
	return a.Documents.List(ctx)
}

// GetDocument returns one document.
func (a *App) GetDocument(ctx context.Context, id string) (*study.Document, error) {
	return a.Documents.Get(ctx, id)
}
