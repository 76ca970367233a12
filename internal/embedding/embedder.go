package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the OpenAI model used for generating embeddings.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the vector dimension for text-embedding-3-small.
	DefaultDimension = 1536

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate limits.
	// OpenAI supports up to 2048 texts per batch, but smaller batches reduce TPM pressure.
	DefaultBatchSize = 500

	// DefaultCacheSize is the number of embedded texts kept in memory.
	DefaultCacheSize = 4096
)

// Options tunes an OpenAIEmbedder. Zero values select the defaults.
type Options struct {
	Model     string
	Dimension int
	BatchSize int
	CacheSize int
	Logger    *slog.Logger

	// Retry policy for rate limits and server errors.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// OpenAIEmbedder generates embeddings with the OpenAI embeddings API.
// It batches requests, caches vectors per text and retries with exponential
// backoff on rate limit and server errors.
type OpenAIEmbedder struct {
	client    *Client
	model     string
	dimension int
	batchSize int
	cache     *lru.Cache[string, []float32]
	logger    *slog.Logger

	initialInterval time.Duration
	maxInterval     time.Duration
	maxElapsed      time.Duration
}

// NewOpenAIEmbedder creates an embedder using client.
func NewOpenAIEmbedder(client *Client, opts Options) (*OpenAIEmbedder, error) {
	if client == nil {
		return nil, errors.New("openai client is required")
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Dimension <= 0 {
		opts.Dimension = DefaultDimension
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 10 * time.Second
	}
	if opts.MaxElapsedTime <= 0 {
		opts.MaxElapsedTime = 30 * time.Second
	}

	cache, err := lru.New[string, []float32](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &OpenAIEmbedder{
		client:          client,
		model:           opts.Model,
		dimension:       opts.Dimension,
		batchSize:       opts.BatchSize,
		cache:           cache,
		logger:          opts.Logger,
		initialInterval: opts.InitialInterval,
		maxInterval:     opts.MaxInterval,
		maxElapsed:      opts.MaxElapsedTime,
	}, nil
}

// Dimension returns the length of every vector this embedder produces.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one embedding per text, in input order. Cached texts are
// not sent to the API again.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := e.cache.Get(e.cacheKey(text)); ok {
			out[i] = clone(vec)
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		e.logger.Debug("requesting embeddings", "texts", len(missing), "cached", len(texts)-len(missing), "model", e.model)

		vecs, err := e.GenerateEmbeddings(ctx, missing)
		if err != nil {
			return nil, err
		}
		for j, vec := range vecs {
			e.cache.Add(e.cacheKey(missing[j]), vec)
			out[missingIdx[j]] = clone(vec)
		}
	}
	return out, nil
}

// GenerateEmbeddings generates embeddings for the given texts, bypassing the cache.
// Batches requests and retries with exponential backoff on rate limit errors.
func (e *OpenAIEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	allEmbeddings := make([][]float32, 0, len(texts))

	// Process in batches
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch := texts[i:end]

		embeddings, err := e.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

// embedBatchWithRetry generates embeddings for a single batch with retry logic.
// Retries with exponential backoff on HTTP 429 and 5xx.
// Other errors are treated as permanent and fail immediately.
func (e *OpenAIEmbedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.model != "text-embedding-ada-002" && e.dimension != DefaultDimension {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	operation := func() error {
		resp, err := e.client.client.Embeddings.New(ctx, params)
		if err != nil {
			if isRetryable(err) {
				e.logger.Warn("embedding request failed, retrying", "error", err)
				return err
			}
			return backoff.Permanent(err)
		}

		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
		}

		// The API tags each vector with its input position.
		data := resp.Data
		sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

		embeddings = make([][]float32, len(data))
		for i, d := range data {
			if len(d.Embedding) != e.dimension {
				return backoff.Permanent(fmt.Errorf("embedding %d has %d dimensions, expected %d", i, len(d.Embedding), e.dimension))
			}
			embeddings[i] = toFloat32(d.Embedding)
		}
		return nil
	}

	// Configure exponential backoff
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.initialInterval
	b.MaxInterval = e.maxInterval
	b.MaxElapsedTime = e.maxElapsed

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	return embeddings, err
}

func (e *OpenAIEmbedder) cacheKey(text string) string {
	return e.model + "\x00" + text
}

// isRetryable reports rate limit (HTTP 429) and server errors.
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but chunks store float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
