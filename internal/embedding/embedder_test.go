package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// fakeOpenAI answers /embeddings with a 3-dim vector per input whose first
// component is the input length. Data is returned in reverse order.
func fakeOpenAI(t *testing.T, failures int, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		if int(n) <= failures {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit","code":"rate_limit","param":""}}`))
			return
		}

		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(len(req.Input[i])), 1, 0},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestEmbedder(t *testing.T, baseURL string, batchSize int) *OpenAIEmbedder {
	t.Helper()
	client, err := NewClient(ClientConfig{APIKey: "test-key", BaseURL: baseURL + "/v1/"})
	require.NoError(t, err)

	e, err := NewOpenAIEmbedder(client, Options{
		Dimension:       3,
		BatchSize:       batchSize,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  2 * time.Second,
	})
	require.NoError(t, err)
	return e
}

func TestOpenAIEmbedder_BatchOrder(t *testing.T) {
	srv, calls := fakeOpenAI(t, 0, 0)
	e := newTestEmbedder(t, srv.URL, 2)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, v := range vecs {
		assert.Equal(t, float32(len(texts[i])), v[0], "vector %d out of order", i)
	}
	assert.Equal(t, int32(3), calls.Load(), "5 texts in batches of 2")
}

func TestOpenAIEmbedder_Cache(t *testing.T) {
	srv, calls := fakeOpenAI(t, 0, 0)
	e := newTestEmbedder(t, srv.URL, 10)
	ctx := context.Background()

	first, err := e.Embed(ctx, "hello")
	require.NoError(t, err)
	second, err := e.Embed(ctx, "hello")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	// Returned vectors are copies.
	first[0] = 99
	third, err := e.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, float32(5), third[0])
}

func TestOpenAIEmbedder_RetriesRateLimit(t *testing.T) {
	srv, calls := fakeOpenAI(t, 2, http.StatusTooManyRequests)
	e := newTestEmbedder(t, srv.URL, 10)

	vec, err := e.Embed(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIEmbedder_PermanentError(t *testing.T) {
	srv, calls := fakeOpenAI(t, 100, http.StatusBadRequest)
	e := newTestEmbedder(t, srv.URL, 10)

	_, err := e.Embed(context.Background(), "bad")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
}

func TestOpenAIEmbedder_DimensionMismatch(t *testing.T) {
	srv, _ := fakeOpenAI(t, 0, 0)
	client, err := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)
	e, err := NewOpenAIEmbedder(client, Options{Dimension: 8})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")
	assert.ErrorContains(t, err, "dimensions")
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)
}

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	h := NewHashEmbedder(64)
	assert.Equal(t, 64, h.Dimension())

	a, err := h.Embed(ctx, "Mitochondria produce ATP for the cell")
	require.NoError(t, err)
	b, err := h.Embed(ctx, "Mitochondria produce ATP for the cell")
	require.NoError(t, err)
	assert.Equal(t, a, b, "deterministic")

	var norm float64
	for _, x := range a {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	empty, err := h.Embed(ctx, "   ")
	require.NoError(t, err)
	assert.Len(t, empty, 64)

	vecs, err := h.EmbedBatch(ctx, []string{"one", "two"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.NotEqual(t, vecs[0], vecs[1])
}
