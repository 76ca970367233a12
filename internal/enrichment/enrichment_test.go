package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/studyflow/internal/study"
)

func concepts(names ...string) []study.Concept {
	out := make([]study.Concept, len(names))
	for i, n := range names {
		out[i] = study.Concept{Name: n}
	}
	return out
}

func TestSearchQueries(t *testing.T) {
	cs := concepts("Osmosis", "Diffusion")
	cs[1].CommonMisconceptions = []string{"Requires energy"}

	got := SearchQueries(cs)
	assert.Equal(t, []string{
		"Osmosis definition and examples",
		"Osmosis latest research and applications",
		"Diffusion definition and examples",
		"Diffusion latest research and applications",
		"Common misconceptions about Diffusion",
	}, got)

	many := SearchQueries(concepts("A", "B", "C", "D", "E", "F", "G"))
	assert.Len(t, many, 10)
	assert.Empty(t, SearchQueries(nil))
}

func TestTemplateEnricher(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewTemplateEnricher(0, func() time.Time { return now })

	queries := e.SearchQueries(concepts("Osmosis", "Diffusion"))
	got, err := e.Enrich(context.Background(), queries)
	require.NoError(t, err)
	require.Len(t, got, DefaultMaxQueries)
	assert.Equal(t, "Osmosis definition and examples", got[0].Topic)
	assert.Equal(t, now, got[0].FetchedAt)
	assert.NotEmpty(t, got[0].Citations)
	assert.NotEqual(t, got[0].ID, got[1].ID)
}

func newWikipediaServer(t *testing.T, failures int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var searches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/w/api.php":
			if searches.Add(1) <= failures {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			q := r.URL.Query().Get("srsearch")
			if strings.HasPrefix(q, "Nothing") {
				_, _ = w.Write([]byte(`{"query":{"search":[]}}`))
				return
			}
			_, _ = w.Write([]byte(`{"query":{"search":[
				{"title":"Cell biology","snippet":"The study of <span class=\"searchmatch\">cells</span> &amp; their parts"},
				{"title":"Mitosis","snippet":"Cell division"}
			]}}`))
		case r.URL.Path == "/api/rest_v1/page/summary/Cell_biology":
			_, _ = w.Write([]byte(`{"title":"Cell biology","extract":"Cell biology studies the structure of cells."}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &searches
}

func TestWikipediaEnricher_Enrich(t *testing.T) {
	srv, _ := newWikipediaServer(t, 0)
	e := NewWikipediaEnricher(WikipediaConfig{BaseURL: srv.URL + "/"})

	got, err := e.Enrich(context.Background(), []string{"Cells definition and examples", "Nothing here", "Cells again", "Fourth query"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	k := got[0]
	assert.Equal(t, "Cells definition and examples", k.Topic)
	assert.Equal(t, "Cell biology studies the structure of cells.", k.Summary)
	require.Len(t, k.Citations, 2)
	assert.Equal(t, study.Citation{
		Source:  "Cell biology",
		URL:     srv.URL + "/wiki/Cell_biology",
		Excerpt: "The study of cells & their parts",
	}, k.Citations[0])
	assert.Equal(t, "Cells again", got[1].Topic)
}

func TestWikipediaEnricher_Retries(t *testing.T) {
	srv, searches := newWikipediaServer(t, 1)
	e := NewWikipediaEnricher(WikipediaConfig{BaseURL: srv.URL, Retries: 2})

	got, err := e.Enrich(context.Background(), []string{"Cells"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int32(2), searches.Load())
}

func TestWikipediaEnricher_Failure(t *testing.T) {
	srv, _ := newWikipediaServer(t, 100)
	e := NewWikipediaEnricher(WikipediaConfig{BaseURL: srv.URL, Retries: 0})

	_, err := e.Enrich(context.Background(), []string{"Cells"})
	assert.ErrorContains(t, err, "status 503")
}
