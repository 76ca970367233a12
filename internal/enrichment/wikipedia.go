package enrichment

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/bull/studyflow/internal/study"
)

const (
	DefaultWikipediaURL = "https://en.wikipedia.org"
	DefaultTimeout      = 10 * time.Second
	DefaultRetries      = 2

	citationsPerQuery = 3
	userAgent         = "studyflow/1.0 (https://github.com/bull/studyflow)"
)

var markup = regexp.MustCompile(`<[^>]+>`)

// WikipediaConfig configures a WikipediaEnricher.
type WikipediaConfig struct {
	BaseURL    string
	Timeout    time.Duration
	Retries    int
	MaxQueries int
	Logger     *slog.Logger
}

// WikipediaEnricher answers search queries with Wikipedia article summaries.
type WikipediaEnricher struct {
	client     *resty.Client
	baseURL    string
	maxQueries int
	logger     *slog.Logger
	now        func() time.Time
}

// NewWikipediaEnricher creates an enricher backed by the MediaWiki search API
// and the REST page summary endpoint.
func NewWikipediaEnricher(cfg WikipediaConfig) *WikipediaEnricher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultWikipediaURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.MaxQueries <= 0 {
		cfg.MaxQueries = DefaultMaxQueries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")

	client := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	client.AddRetryCondition(retryCondition)

	return &WikipediaEnricher{
		client:     client,
		baseURL:    base,
		maxQueries: cfg.MaxQueries,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// retryCondition retries network errors, rate limiting and server errors.
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code == http.StatusTooManyRequests || code >= 500
}

func (e *WikipediaEnricher) SearchQueries(concepts []study.Concept) []string {
	return SearchQueries(concepts)
}

// Enrich looks up at most MaxQueries queries. Queries without search hits
// produce no entry.
func (e *WikipediaEnricher) Enrich(ctx context.Context, queries []string) ([]study.EnrichedKnowledge, error) {
	queries = limit(queries, e.maxQueries)
	out := make([]study.EnrichedKnowledge, 0, len(queries))

	for _, q := range queries {
		hits, err := e.search(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", q, err)
		}
		if len(hits) == 0 {
			e.logger.Debug("No Wikipedia results", "query", q)
			continue
		}

		summary, err := e.summary(ctx, hits[0].Source)
		if err != nil {
			return nil, fmt.Errorf("summary %q: %w", hits[0].Source, err)
		}
		if summary == "" {
			summary = hits[0].Excerpt
		}

		out = append(out, study.EnrichedKnowledge{
			ID:        uuid.New().String(),
			Topic:     q,
			Summary:   summary,
			Citations: hits,
			FetchedAt: e.now().UTC(),
		})
	}

	e.logger.Debug("Enrichment complete", "queries", len(queries), "entries", len(out))
	return out, nil
}

func (e *WikipediaEnricher) search(ctx context.Context, query string) ([]study.Citation, error) {
	resp, err := e.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"action":   "query",
			"list":     "search",
			"srsearch": query,
			"srlimit":  fmt.Sprint(citationsPerQuery),
			"srprop":   "snippet",
			"format":   "json",
		}).
		Get("/w/api.php")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("status %d", resp.StatusCode())
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON response")
	}
	var hits []study.Citation
	for _, r := range gjson.GetBytes(body, "query.search").Array() {
		title := r.Get("title").String()
		if title == "" {
			continue
		}
		hits = append(hits, study.Citation{
			Source:  title,
			URL:     e.pageURL(title),
			Excerpt: stripMarkup(r.Get("snippet").String()),
		})
	}
	return hits, nil
}

// summary returns the lead extract of an article, or "" when the article has
// no summary.
func (e *WikipediaEnricher) summary(ctx context.Context, title string) (string, error) {
	resp, err := e.client.R().
		SetContext(ctx).
		SetPathParam("title", pageName(title)).
		Get("/api/rest_v1/page/summary/{title}")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", nil
	}
	if resp.IsError() {
		return "", fmt.Errorf("status %d", resp.StatusCode())
	}
	return strings.TrimSpace(gjson.GetBytes(resp.Body(), "extract").String()), nil
}

func (e *WikipediaEnricher) pageURL(title string) string {
	return e.baseURL + "/wiki/" + url.PathEscape(pageName(title))
}

func pageName(title string) string {
	return strings.ReplaceAll(title, " ", "_")
}

func stripMarkup(s string) string {
	return strings.TrimSpace(html.UnescapeString(markup.ReplaceAllString(s, "")))
}
