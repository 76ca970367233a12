package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bull/studyflow/internal/study"
)

// TemplateEnricher produces placeholder knowledge without network access.
type TemplateEnricher struct {
	maxQueries int
	now        func() time.Time
}

// NewTemplateEnricher creates an offline enricher. maxQueries <= 0 uses
// DefaultMaxQueries.
func NewTemplateEnricher(maxQueries int, now func() time.Time) *TemplateEnricher {
	if maxQueries <= 0 {
		maxQueries = DefaultMaxQueries
	}
	if now == nil {
		now = time.Now
	}
	return &TemplateEnricher{maxQueries: maxQueries, now: now}
}

func (e *TemplateEnricher) SearchQueries(concepts []study.Concept) []string {
	return SearchQueries(concepts)
}

func (e *TemplateEnricher) Enrich(ctx context.Context, queries []string) ([]study.EnrichedKnowledge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queries = limit(queries, e.maxQueries)
	out := make([]study.EnrichedKnowledge, 0, len(queries))
	for _, q := range queries {
		out = append(out, study.EnrichedKnowledge{
			ID:      uuid.New().String(),
			Topic:   q,
			Summary: fmt.Sprintf("No web source was consulted for %q; review the document sections on this topic.", q),
			Citations: []study.Citation{{
				Source: "StudyFlow",
				URL:    "about:blank",
			}},
			FetchedAt: e.now().UTC(),
		})
	}
	return out, nil
}
