// Package enrichment gathers background knowledge for the concepts of a
// document.
package enrichment

import (
	"fmt"

	"github.com/bull/studyflow/internal/study"
)

const (
	// MaxConcepts is how many concepts produce search queries.
	MaxConcepts = 5
	// DefaultMaxQueries is how many queries an enricher consults.
	DefaultMaxQueries = 3
)

// SearchQueries derives web search queries from the first MaxConcepts
// concepts: two per concept, plus one about misconceptions when the concept
// lists any.
func SearchQueries(concepts []study.Concept) []string {
	if len(concepts) > MaxConcepts {
		concepts = concepts[:MaxConcepts]
	}
	queries := make([]string, 0, len(concepts)*3)
	for _, c := range concepts {
		queries = append(queries,
			fmt.Sprintf("%s definition and examples", c.Name),
			fmt.Sprintf("%s latest research and applications", c.Name),
		)
		if len(c.CommonMisconceptions) > 0 {
			queries = append(queries, fmt.Sprintf("Common misconceptions about %s", c.Name))
		}
	}
	return queries
}

func limit(queries []string, n int) []string {
	if n > 0 && len(queries) > n {
		return queries[:n]
	}
	return queries
}
