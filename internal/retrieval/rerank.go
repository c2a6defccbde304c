package retrieval

import (
	"sort"
	"strings"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/vector/milvus"
)

// Reranker performs second-pass relevance scoring over the first-pass
// similarity candidates, returning at most topN results ordered by descending
// relevance. Implementations must be stable: ties keep the original retrieval
// order.
type Reranker interface {
	Rerank(query string, candidates []milvus.SearchResult, topN int) []milvus.SearchResult
}

// TermOverlapReranker scores each (query, chunk) pair by the fraction of
// distinct query terms appearing in the chunk. Deterministic and cheap; a
// model-backed cross-encoder can be swapped in behind the same interface.
type TermOverlapReranker struct{}

func NewTermOverlapReranker() *TermOverlapReranker {
	return &TermOverlapReranker{}
}

func (r *TermOverlapReranker) Rerank(query string, candidates []milvus.SearchResult, topN int) []milvus.SearchResult {
	if len(candidates) == 0 || topN <= 0 {
		return nil
	}

	terms := queryTerms(query)

	ranked := make([]milvus.SearchResult, len(candidates))
	copy(ranked, candidates)

	for i := range ranked {
		ranked[i].Score = overlapScore(terms, ranked[i].Text)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))

	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()")
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

func overlapScore(terms []string, text string) float32 {
	if len(terms) == 0 {
		return 0
	}

	lower := strings.ToLower(text)
	matched := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			matched++
		}
	}
	return float32(matched) / float32(len(terms))
}
