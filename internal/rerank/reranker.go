// Package rerank re-scores coarse retrieval candidates with query-document
// pair scoring. Cross-encoder scoring evaluates query and chunk together, so
// it separates candidates whose embedding similarities are nearly identical.
package rerank

import (
	"context"
	"errors"
	"sort"

	"github.com/dadras-ai/dadras/internal/models"
)

// ErrProviderUnavailable indicates the rerank provider could not be reached
// or answered with a server error.
var ErrProviderUnavailable = errors.New("rerank provider unavailable")

// Reranker re-orders candidates by relevance to the query and returns at most
// topK of them.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []models.Candidate, topK int) ([]models.Candidate, error)
}

// sortByRerankScore orders candidates by descending rerank score. Candidates
// with equal scores keep their coarse-recall order.
func sortByRerankScore(candidates []models.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].RerankScore != candidates[j].RerankScore {
			return candidates[i].RerankScore > candidates[j].RerankScore
		}
		return candidates[i].Rank < candidates[j].Rank
	})
}

// capTopK clamps topK into [0, len(candidates)].
func capTopK(candidates []models.Candidate, topK int) []models.Candidate {
	if topK < 0 {
		topK = 0
	}
	if topK > len(candidates) {
		topK = len(candidates)
	}
	return candidates[:topK]
}
