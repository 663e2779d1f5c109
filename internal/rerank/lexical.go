package rerank

import (
	"context"
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/dadras-ai/dadras/internal/models"
)

// Lexical is the fallback reranker used when no cross-encoder provider is
// configured. It scores candidates against the query with a throwaway
// in-memory bleve index, so exact-term matches rise above chunks that are
// only semantically close. Candidates the query matches nothing in keep a
// zero rerank score and fall back to coarse order.
type Lexical struct{}

// NewLexical creates the lexical fallback reranker.
func NewLexical() Lexical { return Lexical{} }

// Rerank indexes the candidate texts in memory, runs a match query, and
// returns the top topK candidates by lexical score.
func (Lexical) Rerank(ctx context.Context, query string, candidates []models.Candidate, topK int) ([]models.Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	im := bleve.NewIndexMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) keeps Persian
	// tokens intact; stemming analyzers mangle non-English text.
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("text", textField)
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("create lexical index: %w", err)
	}
	defer index.Close()

	for i, cand := range candidates {
		doc := map[string]string{"text": cand.Entry.Text}
		if err := index.Index(strconv.Itoa(i), doc); err != nil {
			return nil, fmt.Errorf("index candidate: %w", err)
		}
	}

	q := bleve.NewMatchQuery(query)
	q.SetField("text")
	req := bleve.NewSearchRequest(q)
	req.Size = len(candidates)
	results, err := index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	out := make([]models.Candidate, len(candidates))
	copy(out, candidates)
	for _, hit := range results.Hits {
		i, err := strconv.Atoi(hit.ID)
		if err != nil || i < 0 || i >= len(out) {
			continue
		}
		out[i].RerankScore = hit.Score
	}
	sortByRerankScore(out)
	return capTopK(out, topK), nil
}
