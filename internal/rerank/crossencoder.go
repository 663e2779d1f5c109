package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/dadras-ai/dadras/internal/models"
)

// CrossEncoder scores query-document pairs over an HTTP rerank API
// (Cohere/Jina-style: POST /rerank with query and documents, scored results
// come back by document index).
type CrossEncoder struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// CrossEncoderConfig configures the cross-encoder client.
type CrossEncoderConfig struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// NewCrossEncoder creates a cross-encoder reranker. The API key is read from
// the environment variable named in cfg.APIKeyEnv; an empty key is allowed
// for local providers.
func NewCrossEncoder(cfg CrossEncoderConfig) *CrossEncoder {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &CrossEncoder{
		baseURL: cfg.BaseURL,
		apiKey:  os.Getenv(cfg.APIKeyEnv),
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank scores each candidate against the query and returns the top topK in
// descending score order. Tied scores keep their coarse-recall order.
func (c *CrossEncoder) Rerank(ctx context.Context, query string, candidates []models.Candidate, topK int) ([]models.Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	docs := make([]string, len(candidates))
	for i, cand := range candidates {
		docs[i] = cand.Entry.Text
	}
	body, err := json.Marshal(rerankRequest{Model: c.model, Query: query, Documents: docs})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, resp.Status)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("rerank request failed: %s", resp.Status)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	out := make([]models.Candidate, len(candidates))
	copy(out, candidates)
	for _, r := range parsed.Results {
		if r.Index < 0 || r.Index >= len(out) {
			return nil, fmt.Errorf("rerank response index %d out of range", r.Index)
		}
		out[r.Index].RerankScore = r.RelevanceScore
	}
	sortByRerankScore(out)
	return capTopK(out, topK), nil
}
