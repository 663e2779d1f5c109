// Package embedding provides text embedding via an external provider.
package embedding

import (
	"context"
	"errors"
)

// ErrProviderUnavailable indicates the embedding backend could not be reached
// or answered with a server error. Retryable by the caller with backoff.
var ErrProviderUnavailable = errors.New("embedding provider unavailable")

// ErrProviderRateLimited indicates the backend rejected the call for rate
// reasons. Retryable by the caller with backoff.
var ErrProviderRateLimited = errors.New("embedding provider rate limited")

// Embedder produces fixed-dimension vector embeddings for text. One vector per
// input, same order. Implementations are stateless; retry policy is owned by
// the orchestrators.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelID() string
	Close() error
}
