// Package vectorstore provides durable storage and similarity search over
// embedded chunks, with insertion partitioned into size-bounded sub-batches.
package vectorstore

import (
	"context"
	"errors"

	"github.com/dadras-ai/dadras/internal/models"
)

// ErrStoreUnavailable indicates the underlying engine could not be reached.
// Fatal for the current operation; prior sub-batches stay committed.
var ErrStoreUnavailable = errors.New("vector store unavailable")

// ErrBatchSizeExceeded indicates a sub-batch larger than the insertion ceiling
// reached the engine. Insert pre-partitions, so seeing this is a partitioning
// bug and is treated as fatal.
var ErrBatchSizeExceeded = errors.New("batch size exceeds insertion ceiling")

// ErrModelMismatch indicates the index was built with a different embedding
// model than the one configured. Surfaced at open, not mid-query; fixing it
// requires a full reindex.
var ErrModelMismatch = errors.New("embedding model mismatch")

// ProgressFunc receives per-sub-batch insertion progress. batchNumber is
// 1-based; called after each sub-batch is durably committed.
type ProgressFunc func(batchNumber, totalBatches, batchSize int)

// Store is the batched vector store. Insert is the only mutator that adds
// entries; Reset the only one that removes them.
type Store interface {
	Insert(ctx context.Context, entries []models.IndexEntry, progress ProgressFunc) error
	Search(ctx context.Context, query []float32, k int) ([]models.Candidate, error)
	ListSources(ctx context.Context) ([]models.SourceSummary, error)
	Stats(ctx context.Context) (models.StoreStats, error)
	Reset(ctx context.Context, source string) (int64, error)
	Close() error
}

// SubBatches returns how many sub-batches an insert of n entries needs under
// ceiling max: ceil(n/max).
func SubBatches(n, max int) int {
	if n <= 0 || max <= 0 {
		return 0
	}
	return (n + max - 1) / max
}
