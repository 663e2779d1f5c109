package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/dadras-ai/dadras/internal/models"
)

func openTestStore(t *testing.T, maxBatch int) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vectors.db")
	s, err := Open(path, Options{
		Collection: "legal-texts",
		Model:      "test-model",
		Dimensions: 4,
		MaxBatch:   maxBatch,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(id, source string, idx int, vec []float32) models.IndexEntry {
	return models.IndexEntry{
		ID:     id,
		Vector: vec,
		Text:   "text of " + id,
		Chunk:  models.Chunk{Source: source, ChunkIndex: idx, Text: "text of " + id},
	}
}

func nEntries(n int, source string) []models.IndexEntry {
	out := make([]models.IndexEntry, n)
	for i := range out {
		out[i] = entry(fmt.Sprintf("%s-%d", source, i), source, i, []float32{1, 0, 0, 0})
	}
	return out
}

func TestInsert_SubBatchPartitioning(t *testing.T) {
	s := openTestStore(t, 10)
	ctx := context.Background()

	var batches [][2]int // (batchNumber, batchSize)
	var totals []int
	err := s.Insert(ctx, nEntries(23, "a.txt"), func(num, total, size int) {
		batches = append(batches, [2]int{num, size})
		totals = append(totals, total)
	})
	if err != nil {
		t.Fatal(err)
	}
	want := [][2]int{{1, 10}, {2, 10}, {3, 3}}
	if len(batches) != len(want) {
		t.Fatalf("got %d sub-batches, want %d", len(batches), len(want))
	}
	for i := range want {
		if batches[i] != want[i] {
			t.Errorf("sub-batch %d = %v, want %v", i, batches[i], want[i])
		}
		if totals[i] != 3 {
			t.Errorf("total batches reported as %d, want 3", totals[i])
		}
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalEntries != 23 {
		t.Errorf("count = %d, want 23", stats.TotalEntries)
	}
}

func TestSubBatches_ChromaCeiling(t *testing.T) {
	// 17264 entries under the 5461 ceiling: 5461+5461+5461+1881.
	if got := SubBatches(17264, 5461); got != 4 {
		t.Errorf("SubBatches(17264, 5461) = %d, want 4", got)
	}
	if got := SubBatches(5461, 5461); got != 1 {
		t.Errorf("SubBatches(5461, 5461) = %d, want 1", got)
	}
	if got := SubBatches(5462, 5461); got != 2 {
		t.Errorf("SubBatches(5462, 5461) = %d, want 2", got)
	}
	if got := SubBatches(0, 5461); got != 0 {
		t.Errorf("SubBatches(0, 5461) = %d, want 0", got)
	}
}

func TestInsert_LargeBatchSizes(t *testing.T) {
	s := openTestStore(t, 5461)
	ctx := context.Background()

	var sizes []int
	err := s.Insert(ctx, nEntries(17264, "bulk.txt"), func(num, total, size int) {
		sizes = append(sizes, size)
		if total != 4 {
			t.Errorf("total = %d, want 4", total)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	wantSizes := []int{5461, 5461, 5461, 1881}
	if len(sizes) != 4 {
		t.Fatalf("got %d sub-batches, want 4", len(sizes))
	}
	for i, w := range wantSizes {
		if sizes[i] != w {
			t.Errorf("sub-batch %d size = %d, want %d", i+1, sizes[i], w)
		}
	}
	stats, _ := s.Stats(ctx)
	if stats.TotalEntries != 17264 {
		t.Errorf("count = %d, want 17264", stats.TotalEntries)
	}
}

func TestInsert_RejectsDimensionMismatch(t *testing.T) {
	s := openTestStore(t, 10)
	err := s.Insert(context.Background(), []models.IndexEntry{
		entry("x", "a.txt", 0, []float32{1, 0}),
	}, nil)
	if err == nil {
		t.Fatal("expected dimension error")
	}
}

func TestSearch_OrderAndTieBreak(t *testing.T) {
	s := openTestStore(t, 100)
	ctx := context.Background()

	entries := []models.IndexEntry{
		entry("far", "a.txt", 0, []float32{0, 1, 0, 0}),
		entry("tie-first", "a.txt", 1, []float32{1, 0, 0, 0}),
		entry("tie-second", "a.txt", 2, []float32{1, 0, 0, 0}),
		entry("near", "b.txt", 0, []float32{0.9, 0.1, 0, 0}),
	}
	if err := s.Insert(ctx, entries, nil); err != nil {
		t.Fatal(err)
	}

	got, err := s.Search(ctx, []float32{1, 0, 0, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d results, want 3", len(got))
	}
	// Equal-score entries keep insertion order.
	if got[0].Entry.ID != "tie-first" || got[1].Entry.ID != "tie-second" {
		t.Errorf("tie-break broken: %s, %s", got[0].Entry.ID, got[1].Entry.ID)
	}
	if got[2].Entry.ID != "near" {
		t.Errorf("third = %s, want near", got[2].Entry.ID)
	}
	for i, c := range got {
		if c.Rank != i {
			t.Errorf("candidate %d has rank %d", i, c.Rank)
		}
	}
}

func TestSearch_FewerThanK(t *testing.T) {
	s := openTestStore(t, 100)
	ctx := context.Background()
	if err := s.Insert(ctx, nEntries(3, "a.txt"), nil); err != nil {
		t.Fatal(err)
	}
	got, err := s.Search(ctx, []float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("got %d results, want 3", len(got))
	}
}

func TestListSources_SortedAndSkipsEmptySource(t *testing.T) {
	s := openTestStore(t, 100)
	ctx := context.Background()

	entries := append(nEntries(2, "zebra.txt"), nEntries(3, "alpha.txt")...)
	entries = append(entries, entry("anon", "", 0, []float32{1, 0, 0, 0}))
	if err := s.Insert(ctx, entries, nil); err != nil {
		t.Fatal(err)
	}

	sources, err := s.ListSources(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(sources))
	}
	if sources[0].Source != "alpha.txt" || sources[0].ChunkCount != 3 {
		t.Errorf("sources[0] = %+v", sources[0])
	}
	if sources[1].Source != "zebra.txt" || sources[1].ChunkCount != 2 {
		t.Errorf("sources[1] = %+v", sources[1])
	}

	// The empty-source entry is still searchable.
	got, _ := s.Search(ctx, []float32{1, 0, 0, 0}, 10)
	found := false
	for _, c := range got {
		if c.Entry.ID == "anon" {
			found = true
		}
	}
	if !found {
		t.Error("empty-source entry should remain searchable")
	}

	// Idempotence without intervening writes.
	again, err := s.ListSources(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != len(sources) {
		t.Errorf("repeated ListSources differ: %d vs %d", len(again), len(sources))
	}
}

func TestReset_ScopedAndFull(t *testing.T) {
	s := openTestStore(t, 100)
	ctx := context.Background()

	entries := append(nEntries(3, "keep.txt"), nEntries(2, "drop.txt")...)
	if err := s.Insert(ctx, entries, nil); err != nil {
		t.Fatal(err)
	}

	n, err := s.Reset(ctx, "drop.txt")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("scoped reset deleted %d, want 2", n)
	}
	stats, _ := s.Stats(ctx)
	if stats.TotalEntries != 3 {
		t.Errorf("count after scoped reset = %d, want 3", stats.TotalEntries)
	}

	n, err = s.Reset(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("full reset deleted %d, want 3", n)
	}
}

func TestOpen_ModelMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	s, err := Open(path, Options{Collection: "c", Model: "model-a", Dimensions: 4, MaxBatch: 10})
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	_, err = Open(path, Options{Collection: "c", Model: "model-b", Dimensions: 4, MaxBatch: 10})
	if !errors.Is(err, ErrModelMismatch) {
		t.Errorf("expected ErrModelMismatch, got %v", err)
	}

	// Same model reopens fine.
	s2, err := Open(path, Options{Collection: "c", Model: "model-a", Dimensions: 4, MaxBatch: 10})
	if err != nil {
		t.Fatal(err)
	}
	_ = s2.Close()
}

func TestVectorEncoding_RoundTrip(t *testing.T) {
	in := []float32{0.5, -1.25, 3.75, 0}
	out, err := decodeVector(encodeVector(in), len(in))
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("component %d: %v != %v", i, in[i], out[i])
		}
	}
	if _, err := decodeVector([]byte{1, 2, 3}, 4); err == nil {
		t.Error("expected error for truncated blob")
	}
}
