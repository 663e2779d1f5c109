// Package models defines core data structures for chunks, index entries, and answers.
package models

// Chunk is a contiguous span of source text with provenance attached.
// ChunkIndex is zero-based and contiguous within a Source.
type Chunk struct {
	Text       string `json:"text"`
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
	CharStart  int    `json:"char_start,omitempty"`
	CharEnd    int    `json:"char_end,omitempty"`

	// Optional legal metadata detected at chunking time.
	DocumentType string `json:"document_type,omitempty"`
	LegalDomain  string `json:"legal_domain,omitempty"`
	UnitKind     string `json:"unit_kind,omitempty"`
	UnitTitle    string `json:"unit_title,omitempty"`
}

// IndexEntry is the unit persisted in the vector store: a chunk plus its
// embedding and the model that produced it.
type IndexEntry struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"-"`
	Text   string    `json:"text"`
	Chunk  Chunk     `json:"metadata"`
}

// Candidate is an index entry plus its scores, produced during one query and
// discarded afterwards. Score is the coarse-recall similarity; RerankScore is
// set by the reranker. Rank is the zero-based coarse-recall position, used as
// the tie-break when rerank scores are equal.
type Candidate struct {
	Entry       IndexEntry
	Score       float64
	RerankScore float64
	Rank        int
}

// SourceSummary is one row of the source listing: a source and how many
// chunks it contributed to the index.
type SourceSummary struct {
	Source     string `json:"source"`
	ChunkCount int    `json:"chunk_count"`
}

// SourceRef points a reader at the chunk an answer was grounded on.
type SourceRef struct {
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
}
