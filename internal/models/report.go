package models

// SourceReport is the per-source outcome of an upload batch. Error is empty on
// success; a failed source never aborts its siblings.
type SourceReport struct {
	Source  string `json:"source"`
	Chunks  int    `json:"chunks"`
	Vectors int    `json:"vectors"`
	Error   string `json:"error,omitempty"`
}

// UploadReport aggregates the per-source outcomes of one upload batch.
type UploadReport struct {
	Sources     []SourceReport `json:"sources"`
	TotalChunks int            `json:"total_chunks"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
}

// Add appends a source outcome and updates the aggregate counters.
func (r *UploadReport) Add(sr SourceReport) {
	r.Sources = append(r.Sources, sr)
	if sr.Error == "" {
		r.Succeeded++
		r.TotalChunks += sr.Chunks
	} else {
		r.Failed++
	}
}

// StoreStats reports the index size and where it lives.
type StoreStats struct {
	TotalEntries  int64  `json:"total_entries"`
	StoreIdentity string `json:"store_identity"`
}

// SourcesResponse is the source listing, sorted lexicographically by source.
type SourcesResponse struct {
	TotalFiles  int             `json:"total_files"`
	TotalChunks int             `json:"total_chunks"`
	Sources     []SourceSummary `json:"sources"`
}
