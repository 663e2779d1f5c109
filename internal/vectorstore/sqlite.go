package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dadras-ai/dadras/internal/models"
)

// insertColumns is the number of bound parameters per entry row. Together with
// SQLite's 32766 host-parameter ceiling this bounds MaxBatch at 5461.
const insertColumns = 6

// SQLiteStore implements Store on a single SQLite database. One database holds
// one collection; embedding model and dimensionality are pinned in a meta
// table and validated at open.
type SQLiteStore struct {
	db         *sql.DB
	path       string
	collection string
	dims       int
	maxBatch   int
}

// Options configures a SQLiteStore.
type Options struct {
	Collection string
	Model      string
	Dimensions int
	MaxBatch   int
}

// Open opens or creates the store at dbPath. Parent directories are created if
// missing. Returns ErrModelMismatch if the database was built with a different
// embedding model or dimensionality than opts names.
func Open(dbPath string, opts Options) (*SQLiteStore, error) {
	if opts.MaxBatch <= 0 {
		return nil, fmt.Errorf("max batch must be positive, got %d", opts.MaxBatch)
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: enable WAL: %v", ErrStoreUnavailable, err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStore{
		db:         db,
		path:       dbPath,
		collection: opts.Collection,
		dims:       opts.Dimensions,
		maxBatch:   opts.MaxBatch,
	}
	if err := s.pinModel(opts.Model, opts.Dimensions); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		vector BLOB NOT NULL,
		metadata TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_entries_source ON entries(source);
	`
	_, err := db.Exec(schema)
	return err
}

// pinModel records the embedding model and dimensionality on first open and
// rejects mismatches on later opens, so a swapped provider cannot silently mix
// embedding spaces in one index.
func (s *SQLiteStore) pinModel(model string, dims int) error {
	var stored string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'embedding_model'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.Exec(
			`INSERT INTO meta (key, value) VALUES ('embedding_model', ?), ('dimensions', ?)`,
			model, fmt.Sprint(dims),
		); err != nil {
			return fmt.Errorf("pin embedding model: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if stored != model {
		return fmt.Errorf("%w: index built with %q, configured %q (reindex required)", ErrModelMismatch, stored, model)
	}
	var storedDims string
	if err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'dimensions'`).Scan(&storedDims); err == nil {
		if storedDims != fmt.Sprint(dims) {
			return fmt.Errorf("%w: index has %s dimensions, configured %d", ErrModelMismatch, storedDims, dims)
		}
	}
	return nil
}

// Insert partitions entries into consecutive sub-batches of at most MaxBatch
// rows and commits each in its own transaction, so a failure on sub-batch k
// leaves sub-batches 1..k-1 durable. progress (optional) is called after each
// commit.
func (s *SQLiteStore) Insert(ctx context.Context, entries []models.IndexEntry, progress ProgressFunc) error {
	if len(entries) == 0 {
		return nil
	}
	for i := range entries {
		if len(entries[i].Vector) != s.dims {
			return fmt.Errorf("entry %d has %d dimensions, store expects %d", i, len(entries[i].Vector), s.dims)
		}
	}
	total := SubBatches(len(entries), s.maxBatch)
	for b := 0; b < total; b++ {
		start := b * s.maxBatch
		end := start + s.maxBatch
		if end > len(entries) {
			end = len(entries)
		}
		sub := entries[start:end]
		if err := s.insertSubBatch(ctx, sub); err != nil {
			return fmt.Errorf("sub-batch %d/%d: %w", b+1, total, err)
		}
		if progress != nil {
			progress(b+1, total, len(sub))
		}
	}
	return nil
}

func (s *SQLiteStore) insertSubBatch(ctx context.Context, sub []models.IndexEntry) error {
	if len(sub) > s.maxBatch {
		return ErrBatchSizeExceeded
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var q strings.Builder
	q.WriteString(`INSERT INTO entries (id, source, chunk_index, text, vector, metadata) VALUES `)
	args := make([]any, 0, len(sub)*insertColumns)
	for i, e := range sub {
		if i > 0 {
			q.WriteByte(',')
		}
		q.WriteString("(?, ?, ?, ?, ?, ?)")
		meta, err := json.Marshal(e.Chunk)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal metadata: %w", err)
		}
		args = append(args, e.ID, e.Chunk.Source, e.Chunk.ChunkIndex, e.Text, encodeVector(e.Vector), string(meta))
	}
	if _, err := tx.ExecContext(ctx, q.String(), args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Search returns up to k entries ordered by descending cosine similarity to
// query. Ties keep insertion order. Returns fewer than k when the store holds
// fewer entries.
func (s *SQLiteStore) Search(ctx context.Context, query []float32, k int) ([]models.Candidate, error) {
	if len(query) != s.dims {
		return nil, fmt.Errorf("query has %d dimensions, store expects %d", len(query), s.dims)
	}
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, chunk_index, text, vector, metadata FROM entries ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var scored []models.Candidate
	for rows.Next() {
		var (
			e        models.IndexEntry
			source   string
			chunkIdx int
			blob     []byte
			metaJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &source, &chunkIdx, &e.Text, &blob, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		vec, err := decodeVector(blob, s.dims)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		e.Vector = vec
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &e.Chunk); err != nil {
				return nil, fmt.Errorf("entry %s: unmarshal metadata: %w", e.ID, err)
			}
		}
		e.Chunk.Source = source
		e.Chunk.ChunkIndex = chunkIdx
		scored = append(scored, models.Candidate{
			Entry: e,
			Score: cosineSimilarity(query, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Stable sort over rowid order keeps insertion order for equal scores.
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > len(scored) {
		k = len(scored)
	}
	top := scored[:k]
	for i := range top {
		top[i].Rank = i
	}
	return top, nil
}

// ListSources returns source -> chunk count, sorted lexicographically by
// source. Entries with an empty source stay searchable but are excluded here.
func (s *SQLiteStore) ListSources(ctx context.Context) ([]models.SourceSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, COUNT(*) FROM entries WHERE source != '' GROUP BY source ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []models.SourceSummary
	for rows.Next() {
		var sum models.SourceSummary
		if err := rows.Scan(&sum.Source, &sum.ChunkCount); err != nil {
			return nil, fmt.Errorf("scan source summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Stats returns the total entry count and the store identity.
func (s *SQLiteStore) Stats(ctx context.Context) (models.StoreStats, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&count); err != nil {
		return models.StoreStats{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return models.StoreStats{
		TotalEntries:  count,
		StoreIdentity: fmt.Sprintf("sqlite://%s#%s", s.path, s.collection),
	}, nil
}

// Reset deletes all entries, or only those of the given source when source is
// non-empty. Irreversible. Returns the number of deleted entries.
func (s *SQLiteStore) Reset(ctx context.Context, source string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if source == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM entries`)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM entries WHERE source = ?`, source)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return res.RowsAffected()
}

// MaxBatch returns the insertion ceiling.
func (s *SQLiteStore) MaxBatch() int { return s.maxBatch }

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
