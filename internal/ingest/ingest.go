// Package ingest turns uploaded documents into indexed vector chunks:
// extract, chunk, embed, insert. Sources are processed independently; one bad
// document never aborts its siblings.
package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dadras-ai/dadras/internal/chunker"
	"github.com/dadras-ai/dadras/internal/embedding"
	"github.com/dadras-ai/dadras/internal/extract"
	"github.com/dadras-ai/dadras/internal/models"
	"github.com/dadras-ai/dadras/internal/vectorstore"
)

// Document is one uploaded source: its name and raw bytes.
type Document struct {
	Name    string
	Content []byte
}

// Orchestrator runs the ingestion pipeline.
type Orchestrator struct {
	extractor *extract.Extractor
	chunker   *chunker.Chunker
	embedder  embedding.Embedder
	store     vectorstore.Store
	logger    *zap.Logger
}

// New creates an ingestion orchestrator.
func New(ch *chunker.Chunker, embedder embedding.Embedder, store vectorstore.Store, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		extractor: extract.NewExtractor(),
		chunker:   ch,
		embedder:  embedder,
		store:     store,
		logger:    logger,
	}
}

// IngestBatch processes each document and returns the per-source outcomes.
// Failures are captured in the report, never raised.
func (o *Orchestrator) IngestBatch(ctx context.Context, docs []Document) models.UploadReport {
	var report models.UploadReport
	for _, doc := range docs {
		report.Add(o.ingestOne(ctx, doc))
	}
	return report
}

// IngestFiles reads the named files and ingests them as one batch.
func (o *Orchestrator) IngestFiles(ctx context.Context, paths []string) models.UploadReport {
	var report models.UploadReport
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			report.Add(models.SourceReport{Source: filepath.Base(path), Error: err.Error()})
			continue
		}
		report.Add(o.ingestOne(ctx, Document{Name: filepath.Base(path), Content: content}))
	}
	return report
}

// IngestDir walks dir recursively and ingests every supported file as one
// batch. Hidden directories are skipped.
func (o *Orchestrator) IngestDir(ctx context.Context, dir string) (models.UploadReport, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if extract.Supported(filepath.Ext(path)) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return models.UploadReport{}, err
	}
	return o.IngestFiles(ctx, paths), nil
}

func (o *Orchestrator) ingestOne(ctx context.Context, doc Document) models.SourceReport {
	report := models.SourceReport{Source: doc.Name}

	text, err := o.extractor.ExtractBytes(doc.Content, filepath.Ext(doc.Name))
	if err != nil {
		o.logger.Warn("extraction failed", zap.String("source", doc.Name), zap.Error(err))
		report.Error = err.Error()
		return report
	}

	chunks := o.chunker.Chunk(doc.Name, text)
	report.Chunks = len(chunks)
	if len(chunks) == 0 {
		return report
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		o.logger.Warn("embedding failed", zap.String("source", doc.Name), zap.Error(err))
		report.Error = err.Error()
		return report
	}

	entries := make([]models.IndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = models.IndexEntry{
			ID:     uuid.NewString(),
			Vector: vectors[i],
			Text:   c.Text,
			Chunk:  c,
		}
	}
	progress := func(batchNumber, totalBatches, batchSize int) {
		o.logger.Info("inserted sub-batch",
			zap.String("source", doc.Name),
			zap.Int("batch_number", batchNumber),
			zap.Int("total_batches", totalBatches),
			zap.Int("batch_size", batchSize))
	}
	if err := o.store.Insert(ctx, entries, progress); err != nil {
		o.logger.Error("insert failed", zap.String("source", doc.Name), zap.Error(err))
		report.Error = err.Error()
		return report
	}
	report.Vectors = len(entries)

	o.logger.Info("source indexed",
		zap.String("source", doc.Name),
		zap.Int("chunks", report.Chunks),
		zap.Int("vectors", report.Vectors))
	return report
}
