// Package chunker splits extracted document text into overlapping chunks with
// source provenance attached.
package chunker

import (
	"errors"

	"github.com/dadras-ai/dadras/internal/models"
)

// ErrInvalidConfiguration is returned when chunk overlap is not strictly
// smaller than chunk size.
var ErrInvalidConfiguration = errors.New("chunk_overlap must be smaller than chunk_size")

// Chunker splits text into overlapping rune-based windows. When legalUnits is
// enabled and the text carries Persian statute headings, unit boundaries take
// precedence over fixed windows.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	legalUnits   bool
}

// New creates a chunker. chunkSize and chunkOverlap are in runes and must
// satisfy 0 <= overlap < size.
func New(chunkSize, chunkOverlap int, legalUnits bool) (*Chunker, error) {
	if chunkSize <= 0 || chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, ErrInvalidConfiguration
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		legalUnits:   legalUnits,
	}, nil
}

// Chunk splits text into chunks for source. Empty or whitespace-only input
// yields no chunks. ChunkIndex values are contiguous from 0.
func (c *Chunker) Chunk(source, text string) []models.Chunk {
	if text == "" {
		return nil
	}
	docType := detectDocumentType(source, text)
	domain := detectLegalDomain(text)

	if c.legalUnits {
		if units := findLegalUnits(text); len(units) > 0 {
			return c.chunkByUnits(source, text, units, docType, domain)
		}
	}
	return c.chunkByWindow(source, text, docType, domain)
}

// chunkByWindow produces fixed-size windows over the rune sequence, stepping
// by size-overlap so consecutive chunks share exactly chunkOverlap runes.
func (c *Chunker) chunkByWindow(source, text, docType, domain string) []models.Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := c.chunkSize - c.chunkOverlap
	chunks := make([]models.Chunk, 0, (len(runes)+step-1)/step)
	index := 0
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, models.Chunk{
			Text:         string(runes[start:end]),
			Source:       source,
			ChunkIndex:   index,
			CharStart:    start,
			CharEnd:      end,
			DocumentType: docType,
			LegalDomain:  domain,
		})
		index++
		if end >= len(runes) {
			break
		}
	}
	return chunks
}

// chunkByUnits emits one chunk per detected legal unit. Units longer than the
// configured chunk size are split further with the window chunker so no chunk
// exceeds the size bound; indices stay contiguous across the whole source.
func (c *Chunker) chunkByUnits(source, text string, units []legalUnit, docType, domain string) []models.Chunk {
	chunks := make([]models.Chunk, 0, len(units))
	index := 0
	for _, u := range units {
		content := text[u.start:u.end]
		if isBlank(content) {
			continue
		}
		runes := []rune(content)
		if len(runes) <= c.chunkSize {
			chunks = append(chunks, models.Chunk{
				Text:         content,
				Source:       source,
				ChunkIndex:   index,
				CharStart:    u.start,
				CharEnd:      u.end,
				DocumentType: docType,
				LegalDomain:  domain,
				UnitKind:     u.kind,
				UnitTitle:    u.title,
			})
			index++
			continue
		}
		for _, sub := range c.chunkByWindow(source, content, docType, domain) {
			sub.ChunkIndex = index
			sub.UnitKind = u.kind
			sub.UnitTitle = u.title
			chunks = append(chunks, sub)
			index++
		}
	}
	return chunks
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\n' && r != '\t' && r != '\r' {
			return false
		}
	}
	return true
}
