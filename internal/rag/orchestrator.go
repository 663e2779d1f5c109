// Package rag composes the query pipeline: cache check, query embedding,
// coarse recall, rerank, context assembly, generation, cache write.
package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dadras-ai/dadras/internal/cache"
	"github.com/dadras-ai/dadras/internal/classify"
	"github.com/dadras-ai/dadras/internal/embedding"
	"github.com/dadras-ai/dadras/internal/llm"
	"github.com/dadras-ai/dadras/internal/models"
	"github.com/dadras-ai/dadras/internal/rerank"
	"github.com/dadras-ai/dadras/internal/vectorstore"
)

// NoResultsAnswer is returned when coarse recall finds nothing for a question.
const NoResultsAnswer = "پاسخی برای این پرسش در منابع نمایه‌شده یافت نشد. لطفاً پرسش را دقیق‌تر مطرح کنید یا اسناد مرتبط را بارگذاری نمایید."

// HistoryProvider supplies prior conversation turns in order. The orchestrator
// only reads history; persisting new turns is the caller's responsibility.
type HistoryProvider interface {
	History(ctx context.Context, conversationID string) ([]models.Turn, error)
}

// Options tunes the query pipeline.
type Options struct {
	// ContextBudget caps the assembled context in bytes.
	ContextBudget int
	// CacheTTL is how long answers and classifications stay cached.
	CacheTTL time.Duration
	// DomainFilter restricts coarse recall to chunks matching the question's
	// detected legal domain when the classification is confident.
	DomainFilter bool
}

// Orchestrator answers questions against the index. All collaborators are
// injected at construction; generator and history may be nil, in which case
// answers are extractive and history-free.
type Orchestrator struct {
	embedder   embedding.Embedder
	store      vectorstore.Store
	reranker   rerank.Reranker
	cache      cache.Cache
	classifier *classify.Classifier
	generator  llm.Generator
	history    HistoryProvider
	logger     *zap.Logger
	opts       Options
}

// New creates a query orchestrator.
func New(embedder embedding.Embedder, store vectorstore.Store, reranker rerank.Reranker, resultCache cache.Cache, generator llm.Generator, history HistoryProvider, logger *zap.Logger, opts Options) *Orchestrator {
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = 8000
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	return &Orchestrator{
		embedder:   embedder,
		store:      store,
		reranker:   reranker,
		cache:      resultCache,
		classifier: classify.NewClassifier(resultCache, opts.CacheTTL),
		generator:  generator,
		history:    history,
		logger:     logger,
		opts:       opts,
	}
}

// Ask runs one question through the pipeline and returns the answer with its
// sources. A cache hit short-circuits everything after the cache check.
func (o *Orchestrator) Ask(ctx context.Context, req models.AskRequest) (*models.AskResponse, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	history, err := o.loadHistory(ctx, req.ConversationID)
	if err != nil {
		o.logger.Warn("history unavailable, answering without it",
			zap.String("conversation_id", req.ConversationID), zap.Error(err))
		history = nil
	}

	// Conversation scope enters the key only when history will shape the
	// answer, so identical questions across history-free conversations share
	// one entry.
	scope := ""
	if len(history) > 0 {
		scope = req.ConversationID
	}
	key := cache.AnswerKey(req.Question, req.TopK, scope)

	if payload, ok := o.cache.Get(ctx, key); ok {
		var cached models.AskResponse
		if err := json.Unmarshal(payload, &cached); err == nil {
			cached.FromCache = true
			cached.ResponseTimeMS = time.Since(start).Milliseconds()
			return &cached, nil
		}
		o.logger.Warn("discarding undecodable cache entry", zap.String("key", key))
	}

	resp, err := o.answer(ctx, req, history)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(resp); err == nil {
		o.cache.Set(ctx, key, payload, o.opts.CacheTTL)
	}
	resp.ResponseTimeMS = time.Since(start).Milliseconds()
	return resp, nil
}

func (o *Orchestrator) loadHistory(ctx context.Context, conversationID string) ([]models.Turn, error) {
	if o.history == nil || conversationID == "" {
		return nil, nil
	}
	return o.history.History(ctx, conversationID)
}

func (o *Orchestrator) answer(ctx context.Context, req models.AskRequest, history []models.Turn) (*models.AskResponse, error) {
	classification := o.classifier.Classify(ctx, req.Question)

	queryVec, err := o.embedder.Embed(ctx, req.Question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	// Coarse recall pulls twice the asked depth so the reranker has slack to
	// reorder.
	candidates, err := o.store.Search(ctx, queryVec, 2*req.TopK)
	if err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}
	candidates = o.filterByDomain(candidates, classification)

	resp := &models.AskResponse{Sources: []models.SourceRef{}}
	if classification.Domain != classify.DomainUnknown {
		resp.Domain = classification.Domain
		resp.DomainLabel = classify.Label(classification.Domain)
	}
	if len(candidates) == 0 {
		resp.Answer = NoResultsAnswer
		return resp, nil
	}

	top, err := o.reranker.Rerank(ctx, req.Question, candidates, req.TopK)
	if err != nil {
		o.logger.Warn("rerank failed, keeping coarse order", zap.Error(err))
		if req.TopK < len(candidates) {
			top = candidates[:req.TopK]
		} else {
			top = candidates
		}
	}

	contextText, included := o.assembleContext(top)
	for _, cand := range included {
		resp.Sources = append(resp.Sources, models.SourceRef{
			Source:     cand.Entry.Chunk.Source,
			ChunkIndex: cand.Entry.Chunk.ChunkIndex,
		})
	}

	resp.Answer, err = o.generate(ctx, req.Question, contextText, history)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// filterByDomain keeps candidates whose chunks match the detected domain.
// An unknown domain, a disabled filter, or a filter that would empty the set
// leave the candidates untouched.
func (o *Orchestrator) filterByDomain(candidates []models.Candidate, classification classify.Result) []models.Candidate {
	if !o.opts.DomainFilter || classification.Domain == classify.DomainUnknown {
		return candidates
	}
	filtered := make([]models.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if cand.Entry.Chunk.LegalDomain == classification.Domain || cand.Entry.Chunk.LegalDomain == "" {
			filtered = append(filtered, cand)
		}
	}
	if len(filtered) == 0 {
		return candidates
	}
	return filtered
}

// assembleContext concatenates candidate texts in rerank order with source
// attribution, stopping at the byte budget. The first candidate is always
// included, truncated if it alone exceeds the budget.
func (o *Orchestrator) assembleContext(candidates []models.Candidate) (string, []models.Candidate) {
	var b strings.Builder
	var included []models.Candidate
	for i, cand := range candidates {
		block := fmt.Sprintf("[منبع: %s، قطعه %d]\n%s",
			cand.Entry.Chunk.Source, cand.Entry.Chunk.ChunkIndex, cand.Entry.Text)
		sep := 0
		if i > 0 {
			sep = 2
		}
		if b.Len()+sep+len(block) > o.opts.ContextBudget {
			if i == 0 {
				b.WriteString(truncateUTF8(block, o.opts.ContextBudget))
				included = append(included, cand)
			}
			break
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(block)
		included = append(included, cand)
	}
	return b.String(), included
}

// generate asks the provider for an answer, falling back to an extractive
// answer when no provider is configured or the provider is unavailable.
func (o *Orchestrator) generate(ctx context.Context, question, contextText string, history []models.Turn) (string, error) {
	if o.generator == nil {
		return extractiveAnswer(contextText), nil
	}
	prompt := fmt.Sprintf("سوال: %s\n\nمتون بازیابی‌شده:\n%s\n\nپاسخ دقیق و مستند:", question, contextText)
	answer, err := o.generator.Generate(ctx, history, prompt)
	if err != nil {
		if errors.Is(err, llm.ErrProviderUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			o.logger.Warn("generation unavailable, answering extractively", zap.Error(err))
			return extractiveAnswer(contextText), nil
		}
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return answer, nil
}

func extractiveAnswer(contextText string) string {
	return llm.ExtractivePreamble + "\n\n" + contextText
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
