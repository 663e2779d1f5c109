package rag

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dadras-ai/dadras/internal/cache"
	"github.com/dadras-ai/dadras/internal/embedding"
	"github.com/dadras-ai/dadras/internal/llm"
	"github.com/dadras-ai/dadras/internal/models"
	"github.com/dadras-ai/dadras/internal/rerank"
	"github.com/dadras-ai/dadras/internal/vectorstore"
)

type fakeGenerator struct {
	answer string
	err    error
	calls  int
}

func (g *fakeGenerator) Generate(ctx context.Context, history []models.Turn, prompt string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

type fakeHistory struct {
	turns map[string][]models.Turn
}

func (h *fakeHistory) History(ctx context.Context, conversationID string) ([]models.Turn, error) {
	return h.turns[conversationID], nil
}

type failingReranker struct{}

func (failingReranker) Rerank(ctx context.Context, query string, candidates []models.Candidate, topK int) ([]models.Candidate, error) {
	return nil, errors.New("rerank exploded")
}

type testPipeline struct {
	orchestrator *Orchestrator
	store        vectorstore.Store
	embedder     embedding.Embedder
}

func newTestPipeline(t *testing.T, generator llm.Generator, history HistoryProvider, opts Options) *testPipeline {
	t.Helper()
	embedder := embedding.NewMockEmbedder(8)
	store, err := vectorstore.Open(filepath.Join(t.TempDir(), "vectors.db"), vectorstore.Options{
		Collection: "legal-texts",
		Model:      embedder.ModelID(),
		Dimensions: 8,
		MaxBatch:   100,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	boltCache, err := cache.OpenBolt(filepath.Join(t.TempDir(), "cache.db"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = boltCache.Close() })

	o := New(embedder, store, rerank.NewLexical(), boltCache, generator, history, zap.NewNop(), opts)
	return &testPipeline{orchestrator: o, store: store, embedder: embedder}
}

func (p *testPipeline) seed(t *testing.T, texts ...string) {
	t.Helper()
	ctx := context.Background()
	entries := make([]models.IndexEntry, len(texts))
	for i, text := range texts {
		vec, err := p.embedder.Embed(ctx, text)
		if err != nil {
			t.Fatal(err)
		}
		entries[i] = models.IndexEntry{
			ID:     text,
			Vector: vec,
			Text:   text,
			Chunk:  models.Chunk{Text: text, Source: "seed.txt", ChunkIndex: i},
		}
	}
	if err := p.store.Insert(ctx, entries, nil); err != nil {
		t.Fatal(err)
	}
}

func TestAsk_SecondCallFromCache(t *testing.T) {
	p := newTestPipeline(t, nil, nil, Options{})
	p.seed(t, "ماده 1 متن اول", "ماده 2 متن دوم", "ماده 3 متن سوم")
	ctx := context.Background()

	first, err := p.orchestrator.Ask(ctx, models.AskRequest{Question: "  ماده 2 چه می‌گوید؟ "})
	if err != nil {
		t.Fatal(err)
	}
	if first.FromCache {
		t.Error("first call should not come from cache")
	}

	second, err := p.orchestrator.Ask(ctx, models.AskRequest{Question: "ماده 2 چه می‌گوید؟"})
	if err != nil {
		t.Fatal(err)
	}
	if !second.FromCache {
		t.Error("second call should come from cache")
	}
	if second.Answer != first.Answer {
		t.Errorf("cached answer %q differs from first %q", second.Answer, first.Answer)
	}
}

func TestAsk_TopKExceedsStoredEntries(t *testing.T) {
	p := newTestPipeline(t, nil, nil, Options{})
	p.seed(t, "متن اول", "متن دوم", "متن سوم")

	resp, err := p.orchestrator.Ask(context.Background(), models.AskRequest{Question: "متن", TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) == 0 || len(resp.Sources) > 3 {
		t.Errorf("got %d sources, want between 1 and 3", len(resp.Sources))
	}
}

func TestAsk_ExtractiveWithoutGenerator(t *testing.T) {
	p := newTestPipeline(t, nil, nil, Options{})
	p.seed(t, "ماده 10 قانون مدنی")

	resp, err := p.orchestrator.Ask(context.Background(), models.AskRequest{Question: "ماده 10"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(resp.Answer, llm.ExtractivePreamble) {
		t.Errorf("answer should open with the extractive preamble, got %q", resp.Answer)
	}
	if !strings.Contains(resp.Answer, "ماده 10 قانون مدنی") {
		t.Error("extractive answer should contain the retrieved text")
	}
}

func TestAsk_GeneratorUnavailableFallsBack(t *testing.T) {
	gen := &fakeGenerator{err: llm.ErrProviderUnavailable}
	p := newTestPipeline(t, gen, nil, Options{})
	p.seed(t, "ماده 10 قانون مدنی")

	resp, err := p.orchestrator.Ask(context.Background(), models.AskRequest{Question: "ماده 10"})
	if err != nil {
		t.Fatal(err)
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls)
	}
	if !strings.HasPrefix(resp.Answer, llm.ExtractivePreamble) {
		t.Errorf("answer should fall back to extractive, got %q", resp.Answer)
	}
}

func TestAsk_GeneratedAnswer(t *testing.T) {
	gen := &fakeGenerator{answer: "پاسخ تولیدشده"}
	p := newTestPipeline(t, gen, nil, Options{})
	p.seed(t, "ماده 10 قانون مدنی")

	resp, err := p.orchestrator.Ask(context.Background(), models.AskRequest{Question: "ماده 10"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "پاسخ تولیدشده" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.Sources) == 0 {
		t.Error("generated answers still carry sources")
	}
}

func TestAsk_EmptyStore(t *testing.T) {
	p := newTestPipeline(t, nil, nil, Options{})

	resp, err := p.orchestrator.Ask(context.Background(), models.AskRequest{Question: "هر سوالی"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != NoResultsAnswer {
		t.Errorf("answer = %q, want the no-results answer", resp.Answer)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("got %d sources, want 0", len(resp.Sources))
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	p := newTestPipeline(t, nil, nil, Options{})
	if _, err := p.orchestrator.Ask(context.Background(), models.AskRequest{}); err == nil {
		t.Error("empty question should fail")
	}
}

func TestAsk_ContextBudgetLimitsSources(t *testing.T) {
	long := strings.Repeat("متن طولانی ", 30)
	p := newTestPipeline(t, nil, nil, Options{ContextBudget: len(long) + 80})
	p.seed(t, long+" اول", long+" دوم", long+" سوم")

	resp, err := p.orchestrator.Ask(context.Background(), models.AskRequest{Question: "متن طولانی", TopK: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) != 1 {
		t.Errorf("got %d sources, want 1 under a one-chunk budget", len(resp.Sources))
	}
}

func TestAsk_HistoryScopesCacheKey(t *testing.T) {
	gen := &fakeGenerator{answer: "پاسخ"}
	hist := &fakeHistory{turns: map[string][]models.Turn{
		"conv-1": {{Role: "user", Content: "سوال قبلی"}},
	}}
	p := newTestPipeline(t, gen, hist, Options{})
	p.seed(t, "ماده 10 قانون مدنی")
	ctx := context.Background()

	if _, err := p.orchestrator.Ask(ctx, models.AskRequest{Question: "ماده 10"}); err != nil {
		t.Fatal(err)
	}
	// Same question inside a conversation with history must not reuse the
	// history-free cache entry.
	resp, err := p.orchestrator.Ask(ctx, models.AskRequest{Question: "ماده 10", ConversationID: "conv-1"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.FromCache {
		t.Error("history-scoped question should not hit the history-free entry")
	}
	if gen.calls != 2 {
		t.Errorf("generator called %d times, want 2", gen.calls)
	}

	// A conversation without history shares the history-free entry.
	resp, err = p.orchestrator.Ask(ctx, models.AskRequest{Question: "ماده 10", ConversationID: "conv-empty"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.FromCache {
		t.Error("history-free conversation should share the cache entry")
	}
}

func TestAsk_RerankFailureKeepsCoarseOrder(t *testing.T) {
	p := newTestPipeline(t, nil, nil, Options{})
	p.seed(t, "متن اول", "متن دوم")
	p.orchestrator.reranker = failingReranker{}

	resp, err := p.orchestrator.Ask(context.Background(), models.AskRequest{Question: "متن", TopK: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) != 2 {
		t.Errorf("got %d sources, want 2", len(resp.Sources))
	}
}

func TestAsk_DomainReported(t *testing.T) {
	p := newTestPipeline(t, nil, nil, Options{})
	p.seed(t, "مجازات سرقت در قانون مجازات اسلامی")

	resp, err := p.orchestrator.Ask(context.Background(), models.AskRequest{Question: "مجازات سرقت چیست؟"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Domain != "criminal" {
		t.Errorf("domain = %q, want criminal", resp.Domain)
	}
	if resp.DomainLabel != "کیفری" {
		t.Errorf("domain label = %q", resp.DomainLabel)
	}
}

func TestAsk_CacheExpiryRecomputes(t *testing.T) {
	gen := &fakeGenerator{answer: "پاسخ"}
	p := newTestPipeline(t, gen, nil, Options{CacheTTL: time.Nanosecond})
	p.seed(t, "ماده 10 قانون مدنی")
	ctx := context.Background()

	if _, err := p.orchestrator.Ask(ctx, models.AskRequest{Question: "ماده 10"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	resp, err := p.orchestrator.Ask(ctx, models.AskRequest{Question: "ماده 10"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.FromCache {
		t.Error("expired entry should not serve a hit")
	}
	if gen.calls != 2 {
		t.Errorf("generator called %d times, want 2", gen.calls)
	}
}
