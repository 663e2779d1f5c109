// Package cache provides a TTL result cache that fails open: when the backing
// store is unavailable, Get reports absent and Set is a no-op, never an error.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Cache is the result cache port. Implementations must never fail or block
// the caller because the backend is unreachable. The implementation is chosen
// once at startup; callers never branch on availability per call.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Close() error
}

// NormalizeQuestion canonicalizes a question for cache keying: trimmed,
// lowered, inner whitespace collapsed to single spaces.
func NormalizeQuestion(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// Key builds a cache key from a prefix and its parts. Long keys are hashed so
// backends with key-length limits stay happy. Two semantically identical
// questions produce the same key unless a conversation scope is included.
func Key(prefix string, parts ...string) string {
	joined := strings.Join(parts, ":")
	if len(joined) > 200 {
		sum := sha256.Sum256([]byte(joined))
		joined = hex.EncodeToString(sum[:])
	}
	return prefix + ":" + joined
}

// AnswerKey derives the cache key for a RAG answer. conversationID is included
// only when history affects the answer, so the same question in history-free
// conversations shares one entry.
func AnswerKey(question string, topK int, conversationID string) string {
	parts := []string{NormalizeQuestion(question), strconv.Itoa(topK)}
	if conversationID != "" {
		parts = append(parts, conversationID)
	}
	return Key("rag:answer", parts...)
}

// ClassificationKey derives the cache key for a question classification.
func ClassificationKey(question string) string {
	return Key("rag:classification", NormalizeQuestion(question))
}
