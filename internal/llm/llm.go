// Package llm generates answers through an OpenAI-compatible chat-completions
// API. When no provider is configured the orchestrator answers extractively
// instead, so this package is optional at runtime.
package llm

import (
	"context"
	"errors"

	"github.com/dadras-ai/dadras/internal/models"
)

// ErrProviderUnavailable indicates the generation provider could not be
// reached, timed out, or answered with a server error. The orchestrator
// treats it as a signal to answer extractively.
var ErrProviderUnavailable = errors.New("llm provider unavailable")

// Generator produces an answer from a prompt and prior conversation turns.
type Generator interface {
	Generate(ctx context.Context, history []models.Turn, prompt string) (string, error)
}

// SystemPrompt is the Persian legal assistant instruction sent with every
// generation request.
const SystemPrompt = `شما یک دستیار حقوقی متخصص در قوانین و مقررات ایران هستید.
با تکیه بر متون بازیابی‌شده، به پرسش پاسخ دقیق و مستند بده. اگر پاسخ قطعی نیست، عدم قطعیت را بیان کن و به منابع اشاره کن.
از حدس زدن خودداری کن و فقط بر اساس مدارک ارائه شده پاسخ بده. در پایان، مواد قانونی و منبع را فهرست کن.
زبان پاسخ: فارسی رسمی و روان.`

// ExtractivePreamble opens extractive answers built directly from retrieved
// chunks when no generation provider answered.
const ExtractivePreamble = "بر اساس متون یافت‌شده، موارد مرتبط در زیر آمده است. لطفاً با دقت مطالعه کنید و در صورت نیاز سوال را دقیق‌تر مطرح نمایید."
